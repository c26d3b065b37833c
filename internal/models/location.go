package models

// Location is an approximate geographic location resolved from the caller's IP.
// CountryCode is a lowercase ISO 3166-1 alpha-2 code.
type Location struct {
	City        string `json:"city"`
	Country     string `json:"country"`
	CountryCode string `json:"countryCode"`
}

// DefaultLocation is used when every geolocation source fails.
func DefaultLocation() Location {
	return Location{
		City:        "Johannesburg",
		Country:     "South Africa",
		CountryCode: "za",
	}
}

// IsZero reports whether no field of the location is set.
func (l Location) IsZero() bool {
	return l == Location{}
}

// String returns "City, Country", falling back to the country code when the name is unknown.
func (l Location) String() string {
	country := l.Country
	if country == "" {
		country = l.CountryCode
	}
	return l.City + ", " + country
}
