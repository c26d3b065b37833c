package models

// WeatherReading is the current weather for a location in metric units.
type WeatherReading struct {
	Temperature float64 `json:"temperature"` // °C
	FeelsLike   float64 `json:"feelsLike"`   // °C
	Condition   string  `json:"condition"`
	Humidity    int     `json:"humidity"`  // %
	WindSpeed   float64 `json:"windSpeed"` // m/s
}
