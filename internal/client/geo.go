package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/kjstillabower/local-briefing/internal/models"
)

// Default geolocation endpoints, probed in this order.
var DefaultGeoEndpoints = []string{
	"http://ip-api.com/json/",
	"https://ipapi.co/json/",
}

// GeoClient resolves the caller's location from a single IP geolocation endpoint.
type GeoClient struct {
	endpoint string
	name     string
	upstream *upstream
}

func NewGeoClient(endpoint string, opts Options) *GeoClient {
	return &GeoClient{
		endpoint: endpoint,
		name:     endpointName(endpoint),
		upstream: newUpstream("geolocation", opts),
	}
}

// Name is the endpoint host, used as a metric label and in logs.
func (c *GeoClient) Name() string {
	return c.name
}

// geoResponse covers both supported schemas. ip-api.com sends countryCode and country;
// ipapi.co sends country_code and country_name.
type geoResponse struct {
	City         string `json:"city"`
	Country      string `json:"country"`
	CountryName  string `json:"country_name"`
	CountryCodeA string `json:"countryCode"`
	CountryCodeB string `json:"country_code"`
	Status       string `json:"status"`
	Message      string `json:"message"`
}

// Lookup performs one GET against the endpoint. A response without a city or a
// country code is an API error.
func (c *GeoClient) Lookup(ctx context.Context) (models.Location, error) {
	var resp geoResponse
	if err := c.upstream.getJSON(ctx, c.endpoint, &resp); err != nil {
		return models.Location{}, err
	}

	loc, ok := resp.location()
	if !ok || strings.EqualFold(resp.Status, "fail") {
		detail := "location data not found in response"
		if resp.Message != "" {
			detail = fmt.Sprintf("%s (%s)", detail, resp.Message)
		}
		return models.Location{}, c.upstream.fail(fmt.Errorf("%w: %s: %s", ErrAPI, c.name, detail))
	}
	return loc, nil
}

func (r geoResponse) location() (models.Location, bool) {
	city := strings.TrimSpace(r.City)
	if city == "" {
		return models.Location{}, false
	}

	switch {
	case r.CountryCodeA != "":
		return models.Location{
			City:        city,
			Country:     r.Country,
			CountryCode: strings.ToLower(r.CountryCodeA),
		}, true
	case r.CountryCodeB != "":
		country := r.CountryName
		if country == "" {
			country = r.Country
		}
		return models.Location{
			City:        city,
			Country:     country,
			CountryCode: strings.ToLower(r.CountryCodeB),
		}, true
	}
	return models.Location{}, false
}

func endpointName(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	return u.Host
}
