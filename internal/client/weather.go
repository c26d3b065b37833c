package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/kjstillabower/local-briefing/internal/circuitbreaker"
	"github.com/kjstillabower/local-briefing/internal/models"
)

// DefaultWeatherURL is OpenWeatherMap's current-weather endpoint.
const DefaultWeatherURL = "https://api.openweathermap.org/data/2.5/weather"

type WeatherClient interface {
	GetCurrentWeather(ctx context.Context, city, countryCode string) (models.WeatherReading, error)
}

type OpenWeatherClient struct {
	apiKey   string
	apiURL   string
	upstream *upstream
}

func NewOpenWeatherClient(apiKey, apiURL string, opts Options) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if apiURL == "" {
		apiURL = DefaultWeatherURL
	}

	return &OpenWeatherClient{
		apiKey:   apiKey,
		apiURL:   apiURL,
		upstream: newUpstream(string(models.SourceWeather), opts),
	}, nil
}

// SetCircuitBreaker routes every call through cb. Pass nil to disable.
func (c *OpenWeatherClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.upstream.breaker = cb
}

// Pointers distinguish an absent object from a zero-valued one.
type openWeatherResponse struct {
	Main *struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Wind *struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Name string `json:"name"`
}

// GetCurrentWeather fetches current conditions for city in countryCode, in metric units.
// It never returns a partial reading.
func (c *OpenWeatherClient) GetCurrentWeather(ctx context.Context, city, countryCode string) (models.WeatherReading, error) {
	reqURL, err := c.buildRequest(city, countryCode)
	if err != nil {
		return models.WeatherReading{}, err
	}

	var owResp openWeatherResponse
	if err := c.upstream.getJSON(ctx, reqURL, &owResp); err != nil {
		return models.WeatherReading{}, err
	}

	reading, err := mapWeatherResponse(owResp)
	if err != nil {
		return models.WeatherReading{}, c.upstream.fail(err)
	}
	return reading, nil
}

func (c *OpenWeatherClient) buildRequest(city, countryCode string) (string, error) {
	u, err := url.Parse(c.apiURL)
	if err != nil {
		return "", fmt.Errorf("%w: invalid weather API URL: %w", ErrTransport, err)
	}

	q := city
	if countryCode != "" {
		q = city + "," + strings.ToLower(countryCode)
	}

	params := url.Values{}
	params.Set("q", q)
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")
	u.RawQuery = params.Encode()

	return u.String(), nil
}

func mapWeatherResponse(owResp openWeatherResponse) (models.WeatherReading, error) {
	if owResp.Main == nil || owResp.Wind == nil || owResp.Weather == nil {
		return models.WeatherReading{}, fmt.Errorf("%w: weather data not found in response", ErrAPI)
	}
	if len(owResp.Weather) == 0 {
		return models.WeatherReading{}, fmt.Errorf("%w: weather conditions missing from response", ErrAPI)
	}

	condition := owResp.Weather[0].Description
	if condition == "" {
		condition = owResp.Weather[0].Main
	}

	return models.WeatherReading{
		Temperature: owResp.Main.Temp,
		FeelsLike:   owResp.Main.FeelsLike,
		Condition:   condition,
		Humidity:    owResp.Main.Humidity,
		WindSpeed:   owResp.Wind.Speed,
	}, nil
}
