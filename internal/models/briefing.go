package models

import "time"

// Source identifies which upstream produced a result.
type Source string

const (
	SourceWeather Source = "weather"
	SourceNews    Source = "news"
)

// Briefing is the outcome of one orchestration run.
// Weather and News are both set for the sequential and wait-all policies; under the race
// policy only the winner's field is set and Winner names it.
type Briefing struct {
	ID       string          `json:"id"`
	Policy   string          `json:"policy"`
	Location Location        `json:"location"`
	Weather  *WeatherReading `json:"weather,omitempty"`
	News     []NewsPost      `json:"news,omitempty"`
	Winner   Source          `json:"winner,omitempty"`
	FellBack bool            `json:"fellBack,omitempty"` // result came from the default-location retry
	Duration time.Duration   `json:"durationNs"`
}
