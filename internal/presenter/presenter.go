// Package presenter renders briefings as plain text. Line builders are pure: the same
// input always yields the same lines.
package presenter

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kjstillabower/local-briefing/internal/models"
)

const errorRule = "---------------------------------"

// WeatherLines renders one weather reading, followed by a blank line.
func WeatherLines(loc models.Location, r models.WeatherReading) []string {
	return []string{
		"Weather in: " + loc.String(),
		"- Temperature: " + formatNumber(r.Temperature) + "°C",
		"- Feels like: " + formatNumber(r.FeelsLike) + "°C",
		"- Condition: " + r.Condition,
		"- Humidity: " + strconv.Itoa(r.Humidity) + "%",
		"- Wind Speed: " + formatNumber(r.WindSpeed) + " m/s",
		"",
	}
}

// NewsLines renders the headline list, followed by a blank line.
func NewsLines(posts []models.NewsPost) []string {
	lines := make([]string, 0, len(posts)+2)
	lines = append(lines, "Latest News Headlines:")
	for _, p := range posts {
		lines = append(lines, "- "+p.Title)
	}
	return append(lines, "")
}

// BriefingLines renders a briefing the way its policy reports it, starting with the
// location it was built for. A race briefing names the winner and shows only the
// winner's result.
func BriefingLines(b models.Briefing) []string {
	var lines []string
	if b.FellBack {
		lines = append(lines, "Location lookup failed upstream, showing "+b.Location.String()+" instead.", "")
	} else {
		lines = append(lines, "Detected location: "+b.Location.String())
	}

	switch {
	case b.Winner == models.SourceWeather:
		lines = append(lines, "The weather API won the race!", "First result to settle:")
		if b.Weather != nil {
			lines = append(lines, WeatherLines(b.Location, *b.Weather)...)
		}
		return lines
	case b.Winner == models.SourceNews:
		lines = append(lines, "The news API won the race!", "First result to settle:")
		return append(lines, NewsLines(b.News)...)
	case b.Policy == "all":
		lines = append(lines, "Both requests completed successfully and simultaneously.", "")
	}

	if b.Weather != nil {
		lines = append(lines, WeatherLines(b.Location, *b.Weather)...)
	}
	if b.News != nil {
		lines = append(lines, NewsLines(b.News)...)
	}
	return lines
}

// ErrorLines renders a failure of the named run.
func ErrorLines(context string, err error) []string {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return []string{
		fmt.Sprintf("Error in %s: %s", context, msg),
		errorRule,
	}
}

// SectionLines renders a section header underlined to its own width.
func SectionLines(title string) []string {
	header := "--- Running " + title + " ---"
	return []string{header, strings.Repeat("-", len([]rune(header)))}
}

// formatNumber prints the shortest representation that round-trips, so 21 prints as "21"
// and 21.37 as "21.37".
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Presenter writes rendered lines. Results go to out, failures to errOut.
type Presenter struct {
	out    io.Writer
	errOut io.Writer
}

func New(out, errOut io.Writer) *Presenter {
	if errOut == nil {
		errOut = out
	}
	return &Presenter{out: out, errOut: errOut}
}

func (p *Presenter) PrintSection(title string) error {
	return writeLines(p.out, SectionLines(title))
}

func (p *Presenter) PrintBriefing(b models.Briefing) error {
	return writeLines(p.out, BriefingLines(b))
}

func (p *Presenter) PrintError(context string, err error) error {
	return writeLines(p.errOut, ErrorLines(context, err))
}

func writeLines(w io.Writer, lines []string) error {
	for _, l := range lines {
		if _, err := io.WriteString(w, l+"\n"); err != nil {
			return err
		}
	}
	return nil
}
