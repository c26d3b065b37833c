package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjstillabower/local-briefing/internal/client"
	"github.com/kjstillabower/local-briefing/internal/locator"
	"github.com/kjstillabower/local-briefing/internal/models"
	"github.com/kjstillabower/local-briefing/internal/observability"
)

// Locator is the subset of locator.Locator the service needs.
type Locator interface {
	Resolve(ctx context.Context) locator.Resolution
	Default() models.Location
}

// BriefingService composes location, weather and news under a Policy.
// It holds no mutable state; concurrent Run calls are independent.
type BriefingService struct {
	locator Locator
	weather client.WeatherClient
	news    client.NewsClient
	logger  *zap.Logger
}

func NewBriefingService(loc Locator, weather client.WeatherClient, news client.NewsClient, logger *zap.Logger) *BriefingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BriefingService{
		locator: loc,
		weather: weather,
		news:    news,
		logger:  logger,
	}
}

type weatherResult struct {
	reading models.WeatherReading
	err     error
}

type newsResult struct {
	posts []models.NewsPost
	err   error
}

// Run resolves the location and runs policy for it. If that fails and the location was
// not already the default, the same policy runs once more for the default location.
func (s *BriefingService) Run(ctx context.Context, policy Policy) (models.Briefing, error) {
	start := time.Now()
	logger := observability.LoggerFromContext(ctx, s.logger)

	res := s.locator.Resolve(ctx)
	b, err := s.runPolicy(ctx, policy, res.Location)
	if err == nil {
		b.Duration = time.Since(start)
		observability.RecordBriefing(policy.String(), "success", b.Duration)
		return b, nil
	}

	fallback := s.locator.Default()
	if res.Defaulted || res.Location == fallback || ctx.Err() != nil {
		observability.RecordBriefing(policy.String(), "failure", time.Since(start))
		return models.Briefing{}, err
	}

	logger.Warn("briefing failed, retrying with default location",
		zap.String("policy", policy.String()),
		zap.String("location", res.Location.String()),
		zap.String("fallback", fallback.String()),
		zap.Error(err),
	)
	b, err = s.runPolicy(ctx, policy, fallback)
	if err != nil {
		observability.RecordBriefing(policy.String(), "failure", time.Since(start))
		return models.Briefing{}, err
	}
	b.FellBack = true
	b.Duration = time.Since(start)
	observability.RecordBriefing(policy.String(), "fallback_success", b.Duration)
	return b, nil
}

// RunAt runs policy for an explicit location, without fallback.
func (s *BriefingService) RunAt(ctx context.Context, policy Policy, loc models.Location) (models.Briefing, error) {
	start := time.Now()
	b, err := s.runPolicy(ctx, policy, loc)
	if err != nil {
		observability.RecordBriefing(policy.String(), "failure", time.Since(start))
		return models.Briefing{}, err
	}
	b.Duration = time.Since(start)
	observability.RecordBriefing(policy.String(), "success", b.Duration)
	return b, nil
}

func (s *BriefingService) runPolicy(ctx context.Context, policy Policy, loc models.Location) (models.Briefing, error) {
	b := models.Briefing{
		ID:       uuid.NewString(),
		Policy:   policy.String(),
		Location: loc,
	}

	var err error
	switch policy {
	case PolicySequential:
		err = s.sequential(ctx, loc, &b)
	case PolicyAll:
		err = s.all(ctx, loc, &b)
	case PolicyRace:
		err = s.race(ctx, loc, &b)
	default:
		return models.Briefing{}, fmt.Errorf("%w: %d", ErrUnknownPolicy, int(policy))
	}
	if err != nil {
		observability.LoggerFromContext(ctx, s.logger).Debug("policy failed",
			zap.String("policy", policy.String()),
			zap.String("location", loc.String()),
			zap.Error(err),
		)
		return models.Briefing{}, err
	}
	return b, nil
}

func (s *BriefingService) sequential(ctx context.Context, loc models.Location, b *models.Briefing) error {
	reading, err := s.weather.GetCurrentWeather(ctx, loc.City, loc.CountryCode)
	if err != nil {
		return fmt.Errorf("fetch weather for %s: %w", loc, err)
	}
	b.Weather = &reading

	posts, err := s.news.GetPosts(ctx)
	if err != nil {
		return fmt.Errorf("fetch news: %w", err)
	}
	b.News = posts
	return nil
}

// all waits for both fetches. The first failure cancels the sibling and fails the pair.
func (s *BriefingService) all(ctx context.Context, loc models.Location, b *models.Briefing) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	weatherCh, newsCh := s.start(ctx, loc)

	var reading *models.WeatherReading
	var posts []models.NewsPost
	for reading == nil || posts == nil {
		select {
		case r := <-weatherCh:
			if r.err != nil {
				return fmt.Errorf("fetch weather for %s: %w", loc, r.err)
			}
			reading = &r.reading
			weatherCh = nil
		case r := <-newsCh:
			if r.err != nil {
				return fmt.Errorf("fetch news: %w", r.err)
			}
			posts = r.posts
			if posts == nil {
				posts = []models.NewsPost{}
			}
			newsCh = nil
		}
	}

	b.Weather = reading
	b.News = posts
	return nil
}

// race returns whichever fetch settles first, success or failure. Unlike a bare
// first-response race, the loser is not left running: its context is canceled and its
// result discarded. Breakers ignore context.Canceled, so a canceled loser is not
// counted as an upstream failure.
func (s *BriefingService) race(ctx context.Context, loc models.Location, b *models.Briefing) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	weatherCh, newsCh := s.start(ctx, loc)

	select {
	case r := <-weatherCh:
		b.Winner = models.SourceWeather
		observability.RaceWinnersTotal.WithLabelValues(string(models.SourceWeather)).Inc()
		if r.err != nil {
			return fmt.Errorf("fetch weather for %s: %w", loc, r.err)
		}
		b.Weather = &r.reading
	case r := <-newsCh:
		b.Winner = models.SourceNews
		observability.RaceWinnersTotal.WithLabelValues(string(models.SourceNews)).Inc()
		if r.err != nil {
			return fmt.Errorf("fetch news: %w", r.err)
		}
		b.News = r.posts
	}
	return nil
}

// start launches both fetches. Channels are buffered so neither goroutine blocks
// once the caller stops listening.
func (s *BriefingService) start(ctx context.Context, loc models.Location) (<-chan weatherResult, <-chan newsResult) {
	weatherCh := make(chan weatherResult, 1)
	newsCh := make(chan newsResult, 1)

	go func() {
		reading, err := s.weather.GetCurrentWeather(ctx, loc.City, loc.CountryCode)
		weatherCh <- weatherResult{reading: reading, err: err}
	}()
	go func() {
		posts, err := s.news.GetPosts(ctx)
		newsCh <- newsResult{posts: posts, err: err}
	}()

	return weatherCh, newsCh
}
