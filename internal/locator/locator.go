package locator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/local-briefing/internal/cache"
	"github.com/kjstillabower/local-briefing/internal/client"
	"github.com/kjstillabower/local-briefing/internal/models"
	"github.com/kjstillabower/local-briefing/internal/observability"
)

const (
	cacheKey = "current"

	// SourceDefault and SourceCache label resolutions that did not come from an endpoint.
	SourceDefault = "default"
	SourceCache   = "cache"
)

// ErrUnresolved is returned by Refresh when every source failed.
var ErrUnresolved = errors.New("no geolocation source succeeded")

// Source is one geolocation endpoint. client.GeoClient implements it.
type Source interface {
	Name() string
	Lookup(ctx context.Context) (models.Location, error)
}

// Resolution is a located position plus how it was obtained.
type Resolution struct {
	Location  models.Location `json:"location"`
	Source    string          `json:"source"`
	FromCache bool            `json:"fromCache"`
	Defaulted bool            `json:"defaulted"`
}

// Locator resolves the caller's approximate location. Sources are probed strictly in
// order and the first success wins; when all fail the fallback location is returned.
// A Locator is safe for concurrent use.
type Locator struct {
	sources   []Source
	fallback  models.Location
	cache     cache.LocationCache
	cacheTTL  time.Duration
	coalescer *probeCoalescer
	logger    *zap.Logger
}

// New returns a Locator over sources. A zero fallback means models.DefaultLocation().
func New(sources []Source, fallback models.Location, logger *zap.Logger) *Locator {
	if fallback.IsZero() {
		fallback = models.DefaultLocation()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locator{
		sources:   sources,
		fallback:  fallback,
		coalescer: newProbeCoalescer(time.Minute),
		logger:    logger,
	}
}

// SetCache stores successful resolutions in c for ttl. Fallback results are never cached.
func (l *Locator) SetCache(c cache.LocationCache, ttl time.Duration) {
	l.cache = c
	l.cacheTTL = ttl
}

// Default returns the location used when every source fails.
func (l *Locator) Default() models.Location {
	return l.fallback
}

// Locate returns the resolved location. It never fails.
func (l *Locator) Locate(ctx context.Context) models.Location {
	return l.Resolve(ctx).Location
}

// Resolve returns the cached location if present, otherwise probes the sources.
func (l *Locator) Resolve(ctx context.Context) Resolution {
	if res, ok := l.fromCache(ctx); ok {
		observability.LocationResolutionsTotal.WithLabelValues("cached").Inc()
		return res
	}
	return l.resolve(ctx)
}

// Refresh probes the sources bypassing the cache and stores a successful result.
func (l *Locator) Refresh(ctx context.Context) error {
	if res := l.resolve(ctx); res.Defaulted {
		return ErrUnresolved
	}
	return nil
}

func (l *Locator) resolve(ctx context.Context) Resolution {
	res, _, err := l.coalescer.Do(ctx, cacheKey, func() Resolution {
		// Detached so one caller giving up does not cancel the probe for the others.
		probeCtx := context.WithoutCancel(ctx)
		res := l.probe(probeCtx)
		if res.Defaulted {
			observability.LocationResolutionsTotal.WithLabelValues("default").Inc()
			return res
		}
		observability.LocationResolutionsTotal.WithLabelValues("resolved").Inc()
		l.store(probeCtx, res.Location)
		return res
	})
	if err != nil {
		l.logger.Warn("location resolution abandoned, using default location",
			zap.Error(err),
			zap.String("location", l.fallback.String()),
		)
		return l.defaulted()
	}
	return res
}

func (l *Locator) probe(ctx context.Context) Resolution {
	for i, src := range l.sources {
		loc, err := src.Lookup(ctx)
		if err != nil {
			observability.GeolocationAttemptsTotal.WithLabelValues(src.Name(), "failure").Inc()
			l.logger.Warn("geolocation source failed",
				zap.String("endpoint", src.Name()),
				zap.Int("attempt", i+1),
				zap.String("category", string(client.CategorizeError(err))),
				zap.Error(err),
			)
			continue
		}

		observability.GeolocationAttemptsTotal.WithLabelValues(src.Name(), "success").Inc()
		l.logger.Info("location resolved",
			zap.String("endpoint", src.Name()),
			zap.String("location", loc.String()),
		)
		return Resolution{Location: loc, Source: src.Name()}
	}

	l.logger.Warn("all geolocation sources failed, using default location",
		zap.Int("sources", len(l.sources)),
		zap.String("location", l.fallback.String()),
	)
	return l.defaulted()
}

func (l *Locator) defaulted() Resolution {
	return Resolution{Location: l.fallback, Source: SourceDefault, Defaulted: true}
}

func (l *Locator) fromCache(ctx context.Context) (Resolution, bool) {
	if l.cache == nil {
		return Resolution{}, false
	}
	loc, ok, err := l.cache.Get(ctx, cacheKey)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		l.logger.Warn("location cache get failed", zap.Error(err))
		return Resolution{}, false
	}
	if !ok || loc.IsZero() {
		return Resolution{}, false
	}
	observability.CacheHitsTotal.WithLabelValues("location").Inc()
	return Resolution{Location: loc, Source: SourceCache, FromCache: true}, true
}

func (l *Locator) store(ctx context.Context, loc models.Location) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Set(ctx, cacheKey, loc, l.cacheTTL); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set").Inc()
		l.logger.Warn("location cache set failed", zap.Error(err))
	}
}
