package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobatlas/internal/ingest"
	"github.com/sells-group/jobatlas/internal/resilience"
	"github.com/sells-group/jobatlas/internal/source"
	"github.com/sells-group/jobatlas/internal/store"
	"github.com/sells-group/jobatlas/internal/throttle"
	"github.com/sells-group/jobatlas/pkg/geocode"
)

// appEnv bundles the wired collaborators a command needs. Callers should
// defer env.Close().
type appEnv struct {
	Store    store.Store
	Source   *source.Client
	Importer *ingest.Importer

	closers []func()
}

func (e *appEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// initEnv validates config and sets up the store, the upstream source
// client, the geocode resolver chain, and the importer.
func initEnv(ctx context.Context) (*appEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	env := &appEnv{}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env.Store = st
	env.closers = append(env.closers, func() { _ = st.Close() })

	if err := st.Migrate(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env.Source = source.NewClient(
		cfg.Source.BaseURL,
		cfg.Source.Country,
		cfg.Source.AppID,
		cfg.Source.AppKey,
		source.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Source.TimeoutSecs) * time.Second}),
		source.WithRateLimit(cfg.Source.RPS),
		source.WithBreaker(resilience.NewBreaker("source", 5, 30*time.Second)),
	)

	resolver, err := initResolver(ctx, env)
	if err != nil {
		env.Close()
		return nil, err
	}

	opts := []ingest.Option{ingest.WithQuery(cfg.Import.What, cfg.Import.Where)}
	if resolver != nil {
		opts = append(opts, ingest.WithResolver(resolver))
	}
	env.Importer = ingest.NewImporter(env.Source, env.Store, opts...)

	return env, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, eris.Wrap(err, "init postgres store")
		}
		zap.L().Info("using postgres store")
		return st, nil
	case "", "sqlite":
		st, err := store.NewSQLite(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, eris.Wrap(err, "init sqlite store")
		}
		zap.L().Info("using sqlite store", zap.String("path", cfg.Store.DatabaseURL))
		return st, nil
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initResolver builds the geocode provider cascade: Mapbox when a token is
// configured, Nominatim behind its throttle as the fallback.
func initResolver(ctx context.Context, env *appEnv) (*geocode.Resolver, error) {
	cache, err := initGeocodeCache(ctx, env)
	if err != nil {
		return nil, err
	}

	var providers []geocode.Provider

	if cfg.Geocode.MapboxToken != "" {
		providers = append(providers, geocode.NewMapboxProvider(
			cfg.Geocode.MapboxToken,
			geocode.WithMapboxBreaker(resilience.NewBreaker("mapbox", 5, 30*time.Second)),
		))
		zap.L().Info("mapbox geocoding enabled")
	} else {
		zap.L().Debug("mapbox token not set, primary geocoder disabled")
	}

	nm := cfg.Geocode.Nominatim
	th := throttle.New(nm.CallsPerInterval, time.Duration(nm.IntervalMS)*time.Millisecond)
	providers = append(providers, geocode.NewNominatimProvider(
		nm.UserAgent,
		th,
		geocode.WithNominatimBaseURL(nm.BaseURL),
		geocode.WithNominatimBreaker(resilience.NewBreaker("nominatim", 5, 30*time.Second)),
	))

	return geocode.NewResolver(cache, providers...), nil
}

func initGeocodeCache(ctx context.Context, env *appEnv) (geocode.Cache, error) {
	if cfg.Geocode.Cache.Driver != "redis" {
		return geocode.NewMemoryCache(), nil
	}
	rc, err := geocode.NewRedisCache(ctx, cfg.Geocode.Cache.RedisURL, 30*24*time.Hour)
	if err != nil {
		return nil, eris.Wrap(err, "init redis geocode cache")
	}
	env.closers = append(env.closers, func() { _ = rc.Close() })
	zap.L().Info("using redis geocode cache")
	return rc, nil
}
