package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tender-scout/internal/config"
	"github.com/sells-group/tender-scout/internal/driver"
	"github.com/sells-group/tender-scout/internal/model"
	"github.com/sells-group/tender-scout/internal/resilience"
	"github.com/sells-group/tender-scout/internal/session"
	"github.com/sells-group/tender-scout/internal/source"
	"github.com/sells-group/tender-scout/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "tender-scout.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initOrchestrator builds an orchestrator on top of st wired from the
// loaded config: registered adapters, a Chrome driver factory, per-source
// credentials, and the retry policy.
func initOrchestrator(st store.Store) *session.Orchestrator {
	retry := resilience.DefaultRetryConfig()
	if cfg.Scrape.MaxRetries > 0 {
		retry.MaxAttempts = cfg.Scrape.MaxRetries
	}

	return session.New(session.Options{
		Store:    st,
		Registry: source.DefaultRegistry(),
		NewDriver: func(ctx context.Context) (driver.PageDriver, error) {
			return driver.NewChrome(ctx, driver.Options{
				Headless:         cfg.Scrape.Headless,
				OperationTimeout: cfg.Scrape.NavigationTimeout(),
			})
		},
		Credentials: func(src string) (source.Credentials, error) {
			creds, err := cfg.Credentials(src)
			if err != nil {
				return source.Credentials{}, err
			}
			return source.Credentials{Username: creds.Username, Password: creds.Password}, nil
		},
		Retry: retry,
	})
}

// openStore is the common command preamble: open the configured store and
// run migrations.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// loadProfile resolves the effective profile for a scrape: the config
// default, optionally replaced by a profile file and a keyword override.
func loadProfile(profilePath string, keywords []string) (model.Profile, error) {
	profile := cfg.Profile
	if profilePath != "" {
		p, err := config.LoadProfile(profilePath)
		if err != nil {
			return model.Profile{}, err
		}
		profile = p
	}
	if len(keywords) > 0 {
		profile.Keywords = keywords
	}
	return profile, nil
}

// fmtDuration renders a session duration for table output.
func fmtDuration(start time.Time, end *time.Time) string {
	if end == nil {
		return time.Since(start).Round(time.Second).String() + "+"
	}
	return end.Sub(start).Round(time.Second).String()
}
