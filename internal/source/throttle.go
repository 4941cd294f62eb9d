package source

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/sells-group/tender-scout/internal/pipeline"
)

// Throttled wraps an adapter and enforces a minimum delay between site
// interactions at the adapter boundary, so the pipeline stages never need
// their own rate logic. A zero delay passes every call straight through.
type Throttled struct {
	inner   Adapter
	limiter *rate.Limiter
}

// Throttle wraps a with a one-request-per-delay limiter. The first call is
// never delayed.
func Throttle(a Adapter, delay time.Duration) *Throttled {
	if delay <= 0 {
		return &Throttled{inner: a}
	}
	return &Throttled{
		inner:   a,
		limiter: rate.NewLimiter(rate.Every(delay), 1),
	}
}

func (t *Throttled) wait(ctx context.Context) error {
	if t.limiter == nil {
		return nil
	}
	return t.limiter.Wait(ctx)
}

func (t *Throttled) Name() string        { return t.inner.Name() }
func (t *Throttled) RequiresLogin() bool { return t.inner.RequiresLogin() }

func (t *Throttled) Login(ctx context.Context, creds Credentials) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	return t.inner.Login(ctx, creds)
}

func (t *Throttled) Search(ctx context.Context, keyword string, filters Filters) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	return t.inner.Search(ctx, keyword, filters)
}

func (t *Throttled) NextPage(ctx context.Context) (*Page, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	return t.inner.NextPage(ctx)
}

func (t *Throttled) ExtractRecord(ctx context.Context, row Row) (pipeline.RawRecord, error) {
	if err := t.wait(ctx); err != nil {
		return pipeline.RawRecord{}, err
	}
	return t.inner.ExtractRecord(ctx, row)
}
