package extractor

import (
	"context"
	"time"

	"github.com/wessley-grants/ingestor/pkg/fn"
)

// geminiRetry mirrors original_source's tenacity policy: stop after 3
// attempts, exponential backoff starting at 4s up to a 60s ceiling.
var geminiRetry = fn.RetryOpts{
	MaxAttempts: 3,
	InitialWait: 4 * time.Second,
	MaxWait:     60 * time.Second,
	Jitter:      true,
}

func withRetry(ctx context.Context, f func(context.Context) error) error {
	result := fn.Retry(ctx, geminiRetry, func(ctx context.Context) fn.Result[struct{}] {
		if err := f(ctx); err != nil {
			return fn.Err[struct{}](err)
		}
		return fn.Ok(struct{}{})
	})
	_, err := result.Unwrap()
	return err
}
