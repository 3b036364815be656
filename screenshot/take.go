package screenshot

import (
	"context"
	"fmt"

	"go2tv.app/screenshot/internal/fsx"
)

// Take runs one session to completion on behalf of an owner. outputDir is
// checked for write access first; if that fails the session is never
// created and ErrStorageNotWritable is returned. A nil Looper or Registry in
// cfg is replaced with a private one. Cancelling ctx abandons the session.
//
// The returned error is Result.Err for failed sessions.
func Take(ctx context.Context, outputDir string, cfg Config) (Result, error) {
	if err := fsx.CheckWritable(outputDir); err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", ErrStorageNotWritable, outputDir, err)
	}
	if cfg.Looper == nil {
		cfg.Looper = NewLooper()
		defer cfg.Looper.Close()
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}

	c, err := NewController(cfg)
	if err != nil {
		return Result{}, err
	}
	c.Start(ctx)

	select {
	case <-c.Done():
	case <-ctx.Done():
		c.Abandon()
		<-c.Done()
		return c.Result(), ctx.Err()
	}

	res := c.Result()
	return res, res.Err
}
