package streambus

import (
	"context"
	"time"
)

const defaultPollInterval = 50 * time.Millisecond

// Resolver finds advertised streams.
type Resolver struct {
	dir          *Directory
	pollInterval time.Duration
}

// NewResolver returns a Resolver over dir.
func NewResolver(dir *Directory) *Resolver {
	return &Resolver{dir: dir, pollInterval: defaultPollInterval}
}

// Resolve polls the directory until at least one stream whose prop
// equals value is advertised or timeout elapses. A timeout is not an
// error: it yields an empty result.
func (r *Resolver) Resolve(ctx context.Context, prop, value string, timeout time.Duration) ([]Info, error) {
	deadline := time.Now().Add(timeout)
	for {
		infos, err := r.dir.List()
		if err != nil {
			return nil, err
		}
		var matches []Info
		for _, info := range infos {
			if info.Match(prop, value) {
				matches = append(matches, info)
			}
		}
		if len(matches) > 0 {
			return matches, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		wait := r.pollInterval
		if remaining < wait {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
