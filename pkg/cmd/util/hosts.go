package util

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	breverrors "github.com/nmlab/rigctl/pkg/errors"
	"github.com/nmlab/rigctl/pkg/terminal"
)

// RunOnHosts calls fn once per host, at most parallel at a time. A failing
// host does not stop the others; every failure is returned, in host order.
// A single host runs without progress output and its error is returned as is.
func RunOnHosts(ctx context.Context, t *terminal.Terminal, hosts []string, parallel int, fn func(ctx context.Context, host string) error) error {
	if len(hosts) == 1 {
		return fn(ctx, hosts[0])
	}
	if parallel <= 0 {
		parallel = 1
	}

	var mu sync.Mutex
	bar := t.NewProgressBar("hosts", len(hosts))
	errs := make([]error, len(hosts))

	var g errgroup.Group
	g.SetLimit(parallel)
	for i, host := range hosts {
		i, host := i, host
		g.Go(func() error {
			err := fn(ctx, host)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", host, err)
			}
			bar.Advance()
			return nil
		})
	}
	_ = g.Wait()

	var result error
	for i, err := range errs {
		if err == nil {
			continue
		}
		t.Eprintf("\n=== %s ===\n", hosts[i])
		t.Errprint(err, "")
		result = multierror.Append(result, err)
	}
	if result != nil {
		return breverrors.WrapAndTrace(result)
	}
	return nil
}
