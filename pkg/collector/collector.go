// Package collector fans embed references out over a bounded worker pool
// and gathers their streams.
package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/samber/lo"

	"embed-resolver-go/pkg/logging"
	"embed-resolver-go/pkg/match"
	"embed-resolver-go/pkg/types"
)

// Defaults used when Options leaves a field at zero.
const (
	DefaultConcurrency = 5
	DefaultMaxEmbeds   = 5
	DefaultTarget      = 10
)

const releaseTimeout = 5 * time.Second

// Resolver runs one embed through the pipeline. *pipeline.Pipeline satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, ref types.EmbedReference) ([]types.ResolvedStream, error)
}

// Options bounds a collection run.
type Options struct {
	Concurrency int
	MaxEmbeds   int
	// Target stops the run once this many streams are gathered.
	Target int
}

// Query narrows the embeds considered to one season and episode. Zero means any.
type Query struct {
	Season  int
	Episode int
}

// Collector resolves many embeds concurrently.
type Collector struct {
	resolver    Resolver
	log         *logging.Logger
	concurrency int
	maxEmbeds   int
	target      int
}

// New creates a collector.
func New(resolver Resolver, log *logging.Logger, opts Options) *Collector {
	c := &Collector{
		resolver:    resolver,
		log:         log.WithComponent("collector"),
		concurrency: opts.Concurrency,
		maxEmbeds:   opts.MaxEmbeds,
		target:      opts.Target,
	}
	if c.concurrency <= 0 {
		c.concurrency = DefaultConcurrency
	}
	if c.maxEmbeds <= 0 {
		c.maxEmbeds = DefaultMaxEmbeds
	}
	if c.target <= 0 {
		c.target = DefaultTarget
	}
	return c
}

// Filter drops references whose label names another season or episode.
// References without a label are kept.
func Filter(refs []types.EmbedReference, q Query) []types.EmbedReference {
	if q.Season <= 0 && q.Episode <= 0 {
		return refs
	}
	return lo.Filter(refs, func(r types.EmbedReference, _ int) bool {
		return r.Label == "" || match.Episode(r.Label, q.Season, q.Episode)
	})
}

// CollectEpisode filters refs by q and collects the rest.
func (c *Collector) CollectEpisode(ctx context.Context, refs []types.EmbedReference, q Query) ([]types.ResolvedStream, error) {
	return c.Collect(ctx, Filter(refs, q))
}

// Collect resolves at most maxEmbeds references with at most concurrency
// runs in flight. Once target streams are gathered no further runs start,
// runs still in flight are cancelled and their results dropped. Streams are
// deduplicated by URL; their order is completion order.
//
// Per-embed failures are logged and skipped. An error is returned only when
// the worker pool cannot be created.
func (c *Collector) Collect(ctx context.Context, refs []types.EmbedReference) ([]types.ResolvedStream, error) {
	refs = lo.UniqBy(refs, func(r types.EmbedReference) string { return r.URL })
	if len(refs) > c.maxEmbeds {
		refs = refs[:c.maxEmbeds]
	}
	if len(refs) == 0 {
		return nil, nil
	}

	pool, err := ants.NewPool(min(c.concurrency, len(refs)), ants.WithPanicHandler(func(p any) {
		c.log.Error("embed run panicked", "panic", fmt.Sprint(p))
	}))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	defer func() {
		if err := pool.ReleaseTimeout(releaseTimeout); err != nil {
			c.log.Warn("worker pool release timed out", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		out  []types.ResolvedStream
		seen = map[string]struct{}{}
	)

	run := func(ref types.EmbedReference) {
		defer wg.Done()
		if ctx.Err() != nil {
			return
		}

		start := time.Now()
		streams, err := c.resolver.Resolve(ctx, ref)
		if err != nil {
			c.log.Warn("embed failed", "embed", ref.URL, "error", err)
			return
		}

		mu.Lock()
		defer mu.Unlock()
		// results of runs abandoned after the target was reached are discarded
		if ctx.Err() != nil {
			return
		}
		added := 0
		for _, s := range streams {
			if _, dup := seen[s.URL]; dup {
				continue
			}
			seen[s.URL] = struct{}{}
			out = append(out, s)
			added++
		}
		c.log.Debug("embed collected", "embed", ref.URL, "streams", added, "duration", time.Since(start))
		if len(out) >= c.target {
			c.log.Debug("target reached", "target", c.target)
			cancel()
		}
	}

	for _, ref := range refs {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		if err := pool.Submit(func() { run(ref) }); err != nil {
			wg.Done()
			c.log.Warn("submit failed", "embed", ref.URL, "error", err)
		}
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	c.log.Info("collection finished", "embeds", len(refs), "streams", len(out))
	return out, nil
}
