package refresh

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/InOutLake/weatherio/internal/forecast"
)

// Coordinator keeps every registered location's cached series fresh. It
// runs cycle after cycle on its own goroutine: page through the store,
// batch each page into a single upstream call, write results back in input
// order, then sleep whatever is left of the period. Request traffic reads
// the store directly and never waits on it.
type Coordinator struct {
	store    forecast.Store
	fetcher  forecast.Fetcher
	period   time.Duration
	pageSize int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Coordinator. Non-positive period and pageSize fall back to
// 15 minutes and 100, the upstream batch granularity.
func New(store forecast.Store, fetcher forecast.Fetcher, period time.Duration, pageSize int) *Coordinator {
	if period <= 0 {
		period = 15 * time.Minute
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Coordinator{
		store:    store,
		fetcher:  fetcher,
		period:   period,
		pageSize: pageSize,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// Start launches the refresh loop. It returns immediately; the loop runs
// until Stop is called.
func (c *Coordinator) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx)
}

// Stop signals the loop to exit and waits for it, bounded by ctx. A cycle
// in progress is abandoned at the next page boundary; pages already written
// stay written.
func (c *Coordinator) Stop(ctx context.Context) error {
	if c.cancel == nil {
		return nil
	}
	c.cancel()
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) run(ctx context.Context) {
	defer close(c.done)

	for {
		start := c.now()
		c.safeCycle(ctx)
		if ctx.Err() != nil {
			return
		}

		// Self-pace to the period: a cycle that overran starts the next one
		// immediately, never a negative sleep.
		wait := c.period - c.now().Sub(start)
		if wait < 0 {
			wait = 0
		}
		if err := c.sleep(ctx, wait); err != nil {
			return
		}
	}
}

// safeCycle contains any failure inside one cycle: a broken cycle must
// never take the loop down.
func (c *Coordinator) safeCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("refresh: cycle panicked: %v", r)
		}
	}()

	if err := c.RunCycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("refresh: cycle failed: %v", err)
	}
}

// RunCycle performs one full pass over all registered locations. Pages are
// independent: a failed page is skipped and the rest of the cycle
// continues.
func (c *Coordinator) RunCycle(ctx context.Context) error {
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, next, err := c.store.ListLocationPage(ctx, cursor, c.pageSize)
		if err != nil {
			return fmt.Errorf("list locations: %w", err)
		}
		if len(page) > 0 {
			c.refreshPage(ctx, page)
		}
		if next == "" {
			return nil
		}
		cursor = next
	}
}

// refreshPage fetches and writes one page. result[i] corresponds to
// page[i]; a response whose length diverges from the request is a
// data-integrity fault and skips the page like any other failure, leaving
// the previous cached series in place.
func (c *Coordinator) refreshPage(ctx context.Context, page []forecast.LocationRef) {
	coords := make([]forecast.Coordinates, len(page))
	for i, ref := range page {
		coords[i] = ref.Coordinates
	}

	series, err := c.fetcher.FetchMany(ctx, coords, forecast.HorizonHours)
	if err != nil {
		log.Printf("refresh: page of %d locations skipped: %v", len(page), err)
		return
	}
	if len(series) != len(page) {
		log.Printf("refresh: upstream returned %d series for %d locations; page skipped", len(series), len(page))
		return
	}

	for i, ref := range page {
		if err := c.store.WriteForecast(ctx, ref.ID, series[i]); err != nil {
			log.Printf("refresh: write failed for %s: %v", ref.ID, err)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
