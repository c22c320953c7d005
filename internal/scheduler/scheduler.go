package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/InOutLake/weatherio/internal/forecast"
)

// Monitor periodically reports store health and cache coverage. The refresh
// loop paces itself; this job is observability only.
type Monitor struct {
	scheduler *gocron.Scheduler
	store     forecast.Store
	interval  time.Duration
}

// NewMonitor creates a new Monitor.
func NewMonitor(store forecast.Store, interval time.Duration) *Monitor {
	s := gocron.NewScheduler(time.UTC)
	return &Monitor{
		scheduler: s,
		store:     store,
		interval:  interval,
	}
}

// Start schedules the periodic check and starts the underlying scheduler.
func (m *Monitor) Start() error {
	minutes := int(m.interval.Minutes())
	if minutes <= 0 {
		minutes = 5
	}

	_, err := m.scheduler.Every(minutes).Minutes().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := m.store.Health(ctx); err != nil {
			log.Printf("monitor: store health check failed: %v", err)
			return
		}

		stats, err := m.store.Stats(ctx)
		if err != nil {
			log.Printf("monitor: stats unavailable: %v", err)
			return
		}
		log.Printf("monitor: %d locations, %d without forecast, oldest fetch %s",
			stats.Locations, stats.MissingForecast, formatOldest(stats.OldestFetch))
	})
	if err != nil {
		return err
	}

	m.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (m *Monitor) Stop() {
	if m.scheduler != nil {
		m.scheduler.Stop()
	}
}

func formatOldest(t time.Time) string {
	if t.IsZero() {
		return "n/a"
	}
	return t.UTC().Format(time.RFC3339)
}
