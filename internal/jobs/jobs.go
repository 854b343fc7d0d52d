package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"geo_gate/internal/dataType"
	"geo_gate/internal/store"
)

// Reloader is implemented by the GeoIP resolver.
type Reloader interface {
	Reload() (bool, error)
}

type Options struct {
	UsageGCInterval time.Duration
	GeoIPReload     time.Duration
	Geo             Reloader
	// OnGeoReload runs after a new database file was swapped in.
	OnGeoReload func()
}

// Jobs runs the periodic maintenance of the gate: dropping old usage
// counters and picking up a replaced GeoIP database.
type Jobs struct {
	scheduler gocron.Scheduler
	usage     store.UsageStore
	opts      Options
	logger    *zap.Logger
	now       func() time.Time

	mu          sync.RWMutex
	lastCleanup time.Time
}

func NewJobs(usage store.UsageStore, opts Options, logger *zap.Logger) (*Jobs, error) {
	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Jobs{
		scheduler: scheduler,
		usage:     usage,
		opts:      opts,
		logger:    logger.With(zap.String("component", "jobs")),
		now:       time.Now,
	}, nil
}

// Start registers the jobs that have a positive interval and starts the scheduler.
func (j *Jobs) Start(ctx context.Context) error {
	if j.opts.UsageGCInterval > 0 && j.usage != nil {
		_, err := j.scheduler.NewJob(
			gocron.DurationJob(j.opts.UsageGCInterval),
			gocron.NewTask(
				func(ctx context.Context) {
					if _, err := j.RunUsageGC(ctx); err != nil {
						j.logger.Error("usage cleanup failed", zap.Error(err))
					}
				},
				ctx,
			),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return err
		}
	}

	if j.opts.GeoIPReload > 0 && j.opts.Geo != nil {
		_, err := j.scheduler.NewJob(
			gocron.DurationJob(j.opts.GeoIPReload),
			gocron.NewTask(j.RunGeoReload),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return err
		}
	}

	j.scheduler.Start()
	j.logger.Info("maintenance jobs started",
		zap.Duration("usage_gc_interval", j.opts.UsageGCInterval),
		zap.Duration("geoip_reload", j.opts.GeoIPReload))
	return nil
}

func (j *Jobs) Stop() error {
	if err := j.scheduler.Shutdown(); err != nil {
		j.logger.Error("failed to shutdown scheduler", zap.Error(err))
		return err
	}
	j.logger.Info("maintenance jobs stopped")
	return nil
}

// RunUsageGC removes counters older than the previous month.
func (j *Jobs) RunUsageGC(ctx context.Context) (int, error) {
	now := j.now()
	removed, err := j.usage.GC(ctx, OldestKeptMonth(now))
	if err != nil {
		return removed, err
	}
	j.mu.Lock()
	j.lastCleanup = now
	j.mu.Unlock()
	if removed > 0 {
		j.logger.Info("usage counters removed", zap.Int("count", removed))
	}
	return removed, nil
}

func (j *Jobs) RunGeoReload() {
	reloaded, err := j.opts.Geo.Reload()
	if err != nil {
		j.logger.Error("geoip reload failed", zap.Error(err))
		return
	}
	if !reloaded {
		return
	}
	j.logger.Info("geoip database reloaded")
	if j.opts.OnGeoReload != nil {
		j.opts.OnGeoReload()
	}
}

// LastCleanup is the time of the last successful usage cleanup, zero if none ran.
func (j *Jobs) LastCleanup() time.Time {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.lastCleanup
}

// OldestKeptMonth is the previous calendar month of now in UTC.
func OldestKeptMonth(now time.Time) string {
	t := now.UTC()
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return dataType.MonthKey(first.AddDate(0, -1, 0))
}
