package llmgateway

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// janitorParser accepts five-field expressions and descriptors such as "@every 1m"
var janitorParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Janitor purges expired cache entries on a cron schedule.
// Expired entries are already misses on lookup; sweeping only reclaims memory.
type Janitor struct {
	cron   *cron.Cron
	cache  *Cache
	logger zerolog.Logger
}

// NewJanitor validates the schedule and registers the sweep job
func NewJanitor(cache *Cache, schedule string, logger zerolog.Logger) (*Janitor, error) {
	if cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if schedule == "" {
		schedule = "@every 1m"
	}

	j := &Janitor{
		cron:   cron.New(cron.WithParser(janitorParser)),
		cache:  cache,
		logger: logger.With().Str("component", "cache_janitor").Logger(),
	}
	if _, err := j.cron.AddFunc(schedule, func() { j.Sweep() }); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return j, nil
}

// Start runs the schedule in the background
func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// Sweep purges expired entries once
func (j *Janitor) Sweep() int {
	removed := j.cache.PurgeExpired()
	if removed > 0 {
		j.logger.Debug().Int("removed", removed).Int("size", j.cache.Len()).Msg("Expired cache entries purged")
	}
	return removed
}
