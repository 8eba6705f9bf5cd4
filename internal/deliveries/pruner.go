package deliveries

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/learnhub/payhook/internal/metrics"
)

// Pruner deletes deliveries older than the retention window on a cron
// schedule.
type Pruner struct {
	store     *Store
	retention time.Duration
	cron      *cron.Cron
	now       func() time.Time
}

// NewPruner creates a pruner for the given cron expression. Standard five
// field expressions and descriptors such as "@daily" are accepted.
func NewPruner(store *Store, schedule string, retention time.Duration) (*Pruner, error) {
	p := &Pruner{
		store:     store,
		retention: retention,
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		))),
		now: time.Now,
	}

	if _, err := p.cron.AddFunc(schedule, p.run); err != nil {
		return nil, fmt.Errorf("parsing prune schedule: %w", err)
	}

	return p, nil
}

// Start begins running on schedule.
func (p *Pruner) Start() {
	p.cron.Start()
	log.Info().
		Dur("retention", p.retention).
		Msg("Delivery pruner started")
}

// Stop waits for a running prune to finish.
func (p *Pruner) Stop() {
	ctx := p.cron.Stop()
	<-ctx.Done()
	log.Info().Msg("Delivery pruner stopped")
}

// PruneNow deletes expired deliveries immediately.
func (p *Pruner) PruneNow(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.retention)
	return p.store.Prune(ctx, cutoff)
}

func (p *Pruner) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := p.PruneNow(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to prune webhook deliveries")
		return
	}

	metrics.RecordPruned(n)
	if n > 0 {
		log.Info().Int64("deleted", n).Msg("Pruned webhook deliveries")
	}
}
