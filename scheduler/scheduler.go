package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"reprojects/config"
)

// Triggerable allows workers to be triggered manually
type Triggerable interface {
	Trigger()
}

// Scheduler triggers the selector canary on a cron spec or a fixed interval.
// Cron wins when both are configured.
type Scheduler struct {
	cfg    config.SchedulerConfig
	canary Triggerable
	cron   *cron.Cron
	ticker *time.Ticker
	stopCh chan struct{}
}

func New(cfg config.SchedulerConfig, canary Triggerable) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		canary: canary,
		cron:   cron.New(),
		stopCh: make(chan struct{}),
	}
}

// Enabled reports whether any schedule is configured.
func (s *Scheduler) Enabled() bool {
	return s.cfg.Cron != "" || s.cfg.Interval > 0
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.Cron != "" {
		log.Printf("Starting canary schedule with cron: %s", s.cfg.Cron)
		_, err := s.cron.AddFunc(s.cfg.Cron, s.canary.Trigger)
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
	} else if s.cfg.Interval > 0 {
		log.Printf("Starting canary schedule with interval: %s", s.cfg.Interval)
		s.ticker = time.NewTicker(s.cfg.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					s.canary.Trigger()
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	} else {
		log.Println("No canary schedule configured, canary runs only when triggered")
	}

	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
}

// TriggerNow runs the canary outside the schedule
func (s *Scheduler) TriggerNow() {
	s.canary.Trigger()
}
