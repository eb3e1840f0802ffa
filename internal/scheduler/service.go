package scheduler

import (
	"fmt"

	"github.com/alertaperu/community-alarm/internal/config"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Sweeper drops expired SOS intents
type Sweeper interface {
	SweepIntents() int
}

// Service handles scheduling of housekeeping tasks
type Service struct {
	config  *config.Config
	sweeper Sweeper
	cron    *cron.Cron
}

// NewService creates a new scheduler service
func NewService(cfg *config.Config, sweeper Sweeper) *Service {
	return &Service{
		config:  cfg,
		sweeper: sweeper,
		cron:    cron.New(cron.WithSeconds()),
	}
}

// Start begins the scheduled intent sweep
func (s *Service) Start() error {
	if s.config.IntentTTL <= 0 {
		logrus.Info("Intent expiry disabled, scheduler not started")
		return nil
	}

	_, err := s.cron.AddFunc(s.config.SweepSchedule, func() {
		removed := s.sweeper.SweepIntents()
		logrus.Debugf("Intent sweep finished, %d expired", removed)
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.config.SweepSchedule, err)
	}

	s.cron.Start()
	logrus.Infof("Scheduler started with sweep schedule %q", s.config.SweepSchedule)
	return nil
}

// Stop stops the scheduler
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		logrus.Info("Scheduler stopped")
	}
}
