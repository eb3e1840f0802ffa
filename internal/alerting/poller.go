package alerting

import (
	"context"
	"time"

	"github.com/alertaperu/community-alarm/internal/notifications"
	"github.com/sirupsen/logrus"
)

const (
	pollTimeout = 30 * time.Second
	pollBackoff = 5 * time.Second
)

// UpdateSource long-polls the bot API for updates
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]notifications.Update, error)
}

// Poll feeds updates from source into HandleUpdate until ctx is cancelled
func (s *Service) Poll(ctx context.Context, source UpdateSource) {
	s.poll(ctx, source, pollBackoff)
}

func (s *Service) poll(ctx context.Context, source UpdateSource, backoff time.Duration) {
	logrus.Info("Starting Telegram long polling")
	var offset int64

	for {
		if ctx.Err() != nil {
			logrus.Info("Telegram polling stopped")
			return
		}

		updates, err := source.GetUpdates(ctx, offset, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				logrus.Info("Telegram polling stopped")
				return
			}
			logrus.Errorf("Failed to fetch Telegram updates: %v", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			if err := s.HandleUpdate(ctx, update); err != nil {
				logrus.Errorf("Failed to handle update %d: %v", update.UpdateID, err)
			}
		}
	}
}
