package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/alertaperu/community-alarm/internal/apperror"
	"github.com/alertaperu/community-alarm/internal/compose"
	"github.com/alertaperu/community-alarm/internal/config"
	"github.com/alertaperu/community-alarm/internal/correlation"
	"github.com/alertaperu/community-alarm/internal/metrics"
	"github.com/alertaperu/community-alarm/internal/models"
	"github.com/alertaperu/community-alarm/internal/notifications"
	"github.com/alertaperu/community-alarm/internal/resolver"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// StatusSent is reported for every accepted alert, whatever the delivery results
const StatusSent = "sent"

const reportTimeout = 30 * time.Second

// Directory resolves communities
type Directory interface {
	ResolveByName(ctx context.Context, name string) (*models.Community, error)
	ResolveByExternalChatID(ctx context.Context, chatID models.ExternalID) (*models.Community, error)
}

// Dispatcher fans an alert out to the channels
type Dispatcher interface {
	Dispatch(ctx context.Context, community *models.Community, group models.GroupMessage, perMember []models.PerMemberMessage) models.DispatchSummary
}

// Bot replies to chat commands
type Bot interface {
	Send(ctx context.Context, target models.ExternalID, text string) error
	SendLinkButton(ctx context.Context, chatID models.ExternalID, text, buttonText, url string) error
}

// Service handles alert submissions and SOS intents
type Service struct {
	config     *config.Config
	directory  Directory
	intents    *correlation.Table
	resolver   *resolver.Resolver
	composer   *compose.Composer
	dispatcher Dispatcher
	bot        Bot
	reporter   notifications.ReportChannel
	validate   *validator.Validate
	metrics    *Metrics
	mu         sync.RWMutex
	reports    sync.WaitGroup
}

// Metrics holds alerting metrics
type Metrics struct {
	TotalAlerts          int                       `json:"total_alerts"`
	RejectedAlerts       int                       `json:"rejected_alerts"`
	TotalIntents         int                       `json:"total_intents"`
	PendingIntents       int                       `json:"pending_intents"`
	LastAlert            time.Time                 `json:"last_alert"`
	LastDispatchDuration string                    `json:"last_dispatch_duration"`
	DeliveriesSent       int                       `json:"deliveries_sent"`
	DeliveriesFailed     int                       `json:"deliveries_failed"`
	DeliveriesSkipped    int                       `json:"deliveries_skipped"`
	ConfidenceBreakdown  map[models.Confidence]int `json:"confidence_breakdown"`
}

// NewService creates a new alerting service. reporter may be nil.
func NewService(cfg *config.Config, directory Directory, intents *correlation.Table, dispatcher Dispatcher, bot Bot, reporter notifications.ReportChannel, composer *compose.Composer) *Service {
	if composer == nil {
		composer = compose.New()
	}

	return &Service{
		config:     cfg,
		directory:  directory,
		intents:    intents,
		resolver:   resolver.New(intents),
		composer:   composer,
		dispatcher: dispatcher,
		bot:        bot,
		reporter:   reporter,
		validate:   validator.New(),
		metrics: &Metrics{
			ConfidenceBreakdown: make(map[models.Confidence]int),
		},
	}
}

// SubmitAlert validates, attributes and dispatches one alert.
// Only invalid input or an unknown/unreadable community fail the call.
func (s *Service) SubmitAlert(ctx context.Context, submission *models.AlertSubmission) (*models.AlertReceipt, error) {
	receipt, err := s.submitAlert(ctx, submission)
	if err != nil {
		s.recordRejection(err)
		return nil, err
	}
	return receipt, nil
}

func (s *Service) submitAlert(ctx context.Context, submission *models.AlertSubmission) (*models.AlertReceipt, error) {
	if submission == nil {
		return nil, apperror.InvalidInput("submit alert", fmt.Errorf("empty submission"))
	}

	submission.Community = strings.TrimSpace(submission.Community)
	submission.Description = strings.TrimSpace(submission.Description)
	if err := s.validate.Struct(submission); err != nil {
		return nil, apperror.InvalidInput("submit alert", err)
	}

	community, err := s.lookupCommunity(ctx, submission)
	if err != nil {
		return nil, err
	}

	log := logrus.WithField("community", community.Name)
	log.Infof("Alert received: %q", submission.Description)

	resolution := s.resolver.Resolve(submission, community)
	if resolution.Confidence == models.ConfidenceLow {
		log.Warnf("Alert attributed to %s with low confidence", resolution.Reporter.DisplayName)
	}

	group, perMember, err := s.composer.Compose(submission, community, resolution)
	if err != nil {
		return nil, fmt.Errorf("failed to compose alert for %s: %w", community.Name, err)
	}

	// delivery outlives the caller; each channel call keeps its own timeout
	summary := s.dispatcher.Dispatch(context.WithoutCancel(ctx), community, group, perMember)

	record := &models.AlertRecord{
		ID:         uuid.NewString(),
		Submission: *submission,
		Community:  community.Name,
		Resolution: resolution,
		Group:      group,
		Summary:    summary,
		CreatedAt:  group.SentAt,
	}

	s.updateMetrics(record)
	s.sendReport(record)

	log.Infof("Alert %s processed (reporter %s, %s)", record.ID, resolution.Reporter.DisplayName, resolution.Confidence)

	return &models.AlertReceipt{
		Status:     StatusSent,
		AlertID:    record.ID,
		Community:  community.Name,
		Confidence: resolution.Confidence,
		Summary:    &summary,
	}, nil
}

func (s *Service) lookupCommunity(ctx context.Context, submission *models.AlertSubmission) (*models.Community, error) {
	if submission.Community != "" {
		return s.directory.ResolveByName(ctx, submission.Community)
	}
	return s.directory.ResolveByExternalChatID(ctx, submission.ChatID)
}

// SignalIntent records that userID intends to raise an alert in the community bound to chatID
func (s *Service) SignalIntent(ctx context.Context, chatID, userID models.ExternalID) (*models.Community, error) {
	if chatID.IsZero() || userID.IsZero() {
		return nil, apperror.InvalidInput("signal intent", fmt.Errorf("chat id and user id are required"))
	}

	community, err := s.directory.ResolveByExternalChatID(ctx, chatID)
	if err != nil {
		return nil, err
	}

	s.intents.RecordIntent(community.Name, userID)
	metrics.IntentsTotal.Inc()
	metrics.PendingIntents.Set(float64(s.intents.Len()))

	s.mu.Lock()
	s.metrics.TotalIntents++
	s.mu.Unlock()

	logrus.WithField("community", community.Name).Infof("SOS intent recorded for user %s", userID.Normalize())
	return community, nil
}

// SweepIntents drops expired correlation entries
func (s *Service) SweepIntents() int {
	removed := s.intents.Sweep()
	metrics.PendingIntents.Set(float64(s.intents.Len()))
	if removed > 0 {
		logrus.Infof("Dropped %d expired SOS intents", removed)
	}
	return removed
}

// Close waits for in-flight operator reports
func (s *Service) Close() {
	s.reports.Wait()
}

func (s *Service) sendReport(record *models.AlertRecord) {
	if s.reporter == nil {
		return
	}

	s.reports.Add(1)
	go func() {
		defer s.reports.Done()

		ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
		defer cancel()

		if err := s.reporter.SendReport(ctx, record); err != nil {
			logrus.WithField("community", record.Community).Errorf("Failed to send operator report for alert %s: %v", record.ID, err)
			return
		}
		logrus.Debugf("Operator report sent for alert %s", record.ID)
	}()
}

func (s *Service) updateMetrics(record *models.AlertRecord) {
	metrics.AlertsTotal.WithLabelValues(string(record.Resolution.Confidence)).Inc()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.TotalAlerts++
	s.metrics.LastAlert = record.CreatedAt
	s.metrics.LastDispatchDuration = record.Summary.Duration
	s.metrics.DeliveriesSent += record.Summary.Sent
	s.metrics.DeliveriesFailed += record.Summary.Failed
	s.metrics.DeliveriesSkipped += record.Summary.Skipped
	s.metrics.ConfidenceBreakdown[record.Resolution.Confidence]++
}

func (s *Service) recordRejection(err error) {
	kind := string(apperror.KindOf(err))
	if kind == "" {
		kind = "internal"
	}
	metrics.AlertsRejectedTotal.WithLabelValues(kind).Inc()

	s.mu.Lock()
	s.metrics.RejectedAlerts++
	s.mu.Unlock()

	logrus.Warnf("Alert rejected (%s): %v", kind, err)
}

// GetMetrics returns current metrics as JSON
func (s *Service) GetMetrics() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := *s.metrics
	snapshot.PendingIntents = s.intents.Len()

	data, _ := json.MarshalIndent(snapshot, "", "  ")
	return string(data)
}
