// Package dispatch fans composed alert payloads out across the notification channels.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/alertaperu/community-alarm/internal/apperror"
	"github.com/alertaperu/community-alarm/internal/metrics"
	"github.com/alertaperu/community-alarm/internal/models"
	"github.com/alertaperu/community-alarm/internal/notifications"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	defaultWorkers = 8
	defaultTimeout = 10 * time.Second
)

// Skip reasons recorded on no-op outcomes
const (
	SkipNoGroupTarget = "community has no group chat configured"
	SkipNoChatID      = "member has no chat id"
	SkipNoPhone       = "member has no phone number"
	SkipNoVoice       = "voice channel not configured"
	SkipReporter      = "member reported the alert"
)

// Engine delivers alerts best-effort: every attempt is isolated and recorded, none is retried
type Engine struct {
	messages notifications.MessageChannel
	voice    notifications.VoiceChannel
	workers  int
	timeout  time.Duration
}

// Option customizes an Engine
type Option func(*Engine)

// WithWorkers caps the number of concurrent channel calls
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithTimeout bounds every individual channel call
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// New creates an engine. voice may be nil when calls are not configured.
func New(messages notifications.MessageChannel, voice notifications.VoiceChannel, opts ...Option) *Engine {
	e := &Engine{
		messages: messages,
		voice:    voice,
		workers:  defaultWorkers,
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type task struct {
	channel   models.ChannelKind
	recipient string
	skip      string
	send      func(ctx context.Context) error
}

// Dispatch sends the group message and, per member, a private message and a voice call.
// It always returns a summary; channel failures never surface as an error.
func (e *Engine) Dispatch(ctx context.Context, community *models.Community, group models.GroupMessage, perMember []models.PerMemberMessage) models.DispatchSummary {
	start := time.Now()
	tasks := e.plan(group, perMember)
	outcomes := make([]models.DispatchOutcome, len(tasks))

	var g errgroup.Group
	g.SetLimit(e.workers)

	for i, t := range tasks {
		i, t := i, t
		if t.skip != "" {
			outcomes[i] = models.DispatchOutcome{Channel: t.channel, Recipient: t.recipient, Skipped: true, Error: t.skip}
			continue
		}
		g.Go(func() error {
			outcomes[i] = e.attempt(ctx, community.Name, t)
			return nil
		})
	}
	_ = g.Wait()

	summary := models.DispatchSummary{
		Community: community.Name,
		Outcomes:  outcomes,
		Duration:  time.Since(start).String(),
	}
	summary.Tally()

	for _, outcome := range outcomes {
		metrics.DeliveriesTotal.WithLabelValues(string(outcome.Channel), result(outcome)).Inc()
	}
	metrics.DispatchDurationSeconds.Observe(time.Since(start).Seconds())

	logrus.WithField("community", community.Name).Infof("Dispatch finished in %s: %d sent, %d failed, %d skipped",
		summary.Duration, summary.Sent, summary.Failed, summary.Skipped)

	return summary
}

func (e *Engine) plan(group models.GroupMessage, perMember []models.PerMemberMessage) []task {
	tasks := make([]task, 0, 1+2*len(perMember))

	groupTask := task{channel: models.ChannelGroupMessage, recipient: group.Target.Normalize()}
	if group.Target.IsZero() {
		groupTask.skip = SkipNoGroupTarget
	} else {
		groupTask.send = func(ctx context.Context) error {
			return e.messages.Send(ctx, group.Target, group.Text)
		}
	}
	tasks = append(tasks, groupTask)

	for _, msg := range perMember {
		msg := msg
		label := recipientLabel(msg.Member)

		private := task{channel: models.ChannelPrivateMessage, recipient: label}
		switch {
		case msg.IsReporter:
			private.skip = SkipReporter
		case msg.Member.ExternalChatUserID.IsZero():
			private.skip = SkipNoChatID
		default:
			private.send = func(ctx context.Context) error {
				return e.messages.Send(ctx, msg.Member.ExternalChatUserID, msg.ChatText)
			}
		}

		voice := task{channel: models.ChannelVoiceCall, recipient: label}
		switch {
		case msg.Member.Phone == "":
			voice.skip = SkipNoPhone
		case e.voice == nil:
			voice.skip = SkipNoVoice
		default:
			voice.send = func(ctx context.Context) error {
				return e.voice.Call(ctx, msg.Member.Phone, msg.VoiceText)
			}
		}

		tasks = append(tasks, private, voice)
	}

	return tasks
}

func (e *Engine) attempt(ctx context.Context, community string, t task) (outcome models.DispatchOutcome) {
	outcome = models.DispatchOutcome{Channel: t.channel, Recipient: t.recipient}
	log := logrus.WithFields(logrus.Fields{
		"community": community,
		"channel":   t.channel,
		"recipient": t.recipient,
	})

	defer func() {
		if r := recover(); r != nil {
			err := apperror.ChannelFailure("dispatch", fmt.Errorf("panic: %v", r))
			log.Errorf("Notification attempt panicked: %v", err)
			outcome.Success = false
			outcome.Error = err.Error()
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := t.send(callCtx); err != nil {
		err = apperror.ChannelFailure(string(t.channel), err)
		log.Errorf("Notification failed: %v", err)
		outcome.Error = err.Error()
		return outcome
	}

	log.Debug("Notification delivered")
	outcome.Success = true
	return outcome
}

func recipientLabel(member models.Member) string {
	switch {
	case member.DisplayName != "" && member.ID != "":
		return fmt.Sprintf("%s (%s)", member.DisplayName, member.ID)
	case member.DisplayName != "":
		return member.DisplayName
	default:
		return member.ID
	}
}

func result(outcome models.DispatchOutcome) string {
	switch {
	case outcome.Success:
		return "sent"
	case outcome.Skipped:
		return "skipped"
	default:
		return "failed"
	}
}
