package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alertaperu/community-alarm/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockMessageChannel is a mock implementation of the message channel
type MockMessageChannel struct {
	mock.Mock
}

func (m *MockMessageChannel) Send(ctx context.Context, target models.ExternalID, text string) error {
	args := m.Called(target, text)
	return args.Error(0)
}

// MockVoiceChannel is a mock implementation of the voice channel
type MockVoiceChannel struct {
	mock.Mock
}

func (m *MockVoiceChannel) Call(ctx context.Context, address, spokenText string) error {
	args := m.Called(address, spokenText)
	return args.Error(0)
}

// recordingChannel implements both channels and fails for selected recipients
type recordingChannel struct {
	mu      sync.Mutex
	sent    []string
	failFor map[string]bool
	delay   time.Duration

	inFlight    int32
	maxInFlight int32
}

func (r *recordingChannel) Send(ctx context.Context, target models.ExternalID, text string) error {
	return r.do(ctx, "chat:"+target.Normalize())
}

func (r *recordingChannel) Call(ctx context.Context, address, spokenText string) error {
	return r.do(ctx, "call:"+address)
}

func (r *recordingChannel) do(ctx context.Context, key string) error {
	n := atomic.AddInt32(&r.inFlight, 1)
	defer atomic.AddInt32(&r.inFlight, -1)
	for {
		peak := atomic.LoadInt32(&r.maxInFlight)
		if n <= peak || atomic.CompareAndSwapInt32(&r.maxInFlight, peak, n) {
			break
		}
	}

	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, key)
	if r.failFor[key] {
		return fmt.Errorf("transport error for %s", key)
	}
	return nil
}

func membersMessages(n int) []models.PerMemberMessage {
	var msgs []models.PerMemberMessage
	for i := 0; i < n; i++ {
		msgs = append(msgs, models.PerMemberMessage{
			Member: models.Member{
				ID:                 fmt.Sprintf("m%d", i),
				ExternalChatUserID: models.ExternalID(fmt.Sprint(100 + i)),
				DisplayName:        fmt.Sprintf("Member %d", i),
				Phone:              fmt.Sprintf("+51%d", i),
				OptedIn:            true,
			},
			ChatText:  "alert",
			VoiceText: "emergency",
		})
	}
	return msgs
}

var village = &models.Community{Name: "village", GroupChatTarget: "-100"}

func TestDispatch_OneFailureIsIsolated(t *testing.T) {
	channel := &recordingChannel{failFor: map[string]bool{"call:+512": true}}
	engine := New(channel, channel, WithWorkers(4))

	summary := engine.Dispatch(context.Background(), village, models.GroupMessage{Target: "-100", Text: "group"}, membersMessages(5))

	require.Len(t, summary.Outcomes, 1+2*5)
	assert.Equal(t, 10, summary.Sent)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Skipped)

	var failed []models.DispatchOutcome
	for _, o := range summary.Outcomes {
		if o.Failed() {
			failed = append(failed, o)
		}
	}
	require.Len(t, failed, 1)
	assert.Equal(t, models.ChannelVoiceCall, failed[0].Channel)
	assert.Equal(t, "Member 2 (m2)", failed[0].Recipient)
	assert.Contains(t, failed[0].Error, "transport error")

	assert.Len(t, channel.sent, 11, "every attempt was made despite the failure")
}

func TestDispatch_OutcomeOrder(t *testing.T) {
	channel := &recordingChannel{}
	engine := New(channel, channel)

	summary := engine.Dispatch(context.Background(), village, models.GroupMessage{Target: "-100"}, membersMessages(2))

	kinds := make([]models.ChannelKind, 0, len(summary.Outcomes))
	for _, o := range summary.Outcomes {
		kinds = append(kinds, o.Channel)
	}
	assert.Equal(t, []models.ChannelKind{
		models.ChannelGroupMessage,
		models.ChannelPrivateMessage, models.ChannelVoiceCall,
		models.ChannelPrivateMessage, models.ChannelVoiceCall,
	}, kinds)
	assert.Equal(t, "-100", summary.Outcomes[0].Recipient)
}

func TestDispatch_NoOpOutcomes(t *testing.T) {
	messages := &MockMessageChannel{}
	messages.On("Send", models.ExternalID("200"), "hi").Return(nil).Once()

	perMember := []models.PerMemberMessage{
		{Member: models.Member{ID: "x", DisplayName: "No contact"}, ChatText: "hi"},
		{Member: models.Member{ID: "y", DisplayName: "Chat only", ExternalChatUserID: "200"}, ChatText: "hi"},
	}

	engine := New(messages, nil)
	summary := engine.Dispatch(context.Background(), &models.Community{Name: "nogroup"}, models.GroupMessage{Text: "group"}, perMember)

	messages.AssertExpectations(t)
	require.Len(t, summary.Outcomes, 5)
	assert.Equal(t, 1, summary.Sent)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 4, summary.Skipped)

	assert.Equal(t, SkipNoGroupTarget, summary.Outcomes[0].Error)
	assert.Equal(t, SkipNoChatID, summary.Outcomes[1].Error)
	assert.Equal(t, SkipNoPhone, summary.Outcomes[2].Error)
	assert.True(t, summary.Outcomes[3].Success)
	assert.Equal(t, SkipNoPhone, summary.Outcomes[4].Error)
}

func TestDispatch_VoiceChannelNotConfigured(t *testing.T) {
	messages := &recordingChannel{}
	engine := New(messages, nil)

	summary := engine.Dispatch(context.Background(), village, models.GroupMessage{Target: "-100"}, membersMessages(1))

	require.Len(t, summary.Outcomes, 3)
	assert.True(t, summary.Outcomes[2].Skipped)
	assert.Equal(t, SkipNoVoice, summary.Outcomes[2].Error)
}

func TestDispatch_MockedVoiceFailure(t *testing.T) {
	messages := &MockMessageChannel{}
	messages.On("Send", mock.Anything, mock.Anything).Return(nil)
	voice := &MockVoiceChannel{}
	voice.On("Call", "+510", "emergency").Return(errors.New("twilio error 21211"))

	summary := New(messages, voice).Dispatch(context.Background(), village, models.GroupMessage{Target: "-100"}, membersMessages(1))

	messages.AssertNumberOfCalls(t, "Send", 2)
	voice.AssertExpectations(t)
	assert.Equal(t, 2, summary.Sent)
	assert.Equal(t, 1, summary.Failed)
}

func TestDispatch_TimeoutCountsAsFailure(t *testing.T) {
	channel := &recordingChannel{delay: time.Second}
	engine := New(channel, channel, WithTimeout(20*time.Millisecond))

	start := time.Now()
	summary := engine.Dispatch(context.Background(), village, models.GroupMessage{Target: "-100"}, nil)

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	require.Len(t, summary.Outcomes, 1)
	assert.True(t, summary.Outcomes[0].Failed())
	assert.Contains(t, summary.Outcomes[0].Error, context.DeadlineExceeded.Error())
}

func TestDispatch_RespectsWorkerLimit(t *testing.T) {
	channel := &recordingChannel{delay: 20 * time.Millisecond}
	engine := New(channel, channel, WithWorkers(3))

	summary := engine.Dispatch(context.Background(), village, models.GroupMessage{Target: "-100"}, membersMessages(6))

	assert.Equal(t, 13, summary.Sent)
	assert.LessOrEqual(t, atomic.LoadInt32(&channel.maxInFlight), int32(3))
	assert.Greater(t, atomic.LoadInt32(&channel.maxInFlight), int32(1), "attempts run concurrently")
}

type panickingChannel struct{}

func (panickingChannel) Send(ctx context.Context, target models.ExternalID, text string) error {
	panic("boom")
}

func TestDispatch_PanicIsContained(t *testing.T) {
	summary := New(panickingChannel{}, nil).Dispatch(context.Background(), village, models.GroupMessage{Target: "-100"}, nil)

	require.Len(t, summary.Outcomes, 1)
	assert.True(t, summary.Outcomes[0].Failed())
	assert.Contains(t, summary.Outcomes[0].Error, "panic: boom")
}

func TestDispatch_ReporterIsCalledButNotMessaged(t *testing.T) {
	channel := &recordingChannel{}
	perMember := membersMessages(2)
	perMember[0].IsReporter = true
	perMember[0].ChatText = ""

	summary := New(channel, channel).Dispatch(context.Background(), village, models.GroupMessage{Target: "-100"}, perMember)

	require.Len(t, summary.Outcomes, 5)
	assert.True(t, summary.Outcomes[1].Skipped)
	assert.Equal(t, SkipReporter, summary.Outcomes[1].Error)
	assert.True(t, summary.Outcomes[2].Success, "the reporter still gets the voice call")
	assert.Equal(t, 4, summary.Sent)
	assert.Equal(t, 1, summary.Skipped)
	assert.ElementsMatch(t, []string{"chat:-100", "call:+510", "chat:101", "call:+511"}, channel.sent)
}
