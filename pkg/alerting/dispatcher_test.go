package alerting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailwave/platform/telemetry-core-go/pkg/interfaces"
	"github.com/mailwave/platform/telemetry-core-go/pkg/models"
	"github.com/mailwave/platform/telemetry-core-go/pkg/resilience"
)

// fakeNotifier is a scriptable transport for one channel type.
type fakeNotifier struct {
	channelType models.ChannelType
	err         error

	mu    sync.Mutex
	sends []models.Channel
}

func (f *fakeNotifier) Type() models.ChannelType {
	return f.channelType
}

func (f *fakeNotifier) Send(ctx context.Context, alert *models.Alert, channel models.Channel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, channel)
	return f.err
}

func (f *fakeNotifier) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func fastDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Timeout: time.Second,
		Retry: resilience.RetryConfig{
			MaxAttempts:   2,
			BaseDelay:     time.Millisecond,
			MaxDelay:      5 * time.Millisecond,
			BackoffFactor: 2,
		},
		Breaker: resilience.BreakerConfig{
			FailureThreshold:    3,
			RecoveryTimeout:     time.Minute,
			HalfOpenMaxAttempts: 1,
		},
	}
}

func testAlert() *models.Alert {
	return &models.Alert{
		ID:       "alert-1",
		RuleID:   "rule-1",
		Message:  "High error rate: performance:error_rate is 0.1200 (threshold 0.0500)",
		Severity: models.AlertSeverityHigh,
	}
}

func TestDispatchDeliversToEveryChannel(t *testing.T) {
	email := &fakeNotifier{channelType: models.ChannelEmail}
	webhook := &fakeNotifier{channelType: models.ChannelWebhook}
	d := NewDispatcher([]interfaces.Notifier{email, webhook}, fastDispatcherConfig(), testLogger())

	d.Dispatch(context.Background(), testAlert(), []models.Channel{
		{Type: models.ChannelEmail, Config: map[string]string{"to": "ops@example.com"}},
		{Type: models.ChannelWebhook, Config: map[string]string{"url": "https://example.com/hook"}},
	})

	assert.Equal(t, 1, email.sendCount())
	assert.Equal(t, 1, webhook.sendCount())
}

func TestDispatchFailingChannelDoesNotBlockOthers(t *testing.T) {
	email := &fakeNotifier{channelType: models.ChannelEmail, err: &resilience.HTTPError{StatusCode: 503}}
	webhook := &fakeNotifier{channelType: models.ChannelWebhook}
	d := NewDispatcher([]interfaces.Notifier{email, webhook}, fastDispatcherConfig(), testLogger())

	d.Dispatch(context.Background(), testAlert(), []models.Channel{
		{Type: models.ChannelEmail},
		{Type: models.ChannelWebhook, Config: map[string]string{"url": "https://example.com/hook"}},
	})

	assert.Equal(t, 1, webhook.sendCount(), "healthy channels deliver despite a failing sibling")
}

func TestDispatchRetriesTransientFailures(t *testing.T) {
	email := &fakeNotifier{channelType: models.ChannelEmail, err: &resilience.HTTPError{StatusCode: 503}}
	d := NewDispatcher([]interfaces.Notifier{email}, fastDispatcherConfig(), testLogger())

	d.Dispatch(context.Background(), testAlert(), []models.Channel{{Type: models.ChannelEmail}})

	assert.Equal(t, 2, email.sendCount(), "transient failures consume the retry budget")
}

func TestDispatchFailsFastOnPermanentFailures(t *testing.T) {
	webhook := &fakeNotifier{channelType: models.ChannelWebhook, err: &resilience.HTTPError{StatusCode: 401}}
	d := NewDispatcher([]interfaces.Notifier{webhook}, fastDispatcherConfig(), testLogger())

	d.Dispatch(context.Background(), testAlert(), []models.Channel{{Type: models.ChannelWebhook}})

	assert.Equal(t, 1, webhook.sendCount(), "auth failures must not be retried")
}

func TestDispatchSkipsUnknownChannelType(t *testing.T) {
	email := &fakeNotifier{channelType: models.ChannelEmail}
	d := NewDispatcher([]interfaces.Notifier{email}, fastDispatcherConfig(), testLogger())

	d.Dispatch(context.Background(), testAlert(), []models.Channel{
		{Type: models.ChannelType("pager")},
		{Type: models.ChannelEmail},
	})

	assert.Equal(t, 1, email.sendCount(), "unknown channels are skipped, not fatal")
}

func TestDispatchOpensBreakerPerChannelType(t *testing.T) {
	email := &fakeNotifier{channelType: models.ChannelEmail, err: &resilience.HTTPError{StatusCode: 503}}
	webhook := &fakeNotifier{channelType: models.ChannelWebhook}
	d := NewDispatcher([]interfaces.Notifier{email, webhook}, fastDispatcherConfig(), testLogger())

	channels := []models.Channel{
		{Type: models.ChannelEmail},
		{Type: models.ChannelWebhook, Config: map[string]string{"url": "https://example.com/hook"}},
	}

	// Each delivery counts one breaker failure; the threshold is 3.
	for i := 0; i < 4; i++ {
		d.Dispatch(context.Background(), testAlert(), channels)
	}

	snapshots := d.BreakerSnapshots()
	states := make(map[string]resilience.BreakerState, len(snapshots))
	for _, snap := range snapshots {
		states[snap.Name] = snap.State
	}

	assert.Equal(t, resilience.StateOpen, states["notify:email"], "the failing transport trips its breaker")
	assert.Equal(t, resilience.StateClosed, states["notify:webhook"], "the healthy transport stays closed")

	// The open breaker fails fast: no further transport calls.
	sent := email.sendCount()
	d.Dispatch(context.Background(), testAlert(), channels)
	assert.Equal(t, sent, email.sendCount())
	assert.Equal(t, 5, webhook.sendCount())
}

func TestBreakerSnapshotsEmptyBeforeFirstDispatch(t *testing.T) {
	d := NewDispatcher(nil, fastDispatcherConfig(), testLogger())

	require.Empty(t, d.BreakerSnapshots())
}
