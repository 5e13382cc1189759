package notifier

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aetflow/aet-backend/internal/metrics"
	"github.com/aetflow/aet-backend/internal/models"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) count() int {
	return len(r.snapshot())
}

func quietLogger() *logrus.Entry {
	logger, _ := test.NewNullLogger()
	return logrus.NewEntry(logger)
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	n := New(WithLogger(quietLogger()))
	defer n.Close()

	a, b := &recorder{}, &recorder{}
	n.OnChange(a.handle)
	n.OnChange(b.handle)
	require.Equal(t, 2, n.SubscriberCount())

	n.Publish(LicenseUpdate("lic-1", models.StateMG, models.LicenseStatusCanceled))

	require.Eventually(t, func() bool { return a.count() == 1 && b.count() == 1 }, time.Second, 5*time.Millisecond)
	got := a.snapshot()[0]
	assert.Equal(t, EventLicenseUpdate, got.Type)
	assert.Equal(t, "lic-1", got.Data.LicenseID)
	assert.Equal(t, models.StateMG, got.Data.State)
	assert.Equal(t, "canceled", got.Data.Status)
	assert.False(t, got.Timestamp.IsZero())
}

func TestOrderPreservedPerSubscriber(t *testing.T) {
	n := New(WithLogger(quietLogger()), WithBufferSize(256))
	defer n.Close()

	r := &recorder{}
	n.OnChange(r.handle)

	states := []models.StateCode{models.StateMG, models.StateSP, models.StateGO, models.StateBA, models.StatePR}
	for _, s := range states {
		n.Publish(StatusUpdate("req-1", s, models.StateStatusApproved))
	}

	require.Eventually(t, func() bool { return r.count() == len(states) }, time.Second, 5*time.Millisecond)
	for i, e := range r.snapshot() {
		assert.Equal(t, states[i], e.Data.State)
	}
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	n := New(WithLogger(quietLogger()), WithBufferSize(1))

	release := make(chan struct{})
	n.OnChange(func(Event) { <-release })
	fast := &recorder{}
	n.OnChange(fast.handle)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			n.Publish(StatusUpdate("req", models.StateMG, models.StateStatusUnderReview))
			time.Sleep(time.Millisecond)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	require.Eventually(t, func() bool { return fast.count() >= 1 }, time.Second, 5*time.Millisecond)

	close(release)
	n.Close()
}

func TestPanickingSubscriberIsIsolated(t *testing.T) {
	n := New(WithLogger(quietLogger()))
	defer n.Close()

	n.OnChange(func(Event) { panic("boom") })
	r := &recorder{}
	n.OnChange(r.handle)

	n.Publish(StatusUpdate("req", models.StateSP, models.StateStatusApproved))
	n.Publish(StatusUpdate("req", models.StateRJ, models.StateStatusApproved))

	require.Eventually(t, func() bool { return r.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	n := New(WithLogger(quietLogger()))
	defer n.Close()

	r := &recorder{}
	unsubscribe := n.OnChange(r.handle)
	n.Publish(StatusUpdate("req", models.StateMG, models.StateStatusApproved))
	require.Eventually(t, func() bool { return r.count() == 1 }, time.Second, 5*time.Millisecond)

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, n.SubscriberCount())

	n.Publish(StatusUpdate("req", models.StateMG, models.StateStatusCanceled))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, r.count())
}

func TestLateSubscriberMissesEarlierEvents(t *testing.T) {
	n := New(WithLogger(quietLogger()))
	defer n.Close()

	n.Publish(StatusUpdate("req", models.StateMG, models.StateStatusApproved))

	r := &recorder{}
	n.OnChange(r.handle)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, r.count())
}

func TestFullQueueDropsAndCounts(t *testing.T) {
	m := metrics.NewMetrics("aet_test", prometheus.NewRegistry())
	logger, hook := test.NewNullLogger()
	n := New(WithLogger(logrus.NewEntry(logger)), WithBufferSize(1), WithMetrics(m))

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	n.OnChange(func(Event) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	})

	n.Publish(StatusUpdate("req", models.StateMG, models.StateStatusApproved))
	<-started
	n.Publish(StatusUpdate("req", models.StateMG, models.StateStatusApproved))
	n.Publish(StatusUpdate("req", models.StateMG, models.StateStatusApproved))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsDropped))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues(string(EventStatusUpdate))))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	close(release)
	n.Close()
}

func TestCloseDrainsAndRejects(t *testing.T) {
	n := New(WithLogger(quietLogger()))
	r := &recorder{}
	n.OnChange(r.handle)

	for i := 0; i < 5; i++ {
		n.Publish(StatusUpdate("req", models.StateMG, models.StateStatusApproved))
	}
	n.Close()
	assert.Equal(t, 5, r.count())

	n.Publish(StatusUpdate("req", models.StateMG, models.StateStatusApproved))
	unsubscribe := n.OnChange(r.handle)
	unsubscribe()
	assert.Equal(t, 5, r.count())
	assert.Equal(t, 0, n.SubscriberCount())
}
