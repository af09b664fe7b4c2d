package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aescanero/shiptrack/internal/application/orchestrator"
	metrics "github.com/aescanero/shiptrack/pkg/adapters/metrics/prometheus"
	"github.com/aescanero/shiptrack/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTracker struct {
	mu        sync.Mutex
	resumes   map[domain.OrderID]int
	snapshots map[domain.OrderID]int
	stops     map[domain.OrderID]int
	resumeErr error
	progress  float64
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{
		resumes:   make(map[domain.OrderID]int),
		snapshots: make(map[domain.OrderID]int),
		stops:     make(map[domain.OrderID]int),
		progress:  0.25,
	}
}

func (t *fakeTracker) Resume(ctx context.Context, orderID domain.OrderID) (*domain.ShipmentSnapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resumes[orderID]++
	if t.resumeErr != nil {
		return nil, t.resumeErr
	}
	return &domain.ShipmentSnapshot{Progress: t.progress}, nil
}

func (t *fakeTracker) Snapshot(ctx context.Context, orderID domain.OrderID) (*domain.ShipmentSnapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snapshots[orderID]++
	return &domain.ShipmentSnapshot{Progress: t.progress}, nil
}

func (t *fakeTracker) StopPollingFor(orderID domain.OrderID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stops[orderID]++
}

func (t *fakeTracker) count(m map[domain.OrderID]int, orderID domain.OrderID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return m[orderID]
}

type fakeWatcher struct {
	id     string
	closed atomic.Bool
	full   atomic.Bool
	frames atomic.Int64
	mu     sync.Mutex
	last   []byte
}

func newWatcher(id string) *fakeWatcher {
	return &fakeWatcher{id: id}
}

func (w *fakeWatcher) ID() string  { return w.id }
func (w *fakeWatcher) Ready() bool { return !w.closed.Load() }

func (w *fakeWatcher) Send(frame []byte) error {
	if w.full.Load() {
		return errors.New("send buffer full")
	}
	w.frames.Add(1)
	w.mu.Lock()
	w.last = frame
	w.mu.Unlock()
	return nil
}

func (w *fakeWatcher) lastFrame() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

func newHub(tracker Tracker) *Hub {
	return New(tracker, metrics.NewCollector(prometheus.NewRegistry()), zap.NewNop())
}

func TestHub_FirstSubscribeResumes(t *testing.T) {
	tracker := newFakeTracker()
	h := newHub(tracker)
	a, b := newWatcher("a"), newWatcher("b")

	update, err := h.Subscribe(context.Background(), a, "1")
	require.NoError(t, err)
	require.NotNil(t, update)
	assert.Equal(t, domain.StatusInTransit, update.Status)
	assert.Equal(t, 1, tracker.count(tracker.resumes, "1"))

	update, err = h.Subscribe(context.Background(), b, "1")
	require.NoError(t, err)
	require.NotNil(t, update)
	assert.Equal(t, 1, tracker.count(tracker.resumes, "1"))
	assert.Equal(t, 1, tracker.count(tracker.snapshots, "1"))
	assert.Equal(t, 2, h.Watchers("1"))
}

func TestHub_SubscribeTwiceSameConnection(t *testing.T) {
	tracker := newFakeTracker()
	h := newHub(tracker)
	a := newWatcher("a")

	_, err := h.Subscribe(context.Background(), a, "1")
	require.NoError(t, err)
	_, err = h.Subscribe(context.Background(), a, "1")
	require.NoError(t, err)

	assert.Equal(t, 1, h.Watchers("1"))
	assert.Equal(t, 1, tracker.count(tracker.resumes, "1"))
}

func TestHub_SubscribeWithoutSimulationKeepsWatcher(t *testing.T) {
	tracker := newFakeTracker()
	tracker.resumeErr = fmt.Errorf("%w: no simulation for order 7", domain.ErrMissingRouteEndpoints)
	h := newHub(tracker)
	a := newWatcher("a")

	update, err := h.Subscribe(context.Background(), a, "7")
	require.NoError(t, err)
	assert.Nil(t, update)
	assert.Equal(t, 1, h.Watchers("7"))

	// Tracking starts later and its ticks reach the watcher.
	delivered := h.Broadcast("7", domain.TrackingUpdate{Status: domain.StatusPacking})
	assert.Equal(t, 1, delivered)
	assert.Equal(t, int64(1), a.frames.Load())
}

func TestHub_SubscribeRejectsInvalidOrder(t *testing.T) {
	tracker := newFakeTracker()
	tracker.resumeErr = fmt.Errorf("%w: order id is required", orchestrator.ErrInvalidRequest)
	h := newHub(tracker)

	_, err := h.Subscribe(context.Background(), newWatcher("a"), "")
	assert.ErrorIs(t, err, orchestrator.ErrInvalidRequest)
	assert.Zero(t, h.Watchers(""))
	assert.Zero(t, h.WatchedOrders())
}

func TestHub_WatchersOfSameOrderGetIdenticalFrames(t *testing.T) {
	h := newHub(newFakeTracker())
	a, b := newWatcher("a"), newWatcher("b")

	_, err := h.Subscribe(context.Background(), a, "1")
	require.NoError(t, err)
	_, err = h.Subscribe(context.Background(), b, "1")
	require.NoError(t, err)

	update := domain.TrackingUpdate{
		Location:  domain.NewGeoPoint(114.5, 30.5),
		Timestamp: 1700000000000,
		Status:    domain.StatusInTransit,
		Progress:  0.4,
	}
	assert.Equal(t, 2, h.Broadcast("1", update))
	require.NotEmpty(t, a.lastFrame())
	assert.Equal(t, a.lastFrame(), b.lastFrame())

	h.Unsubscribe(a, "1")
	aFrames, bFrames := a.frames.Load(), b.frames.Load()

	update.Progress = 0.5
	assert.Equal(t, 1, h.Broadcast("1", update))
	assert.Equal(t, aFrames, a.frames.Load())
	assert.Equal(t, bFrames+1, b.frames.Load())
}

func TestHub_LastUnsubscribeStopsPolling(t *testing.T) {
	tracker := newFakeTracker()
	h := newHub(tracker)
	a, b := newWatcher("a"), newWatcher("b")

	_, err := h.Subscribe(context.Background(), a, "1")
	require.NoError(t, err)
	_, err = h.Subscribe(context.Background(), b, "1")
	require.NoError(t, err)

	h.Unsubscribe(a, "1")
	assert.Zero(t, tracker.count(tracker.stops, "1"))

	h.Unsubscribe(b, "1")
	assert.Equal(t, 1, tracker.count(tracker.stops, "1"))

	// Unsubscribing again is a no-op.
	h.Unsubscribe(b, "1")
	assert.Equal(t, 1, tracker.count(tracker.stops, "1"))
	assert.Zero(t, h.WatchedOrders())
}

func TestHub_BroadcastSkipsClosedWatchers(t *testing.T) {
	h := newHub(newFakeTracker())
	open, closed, slow := newWatcher("open"), newWatcher("closed"), newWatcher("slow")
	closed.closed.Store(true)
	slow.full.Store(true)

	for _, w := range []*fakeWatcher{open, closed, slow} {
		_, err := h.Subscribe(context.Background(), w, "1")
		require.NoError(t, err)
	}

	update := domain.TrackingUpdate{Location: domain.NewGeoPoint(1, 2), Timestamp: 42, Status: domain.StatusInTransit, Progress: 0.5}
	assert.Equal(t, 1, h.Broadcast("1", update))
	assert.EqualValues(t, 1, open.frames.Load())
	assert.Zero(t, closed.frames.Load())
	// Closed watchers remain until cleanup.
	assert.Equal(t, 3, h.Watchers("1"))

	var frame domain.UpdateFrame
	require.NoError(t, json.Unmarshal(open.lastFrame(), &frame))
	assert.Equal(t, domain.FrameUpdate, frame.Type)
	assert.Equal(t, domain.OrderID("1"), frame.OrderID)
	assert.Equal(t, update, frame.Data)
}

func TestHub_BroadcastOnlyToOrderWatchers(t *testing.T) {
	h := newHub(newFakeTracker())
	a, b := newWatcher("a"), newWatcher("b")
	_, err := h.Subscribe(context.Background(), a, "1")
	require.NoError(t, err)
	_, err = h.Subscribe(context.Background(), b, "2")
	require.NoError(t, err)

	h.Broadcast("1", domain.TrackingUpdate{})
	assert.EqualValues(t, 1, a.frames.Load())
	assert.Zero(t, b.frames.Load())
	assert.Zero(t, h.Broadcast("unknown", domain.TrackingUpdate{}))
}

func TestHub_NoDeliveryAfterLastUnsubscribe(t *testing.T) {
	h := newHub(newFakeTracker())
	w := newWatcher("a")
	_, err := h.Subscribe(context.Background(), w, "1")
	require.NoError(t, err)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				h.Broadcast("1", domain.TrackingUpdate{})
			}
		}
	}()

	h.Unsubscribe(w, "1")
	after := w.frames.Load()
	for i := 0; i < 100; i++ {
		h.Broadcast("1", domain.TrackingUpdate{})
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, after, w.frames.Load())
}

func TestHub_CleanupConnection(t *testing.T) {
	tracker := newFakeTracker()
	h := newHub(tracker)
	a, b := newWatcher("a"), newWatcher("b")

	for _, id := range []domain.OrderID{"1", "2", "3"} {
		_, err := h.Subscribe(context.Background(), a, id)
		require.NoError(t, err)
	}
	_, err := h.Subscribe(context.Background(), b, "2")
	require.NoError(t, err)

	h.CleanupConnection(a)
	assert.Zero(t, h.Watchers("1"))
	assert.Equal(t, 1, h.Watchers("2"))
	assert.Zero(t, h.Watchers("3"))
	assert.Equal(t, 1, tracker.count(tracker.stops, "1"))
	assert.Zero(t, tracker.count(tracker.stops, "2"))
	assert.Equal(t, 1, tracker.count(tracker.stops, "3"))

	h.CleanupConnection(a)
	assert.Equal(t, 1, tracker.count(tracker.stops, "1"))
	assert.Equal(t, 1, h.WatchedOrders())
}

func TestHub_ConcurrentSubscribers(t *testing.T) {
	tracker := newFakeTracker()
	h := newHub(tracker)

	var wg sync.WaitGroup
	watchers := make([]*fakeWatcher, 50)
	for i := range watchers {
		watchers[i] = newWatcher(fmt.Sprintf("w%d", i))
		wg.Add(1)
		go func(w *fakeWatcher) {
			defer wg.Done()
			_, err := h.Subscribe(context.Background(), w, "1")
			assert.NoError(t, err)
		}(watchers[i])
	}
	wg.Wait()

	assert.Equal(t, 50, h.Watchers("1"))
	assert.Equal(t, 1, tracker.count(tracker.resumes, "1"))

	for _, w := range watchers {
		wg.Add(1)
		go func(w *fakeWatcher) {
			defer wg.Done()
			h.CleanupConnection(w)
		}(w)
	}
	wg.Wait()

	assert.Zero(t, h.Watchers("1"))
	assert.Equal(t, 1, tracker.count(tracker.stops, "1"))
}
