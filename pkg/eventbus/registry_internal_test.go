package eventbus

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/eventbus/pkg/eventbus/loop"
)

type loopEvent struct{ N int }

var loopEventType = TypeOf[loopEvent]()

type loopSubscriber struct {
	_ Handlers `subscribe:"OnEvent"`
	n int
}

func (s *loopSubscriber) OnEvent(loopEvent) { s.n++ }

func newInternalBus(t *testing.T) *Bus {
	t.Helper()
	b := New(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(func() { _ = b.Close(context.Background()) })
	return b
}

// registerOn registers sub from a job running on l.
func registerOn(t *testing.T, b *Bus, l *loop.Loop, sub any) {
	t.Helper()
	errc := make(chan error, 1)
	require.NoError(t, l.Post(func(ctx context.Context) { errc <- b.Register(ctx, sub) }))
	require.NoError(t, <-errc)
}

func TestUnregisterClearsDefaultLoop(t *testing.T) {
	b := newInternalBus(t)
	ui := loop.New("ui")
	t.Cleanup(func() { _ = ui.Close(context.Background()) })

	sub := &loopSubscriber{}
	registerOn(t, b, ui, sub)
	r, err := subscriberRef(sub)
	require.NoError(t, err)

	got, ok := b.subs.defaultLoop(r)
	require.True(t, ok)
	assert.Same(t, ui, got)

	assert.Equal(t, 1, b.Unregister(sub))
	_, ok = b.subs.defaultLoop(r)
	assert.False(t, ok)
	assert.Equal(t, 0, b.subs.defaults.Len())
	runtime.KeepAlive(sub)
}

func TestRegisterFromMainLoopRecordsMainLoop(t *testing.T) {
	b := newInternalBus(t)
	sub := &loopSubscriber{}
	registerOn(t, b, b.MainLoop(), sub)

	r, err := subscriberRef(sub)
	require.NoError(t, err)
	got, ok := b.subs.defaultLoop(r)
	require.True(t, ok)
	assert.Same(t, b.MainLoop(), got)
	runtime.KeepAlive(sub)
}

func registerTransientOn(t *testing.T, b *Bus, l *loop.Loop) {
	t.Helper()
	registerOn(t, b, l, &loopSubscriber{})
}

func TestSweepClearsDefaultLoopOfCollectedSubscriber(t *testing.T) {
	b := newInternalBus(t)
	ui := loop.New("ui")
	t.Cleanup(func() { _ = ui.Close(context.Background()) })

	live := &loopSubscriber{}
	registerOn(t, b, ui, live)
	registerTransientOn(t, b, ui)
	require.Equal(t, 2, b.subs.defaults.Len())

	assert.Eventually(t, func() bool {
		runtime.GC()
		return len(b.Subscriptions(loopEventType)) == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, b.Unregister(nil))
	assert.Equal(t, 1, b.subs.defaults.Len(), "only the live subscriber keeps its loop")

	r, err := subscriberRef(live)
	require.NoError(t, err)
	_, ok := b.subs.defaultLoop(r)
	assert.True(t, ok)
	runtime.KeepAlive(live)
}
