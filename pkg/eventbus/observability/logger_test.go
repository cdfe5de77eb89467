package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHandler captures log records for testing.
type testHandler struct {
	buf   *bytes.Buffer
	level slog.Level
	attrs []slog.Attr
}

func newTestHandler() *testHandler {
	return &testHandler{
		buf:   &bytes.Buffer{},
		level: slog.LevelDebug,
	}
}

func (h *testHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *testHandler) Handle(_ context.Context, r slog.Record) error {
	data := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}
	for _, attr := range h.attrs {
		data[attr.Key] = attr.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})
	return json.NewEncoder(h.buf).Encode(data)
}

func (h *testHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &testHandler{
		buf:   h.buf,
		level: h.level,
		attrs: make([]slog.Attr, 0, len(h.attrs)+len(attrs)),
	}
	next.attrs = append(next.attrs, h.attrs...)
	next.attrs = append(next.attrs, attrs...)
	return next
}

func (h *testHandler) WithGroup(string) slog.Handler { return h }

func (h *testHandler) records() []map[string]any {
	var out []map[string]any
	for _, line := range bytes.Split(h.buf.Bytes(), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(line, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

func (h *testHandler) last() map[string]any {
	all := h.records()
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

func TestEnrichLogger(t *testing.T) {
	t.Run("adds bus_id", func(t *testing.T) {
		h := newTestHandler()
		enriched := EnrichLogger(slog.New(h), "bus-1")
		enriched.Info("hello")

		record := h.last()
		require.NotNil(t, record)
		assert.Equal(t, "bus-1", record["bus_id"])
		assert.Equal(t, "hello", record["msg"])
	})

	t.Run("nil logger returns nil", func(t *testing.T) {
		assert.Nil(t, EnrichLogger(nil, "bus-1"))
	})
}

func TestLogHelpers(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)

	LogRegister(logger, "*app.Audit", 3, 1)
	record := h.last()
	assert.Equal(t, "subscriber registered", record["msg"])
	assert.Equal(t, "*app.Audit", record["subscriber"])
	assert.Equal(t, float64(3), record["bindings"])
	assert.Equal(t, float64(1), record["sticky_delivered"])

	LogUnregister(logger, "*app.Audit", 3)
	assert.Equal(t, "subscriber unregistered", h.last()["msg"])

	LogDeadEvent(logger, "app.Tick")
	record = h.last()
	assert.Equal(t, "DEBUG", record["level"])
	assert.Equal(t, "app.Tick", record["event_type"])

	LogDeliveryFailure(logger, "app.Audit.OnTick", "app.Tick", "background", errors.New("boom"), true)
	record = h.last()
	assert.Equal(t, "ERROR", record["level"])
	assert.Equal(t, "boom", record["error"])
	assert.Equal(t, true, record["panicked"])
	assert.Equal(t, "background", record["delivery"])

	LogFailureSinkError(logger, "app.Audit.OnTick", errors.New("disk full"))
	assert.Equal(t, "WARN", h.last()["level"])

	LogSweep(logger, 2)
	assert.Equal(t, float64(2), h.last()["removed"])

	LogDropped(logger, "main", 4)
	record = h.last()
	assert.Equal(t, "main", record["where"])
	assert.Equal(t, float64(4), record["count"])

	assert.Len(t, h.records(), 7)
}

func TestLogHelpersSkipZeroCounts(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)

	LogSweep(logger, 0)
	LogDropped(logger, "pool", 0)
	assert.Empty(t, h.records())
}

func TestLogHelpersNilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		LogRegister(nil, "s", 1, 0)
		LogUnregister(nil, "s", 1)
		LogDeadEvent(nil, "e")
		LogDeliveryFailure(nil, "h", "e", "inline", errors.New("x"), false)
		LogFailureSinkError(nil, "h", errors.New("x"))
		LogSweep(nil, 1)
		LogDropped(nil, "main", 1)
	})
}

func TestTimedOperation(t *testing.T) {
	done := TimedOperation()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, done(), 5*time.Millisecond)
}
