package httpmw

import (
	"context"
	"sync"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/keithlinneman/linnemanlabs-filegw/internal/log"
)

type capturedLog struct {
	level  string
	msg    string
	fields []any
}

// flatLogger captures With, Info and Warn calls. With returns the same
// logger so every call lands in one place.
type flatLogger struct {
	mu    sync.Mutex
	logs  []capturedLog
	withs [][]any
}

func newFlatLogger() *flatLogger { return &flatLogger{} }

func (l *flatLogger) With(kv ...any) log.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.withs = append(l.withs, kv)
	return l
}

func (l *flatLogger) record(level, msg string, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = append(l.logs, capturedLog{level: level, msg: msg, fields: kv})
}

func (l *flatLogger) Debug(_ context.Context, msg string, kv ...any) { l.record("debug", msg, kv) }
func (l *flatLogger) Info(_ context.Context, msg string, kv ...any)  { l.record("info", msg, kv) }
func (l *flatLogger) Warn(_ context.Context, msg string, kv ...any)  { l.record("warn", msg, kv) }
func (l *flatLogger) Error(_ context.Context, _ error, msg string, kv ...any) {
	l.record("error", msg, kv)
}
func (l *flatLogger) Sync() error { return nil }

func (l *flatLogger) last() (capturedLog, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.logs) == 0 {
		return capturedLog{}, false
	}
	return l.logs[len(l.logs)-1], true
}

func (l *flatLogger) lastWith() ([]any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.withs) == 0 {
		return nil, false
	}
	return l.withs[len(l.withs)-1], true
}

func (l *flatLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.logs)
}

func fieldValue(kv []any, key string) (any, bool) {
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i] == key {
			return kv[i+1], true
		}
	}
	return nil, false
}

// newRecordingSpan returns a context holding a live recording span. The
// provider is also installed globally so child spans land in the recorder.
func newRecordingSpan(t *testing.T, name string) (context.Context, *tracetest.SpanRecorder, func()) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	ctx, span := tp.Tracer("test").Start(context.Background(), name)
	return ctx, sr, func() { span.End() }
}
