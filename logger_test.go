package stattracker_test

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"

	"github.com/FiskLee/stattracker"
	"github.com/stretchr/testify/assert"
)

// recordingLogger counts calls per level.
type recordingLogger struct {
	mu   sync.Mutex
	msgs map[string][]string
}

func (l *recordingLogger) add(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.msgs == nil {
		l.msgs = make(map[string][]string)
	}
	l.msgs[level] = append(l.msgs[level], msg)
}

func (l *recordingLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.msgs[level])
}

func (l *recordingLogger) Info(msg string, _ ...any)  { l.add("info", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.add("warn", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.add("error", msg) }
func (l *recordingLogger) Debug(msg string, _ ...any) { l.add("debug", msg) }

func TestSlogLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	log := stattracker.NewSlogLogger(slog.New(h))

	log.Debug("dbg", "k", 1)
	log.Info("inf", "k", 2)
	log.Warn("wrn", "k", 3)
	log.Error("err", "k", 4)

	out := buf.String()
	assert.Contains(t, out, "level=DEBUG msg=dbg k=1")
	assert.Contains(t, out, "level=INFO msg=inf k=2")
	assert.Contains(t, out, "level=WARN msg=wrn k=3")
	assert.Contains(t, out, "level=ERROR msg=err k=4")
}

func TestSlogLogger_NilUsesDefault(t *testing.T) {
	assert.NotPanics(t, func() { stattracker.NewSlogLogger(nil).Debug("quiet") })
}

func TestVersion(t *testing.T) {
	assert.Equal(t, stattracker.BuildDate+"-"+stattracker.BuildEnv, stattracker.Version())
	assert.Equal(t, 1, stattracker.FormatVersion)
}
