package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/paysettle/paysettle/internal/shared/logger"
)

type recordingLogger struct {
	level string
	msgs  []string
}

func (r *recordingLogger) Debugw(msg string, _ ...interface{}) { r.record("debug", msg) }
func (r *recordingLogger) Infow(msg string, _ ...interface{})  { r.record("info", msg) }
func (r *recordingLogger) Warnw(msg string, _ ...interface{})  { r.record("warn", msg) }
func (r *recordingLogger) Errorw(msg string, _ ...interface{}) { r.record("error", msg) }

func (r *recordingLogger) With(...any) logger.Interface  { return r }
func (r *recordingLogger) Named(string) logger.Interface { return r }

func (r *recordingLogger) record(level, msg string) {
	r.level = level
	r.msgs = append(r.msgs, msg)
}

func TestFilteredLogger(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		wantLevel string
	}{
		{"schema probe dropped", "SELECT SCHEMA_NAME from Information_schema.SCHEMATA", ""},
		{"version probe dropped", "SELECT VERSION()", ""},
		{"error", "[error] record insert failed", "error"},
		{"slow", "SLOW SQL >= 200ms", "warn"},
		{"plain", "[1.2ms] SELECT * FROM orders", "debug"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingLogger{}
			l := &filteredLogger{log: rec}
			l.Printf("%s", tt.line)
			assert.Equal(t, tt.wantLevel, rec.level)
		})
	}
}

func TestGetBeforeInit(t *testing.T) {
	assert.Nil(t, Get())
	assert.NoError(t, Close())
}
