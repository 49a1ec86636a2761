package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm/logger"
)

func newTestLogger(level logger.LogLevel) (logger.Interface, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	l := logrus.New()
	l.SetOutput(buf)
	l.SetLevel(logrus.DebugLevel)

	base := &LogrusLogger{logger: l, slowThreshold: 200 * time.Millisecond}
	return base.LogMode(level), buf
}

func TestLogrusLogger_Trace(t *testing.T) {
	sql := func() (string, int64) { return "SELECT 1", 1 }

	t.Run("silent", func(t *testing.T) {
		l, buf := newTestLogger(logger.Silent)
		l.Trace(context.Background(), time.Now(), sql, errors.New("boom"))
		assert.Empty(t, buf.String())
	})

	t.Run("errors at warn level", func(t *testing.T) {
		l, buf := newTestLogger(logger.Warn)
		l.Trace(context.Background(), time.Now(), sql, errors.New("boom"))
		assert.Contains(t, buf.String(), "boom")
	})

	t.Run("fast queries hidden at warn level", func(t *testing.T) {
		l, buf := newTestLogger(logger.Warn)
		l.Trace(context.Background(), time.Now(), sql, nil)
		assert.Empty(t, buf.String())
	})

	t.Run("slow queries", func(t *testing.T) {
		l, buf := newTestLogger(logger.Warn)
		l.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)
		assert.Contains(t, buf.String(), "SLOW SQL")
	})
}
