package cache

import (
	"time"

	"github.com/sirupsen/logrus"
)

// ICounter receives one labelled event per lookup: (cache, key, source).
type ICounter interface {
	Inc(labels ...string)
}

// ITimer measures layer operations, labelled (layer, op, result).
type ITimer interface {
	Start() time.Time
	Done(start time.Time, labels ...string)
}

type noopCounter struct{}

func (noopCounter) Inc(...string) {}

type noopTimer struct{}

func (noopTimer) Start() time.Time          { return time.Time{} }
func (noopTimer) Done(time.Time, ...string) {}

func NewDummyCounter() ICounter { return noopCounter{} }

func NewDummyTimer() ITimer { return noopTimer{} }

var (
	counterLabels = []string{"cache", "key", "source"}
	timerLabels   = []string{"layer", "op", "result"}
)

func labelFields(names, values []string) logrus.Fields {
	fields := make(logrus.Fields, len(values))
	for i, value := range values {
		if i < len(names) {
			fields[names[i]] = value
		}
	}
	return fields
}

// LogCounter reports lookups as debug log entries.
type LogCounter struct {
	logger logrus.FieldLogger
}

func NewLogCounter(logger logrus.FieldLogger) *LogCounter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogCounter{logger: logger}
}

func (lc *LogCounter) Inc(labels ...string) {
	lc.logger.WithFields(labelFields(counterLabels, labels)).Debug("cache lookup")
}

// LogTimer reports layer round trips slower than threshold as debug log entries.
type LogTimer struct {
	logger    logrus.FieldLogger
	threshold time.Duration
}

func NewLogTimer(logger logrus.FieldLogger, threshold time.Duration) *LogTimer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogTimer{logger: logger, threshold: threshold}
}

func (lt *LogTimer) Start() time.Time {
	return time.Now()
}

func (lt *LogTimer) Done(start time.Time, labels ...string) {
	elapsed := time.Since(start)
	if elapsed < lt.threshold {
		return
	}
	lt.logger.WithFields(labelFields(timerLabels, labels)).WithField("duration", elapsed).Debug("cache layer operation")
}
