package core

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/sirupsen/logrus"
)

type options struct {
	fs                 vfs.FS
	logger             logrus.FieldLogger
	metrics            *Metrics
	maxSegmentSize     int64
	compactionRatio    float64
	minCompactionBytes int64
	autoCompaction     bool
}

func defaultOptions() options {
	return options{
		fs:                 vfs.Default,
		logger:             logrus.StandardLogger(),
		maxSegmentSize:     DefaultMaxSegmentSize,
		compactionRatio:    DefaultCompactionRatio,
		minCompactionBytes: DefaultMinCompactionBytes,
		autoCompaction:     true,
	}
}

func (o options) validate() error {
	if o.fs == nil {
		return errors.New("filesystem must not be nil")
	}
	if o.logger == nil {
		return errors.New("logger must not be nil")
	}
	if o.maxSegmentSize <= 0 {
		return errors.Newf("max segment size must be positive, got %d", o.maxSegmentSize)
	}
	if o.compactionRatio <= 0 || o.compactionRatio > 1 {
		return errors.Newf("compaction ratio must be in (0, 1], got %v", o.compactionRatio)
	}
	if o.minCompactionBytes < 0 {
		return errors.Newf("min compaction bytes must not be negative, got %d", o.minCompactionBytes)
	}
	return nil
}

// Option configures an Engine.
type Option func(*options)

// WithFS sets the filesystem segments live on. Defaults to vfs.Default.
func WithFS(fs vfs.FS) Option {
	return func(o *options) {
		o.fs = fs
	}
}

// WithLogger sets the logger. Defaults to logrus.StandardLogger().
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics makes the engine report into m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithMaxSegmentSize sets the size at which the active segment is rotated.
func WithMaxSegmentSize(n int64) Option {
	return func(o *options) {
		o.maxSegmentSize = n
	}
}

// WithCompactionRatio sets the stale-to-total byte ratio that triggers
// compaction.
func WithCompactionRatio(ratio float64) Option {
	return func(o *options) {
		o.compactionRatio = ratio
	}
}

// WithMinCompactionBytes sets how many stale bytes must accumulate before the
// ratio is considered at all.
func WithMinCompactionBytes(n int64) Option {
	return func(o *options) {
		o.minCompactionBytes = n
	}
}

// WithoutAutoCompaction disables the compaction trigger. Compact still works.
func WithoutAutoCompaction() Option {
	return func(o *options) {
		o.autoCompaction = false
	}
}
