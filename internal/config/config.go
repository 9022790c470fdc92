// Package config holds the settings of the kvs binaries and loads them from
// YAML files.
package config

import (
	"io"
	"os"
	"time"

	"github.com/0xRadioAc7iv/go-kvs/core"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/oserror"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// MinSegmentSize keeps configured segments from degenerating into one file
// per record.
const MinSegmentSize = 4 * core.OneKilobyte

// Config is the kvs-server configuration. The zero value is not useful; start
// from Default.
type Config struct {
	Addr        string `yaml:"addr"`
	Dir         string `yaml:"dir"`
	MetricsAddr string `yaml:"metrics_addr"`

	// PortAttempts is how many consecutive ports are tried when Addr is taken.
	PortAttempts int `yaml:"port_attempts"`

	Log     LogConfig     `yaml:"log"`
	Storage StorageConfig `yaml:"storage"`
}

type StorageConfig struct {
	MaxSegmentSize     ByteSize `yaml:"max_segment_size"`
	CompactionRatio    float64  `yaml:"compaction_ratio"`
	MinCompactionBytes ByteSize `yaml:"min_compaction_bytes"`
	AutoCompaction     bool     `yaml:"auto_compaction"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() Config {
	return Config{
		Addr:         "127.0.0.1:9999",
		Dir:          ".",
		PortAttempts: 10,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Storage: StorageConfig{
			MaxSegmentSize:     core.DefaultMaxSegmentSize,
			CompactionRatio:    core.DefaultCompactionRatio,
			MinCompactionBytes: core.DefaultMinCompactionBytes,
			AutoCompaction:     true,
		},
	}
}

// Load reads the YAML file at path over the defaults. A missing file is an
// error; unknown keys are rejected.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if oserror.IsNotExist(err) {
			return Config{}, errors.Wrapf(err, "config file %s does not exist", path)
		}
		return Config{}, errors.Wrapf(err, "opening config %s", path)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return Config{}, errors.Wrapf(err, "loading %s", path)
	}
	return cfg, nil
}

// Parse decodes YAML from r over the defaults and validates the result.
func Parse(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, errors.Wrap(err, "reading config")
	}

	cfg := Default()
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parsing config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr must be set")
	}
	if c.Dir == "" {
		return errors.New("dir must be set")
	}
	if c.PortAttempts < 1 {
		return errors.Newf("port_attempts must be at least 1, got %d", c.PortAttempts)
	}
	if c.Storage.MaxSegmentSize < MinSegmentSize {
		return errors.Newf("max_segment_size must be at least %s, got %s", ByteSize(MinSegmentSize), c.Storage.MaxSegmentSize)
	}
	if r := c.Storage.CompactionRatio; r <= 0 || r > 1 {
		return errors.Newf("compaction_ratio must be in (0, 1], got %v", r)
	}
	if _, err := c.Log.level(); err != nil {
		return err
	}
	if _, err := c.Log.formatter(); err != nil {
		return err
	}
	return nil
}

// EngineOptions translates the storage section into engine options.
func (c Config) EngineOptions(logger logrus.FieldLogger, metrics *core.Metrics) []core.Option {
	opts := []core.Option{
		core.WithLogger(logger),
		core.WithMaxSegmentSize(int64(c.Storage.MaxSegmentSize)),
		core.WithCompactionRatio(c.Storage.CompactionRatio),
		core.WithMinCompactionBytes(int64(c.Storage.MinCompactionBytes)),
	}
	if metrics != nil {
		opts = append(opts, core.WithMetrics(metrics))
	}
	if !c.Storage.AutoCompaction {
		opts = append(opts, core.WithoutAutoCompaction())
	}
	return opts
}

// NewLogger builds a logger writing to out with the configured level and
// format.
func (l LogConfig) NewLogger(out io.Writer) (*logrus.Logger, error) {
	level, err := l.level()
	if err != nil {
		return nil, err
	}
	formatter, err := l.formatter()
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(level)
	logger.SetFormatter(formatter)
	return logger, nil
}

func (l LogConfig) level() (logrus.Level, error) {
	level, err := logrus.ParseLevel(l.Level)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid log level %q", l.Level)
	}
	return level, nil
}

func (l LogConfig) formatter() (logrus.Formatter, error) {
	switch l.Format {
	case "text", "":
		return &logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339}, nil
	case "json":
		return &logrus.JSONFormatter{}, nil
	default:
		return nil, errors.Newf("invalid log format %q, want text or json", l.Format)
	}
}
