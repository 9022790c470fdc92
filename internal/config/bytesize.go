package config

import (
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
)

// ByteSize is a size in bytes written the way people write sizes ("64MiB",
// "1 MB", "4096"). It works as a YAML scalar and as a pflag.Value.
type ByteSize int64

func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

func (b *ByteSize) Set(s string) error {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return errors.Wrapf(err, "invalid size %q", s)
	}
	if n > 1<<62 {
		return errors.Newf("size %q is too large", s)
	}
	*b = ByteSize(n)
	return nil
}

func (b *ByteSize) Type() string {
	return "size"
}

func (b *ByteSize) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return b.Set(s)
}

func (b ByteSize) MarshalYAML() (interface{}, error) {
	return b.String(), nil
}
