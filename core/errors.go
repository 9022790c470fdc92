package core

import (
	"github.com/0xRadioAc7iv/go-kvs/internal/record"
	"github.com/cockroachdb/errors"
)

var (
	// ErrKeyNotFound is returned by Remove for a key that has no live value.
	ErrKeyNotFound = errors.New("Key not found")

	// ErrCorruptLog is returned when a sealed segment fails to decode or the
	// index points at something that is not the expected record. The store
	// must not be trusted after it.
	ErrCorruptLog = errors.New("corrupt log")

	// ErrIO marks filesystem failures. The underlying error stays in the chain.
	ErrIO = errors.New("storage I/O failure")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("engine is closed")

	// ErrTooLarge is returned by Set for a key or value longer
	// than 4GiB - 1.
	ErrTooLarge = record.ErrTooLarge
)

func ioError(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, format, args...), ErrIO)
}

func corruptionError(err error, format string, args ...interface{}) error {
	if err == nil {
		err = ErrCorruptLog
	}
	return errors.Mark(errors.Wrapf(err, format, args...), ErrCorruptLog)
}
