package core

import (
	"github.com/0xRadioAc7iv/go-kvs/internal/record"
	"github.com/0xRadioAc7iv/go-kvs/internal/segment"
	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
)

// recoverSegments rebuilds the KeyDir by replaying every segment in dir,
// oldest first. A torn tail in the newest segment is cut off; corruption
// anywhere else is fatal. The newest segment is reopened for appends if it is
// below the rotation size.
func (e *Engine) recoverSegments() error {
	gens, err := segment.List(e.fs, e.dir)
	if err != nil {
		return ioError(err, "recovering %s", e.dir)
	}

	for i, gen := range gens {
		seg, err := segment.Open(e.fs, e.dir, gen)
		if err != nil {
			return ioError(err, "recovering segment %d", gen)
		}
		e.segments[gen] = seg
		e.nextGen = gen + 1

		last := i == len(gens)-1
		if err := e.replay(seg, last); err != nil {
			return err
		}
		e.totalBytes += seg.Size()
	}

	if len(gens) == 0 {
		return nil
	}
	return e.resumeLast(e.segments[gens[len(gens)-1]])
}

// resumeLast makes the newest segment active again when it still has room,
// so sessions that write a little at a time share one file.
func (e *Engine) resumeLast(seg *segment.Segment) error {
	if seg.Size() >= e.opts.maxSegmentSize {
		return nil
	}
	if err := seg.Resume(); err != nil {
		return ioError(err, "resuming segment %d", seg.Generation())
	}
	e.active = seg

	e.logger.WithFields(logrus.Fields{
		"generation": seg.Generation(),
		"size":       seg.Size(),
	}).Debug("resumed active segment")
	return nil
}

func (e *Engine) replay(seg *segment.Segment, last bool) error {
	gen := seg.Generation()

	sc := seg.Scan()
	var n int
	for sc.Next() {
		e.apply(sc.Record(), KeyDirEntry{
			Generation: gen,
			Offset:     sc.Offset(),
			RecordSize: sc.Len(),
		})
		n++
	}

	err := sc.Err()
	if err == nil {
		e.logger.WithFields(logrus.Fields{
			"generation": gen,
			"records":    n,
			"size":       seg.Size(),
		}).Debug("replayed segment")
		return nil
	}
	if !errors.Is(err, record.ErrCorruptRecord) {
		return ioError(err, "replaying segment %d", gen)
	}
	if !last {
		return corruptionError(err, "segment %d", gen)
	}

	e.logger.WithError(err).WithFields(logrus.Fields{
		"generation": gen,
		"records":    n,
		"offset":     sc.Valid(),
		"discarded":  seg.Size() - sc.Valid(),
	}).Warn("truncating torn tail of last segment")

	if err := seg.TruncateTo(sc.Valid()); err != nil {
		return ioError(err, "truncating segment %d", gen)
	}
	return nil
}
