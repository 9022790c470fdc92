package core

import (
	"time"

	"github.com/0xRadioAc7iv/go-kvs/internal/record"
	"github.com/0xRadioAc7iv/go-kvs/internal/segment"
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// shouldCompact evaluates the compaction trigger.
func (e *Engine) shouldCompact() bool {
	if !e.opts.autoCompaction || e.totalBytes == 0 {
		return false
	}
	if e.staleBytes < e.opts.minCompactionBytes {
		return false
	}
	return float64(e.staleBytes)/float64(e.totalBytes) >= e.opts.compactionRatio
}

// maybeCompact compacts when the trigger fires. It runs after a mutation is
// already durable, so a failure is only logged and the trigger fires again on
// the next write.
func (e *Engine) maybeCompact() {
	if !e.shouldCompact() {
		return
	}

	fields := logrus.Fields{
		"stale_bytes": e.staleBytes,
		"log_bytes":   e.totalBytes,
	}
	e.logger.WithFields(fields).Debug("compaction triggered")
	if err := e.Compact(); err != nil {
		e.logger.WithError(err).WithFields(fields).Warn("automatic compaction failed")
	}
}

// Compact rewrites every live record into a new segment and deletes all the
// segments that came before it. Tombstones are dropped.
//
// If anything fails before the new segment is durable, its file is removed
// and the store is left as it was. If deleting an old segment fails, the
// older segments that were already deleted stay deleted and the rest are
// kept; the store is consistent either way since the survivors are the
// newest part of the history.
func (e *Engine) Compact() (err error) {
	start := time.Now()
	defer func() { e.metrics.observe(CompactOperation, start, err) }()

	if e.closed {
		return ErrClosed
	}

	if err := e.sealActive(); err != nil {
		return err
	}

	before := e.totalBytes
	old := e.generations()

	var compacted *segment.Segment
	if e.keyDir.Len() > 0 {
		if compacted, err = e.writeCompacted(); err != nil {
			return err
		}
	}

	removed, err := e.removeSegments(old)

	e.recountTotalBytes()
	e.staleBytes = 0
	for _, gen := range old[removed:] {
		e.staleBytes += e.segments[gen].Size()
	}
	e.compactions++

	reclaimed := before - e.totalBytes
	e.metrics.Compactions.Inc()
	if reclaimed > 0 {
		e.metrics.ReclaimedBytes.Add(float64(reclaimed))
	}
	e.updateGauges()

	fields := logrus.Fields{
		"segments_removed": removed,
		"live_keys":        e.keyDir.Len(),
		"log_bytes":        e.totalBytes,
		"reclaimed":        humanize.IBytes(uint64(max(reclaimed, 0))),
		"duration":         time.Since(start),
	}
	if compacted != nil {
		fields["generation"] = compacted.Generation()
	}
	if err != nil {
		e.logger.WithError(err).WithFields(fields).Warn("compaction could not remove every old segment")
		return err
	}
	e.logger.WithFields(fields).Info("compacted log")
	return nil
}

// writeCompacted copies every live record into a new sealed segment and
// repoints the KeyDir at it. On error the KeyDir is unchanged and the new
// file is gone.
func (e *Engine) writeCompacted() (*segment.Segment, error) {
	gen := e.nextGen
	e.nextGen++

	seg, err := segment.Create(e.fs, e.dir, gen)
	if err != nil {
		return nil, ioError(err, "creating compaction segment %d", gen)
	}

	abort := func(err error) (*segment.Segment, error) {
		if rmErr := seg.Remove(); rmErr != nil {
			e.logger.WithError(rmErr).WithField("generation", gen).Warn("could not remove partial compaction segment")
		}
		return nil, err
	}

	moved := make(map[string]KeyDirEntry, e.keyDir.Len())
	for key, entry := range e.keyDir {
		k := []byte(key)
		value, err := e.readValue(k, entry)
		if err != nil {
			return abort(err)
		}

		data := record.Encode(record.NewSet(k, value))
		offset, err := seg.Write(data)
		if err != nil {
			return abort(ioError(err, "writing compaction segment %d", gen))
		}
		moved[key] = KeyDirEntry{Generation: gen, Offset: offset, RecordSize: int64(len(data))}
	}

	if err := seg.Seal(); err != nil {
		return abort(ioError(err, "sealing compaction segment %d", gen))
	}

	// The new segment is durable; from here on the old locations are dead.
	for key, entry := range moved {
		e.keyDir[key] = entry
	}
	e.segments[gen] = seg
	return seg, nil
}

// removeSegments deletes the given segments oldest first and stops at the
// first failure. It returns how many were deleted.
func (e *Engine) removeSegments(gens []uint64) (int, error) {
	var removed int
	var err error
	for _, gen := range gens {
		if err = e.segments[gen].Remove(); err != nil {
			err = ioError(err, "removing segment %d", gen)
			break
		}
		delete(e.segments, gen)
		removed++
	}

	if syncErr := segment.SyncDir(e.fs, e.dir); syncErr != nil {
		err = errors.CombineErrors(err, ioError(syncErr, "compacting %s", e.dir))
	}
	return removed, err
}
