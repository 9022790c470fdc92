// Package core implements the log-structured storage engine.
//
// Every mutation is appended to the active segment and synced before the
// in-memory KeyDir is updated, so the log is the only durable structure and
// the KeyDir can always be rebuilt from it. Reads cost one KeyDir lookup and
// one positioned read. Compaction rewrites the live records into a fresh
// segment and deletes the segments it supersedes.
//
// An Engine is not safe for concurrent use; see pkg/kvs for a locked wrapper.
package core

import (
	"bytes"
	"io"
	"sort"
	"time"

	"github.com/0xRadioAc7iv/go-kvs/internal/record"
	"github.com/0xRadioAc7iv/go-kvs/internal/segment"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/sirupsen/logrus"
)

// Engine is a single-writer key-value store over a directory of segments.
type Engine struct {
	fs      vfs.FS
	dir     string
	opts    options
	logger  logrus.FieldLogger
	metrics *Metrics
	lock    io.Closer

	keyDir   KeyDir
	segments map[uint64]*segment.Segment // every segment, sealed or active
	active   *segment.Segment            // nil until the first mutation or a resumed segment
	nextGen  uint64

	totalBytes  int64
	staleBytes  int64
	compactions uint64
	closed      bool
}

// Stats is a point-in-time summary of engine state.
type Stats struct {
	LiveKeys    int
	Segments    int
	TotalBytes  int64
	StaleBytes  int64
	Compactions uint64
}

// Open opens the store in dir, creating the directory if needed, and rebuilds
// the KeyDir from every segment found there.
func Open(dir string, opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid options")
	}
	if o.metrics == nil {
		o.metrics = NewMetrics()
	}

	e := &Engine{
		fs:       o.fs,
		dir:      dir,
		opts:     o,
		logger:   o.logger.WithField("dir", dir),
		metrics:  o.metrics,
		keyDir:   make(KeyDir),
		segments: make(map[uint64]*segment.Segment),
		nextGen:  firstGeneration,
	}

	if err := e.fs.MkdirAll(dir, 0755); err != nil {
		return nil, ioError(err, "creating directory %s", dir)
	}

	lock, err := e.fs.Lock(e.fs.PathJoin(dir, LockFileName))
	if err != nil {
		return nil, ioError(err, "directory %s already in use by another kvs instance", dir)
	}
	e.lock = lock

	start := time.Now()
	err = e.recoverSegments()
	e.metrics.observe(RecoverOperation, start, err)
	if err != nil {
		_ = e.closeSegments()
		_ = e.lock.Close()
		return nil, err
	}

	e.updateGauges()
	e.logger.WithFields(logrus.Fields{
		"segments":    len(e.segments),
		"live_keys":   e.keyDir.Len(),
		"log_bytes":   e.totalBytes,
		"stale_bytes": e.staleBytes,
		"duration":    time.Since(start),
	}).Info("opened store")

	return e, nil
}

// Get returns the value of key. A missing key is reported with found ==
// false and a nil error.
func (e *Engine) Get(key []byte) (value []byte, found bool, err error) {
	start := time.Now()
	defer func() { e.metrics.observe(GetOperation, start, err) }()

	if e.closed {
		return nil, false, ErrClosed
	}

	entry, ok := e.keyDir.Get(key)
	if !ok {
		return nil, false, nil
	}

	value, err = e.readValue(key, entry)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Has reports whether key has a live value.
func (e *Engine) Has(key []byte) bool {
	_, ok := e.keyDir.Get(key)
	return ok && !e.closed
}

// Set stores value under key. The record is durable when Set returns; if the
// append fails the previous value stays authoritative. Set may compact the
// log afterwards; a failed compaction does not fail the Set.
func (e *Engine) Set(key, value []byte) (err error) {
	start := time.Now()
	defer func() { e.metrics.observe(SetOperation, start, err) }()

	if e.closed {
		return ErrClosed
	}

	if err := record.CheckLengths(len(key), len(value)); err != nil {
		return err
	}

	rec := record.NewSet(key, value)
	entry, err := e.appendRecord(rec)
	if err != nil {
		return err
	}
	e.apply(rec, entry)

	e.maybeCompact()
	return nil
}

// Remove deletes key. It returns ErrKeyNotFound if key has no live value.
func (e *Engine) Remove(key []byte) (err error) {
	start := time.Now()
	defer func() { e.metrics.observe(RemoveOperation, start, err) }()

	if e.closed {
		return ErrClosed
	}
	if _, ok := e.keyDir.Get(key); !ok {
		return ErrKeyNotFound
	}

	rec := record.NewRemove(key)
	entry, err := e.appendRecord(rec)
	if err != nil {
		return err
	}
	e.apply(rec, entry)

	e.maybeCompact()
	return nil
}

// Len returns the number of live keys.
func (e *Engine) Len() int {
	return e.keyDir.Len()
}

// Keys returns every live key in sorted order.
func (e *Engine) Keys() [][]byte {
	return e.keyDir.Keys()
}

func (e *Engine) Stats() Stats {
	return Stats{
		LiveKeys:    e.keyDir.Len(),
		Segments:    len(e.segments),
		TotalBytes:  e.totalBytes,
		StaleBytes:  e.staleBytes,
		Compactions: e.compactions,
	}
}

// Close syncs the active segment, closes every segment and releases the
// directory lock. An active segment that never received a write is removed.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	var err error
	if e.active != nil {
		if e.active.Size() == 0 {
			gen := e.active.Generation()
			err = ioError(e.active.Remove(), "removing empty segment %d", gen)
			if err == nil {
				err = ioError(segment.SyncDir(e.fs, e.dir), "closing store")
			}
			delete(e.segments, gen)
		} else {
			err = ioError(e.active.Seal(), "sealing active segment")
		}
		e.active = nil
	}

	err = errors.CombineErrors(err, e.closeSegments())
	err = errors.CombineErrors(err, ioError(e.lock.Close(), "releasing lock"))

	e.logger.Debug("closed store")
	return err
}

func (e *Engine) closeSegments() error {
	var err error
	for gen, seg := range e.segments {
		err = errors.CombineErrors(err, ioError(seg.Close(), "closing segment %d", gen))
	}
	return err
}

// readValue fetches the value of the Set record entry points at, verifying
// that it is the record the KeyDir believes it is.
func (e *Engine) readValue(key []byte, entry KeyDirEntry) ([]byte, error) {
	seg, ok := e.segments[entry.Generation]
	if !ok {
		return nil, corruptionError(nil, "key %q points at missing segment %d", key, entry.Generation)
	}

	data, err := seg.ReadAt(entry.Offset, entry.RecordSize)
	if err != nil {
		if errors.Is(err, segment.ErrOutOfRange) {
			return nil, corruptionError(err, "key %q", key)
		}
		return nil, ioError(err, "reading key %q", key)
	}

	rec, n, err := record.Decode(data)
	if err != nil {
		return nil, corruptionError(err, "key %q in segment %d at offset %d", key, entry.Generation, entry.Offset)
	}
	if int64(n) != entry.RecordSize || rec.Kind != record.KindSet || !bytes.Equal(rec.Key, key) {
		return nil, corruptionError(nil, "segment %d at offset %d holds %s record for %q, expected set for %q",
			entry.Generation, entry.Offset, rec.Kind, rec.Key, key)
	}
	return rec.Value, nil
}

// appendRecord writes rec to the active segment, rotating first when the
// active segment is full or torn, and returns where it landed. The KeyDir is
// not touched.
func (e *Engine) appendRecord(rec record.Record) (KeyDirEntry, error) {
	if e.active != nil && (e.active.Torn() || e.active.Size() >= e.opts.maxSegmentSize) {
		if err := e.rotate(); err != nil {
			return KeyDirEntry{}, err
		}
	}
	if e.active == nil {
		if err := e.openActive(); err != nil {
			return KeyDirEntry{}, err
		}
	}

	data := record.Encode(rec)
	offset, err := e.active.Append(data)
	if err != nil {
		e.logger.WithError(err).WithField("generation", e.active.Generation()).Warn("append failed")
		return KeyDirEntry{}, ioError(err, "appending %s record", rec.Kind)
	}
	e.totalBytes += int64(len(data))

	return KeyDirEntry{
		Generation: e.active.Generation(),
		Offset:     offset,
		RecordSize: int64(len(data)),
	}, nil
}

// apply folds a record that is already on disk into the KeyDir and the stale
// byte count. Recovery and the write path share it.
func (e *Engine) apply(rec record.Record, entry KeyDirEntry) {
	switch rec.Kind {
	case record.KindSet:
		if prev, ok := e.keyDir.Set(rec.Key, entry); ok {
			e.staleBytes += prev.RecordSize
		}
	case record.KindRemove:
		if prev, ok := e.keyDir.Delete(rec.Key); ok {
			e.staleBytes += prev.RecordSize
		}
		// The tombstone is garbage as soon as it is written.
		e.staleBytes += entry.RecordSize
	}
	e.updateGauges()
}

func (e *Engine) openActive() error {
	gen := e.nextGen
	seg, err := segment.Create(e.fs, e.dir, gen)
	if err != nil {
		return ioError(err, "creating segment %d", gen)
	}

	e.nextGen++
	e.active = seg
	e.segments[gen] = seg
	e.updateGauges()

	e.logger.WithField("generation", gen).Debug("opened active segment")
	return nil
}

// rotate seals the active segment. The next append opens a new one.
func (e *Engine) rotate() (err error) {
	start := time.Now()
	defer func() { e.metrics.observe(RotateOperation, start, err) }()

	return e.sealActive()
}

func (e *Engine) sealActive() error {
	if e.active == nil {
		return nil
	}

	seg := e.active
	torn := seg.Torn()
	if err := seg.Seal(); err != nil {
		return ioError(err, "sealing segment %d", seg.Generation())
	}
	if torn {
		e.logger.WithFields(logrus.Fields{
			"generation": seg.Generation(),
			"size":       seg.Size(),
		}).Warn("repaired segment after failed write")
		e.recountTotalBytes()
	}

	e.active = nil
	e.logger.WithFields(logrus.Fields{
		"generation": seg.Generation(),
		"size":       seg.Size(),
	}).Debug("sealed segment")
	return nil
}

// generations returns the generation of every segment, oldest first.
func (e *Engine) generations() []uint64 {
	gens := make([]uint64, 0, len(e.segments))
	for gen := range e.segments {
		gens = append(gens, gen)
	}
	sort.Slice(gens, func(i, j int) bool { return gens[i] < gens[j] })
	return gens
}

func (e *Engine) recountTotalBytes() {
	var total int64
	for _, seg := range e.segments {
		total += seg.Size()
	}
	e.totalBytes = total
}

func (e *Engine) updateGauges() {
	e.metrics.LiveKeys.Set(float64(e.keyDir.Len()))
	e.metrics.Segments.Set(float64(len(e.segments)))
	e.metrics.TotalBytes.Set(float64(e.totalBytes))
	e.metrics.StaleBytes.Set(float64(e.staleBytes))
}
