// Package segment manages the append-only files that make up the log.
//
// A segment is identified by its generation number and lives in
// "kvs_<generation>.log" inside the store directory. The active segment
// accepts appends; once sealed it is read-only until compaction deletes it.
// All file access goes through a vfs.FS so the engine can run against an
// in-memory filesystem in tests.
package segment

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/0xRadioAc7iv/go-kvs/internal/record"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/vfs"
)

const (
	FilePrefix = "kvs_"
	FileExt    = ".log"
	TempExt    = ".tmp"
)

var (
	// ErrSealed is returned when appending to a segment that was sealed.
	ErrSealed = errors.New("segment is sealed")

	// ErrTorn is returned when appending to a segment whose last write failed.
	// The segment has to be repaired before it can be read back in full.
	ErrTorn = errors.New("segment has a torn write")

	// ErrOutOfRange is returned by ReadAt for a range past the segment end.
	ErrOutOfRange = errors.New("read past end of segment")
)

// FileName returns the file name of the segment with the given generation.
func FileName(gen uint64) string {
	return fmt.Sprintf("%s%d%s", FilePrefix, gen, FileExt)
}

// ParseFileName extracts the generation from a segment file name.
func ParseFileName(name string) (uint64, bool) {
	if !strings.HasPrefix(name, FilePrefix) || !strings.HasSuffix(name, FileExt) {
		return 0, false
	}

	numberStr := strings.TrimSuffix(strings.TrimPrefix(name, FilePrefix), FileExt)
	gen, err := strconv.ParseUint(numberStr, 10, 64)
	if err != nil || FileName(gen) != name {
		return 0, false
	}
	return gen, true
}

// List returns the generations of every segment in dir, oldest first.
// Leftover temporary files from an interrupted repair are removed.
func List(fs vfs.FS, dir string) ([]uint64, error) {
	names, err := fs.List(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", dir)
	}

	var gens []uint64
	for _, name := range names {
		if strings.HasSuffix(name, TempExt) {
			if err := fs.Remove(fs.PathJoin(dir, name)); err != nil {
				return nil, errors.Wrapf(err, "removing leftover %s", name)
			}
			continue
		}
		if gen, ok := ParseFileName(name); ok {
			gens = append(gens, gen)
		}
	}

	sort.Slice(gens, func(i, j int) bool { return gens[i] < gens[j] })
	return gens, nil
}

// SyncDir makes directory entry changes (create, rename, remove) durable.
func SyncDir(fs vfs.FS, dir string) error {
	d, err := fs.OpenDir(dir)
	if err != nil {
		return errors.Wrapf(err, "opening directory %s", dir)
	}
	if err := d.Sync(); err != nil {
		_ = d.Close()
		return errors.Wrapf(err, "syncing directory %s", dir)
	}
	return d.Close()
}

// Segment is one log file.
type Segment struct {
	fs     vfs.FS
	dir    string
	path   string
	gen    uint64
	writer vfs.File // nil once sealed
	reader vfs.File
	size   int64
	sealed bool
	torn   bool
}

// Create creates a new, empty active segment and makes its directory entry
// durable.
func Create(fs vfs.FS, dir string, gen uint64) (*Segment, error) {
	path := fs.PathJoin(dir, FileName(gen))

	writer, err := fs.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "creating segment %s", path)
	}
	reader, err := fs.Open(path)
	if err != nil {
		_ = writer.Close()
		return nil, errors.Wrapf(err, "opening segment %s", path)
	}
	if err := SyncDir(fs, dir); err != nil {
		_ = writer.Close()
		_ = reader.Close()
		return nil, err
	}

	return &Segment{fs: fs, dir: dir, path: path, gen: gen, writer: writer, reader: reader}, nil
}

// Open opens an existing segment read-only. Its size is the file size. Use
// Resume to append to it.
func Open(fs vfs.FS, dir string, gen uint64) (*Segment, error) {
	path := fs.PathJoin(dir, FileName(gen))

	reader, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening segment %s", path)
	}
	info, err := reader.Stat()
	if err != nil {
		_ = reader.Close()
		return nil, errors.Wrapf(err, "stat segment %s", path)
	}

	return &Segment{fs: fs, dir: dir, path: path, gen: gen, reader: reader, size: info.Size(), sealed: true}, nil
}

func (s *Segment) Generation() uint64 { return s.gen }
func (s *Segment) Path() string       { return s.path }
func (s *Segment) Sealed() bool       { return s.sealed }

// Resume reopens a sealed segment for appends at its current end.
func (s *Segment) Resume() error {
	if !s.sealed {
		return nil
	}

	writer, err := s.fs.OpenReadWrite(s.path)
	if err != nil {
		return errors.Wrapf(err, "reopening segment %s for writing", s.path)
	}
	s.writer = writer
	s.sealed = false
	return nil
}

// Size returns the number of bytes of complete writes in the segment.
func (s *Segment) Size() int64 { return s.size }

// Torn reports whether a write or sync failed. A torn segment accepts no
// more appends and must be sealed, which repairs it.
func (s *Segment) Torn() bool { return s.torn }

// Append writes data at the end of the segment and syncs it to stable storage
// before returning the offset it was written at.
func (s *Segment) Append(data []byte) (int64, error) {
	offset, err := s.Write(data)
	if err != nil {
		return 0, err
	}

	if err := s.writer.Sync(); err != nil {
		s.size = offset
		s.torn = true
		return 0, errors.Wrapf(err, "syncing segment %s", s.path)
	}
	return offset, nil
}

// Write appends data without syncing. The caller must Sync or Seal before the
// write is durable.
func (s *Segment) Write(data []byte) (int64, error) {
	if s.sealed {
		return 0, errors.Wrapf(ErrSealed, "segment %s", s.path)
	}
	if s.torn {
		return 0, errors.Wrapf(ErrTorn, "segment %s", s.path)
	}

	offset := s.size
	n, err := s.writer.WriteAt(data, offset)
	if err == nil && n != len(data) {
		err = io.ErrShortWrite
	}
	if err != nil {
		s.torn = true
		return 0, errors.Wrapf(err, "writing segment %s at offset %d", s.path, offset)
	}

	s.size += int64(n)
	return offset, nil
}

// Sync flushes the active segment to stable storage.
func (s *Segment) Sync() error {
	if s.writer == nil {
		return nil
	}
	if err := s.writer.Sync(); err != nil {
		s.torn = true
		return errors.Wrapf(err, "syncing segment %s", s.path)
	}
	return nil
}

// ReadAt reads length bytes at offset. It does not move the append cursor.
func (s *Segment) ReadAt(offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > s.size {
		return nil, errors.Wrapf(ErrOutOfRange, "segment %s: [%d, %d) beyond size %d", s.path, offset, offset+length, s.size)
	}

	buf := make([]byte, length)
	n, err := s.reader.ReadAt(buf, offset)
	if n == len(buf) {
		return buf, nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return nil, errors.Wrapf(err, "reading segment %s at offset %d", s.path, offset)
}

// Seal syncs and closes the write handle. A torn segment is repaired to its
// last complete write first. Sealing twice is a no-op.
func (s *Segment) Seal() error {
	if s.sealed {
		return nil
	}
	if s.torn {
		return s.repair()
	}

	if err := s.writer.Sync(); err != nil {
		s.torn = true
		return errors.Wrapf(err, "syncing segment %s", s.path)
	}
	if err := s.writer.Close(); err != nil {
		return errors.Wrapf(err, "closing segment %s", s.path)
	}
	s.writer = nil
	s.sealed = true
	return nil
}

// TruncateTo discards everything past size, which must be a record boundary.
// Recovery uses it to drop a torn tail.
func (s *Segment) TruncateTo(size int64) error {
	if size < 0 || size > s.size {
		return errors.Newf("segment %s: cannot truncate %d bytes to %d", s.path, s.size, size)
	}
	s.size = size
	return s.repair()
}

// repair cuts the segment file to s.size bytes and leaves the segment
// sealed with a fresh read handle.
func (s *Segment) repair() error {
	if s.writer != nil {
		_ = s.writer.Close()
		s.writer = nil
	}

	if err := Repair(s.fs, s.path, s.size); err != nil {
		return err
	}

	reader, err := s.fs.Open(s.path)
	if err != nil {
		return errors.Wrapf(err, "reopening segment %s", s.path)
	}
	_ = s.reader.Close()
	s.reader = reader
	s.sealed = true
	s.torn = false
	return nil
}

// Repair rewrites the first validLen bytes of the file at path into a
// temporary file, renames it over the original and syncs the directory.
// vfs files cannot be truncated in place, so this is how a tail gets cut.
func Repair(fs vfs.FS, path string, validLen int64) error {
	src, err := fs.Open(path)
	if err != nil {
		return errors.Wrapf(err, "opening %s", path)
	}
	defer src.Close()

	tmpPath := path + TempExt
	tmp, err := fs.Create(tmpPath)
	if err != nil {
		return errors.Wrapf(err, "creating %s", tmpPath)
	}
	n, err := io.Copy(tmp, io.NewSectionReader(src, 0, validLen))
	if err == nil && n != validLen {
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		_ = tmp.Close()
		_ = fs.Remove(tmpPath)
		return errors.Wrapf(err, "copying %s", path)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = fs.Remove(tmpPath)
		return errors.Wrapf(err, "syncing %s", tmpPath)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "closing %s", tmpPath)
	}

	if err := fs.Rename(tmpPath, path); err != nil {
		return errors.Wrapf(err, "renaming %s", tmpPath)
	}
	return SyncDir(fs, fs.PathDir(path))
}

// Close releases the file handles without syncing.
func (s *Segment) Close() error {
	var err error
	if s.writer != nil {
		err = s.writer.Close()
		s.writer = nil
	}
	if s.reader != nil {
		err = errors.CombineErrors(err, s.reader.Close())
		s.reader = nil
	}
	return errors.Wrapf(err, "closing segment %s", s.path)
}

// Remove closes the segment and deletes its file.
func (s *Segment) Remove() error {
	if err := s.Close(); err != nil {
		return err
	}
	if err := s.fs.Remove(s.path); err != nil {
		return errors.Wrapf(err, "removing segment %s", s.path)
	}
	return nil
}

// Scan returns a Scanner over the records of the segment.
func (s *Segment) Scan() *Scanner {
	return &Scanner{
		r:         bufio.NewReaderSize(io.NewSectionReader(s.reader, 0, s.size), 64*1024),
		remaining: s.size,
	}
}

// Scanner decodes a segment record by record.
//
//	sc := seg.Scan()
//	for sc.Next() {
//	    rec, offset, length := sc.Record(), sc.Offset(), sc.Len()
//	}
//	if err := sc.Err(); err != nil { ... }
type Scanner struct {
	r         io.Reader
	remaining int64
	offset    int64 // start of the current record
	length    int64
	valid     int64 // end of the last fully decoded record
	rec       record.Record
	err       error
}

// Next advances to the next record. It returns false at the end of the
// segment or on the first record that fails to decode.
func (sc *Scanner) Next() bool {
	if sc.err != nil {
		return false
	}

	rec, n, err := record.Read(sc.r, sc.remaining)
	if err != nil {
		if err != io.EOF {
			sc.err = errors.Wrapf(err, "at offset %d", sc.valid)
		}
		return false
	}

	sc.rec = rec
	sc.offset = sc.valid
	sc.length = n
	sc.valid += n
	sc.remaining -= n
	return true
}

func (sc *Scanner) Record() record.Record { return sc.rec }
func (sc *Scanner) Offset() int64         { return sc.offset }
func (sc *Scanner) Len() int64            { return sc.length }

// Valid returns the number of leading bytes that decoded cleanly.
func (sc *Scanner) Valid() int64 { return sc.valid }

// Err returns the error that stopped the scan, or nil at a clean end.
// Framing failures match record.ErrCorruptRecord.
func (sc *Scanner) Err() error { return sc.err }
