package core

const (
	OneKilobyte = 1024
	OneMegabyte = 1024 * OneKilobyte // 1024 (1KB) * 1024 => 1MB
	OneGigabyte = 1024 * OneMegabyte

	LockFileName = "LOCK"

	DefaultMaxSegmentSize = 64 * OneMegabyte

	// Compaction runs once at least DefaultMinCompactionBytes are stale and
	// they make up DefaultCompactionRatio of the log.
	DefaultCompactionRatio    = 0.4
	DefaultMinCompactionBytes = 1 * OneMegabyte

	// The first segment of a fresh store.
	firstGeneration = 1
)
