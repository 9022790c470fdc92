package core_test

import (
	"fmt"
	"testing"

	"github.com/0xRadioAc7iv/go-kvs/core"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func TestCompactPreservesValues(t *testing.T) {
	fs := vfs.NewMem()

	e := openEngine(t, fs, core.WithMaxSegmentSize(256), core.WithoutAutoCompaction())
	want := map[string]string{}
	for i := 0; i < 200; i++ {
		k := fmt.Sprintf("key-%d", i%25)
		v := fmt.Sprintf("value-%d", i)
		require.NoError(t, e.Set([]byte(k), []byte(v)))
		want[k] = v
	}
	for i := 0; i < 25; i += 5 {
		k := fmt.Sprintf("key-%d", i)
		require.NoError(t, e.Remove([]byte(k)))
		delete(want, k)
	}

	before := e.Stats()
	require.Greater(t, before.Segments, 1)
	require.Greater(t, before.StaleBytes, int64(0))

	require.NoError(t, e.Compact())

	after := e.Stats()
	require.Equal(t, 1, after.Segments)
	require.Less(t, after.TotalBytes, before.TotalBytes)
	require.Zero(t, after.StaleBytes)
	require.Equal(t, uint64(1), after.Compactions)
	require.Equal(t, len(want), after.LiveKeys)

	for k, v := range want {
		require.Equal(t, v, mustGet(t, e, k))
	}
	for i := 0; i < 25; i += 5 {
		requireAbsent(t, e, fmt.Sprintf("key-%d", i))
	}

	// Writes after compaction go to the next generation.
	require.NoError(t, e.Set([]byte("new"), []byte("v")))
	require.Equal(t, 2, e.Stats().Segments)
	require.NoError(t, e.Close())

	e = openEngine(t, fs)
	defer e.Close()
	for k, v := range want {
		require.Equal(t, v, mustGet(t, e, k))
	}
	require.Equal(t, "v", mustGet(t, e, "new"))
	require.Equal(t, len(want)+1, e.Len())
}

func TestCompactRemovesEverythingWhenEmpty(t *testing.T) {
	fs := vfs.NewMem()

	e := openEngine(t, fs, core.WithoutAutoCompaction())
	require.NoError(t, e.Set([]byte("a"), []byte("1")))
	require.NoError(t, e.Remove([]byte("a")))
	require.NoError(t, e.Compact())

	require.Zero(t, e.Stats().Segments)
	require.Zero(t, e.Stats().TotalBytes)
	require.NoError(t, e.Close())
	require.Empty(t, segmentFiles(t, fs))
}

func TestCompactTwice(t *testing.T) {
	e := openEngine(t, vfs.NewMem(), core.WithoutAutoCompaction())
	defer e.Close()

	require.NoError(t, e.Set([]byte("a"), []byte("1")))
	require.NoError(t, e.Compact())
	first := e.Stats()
	require.NoError(t, e.Compact())
	second := e.Stats()

	require.Equal(t, first.TotalBytes, second.TotalBytes)
	require.Equal(t, 1, second.Segments)
	require.Equal(t, uint64(2), second.Compactions)
	require.Equal(t, "1", mustGet(t, e, "a"))
}

func TestAutoCompaction(t *testing.T) {
	fs := vfs.NewMem()

	e := openEngine(t, fs,
		core.WithMinCompactionBytes(1024),
		core.WithCompactionRatio(0.5),
	)
	defer e.Close()

	for i := 0; i < 500; i++ {
		require.NoError(t, e.Set([]byte("hot"), []byte(fmt.Sprintf("value-%04d", i))))
	}

	stats := e.Stats()
	require.Greater(t, stats.Compactions, uint64(0))
	require.Less(t, stats.StaleBytes, int64(1024))
	require.Equal(t, "value-0499", mustGet(t, e, "hot"))
}

func TestAutoCompactionRespectsFloor(t *testing.T) {
	e := openEngine(t, vfs.NewMem(), core.WithMinCompactionBytes(1<<20))
	defer e.Close()

	for i := 0; i < 100; i++ {
		require.NoError(t, e.Set([]byte("hot"), []byte("v")))
	}
	require.Zero(t, e.Stats().Compactions)
	require.Greater(t, e.Stats().StaleBytes, int64(0))
}

func TestFailedCompactionLeavesStoreIntact(t *testing.T) {
	fs := &failingFS{FS: vfs.NewMem()}

	e := openEngine(t, fs, core.WithoutAutoCompaction())
	require.NoError(t, e.Set([]byte("a"), []byte("1")))
	require.NoError(t, e.Set([]byte("a"), []byte("2")))
	require.NoError(t, e.Set([]byte("b"), []byte("3")))
	before := e.Stats()

	fs.setFail(true)
	err := e.Compact()
	fs.setFail(false)
	require.True(t, errors.Is(err, core.ErrIO))

	// Only the original segment is left and nothing moved.
	require.Equal(t, []string{"kvs_1.log"}, segmentFiles(t, fs))
	require.Equal(t, before.StaleBytes, e.Stats().StaleBytes)
	require.Equal(t, before.TotalBytes, e.Stats().TotalBytes)
	require.Equal(t, "2", mustGet(t, e, "a"))
	require.Equal(t, "3", mustGet(t, e, "b"))

	require.NoError(t, e.Compact())
	require.Equal(t, "2", mustGet(t, e, "a"))
	require.NoError(t, e.Close())

	e = openEngine(t, fs)
	defer e.Close()
	require.Equal(t, "2", mustGet(t, e, "a"))
	require.Equal(t, "3", mustGet(t, e, "b"))
}

func TestFailedAutoCompactionKeepsMutation(t *testing.T) {
	fs := &failingFS{FS: vfs.NewMem()}
	logger, hook := test.NewNullLogger()

	e, err := core.Open(testDir, core.WithFS(fs), core.WithLogger(logger), core.WithMinCompactionBytes(1))
	require.NoError(t, err)
	require.NoError(t, e.Set([]byte("a"), []byte("1")))
	require.NoError(t, e.Set([]byte("b"), []byte("2")))

	// The tombstone pushes the stale ratio over the trigger, and the
	// compaction segment cannot be created.
	fs.setRefuseCreate(true)
	require.NoError(t, e.Remove([]byte("b")))
	fs.setRefuseCreate(false)

	requireAbsent(t, e, "b")
	require.Equal(t, "1", mustGet(t, e, "a"))
	require.True(t, errors.Is(e.Remove([]byte("b")), core.ErrKeyNotFound))
	require.Zero(t, e.Stats().Compactions)

	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Message == "automatic compaction failed" {
			warned = true
			require.True(t, errors.Is(entry.Data[logrus.ErrorKey].(error), errRefused))
		}
	}
	require.True(t, warned, "expected a warning about the failed compaction")
	require.NoError(t, e.Close())

	e = openEngine(t, fs, core.WithoutAutoCompaction())
	defer e.Close()
	requireAbsent(t, e, "b")
	require.Equal(t, "1", mustGet(t, e, "a"))
}
