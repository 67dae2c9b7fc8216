package hashdb

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "test.hdb")
}

func openNew(t *testing.T, buckets int64) (*DB, string) {
	path := tempPath(t)
	db := New()
	require.NoError(t, db.Tune(buckets, -1, -1, 0), "tunes")
	require.NoError(t, db.Open(path, Writer|Create), "opens")

	return db, path
}

func TestTune(t *testing.T) {
	t.Run("rounds bucket count and keeps defaults", func(t *testing.T) {
		// Prepare
		db := New()

		// Execute
		err := db.Tune(1000, -1, -1, OptLarge)

		// Check
		assert.NoError(t, err, "tunes")
		assert.Equal(t, int64(1024), db.tuning.Buckets, "rounded up to power of 2")
		assert.Equal(t, DefaultAlignPow, db.tuning.AlignPow, "default alignment")
		assert.Equal(t, DefaultFreeBlockPow, db.tuning.FreeBlockPow, "default pool power")
		assert.Equal(t, uint8(OptLarge), db.tuning.Options, "options")
	})

	t.Run("rejects out of range values", func(t *testing.T) {
		// Prepare
		db := New()

		// Execute
		errBuckets := db.Tune(0, -1, -1, 0)
		errAlign := db.Tune(-1, 17, -1, 0)
		errPool := db.Tune(-1, -1, 17, 0)
		errOpts := db.Tune(-1, -1, -1, OptDeflate|OptBzip2)
		errUnknown := db.Tune(-1, -1, -1, Opt(1<<6))

		// Check
		assert.ErrorIs(t, errBuckets, ErrInvalidArgument, "zero buckets")
		assert.ErrorIs(t, errAlign, ErrInvalidArgument, "alignment too large")
		assert.ErrorIs(t, errPool, ErrInvalidArgument, "pool too large")
		assert.ErrorIs(t, errOpts, ErrInvalidArgument, "two compression options")
		assert.ErrorIs(t, errUnknown, ErrInvalidArgument, "unknown option bit")
		assert.Equal(t, DefaultBuckets, db.tuning.Buckets, "tuning unchanged")
		assert.Equal(t, InvalidArgument, db.ErrCode(), "last error kept")
	})

	t.Run("fails after first open", func(t *testing.T) {
		// Prepare
		db, _ := openNew(t, 64)
		require.NoError(t, db.Close(), "closes")

		// Execute
		err := db.Tune(128, -1, -1, 0)

		// Check
		assert.ErrorIs(t, err, ErrInvalidState, "tune after open")
		assert.Equal(t, int64(64), db.tuning.Buckets, "tuning unchanged")
	})
}

func TestOpen(t *testing.T) {
	t.Run("creates a file from the tuning", func(t *testing.T) {
		// Prepare
		path := tempPath(t)
		db := New()
		require.NoError(t, db.Tune(100, 5, 3, OptLarge), "tunes")

		// Execute
		err := db.Open(path, Writer|Create)

		// Check
		assert.NoError(t, err, "opens")
		assert.Equal(t, path, db.Path(), "path kept")
		stat, err := db.Stat()
		assert.NoError(t, err, "stats")
		assert.Equal(t, Tuning{Buckets: 128, AlignPow: 5, FreeBlockPow: 3, Opts: OptLarge}, stat.Tuning, "tuning in effect")
		assert.Equal(t, int64(0), stat.Records, "empty")
		assert.True(t, stat.Writable, "writable")
		assert.NoError(t, db.Close(), "closes")
	})

	t.Run("existing header wins over tuning", func(t *testing.T) {
		// Prepare
		db, path := openNew(t, 64)
		require.NoError(t, db.Close(), "closes")
		other := New()
		require.NoError(t, other.Tune(4096, 8, 2, OptDeflate), "tunes")

		// Execute
		err := other.Open(path, Writer|Create)

		// Check
		assert.NoError(t, err, "opens")
		stat, _ := other.Stat()
		assert.Equal(t, int64(64), stat.Tuning.Buckets, "bucket count from header")
		assert.Equal(t, Opt(0), stat.Tuning.Opts, "options from header")
		assert.NoError(t, other.Close(), "closes")
	})

	t.Run("maps open failures to codes", func(t *testing.T) {
		// Prepare
		dir := t.TempDir()
		garbage := filepath.Join(dir, "garbage.hdb")
		require.NoError(t, os.WriteFile(garbage, []byte("not a hash db file at all"), 0644), "writes garbage")

		// Execute
		errMissing := New().Open(filepath.Join(dir, "missing.hdb"), Reader)
		errCorrupt := New().Open(garbage, Reader)
		errMode := New().Open(garbage, Reader|Create)
		errNoMode := New().Open(garbage, NoLock)

		// Check
		assert.ErrorIs(t, errMissing, ErrNotFound, "missing file")
		assert.ErrorIs(t, errCorrupt, ErrCorruptFile, "corrupt file")
		assert.ErrorIs(t, errMode, ErrInvalidArgument, "create without writer")
		assert.ErrorIs(t, errNoMode, ErrInvalidArgument, "neither reader nor writer")
	})

	t.Run("rejects permission denied", func(t *testing.T) {
		if os.Getuid() == 0 {
			t.Skip("file permissions are not enforced for root")
		}

		// Prepare
		db, path := openNew(t, 64)
		require.NoError(t, db.Close(), "closes")
		require.NoError(t, os.Chmod(path, 0400), "makes file read only")

		// Execute
		err := New().Open(path, Writer)

		// Check
		assert.ErrorIs(t, err, ErrPermissionDenied, "no write permission")
	})

	t.Run("fails when already open", func(t *testing.T) {
		// Prepare
		db, path := openNew(t, 64)

		// Execute
		err := db.Open(path, Reader)

		// Check
		assert.ErrorIs(t, err, ErrInvalidState, "already open")
		assert.NoError(t, db.Close(), "closes")
	})

	t.Run("truncates existing content", func(t *testing.T) {
		// Prepare
		db, path := openNew(t, 64)
		require.NoError(t, db.Put([]byte("key"), []byte("value")), "puts")
		require.NoError(t, db.Close(), "closes")

		// Execute
		err := db.Open(path, Writer|Truncate)

		// Check
		assert.NoError(t, err, "opens")
		count, err := db.Count()
		assert.NoError(t, err, "counts")
		assert.Equal(t, int64(0), count, "records gone")
		assert.NoError(t, db.Close(), "closes")
	})

	t.Run("contended lock returns WouldBlock", func(t *testing.T) {
		// Prepare
		db, path := openNew(t, 64)
		other := New()

		// Execute
		errWriter := other.Open(path, Writer|NonBlockingLock)
		errReader := other.Open(path, Reader|NonBlockingLock)
		errNoLock := other.Open(path, Reader|NoLock)

		// Check
		assert.ErrorIs(t, errWriter, ErrWouldBlock, "writer contended")
		assert.ErrorIs(t, errReader, ErrWouldBlock, "reader contended")
		assert.NoError(t, errNoLock, "no lock ignores the writer")
		assert.NoError(t, other.Close(), "closes other")
		assert.NoError(t, db.Close(), "closes")
	})
}

func TestClose(t *testing.T) {
	t.Run("close without open returns InvalidState", func(t *testing.T) {
		// Prepare
		db := New()

		// Execute
		err := db.Close()

		// Check
		assert.ErrorIs(t, err, ErrInvalidState, "not open")
		assert.Equal(t, InvalidState, db.ErrCode(), "code kept")
	})

	t.Run("operations after close return InvalidState", func(t *testing.T) {
		// Prepare
		db, _ := openNew(t, 64)
		require.NoError(t, db.Close(), "closes")

		// Execute
		errPut := db.Put([]byte("key"), []byte("value"))
		_, _, errGet := db.Get([]byte("key"))
		_, errRemove := db.Remove([]byte("key"))
		errClose := db.Close()
		_, errStat := db.Stat()

		// Check
		assert.ErrorIs(t, errPut, ErrInvalidState, "put")
		assert.ErrorIs(t, errGet, ErrInvalidState, "get")
		assert.ErrorIs(t, errRemove, ErrInvalidState, "remove")
		assert.ErrorIs(t, errClose, ErrInvalidState, "second close")
		assert.ErrorIs(t, errStat, ErrInvalidState, "stat")
	})

	t.Run("reopens after close", func(t *testing.T) {
		// Prepare
		db, path := openNew(t, 64)
		require.NoError(t, db.Put([]byte("key"), []byte("value")), "puts")
		require.NoError(t, db.Close(), "closes")

		// Execute
		err := db.Open(path, Reader)

		// Check
		assert.NoError(t, err, "reopens")
		value, found, err := db.Get([]byte("key"))
		assert.NoError(t, err, "gets")
		assert.True(t, found, "found")
		assert.Equal(t, "value", string(value), "value")
		assert.Equal(t, Success, db.ErrCode(), "success resets last error")
		assert.Nil(t, db.LastErr(), "no last error")
		assert.NoError(t, db.Close(), "closes")
	})
}

func TestRecovery(t *testing.T) {
	t.Run("recovers after unclean close", func(t *testing.T) {
		// Prepare
		db, path := openNew(t, 256)
		keys := make([]string, 200)
		for i := range keys {
			keys[i] = uuid.NewString()
			require.NoError(t, db.Put([]byte(keys[i]), []byte(keys[i])), "puts")
		}
		require.NoError(t, db.Sync(), "syncs")
		for _, k := range keys[:50] {
			_, err := db.Remove([]byte(k))
			require.NoError(t, err, "removes")
		}
		// A copy taken while the writer is open looks like the file of a crashed process
		content, err := os.ReadFile(path)
		require.NoError(t, err, "reads file")
		crashed := filepath.Join(t.TempDir(), "crashed.hdb")
		require.NoError(t, os.WriteFile(crashed, content, 0644), "writes copy")
		require.NoError(t, db.Close(), "closes")

		other := New()

		// Execute
		err = other.Open(crashed, Writer)

		// Check
		assert.NoError(t, err, "opens")
		stat, err := other.Stat()
		assert.NoError(t, err, "stats")
		assert.True(t, stat.Recovered, "recovered")
		assert.Equal(t, int64(150), stat.Records, "records recounted")
		for _, k := range keys[50:] {
			value, found, err := other.Get([]byte(k))
			assert.NoError(t, err, "gets")
			assert.True(t, found, "found")
			assert.Equal(t, k, string(value), "value")
		}
		assert.NoError(t, other.Close(), "closes")
	})
}

func TestVanish(t *testing.T) {
	t.Run("removes every record", func(t *testing.T) {
		// Prepare
		db, _ := openNew(t, 64)
		require.NoError(t, db.SetCacheCapacity(10), "enables cache")
		require.NoError(t, db.Put([]byte("key"), []byte("value")), "puts")
		_, _, err := db.Get([]byte("key"))
		require.NoError(t, err, "gets")

		// Execute
		err = db.Vanish()

		// Check
		assert.NoError(t, err, "vanishes")
		_, found, err := db.Get([]byte("key"))
		assert.NoError(t, err, "gets")
		assert.False(t, found, "gone from cache and file")
		count, _ := db.Count()
		assert.Equal(t, int64(0), count, "no records")
		assert.NoError(t, db.Close(), "closes")
	})
}

func TestError(t *testing.T) {
	t.Run("error wraps its cause", func(t *testing.T) {
		// Prepare
		cause := errors.New("cause")

		// Execute
		err := newError("get", IOError, cause)

		// Check
		assert.ErrorIs(t, err, ErrIOError, "matches sentinel")
		assert.ErrorIs(t, err, cause, "unwraps")
		assert.NotErrorIs(t, err, ErrNotFound, "other code")
		assert.Equal(t, "hashdb get: i/o error: cause", err.Error(), "message")
		assert.Equal(t, IOError, ErrCodeOf(err), "code of error")
		assert.Equal(t, Success, ErrCodeOf(nil), "code of nil")
	})
}
