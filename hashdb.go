package hashdb

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gostonefire/hashdb/internal/cache"
	"github.com/gostonefire/hashdb/internal/conf"
	"github.com/gostonefire/hashdb/internal/model"
	"github.com/gostonefire/hashdb/internal/storage"
	"github.com/gostonefire/hashdb/internal/utils"
)

// DefaultBuckets - Bucket count used unless changed by Tune
const DefaultBuckets = conf.DefaultBuckets

// DefaultAlignPow - Alignment power used unless changed by Tune
const DefaultAlignPow = conf.DefaultAlignPow

// DefaultFreeBlockPow - Free block pool power used unless changed by Tune
const DefaultFreeBlockPow = conf.DefaultFreeBlockPow

// Tuning - Structural parameters used when a file gets created
//   - Buckets is the number of buckets, always a power of 2
//   - AlignPow is the power of 2 every record offset and size is aligned to
//   - FreeBlockPow is the power of 2 of the number of reclaimed spans remembered for reuse
//   - Opts is the option bit set
type Tuning struct {
	Buckets      int64
	AlignPow     int8
	FreeBlockPow int8
	Opts         Opt
}

// Stat - Statistics of an open DB
//   - Records is the number of live records
//   - FileSize is the logical size of the file
//   - UsedBuckets is the number of buckets holding at least one record
//   - FreeBlocks and FreeBytes describe the reclaimed spans available for reuse
//   - Tuning is the structural parameters of the file, which may differ from the ones given to Tune
//   - Writable tells if the DB was opened with Writer
//   - Recovered tells if the file was not closed cleanly and got recovered on open
type Stat struct {
	Records     int64
	FileSize    int64
	UsedBuckets int64
	FreeBlocks  int64
	FreeBytes   int64
	Tuning      Tuning
	Writable    bool
	Recovered   bool
}

// DB - Handle to a hash db file. It is safe for concurrent use; reads run concurrently while
// mutations are exclusive. A DB can be closed and opened again, on the same or another file.
type DB struct {
	mu          sync.RWMutex
	errMu       sync.Mutex
	iterMu      sync.Mutex
	nonBlocking atomic.Bool
	tuning      model.Tuning
	everOpened  bool
	codec       Codec
	logger      *slog.Logger
	cache       *cache.RecordCache
	storage     *storage.Storage
	path        string
	session     uint64
	cursor      *Cursor
	lastErr     error
}

// New - Returns a pointer to a new unopened DB with default tuning and the record cache disabled.
//   - opts are functional options such as WithLogger and WithCodec
//
// It returns:
//   - db is a pointer to the DB
func New(opts ...Option) (db *DB) {
	db = &DB{
		tuning: model.Tuning{
			Buckets:      conf.DefaultBuckets,
			AlignPow:     conf.DefaultAlignPow,
			FreeBlockPow: conf.DefaultFreeBlockPow,
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	db.cache, _ = cache.New(0)

	for _, opt := range opts {
		opt(db)
	}

	return
}

// Tune - Sets the structural parameters used when a file gets created, only before the DB is opened the first time.
// An existing file always keeps the parameters in its header.
//   - buckets is the bucket count, rounded up to a power of 2, negative keeps the current value
//   - alignPow is the alignment power 0..16, negative keeps the current value
//   - freeBlockPow is the free block pool power 0..16, negative keeps the current value
//   - opts is the option bit set, at most one compression option
//
// It returns:
//   - err is InvalidState if the DB was ever opened and InvalidArgument for out of range values
func (D *DB) Tune(buckets int64, alignPow, freeBlockPow int8, opts Opt) (err error) {
	D.mu.Lock()
	defer D.mu.Unlock()
	defer func() { D.setErr(err) }()

	if D.everOpened {
		err = newError("tune", InvalidState, fmt.Errorf("tuning is only possible before the first open"))
		return
	}

	tuning := D.tuning
	if buckets >= 0 {
		if buckets == 0 || buckets > conf.MaxBuckets {
			err = newError("tune", InvalidArgument, fmt.Errorf("bucket count must be between 1 and %d, got %d", conf.MaxBuckets, buckets))
			return
		}
		tuning.Buckets = utils.RoundUp2(buckets)
	}
	if alignPow >= 0 {
		tuning.AlignPow = alignPow
	}
	if freeBlockPow >= 0 {
		tuning.FreeBlockPow = freeBlockPow
	}
	tuning.Options = uint8(opts)

	if vErr := storage.ValidateTuning(tuning); vErr != nil {
		err = newError("tune", InvalidArgument, vErr)
		return
	}
	D.tuning = tuning

	return
}

// SetCacheCapacity - Sets the max number of values held in the record cache, zero disables it.
// Takes effect immediately in any state, shrinking evicts the least recently used values.
func (D *DB) SetCacheCapacity(n int) (err error) {
	defer func() { D.setErr(err) }()

	if n < 0 {
		err = newError("set cache capacity", InvalidArgument, fmt.Errorf("negative capacity %d", n))
		return
	}

	if cErr := D.cache.SetCapacity(n); cErr != nil {
		err = newError("set cache capacity", InvalidArgument, cErr)
	}

	return
}

// Open - Opens the file at path, creating or truncating it if asked to by mode.
//   - path is the path of the file
//   - mode is a combination of Reader or Writer with Create, Truncate, NoLock and NonBlockingLock
//
// It returns:
//   - err is InvalidState if already open, otherwise NotFound, PermissionDenied, CorruptFile, WouldBlock or IOError
func (D *DB) Open(path string, mode Mode) (err error) {
	D.mu.Lock()
	defer D.mu.Unlock()
	defer func() { D.setErr(err) }()

	if D.storage != nil {
		err = newError("open", InvalidState, fmt.Errorf("already open on %s", D.path))
		return
	}
	if path == "" {
		err = newError("open", InvalidArgument, fmt.Errorf("empty path"))
		return
	}
	writable := mode&Writer != 0
	if !writable && mode&Reader == 0 {
		err = newError("open", InvalidArgument, fmt.Errorf("mode must include Reader or Writer"))
		return
	}
	if !writable && mode&(Create|Truncate) != 0 {
		err = newError("open", InvalidArgument, fmt.Errorf("create and truncate require writer mode"))
		return
	}

	s, sErr := storage.Open(storage.Conf{
		FileName:        path,
		Tuning:          D.tuning,
		Writable:        writable,
		Create:          mode&Create != 0,
		Truncate:        mode&Truncate != 0,
		NoLock:          mode&NoLock != 0,
		NonBlockingLock: mode&NonBlockingLock != 0,
		Codec:           D.codec,
		Logger:          D.logger,
	})
	if sErr != nil {
		err = toError("open", sErr)
		return
	}

	D.storage = s
	D.path = path
	D.everOpened = true
	D.nonBlocking.Store(mode&NonBlockingLock != 0)
	D.session++
	D.cache.Purge()

	D.iterMu.Lock()
	D.cursor = &Cursor{db: D, session: D.session}
	D.iterMu.Unlock()

	params := s.GetStorageParameters()
	D.logger.Info("opened", "path", path, "writable", writable, "records", params.RecordCount, "recovered", params.Recovered)

	return
}

// Close - Writes the free block pool and header, clearing the open flag, and releases file and lock.
// Calling it on a DB that is not open returns InvalidState. The file is released even if flushing fails.
func (D *DB) Close() (err error) {
	D.mu.Lock()
	defer D.mu.Unlock()
	defer func() { D.setErr(err) }()

	if D.storage == nil {
		err = newError("close", InvalidState, fmt.Errorf("not open"))
		return
	}

	sErr := D.storage.Close()
	D.storage = nil
	D.session++
	D.nonBlocking.Store(false)
	D.cache.Purge()

	err = toError("close", sErr)
	D.logger.Info("closed", "path", D.path)

	return
}

// Sync - Writes the free block pool and header and syncs the file to the device without closing it
func (D *DB) Sync() (err error) {
	if err = D.lock("sync"); err != nil {
		return
	}
	defer D.mu.Unlock()
	defer func() { D.setErr(err) }()

	if err = D.checkOpen("sync"); err != nil {
		return
	}

	err = toError("sync", D.storage.Sync())

	return
}

// Vanish - Removes all records, the structural parameters of the file are kept
func (D *DB) Vanish() (err error) {
	if err = D.lock("vanish"); err != nil {
		return
	}
	defer D.mu.Unlock()
	defer func() { D.setErr(err) }()

	if err = D.checkOpen("vanish"); err != nil {
		return
	}

	err = toError("vanish", D.storage.Vanish())
	D.cache.Purge()

	return
}

// Stat - Returns statistics of the open file
func (D *DB) Stat() (stat Stat, err error) {
	if err = D.rlock("stat"); err != nil {
		return
	}
	defer D.mu.RUnlock()
	defer func() { D.setErr(err) }()

	if err = D.checkOpen("stat"); err != nil {
		return
	}

	used, uErr := D.storage.UsedBuckets()
	if uErr != nil {
		err = toError("stat", uErr)
		return
	}

	params := D.storage.GetStorageParameters()
	stat = Stat{
		Records:     params.RecordCount,
		FileSize:    params.FileSize,
		UsedBuckets: used,
		FreeBlocks:  params.FreeBlocks,
		FreeBytes:   params.FreeBytes,
		Tuning: Tuning{
			Buckets:      params.Tuning.Buckets,
			AlignPow:     params.Tuning.AlignPow,
			FreeBlockPow: params.Tuning.FreeBlockPow,
			Opts:         Opt(params.Tuning.Options),
		},
		Writable:  params.Writable,
		Recovered: params.Recovered,
	}

	return
}

// Count - Returns the number of records in the open file
func (D *DB) Count() (count int64, err error) {
	if err = D.rlock("count"); err != nil {
		return
	}
	defer D.mu.RUnlock()
	defer func() { D.setErr(err) }()

	if err = D.checkOpen("count"); err != nil {
		return
	}
	count = D.storage.Count()

	return
}

// Path - Returns the path given to the latest Open, empty if never opened
func (D *DB) Path() string {
	D.mu.RLock()
	defer D.mu.RUnlock()

	return D.path
}

// LastErr - Returns the error of the latest call, nil if it succeeded
func (D *DB) LastErr() error {
	D.errMu.Lock()
	defer D.errMu.Unlock()

	return D.lastErr
}

// ErrCode - Returns the Code of the latest call's error, Success if it succeeded
func (D *DB) ErrCode() Code {
	return ErrCodeOf(D.LastErr())
}

// setErr - Keeps err as the latest error, nil resets it
func (D *DB) setErr(err error) {
	D.errMu.Lock()
	D.lastErr = err
	D.errMu.Unlock()
}

// lock - Takes the write lock, without waiting if the DB was opened with NonBlockingLock
func (D *DB) lock(op string) (err error) {
	if D.nonBlocking.Load() {
		if !D.mu.TryLock() {
			err = newError(op, WouldBlock, nil)
			D.setErr(err)
		}
		return
	}
	D.mu.Lock()

	return
}

// rlock - Takes the read lock, without waiting if the DB was opened with NonBlockingLock
func (D *DB) rlock(op string) (err error) {
	if D.nonBlocking.Load() {
		if !D.mu.TryRLock() {
			err = newError(op, WouldBlock, nil)
			D.setErr(err)
		}
		return
	}
	D.mu.RLock()

	return
}

// checkOpen - Returns InvalidState unless the DB is open, the caller must hold a lock
func (D *DB) checkOpen(op string) error {
	if D.storage == nil {
		return newError(op, InvalidState, fmt.Errorf("not open"))
	}
	return nil
}
