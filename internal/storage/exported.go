package storage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/gofrs/flock"
	"github.com/gostonefire/hashdb/internal/codec"
	"github.com/gostonefire/hashdb/internal/conf"
	"github.com/gostonefire/hashdb/internal/freepool"
	"github.com/gostonefire/hashdb/internal/hash"
	"github.com/gostonefire/hashdb/internal/model"
	"github.com/gostonefire/hashdb/internal/utils"
)

// Conf - Configuration used when opening a storage file
//   - FileName is the path of the file
//   - Tuning is the structural parameters used if the file gets created or truncated
//   - Writable opens the file for writing, otherwise it is opened for reading only
//   - Create creates the file if it doesn't exist, only with Writable
//   - Truncate discards any existing content, only with Writable
//   - NoLock skips the advisory file lock
//   - NonBlockingLock fails with FileLocked instead of waiting for the lock
//   - Codec is the value codec used when the options carry conf.OptCustom
//   - Logger receives storage events, nil discards them
type Conf struct {
	FileName        string
	Tuning          model.Tuning
	Writable        bool
	Create          bool
	Truncate        bool
	NoLock          bool
	NonBlockingLock bool
	Codec           codec.Codec
	Logger          *slog.Logger
}

// PutMode - How Put treats an already existing key
type PutMode int

const (
	// PutOverwrite - Replace the value of an existing key
	PutOverwrite PutMode = iota
	// PutKeep - Leave an existing key untouched
	PutKeep
	// PutConcat - Append to the value of an existing key
	PutConcat
)

// Position - A resumable position in a full scan of the file.
// The zero value is the beginning of the scan.
//   - Bucket is the bucket being scanned
//   - Next is the offset of the next record to return in the bucket chain, zero to look for the next non-empty bucket
type Position struct {
	Bucket     int64
	Next       int64
	generation uint64
	returned   map[string]struct{}
}

// nextBucket - Moves the position to the start of the following bucket
func (P *Position) nextBucket() {
	P.Bucket++
	P.Next = 0
	P.returned = nil
}

// markReturned - Records key as returned from the current bucket
func (P *Position) markReturned(key []byte) {
	if P.returned == nil {
		P.returned = make(map[string]struct{})
	}
	P.returned[string(key)] = struct{}{}
}

// Storage - Represents an open hash db file with its header, bucket array, free block pool and record region.
// It does no synchronization of its own, concurrent use must be serialized by the caller except for
// concurrent calls to Get and Next that are safe among themselves.
type Storage struct {
	fileName      string
	file          *os.File
	lock          *flock.Flock
	header        model.Header
	layout        Layout
	pool          *freepool.Pool
	hashAlgorithm *hash.ChainingHashAlgorithm
	codec         codec.Codec
	writable      bool
	recovered     bool
	generation    uint64
	logger        *slog.Logger
}

// Open - Returns a pointer to a new Storage given the configuration.
// A writer creates a new layout when the file is truncated or newly created, otherwise the existing header
// is validated and a file that was not closed cleanly gets recovered.
//   - sc is the Conf struct with path, structural parameters and open flags
//
// It returns:
//   - storage is a pointer to the opened instance
//   - err is standard error, CorruptFile if the file is not a valid hash db file and FileLocked if the lock is held
func Open(sc Conf) (storage *Storage, err error) {
	storage = &Storage{
		fileName: sc.FileName,
		writable: sc.Writable,
		logger:   sc.Logger,
	}
	if storage.logger == nil {
		storage.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	fresh := sc.Writable && sc.Truncate
	if fresh || (sc.Writable && sc.Create) {
		if err = ValidateTuning(sc.Tuning); err != nil {
			storage = nil
			return
		}
	}

	size, err := storage.openFile(sc)
	if err != nil {
		storage = nil
		return
	}
	fresh = fresh || (sc.Writable && sc.Create && size == 0)

	err = storage.load(sc, size, fresh)
	if err != nil {
		_ = storage.closeFile()
		storage = nil
		return
	}

	storage.logger.Debug("storage opened", "file", sc.FileName, "writable", sc.Writable, "records", storage.header.RecordCount)

	return
}

// load - Lays out a fresh file or loads an existing one and prepares codec and hash algorithm for it
func (S *Storage) load(sc Conf, size int64, fresh bool) (err error) {
	if fresh {
		S.codec, err = codec.ForOptions(sc.Tuning.Options, sc.Codec)
		if err != nil {
			return
		}
		S.pool = newPool(sc.Tuning)
		err = S.initialize(sc.Tuning)
		if err != nil {
			return
		}
	} else {
		err = S.loadHeader(size)
		if err != nil {
			return
		}
		S.pool = newPool(S.header.Tuning())
		S.codec, err = codec.ForOptions(S.header.Options, sc.Codec)
		if err != nil {
			return
		}
	}
	S.hashAlgorithm = hash.NewChainingHashAlgorithm(S.header.BucketCount)

	if fresh {
		return
	}

	if S.header.Flags&conf.FlagOpen != 0 {
		if !S.writable {
			// Readers can't fix the file, they only avoid trusting its counters
			S.header.FileSize = utils.AlignUp(size, S.header.AlignPow)
			S.logger.Warn("file was not closed cleanly, reading without recovery", "file", S.fileName)
			return
		}
		err = S.recover(size)
		if err != nil {
			return
		}
	} else {
		err = S.loadPool()
		if err != nil {
			return
		}
	}

	if S.writable {
		S.header.Flags |= conf.FlagOpen
		err = S.writeHeader()
	}

	return
}

// newPool - Returns a free block pool sized for the given structural parameters
func newPool(tuning model.Tuning) *freepool.Pool {
	minSplit := utils.AlignUp(conf.RecordHeaderLength+1, tuning.AlignPow)
	return freepool.New(tuning.AlignPow, tuning.FreeBlockPow, minSplit)
}

// Close - Persists pool and header, clears the open flag and closes the file.
// Only writers touch the file content.
func (S *Storage) Close() (err error) {
	if S.file == nil {
		return
	}

	if S.writable {
		err = S.flush(false)
	}

	if cErr := S.closeFile(); err == nil {
		err = cErr
	}

	S.logger.Debug("storage closed", "file", S.fileName)

	return
}

// Sync - Persists pool and header and syncs the file to the device, the file stays open for writing
func (S *Storage) Sync() (err error) {
	if !S.writable {
		err = ReadOnly{}
		return
	}

	return S.flush(true)
}

// flush - Writes the pool and header to the file, the open flag is kept when keepOpen is true
func (S *Storage) flush(keepOpen bool) (err error) {
	err = S.file.Truncate(S.header.FileSize)
	if err != nil {
		err = fmt.Errorf("error while setting file size to %d: %w", S.header.FileSize, err)
		return
	}
	err = S.writePool()
	if err != nil {
		return
	}

	if !keepOpen {
		err = S.file.Sync()
		if err != nil {
			return
		}
		S.header.Flags &^= conf.FlagOpen
	}

	err = S.writeHeader()
	if err != nil {
		return
	}

	return S.file.Sync()
}

// Get - Returns the value stored under key
//   - key is the key to look up
//
// It returns:
//   - value is the decoded value, nil if not found
//   - found is true if the key exists
//   - err is standard error
func (S *Storage) Get(key []byte) (value []byte, found bool, err error) {
	_, _, _, record, found, err := S.find(key)
	if err != nil || !found {
		return
	}

	value, err = S.readValue(record)

	return
}

// readValue - Reads and decodes the value of a record fetched by find
func (S *Storage) readValue(record model.Record) (value []byte, err error) {
	value, err = S.getValue(record)
	if err != nil {
		return
	}

	if record.Flags&conf.RecordFlagCompressed != 0 {
		if S.codec == nil {
			err = CorruptFile{msg: fmt.Sprintf("record at %d is compressed but the file has no codec", record.Offset)}
			return
		}
		value, err = S.codec.Decode(value)
		if err != nil {
			err = CorruptFile{msg: fmt.Sprintf("unable to decode value of record at %d: %s", record.Offset, err)}
		}
	}

	return
}

// Put - Stores value under key, how an existing key is treated is given by mode.
// A new key is appended at the tail of its bucket chain. An existing record is rewritten in place if the new
// content fits its span, otherwise the new record is written elsewhere and linked before the old span is freed.
//   - key is the key, it must not be empty
//   - value is the value
//   - mode is one of PutOverwrite, PutKeep or PutConcat
//
// It returns:
//   - stored is false only when mode is PutKeep and the key already exists
//   - err is standard error
func (S *Storage) Put(key, value []byte, mode PutMode) (stored bool, err error) {
	if !S.writable {
		err = ReadOnly{}
		return
	}

	bucketNo, prev, tail, record, found, err := S.find(key)
	if err != nil {
		return
	}

	if found {
		switch mode {
		case PutKeep:
			return
		case PutConcat:
			var current []byte
			current, err = S.readValue(record)
			if err != nil {
				return
			}
			value = append(current, value...)
		}
	}
	S.generation++

	newRecord := model.Record{Key: key, Value: value}
	if S.codec != nil {
		newRecord.Value, err = S.codec.Encode(value)
		if err != nil {
			err = fmt.Errorf("error while encoding value: %w", err)
			return
		}
		newRecord.Flags = conf.RecordFlagCompressed
	}
	if int64(len(newRecord.Key)) > conf.MaxKeyLength || int64(len(newRecord.Value)) > conf.MaxValueLength {
		err = fmt.Errorf("record too large: key %d bytes, value %d bytes", len(newRecord.Key), len(newRecord.Value))
		return
	}

	length := conf.RecordHeaderLength + int64(len(newRecord.Key)) + int64(len(newRecord.Value))

	if found && length <= record.Size {
		newRecord.Offset = record.Offset
		newRecord.Size = record.Size
		newRecord.Next = record.Next
		err = S.setRecord(newRecord)
		stored = err == nil
		return
	}

	newRecord.Offset, newRecord.Size, err = S.allocate(utils.AlignUp(length, S.header.AlignPow))
	if err != nil {
		return
	}
	if found {
		newRecord.Next = record.Next
	}

	err = S.setRecord(newRecord)
	if err != nil {
		S.rollback(newRecord.Offset, newRecord.Size)
		return
	}

	if found {
		err = S.setNext(bucketNo, prev, newRecord.Offset)
	} else {
		err = S.setNext(bucketNo, tail, newRecord.Offset)
	}
	if err != nil {
		S.rollback(newRecord.Offset, newRecord.Size)
		return
	}

	if found {
		S.logger.Debug("record relocated", "from", record.Offset, "to", newRecord.Offset, "size", newRecord.Size)
		err = S.release(record.Offset, record.Size)
	} else {
		S.header.RecordCount++
	}
	stored = err == nil

	return
}

// Remove - Unlinks and frees the record of key
//   - key is the key to remove
//
// It returns:
//   - removed is true if the key existed
//   - err is standard error
func (S *Storage) Remove(key []byte) (removed bool, err error) {
	if !S.writable {
		err = ReadOnly{}
		return
	}

	bucketNo, prev, _, record, found, err := S.find(key)
	if err != nil || !found {
		return
	}
	S.generation++

	err = S.setNext(bucketNo, prev, record.Next)
	if err != nil {
		return
	}
	S.header.RecordCount--
	removed = true

	err = S.release(record.Offset, record.Size)

	return
}

// Vanish - Removes all records, keeping the structural parameters of the file
func (S *Storage) Vanish() (err error) {
	if !S.writable {
		err = ReadOnly{}
		return
	}
	S.generation++

	err = S.initialize(S.header.Tuning())
	if err != nil {
		return
	}
	S.recovered = false

	S.logger.Debug("storage vanished", "file", S.fileName)

	return
}

// Next - Returns the key at pos and advances pos to the following record.
// While the file is unchanged pos follows the chain offsets directly. After a Put, Remove or Vanish the current
// bucket chain is walked again from its head, skipping keys already returned from it, so a key not removed
// during the scan is returned exactly once. Keys added during the scan may or may not be returned.
//   - pos is the scan position, the zero value starts from the beginning
//
// It returns:
//   - key is the key of the record, nil when ok is false
//   - ok is false when all buckets have been scanned
//   - err is standard error
func (S *Storage) Next(pos *Position) (key []byte, ok bool, err error) {
	for {
		if pos.Next != 0 {
			var record model.Record
			if pos.generation == S.generation {
				record, err = S.getRecord(pos.Next)
			} else {
				record, err = S.resumeChain(pos)
			}
			if err != nil {
				if !errors.Is(err, CorruptFile{}) {
					return
				}
				S.logger.Debug("unreadable chain, skipping rest of bucket", "bucket", pos.Bucket, "offset", pos.Next, "error", err)
				err = nil
				pos.nextBucket()
				continue
			}
			if record.Offset == 0 {
				pos.nextBucket()
				continue
			}

			pos.generation = S.generation
			pos.markReturned(record.Key)
			pos.Next = record.Next
			if record.Next == 0 {
				pos.nextBucket()
			}
			key, ok = record.Key, true
			return
		}

		if pos.Bucket >= S.header.BucketCount {
			return
		}

		var bucketNo int64
		bucketNo, pos.Next, err = S.nextNonEmptyBucket(pos.Bucket)
		if err != nil {
			return
		}
		if bucketNo != pos.Bucket {
			pos.Bucket = bucketNo
			pos.returned = nil
		}
		pos.generation = S.generation
	}
}

// resumeChain - Walks the chain of the bucket at pos from its head and returns the first record whose key
// has not been returned yet, a zero record if there is none
func (S *Storage) resumeChain(pos *Position) (record model.Record, err error) {
	head, err := S.getBucketHead(pos.Bucket)
	if err != nil {
		return
	}

	iter := newChainRecords(S.getRecord, head)
	for iter.hasNext() {
		var r model.Record
		r, err = iter.next()
		if err != nil {
			return
		}
		if _, done := pos.returned[string(r.Key)]; !done {
			record = r
			return
		}
	}

	return
}

// UsedBuckets - Returns the number of buckets holding at least one record
func (S *Storage) UsedBuckets() (used int64, err error) {
	var bucketNo int64
	for {
		bucketNo, _, err = S.nextNonEmptyBucket(bucketNo)
		if err != nil || bucketNo >= S.header.BucketCount {
			return
		}
		used++
		bucketNo++
	}
}

// Count - Returns the number of live records
func (S *Storage) Count() int64 {
	return S.header.RecordCount
}

// GetStorageParameters - Returns a struct with storage parameters and counters
func (S *Storage) GetStorageParameters() (params model.StorageParameters) {
	params = model.StorageParameters{
		Tuning:      S.header.Tuning(),
		RecordCount: S.header.RecordCount,
		FileSize:    S.header.FileSize,
		RecordStart: S.header.RecordStart,
		FreeBlocks:  int64(S.pool.Len()),
		FreeBytes:   S.pool.Bytes(),
		Writable:    S.writable,
		Recovered:   S.recovered,
	}

	return
}
