package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/gostonefire/hashdb/internal/conf"
	"github.com/gostonefire/hashdb/internal/model"
	"github.com/gostonefire/hashdb/internal/utils"
)

// readAheadLength - Number of bytes read in one go when fetching a record, enough for header and typical short keys
const readAheadLength int64 = 256

// slotBatch - Number of bucket slots read in one go when scanning the bucket array
const slotBatch int64 = 512

// openFile - Opens (and creates if asked to) the storage file and returns its current size
func (S *Storage) openFile(sc Conf) (size int64, err error) {
	_, err = os.Stat(sc.FileName)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) || !(sc.Writable && sc.Create) {
			return
		}
	}

	flag := os.O_RDONLY
	if sc.Writable {
		flag = os.O_RDWR
		if sc.Create {
			flag |= os.O_CREATE
		}
	}

	S.file, err = os.OpenFile(sc.FileName, flag, 0644)
	if err != nil {
		return
	}

	if !sc.NoLock {
		err = S.lockFile(sc)
		if err != nil {
			_ = S.file.Close()
			S.file = nil
			return
		}
	}

	stat, err := S.file.Stat()
	if err != nil {
		S.closeFile()
		return
	}
	size = stat.Size()

	return
}

// lockFile - Takes the advisory lock on the storage path, exclusive for writers and shared for readers
func (S *Storage) lockFile(sc Conf) (err error) {
	S.lock = flock.New(sc.FileName)

	var locked bool
	switch {
	case sc.Writable && sc.NonBlockingLock:
		locked, err = S.lock.TryLock()
	case sc.Writable:
		err = S.lock.Lock()
		locked = err == nil
	case sc.NonBlockingLock:
		locked, err = S.lock.TryRLock()
	default:
		err = S.lock.RLock()
		locked = err == nil
	}

	if err == nil && !locked {
		err = FileLocked{msg: fmt.Sprintf("%s is locked by another handle or process", sc.FileName)}
	}
	if err != nil {
		S.lock = nil
	}

	return
}

// closeFile - Releases the lock and closes the file
func (S *Storage) closeFile() (err error) {
	if S.lock != nil {
		err = S.lock.Unlock()
		S.lock = nil
	}
	if S.file != nil {
		if cErr := S.file.Close(); err == nil {
			err = cErr
		}
		S.file = nil
	}

	return
}

// readAt - Reads exactly len(buf) bytes at offset
func (S *Storage) readAt(buf []byte, offset int64) (err error) {
	_, err = S.file.ReadAt(buf, offset)
	if errors.Is(err, io.EOF) {
		err = CorruptFile{msg: fmt.Sprintf("unexpected end of file reading %d bytes at %d", len(buf), offset)}
	}

	return
}

// writeAt - Writes buf at offset, a full disk is reported as OutOfSpace
func (S *Storage) writeAt(buf []byte, offset int64) (err error) {
	if !S.writable {
		err = ReadOnly{}
		return
	}

	_, err = S.file.WriteAt(buf, offset)
	if errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EFBIG) {
		err = OutOfSpace{msg: fmt.Sprintf("unable to write %d bytes at %d: %s", len(buf), offset, err)}
	}

	return
}

// initialize - Lays out an empty file using the given tuning, all existing content is discarded
func (S *Storage) initialize(tuning model.Tuning) (err error) {
	layout := GetLayout(tuning)

	// Truncating to the header first guarantees a zeroed bucket array and pool region
	err = S.file.Truncate(conf.FileHeaderLength)
	if err != nil {
		err = fmt.Errorf("error while truncate file to length %d: %w", conf.FileHeaderLength, err)
		return
	}
	err = S.file.Truncate(layout.RecordStart)
	if err != nil {
		err = fmt.Errorf("error while extend file to length %d: %w", layout.RecordStart, err)
		return
	}

	S.layout = layout
	S.header = model.Header{
		Version:      conf.FormatVersion,
		AlignPow:     tuning.AlignPow,
		FreeBlockPow: tuning.FreeBlockPow,
		Options:      tuning.Options,
		Flags:        conf.FlagOpen,
		BucketCount:  tuning.Buckets,
		FileSize:     layout.RecordStart,
		RecordStart:  layout.RecordStart,
	}
	S.pool.Reset()

	err = S.writeHeader()
	if err != nil {
		err = fmt.Errorf("error while writing header to file: %w", err)
	}

	return
}

// loadHeader - Reads and validates the header of an existing file
func (S *Storage) loadHeader(size int64) (err error) {
	if size < conf.FileHeaderLength {
		err = CorruptFile{msg: fmt.Sprintf("file size %d is smaller than the header", size)}
		return
	}

	buf := make([]byte, conf.FileHeaderLength)
	err = S.readAt(buf, 0)
	if err != nil {
		return
	}

	S.header, err = bytesToHeader(buf)
	if err != nil {
		return
	}
	S.layout = GetLayout(S.header.Tuning())

	if S.header.Flags&conf.FlagOpen == 0 && size != S.header.FileSize {
		err = CorruptFile{msg: fmt.Sprintf("actual file size %d doesn't conform with header indicated file size %d", size, S.header.FileSize)}
		return
	}
	if size < S.layout.RecordStart {
		err = CorruptFile{msg: "file is shorter than its bucket array"}
	}

	return
}

// writeHeader - Writes the in memory header to file
func (S *Storage) writeHeader() error {
	return S.writeAt(headerToBytes(S.header), 0)
}

// writePool - Persists the free block pool
func (S *Storage) writePool() error {
	return S.writeAt(poolToBytes(S.pool.Blocks(), S.layout.PoolLength), S.layout.PoolOffset)
}

// loadPool - Reads the persisted free block pool
func (S *Storage) loadPool() (err error) {
	buf := make([]byte, S.layout.PoolLength)
	err = S.readAt(buf, S.layout.PoolOffset)
	if err != nil {
		return
	}

	blocks, err := bytesToPool(buf, S.header.RecordStart, S.header.FileSize)
	if err != nil {
		return
	}
	S.pool.Load(blocks)

	return
}

// recover - Rebuilds counters of a file that was not closed cleanly.
// The persisted pool can't be trusted so it is discarded, leaking its spans rather than risking double use.
func (S *Storage) recover(size int64) (err error) {
	S.header.FileSize = utils.AlignUp(size, S.header.AlignPow)
	S.pool.Reset()

	var count int64
	var pos Position
	var ok bool
	for {
		_, ok, err = S.Next(&pos)
		if err != nil || !ok {
			break
		}
		count++
	}
	if err != nil {
		return
	}

	S.header.RecordCount = count
	S.recovered = true
	S.logger.Warn("recovered file not closed cleanly", "file", S.fileName, "records", count, "fileSize", S.header.FileSize)

	return
}

// getBucketHead - Returns the offset of the first record in the bucket chain, zero if the bucket is empty
func (S *Storage) getBucketHead(bucketNo int64) (offset int64, err error) {
	buf := make([]byte, S.layout.SlotWidth)
	err = S.readAt(buf, conf.FileHeaderLength+bucketNo*S.layout.SlotWidth)
	if err != nil {
		return
	}

	offset = slotToOffset(buf, S.layout.SlotWidth, S.header.AlignPow)

	return
}

// setBucketHead - Sets the offset of the first record in the bucket chain
func (S *Storage) setBucketHead(bucketNo, offset int64) (err error) {
	if S.layout.SlotWidth == 4 && offset>>S.header.AlignPow > math.MaxUint32 {
		err = OutOfSpace{msg: "record offset doesn't fit a bucket slot, use the large file option"}
		return
	}

	return S.writeAt(offsetToSlot(offset, S.layout.SlotWidth, S.header.AlignPow), conf.FileHeaderLength+bucketNo*S.layout.SlotWidth)
}

// nextNonEmptyBucket - Scans the bucket array from bucketNo and returns the first non-empty bucket and its chain head.
// A bucketNo equal to the bucket count means no more non-empty buckets.
func (S *Storage) nextNonEmptyBucket(bucketNo int64) (found, head int64, err error) {
	for bucketNo < S.header.BucketCount {
		n := min(slotBatch, S.header.BucketCount-bucketNo)
		buf := make([]byte, n*S.layout.SlotWidth)
		err = S.readAt(buf, conf.FileHeaderLength+bucketNo*S.layout.SlotWidth)
		if err != nil {
			return
		}

		for i := int64(0); i < n; i++ {
			head = slotToOffset(buf[i*S.layout.SlotWidth:], S.layout.SlotWidth, S.header.AlignPow)
			if head != 0 {
				found = bucketNo + i
				return
			}
		}
		bucketNo += n
	}

	found = S.header.BucketCount
	head = 0

	return
}

// getRecord - Reads the record at offset with its key but without its value
func (S *Storage) getRecord(offset int64) (record model.Record, err error) {
	if offset < S.header.RecordStart || offset+conf.RecordHeaderLength > S.header.FileSize {
		err = CorruptFile{msg: fmt.Sprintf("record offset %d outside record region", offset)}
		return
	}

	// Padding of the last record is not on disk until the file is flushed, so a short read is accepted
	buf := make([]byte, min(readAheadLength, S.header.FileSize-offset))
	n, err := S.file.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return
	}
	err = nil
	buf = buf[:n]

	record, err = bytesToRecordHeader(buf, offset)
	if err != nil {
		return
	}
	if offset+record.Size > S.header.FileSize {
		err = CorruptFile{msg: fmt.Sprintf("record at %d extends beyond end of file", offset)}
		return
	}

	keyEnd := conf.RecordHeaderLength + record.KeyLength
	if keyEnd <= int64(len(buf)) {
		record.Key = utils.CopyBytes(buf[conf.RecordHeaderLength:keyEnd])
		return
	}

	record.Key = make([]byte, record.KeyLength)
	err = S.readAt(record.Key, offset+conf.RecordHeaderLength)

	return
}

// getValue - Reads the stored value of a record fetched by getRecord
func (S *Storage) getValue(record model.Record) (value []byte, err error) {
	value = make([]byte, record.ValueLength)
	if record.ValueLength == 0 {
		return
	}

	err = S.readAt(value, record.Offset+conf.RecordHeaderLength+record.KeyLength)

	return
}

// setRecord - Writes a record, its PadSize is derived from its Size
func (S *Storage) setRecord(record model.Record) error {
	record.PadSize = record.Size - conf.RecordHeaderLength - int64(len(record.Key)) - int64(len(record.Value))
	return S.writeAt(recordToBytes(record), record.Offset)
}

// setNext - Points the link before a chain position at next, the bucket slot when prevOffset is zero
func (S *Storage) setNext(bucketNo, prevOffset, next int64) error {
	if prevOffset == 0 {
		return S.setBucketHead(bucketNo, next)
	}

	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(next))

	return S.writeAt(buf, prevOffset+conf.RecordNextOffset)
}

// find - Walks the chain of the bucket that key hashes to.
// It returns:
//   - bucketNo is the bucket of the key
//   - prev is the offset of the record before the match, zero if the match is the chain head
//   - tail is the offset of the last record in the chain when there was no match, zero for an empty chain
//   - record is the matching record (key only) if found is true
func (S *Storage) find(key []byte) (bucketNo, prev, tail int64, record model.Record, found bool, err error) {
	bucketNo = S.hashAlgorithm.BucketNumber(key)

	head, err := S.getBucketHead(bucketNo)
	if err != nil {
		return
	}

	iter := newChainRecords(S.getRecord, head)
	for iter.hasNext() {
		record, err = iter.next()
		if err != nil {
			return
		}
		if bytes.Equal(key, record.Key) {
			found = true
			return
		}
		prev = record.Offset
	}

	tail = prev
	prev = 0
	record = model.Record{}

	return
}

// allocate - Returns a span of at least size bytes, reusing the free block pool before extending the file
func (S *Storage) allocate(size int64) (offset, allocated int64, err error) {
	block, remainder, ok := S.pool.Take(size)
	if ok {
		if remainder.Size > 0 {
			err = S.writeAt(freeBlockToBytes(remainder), remainder.Offset)
			if err != nil {
				return
			}
		}
		offset, allocated = block.Offset, block.Size
		return
	}

	offset = S.header.FileSize
	if S.layout.SlotWidth == 4 && offset>>S.header.AlignPow > math.MaxUint32 {
		err = OutOfSpace{msg: "file reached the max size addressable without the large file option"}
		return
	}
	allocated = size
	S.header.FileSize += size

	return
}

// rollback - Gives back a span from allocate whose write failed
func (S *Storage) rollback(offset, allocated int64) {
	if offset+allocated == S.header.FileSize {
		S.header.FileSize = offset
		_ = S.file.Truncate(offset)
		return
	}
	_, _ = S.pool.Add(model.FreeBlock{Offset: offset, Size: allocated})
}

// release - Marks a span free on disk and hands it to the free block pool
func (S *Storage) release(offset, size int64) (err error) {
	block := model.FreeBlock{Offset: offset, Size: size}
	err = S.writeAt(freeBlockToBytes(block), offset)
	if err != nil {
		return
	}

	if dropped, ok := S.pool.Add(block); ok {
		S.logger.Debug("free block pool full, span left as fragmentation", "offset", dropped.Offset, "size", dropped.Size)
	}

	return
}
