package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/gostonefire/hashdb/internal/conf"
	"github.com/gostonefire/hashdb/internal/model"
)

// bytesToRecordHeader - Converts the fixed part of a record to a Record struct without key and value
func bytesToRecordHeader(buf []byte, offset int64) (record model.Record, err error) {
	if int64(len(buf)) < conf.RecordHeaderLength {
		err = CorruptFile{msg: fmt.Sprintf("record at %d is truncated", offset)}
		return
	}
	if buf[0] != conf.RecordMagicLive {
		err = CorruptFile{msg: fmt.Sprintf("no live record at %d", offset)}
		return
	}

	record = model.Record{
		Offset:      offset,
		Flags:       buf[conf.RecordFlagsOffset],
		KeyLength:   int64(binary.LittleEndian.Uint32(buf[conf.RecordKeyLengthOffset:])),
		ValueLength: int64(binary.LittleEndian.Uint32(buf[conf.RecordValueLengthOffset:])),
		PadSize:     int64(binary.LittleEndian.Uint32(buf[conf.RecordPadOffset:])),
		Next:        int64(binary.LittleEndian.Uint64(buf[conf.RecordNextOffset:])),
	}
	record.Size = conf.RecordHeaderLength + record.KeyLength + record.ValueLength + record.PadSize

	if record.KeyLength == 0 {
		err = CorruptFile{msg: fmt.Sprintf("record at %d has an empty key", offset)}
	}

	return
}

// recordToBytes - Converts a Record struct to bytes, key and value included but not the padding
func recordToBytes(record model.Record) (buf []byte) {
	buf = make([]byte, conf.RecordHeaderLength, conf.RecordHeaderLength+int64(len(record.Key))+int64(len(record.Value)))
	buf[0] = conf.RecordMagicLive
	buf[conf.RecordFlagsOffset] = record.Flags
	binary.LittleEndian.PutUint32(buf[conf.RecordKeyLengthOffset:], uint32(len(record.Key)))
	binary.LittleEndian.PutUint32(buf[conf.RecordValueLengthOffset:], uint32(len(record.Value)))
	binary.LittleEndian.PutUint32(buf[conf.RecordPadOffset:], uint32(record.PadSize))
	binary.LittleEndian.PutUint64(buf[conf.RecordNextOffset:], uint64(record.Next))
	buf = append(buf, record.Key...)
	buf = append(buf, record.Value...)

	return
}

// freeBlockToBytes - Converts a free span to the marker written at its start
func freeBlockToBytes(block model.FreeBlock) (buf []byte) {
	buf = make([]byte, conf.FreeSizeOffset+8)
	buf[0] = conf.RecordMagicFree
	binary.LittleEndian.PutUint64(buf[conf.FreeSizeOffset:], uint64(block.Size))

	return
}

// poolToBytes - Converts free spans to the persisted pool region
func poolToBytes(blocks []model.FreeBlock, poolLength int64) (buf []byte) {
	buf = make([]byte, poolLength)
	binary.LittleEndian.PutUint64(buf, uint64(len(blocks)))

	pos := conf.PoolCountLength
	for _, b := range blocks {
		binary.LittleEndian.PutUint64(buf[pos:], uint64(b.Offset))
		binary.LittleEndian.PutUint64(buf[pos+8:], uint64(b.Size))
		pos += conf.PoolEntryLength
	}

	return
}

// bytesToPool - Converts the persisted pool region to free spans, validating them against the record region
func bytesToPool(buf []byte, recordStart, fileSize int64) (blocks []model.FreeBlock, err error) {
	count := int64(binary.LittleEndian.Uint64(buf))
	if count < 0 || conf.PoolCountLength+count*conf.PoolEntryLength > int64(len(buf)) {
		err = CorruptFile{msg: fmt.Sprintf("free block pool count %d out of range", count)}
		return
	}

	blocks = make([]model.FreeBlock, count)
	pos := conf.PoolCountLength
	for i := range blocks {
		blocks[i] = model.FreeBlock{
			Offset: int64(binary.LittleEndian.Uint64(buf[pos:])),
			Size:   int64(binary.LittleEndian.Uint64(buf[pos+8:])),
		}
		if blocks[i].Offset < recordStart || blocks[i].Size <= 0 || blocks[i].Offset+blocks[i].Size > fileSize {
			err = CorruptFile{msg: fmt.Sprintf("free block %d outside record region", i)}
			return
		}
		pos += conf.PoolEntryLength
	}

	return
}

// slotToOffset - Converts a bucket slot to a record offset
func slotToOffset(buf []byte, slotWidth int64, alignPow int8) int64 {
	if slotWidth == 8 {
		return int64(binary.LittleEndian.Uint64(buf)) << alignPow
	}
	return int64(binary.LittleEndian.Uint32(buf)) << alignPow
}

// offsetToSlot - Converts a record offset to a bucket slot
func offsetToSlot(offset, slotWidth int64, alignPow int8) (buf []byte) {
	buf = make([]byte, slotWidth)
	if slotWidth == 8 {
		binary.LittleEndian.PutUint64(buf, uint64(offset>>alignPow))
	} else {
		binary.LittleEndian.PutUint32(buf, uint32(offset>>alignPow))
	}

	return
}
