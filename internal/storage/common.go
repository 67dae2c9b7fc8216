package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/gostonefire/hashdb/internal/conf"
	"github.com/gostonefire/hashdb/internal/hash"
	"github.com/gostonefire/hashdb/internal/model"
	"github.com/gostonefire/hashdb/internal/utils"
)

// Layout - Positions of the file regions derived from the structural parameters
//   - SlotWidth is the byte width of one bucket slot
//   - PoolOffset is where the persisted free block pool starts
//   - PoolLength is the byte length of the free block pool region
//   - RecordStart is the first byte of the record region
type Layout struct {
	SlotWidth   int64
	PoolOffset  int64
	PoolLength  int64
	RecordStart int64
}

// GetLayout - Returns the file layout for the given tuning
func GetLayout(tuning model.Tuning) (layout Layout) {
	layout.SlotWidth = 4
	if tuning.Options&conf.OptLarge != 0 {
		layout.SlotWidth = 8
	}
	layout.PoolOffset = conf.FileHeaderLength + tuning.Buckets*layout.SlotWidth
	layout.PoolLength = conf.PoolCountLength + (int64(1)<<tuning.FreeBlockPow)*conf.PoolEntryLength
	layout.RecordStart = utils.AlignUp(layout.PoolOffset+layout.PoolLength, tuning.AlignPow)

	return
}

// ValidateTuning - Checks that structural parameters are within accepted ranges
func ValidateTuning(tuning model.Tuning) (err error) {
	if tuning.Buckets <= 0 || tuning.Buckets > conf.MaxBuckets || utils.RoundUp2(tuning.Buckets) != tuning.Buckets {
		err = fmt.Errorf("bucket count must be a power of 2 between 1 and %d, got %d", conf.MaxBuckets, tuning.Buckets)
		return
	}
	if tuning.AlignPow < 0 || tuning.AlignPow > conf.MaxAlignPow {
		err = fmt.Errorf("alignment power must be between 0 and %d, got %d", conf.MaxAlignPow, tuning.AlignPow)
		return
	}
	if tuning.FreeBlockPow < 0 || tuning.FreeBlockPow > conf.MaxFreeBlockPow {
		err = fmt.Errorf("free block pool power must be between 0 and %d, got %d", conf.MaxFreeBlockPow, tuning.FreeBlockPow)
		return
	}
	if tuning.Options&^conf.OptAll != 0 {
		err = fmt.Errorf("unknown option bits: %#x", tuning.Options&^conf.OptAll)
		return
	}
	if c := tuning.Options & conf.OptCompression; c&(c-1) != 0 {
		err = fmt.Errorf("at most one compression option can be set")
		return
	}

	return
}

// bytesToHeader - Converts a slice of bytes to a Header struct and validates it
func bytesToHeader(buf []byte) (header model.Header, err error) {
	if int64(len(buf)) < conf.FileHeaderLength {
		err = CorruptFile{msg: fmt.Sprintf("header too short: %d bytes", len(buf))}
		return
	}
	if string(buf[conf.MagicOffset:conf.MagicOffset+int64(len(conf.FileMagic))]) != conf.FileMagic {
		err = CorruptFile{msg: "invalid magic in header"}
		return
	}
	if hash.Checksum(buf[:conf.ChecksumOffset]) != binary.LittleEndian.Uint64(buf[conf.ChecksumOffset:]) {
		err = CorruptFile{msg: "header checksum mismatch"}
		return
	}

	header = model.Header{
		Version:      binary.LittleEndian.Uint16(buf[conf.VersionOffset:]),
		AlignPow:     int8(buf[conf.AlignPowOffset]),
		FreeBlockPow: int8(buf[conf.FreeBlockPowOffset]),
		Options:      buf[conf.OptionsOffset],
		Flags:        buf[conf.FlagsOffset],
		BucketCount:  int64(binary.LittleEndian.Uint64(buf[conf.BucketCountOffset:])),
		RecordCount:  int64(binary.LittleEndian.Uint64(buf[conf.RecordCountOffset:])),
		FileSize:     int64(binary.LittleEndian.Uint64(buf[conf.FileSizeOffset:])),
		RecordStart:  int64(binary.LittleEndian.Uint64(buf[conf.RecordStartOffset:])),
	}

	if header.Version != conf.FormatVersion {
		err = CorruptFile{msg: fmt.Sprintf("invalid/incompatible version: %d", header.Version)}
		return
	}
	if vErr := ValidateTuning(header.Tuning()); vErr != nil {
		err = CorruptFile{msg: fmt.Sprintf("invalid structural parameters in header: %s", vErr)}
		return
	}
	if GetLayout(header.Tuning()).RecordStart != header.RecordStart || header.FileSize < header.RecordStart {
		err = CorruptFile{msg: "header layout doesn't conform with structural parameters"}
		return
	}

	return
}

// headerToBytes - Converts a Header struct to a slice of bytes, checksum included
func headerToBytes(header model.Header) (buf []byte) {
	buf = make([]byte, conf.FileHeaderLength)

	copy(buf[conf.MagicOffset:], conf.FileMagic)
	binary.LittleEndian.PutUint16(buf[conf.VersionOffset:], header.Version)
	buf[conf.AlignPowOffset] = uint8(header.AlignPow)
	buf[conf.FreeBlockPowOffset] = uint8(header.FreeBlockPow)
	buf[conf.OptionsOffset] = header.Options
	buf[conf.FlagsOffset] = header.Flags
	binary.LittleEndian.PutUint64(buf[conf.BucketCountOffset:], uint64(header.BucketCount))
	binary.LittleEndian.PutUint64(buf[conf.RecordCountOffset:], uint64(header.RecordCount))
	binary.LittleEndian.PutUint64(buf[conf.FileSizeOffset:], uint64(header.FileSize))
	binary.LittleEndian.PutUint64(buf[conf.RecordStartOffset:], uint64(header.RecordStart))
	binary.LittleEndian.PutUint64(buf[conf.ChecksumOffset:], hash.Checksum(buf[:conf.ChecksumOffset]))

	return
}
