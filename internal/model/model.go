package model

// Tuning - Structural parameters of a hash db file, fixed when the file is created
type Tuning struct {
	Buckets      int64
	AlignPow     int8
	FreeBlockPow int8
	Options      uint8
}

// Header - Represents the hash db file header data
type Header struct {
	Version      uint16
	AlignPow     int8
	FreeBlockPow int8
	Options      uint8
	Flags        uint8
	BucketCount  int64
	RecordCount  int64
	FileSize     int64
	RecordStart  int64
}

// Tuning - Returns the structural parameters held by the header
func (H Header) Tuning() Tuning {
	return Tuning{
		Buckets:      H.BucketCount,
		AlignPow:     H.AlignPow,
		FreeBlockPow: H.FreeBlockPow,
		Options:      H.Options,
	}
}

// Record - Represents one record in a bucket chain.
//   - Offset is where the record starts in the file
//   - Size is the full allocation, header and padding included
//   - Next is the offset of the following record in the chain, zero ends the chain
//   - Value is nil when only the key was read
type Record struct {
	Offset      int64
	Size        int64
	Flags       uint8
	KeyLength   int64
	ValueLength int64
	PadSize     int64
	Next        int64
	Key         []byte
	Value       []byte
}

// FreeBlock - A reclaimed span of the record region
type FreeBlock struct {
	Offset int64
	Size   int64
}

// StorageParameters - Represents parameters and counters of an open storage file
type StorageParameters struct {
	Tuning      Tuning
	RecordCount int64
	FileSize    int64
	RecordStart int64
	FreeBlocks  int64
	FreeBytes   int64
	Writable    bool
	Recovered   bool
}
