package hash

import (
	"github.com/cespare/xxhash/v2"
	"github.com/gostonefire/hashdb/internal/utils"
)

// ChainingHashAlgorithm - The bucket selection algorithm is implemented using xxhash to create a 64-bit hash value
// over the key and then applying bucket = hash & (actualTableSize - 1) to get the bucket number,
// where actualTableSize is the nearest bigger exponent of 2 of the requested table size.
type ChainingHashAlgorithm struct {
	tableSize int64
}

// NewChainingHashAlgorithm - Returns a pointer to a new ChainingHashAlgorithm instance
func NewChainingHashAlgorithm(tableSize int64) *ChainingHashAlgorithm {
	ha := &ChainingHashAlgorithm{}
	ha.SetTableSize(tableSize)
	return ha
}

// SetTableSize - Sets the table size for the hash algorithm.
// In this implementation it updates the table size to the nearest bigger exponent of 2 of the requested table size.
//   - tableSize is the number of buckets the file will address
func (C *ChainingHashAlgorithm) SetTableSize(tableSize int64) {
	C.tableSize = utils.RoundUp2(tableSize)
}

// BucketNumber - Given key it generates an index (bucket) between 0 and table size - 1
func (C *ChainingHashAlgorithm) BucketNumber(key []byte) int64 {
	return int64(xxhash.Sum64(key) & uint64(C.tableSize-1))
}

// GetTableSize - Returns the table size the hash function is supporting
func (C *ChainingHashAlgorithm) GetTableSize() int64 {
	return C.tableSize
}

// Checksum - Returns the checksum used to protect the file header
func Checksum(buf []byte) uint64 {
	return xxhash.Sum64(buf)
}
