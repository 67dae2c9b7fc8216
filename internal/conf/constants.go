package conf

// FileMagic - Magic bytes at the very beginning of every hash db file
const FileMagic string = "HASHDB\x00\x00"

// FormatVersion - Version of the file format, stored in the header
const FormatVersion uint16 = 1

// FileHeaderLength - Length of the hash db file header
const FileHeaderLength int64 = 256

// MagicOffset - Header offset to the magic bytes - 8 bytes
const MagicOffset int64 = 0

// VersionOffset - Header offset to the format version - 2 bytes
const VersionOffset int64 = 8

// AlignPowOffset - Header offset to the alignment power - 1 byte
const AlignPowOffset int64 = 10

// FreeBlockPowOffset - Header offset to the free block pool power - 1 byte
const FreeBlockPowOffset int64 = 11

// OptionsOffset - Header offset to the option bits - 1 byte
const OptionsOffset int64 = 12

// FlagsOffset - Header offset to the state flags - 1 byte
const FlagsOffset int64 = 13

// BucketCountOffset - Header offset to the number of buckets - 8 bytes
const BucketCountOffset int64 = 16

// RecordCountOffset - Header offset to the number of live records - 8 bytes
const RecordCountOffset int64 = 24

// FileSizeOffset - Header offset to the logical file size - 8 bytes
const FileSizeOffset int64 = 32

// RecordStartOffset - Header offset to the first byte of the record region - 8 bytes
const RecordStartOffset int64 = 40

// ChecksumOffset - Header offset to the checksum over all bytes before it - 8 bytes
const ChecksumOffset int64 = 48

// FlagOpen - Set while a writer has the file open, cleared on a clean close
const FlagOpen uint8 = 1

// OptLarge - Option bit for 8 byte bucket slots
const OptLarge uint8 = 1 << 0

// OptDeflate - Option bit for deflate compressed values
const OptDeflate uint8 = 1 << 1

// OptBzip2 - Option bit for bzip2 compressed values
const OptBzip2 uint8 = 1 << 2

// OptCustom - Option bit for values compressed with a caller supplied codec
const OptCustom uint8 = 1 << 3

// OptCompression - All compression option bits
const OptCompression = OptDeflate | OptBzip2 | OptCustom

// OptAll - All known option bits
const OptAll = OptLarge | OptCompression

// RecordHeaderLength - Length of the fixed part of a record
const RecordHeaderLength int64 = 24

// RecordMagicLive - First byte of a live record
const RecordMagicLive uint8 = 0xC8

// RecordMagicFree - First byte of a free span
const RecordMagicFree uint8 = 0xB0

// RecordFlagsOffset - Record offset to the record flags - 1 byte
const RecordFlagsOffset int64 = 1

// RecordKeyLengthOffset - Record offset to the key length - 4 bytes
const RecordKeyLengthOffset int64 = 4

// RecordValueLengthOffset - Record offset to the stored value length - 4 bytes
const RecordValueLengthOffset int64 = 8

// RecordPadOffset - Record offset to the padding size - 4 bytes
const RecordPadOffset int64 = 12

// RecordNextOffset - Record offset to the next record in the chain - 8 bytes
const RecordNextOffset int64 = 16

// FreeSizeOffset - Free span offset to the span size - 8 bytes
const FreeSizeOffset int64 = 8

// RecordFlagCompressed - Record flag telling the value is stored through the codec
const RecordFlagCompressed uint8 = 1

// PoolEntryLength - Length of one persisted free block (offset and size)
const PoolEntryLength int64 = 16

// PoolCountLength - Length of the persisted free block counter
const PoolCountLength int64 = 8

// DefaultBuckets - Default number of buckets
const DefaultBuckets int64 = 131072

// DefaultAlignPow - Default alignment power (16 byte quantum)
const DefaultAlignPow int8 = 4

// DefaultFreeBlockPow - Default free block pool power (1024 tracked blocks)
const DefaultFreeBlockPow int8 = 10

// MaxAlignPow - Largest accepted alignment power
const MaxAlignPow int8 = 16

// MaxFreeBlockPow - Largest accepted free block pool power
const MaxFreeBlockPow int8 = 16

// MaxBuckets - Largest accepted bucket count
const MaxBuckets int64 = 1 << 32

// MaxKeyLength - Largest accepted key
const MaxKeyLength = 1<<32 - 1

// MaxValueLength - Largest accepted stored value
const MaxValueLength = 1<<32 - 1
