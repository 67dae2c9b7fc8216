package hashdb

import (
	"log/slog"

	"github.com/gostonefire/hashdb/internal/codec"
	"github.com/gostonefire/hashdb/internal/conf"
)

// Mode - Bit set given to Open
type Mode uint8

const (
	// Reader - Open for reading
	Reader Mode = 1 << iota
	// Writer - Open for reading and writing
	Writer
	// Create - Create the file if it doesn't exist, only with Writer
	Create
	// Truncate - Discard existing content, only with Writer
	Truncate
	// NoLock - Skip the advisory file lock, the caller asserts exclusive control of the file
	NoLock
	// NonBlockingLock - Fail with WouldBlock instead of waiting on a contended lock
	NonBlockingLock
)

// Opt - Option bits fixed when a file is created
type Opt uint8

const (
	// OptLarge - 8 byte bucket slots, needed for files beyond 64 GB with the default alignment
	OptLarge = Opt(conf.OptLarge)
	// OptDeflate - Compress values with deflate
	OptDeflate = Opt(conf.OptDeflate)
	// OptBzip2 - Compress values with bzip2
	OptBzip2 = Opt(conf.OptBzip2)
	// OptCustom - Compress values with the codec given by WithCodec
	OptCustom = Opt(conf.OptCustom)
)

// Codec - Caller supplied value codec used with OptCustom.
// Decode must reverse Encode, and an empty value must survive the round trip.
type Codec = codec.Codec

// Option - Functional option given to New
type Option func(*DB)

// WithLogger - Sets the logger receiving open, close, recovery and relocation events
func WithLogger(logger *slog.Logger) Option {
	return func(D *DB) {
		if logger != nil {
			D.logger = logger
		}
	}
}

// WithCodec - Sets the codec used for files created or opened with OptCustom
func WithCodec(c Codec) Option {
	return func(D *DB) {
		D.codec = c
	}
}
