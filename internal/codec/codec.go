package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/gostonefire/hashdb/internal/conf"
	"github.com/klauspost/compress/flate"
)

// Codec - Transforms values on their way to and from the record region
type Codec interface {
	Encode(value []byte) ([]byte, error)
	Decode(stored []byte) ([]byte, error)
}

// ForOptions - Returns the codec selected by the compression option bits, nil when no compression is selected.
//   - opts is the option bit set from the file header
//   - custom is the caller supplied codec, required when conf.OptCustom is set
func ForOptions(opts uint8, custom Codec) (c Codec, err error) {
	switch opts & conf.OptCompression {
	case 0:
		return
	case conf.OptDeflate:
		c = Deflate{}
	case conf.OptBzip2:
		c = Bzip2{}
	case conf.OptCustom:
		if custom == nil {
			err = MissingCodec{}
			return
		}
		c = custom
	default:
		err = fmt.Errorf("more than one compression option set: %#x", opts&conf.OptCompression)
	}

	return
}

// MissingCodec - Custom error to inform that a file needs a caller supplied codec that was not given
type MissingCodec struct{}

// Error - Used to notify that no custom codec was given
func (E MissingCodec) Error() string {
	return "file uses a custom codec but none was given"
}

// Deflate - Codec using raw deflate streams
type Deflate struct{}

// Encode - Compresses value
func (Deflate) Encode(value []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err = w.Write(value); err != nil {
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode - Decompresses a stored value
func (Deflate) Decode(stored []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(stored))
	defer func() { _ = r.Close() }()

	return io.ReadAll(r)
}

// Bzip2 - Codec using bzip2 streams
type Bzip2 struct{}

// Encode - Compresses value
func (Bzip2) Encode(value []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: bzip2.DefaultCompression})
	if err != nil {
		return nil, err
	}
	if _, err = w.Write(value); err != nil {
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode - Decompresses a stored value
func (Bzip2) Decode(stored []byte) ([]byte, error) {
	r, err := bzip2.NewReader(bytes.NewReader(stored), nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	return io.ReadAll(r)
}
