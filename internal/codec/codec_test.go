package codec

import (
	"bytes"
	"testing"

	"github.com/gostonefire/hashdb/internal/conf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reverseCodec struct{}

func (reverseCodec) Encode(value []byte) ([]byte, error) { return reverse(value), nil }
func (reverseCodec) Decode(stored []byte) ([]byte, error) { return reverse(stored), nil }

func reverse(a []byte) []byte {
	b := make([]byte, len(a))
	for i, v := range a {
		b[len(a)-1-i] = v
	}
	return b
}

func TestForOptions(t *testing.T) {
	t.Run("no compression gives nil codec", func(t *testing.T) {
		c, err := ForOptions(conf.OptLarge, nil)
		assert.NoError(t, err)
		assert.Nil(t, c)
	})

	t.Run("selects codec by option", func(t *testing.T) {
		c, err := ForOptions(conf.OptDeflate, nil)
		assert.NoError(t, err)
		assert.IsType(t, Deflate{}, c)

		c, err = ForOptions(conf.OptBzip2|conf.OptLarge, nil)
		assert.NoError(t, err)
		assert.IsType(t, Bzip2{}, c)

		c, err = ForOptions(conf.OptCustom, reverseCodec{})
		assert.NoError(t, err)
		assert.IsType(t, reverseCodec{}, c)
	})

	t.Run("custom option without codec fails", func(t *testing.T) {
		_, err := ForOptions(conf.OptCustom, nil)
		assert.ErrorIs(t, err, MissingCodec{}, "missing codec")
	})

	t.Run("two compression options fail", func(t *testing.T) {
		_, err := ForOptions(conf.OptDeflate|conf.OptBzip2, nil)
		assert.Error(t, err)
	})
}

func TestCodecs_RoundTrip(t *testing.T) {
	value := bytes.Repeat([]byte("hash db value "), 200)

	for name, c := range map[string]Codec{"deflate": Deflate{}, "bzip2": Bzip2{}, "custom": reverseCodec{}} {
		t.Run(name, func(t *testing.T) {
			// Execute
			stored, err := c.Encode(value)
			require.NoError(t, err, "encodes")
			decoded, err := c.Decode(stored)
			require.NoError(t, err, "decodes")

			// Check
			assert.Equal(t, value, decoded, "round trip")
			if name != "custom" {
				assert.Less(t, len(stored), len(value), "repetitive value shrinks")
			}

			empty, err := c.Encode([]byte{})
			require.NoError(t, err, "encodes empty value")
			decoded, err = c.Decode(empty)
			require.NoError(t, err, "decodes empty value")
			assert.Empty(t, decoded, "empty stays empty")
		})
	}
}
