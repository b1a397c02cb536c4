package packets

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStringRoundTrip(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"", "hello", "a/b/c", "日本語"} {
		encoded := encodeString(s)
		decoded, n, err := decodeString(encoded)
		require.NoError(t, err)
		require.Equal(t, s, decoded)
		require.Equal(t, len(encoded), n)
	}
}

func TestDecodeStringRejectsInvalidCodepoints(t *testing.T) {
	t.Parallel()

	t.Run("embedded null", func(t *testing.T) {
		buf := encodeString("a\x00b")
		_, _, err := decodeString(buf)
		require.Error(t, err)
	})

	t.Run("leading BOM", func(t *testing.T) {
		buf := encodeString("\ufeffhello")
		_, _, err := decodeString(buf)
		require.Error(t, err)
	})

	t.Run("surrogate", func(t *testing.T) {
		buf := append(encodeString("")[:2], 0xED, 0xA0, 0x80)
		buf[0] = 0
		buf[1] = 3
		_, _, err := decodeString(buf)
		require.Error(t, err)
	})

	t.Run("truncated", func(t *testing.T) {
		_, _, err := decodeString([]byte{0x00, 0x05, 'a', 'b'})
		var ie *IncompleteError
		require.ErrorAs(t, err, &ie)
	})
}

func TestBinaryRoundTrip(t *testing.T) {
	t.Parallel()
	data := []byte{0x00, 0xFF, 0x10, 0x00}
	encoded := encodeBinary(data)
	decoded, n, err := decodeBinary(encoded)
	require.NoError(t, err)
	require.Equal(t, data, decoded)
	require.Equal(t, len(encoded), n)
}
