package packets

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeVarInt(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		value    int
		expected []byte
	}{
		{"zero", 0, []byte{0x00}},
		{"127", 127, []byte{0x7F}},
		{"128", 128, []byte{0x80, 0x01}},
		{"16383", 16383, []byte{0xFF, 0x7F}},
		{"16384", 16384, []byte{0x80, 0x80, 0x01}},
		{"2097151", 2097151, []byte{0xFF, 0xFF, 0x7F}},
		{"2097152", 2097152, []byte{0x80, 0x80, 0x80, 0x01}},
		{"268435455", 268435455, []byte{0xFF, 0xFF, 0xFF, 0x7F}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, encodeVarInt(tt.value))
		})
	}
}

func TestDecodeVarIntBuf(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		input   []byte
		want    int
		wantN   int
		wantErr bool
	}{
		{"zero", []byte{0x00}, 0, 1, false},
		{"127", []byte{0x7F}, 127, 1, false},
		{"128", []byte{0x80, 0x01}, 128, 2, false},
		{"16384", []byte{0x80, 0x80, 0x01}, 16384, 3, false},
		{"268435455", []byte{0xFF, 0xFF, 0xFF, 0x7F}, 268435455, 4, false},
		{"too long", []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x7F}, 0, 0, true},
		{"incomplete", []byte{0x80}, 0, 0, true},
		{"non-minimal two byte", []byte{0x80, 0x00}, 0, 0, true},
		{"non-minimal three byte", []byte{0x80, 0x80, 0x00}, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n, err := decodeVarIntBuf(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.wantN, n)
		})
	}
}

func TestVarIntRoundTrip(t *testing.T) {
	t.Parallel()
	values := []int{0, 1, 127, 128, 16383, 16384, 2097151, 2097152, 268435455}

	for _, val := range values {
		encoded := encodeVarInt(val)
		decoded, n, err := decodeVarIntBuf(encoded)
		require.NoError(t, err)
		require.Equal(t, val, decoded)
		require.Equal(t, len(encoded), n)
	}
}

func TestEncodeVarIntOutOfRange(t *testing.T) {
	t.Parallel()
	require.Panics(t, func() { appendVarInt(nil, -1) })
	require.Panics(t, func() { appendVarInt(nil, mqttSpecMaxVarInt+1) })
}
