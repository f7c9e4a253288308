package page

import "testing"

import "github.com/stretchr/testify/require"

func TestU16RoundTrip(t *testing.T) {
	buf := make([]byte, Size)
	PutU16(buf, 10, 0xBEEF)
	require.Equal(t, uint16(0xBEEF), GetU16(buf, 10))
}

func TestU32RoundTrip(t *testing.T) {
	buf := make([]byte, Size)
	PutU32(buf, 4, 0xDEADBEEF)
	require.Equal(t, uint32(0xDEADBEEF), GetU32(buf, 4))
}

func TestU64RoundTrip(t *testing.T) {
	buf := make([]byte, Size)
	PutU64(buf, 24, 0x1122334455667788)
	require.Equal(t, uint64(0x1122334455667788), GetU64(buf, 24))
}

func TestNewTagsType(t *testing.T) {
	buf := New(Leaf)
	require.Len(t, buf, Size)
	require.Equal(t, Leaf, TypeOf(buf))
}

func TestRootPageNum(t *testing.T) {
	header := New(Header)
	SetRootPageNum(header, 42)
	require.Equal(t, uint64(42), RootPageNum(header))
	// Root lives at byte offset 24, i.e. 8-byte slot index 3.
	require.Equal(t, uint64(42), GetU64(header, 3*8))
}
