package ewf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableHeaderRoundTrip(t *testing.T) {
	h := tableHeader{numberOfChunks: 4, baseOffset: 1024}
	buf := h.encode()
	require.Len(t, buf, tableHeaderSize)
	assert.True(t, verifySectionHeaderLikeChecksum(buf))

	got, err := decodeTableHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h.numberOfChunks, got.numberOfChunks)
	assert.Equal(t, h.baseOffset, got.baseOffset)
}

func TestTablePayloadRoundTripEnCase(t *testing.T) {
	entries := []rawTableEntry{
		packTableEntry(0, false),
		packTableEntry(32768, true),
		packTableEntry(65536, false),
	}
	payload := encodeTablePayload(4096, entries, FormatEnCase6)

	hdr, got, err := decodeTablePayload(payload, FormatEnCase6)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), hdr.numberOfChunks)
	assert.Equal(t, uint64(4096), hdr.baseOffset)
	require.Len(t, got, 3)
	assert.Equal(t, entries, got)
}

func TestTablePayloadRoundTripSMARTNoTrailingChecksum(t *testing.T) {
	entries := []rawTableEntry{packTableEntry(0, false), packTableEntry(100, false)}
	payload := encodeTablePayload(0, entries, FormatSMART)

	// SMART omits the trailing offset-array checksum (spec §4.3).
	expectedLen := tableHeaderSize + len(entries)*4
	require.Len(t, payload, expectedLen)

	_, got, err := decodeTablePayload(payload, FormatSMART)
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}

func TestDecodeTablePayloadDetectsHeaderCorruption(t *testing.T) {
	entries := []rawTableEntry{packTableEntry(0, false)}
	payload := encodeTablePayload(0, entries, FormatEnCase6)
	payload[0] ^= 0xFF // corrupt number_of_chunks, covered by the header checksum

	_, _, err := decodeTablePayload(payload, FormatEnCase6)
	require.Error(t, err)
}

func TestDecodeTablePayloadDetectsArrayCorruption(t *testing.T) {
	entries := []rawTableEntry{packTableEntry(0, false), packTableEntry(500, false)}
	payload := encodeTablePayload(0, entries, FormatEnCase6)
	payload[tableHeaderSize] ^= 0xFF // corrupt first offset entry, after the header checksum

	_, _, err := decodeTablePayload(payload, FormatEnCase6)
	require.Error(t, err)
}

func TestPackTableEntryCompressionBit(t *testing.T) {
	e := packTableEntry(123, true)
	assert.True(t, e.compressed(false))
	assert.Equal(t, uint64(123), e.offset(false))

	e = packTableEntry(456, false)
	assert.False(t, e.compressed(false))
	assert.Equal(t, uint64(456), e.offset(false))
}
