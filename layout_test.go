package ewf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileHeaderRoundTrip(t *testing.T) {
	h := FileHeader{
		Signature:     signatureEVF,
		FieldsStart:   1,
		SegmentNumber: 7,
		FieldsEnd:     0,
	}
	buf := h.encode()
	require.Len(t, buf, FileHeaderSize)

	got, err := decodeFileHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)

	kind, err := got.kindOf()
	require.NoError(t, err)
	assert.Equal(t, segmentKindEWF, kind)
}

func TestFileHeaderShortRead(t *testing.T) {
	_, err := decodeFileHeader(make([]byte, 5))
	require.Error(t, err)
}

func TestFileHeaderBadSignature(t *testing.T) {
	h := FileHeader{Signature: Signature{0, 1, 2, 3, 4, 5, 6, 7}}
	_, err := h.kindOf()
	require.Error(t, err)
}

func TestSignatureFor(t *testing.T) {
	assert.Equal(t, signatureEVF, signatureFor(segmentKindEWF))
	assert.Equal(t, signatureLVF, signatureFor(segmentKindLogical))
	assert.Equal(t, signatureDVF, signatureFor(segmentKindDelta))
}

func TestSectionHeaderRoundTrip(t *testing.T) {
	h := SectionHeader{
		TypeName:   "volume",
		NextOffset: 1024,
		Size:       512,
	}
	buf := h.encode()
	require.Len(t, buf, SectionHeaderSize)
	assert.True(t, verifySectionChecksum(buf))

	got, err := decodeSectionHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h.TypeName, got.TypeName)
	assert.Equal(t, h.NextOffset, got.NextOffset)
	assert.Equal(t, h.Size, got.Size)
	assert.NotZero(t, got.Checksum)
}

func TestSectionHeaderChecksumDetectsCorruption(t *testing.T) {
	h := SectionHeader{TypeName: "table", NextOffset: 16, Size: 200}
	buf := h.encode()
	buf[0] ^= 0xFF // corrupt the type name byte covered by the checksum
	assert.False(t, verifySectionChecksum(buf))
}

func TestAdlerChecksumKnownVector(t *testing.T) {
	// "Wikipedia" -> 0x11E60398, the textbook Adler-32 example.
	got := adlerChecksum([]byte("Wikipedia"))
	assert.Equal(t, uint32(0x11E60398), got)
}
