package ewf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMediaValues(t *testing.T) {
	mv := NewMediaValues(64, 512, FormatEnCase6, CompressionFast)
	assert.Equal(t, uint32(64*512), mv.ChunkSize)
	assert.Equal(t, MediaTypeFixed, mv.MediaType)
	assert.NotEqual(t, [16]byte{}, mv.GUID, "GUID should be a fresh non-zero google/uuid value")
}

func TestParseCompressionLevel(t *testing.T) {
	cases := map[string]CompressionLevel{
		"none": CompressionNone,
		"fast": CompressionFast,
		"best": CompressionBest,
	}
	for name, want := range cases {
		got, err := ParseCompressionLevel(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseCompressionLevel("ludicrous")
	require.Error(t, err)
}

func TestClassifyVolumeSize(t *testing.T) {
	smart, err := classifyVolumeSize(volumeSizeSMART)
	require.NoError(t, err)
	assert.True(t, smart)

	smart, err = classifyVolumeSize(volumeSizeEnCase)
	require.NoError(t, err)
	assert.False(t, smart)

	_, err = classifyVolumeSize(123)
	require.Error(t, err)
}

func TestMediaValuesEnCaseRoundTrip(t *testing.T) {
	mv := MediaValues{
		MediaType:        MediaTypeFixed,
		NumberOfChunks:   10,
		SectorsPerChunk:  64,
		BytesPerSector:   512,
		NumberOfSectors:  640,
		MediaFlags:       MediaFlagImage,
		Compression:      CompressionBest,
		ErrorGranularity: 64,
		Format:           FormatEnCase6,
	}
	copy(mv.GUID[:], "0123456789abcdef")

	payload := encodeMediaValues(mv)
	require.Len(t, payload, volumeSizeEnCase)

	got, err := decodeMediaValues(payload, FormatEnCase6)
	require.NoError(t, err)
	assert.Equal(t, mv.MediaType, got.MediaType)
	assert.Equal(t, mv.NumberOfChunks, got.NumberOfChunks)
	assert.Equal(t, mv.SectorsPerChunk, got.SectorsPerChunk)
	assert.Equal(t, mv.BytesPerSector, got.BytesPerSector)
	assert.Equal(t, mv.NumberOfSectors, got.NumberOfSectors)
	assert.Equal(t, mv.MediaFlags, got.MediaFlags)
	assert.Equal(t, mv.Compression, got.Compression)
	assert.Equal(t, mv.ErrorGranularity, got.ErrorGranularity)
	assert.Equal(t, mv.GUID, got.GUID)
	assert.Equal(t, mv.SectorsPerChunk*mv.BytesPerSector, got.ChunkSize)
}

func TestMediaValuesSMARTRoundTrip(t *testing.T) {
	mv := MediaValues{
		MediaType:        MediaTypeRemovable,
		NumberOfChunks:   3,
		SectorsPerChunk:  32,
		BytesPerSector:   512,
		NumberOfSectors:  96,
		MediaFlags:       MediaFlagPhysical,
		Compression:      CompressionNone,
		ErrorGranularity: 1,
		Format:           FormatSMART,
	}
	copy(mv.GUID[:], "fedcba9876543210")

	payload := encodeMediaValues(mv)
	require.Len(t, payload, volumeSizeSMART)

	got, err := decodeMediaValues(payload, FormatSMART)
	require.NoError(t, err)
	assert.Equal(t, mv.MediaType, got.MediaType)
	assert.Equal(t, mv.SectorsPerChunk, got.SectorsPerChunk)
	assert.Equal(t, mv.BytesPerSector, got.BytesPerSector)
	assert.Equal(t, mv.Compression, got.Compression)
	assert.Equal(t, mv.GUID, got.GUID)
}

func TestMediaValuesSMARTSignatureOffset(t *testing.T) {
	mv := MediaValues{Format: FormatSMART, SectorsPerChunk: 1, BytesPerSector: 1}
	payload := encodeMediaValues(mv)
	assert.Equal(t, "SMART", string(payload[1043:1048]))
}

func TestDecodeMediaValuesDetectsChecksumMismatch(t *testing.T) {
	mv := MediaValues{
		MediaType:       MediaTypeFixed,
		SectorsPerChunk: 64,
		BytesPerSector:  512,
		Format:          FormatEnCase6,
	}
	payload := encodeMediaValues(mv)
	payload[0] ^= 0xFF

	_, err := decodeMediaValues(payload, FormatEnCase6)
	require.Error(t, err)
}

func TestDecodeMediaValuesSMARTDetectsChecksumMismatch(t *testing.T) {
	mv := MediaValues{
		MediaType:       MediaTypeRemovable,
		SectorsPerChunk: 32,
		BytesPerSector:  512,
		Format:          FormatSMART,
	}
	payload := encodeMediaValues(mv)
	payload[3] ^= 0xFF

	_, err := decodeMediaValues(payload, FormatSMART)
	require.Error(t, err)
}
