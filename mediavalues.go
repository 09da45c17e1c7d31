package ewf

import (
	"encoding/binary"

	"github.com/dnpa/goewf/errs"
	"github.com/google/uuid"
)

// Media type/flag bits, grounded on ewf.go's DiskSMART/DataSection constants.
const (
	MediaTypeRemovable byte = 0x00
	MediaTypeFixed     byte = 0x01
	MediaTypeOptical   byte = 0x03
	MediaTypeMemory    byte = 0x10

	MediaFlagImage    byte = 0x01
	MediaFlagPhysical byte = 0x02
	MediaFlagFastbloc byte = 0x04
	MediaFlagTableau  byte = 0x08
)

// CompressionLevel mirrors spec §4.1's three policies.
type CompressionLevel uint8

const (
	CompressionNone CompressionLevel = iota
	CompressionFast
	CompressionBest
)

// MediaValues holds the per-image constants spec §3 "Media Values" names.
// Immutable once the first section of an image is written.
type MediaValues struct {
	MediaSize        uint64
	ChunkSize        uint32
	SectorsPerChunk  uint32
	BytesPerSector   uint32
	NumberOfChunks   uint32
	NumberOfSectors  uint32
	MediaType        byte
	MediaFlags       byte
	ErrorGranularity uint32
	GUID             [16]byte
	Compression      CompressionLevel
	Format           Format
}

// NewMediaValues fills in ChunkSize and a fresh RFC 4122 GUID (replacing the
// teacher's non-conforming math/rand generateUUID in ewf.go) for a
// freshly-opened write handle.
func NewMediaValues(sectorsPerChunk, bytesPerSector uint32, format Format, compression CompressionLevel) MediaValues {
	mv := MediaValues{
		SectorsPerChunk: sectorsPerChunk,
		BytesPerSector:  bytesPerSector,
		ChunkSize:       sectorsPerChunk * bytesPerSector,
		MediaType:       MediaTypeFixed,
		MediaFlags:      MediaFlagImage,
		Compression:     compression,
		Format:          format,
	}
	id := uuid.New()
	copy(mv.GUID[:], id[:])
	return mv
}

// ParseCompressionLevel parses "none"/"fast"/"best", per spec §4.1's three
// compression policies, used by cmd/ewfacquire's -compression flag.
func ParseCompressionLevel(s string) (CompressionLevel, error) {
	switch s {
	case "none":
		return CompressionNone, nil
	case "fast":
		return CompressionFast, nil
	case "best":
		return CompressionBest, nil
	default:
		return CompressionNone, errs.New(errs.KindInvalidArgument, "ParseCompressionLevel", errBadCompressionName(s))
	}
}

type errBadCompressionName string

func (e errBadCompressionName) Error() string { return "unknown compression level: " + string(e) }

const (
	volumeSizeEnCase = 94
	volumeSizeSMART  = 1052
)

// classifyVolumeSize discriminates S01 vs EnCase flavor by payload size,
// per spec §4.3: "Size equal to the SMART struct -> EWF-S01; size equal to
// the EnCase struct -> EWF-E01; otherwise error."
func classifyVolumeSize(payloadLen int) (smart bool, err error) {
	switch payloadLen {
	case volumeSizeSMART:
		return true, nil
	case volumeSizeEnCase:
		return false, nil
	default:
		return false, errs.New(errs.KindInvalidFormat, "classifyVolumeSize", errVolumeSize(payloadLen))
	}
}

type errVolumeSize int

func (e errVolumeSize) Error() string {
	return "volume/disk section payload of " + itoa(int(e)) + " bytes matches neither SMART (1052) nor EnCase (94) layout"
}

// decodeMediaValues parses a volume/disk/data section payload, grounded on
// ewf.go's DiskSMART and DataSection struct field order (CHS geometry and
// PALM/SmartLogs fields are intentionally not modeled: spec §3 does not
// name them and no operation reads them back). Verifies the section's
// trailing Adler32 the same way decodeTablePayload does.
func decodeMediaValues(payload []byte, format Format) (MediaValues, error) {
	smart, err := classifyVolumeSize(len(payload))
	if err != nil {
		return MediaValues{}, err
	}
	var mv MediaValues
	mv.Format = format
	if smart {
		want := binary.LittleEndian.Uint32(payload[1048:1052])
		got := adlerChecksum(payload[:1048])
		if want != got {
			return MediaValues{}, errs.Checksum("decodeMediaValues", "section", "volume/disk", want, got)
		}
		mv.MediaType = payload[3]
		mv.NumberOfChunks = binary.LittleEndian.Uint32(payload[4:8])
		mv.SectorsPerChunk = binary.LittleEndian.Uint32(payload[8:12])
		mv.BytesPerSector = binary.LittleEndian.Uint32(payload[12:16])
		mv.NumberOfSectors = binary.LittleEndian.Uint32(payload[16:20])
		copy(mv.GUID[:], payload[20:36])
		mv.Compression = CompressionLevel(payload[1036])
		mv.ErrorGranularity = binary.LittleEndian.Uint32(payload[1037:1041])
		mv.MediaFlags = payload[1041]
	} else {
		want := binary.LittleEndian.Uint32(payload[90:94])
		got := adlerChecksum(payload[:90])
		if want != got {
			return MediaValues{}, errs.Checksum("decodeMediaValues", "section", "volume/disk", want, got)
		}
		mv.MediaType = payload[0]
		mv.NumberOfChunks = binary.LittleEndian.Uint32(payload[4:8])
		mv.SectorsPerChunk = binary.LittleEndian.Uint32(payload[8:12])
		mv.BytesPerSector = binary.LittleEndian.Uint32(payload[12:16])
		mv.NumberOfSectors = binary.LittleEndian.Uint32(payload[16:20])
		mv.MediaFlags = payload[20]
		mv.Compression = CompressionLevel(payload[21])
		mv.ErrorGranularity = binary.LittleEndian.Uint32(payload[22:26])
		copy(mv.GUID[:], payload[26:42])
	}
	mv.ChunkSize = mv.SectorsPerChunk * mv.BytesPerSector
	mv.MediaSize = uint64(mv.NumberOfSectors) * uint64(mv.BytesPerSector)
	return mv, nil
}

// encodeMediaValues serializes MediaValues into a volume/disk/data payload
// (without the enclosing 76-byte section header), choosing the SMART or
// EnCase layout per mv.Format.usesSMARTVolume, and closes with the
// section's own trailing Adler32 the same way encodeHashSection/
// encodeTablePayload do.
func encodeMediaValues(mv MediaValues) []byte {
	if mv.Format.usesSMARTVolume() {
		buf := make([]byte, volumeSizeSMART)
		buf[3] = mv.MediaType
		binary.LittleEndian.PutUint32(buf[4:8], mv.NumberOfChunks)
		binary.LittleEndian.PutUint32(buf[8:12], mv.SectorsPerChunk)
		binary.LittleEndian.PutUint32(buf[12:16], mv.BytesPerSector)
		binary.LittleEndian.PutUint32(buf[16:20], mv.NumberOfSectors)
		copy(buf[20:36], mv.GUID[:])
		buf[1036] = byte(mv.Compression)
		binary.LittleEndian.PutUint32(buf[1037:1041], mv.ErrorGranularity)
		buf[1041] = mv.MediaFlags
		copy(buf[1043:1048], "SMART")
		sum := adlerChecksum(buf[:1048])
		binary.LittleEndian.PutUint32(buf[1048:1052], sum)
		return buf
	}
	buf := make([]byte, volumeSizeEnCase)
	buf[0] = mv.MediaType
	binary.LittleEndian.PutUint32(buf[4:8], mv.NumberOfChunks)
	binary.LittleEndian.PutUint32(buf[8:12], mv.SectorsPerChunk)
	binary.LittleEndian.PutUint32(buf[12:16], mv.BytesPerSector)
	binary.LittleEndian.PutUint32(buf[16:20], mv.NumberOfSectors)
	buf[20] = mv.MediaFlags
	buf[21] = byte(mv.Compression)
	binary.LittleEndian.PutUint32(buf[22:26], mv.ErrorGranularity)
	copy(buf[26:42], mv.GUID[:])
	sum := adlerChecksum(buf[:90])
	binary.LittleEndian.PutUint32(buf[90:94], sum)
	return buf
}
