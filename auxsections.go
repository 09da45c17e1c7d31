package ewf

import (
	"encoding/binary"

	"github.com/dnpa/goewf/errs"
)

// hashSectionSize is 16-byte MD5 + 40-byte padding + 4-byte checksum, per
// spec §3's `hash` row and grounded on the teacher's HashSection in ewf.go.
const hashSectionSize = 16 + 40 + 4

// digestSectionSize is 16-byte MD5 + 20-byte SHA-1 + 40-byte padding +
// 4-byte checksum, per spec §3's `digest` row and the teacher's
// DigestSection.
const digestSectionSize = 16 + 20 + 40 + 4

// encodeHashSection builds the `hash` section payload (MD5 only).
func encodeHashSection(md5 []byte) []byte {
	buf := make([]byte, hashSectionSize)
	copy(buf[0:16], md5)
	sum := adlerChecksum(buf[:hashSectionSize-4])
	binary.LittleEndian.PutUint32(buf[hashSectionSize-4:], sum)
	return buf
}

// decodeHashSection extracts MD5 from a `hash` section payload.
func decodeHashSection(payload []byte) ([]byte, error) {
	if len(payload) < hashSectionSize {
		return nil, errs.New(errs.KindIO, "decodeHashSection", errShortRead{want: hashSectionSize, got: len(payload)})
	}
	return append([]byte(nil), payload[0:16]...), nil
}

// encodeDigestSection builds the `digest` section payload (MD5 + SHA-1).
func encodeDigestSection(md5, sha1 []byte) []byte {
	buf := make([]byte, digestSectionSize)
	copy(buf[0:16], md5)
	copy(buf[16:36], sha1)
	sum := adlerChecksum(buf[:digestSectionSize-4])
	binary.LittleEndian.PutUint32(buf[digestSectionSize-4:], sum)
	return buf
}

// decodeDigestSection extracts MD5+SHA-1 from a `digest` section payload.
func decodeDigestSection(payload []byte) (md5, sha1 []byte, err error) {
	if len(payload) < digestSectionSize {
		return nil, nil, errs.New(errs.KindIO, "decodeDigestSection", errShortRead{want: digestSectionSize, got: len(payload)})
	}
	return append([]byte(nil), payload[0:16]...), append([]byte(nil), payload[16:36]...), nil
}

// ErrorRange is one bad-sector run, per spec §3's `error2` row.
type ErrorRange struct {
	FirstSector  uint32
	SectorCount  uint32
}

const errorRangeEntrySize = 8

// encodeError2Section builds the `error2` section payload: a count header
// plus N*(first_sector, number_of_sectors) entries, grounded on ewf.go's
// Error2Section stub, fully specified (the teacher left it empty) against
// spec §3/§9's "AddAcquisitionError" supplemented feature.
func encodeError2Section(ranges []ErrorRange) []byte {
	buf := make([]byte, 4+len(ranges)*errorRangeEntrySize+4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(ranges)))
	off := 4
	for _, r := range ranges {
		binary.LittleEndian.PutUint32(buf[off:off+4], r.FirstSector)
		binary.LittleEndian.PutUint32(buf[off+4:off+8], r.SectorCount)
		off += errorRangeEntrySize
	}
	sum := adlerChecksum(buf[:off])
	binary.LittleEndian.PutUint32(buf[off:off+4], sum)
	return buf
}

func decodeError2Section(payload []byte) ([]ErrorRange, error) {
	if len(payload) < 4 {
		return nil, errs.New(errs.KindIO, "decodeError2Section", errShortRead{want: 4, got: len(payload)})
	}
	count := binary.LittleEndian.Uint32(payload[0:4])
	need := 4 + int(count)*errorRangeEntrySize + 4
	if len(payload) < need {
		return nil, errs.New(errs.KindIO, "decodeError2Section", errShortRead{want: need, got: len(payload)})
	}
	out := make([]ErrorRange, count)
	off := 4
	for i := range out {
		out[i] = ErrorRange{
			FirstSector: binary.LittleEndian.Uint32(payload[off : off+4]),
			SectorCount: binary.LittleEndian.Uint32(payload[off+4 : off+8]),
		}
		off += errorRangeEntrySize
	}
	return out, nil
}

// SessionRange is one optical-media session range, per spec §3's `session` row.
type SessionRange struct {
	FirstSector uint32
	SectorCount uint32
}

// encodeSessionSection mirrors encodeError2Section's layout — spec §3
// describes `session` as "array of sector ranges", the same shape as
// error2's.
func encodeSessionSection(ranges []SessionRange) []byte {
	buf := make([]byte, 4+len(ranges)*errorRangeEntrySize+4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(ranges)))
	off := 4
	for _, r := range ranges {
		binary.LittleEndian.PutUint32(buf[off:off+4], r.FirstSector)
		binary.LittleEndian.PutUint32(buf[off+4:off+8], r.SectorCount)
		off += errorRangeEntrySize
	}
	sum := adlerChecksum(buf[:off])
	binary.LittleEndian.PutUint32(buf[off:off+4], sum)
	return buf
}

func decodeSessionSection(payload []byte) ([]SessionRange, error) {
	ranges, err := decodeError2Section(payload)
	if err != nil {
		return nil, err
	}
	out := make([]SessionRange, len(ranges))
	for i, r := range ranges {
		out[i] = SessionRange(r)
	}
	return out, nil
}

// encodeLtreeSection builds the `ltree` section payload for logical (L01)
// images: header + UTF-16LE directory tree text, per spec §3's `ltree` row.
// Only the text payload is modeled; logical-image directory-tree structure
// itself is out of this module's scope (no SPEC_FULL.md operation
// interprets it beyond storing/retrieving the raw listing text).
func encodeLtreeSection(listingUTF16LE []byte) []byte {
	buf := make([]byte, len(listingUTF16LE)+4)
	copy(buf, listingUTF16LE)
	sum := adlerChecksum(buf[:len(listingUTF16LE)])
	binary.LittleEndian.PutUint32(buf[len(listingUTF16LE):], sum)
	return buf
}
