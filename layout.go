package ewf

import (
	"encoding/binary"
	"hash/adler32"

	"github.com/dnpa/goewf/errs"
)

// Signature is the 8-byte magic at the start of every segment file, per spec §6.
type Signature [8]byte

var (
	signatureEVF = Signature{0x45, 0x56, 0x46, 0x09, 0x0D, 0x0A, 0xFF, 0x00}
	signatureLVF = Signature{0x4C, 0x56, 0x46, 0x09, 0x0D, 0x0A, 0xFF, 0x00}
	signatureDVF = Signature{0x64, 0x76, 0x66, 0x09, 0x0D, 0x0A, 0xFF, 0x00}
)

func signatureFor(kind segmentFileKind) Signature {
	switch kind {
	case segmentKindLogical:
		return signatureLVF
	case segmentKindDelta:
		return signatureDVF
	default:
		return signatureEVF
	}
}

// FileHeaderSize is sizeof(FileHeader) on disk — spec §6.
const FileHeaderSize = 13

// FileHeader is the 13-byte prelude of every segment file, grounded on the
// teacher's EWFFileHeader in ewf.go, generalized to all three signature
// families instead of only EVF.
type FileHeader struct {
	Signature     Signature
	FieldsStart   uint8 // always 0x01
	SegmentNumber uint16
	FieldsEnd     uint16 // always 0x0000
}

func decodeFileHeader(buf []byte) (FileHeader, error) {
	if len(buf) < FileHeaderSize {
		return FileHeader{}, errs.New(errs.KindIO, "decodeFileHeader", errShortRead{want: FileHeaderSize, got: len(buf)})
	}
	var h FileHeader
	copy(h.Signature[:], buf[0:8])
	h.FieldsStart = buf[8]
	h.SegmentNumber = binary.LittleEndian.Uint16(buf[9:11])
	h.FieldsEnd = binary.LittleEndian.Uint16(buf[11:13])
	return h, nil
}

func (h FileHeader) encode() []byte {
	buf := make([]byte, FileHeaderSize)
	copy(buf[0:8], h.Signature[:])
	buf[8] = h.FieldsStart
	binary.LittleEndian.PutUint16(buf[9:11], h.SegmentNumber)
	binary.LittleEndian.PutUint16(buf[11:13], h.FieldsEnd)
	return buf
}

// kindOf reports which of the three signature families this header carries,
// or an error if it matches none.
func (h FileHeader) kindOf() (segmentFileKind, error) {
	switch h.Signature {
	case signatureEVF:
		return segmentKindEWF, nil
	case signatureLVF:
		return segmentKindLogical, nil
	case signatureDVF:
		return segmentKindDelta, nil
	default:
		return 0, errs.New(errs.KindInvalidFormat, "FileHeader.kindOf", errBadSignature(h.Signature[:]))
	}
}

type errBadSignature []byte

func (e errBadSignature) Error() string { return "unrecognized segment file signature" }

type errShortRead struct{ want, got int }

func (e errShortRead) Error() string {
	return "short read: want " + itoa(e.want) + " bytes, got " + itoa(e.got)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// SectionHeaderSize is sizeof(SectionHeader) on disk — spec §3.
const SectionHeaderSize = 76

const sectionTypeNameLen = 16

// SectionHeader is the 76-byte record preceding every section's payload,
// grounded on the teacher's Section struct in ewf.go, with the same field
// order but its own checksum computed here rather than left to callers.
type SectionHeader struct {
	TypeName   string // up to 11 ASCII bytes, NUL-padded to 16 on the wire
	NextOffset uint64
	Size       uint64 // total size including this 76-byte header
	Checksum   uint32 // adler32 over the preceding 72 bytes
}

func decodeSectionHeader(buf []byte) (SectionHeader, error) {
	if len(buf) < SectionHeaderSize {
		return SectionHeader{}, errs.New(errs.KindIO, "decodeSectionHeader", errShortRead{want: SectionHeaderSize, got: len(buf)})
	}
	var h SectionHeader
	nameEnd := 0
	for nameEnd < sectionTypeNameLen && buf[nameEnd] != 0 {
		nameEnd++
	}
	h.TypeName = string(buf[:nameEnd])
	h.NextOffset = binary.LittleEndian.Uint64(buf[16:24])
	h.Size = binary.LittleEndian.Uint64(buf[24:32])
	h.Checksum = binary.LittleEndian.Uint32(buf[72:76])
	return h, nil
}

// verifySectionChecksum reports whether the trailing 4-byte checksum matches the
// preceding 72 bytes of buf, grounded on ewf.go's VerifyChecksum (which
// compares an adler32.Checksum of the header bytes against the stored value).
func verifySectionChecksum(buf []byte) bool {
	if len(buf) < SectionHeaderSize {
		return false
	}
	want := binary.LittleEndian.Uint32(buf[72:76])
	got := adler32.Checksum(buf[:72])
	return want == got
}

// encode serializes h into a 76-byte wire header, computing the checksum
// over the first 72 bytes as it goes.
func (h SectionHeader) encode() []byte {
	buf := make([]byte, SectionHeaderSize)
	n := copy(buf[0:sectionTypeNameLen], h.TypeName)
	for i := n; i < sectionTypeNameLen; i++ {
		buf[i] = 0
	}
	binary.LittleEndian.PutUint64(buf[16:24], h.NextOffset)
	binary.LittleEndian.PutUint64(buf[24:32], h.Size)
	// bytes 32:72 are the 40-byte reserved/padding field, left zero.
	sum := adler32.Checksum(buf[:72])
	binary.LittleEndian.PutUint32(buf[72:76], sum)
	return buf
}

// adlerChecksum computes the EWF chunk/table checksum: spec §4.1's
// Adler-style rolling sum, s1=Σbyte, s2=Σs1, seed 1 — identical to
// hash/adler32's algorithm, used directly rather than reimplemented,
// per SPEC_FULL.md's ambient-stack decision to keep this one stdlib.
func adlerChecksum(data []byte) uint32 {
	return adler32.Checksum(data)
}
