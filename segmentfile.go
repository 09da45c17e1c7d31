package ewf

import (
	"os"

	"github.com/dnpa/goewf/errs"
)

// MaxSegmentNumber is the highest segment number the filename-extension
// scheme (spec §6) can address: ('Z'-'E') * 26 * 26 + 99.
const MaxSegmentNumber = ('Z'-'E')*26*26 + 99

// Extension computes the deterministic three-character segment-file
// extension from segment_number and format, per spec §6, grounded verbatim
// on original_source/libewf/libewf_filename.c's
// libewf_filename_set_extension (first_ch/add_ch pairs, <=99 decimal vs
// >99 modulo-26 encoding).
func Extension(segmentNumber int, format Format, delta bool) (string, error) {
	if segmentNumber < 1 || segmentNumber > MaxSegmentNumber {
		return "", errs.New(errs.KindLimitExceeded, "Extension", errSegmentRange(segmentNumber))
	}
	first, add := format.extensionChars(delta)
	if segmentNumber <= 99 {
		return string([]byte{first, byte('0' + segmentNumber/10), byte('0' + segmentNumber%10)}), nil
	}
	n := segmentNumber - 100
	c2 := add + byte(n%26)
	n /= 26
	c1 := add + byte(n%26)
	n /= 26
	if n >= 26 {
		return "", errs.New(errs.KindLimitExceeded, "Extension", errSegmentRange(segmentNumber))
	}
	c0 := first + byte(n)
	return string([]byte{c0, c1, c2}), nil
}

type errSegmentRange int

func (e errSegmentRange) Error() string {
	return "segment number " + itoa(int(e)) + " out of range [1, " + itoa(MaxSegmentNumber) + "]"
}

// sectionListEntry is one member of a segment file's in-memory section
// list, per spec §4.2 "Section list bookkeeping": "(type, start_offset,
// end_offset) triples, appended as each section is finalized".
type sectionListEntry struct {
	typeName string
	start    uint64 // offset of this section's 76-byte header
	end      uint64 // start + header.Size
}

// segmentFile is one on-disk segment-file container, per spec §3.
// Grounded on the teacher's EWFImage (ewf.go) for the file+mutex-free
// per-handle ownership shape, generalized: here one segmentFile is exactly
// one OS file plus its parsed section list, owned by a single Handle
// (spec §5: "A Handle is a single-threaded object").
type segmentFile struct {
	path     string
	file     *os.File
	number   uint16
	kind     segmentFileKind
	sections []sectionListEntry
}

// firstSectionOffset is always sizeof(file header), per spec §3.
const firstSectionOffset = FileHeaderSize

func openSegmentFileRead(path string) (*segmentFile, FileHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, FileHeader{}, errs.New(errs.KindIO, "openSegmentFileRead", err)
	}
	hdrBuf := make([]byte, FileHeaderSize)
	if _, err := readFull(f, hdrBuf); err != nil {
		f.Close()
		return nil, FileHeader{}, errs.New(errs.KindIO, "openSegmentFileRead", err)
	}
	hdr, err := decodeFileHeader(hdrBuf)
	if err != nil {
		f.Close()
		return nil, FileHeader{}, err
	}
	kind, err := hdr.kindOf()
	if err != nil {
		f.Close()
		return nil, FileHeader{}, err
	}
	return &segmentFile{path: path, file: f, number: hdr.SegmentNumber, kind: kind}, hdr, nil
}

func createSegmentFile(path string, number uint16, kind segmentFileKind) (*segmentFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errs.New(errs.KindIO, "createSegmentFile", err)
	}
	hdr := FileHeader{Signature: signatureFor(kind), FieldsStart: 0x01, SegmentNumber: number, FieldsEnd: 0x0000}
	if _, err := f.Write(hdr.encode()); err != nil {
		f.Close()
		return nil, errs.New(errs.KindIO, "createSegmentFile", err)
	}
	return &segmentFile{path: path, file: f, number: number, kind: kind}, nil
}

func reopenSegmentFileWrite(path string) (*segmentFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, errs.New(errs.KindIO, "reopenSegmentFileWrite", err)
	}
	hdrBuf := make([]byte, FileHeaderSize)
	if _, err := readFull(f, hdrBuf); err != nil {
		f.Close()
		return nil, errs.New(errs.KindIO, "reopenSegmentFileWrite", err)
	}
	hdr, err := decodeFileHeader(hdrBuf)
	if err != nil {
		f.Close()
		return nil, err
	}
	kind, err := hdr.kindOf()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &segmentFile{path: path, file: f, number: hdr.SegmentNumber, kind: kind}, nil
}

func (s *segmentFile) close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return errs.New(errs.KindIO, "segmentFile.close", err)
	}
	return nil
}

func (s *segmentFile) size() (int64, error) {
	fi, err := s.file.Stat()
	if err != nil {
		return 0, errs.New(errs.KindIO, "segmentFile.size", err)
	}
	return fi.Size(), nil
}

// appendSectionRecord records a finalized section in the in-memory list,
// used by the offset-table builder, the resume logic, and debug dumps
// (spec §4.2).
func (s *segmentFile) appendSectionRecord(typeName string, start, end uint64) {
	s.sections = append(s.sections, sectionListEntry{typeName: typeName, start: start, end: end})
}

// lastSection returns the most recently recorded section, or a zero value
// and false if none.
func (s *segmentFile) lastSection() (sectionListEntry, bool) {
	if len(s.sections) == 0 {
		return sectionListEntry{}, false
	}
	return s.sections[len(s.sections)-1], true
}

// readFull is a small io.ReadFull wrapper kept local so segmentfile.go only
// needs "os", matching the teacher's habit of minimal per-file imports.
func readFull(f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}
