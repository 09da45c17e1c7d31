package ewf

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/dnpa/goewf/errs"
)

// handleMode distinguishes the four open_* entry points of spec §6's
// public handle API.
type handleMode uint8

const (
	modeRead handleMode = iota
	modeWrite
	modeWriteResume
	modeDelta
)

// crcError records one chunk whose checksum failed to verify, per spec §7:
// "added to the handle's CRC-error sector list and surfaced through the
// callback".
type crcError struct {
	Chunk       int
	FirstSector uint32
	SectorCount uint32
}

// Handle is the single public object spec §6 exposes, unifying read,
// write, write-resume, and delta-edit access the way the teacher's
// EWFImage in ewf.go unifies parse state — but, per spec §5, explicitly
// single-threaded (no internal mutex; the teacher's fileMutex is dropped
// because this module's contract already forbids concurrent use of one
// Handle, matching spec §5 "not safe for concurrent use by multiple
// threads").
type Handle struct {
	mode   handleMode
	format Format
	codec  Codec
	log    zerolog.Logger

	media MediaValues
	hash  *Store // get_hash_values / set_hash_values store (spec §6)

	segments []*segmentFile
	table    *offsetTable

	// write-path state machine (spec §4.6)
	write *writeState

	// delta-overlay state (spec §4.7)
	delta *deltaState

	crcErrors    []crcError
	lastChunk    []byte // single-chunk read cache (spec §4.5)
	lastChunkN   int
	byteSwap     bool
	basename     string
	errTolerance ErrorTolerance
}

// Option configures a Handle at open time.
type Option func(*Handle)

// WithLogger attaches a zerolog.Logger; default is zerolog.Nop() (log.go).
func WithLogger(l zerolog.Logger) Option {
	return func(h *Handle) { h.log = l }
}

// WithErrorTolerance sets the table/table2 disagreement policy (spec §9).
func WithErrorTolerance(t ErrorTolerance) Option {
	return func(h *Handle) { h.errTolerance = t }
}

// WithByteSwap enables the optional endian byte-pair swap spec §4.5 names.
func WithByteSwap() Option {
	return func(h *Handle) { h.byteSwap = true }
}

// WithExperimentalCodec swaps in an alternate Codec (e.g. NewLZ4Codec()).
// It applies to every Format; no format check is made.
func WithExperimentalCodec(c Codec) Option {
	return func(h *Handle) { h.codec = c }
}

// OpenRead implements spec §6's open_read(paths[]) -> Handle.
func OpenRead(paths []string, opts ...Option) (*Handle, error) {
	return openReadWith(paths, opts, parseAllSegments)
}

// openReadWith is OpenRead's and OpenWriteResume's shared assembly logic,
// parameterized over which segment-list parser to use: OpenRead requires a
// trailing done section, OpenWriteResume (an interrupted write) does not
// (see parseSegmentsForResume).
func openReadWith(paths []string, opts []Option, parse func([]string, Format, Codec) ([]*parsedSegment, error)) (*Handle, error) {
	if len(paths) == 0 {
		return nil, errs.New(errs.KindInvalidArgument, "OpenRead", errNoPaths{})
	}
	h := &Handle{mode: modeRead, codec: NewDeflateCodec(), log: zerolog.Nop(), lastChunkN: -1}
	for _, o := range opts {
		o(h)
	}

	// First pass: peek the first segment's format-determining section to
	// learn the flavor before a full parallel parse (we need Format up
	// front to know how to decode table/table2 checksums).
	format, err := sniffFormat(paths[0])
	if err != nil {
		return nil, err
	}
	h.format = format

	parsed, err := parse(paths, format, h.codec)
	if err != nil {
		return nil, err
	}
	for _, ps := range parsed {
		h.segments = append(h.segments, ps.seg)
		if ps.media != nil {
			h.media = *ps.media
		}
	}
	merged := mergeHeaderStores(firstNonNil(parsed, func(p *parsedSegment) *Store { return p.header }),
		firstNonNil(parsed, func(p *parsedSegment) *Store { return p.header2 }),
		firstNonNil(parsed, func(p *parsedSegment) *Store { return p.xheader }))
	h.hash = merged
	// Stored digests are exposed under the "md5"/"sha1" keys the writer
	// sets; a hash section's MD5 takes precedence over a digest section's.
	for _, ps := range parsed {
		if ps.digestMD5 != nil {
			merged.Set("md5", fmt.Sprintf("%x", ps.digestMD5))
		}
		if ps.digestSHA1 != nil {
			merged.Set("sha1", fmt.Sprintf("%x", ps.digestSHA1))
		}
		if ps.hashMD5 != nil {
			merged.Set("md5", fmt.Sprintf("%x", ps.hashMD5))
		}
	}

	table, err := buildOffsetTable(parsed, h.errTolerance, int(h.media.NumberOfChunks))
	if err != nil {
		return nil, err
	}
	h.table = table
	h.basename = stripExtension(paths[0])
	return h, nil
}

func firstNonNil(parsed []*parsedSegment, pick func(*parsedSegment) *Store) *Store {
	for _, p := range parsed {
		if s := pick(p); s != nil {
			return s
		}
	}
	return nil
}

type errNoPaths struct{}

func (errNoPaths) Error() string { return "open_read: no segment file paths supplied" }

// sniffFormat reads just enough of a segment file to learn its Format, by
// reading the file header signature and the first volume/disk section.
// This mirrors spec §4.2's read-open description but is split out because
// Format is needed before the full parallel section walk can decode
// table/table2 checksums correctly.
func sniffFormat(path string) (Format, error) {
	seg, hdr, err := openSegmentFileRead(path)
	if err != nil {
		return FormatUnknown, err
	}
	defer seg.close()
	kind, err := hdr.kindOf()
	if err != nil {
		return FormatUnknown, err
	}
	if kind == segmentKindLogical {
		return FormatLVF, nil
	}
	// Walk sections until volume/disk is found and classify by payload size
	// per spec §4.3. Every EnCase-size volume is reported as FormatEnCase6;
	// the flavors sharing that layout (EnCase1-6, LINEN, FTK, EWFX) are not
	// told apart.
	offset := uint64(firstSectionOffset)
	for i := 0; i < 64; i++ { // bounded: malformed files must not spin forever
		hdrBuf := make([]byte, SectionHeaderSize)
		if _, err := seg.file.ReadAt(hdrBuf, int64(offset)); err != nil {
			return FormatUnknown, errs.New(errs.KindIO, "sniffFormat", err)
		}
		sh, err := decodeSectionHeader(hdrBuf)
		if err != nil {
			return FormatUnknown, err
		}
		if sh.TypeName == "volume" || sh.TypeName == "disk" || sh.TypeName == "data" {
			payloadLen := int(sh.Size) - SectionHeaderSize
			smart, err := classifyVolumeSize(payloadLen)
			if err != nil {
				return FormatUnknown, err
			}
			if smart {
				return FormatSMART, nil
			}
			return FormatEnCase6, nil
		}
		if sh.TypeName == "next" || sh.TypeName == "done" {
			break
		}
		if sh.NextOffset <= offset {
			break
		}
		offset = sh.NextOffset
	}
	return FormatEWF, nil
}

func stripExtension(path string) string {
	ext := filepath.Ext(path)
	return path[:len(path)-len(ext)]
}

// GetMediaValues implements spec §6's get_media_values.
func (h *Handle) GetMediaValues() MediaValues { return h.media }

// GetHashValue implements spec §6's get_hash_values(handle, key).
func (h *Handle) GetHashValue(key string) (string, bool) {
	if h.hash == nil {
		return "", false
	}
	return h.hash.Get(key)
}

// SetHashValue implements spec §6's set_hash_values(handle, key, value).
// Only meaningful before the write engine finalizes (spec §4.6's finalize
// event emits the hash/digest sections from accumulated state).
func (h *Handle) SetHashValue(key, value string) error {
	if h.mode == modeRead {
		return errs.New(errs.KindInvalidArgument, "SetHashValue", errReadOnlyHandle{})
	}
	if h.hash == nil {
		h.hash = NewStore()
	}
	h.hash.Set(key, value)
	return nil
}

type errReadOnlyHandle struct{}

func (errReadOnlyHandle) Error() string { return "set_hash_values: handle is read-only" }

// AddAcquisitionError implements spec §6's add_acquisition_error, the
// write-path collaborator contract SPEC_FULL.md §5 supplements from
// ewfcommon.c's retry/skip counting.
func (h *Handle) AddAcquisitionError(firstSector, sectorCount uint32) error {
	if h.write == nil {
		return errs.New(errs.KindInvalidArgument, "AddAcquisitionError", errNotWriting{})
	}
	h.write.errorRanges = append(h.write.errorRanges, ErrorRange{FirstSector: firstSector, SectorCount: sectorCount})
	return nil
}

type errNotWriting struct{}

func (errNotWriting) Error() string { return "add_acquisition_error: handle is not a write handle" }

// Close implements spec §6's close(handle). For a write handle this calls
// finalize (spec §4.6) if not already finalized.
func (h *Handle) Close() error {
	var err error
	if h.mode == modeWrite && h.write != nil && !h.write.finalized {
		err = h.finalize()
	}
	if h.delta != nil && h.delta.current != nil {
		if cerr := h.delta.current.close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	for _, s := range h.segments {
		if cerr := s.close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
