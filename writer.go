package ewf

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dnpa/goewf/errs"
)

// defaultChunksPerSection is spec §4.6's "chunks_in_section >= max_per_section
// (default 16 384)" trigger.
const defaultChunksPerSection = 16384

// defaultMaxSegmentSize is a conservative few-GiB default, per spec §3:
// "a caller-configured maximum size (default a few GiB, hard cap INT64_MAX)".
const defaultMaxSegmentSize = 1 << 31 // 2 GiB

// writeStateKind is the Fresh/InSegment/Finalized state machine of spec §4.6.
type writeStateKind uint8

const (
	stateFresh writeStateKind = iota
	stateInSegment
	stateFinalized
)

// writeState carries every field the write-engine state machine needs,
// grounded on spec §4.6's table of events/transitions and the exact
// chunks-per-segment sizing arithmetic in
// original_source/libewf/libewf_write_io_handle.c lines ~794-946
// (calculateChunksPerSegment below).
type writeState struct {
	kind           writeStateKind
	seg            *segmentFile
	segmentNumber  uint16
	maxSegmentSize uint64

	inChunksSection        bool
	chunksWrittenToSegment uint32
	chunksWrittenToSection uint32
	chunksPerSection       uint32
	unrestrictOffsetTable  bool

	sectionHeaderOffset uint64 // start of the open sectors/table-indexed chunks section
	baseOffset          uint64 // base_offset for the in-flight table
	tableEntries        []rawTableEntry

	partial       []byte // bytes buffered toward the next full chunk
	mediaKnown    bool   // whether MediaSize was known up front
	chunksTotal   uint32
	bytesTotal    uint64
	digests       *digestSet
	errorRanges   []ErrorRange
	sessions      []SessionRange
	finalized     bool

	// volumeSections records every already-written volume/disk section (one
	// per segment file, written by writeVolumeSection) so finalize can patch
	// each one in place with the observed chunk/sector/media-size totals,
	// per spec §4.6's finalize row. Every format relies on this, not just
	// EWF-S01: emitsDataSection formats get a second, authoritative "data"
	// section appended at finalize too, but FormatSMART never emits one, so
	// patching volumeSections in place is the only place its totals land.
	volumeSections []volumeSectionRef
}

type volumeSectionRef struct {
	seg    *segmentFile
	offset uint64
}

// OpenWrite implements spec §6's open_write(basename, media_values,
// format, compression) -> Handle. Grounded on ewf.go's write-adjacent
// helpers (none survive intact — the teacher never implemented a writer —
// so this is built fresh against spec §4.6, in the teacher's error-
// wrapping/mutex-free-single-handle idiom).
func OpenWrite(basename string, mv MediaValues, format Format, compression CompressionLevel, opts ...Option) (*Handle, error) {
	mv.Format = format
	mv.Compression = compression
	h := &Handle{
		mode:     modeWrite,
		format:   format,
		codec:    NewDeflateCodec(),
		log:      zerolog.Nop(),
		basename: basename,
		media:    mv,
		hash:     NewStore(),
	}
	for _, o := range opts {
		o(h)
	}
	h.write = &writeState{
		kind:           stateFresh,
		maxSegmentSize: defaultMaxSegmentSize,
		mediaKnown:     mv.MediaSize > 0,
		digests:        newDigestSet(),
	}
	return h, nil
}

// Write implements spec §6's write(handle, buf, length) -> bytes_written,
// append-only, per spec §5's ordering guarantee: "Chunks... processed and
// persisted in strictly ascending chunk-number order on the write path."
func (h *Handle) Write(buf []byte) (int, error) {
	if h.mode != modeWrite {
		return 0, errs.New(errs.KindInvalidArgument, "Handle.Write", errNotWriting{})
	}
	if h.write.finalized {
		return 0, errs.New(errs.KindInvalidArgument, "Handle.Write", errAlreadyFinalized{})
	}
	w := h.write
	written := 0
	for written < len(buf) {
		if w.kind == stateFresh {
			if err := h.beginImage(); err != nil {
				return written, err
			}
		}
		need := int(h.media.ChunkSize) - len(w.partial)
		take := len(buf) - written
		if take > need {
			take = need
		}
		w.partial = append(w.partial, buf[written:written+take]...)
		written += take
		w.bytesTotal += uint64(take)
		if len(w.partial) == int(h.media.ChunkSize) {
			if err := h.emitChunk(w.partial); err != nil {
				return written, err
			}
			w.partial = w.partial[:0]
		}
	}
	return written, nil
}

type errAlreadyFinalized struct{}

func (errAlreadyFinalized) Error() string { return "write: handle already finalized" }

// beginImage implements the "first byte in" transition of spec §4.6's
// table: create segment 1, emit file header + header-family sections +
// volume/data, open a new chunks section.
func (h *Handle) beginImage() error {
	w := h.write
	w.segmentNumber = 1
	path := segmentPath(h.basename, 1, h.format, false)
	seg, err := createSegmentFile(path, 1, h.format.segmentKind())
	if err != nil {
		return err
	}
	w.seg = seg
	h.segments = append(h.segments, seg)
	if err := h.writeHeaderSections(seg); err != nil {
		return err
	}
	if err := h.writeVolumeSection(seg); err != nil {
		return err
	}
	w.kind = stateInSegment
	return h.openChunksSection()
}

func segmentPath(basename string, number int, format Format, delta bool) string {
	ext, err := Extension(number, format, delta)
	if err != nil {
		ext = "E01"
	}
	return fmt.Sprintf("%s.%s", basename, ext)
}

func (h *Handle) writeHeaderSections(seg *segmentFile) error {
	for _, copySpec := range h.format.headerLayout() {
		payload, err := encodeHeaderSection(h.hash, h.format, copySpec.encoding, h.codec)
		if err != nil {
			return err
		}
		for i := 0; i < copySpec.count; i++ {
			if err := writeSection(seg, copySpec.sectionType, payload); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *Handle) writeVolumeSection(seg *segmentFile) error {
	h.media.NumberOfChunks = h.write.chunksTotal // 0 until finalize if streaming
	payload := encodeMediaValues(h.media)
	typeName := "volume"
	if h.format.usesSMARTVolume() {
		typeName = "disk"
	}
	offset, err := seg.size()
	if err != nil {
		return err
	}
	if err := writeSection(seg, typeName, payload); err != nil {
		return err
	}
	h.write.volumeSections = append(h.write.volumeSections, volumeSectionRef{seg: seg, offset: uint64(offset)})
	return nil
}

// patchVolumeSections rewrites every previously-written volume/disk
// section's payload in place with h.media's now-final totals, the same
// WriteAt-over-the-existing-offset pattern overwriteDeltaChunk uses for
// delta_chunk sections: the payload is a fixed size for a given format, so
// the enclosing SectionHeader (and its own checksum, over header bytes
// only) never needs to change.
func (h *Handle) patchVolumeSections() error {
	payload := encodeMediaValues(h.media)
	for _, ref := range h.write.volumeSections {
		if _, err := ref.seg.file.WriteAt(payload, int64(ref.offset)+SectionHeaderSize); err != nil {
			return errs.New(errs.KindIO, "patchVolumeSections", err)
		}
	}
	return nil
}

// writeSection appends one section (header + payload) at the current end
// of seg's file, recording it in the section list, per spec §4.2's
// bookkeeping contract.
func writeSection(seg *segmentFile, typeName string, payload []byte) error {
	size, err := seg.size()
	if err != nil {
		return err
	}
	return writeSectionAt(seg, uint64(size), typeName, payload)
}

// writeSectionAt is writeSection's offset-explicit counterpart, used by
// delta.go's appendDeltaChunk to overwrite a still-pending done section in
// place instead of always appending at the file's current end.
func writeSectionAt(seg *segmentFile, offset uint64, typeName string, payload []byte) error {
	total := uint64(SectionHeaderSize + len(payload))
	hdr := SectionHeader{TypeName: typeName, NextOffset: offset + total, Size: total}
	if typeName == "next" || typeName == "done" {
		hdr.NextOffset = offset
	}
	buf := append(hdr.encode(), payload...)
	if _, err := seg.file.WriteAt(buf, int64(offset)); err != nil {
		return errs.New(errs.KindIO, "writeSection", err)
	}
	seg.appendSectionRecord(typeName, offset, offset+total)
	return nil
}

// calculateChunksPerSegment mirrors
// libewf_write_io_handle_calculate_chunks_per_segment: S01 assumes
// chunk_size+16 bytes average compressed size per chunk (table has no
// trailing checksum, no table2); EnCase variants assume chunk_size+4 and
// budget for both table and table2 headers+checksums; EnCase1 never emits
// table2 so its overhead is the single-table variant even though its
// compression-overhead assumption matches the other EnCase flavors.
func calculateChunksPerSegment(remaining uint64, chunkSize uint32, format Format, unrestrict bool) uint32 {
	if unrestrict {
		return ^uint32(0) // "a flat 1" at the section granularity; unlimited chunks per the one section
	}
	var avgOverhead uint64
	if format == FormatSMART {
		avgOverhead = uint64(chunkSize) + 16
	} else {
		avgOverhead = uint64(chunkSize) + 4
	}
	sectionOverhead := uint64(SectionHeaderSize) // one sectors/table header
	sectionOverhead += tableHeaderSize + 4       // table header + checksum
	if format.emitsTable2() {
		sectionOverhead += SectionHeaderSize + tableHeaderSize + 4
	}
	if remaining <= sectionOverhead {
		return 0
	}
	usable := remaining - sectionOverhead
	perChunkCost := avgOverhead + 4 // + one table entry (4 bytes) per chunk
	n := usable / perChunkCost
	if n > defaultChunksPerSection {
		n = defaultChunksPerSection
	}
	if n == 0 {
		n = 1
	}
	return uint32(n)
}

// openChunksSection implements the "full-chunk buffered, no chunks section
// open" transition: emit a sectors header with a placeholder size, record
// its offset for later back-patching. Every format, EWF-S01 included, gets
// a sectors header here.
func (h *Handle) openChunksSection() error {
	w := h.write
	size, err := w.seg.size()
	if err != nil {
		return err
	}
	remaining := w.maxSegmentSize - uint64(size)
	w.chunksPerSection = calculateChunksPerSegment(remaining, h.media.ChunkSize, h.format, w.unrestrictOffsetTable)
	w.sectionHeaderOffset = uint64(size)
	w.baseOffset = uint64(size) + SectionHeaderSize
	w.tableEntries = w.tableEntries[:0]
	w.chunksWrittenToSection = 0
	// placeholder sectors header; size back-patched in closeChunksSection.
	hdr := SectionHeader{TypeName: "sectors", NextOffset: uint64(size), Size: 0}
	if _, err := w.seg.file.WriteAt(hdr.encode(), int64(size)); err != nil {
		return errs.New(errs.KindIO, "openChunksSection", err)
	}
	w.inChunksSection = true
	return nil
}

// emitChunk implements the "full-chunk buffered, chunks section open"
// transition: compress+checksum the chunk, write it, append its offset
// entry, then checks whether the chunks section or segment file is full.
func (h *Handle) emitChunk(raw []byte) error {
	w := h.write
	stored, compressed, err := encodeStoredChunk(raw, h.codec, h.media.Compression)
	if err != nil {
		return err
	}
	size, err := w.seg.size()
	if err != nil {
		return err
	}
	if _, err := w.seg.file.WriteAt(stored, size); err != nil {
		return errs.New(errs.KindIO, "emitChunk", err)
	}
	entry := packTableEntry(uint64(size)-w.baseOffset, compressed)
	w.tableEntries = append(w.tableEntries, entry)
	w.chunksWrittenToSegment++
	w.chunksWrittenToSection++
	w.chunksTotal++
	w.digests.update(raw)
	h.log.Debug().Int("chunk", int(w.chunksTotal)-1).Bool("compressed", compressed).Msg("wrote chunk")

	fileSize, err := w.seg.size()
	if err != nil {
		return err
	}
	sectionFull := w.chunksWrittenToSection >= w.chunksPerSection ||
		uint64(fileSize)+uint64(h.media.ChunkSize)+4 > w.maxSegmentSize
	if sectionFull {
		if err := h.closeChunksSection(); err != nil {
			return err
		}
		fileSize, err = w.seg.size()
		if err != nil {
			return err
		}
		segmentFull := w.maxSegmentSize-uint64(fileSize) < uint64(h.media.ChunkSize)*2
		if segmentFull {
			return h.rolloverSegment()
		}
		return h.openChunksSection()
	}
	return nil
}

// closeChunksSection implements the "chunks-section full" transition:
// back-patch the sectors header with the true size, emit table (and
// table2 for EnCase) with the collected offsets, close the chunks section.
func (h *Handle) closeChunksSection() error {
	w := h.write
	end, err := w.seg.size()
	if err != nil {
		return err
	}
	total := uint64(end) - w.sectionHeaderOffset
	nextOffset := uint64(end)
	hdr := SectionHeader{TypeName: "sectors", NextOffset: nextOffset, Size: total}
	if _, err := w.seg.file.WriteAt(hdr.encode(), int64(w.sectionHeaderOffset)); err != nil {
		return errs.New(errs.KindIO, "closeChunksSection", err)
	}
	w.seg.appendSectionRecord("sectors", w.sectionHeaderOffset, nextOffset)

	payload := encodeTablePayload(w.baseOffset, w.tableEntries, h.format)
	if err := writeSection(w.seg, "table", payload); err != nil {
		return err
	}
	if h.format.emitsTable2() {
		if err := writeSection(w.seg, "table2", payload); err != nil {
			return err
		}
	}
	w.inChunksSection = false
	return nil
}

// rolloverSegment implements the "segment-file full" transition: emit
// next, close the segment file, increment the segment number, and prepare
// Fresh-equivalent state for the next segment's prelude.
func (h *Handle) rolloverSegment() error {
	w := h.write
	size, err := w.seg.size()
	if err != nil {
		return err
	}
	nextSize := h.format.nextSectionSizeField(SectionHeaderSize)
	hdr := SectionHeader{TypeName: "next", NextOffset: uint64(size), Size: nextSize}
	if _, err := w.seg.file.WriteAt(hdr.encode(), int64(size)); err != nil {
		return errs.New(errs.KindIO, "rolloverSegment", err)
	}
	w.seg.appendSectionRecord("next", uint64(size), uint64(size)+SectionHeaderSize)

	if w.segmentNumber >= MaxSegmentNumber {
		return errs.New(errs.KindLimitExceeded, "rolloverSegment", errSegmentRange(int(w.segmentNumber)+1))
	}
	w.segmentNumber++
	path := segmentPath(h.basename, int(w.segmentNumber), h.format, false)
	seg, err := createSegmentFile(path, w.segmentNumber, h.format.segmentKind())
	if err != nil {
		return err
	}
	w.seg = seg
	h.segments = append(h.segments, seg)
	if err := h.writeVolumeSection(seg); err != nil {
		return err
	}
	return h.openChunksSection()
}

// finalize implements spec §4.6's finalize event, invoked from Handle.Close.
func (h *Handle) finalize() error {
	w := h.write
	if len(w.partial) > 0 {
		if err := h.emitChunk(padToChunkSize(w.partial, int(h.media.ChunkSize))); err != nil {
			return err
		}
		w.partial = w.partial[:0]
	}
	if w.inChunksSection {
		if err := h.closeChunksSection(); err != nil {
			return err
		}
	}
	h.media.NumberOfChunks = w.chunksTotal
	if !w.mediaKnown {
		h.media.MediaSize = w.bytesTotal
		h.media.NumberOfSectors = uint32(w.bytesTotal / uint64(h.media.BytesPerSector))
	}
	if err := h.patchVolumeSections(); err != nil {
		return err
	}
	if h.format.emitsDataSection() {
		if err := writeSection(w.seg, "data", encodeMediaValues(h.media)); err != nil {
			return err
		}
	}
	md5 := w.digests.md5.Finalize()
	sha1 := w.digests.sha1.Finalize()
	h.hash.Set("md5", fmt.Sprintf("%x", md5))
	h.hash.Set("sha1", fmt.Sprintf("%x", sha1))
	if err := writeSection(w.seg, "digest", encodeDigestSection(md5, sha1)); err != nil {
		return err
	}
	if err := writeSection(w.seg, "hash", encodeHashSection(md5)); err != nil {
		return err
	}
	if len(w.errorRanges) > 0 {
		if err := writeSection(w.seg, "error2", encodeError2Section(w.errorRanges)); err != nil {
			return err
		}
	}
	if len(w.sessions) > 0 {
		if err := writeSection(w.seg, "session", encodeSessionSection(w.sessions)); err != nil {
			return err
		}
	}
	size, err := w.seg.size()
	if err != nil {
		return err
	}
	hdr := SectionHeader{TypeName: "done", NextOffset: uint64(size), Size: 0}
	if _, err := w.seg.file.WriteAt(hdr.encode(), int64(size)); err != nil {
		return errs.New(errs.KindIO, "finalize", err)
	}
	w.seg.appendSectionRecord("done", uint64(size), uint64(size)+SectionHeaderSize)
	w.finalized = true
	return nil
}

func padToChunkSize(buf []byte, size int) []byte {
	if len(buf) >= size {
		return buf
	}
	out := make([]byte, size)
	copy(out, buf)
	return out
}

// OpenWriteResume implements spec §6's open_write_resume(paths[]) -> Handle,
// per spec §4.6's Resume table: the type of the last section in the last
// segment file (data, sectors, table, table2 or next) decides how to
// recover; any other final section type is rejected. That segment file is
// reopened read-write for the truncation and the new chunks section.
func OpenWriteResume(paths []string, opts ...Option) (*Handle, error) {
	h, err := openReadWith(paths, opts, parseSegmentsForResume)
	if err != nil {
		return nil, err
	}
	h.mode = modeWrite
	last := h.segments[len(h.segments)-1]
	rw, err := reopenSegmentFileWrite(last.path)
	if err != nil {
		return nil, err
	}
	last.file.Close()
	last.file = rw.file
	w := &writeState{
		kind:           stateInSegment,
		seg:            last,
		segmentNumber:  last.number,
		maxSegmentSize: defaultMaxSegmentSize,
		mediaKnown:     h.media.MediaSize > 0,
		digests:        newDigestSet(),
		chunksTotal:    uint32(h.table.len()),
	}
	h.write = w
	for _, seg := range h.segments {
		for _, rec := range seg.sections {
			if rec.typeName == "volume" || rec.typeName == "disk" {
				w.volumeSections = append(w.volumeSections, volumeSectionRef{seg: seg, offset: rec.start})
			}
		}
	}

	if len(last.sections) == 0 {
		return nil, errs.New(errs.KindCorrupt, "OpenWriteResume", errEmptySectionList{})
	}
	final := last.sections[len(last.sections)-1]
	switch final.typeName {
	case "data":
		if err := truncateTo(last, final.end); err != nil {
			return nil, err
		}
		if err := h.openChunksSection(); err != nil {
			return nil, err
		}
	case "sectors":
		// chunks in this section were never referenced by a table section,
		// so the offset table already excludes them; only the file itself
		// needs truncating before re-streaming the unindexed tail.
		if err := truncateTo(last, final.start); err != nil {
			return nil, err
		}
		if err := h.openChunksSection(); err != nil {
			return nil, err
		}
	case "table":
		if err := truncateOffsetTable(h.table, h.table.lastCompared); err != nil {
			return nil, err
		}
		if err := truncateTo(last, final.start); err != nil {
			return nil, err
		}
		if err := h.openChunksSection(); err != nil {
			return nil, err
		}
	case "table2":
		if err := h.openChunksSection(); err != nil {
			return nil, err
		}
	case "next":
		// nothing to recover in this file; allocate a new segment (spec §4.6 Resume).
		if w.segmentNumber >= MaxSegmentNumber {
			return nil, errs.New(errs.KindLimitExceeded, "OpenWriteResume", errSegmentRange(int(w.segmentNumber)+1))
		}
		w.segmentNumber++
		path := segmentPath(h.basename, int(w.segmentNumber), h.format, false)
		seg, err := createSegmentFile(path, w.segmentNumber, h.format.segmentKind())
		if err != nil {
			return nil, err
		}
		w.seg = seg
		h.segments = append(h.segments, seg)
		if err := h.writeVolumeSection(seg); err != nil {
			return nil, err
		}
		if err := h.openChunksSection(); err != nil {
			return nil, err
		}
	default:
		return nil, errs.New(errs.KindCorrupt, "OpenWriteResume", errUnresumableSection(final.typeName))
	}
	return h, nil
}

type errEmptySectionList struct{}

func (errEmptySectionList) Error() string { return "open_write_resume: segment file has no sections" }

type errUnresumableSection string

func (e errUnresumableSection) Error() string {
	return "open_write_resume: cannot resume after section type " + string(e)
}

func truncateTo(seg *segmentFile, offset uint64) error {
	if err := seg.file.Truncate(int64(offset)); err != nil {
		return errs.New(errs.KindIO, "truncateTo", err)
	}
	for i, s := range seg.sections {
		if s.start >= offset {
			seg.sections = seg.sections[:i]
			break
		}
	}
	return nil
}

func truncateOffsetTable(t *offsetTable, keep int) error {
	if keep < 0 || keep > len(t.entries) {
		return errs.New(errs.KindCorrupt, "truncateOffsetTable", errInvalidChunk(keep))
	}
	t.entries = t.entries[:keep]
	t.lastFilled = keep
	t.lastCompared = keep
	return nil
}
