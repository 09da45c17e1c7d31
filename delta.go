package ewf

import (
	"encoding/binary"

	"github.com/dnpa/goewf/errs"
)

// deltaChunkHeaderSize is the 4-byte chunk index + 4-byte chunk size +
// 6-byte padding + 4-byte checksum prelude inside a delta_chunk section,
// per spec §4.7 step 2.
const deltaChunkHeaderSize = 4 + 4 + 6 + 4

// deltaState tracks the parallel .Dxx segment chain spec §4.7 describes.
type deltaState struct {
	basename      string
	current       *segmentFile
	segmentNumber uint16
	maxSize       uint64
	// chunkSections maps a chunk number already present in the current
	// delta segment (d.current) to its delta_chunk section's header offset,
	// enabling the in-place overwrite case of spec §4.7 step 3. It is reset
	// when rolloverDeltaSegment starts a new segment.
	chunkSections map[int]uint64
	// pendingDone is the offset of the trailing done section appendDeltaChunk
	// last wrote to d.current, if any: the next chunk appended to this same
	// segment overwrites it rather than appending past it (see
	// appendDeltaChunk's doc comment).
	pendingDone    uint64
	hasPendingDone bool
}

// OpenDelta implements spec §6's open_delta(paths[], delta_basename) ->
// Handle: opens the base image read-only (to validate chunk existence and
// build the base offset table), per spec §4.7. Existing .Dxx files are not
// opened: the first WriteChunk creates delta segment 1 under deltaBasename,
// truncating any file already at that path.
func OpenDelta(paths []string, deltaBasename string, opts ...Option) (*Handle, error) {
	h, err := OpenRead(paths, opts...)
	if err != nil {
		return nil, err
	}
	h.mode = modeDelta
	h.delta = &deltaState{
		basename:      deltaBasename,
		maxSize:       defaultMaxSegmentSize,
		chunkSections: make(map[int]uint64),
	}
	return h, nil
}

// WriteChunk implements spec §4.7's write_chunk(chunk_n, bytes): the
// write-through edit of an existing image via the delta overlay.
func (h *Handle) WriteChunk(chunkN int, raw []byte) error {
	if h.mode != modeDelta {
		return errs.New(errs.KindInvalidArgument, "WriteChunk", errNotDeltaHandle{})
	}
	if _, err := h.table.lookup(chunkN); err != nil {
		return err // step 1: verify the chunk exists in the current offset table
	}
	d := h.delta
	if sectionOffset, ok := d.chunkSections[chunkN]; ok {
		return h.overwriteDeltaChunk(sectionOffset, raw) // step 3
	}
	if d.current == nil {
		if err := h.openNewDeltaSegment(); err != nil {
			return err
		}
	} else if !deltaSegmentHasRoom(d, len(raw)) {
		if err := h.rolloverDeltaSegment(); err != nil { // step 4
			return err
		}
	}
	return h.appendDeltaChunk(chunkN, raw) // step 2
}

type errNotDeltaHandle struct{}

func (errNotDeltaHandle) Error() string { return "write_chunk: handle is not open for delta editing" }

// deltaSegmentHasRoom reports whether one more delta_chunk section fits
// under d.maxSize, measured from the logical end of d.current: the offset
// of its still-pending done section if one is there to be overwritten
// (see appendDeltaChunk), or the file's actual size otherwise.
func deltaSegmentHasRoom(d *deltaState, chunkLen int) bool {
	size, err := d.current.size()
	if err != nil {
		return false
	}
	used := size
	if d.hasPendingDone {
		used = int64(d.pendingDone)
	}
	need := int64(SectionHeaderSize + deltaChunkHeaderSize + chunkLen + 4 + SectionHeaderSize) // + trailing done
	return used+need <= int64(d.maxSize)
}

func (h *Handle) openNewDeltaSegment() error {
	d := h.delta
	d.segmentNumber = 1
	path := segmentPath(d.basename, 1, h.format, true)
	seg, err := createSegmentFile(path, 1, segmentKindDelta)
	if err != nil {
		return err
	}
	d.current = seg
	d.hasPendingDone = false
	return nil
}

func (h *Handle) rolloverDeltaSegment() error {
	d := h.delta
	offset, err := d.current.size()
	if err != nil {
		return err
	}
	if d.hasPendingDone {
		offset = int64(d.pendingDone) // overwrite the stale done rather than append past it
	}
	hdr := SectionHeader{TypeName: "next", NextOffset: uint64(offset), Size: 0}
	if _, err := d.current.file.WriteAt(hdr.encode(), offset); err != nil {
		return errs.New(errs.KindIO, "rolloverDeltaSegment", err)
	}
	d.current.appendSectionRecord("next", uint64(offset), uint64(offset)+SectionHeaderSize)
	if err := d.current.close(); err != nil {
		return err
	}
	d.segmentNumber++
	path := segmentPath(d.basename, int(d.segmentNumber), h.format, true)
	seg, err := createSegmentFile(path, d.segmentNumber, segmentKindDelta)
	if err != nil {
		return err
	}
	d.current = seg
	d.hasPendingDone = false
	d.chunkSections = make(map[int]uint64)
	return nil
}

// appendDeltaChunk implements spec §4.7 steps 2, 5, 6: append a
// delta_chunk section, re-point the offset table entry, and (since this
// is a freshly appended section, not an in-place overwrite) emit a
// trailing done that a later extension will overwrite.
func (h *Handle) appendDeltaChunk(chunkN int, raw []byte) error {
	d := h.delta
	var sectionOffset uint64
	if d.hasPendingDone {
		sectionOffset = d.pendingDone
	} else {
		size, err := d.current.size()
		if err != nil {
			return err
		}
		sectionOffset = uint64(size)
	}
	payload := encodeDeltaChunkPayload(chunkN, raw)
	if err := writeSectionAt(d.current, sectionOffset, "delta_chunk", payload); err != nil {
		return err
	}
	d.chunkSections[chunkN] = sectionOffset
	if err := h.table.setDelta(chunkN, d.current, sectionOffset+SectionHeaderSize+deltaChunkHeaderSize, uint32(len(raw)+4)); err != nil {
		return err
	}
	doneOffset, err := d.current.size()
	if err != nil {
		return err
	}
	doneHdr := SectionHeader{TypeName: "done", NextOffset: uint64(doneOffset), Size: 0}
	if _, err := d.current.file.WriteAt(doneHdr.encode(), doneOffset); err != nil {
		return errs.New(errs.KindIO, "appendDeltaChunk", err)
	}
	d.pendingDone = uint64(doneOffset)
	d.hasPendingDone = true
	return nil
}

// overwriteDeltaChunk implements spec §4.7 step 3: rewrite an existing
// delta_chunk section's payload in place, no new section appended.
func (h *Handle) overwriteDeltaChunk(sectionOffset uint64, raw []byte) error {
	d := h.delta
	dataOffset := sectionOffset + SectionHeaderSize + deltaChunkHeaderSize
	checksum := adlerChecksum(raw)
	buf := make([]byte, len(raw)+4)
	copy(buf, raw)
	binary.LittleEndian.PutUint32(buf[len(raw):], checksum)
	if _, err := d.current.file.WriteAt(buf, int64(dataOffset)); err != nil {
		return errs.New(errs.KindIO, "overwriteDeltaChunk", err)
	}
	return nil
}

func encodeDeltaChunkPayload(chunkN int, raw []byte) []byte {
	buf := make([]byte, deltaChunkHeaderSize+len(raw)+4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(chunkN+1)) // 1-based, per spec §4.7 step 2
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(raw)))
	sum := adlerChecksum(buf[:14])
	binary.LittleEndian.PutUint32(buf[14:18], sum)
	copy(buf[deltaChunkHeaderSize:], raw)
	binary.LittleEndian.PutUint32(buf[deltaChunkHeaderSize+len(raw):], adlerChecksum(raw))
	return buf
}
