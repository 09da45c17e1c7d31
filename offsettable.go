package ewf

import (
	"github.com/dnpa/goewf/errs"
)

// ErrorTolerance controls how the offset table reacts when a table/table2
// pair disagree — spec §9 Open Question, resolved here per the 3-value enum
// the spec itself proposes. Decision recorded in DESIGN.md.
type ErrorTolerance uint8

const (
	// ToleranceStrict fails the parse on any table/table2 mismatch.
	ToleranceStrict ErrorTolerance = iota
	// ToleranceCompensate accepts tainted entries without correcting them.
	ToleranceCompensate
	// ToleranceCorrect rewrites the primary entry from the secondary when
	// the secondary's checksum verifies.
	ToleranceCorrect
)

// offsetEntry is one chunk's location, per spec §3 "Offset Table (in-memory)".
type offsetEntry struct {
	segment    *segmentFile
	fileOffset uint64
	size       uint32 // payload size in bytes (compressed if Compressed)
	compressed bool
	inDelta    bool
	tainted    bool // table/table2 disagreed and the entry was not corrected from table2
}

// offsetTable is the dense chunk-number -> offsetEntry index spec §4.4
// names, grounded on spec.md's operation list (init/resize/fill/compare/
// fill_last_offset/lookup/seek_chunk) and the overflow-compensation
// heuristic in original_source/libewf/libewf_offset_table.c lines ~200-400.
type offsetTable struct {
	entries      []offsetEntry
	lastFilled   int // count of entries written by fill()
	lastCompared int // count of entries cross-checked by compare()
	tolerance    ErrorTolerance
}

func newOffsetTable(tolerance ErrorTolerance) *offsetTable {
	return &offsetTable{tolerance: tolerance}
}

// init pre-reserves capacity to the declared number_of_chunks, per spec §5
// "pre-reserved... to avoid growth during hot-path chunk reads".
func (t *offsetTable) init(capacity int) {
	t.entries = make([]offsetEntry, 0, capacity)
}

// resize grows the table to at least newCapacity entries, zero-filling the
// tail. Grow-only, per spec §4.4.
func (t *offsetTable) resize(newCapacity int) {
	if newCapacity <= len(t.entries) {
		return
	}
	grown := make([]offsetEntry, newCapacity)
	copy(grown, t.entries)
	t.entries = grown
}

// rawTableEntry is one 4-byte offset as it appears on the wire inside a
// table/table2 section, before this handle's overflow state is applied.
type rawTableEntry struct {
	value uint32 // 31-bit offset-relative-to-base, or full 32-bit once overflowed
}

func (r rawTableEntry) compressed(overflowed bool) bool {
	if overflowed {
		return false
	}
	return r.value&0x80000000 != 0
}

func (r rawTableEntry) offset(overflowed bool) uint64 {
	if overflowed {
		return uint64(r.value)
	}
	return uint64(r.value & 0x7FFFFFFF)
}

// fill appends one table section's worth of entries, detecting the EnCase
// 6.7 > 2 GiB overflow the way libewf_offset_table.c's
// libewf_offset_table_fill does: a next-offset-regresses-below-current test
// flips a permanent "overflowed" switch for the remainder of this table.
func (t *offsetTable) fill(baseOffset uint64, raw []rawTableEntry, seg *segmentFile) {
	start := t.lastFilled
	if need := start + len(raw); need > len(t.entries) {
		t.resize(need)
	}
	overflowed := false
	var prevOffset uint64
	for i, r := range raw {
		off := baseOffset + r.offset(overflowed)
		if i > 0 && off < prevOffset {
			overflowed = true
			off = baseOffset + r.offset(overflowed)
		}
		if i > 0 && off > prevOffset {
			t.setSize(start+i-1, uint32(off-prevOffset))
		}
		t.entries[start+i] = offsetEntry{
			segment:    seg,
			fileOffset: off,
			compressed: r.compressed(overflowed),
		}
		prevOffset = off
	}
	t.lastFilled = start + len(raw)
	// The table's final chunk ends where the next section of seg begins.
	if len(raw) > 0 {
		for _, rec := range seg.sections {
			if rec.start > prevOffset {
				t.setSize(start+len(raw)-1, uint32(rec.start-prevOffset))
				break
			}
		}
	}
}

// compare cross-checks a table2 section's entries against the primary
// fill(), per spec §4.4 and §9's ErrorTolerance resolution. secondaryChecksumOK
// reports whether table2's own trailing section checksum verified — only
// ToleranceCorrect may use a disagreeing secondary, and only when it is
// itself intact.
func (t *offsetTable) compare(baseOffset uint64, raw []rawTableEntry, seg *segmentFile, secondaryChecksumOK bool) error {
	start := t.lastCompared
	overflowed := false
	var prevOffset uint64
	for i, r := range raw {
		idx := start + i
		if idx >= len(t.entries) {
			return errs.New(errs.KindCorrupt, "offsetTable.compare", errTableOverrun(idx))
		}
		off := baseOffset + r.offset(overflowed)
		if i > 0 && off < prevOffset {
			overflowed = true
			off = baseOffset + r.offset(overflowed)
		}
		prevOffset = off
		primary := t.entries[idx]
		if primary.fileOffset != off || primary.compressed != r.compressed(overflowed) {
			switch t.tolerance {
			case ToleranceStrict:
				return errs.New(errs.KindCorrupt, "offsetTable.compare", errTableMismatch(idx))
			case ToleranceCorrect:
				if secondaryChecksumOK {
					t.entries[idx] = offsetEntry{
						segment:    seg,
						fileOffset: off,
						compressed: r.compressed(overflowed),
					}
					continue
				}
				fallthrough
			default: // ToleranceCompensate
				t.entries[idx].tainted = true
			}
		}
	}
	t.lastCompared = start + len(raw)
	return nil
}

type errTableOverrun int

func (e errTableOverrun) Error() string { return "table2 entry beyond filled offset table at index " + itoa(int(e)) }

type errTableMismatch int

func (e errTableMismatch) Error() string { return "table/table2 disagree at index " + itoa(int(e)) }

// fillLastOffset infers the final chunk's size from the start offset of the
// next section in the containing segment file's section list, per spec §3
// "Last-chunk size cannot be read from offsets alone". An entry that fill
// has already sized is left unchanged.
func (t *offsetTable) fillLastOffset(nextSectionStart uint64) {
	if len(t.entries) == 0 {
		return
	}
	last := &t.entries[len(t.entries)-1]
	if last.size == 0 && nextSectionStart > last.fileOffset {
		last.size = uint32(nextSectionStart - last.fileOffset)
	}
}

// setSize records a chunk's on-disk payload size as it is discovered —
// used by fill for every chunk of a table: from the following chunk's
// offset, or for the table's last chunk from the start of the next section
// in its segment file.
func (t *offsetTable) setSize(chunk int, size uint32) {
	if chunk >= 0 && chunk < len(t.entries) {
		t.entries[chunk].size = size
	}
}

// lookup returns chunk i's entry, per spec §4.4.
func (t *offsetTable) lookup(i int) (offsetEntry, error) {
	if i < 0 || i >= len(t.entries) {
		return offsetEntry{}, errs.New(errs.KindInvalidArgument, "offsetTable.lookup", errInvalidChunk(i))
	}
	return t.entries[i], nil
}

type errInvalidChunk int

func (e errInvalidChunk) Error() string { return "invalid chunk number " + itoa(int(e)) }

// seekChunk is the O(1) hot path the read engine calls per chunk, per
// spec §4.4: "the only operation the read engine calls per chunk".
func (t *offsetTable) seekChunk(i int) (*segmentFile, uint64, error) {
	e, err := t.lookup(i)
	if err != nil {
		return nil, 0, err
	}
	return e.segment, e.fileOffset, nil
}

// setDelta re-points chunk i at a delta-overlay location, per spec §4.7
// step 5: "update the offset-table entry for chunk_n: new segment file
// pointer, new file offset, in_delta = true".
func (t *offsetTable) setDelta(i int, seg *segmentFile, fileOffset uint64, size uint32) error {
	if i < 0 || i >= len(t.entries) {
		return errs.New(errs.KindInvalidArgument, "offsetTable.setDelta", errInvalidChunk(i))
	}
	t.entries[i].segment = seg
	t.entries[i].fileOffset = fileOffset
	t.entries[i].size = size
	t.entries[i].compressed = false
	t.entries[i].inDelta = true
	return nil
}

func (t *offsetTable) len() int { return len(t.entries) }
