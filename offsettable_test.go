package ewf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOffsetTableFillAndLookup(t *testing.T) {
	seg := &segmentFile{number: 1}
	tbl := newOffsetTable(ToleranceStrict)
	tbl.init(4)
	raw := []rawTableEntry{
		{value: 0},
		{value: 100},
		{value: 0x80000000 | 250}, // compressed bit set
	}
	tbl.fill(1000, raw, seg)

	e0, err := tbl.lookup(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), e0.fileOffset)
	assert.False(t, e0.compressed)

	e2, err := tbl.lookup(2)
	require.NoError(t, err)
	assert.Equal(t, uint64(1250), e2.fileOffset)
	assert.True(t, e2.compressed)

	assert.Equal(t, 3, tbl.len())
}

func TestOffsetTableLookupOutOfRange(t *testing.T) {
	tbl := newOffsetTable(ToleranceStrict)
	tbl.init(1)
	_, err := tbl.lookup(0)
	require.Error(t, err)
}

func TestOffsetTableOverflowCompensation(t *testing.T) {
	// Entry 1's offset (relative to base) regresses below entry 0's,
	// simulating the EnCase 6.7 >2GiB wraparound spec §4.4 names. Once
	// triggered, remaining entries in this fill are read as full unsigned
	// 32-bit values instead of 31-bit-plus-compression-flag.
	seg := &segmentFile{number: 1}
	tbl := newOffsetTable(ToleranceStrict)
	tbl.init(2)
	raw := []rawTableEntry{
		{value: 0x7FFFFFF0},       // large offset, not yet overflowed
		{value: 0x00000010},       // would regress under 31-bit interpretation
	}
	tbl.fill(0, raw, seg)

	e0, _ := tbl.lookup(0)
	e1, _ := tbl.lookup(1)
	assert.Equal(t, uint64(0x7FFFFFF0), e0.fileOffset)
	// Once overflow triggers, entry 1 is read as a full 32-bit offset (0x10),
	// not masked to 31 bits, and the compressed bit is not extracted from it.
	assert.Equal(t, uint64(0x10), e1.fileOffset)
	assert.False(t, e1.compressed)
}

func TestOffsetTableCompareStrictMismatch(t *testing.T) {
	seg := &segmentFile{number: 1}
	tbl := newOffsetTable(ToleranceStrict)
	tbl.init(1)
	tbl.fill(1000, []rawTableEntry{{value: 0}}, seg)

	err := tbl.compare(1000, []rawTableEntry{{value: 500}}, seg, true)
	require.Error(t, err)
}

func TestOffsetTableCompareCompensateTaints(t *testing.T) {
	seg := &segmentFile{number: 1}
	tbl := newOffsetTable(ToleranceCompensate)
	tbl.init(1)
	tbl.fill(1000, []rawTableEntry{{value: 0}}, seg)

	err := tbl.compare(1000, []rawTableEntry{{value: 500}}, seg, true)
	require.NoError(t, err)
	e, _ := tbl.lookup(0)
	assert.True(t, e.tainted)
	// Compensate never rewrites the primary entry.
	assert.Equal(t, uint64(1000), e.fileOffset)
}

func TestOffsetTableCompareCorrectRewrites(t *testing.T) {
	seg := &segmentFile{number: 1}
	tbl := newOffsetTable(ToleranceCorrect)
	tbl.init(1)
	tbl.fill(1000, []rawTableEntry{{value: 0}}, seg)

	err := tbl.compare(1000, []rawTableEntry{{value: 500}}, seg, true)
	require.NoError(t, err)
	e, _ := tbl.lookup(0)
	assert.False(t, e.tainted)
	assert.Equal(t, uint64(1500), e.fileOffset)
}

func TestOffsetTableCompareCorrectFallsBackWhenSecondaryBad(t *testing.T) {
	seg := &segmentFile{number: 1}
	tbl := newOffsetTable(ToleranceCorrect)
	tbl.init(1)
	tbl.fill(1000, []rawTableEntry{{value: 0}}, seg)

	err := tbl.compare(1000, []rawTableEntry{{value: 500}}, seg, false)
	require.NoError(t, err)
	e, _ := tbl.lookup(0)
	assert.True(t, e.tainted)
	assert.Equal(t, uint64(1000), e.fileOffset)
}

func TestOffsetTableFillLastOffset(t *testing.T) {
	seg := &segmentFile{number: 1}
	tbl := newOffsetTable(ToleranceStrict)
	tbl.init(2)
	tbl.fill(0, []rawTableEntry{{value: 100}, {value: 200}}, seg)
	tbl.fillLastOffset(350)

	e1, _ := tbl.lookup(1)
	assert.Equal(t, uint32(150), e1.size)
}

func TestOffsetTableSetDelta(t *testing.T) {
	seg := &segmentFile{number: 1}
	deltaSeg := &segmentFile{number: 1}
	tbl := newOffsetTable(ToleranceStrict)
	tbl.init(1)
	tbl.fill(0, []rawTableEntry{{value: 50}}, seg)

	err := tbl.setDelta(0, deltaSeg, 999, 32768)
	require.NoError(t, err)
	e, _ := tbl.lookup(0)
	assert.True(t, e.inDelta)
	assert.Equal(t, uint64(999), e.fileOffset)
	assert.Same(t, deltaSeg, e.segment)

	err = tbl.setDelta(5, deltaSeg, 0, 0)
	require.Error(t, err)
}
