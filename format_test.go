package ewf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormatRoundTrip(t *testing.T) {
	names := []string{
		"SMART", "EWF", "ENCASE1", "ENCASE2", "ENCASE3", "ENCASE4",
		"ENCASE5", "ENCASE6", "LINEN5", "LINEN6", "FTK", "EWFX", "LVF",
	}
	for _, name := range names {
		f, err := ParseFormat(name)
		require.NoError(t, err)
		assert.Equal(t, name, f.String())
	}
}

func TestParseFormatUnknown(t *testing.T) {
	_, err := ParseFormat("BOGUS")
	require.Error(t, err)
	assert.Equal(t, "UNKNOWN", FormatUnknown.String())
}

func TestExtensionChars(t *testing.T) {
	cases := []struct {
		format    Format
		delta     bool
		first, ad byte
	}{
		{FormatEnCase6, false, 'E', 'A'},
		{FormatSMART, false, 's', 'a'},
		{FormatEWF, false, 'e', 'a'},
		{FormatEWFX, false, 'e', 'a'},
		{FormatLVF, false, 'L', 'A'},
		{FormatEnCase6, true, 'd', 'a'},
	}
	for _, c := range cases {
		first, add := c.format.extensionChars(c.delta)
		assert.Equal(t, c.first, first)
		assert.Equal(t, c.ad, add)
	}
}

func TestHeaderLayoutPerFormat(t *testing.T) {
	// EWF-S01 and EnCase1 write a single "header" copy, per spec §4.3.
	for _, f := range []Format{FormatEWF, FormatSMART, FormatEnCase1} {
		layout := f.headerLayout()
		require.Len(t, layout, 1)
		assert.Equal(t, "header", layout[0].sectionType)
		assert.Equal(t, 1, layout[0].count)
	}
	// EnCase4/5/6 write both header and header2.
	layout := FormatEnCase6.headerLayout()
	require.Len(t, layout, 2)
	assert.Equal(t, "header", layout[0].sectionType)
	assert.Equal(t, "header2", layout[1].sectionType)
	// EWFX adds an xheader in UTF-8.
	layout = FormatEWFX.headerLayout()
	require.Len(t, layout, 3)
	assert.Equal(t, "xheader", layout[2].sectionType)
	assert.Equal(t, encodingUTF8, layout[2].encoding)
}

func TestFormatFlavorDecisions(t *testing.T) {
	assert.True(t, FormatSMART.usesSMARTVolume())
	assert.False(t, FormatEnCase6.usesSMARTVolume())

	assert.False(t, FormatSMART.emitsDataSection())
	assert.True(t, FormatEnCase6.emitsDataSection())

	assert.False(t, FormatSMART.tableHasTrailingChecksum())
	assert.True(t, FormatEnCase1.tableHasTrailingChecksum())

	assert.False(t, FormatSMART.emitsTable2())
	assert.False(t, FormatEnCase1.emitsTable2())
	assert.True(t, FormatEnCase6.emitsTable2())

	assert.Equal(t, uint64(128), FormatSMART.nextSectionSizeField(128))
	assert.Equal(t, uint64(0), FormatEnCase6.nextSectionSizeField(128))
}

func TestSegmentKind(t *testing.T) {
	assert.Equal(t, segmentKindLogical, FormatLVF.segmentKind())
	assert.Equal(t, segmentKindEWF, FormatEnCase6.segmentKind())
	assert.Equal(t, segmentKindEWF, FormatSMART.segmentKind())
}
