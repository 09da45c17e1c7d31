package ewf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreOrderPreserved(t *testing.T) {
	s := NewStore()
	s.Set("c", "case-1")
	s.Set("n", "evidence-1")
	s.Set("c", "case-1-updated")

	assert.Equal(t, []string{"c", "n"}, s.Keys())
	v, ok := s.Get("c")
	require.True(t, ok)
	assert.Equal(t, "case-1-updated", v)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestHeaderFieldSetAddsCompressionHintForEnCase5Plus(t *testing.T) {
	base := headerFieldSet(FormatEnCase3)
	assert.NotContains(t, base, "dc")

	withDC := headerFieldSet(FormatEnCase6)
	assert.Contains(t, withDC, "dc")
}

func TestHeaderTextRoundTrip(t *testing.T) {
	s := NewStore()
	s.Set("c", "case-42")
	s.Set("n", "evidence-42")
	s.Set("e", "examiner")

	text := encodeHeaderText(s, FormatEnCase6)
	got := decodeHeaderText(text)

	v, ok := got.Get("c")
	require.True(t, ok)
	assert.Equal(t, "case-42", v)
	v, ok = got.Get("n")
	require.True(t, ok)
	assert.Equal(t, "evidence-42", v)
}

func TestHeaderSectionUTF16LERoundTrip(t *testing.T) {
	s := NewStore()
	s.Set("c", "case-1")
	s.Set("e", "jane examiner")

	codec := NewDeflateCodec()
	payload, err := encodeHeaderSection(s, FormatEnCase6, encodingUTF16LE, codec)
	require.NoError(t, err)

	got, err := decodeHeaderSection(payload, codec, 4096)
	require.NoError(t, err)
	v, ok := got.Get("c")
	require.True(t, ok)
	assert.Equal(t, "case-1", v)
	v, ok = got.Get("e")
	require.True(t, ok)
	assert.Equal(t, "jane examiner", v)
}

func TestHeaderSectionUTF8RoundTrip(t *testing.T) {
	s := NewStore()
	s.Set("c", "xheader-case")

	codec := NewDeflateCodec()
	payload, err := encodeHeaderSection(s, FormatEWFX, encodingUTF8, codec)
	require.NoError(t, err)

	got, err := decodeHeaderSection(payload, codec, 4096)
	require.NoError(t, err)
	v, ok := got.Get("c")
	require.True(t, ok)
	assert.Equal(t, "xheader-case", v)
}

func TestMergeHeaderStoresPriority(t *testing.T) {
	header := NewStore()
	header.Set("c", "from-header")
	header.Set("n", "only-in-header")

	header2 := NewStore()
	header2.Set("c", "from-header2")

	xheader := NewStore()
	xheader.Set("c", "from-xheader")

	merged := mergeHeaderStores(header, header2, xheader)
	v, ok := merged.Get("c")
	require.True(t, ok)
	assert.Equal(t, "from-xheader", v, "xheader takes priority over header2 and header")

	v, ok = merged.Get("n")
	require.True(t, ok)
	assert.Equal(t, "only-in-header", v)
}

func TestMergeHeaderStoresHandlesNils(t *testing.T) {
	header := NewStore()
	header.Set("c", "solo")

	merged := mergeHeaderStores(header, nil, nil)
	v, ok := merged.Get("c")
	require.True(t, ok)
	assert.Equal(t, "solo", v)
}
