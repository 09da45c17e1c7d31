package ewf

import (
	"bytes"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/dnpa/goewf/errs"
)

// Store is the ordered key/value metadata store spec §1 scopes out
// as "a key/value store with one serializer per format version" and
// SPEC_FULL.md §5 supplements from original_source/libewf/libewf_values_table.c
// (reimplementing the teacher's partial 11-field HeaderSectionString in
// ewf.go/internal/constants.go against the fuller L3_*/L8_*/L14_* field sets
// that file's EnCase4-vs-5-7 layout carries).
type Store struct {
	keys   []string
	values map[string]string
}

// NewStore returns an empty, order-preserving key/value store.
func NewStore() *Store {
	return &Store{values: make(map[string]string)}
}

// Set inserts or updates key, preserving first-insertion order.
func (s *Store) Set(key, value string) {
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

// Get returns key's value and whether it was present.
func (s *Store) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Keys returns the store's keys in insertion order.
func (s *Store) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// headerFieldSet names the columns this format's header record carries, in
// on-disk order. Grounded on _examples/laenix-ewfgo/internal/constants.go's
// L3_* (case/evidence/description/examiner/notes/version/platform/date/
// system-date/password) and L8_*/L14_* (adds srce/sub device lines for
// EnCase5+) field lists, themselves grounded on libewf_header_sections.c.
func headerFieldSet(format Format) []string {
	base := []string{"c", "n", "a", "e", "t", "av", "ov", "m", "u", "p"}
	switch format {
	case FormatEnCase5, FormatEnCase6, FormatLinen5, FormatLinen6, FormatEWFX:
		return append(base, "dc") // compression hint column EnCase5+ adds
	default:
		return base
	}
}

const headerCategoryLine = "main"
const headerVersionLine = "1"

// encodeHeaderText renders the store into the tab-separated EWF header
// wire text (version line, category line, column header line, value line,
// trailing blank line), matching the per-format field set from
// headerFieldSet.
func encodeHeaderText(s *Store, format Format) string {
	fields := headerFieldSet(format)
	var b strings.Builder
	b.WriteString(headerVersionLine)
	b.WriteByte('\n')
	b.WriteString(headerCategoryLine)
	b.WriteByte('\n')
	b.WriteString(strings.Join(fields, "\t"))
	b.WriteByte('\n')
	values := make([]string, len(fields))
	for i, f := range fields {
		v, _ := s.Get(f)
		values[i] = v
	}
	b.WriteString(strings.Join(values, "\t"))
	b.WriteString("\n\n")
	return b.String()
}

// decodeHeaderText parses the wire text back into a Store. Unknown extra
// columns are kept under their column name so a round-trip never silently
// drops data, matching the reader tolerance spec §7 asks for elsewhere
// ("unknown types are skipped with a warning, not escalated").
func decodeHeaderText(text string) *Store {
	s := NewStore()
	lines := strings.Split(text, "\n")
	if len(lines) < 4 {
		return s
	}
	cols := strings.Split(lines[2], "\t")
	vals := strings.Split(lines[3], "\t")
	for i, c := range cols {
		if i < len(vals) {
			s.Set(c, vals[i])
		}
	}
	return s
}

// encodeHeaderSection compresses the header text with DEFLATE and, for
// UTF-16LE-encoded flavors (header/header2, every format but EWFX's
// xheader), prefixes a 2-byte little-endian BOM, per spec §4.3's
// header/header2/xheader table and the teacher's ParseHeader BOM handling
// in internal/ewf.go.
func encodeHeaderSection(s *Store, format Format, encoding textEncoding, codec Codec) ([]byte, error) {
	text := encodeHeaderText(s, format)
	var payload []byte
	switch encoding {
	case encodingUTF8:
		payload = []byte(text)
	default:
		utf16le := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
		encoded, _, err := transform.Bytes(utf16le.NewEncoder(), []byte(text))
		if err != nil {
			return nil, errs.New(errs.KindCorrupt, "encodeHeaderSection", err)
		}
		payload = encoded
	}
	compressed, err := codec.Compress(payload, CompressionBest)
	if err != nil && err != errNotCompressed {
		return nil, errs.New(errs.KindCorrupt, "encodeHeaderSection", err)
	}
	if err == errNotCompressed {
		compressed = payload
	}
	return compressed, nil
}

// decodeHeaderSection decompresses a header/header2/xheader payload and
// UTF-16-or-UTF-8-decodes it (BOM-sniffed the way internal/ewf.go's
// ParseHeader inspects the first two decompressed bytes to pick
// unicode.BigEndian vs unicode.LittleEndian before handing off to
// golang.org/x/text/transform).
func decodeHeaderSection(payload []byte, codec Codec, sizeHint int) (*Store, error) {
	raw, err := codec.Decompress(payload, sizeHint)
	if err != nil {
		return nil, err
	}
	text, err := decodeHeaderBytes(raw)
	if err != nil {
		return nil, errs.New(errs.KindCorrupt, "decodeHeaderSection", err)
	}
	return decodeHeaderText(text), nil
}

func decodeHeaderBytes(raw []byte) (string, error) {
	if len(raw) >= 2 && raw[0] == 0xFF && raw[1] == 0xFE {
		dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		out, _, err := transform.Bytes(dec, raw)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
	if len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF {
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		out, _, err := transform.Bytes(dec, raw)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
	return string(bytes.TrimRight(raw, "\x00")), nil
}

// mergeHeaderStores combines multiple parsed header-family sections the
// way spec §4.3 mandates: "Readers accept any subset, preferring xheader >
// header2 > header when multiple are present." Earlier (lower-priority)
// stores fill in any key a higher-priority store is missing.
func mergeHeaderStores(header, header2, xheader *Store) *Store {
	result := NewStore()
	for _, s := range []*Store{header, header2, xheader} {
		if s == nil {
			continue
		}
		for _, k := range s.Keys() {
			v, _ := s.Get(k)
			result.Set(k, v)
		}
	}
	return result
}
