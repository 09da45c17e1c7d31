package ewf

import (
	"encoding/binary"

	"github.com/dnpa/goewf/errs"
)

// tableHeaderSize is the 24-byte table/table2 payload prelude, per spec
// §4.3: "number_of_chunks, padding1, base_offset, padding2, checksum".
const tableHeaderSize = 24

type tableHeader struct {
	numberOfChunks uint32
	baseOffset     uint64
	checksum       uint32
}

func decodeTableHeader(buf []byte) (tableHeader, error) {
	if len(buf) < tableHeaderSize {
		return tableHeader{}, errs.New(errs.KindIO, "decodeTableHeader", errShortRead{want: tableHeaderSize, got: len(buf)})
	}
	return tableHeader{
		numberOfChunks: binary.LittleEndian.Uint32(buf[0:4]),
		baseOffset:     binary.LittleEndian.Uint64(buf[8:16]),
		checksum:       binary.LittleEndian.Uint32(buf[20:24]),
	}, nil
}

func (h tableHeader) encode() []byte {
	buf := make([]byte, tableHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.numberOfChunks)
	binary.LittleEndian.PutUint64(buf[8:16], h.baseOffset)
	sum := adlerChecksum(buf[:20])
	binary.LittleEndian.PutUint32(buf[20:24], sum)
	return buf
}

// decodeTablePayload parses a table/table2 section's payload (after the
// enclosing 76-byte SectionHeader, trailing checksum included), per
// spec §4.3: 24-byte header + N*4-byte offsets [+ 4-byte trailing checksum
// for every format except EWF-S01, per Format.tableHasTrailingChecksum].
func decodeTablePayload(payload []byte, format Format) (tableHeader, []rawTableEntry, error) {
	hdr, err := decodeTableHeader(payload)
	if err != nil {
		return tableHeader{}, nil, err
	}
	if !verifySectionHeaderLikeChecksum(payload[:tableHeaderSize]) {
		return hdr, nil, errs.New(errs.KindChecksumMismatch, "decodeTablePayload", errs.Checksum("decodeTablePayload", "section", "table header", hdr.checksum, adlerChecksum(payload[:20])))
	}
	arrayLen := int(hdr.numberOfChunks) * 4
	need := tableHeaderSize + arrayLen
	if format.tableHasTrailingChecksum() {
		need += 4
	}
	if len(payload) < need {
		return hdr, nil, errs.New(errs.KindIO, "decodeTablePayload", errShortRead{want: need, got: len(payload)})
	}
	entries := make([]rawTableEntry, hdr.numberOfChunks)
	off := tableHeaderSize
	for i := range entries {
		entries[i] = rawTableEntry{value: binary.LittleEndian.Uint32(payload[off : off+4])}
		off += 4
	}
	if format.tableHasTrailingChecksum() {
		want := binary.LittleEndian.Uint32(payload[off : off+4])
		got := adlerChecksum(payload[tableHeaderSize:off])
		if want != got {
			return hdr, entries, errs.Checksum("decodeTablePayload", "section", "table offset array", want, got)
		}
	}
	return hdr, entries, nil
}

// verifySectionHeaderLikeChecksum checks the table header's own embedded
// checksum (bytes 0:20 checksummed into bytes 20:24), distinct from the
// enclosing SectionHeader's checksum over its own 72 bytes.
func verifySectionHeaderLikeChecksum(tableHeaderBytes []byte) bool {
	if len(tableHeaderBytes) < tableHeaderSize {
		return false
	}
	want := binary.LittleEndian.Uint32(tableHeaderBytes[20:24])
	got := adlerChecksum(tableHeaderBytes[:20])
	return want == got
}

// encodeTablePayload serializes base offset + entries into a table/table2
// payload, per the writer's contract in spec §4.6.
func encodeTablePayload(baseOffset uint64, entries []rawTableEntry, format Format) []byte {
	hdr := tableHeader{numberOfChunks: uint32(len(entries)), baseOffset: baseOffset}
	buf := hdr.encode()
	for _, e := range entries {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], e.value)
		buf = append(buf, b[:]...)
	}
	if format.tableHasTrailingChecksum() {
		sum := adlerChecksum(buf[tableHeaderSize:])
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], sum)
		buf = append(buf, b[:]...)
	}
	return buf
}

// packTableEntry builds the wire 4-byte value for one chunk: 31-bit offset
// relative to base, MSB = compressed flag, per spec §4.3's
// "Chunk-offset encoding".
func packTableEntry(offsetFromBase uint64, compressed bool) rawTableEntry {
	v := uint32(offsetFromBase & 0x7FFFFFFF)
	if compressed {
		v |= 0x80000000
	}
	return rawTableEntry{value: v}
}
