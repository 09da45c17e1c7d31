package ewf

import (
	"encoding/binary"

	"github.com/dnpa/goewf/errs"
)

// The sectors section (spec §3) is opaque to the reader: "a run of chunks
// concatenated, each followed by its checksum". It's skipped wholesale by
// seeking past its payload (spec §4.3: "Chunks inside are found only via
// the offset table") — this file only supplies the per-chunk wire codec the
// write engine uses while filling one, and the read engine uses once the
// offset table has located a chunk inside it.

// encodeStoredChunk produces the bytes written into a sectors/table-indexed
// chunk slot: DEFLATE output as-is (its own checksum is the trailing bytes,
// spec §3) or raw bytes followed by a 4-byte Adler checksum.
func encodeStoredChunk(raw []byte, codec Codec, level CompressionLevel) (stored []byte, compressed bool, err error) {
	compressedBytes, cerr := codec.Compress(raw, level)
	if cerr == nil {
		return compressedBytes, true, nil
	}
	if cerr != errNotCompressed {
		return nil, false, errs.New(errs.KindCorrupt, "encodeStoredChunk", cerr)
	}
	out := make([]byte, len(raw)+4)
	copy(out, raw)
	binary.LittleEndian.PutUint32(out[len(raw):], adlerChecksum(raw))
	return out, false, nil
}

// decodeStoredChunk reverses encodeStoredChunk given the entry's recorded
// compressed flag and size, verifying the trailing checksum for the
// uncompressed case (spec §7: "ChecksumMismatch... for chunks -> added to
// the handle's CRC-error sector list").
func decodeStoredChunk(stored []byte, compressed bool, codec Codec, chunkSize int) (raw []byte, checksumOK bool, err error) {
	if compressed {
		raw, err = codec.Decompress(stored, chunkSize)
		if err != nil {
			return nil, false, err
		}
		return raw, true, nil
	}
	if len(stored) < 4 {
		return nil, false, errs.New(errs.KindCorrupt, "decodeStoredChunk", errShortRead{want: 4, got: len(stored)})
	}
	raw = stored[:len(stored)-4]
	want := binary.LittleEndian.Uint32(stored[len(stored)-4:])
	got := adlerChecksum(raw)
	return raw, want == got, nil
}
