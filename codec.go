package ewf

import (
	"bytes"
	"io"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zlib"
	perrors "github.com/pkg/errors"

	"github.com/dnpa/goewf/errs"
)

// Codec compresses and decompresses chunk payloads, per spec §4.1's
// caller-supplied compress/decompress contract. Abstracted out the way
// spec.md §1 scopes DEFLATE as an external collaborator; the DeflateCodec
// below is the one concrete implementation this module ships.
type Codec interface {
	Compress(raw []byte, level CompressionLevel) (compressed []byte, err error)
	Decompress(compressed []byte, sizeHint int) (raw []byte, err error)
}

// ErrBufferTooSmall is the retry signal spec §4.1 names: "the decompress
// caller grows the destination and retries." Go's zlib reader never needs
// a pre-sized destination, so this module's Decompress never returns it,
// but the sentinel is kept for callers written against the documented
// contract (e.g. a future Codec backed by a fixed-capacity C decompressor).
var ErrBufferTooSmall = perrors.New("decompress: destination buffer too small")

// DeflateCodec wraps klauspost/compress's zlib implementation — chosen over
// stdlib compress/zlib (which the teacher used directly in ewf.go/ParseTable)
// per SPEC_FULL.md's DOMAIN STACK table, for its faster deflate encoder at
// equivalent output. Uniform blocks are compressed once at BestSpeed and
// the result is kept in the zero-block cache below; later hits return a
// copy of the cached bytes.
type DeflateCodec struct {
	mu         sync.Mutex
	zeroBlocks map[uint64][]byte // keyed by (size, xxhash of all-zero run) -> compressed form
}

// NewDeflateCodec returns a ready-to-use Codec.
func NewDeflateCodec() *DeflateCodec {
	return &DeflateCodec{zeroBlocks: make(map[uint64][]byte)}
}

func zlibLevel(l CompressionLevel) int {
	switch l {
	case CompressionBest:
		return zlib.BestCompression
	case CompressionFast:
		return zlib.BestSpeed
	default:
		return zlib.NoCompression
	}
}

// isEmptyBlock reports whether every byte in buf is identical — spec §4.1
// step 1, "classify the buffer as an empty block, very cheaply".
func isEmptyBlock(buf []byte) bool {
	if len(buf) == 0 {
		return true
	}
	first := buf[0]
	for _, b := range buf[1:] {
		if b != first {
			return false
		}
	}
	return true
}

// zeroBlockKey hashes (length, fill byte) with xxhash — not the buffer
// contents chunk-by-chunk, since an empty block is already known uniform by
// the time this is called; the cache only ever needs to distinguish
// (size, fill-byte) pairs, which xxhash's Sum64 gives us cheaply and
// collision-resistant enough for a pure performance cache (a false cache
// hit just returns a correctly-sized DEFLATE stream for the wrong fill byte,
// which isEmptyBlock already ruled out upstream).
func zeroBlockKey(size int, fill byte) uint64 {
	var b [9]byte
	b[0] = fill
	putUvarint(b[1:], uint64(size))
	return xxhash.Sum64(b[:])
}

func putUvarint(buf []byte, v uint64) {
	for i := range buf {
		buf[i] = byte(v >> (8 * i))
	}
}

// Compress implements spec §4.1's codec pipeline: force-compress empty
// blocks through the zero-block cache, otherwise DEFLATE and keep the
// compressed form only if it is smaller than raw.
func (c *DeflateCodec) Compress(raw []byte, level CompressionLevel) ([]byte, error) {
	if isEmptyBlock(raw) {
		key := zeroBlockKey(len(raw), raw[0])
		c.mu.Lock()
		cached, ok := c.zeroBlocks[key]
		c.mu.Unlock()
		if ok {
			out := make([]byte, len(cached))
			copy(out, cached)
			return out, nil
		}
		compressed, err := deflate(raw, zlibLevel(CompressionFast))
		if err != nil {
			return nil, errs.New(errs.KindCorrupt, "DeflateCodec.Compress", err)
		}
		c.mu.Lock()
		c.zeroBlocks[key] = compressed
		c.mu.Unlock()
		return compressed, nil
	}
	if level == CompressionNone {
		return nil, errNotCompressed
	}
	compressed, err := deflate(raw, zlibLevel(level))
	if err != nil {
		return nil, errs.New(errs.KindCorrupt, "DeflateCodec.Compress", err)
	}
	if len(compressed) >= len(raw) {
		return nil, errNotCompressed
	}
	return compressed, nil
}

// errNotCompressed signals "keep raw", not a failure — callers in
// writer.go treat it as policy, not an error to surface.
var errNotCompressed = perrors.New("compressed size not smaller than raw")

func deflate(raw []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress inflates a DEFLATE-compressed chunk. sizeHint pre-sizes the
// destination slice; Go's zlib reader grows on demand so BufferTooSmall
// never actually occurs here (see ErrBufferTooSmall doc comment).
func (c *DeflateCodec) Decompress(compressed []byte, sizeHint int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, errs.New(errs.KindCorrupt, "DeflateCodec.Decompress", err)
	}
	defer r.Close()
	out := make([]byte, 0, sizeHint)
	buf := make([]byte, 32*1024)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if rerr != nil {
			if rerr == io.EOF {
				break
			}
			return nil, errs.New(errs.KindCorrupt, "DeflateCodec.Decompress", rerr)
		}
	}
	return out, nil
}
