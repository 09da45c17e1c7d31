package ewf

import (
	"github.com/pierrec/lz4/v4"

	"github.com/dnpa/goewf/errs"
)

// LZ4Codec is an experimental alternate chunk codec, selected via
// WithExperimentalCodec, which does not check the image's Format. Base
// EWF/EnCase/S01/L01 flavors hard-require DEFLATE (spec §4.1) and a reader
// that doesn't know this module's extension would silently misinterpret
// LZ4 output as raw DEFLATE.
// Grounded on arloliu-mebo's go.mod, which pulls in pierrec/lz4/v4 alongside
// klauspost/compress for its own block-compression path.
type LZ4Codec struct{}

// NewLZ4Codec returns a ready-to-use experimental Codec.
func NewLZ4Codec() *LZ4Codec { return &LZ4Codec{} }

func (c *LZ4Codec) Compress(raw []byte, level CompressionLevel) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(raw)))
	var compressor lz4.Compressor
	n, err := compressor.CompressBlock(raw, dst)
	if err != nil {
		return nil, errs.New(errs.KindCorrupt, "LZ4Codec.Compress", err)
	}
	if n == 0 || n >= len(raw) {
		return nil, errNotCompressed
	}
	return dst[:n], nil
}

func (c *LZ4Codec) Decompress(compressed []byte, sizeHint int) ([]byte, error) {
	dst := make([]byte, sizeHint)
	n, err := lz4.UncompressBlock(compressed, dst)
	if err != nil {
		return nil, errs.New(errs.KindCorrupt, "LZ4Codec.Decompress", err)
	}
	return dst[:n], nil
}
