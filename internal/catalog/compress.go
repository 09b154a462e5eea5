package catalog

import (
	"bytes"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
)

// compressVariants produces the pre-computed deflate/brotli/zstd forms of
// buf described in spec.md §4.3. A variant is dropped entirely when it
// does not come out strictly smaller than the uncompressed buffer — for
// a catalog small enough that compression overhead outweighs the win,
// identity is the better answer and content negotiation should fall back
// to it.
func compressVariants(buf []byte) []CompressedVariant {
	var variants []CompressedVariant

	if deflated, ok := deflateCompress(buf); ok {
		variants = append(variants, CompressedVariant{Codec: "deflate", Data: deflated})
	}
	if brotlied, ok := brotliCompress(buf); ok {
		variants = append(variants, CompressedVariant{Codec: "br", Data: brotlied})
	}
	if zstded, ok := zstdCompress(buf); ok {
		variants = append(variants, CompressedVariant{Codec: "zstd", Data: zstded})
	}

	return variants
}

func deflateCompress(buf []byte) ([]byte, bool) {
	var out bytes.Buffer
	w, err := flate.NewWriter(&out, flate.BestCompression)
	if err != nil {
		return nil, false
	}
	if _, err := w.Write(buf); err != nil {
		return nil, false
	}
	if err := w.Close(); err != nil {
		return nil, false
	}
	return smallerOrDrop(out.Bytes(), buf)
}

func brotliCompress(buf []byte) ([]byte, bool) {
	var out bytes.Buffer
	w := brotli.NewWriterOptions(&out, brotli.WriterOptions{
		Quality: brotli.BestCompression,
		LGWin:   24, // max window
	})
	if _, err := w.Write(buf); err != nil {
		return nil, false
	}
	if err := w.Close(); err != nil {
		return nil, false
	}
	return smallerOrDrop(out.Bytes(), buf)
}

func zstdCompress(buf []byte) ([]byte, bool) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return nil, false
	}
	defer enc.Close()
	compressed := enc.EncodeAll(buf, nil)
	return smallerOrDrop(compressed, buf)
}

func smallerOrDrop(compressed, original []byte) ([]byte, bool) {
	if len(compressed) < len(original) {
		return compressed, true
	}
	return nil, false
}
