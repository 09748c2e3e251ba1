package blobstore

import (
	"github.com/klauspost/compress/zstd"
	"github.com/prism-io/prism/pkg/prismerr"
)

// compress zstd-compresses data at level, returning the compressed bytes.
func compress(data []byte, level int) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstdLevel(level)))
	if err != nil {
		return nil, prismerr.Wrap(prismerr.KindFatal, "compressor_init_failed", "create zstd encoder", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

// decompress reverses compress.
func decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, prismerr.Wrap(prismerr.KindFatal, "decompressor_init_failed", "create zstd decoder", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, prismerr.Wrap(prismerr.KindConsistency, "decompress_failed", "decompress blob content", err)
	}
	return out, nil
}

// zstdLevel maps a 1-22 compression level knob onto zstd's coarse
// EncoderLevel buckets.
func zstdLevel(level int) zstd.EncoderLevel {
	switch {
	case level <= 1:
		return zstd.SpeedFastest
	case level <= 6:
		return zstd.SpeedDefault
	case level <= 12:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}
