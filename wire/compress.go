// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"github.com/klauspost/compress/s2"

	"github.com/luxfi/shardbft/errs"
)

// Compress applies s2, a speed-optimized, snappy-compatible block
// compressor from klauspost/compress, to an encoded payload before it
// goes out as an Action.
func Compress(payload []byte) []byte {
	return s2.Encode(nil, payload)
}

// Decompress reverses Compress. Returns a DecompressionFailed error
// on malformed input.
func Decompress(compressed []byte) ([]byte, error) {
	out, err := s2.Decode(nil, compressed)
	if err != nil {
		return nil, errs.Wrap(errs.DecompressionFailed, err)
	}
	return out, nil
}
