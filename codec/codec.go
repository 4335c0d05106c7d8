// Package codec wraps zstandard compression for the text store: plain
// frame encode/decode, dictionary-seeded encode/decode, and dictionary
// training from sample corpora.
package codec

import (
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// Shared contexts for dictionary-less operation. Encoder and Decoder are
// safe for concurrent EncodeAll / DecodeAll use.
var (
	plainEnc *zstd.Encoder
	plainDec *zstd.Decoder
)

func init() {
	var err error
	// Zero frames so the empty text still encodes to a decodable frame.
	if plainEnc, err = zstd.NewWriter(nil, zstd.WithZeroFrames(true)); err != nil {
		panic(err) // Only fails on invalid options.
	}
	if plainDec, err = zstd.NewReader(nil); err != nil {
		panic(err)
	}
}

// Compress encodes |src| as a single zstd frame without a dictionary.
func Compress(src []byte) []byte {
	return plainEnc.EncodeAll(src, nil)
}

// Decompress decodes a zstd frame produced without a dictionary.
func Decompress(src []byte) ([]byte, error) {
	return plainDec.DecodeAll(src, nil)
}

// Dictionary is a trained zstd dictionary together with ready-to-use
// compression and decompression contexts seeded with it. Building the
// contexts once amortizes dictionary table construction across records.
type Dictionary struct {
	raw []byte
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewDictionary builds contexts around serialized dictionary bytes, as
// produced by Train or by another zstd implementation.
func NewDictionary(raw []byte) (*Dictionary, error) {
	var enc, err = zstd.NewWriter(nil,
		zstd.WithEncoderDict(raw),
		zstd.WithEncoderLevel(zstd.SpeedBetterCompression),
		zstd.WithZeroFrames(true))
	if err != nil {
		return nil, errors.WithMessage(err, "building dictionary encoder")
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderDicts(raw))
	if err != nil {
		return nil, errors.WithMessage(err, "building dictionary decoder")
	}
	return &Dictionary{raw: raw, enc: enc, dec: dec}, nil
}

// Bytes returns the serialized dictionary.
func (d *Dictionary) Bytes() []byte { return d.raw }

// Compress encodes |src| with the dictionary. The frame references the
// dictionary ID and requires the same dictionary to decode.
func (d *Dictionary) Compress(src []byte) []byte {
	return d.enc.EncodeAll(src, nil)
}

// Decompress decodes a frame produced with the dictionary.
func (d *Dictionary) Decompress(src []byte) ([]byte, error) {
	return d.dec.DecodeAll(src, nil)
}
