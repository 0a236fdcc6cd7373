// SPDX-License-Identifier: MPL-2.0

package superpack

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/pierrec/lz4/v4"
)

const (
	// CompressionNone stores the payload as-is.
	CompressionNone CompressionType = iota
	// CompressionLz4 is a raw LZ4 block.
	CompressionLz4
	// CompressionLz4HC is a raw LZ4 block produced by the high-compression encoder.
	CompressionLz4HC
	// CompressionRFC1951 is a raw DEFLATE stream without zlib or gzip framing.
	CompressionRFC1951
)

// ErrUnsupportedCompression is the sentinel for compression codes this
// package does not know.
var ErrUnsupportedCompression = errors.New("unsupported compression type")

type (
	// CompressionType identifies the codec of a stored payload.
	CompressionType uint32

	// UnsupportedCompressionError reports an unknown compression code or name.
	UnsupportedCompressionError struct {
		Value string
	}
)

func (e *UnsupportedCompressionError) Error() string {
	return fmt.Sprintf("unsupported compression type %q", e.Value)
}

func (e *UnsupportedCompressionError) Unwrap() error { return ErrUnsupportedCompression }

func (t CompressionType) String() string {
	switch t {
	case CompressionNone:
		return "none"
	case CompressionLz4:
		return "lz4"
	case CompressionLz4HC:
		return "lz4hc"
	case CompressionRFC1951:
		return "rfc1951"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(t))
	}
}

// Validate returns an error when t is not a known codec.
func (t CompressionType) Validate() error {
	switch t {
	case CompressionNone, CompressionLz4, CompressionLz4HC, CompressionRFC1951:
		return nil
	default:
		return &UnsupportedCompressionError{Value: t.String()}
	}
}

// ParseCompressionType maps a codec name to its type. The empty string means none.
func ParseCompressionType(s string) (CompressionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLz4, nil
	case "lz4hc":
		return CompressionLz4HC, nil
	case "rfc1951", "deflate":
		return CompressionRFC1951, nil
	default:
		return CompressionNone, &UnsupportedCompressionError{Value: s}
	}
}

// Compress encodes data with the requested codec. When the codec cannot make
// the payload smaller the data is returned unchanged and the reported type
// is CompressionNone.
func Compress(t CompressionType, data []byte) ([]byte, CompressionType, error) {
	if err := t.Validate(); err != nil {
		return nil, CompressionNone, err
	}
	if len(data) == 0 || t == CompressionNone {
		return data, CompressionNone, nil
	}

	var (
		out []byte
		err error
	)
	switch t {
	case CompressionRFC1951:
		out, err = deflate(data)
	case CompressionLz4:
		out, err = lz4Block(data, false)
	case CompressionLz4HC:
		out, err = lz4Block(data, true)
	}
	if err != nil {
		return nil, CompressionNone, fmt.Errorf("compress %s: %w", t, err)
	}
	if out == nil || len(out) >= len(data) {
		return data, CompressionNone, nil
	}
	return out, t, nil
}

// Decompress decodes a payload of the given type into exactly originalSize bytes.
func Decompress(t CompressionType, payload []byte, originalSize uint32) ([]byte, error) {
	switch t {
	case CompressionNone:
		if uint32(len(payload)) != originalSize {
			return nil, fmt.Errorf("stored payload is %d bytes, expected %d", len(payload), originalSize)
		}
		return bytes.Clone(payload), nil
	case CompressionRFC1951:
		r := flate.NewReader(bytes.NewReader(payload))
		defer r.Close()
		out := make([]byte, originalSize)
		if _, err := io.ReadFull(r, out); err != nil {
			return nil, fmt.Errorf("inflate: %w", err)
		}
		return out, nil
	case CompressionLz4, CompressionLz4HC:
		out := make([]byte, originalSize)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decode: %w", err)
		}
		if uint32(n) != originalSize {
			return nil, fmt.Errorf("lz4 decode produced %d bytes, expected %d", n, originalSize)
		}
		return out, nil
	default:
		return nil, &UnsupportedCompressionError{Value: t.String()}
	}
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// lz4Block returns nil when the block encoder reports incompressible input.
func lz4Block(data []byte, hc bool) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	var (
		n   int
		err error
	)
	if hc {
		c := lz4.CompressorHC{Level: lz4.Level9}
		n, err = c.CompressBlock(data, dst)
	} else {
		var c lz4.Compressor
		n, err = c.CompressBlock(data, dst)
	}
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return dst[:n], nil
}
