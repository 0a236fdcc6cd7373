// SPDX-License-Identifier: MPL-2.0

package superpack

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

const (
	// FooterSize is the size in bytes of the superpack footer.
	FooterSize = 28
	// FooterMarker is "SPAK" read as a little-endian uint32.
	FooterMarker uint32 = 0x4b415053

	// LiteFooterSize is the size in bytes of the footer appended to every
	// finalized local file.
	LiteFooterSize = 20
	// LiteFooterMarker is "LITE" read as a little-endian uint32.
	LiteFooterMarker uint32 = 0x4554494c

	// footerInfoSize is the footer prefix covered by its own checksum.
	footerInfoSize = 20
)

var (
	// ErrBadMarker is returned when a footer does not end with the expected marker.
	ErrBadMarker = errors.New("bad footer marker")
	// ErrFooterCorrupt is returned when a footer is truncated or fails its checksum.
	ErrFooterCorrupt = errors.New("corrupt footer")
)

type (
	// Footer is the fixed trailer of a superpack. It locates and checksums
	// the pack metadata block and the file table that precede it.
	Footer struct {
		TableSize  uint32
		TableCRC32 uint32
		NumFiles   uint32
		MetaSize   uint32
		MetaCRC32  uint32
	}

	// LiteFooter trails every finalized local file. It records enough to
	// re-verify and decode the payload without the superpack file table.
	LiteFooter struct {
		Compression      CompressionType
		CRC32Compressed  uint32
		SizeUncompressed uint32
		SizeCompressed   uint32
	}
)

// IndexSize is the combined size of the metadata block and the file table.
func (f Footer) IndexSize() uint64 {
	return uint64(f.MetaSize) + uint64(f.TableSize)
}

// IndexOffset returns where the metadata block starts inside a superpack of
// totalSize bytes.
func (f Footer) IndexOffset(totalSize uint64) (uint64, error) {
	need := f.IndexSize() + FooterSize
	if totalSize < need {
		return 0, fmt.Errorf("%w: superpack of %d bytes cannot hold an index of %d bytes", ErrFooterCorrupt, totalSize, f.IndexSize())
	}
	return totalSize - need, nil
}

// Bytes encodes the footer, computing its self checksum.
func (f Footer) Bytes() []byte {
	b := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(b[0:], f.TableSize)
	binary.LittleEndian.PutUint32(b[4:], f.TableCRC32)
	binary.LittleEndian.PutUint32(b[8:], f.NumFiles)
	binary.LittleEndian.PutUint32(b[12:], f.MetaSize)
	binary.LittleEndian.PutUint32(b[16:], f.MetaCRC32)
	binary.LittleEndian.PutUint32(b[20:], crc32.ChecksumIEEE(b[:footerInfoSize]))
	binary.LittleEndian.PutUint32(b[24:], FooterMarker)
	return b
}

// ParseFooter decodes and verifies a superpack footer.
func ParseFooter(b []byte) (Footer, error) {
	if len(b) != FooterSize {
		return Footer{}, fmt.Errorf("%w: got %d bytes, want %d", ErrFooterCorrupt, len(b), FooterSize)
	}
	if m := binary.LittleEndian.Uint32(b[24:]); m != FooterMarker {
		return Footer{}, fmt.Errorf("%w: %#08x", ErrBadMarker, m)
	}
	if want, got := binary.LittleEndian.Uint32(b[20:]), crc32.ChecksumIEEE(b[:footerInfoSize]); want != got {
		return Footer{}, fmt.Errorf("%w: info checksum %08x, computed %08x", ErrFooterCorrupt, want, got)
	}
	return Footer{
		TableSize:  binary.LittleEndian.Uint32(b[0:]),
		TableCRC32: binary.LittleEndian.Uint32(b[4:]),
		NumFiles:   binary.LittleEndian.Uint32(b[8:]),
		MetaSize:   binary.LittleEndian.Uint32(b[12:]),
		MetaCRC32:  binary.LittleEndian.Uint32(b[16:]),
	}, nil
}

// Bytes encodes the Lite footer.
func (f LiteFooter) Bytes() []byte {
	b := make([]byte, LiteFooterSize)
	binary.LittleEndian.PutUint32(b[0:], LiteFooterMarker)
	binary.LittleEndian.PutUint32(b[4:], uint32(f.Compression))
	binary.LittleEndian.PutUint32(b[8:], f.CRC32Compressed)
	binary.LittleEndian.PutUint32(b[12:], f.SizeUncompressed)
	binary.LittleEndian.PutUint32(b[16:], f.SizeCompressed)
	return b
}

// Matches reports whether the footer describes the given file table entry.
func (f LiteFooter) Matches(e FileEntry) bool {
	return f.Compression == e.Compression &&
		f.CRC32Compressed == e.CompressedCRC32 &&
		f.SizeUncompressed == e.OriginalSize &&
		f.SizeCompressed == e.CompressedSize
}

// ParseLiteFooter decodes a Lite footer.
func ParseLiteFooter(b []byte) (LiteFooter, error) {
	if len(b) != LiteFooterSize {
		return LiteFooter{}, fmt.Errorf("%w: got %d bytes, want %d", ErrFooterCorrupt, len(b), LiteFooterSize)
	}
	if m := binary.LittleEndian.Uint32(b[0:]); m != LiteFooterMarker {
		return LiteFooter{}, fmt.Errorf("%w: %#08x", ErrBadMarker, m)
	}
	return LiteFooter{
		Compression:      CompressionType(binary.LittleEndian.Uint32(b[4:])),
		CRC32Compressed:  binary.LittleEndian.Uint32(b[8:]),
		SizeUncompressed: binary.LittleEndian.Uint32(b[12:]),
		SizeCompressed:   binary.LittleEndian.Uint32(b[16:]),
	}, nil
}

// ReadLiteFooter reads the Lite footer from the tail of a local file of the
// given size.
func ReadLiteFooter(r io.ReaderAt, size int64) (LiteFooter, error) {
	if size < LiteFooterSize {
		return LiteFooter{}, fmt.Errorf("%w: file of %d bytes has no footer", ErrFooterCorrupt, size)
	}
	b := make([]byte, LiteFooterSize)
	if _, err := r.ReadAt(b, size-LiteFooterSize); err != nil {
		return LiteFooter{}, fmt.Errorf("read footer: %w", err)
	}
	return ParseLiteFooter(b)
}
