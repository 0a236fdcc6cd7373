// SPDX-License-Identifier: MPL-2.0

package superpack

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"path"
	"path/filepath"
	"strings"
)

const (
	// fileRecordSize is the fixed part of a file table record.
	fileRecordSize = 28

	// StateDir is reserved inside a pack directory for the pack manager's
	// own files. No stored file may live under it.
	StateDir = ".superpack"
)

// ErrTableCorrupt is returned when the metadata block or file table is
// malformed or fails its checksum.
var ErrTableCorrupt = errors.New("corrupt superpack index")

type (
	// PackMeta names a pack and the indices of the packs it depends on.
	PackMeta struct {
		Name         string
		Dependencies []uint32
	}

	// FileEntry describes one stored payload.
	FileEntry struct {
		Index           uint32
		Name            string
		StartPosition   uint64
		CompressedSize  uint32
		OriginalSize    uint32
		CompressedCRC32 uint32
		Compression     CompressionType
		PackIndex       uint32
	}

	// Index is the decoded metadata block and file table.
	Index struct {
		Packs []PackMeta
		Files []FileEntry
	}

	decoder struct {
		buf []byte
		off int
		err error
	}
)

// ParseIndex decodes the concatenated metadata block and file table that
// footer describes.
func ParseIndex(footer Footer, raw []byte) (*Index, error) {
	if uint64(len(raw)) != footer.IndexSize() {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrTableCorrupt, len(raw), footer.IndexSize())
	}
	meta, table := raw[:footer.MetaSize], raw[footer.MetaSize:]
	if got := crc32.ChecksumIEEE(meta); got != footer.MetaCRC32 {
		return nil, fmt.Errorf("%w: metadata checksum %08x, want %08x", ErrTableCorrupt, got, footer.MetaCRC32)
	}
	if got := crc32.ChecksumIEEE(table); got != footer.TableCRC32 {
		return nil, fmt.Errorf("%w: file table checksum %08x, want %08x", ErrTableCorrupt, got, footer.TableCRC32)
	}

	ix := &Index{}
	d := &decoder{buf: meta}
	numPacks := d.u32()
	for i := uint32(0); i < numPacks && d.err == nil; i++ {
		p := PackMeta{Name: d.str()}
		numDeps := d.u32()
		if d.err == nil && uint64(numDeps)*4 > uint64(d.remaining()) {
			d.fail("pack %q declares %d dependencies", p.Name, numDeps)
		}
		for j := uint32(0); j < numDeps && d.err == nil; j++ {
			p.Dependencies = append(p.Dependencies, d.u32())
		}
		ix.Packs = append(ix.Packs, p)
	}
	if d.err != nil {
		return nil, d.err
	}

	d = &decoder{buf: table}
	if uint64(footer.NumFiles)*fileRecordSize > uint64(len(table)) {
		return nil, fmt.Errorf("%w: %d files do not fit a %d byte table", ErrTableCorrupt, footer.NumFiles, len(table))
	}
	ix.Files = make([]FileEntry, footer.NumFiles)
	for i := range ix.Files {
		ix.Files[i] = FileEntry{
			Index:           uint32(i),
			StartPosition:   d.u64(),
			CompressedSize:  d.u32(),
			OriginalSize:    d.u32(),
			CompressedCRC32: d.u32(),
			Compression:     CompressionType(d.u32()),
			PackIndex:       d.u32(),
		}
	}
	for i := range ix.Files {
		ix.Files[i].Name = d.str()
	}
	if d.err != nil {
		return nil, d.err
	}

	if err := ix.Validate(); err != nil {
		return nil, err
	}
	return ix, nil
}

// Validate checks cross references and file names.
func (ix *Index) Validate() error {
	names := make(map[string]struct{}, len(ix.Files))
	packNames := make(map[string]struct{}, len(ix.Packs))
	for i, p := range ix.Packs {
		if p.Name == "" {
			return fmt.Errorf("%w: pack %d has no name", ErrTableCorrupt, i)
		}
		if _, dup := packNames[p.Name]; dup {
			return fmt.Errorf("%w: duplicate pack %q", ErrTableCorrupt, p.Name)
		}
		packNames[p.Name] = struct{}{}
		for _, dep := range p.Dependencies {
			if int(dep) >= len(ix.Packs) {
				return fmt.Errorf("%w: pack %q depends on missing pack %d", ErrTableCorrupt, p.Name, dep)
			}
		}
	}
	for _, f := range ix.Files {
		if err := ValidateFileName(f.Name); err != nil {
			return fmt.Errorf("%w: %w", ErrTableCorrupt, err)
		}
		if _, dup := names[f.Name]; dup {
			return fmt.Errorf("%w: duplicate file %q", ErrTableCorrupt, f.Name)
		}
		names[f.Name] = struct{}{}
		if int(f.PackIndex) >= len(ix.Packs) {
			return fmt.Errorf("%w: file %q belongs to missing pack %d", ErrTableCorrupt, f.Name, f.PackIndex)
		}
		if err := f.Compression.Validate(); err != nil {
			return fmt.Errorf("%w: file %q: %w", ErrTableCorrupt, f.Name, err)
		}
	}
	return nil
}

// ValidateFileName rejects names that would escape the local pack directory
// or land in StateDir.
func ValidateFileName(name string) error {
	if name == "" {
		return errors.New("empty file name")
	}
	if path.Clean(name) != name || !filepath.IsLocal(filepath.FromSlash(name)) {
		return fmt.Errorf("file name %q is not a clean relative path", name)
	}
	if top, _, _ := strings.Cut(name, "/"); strings.EqualFold(top, StateDir) {
		return fmt.Errorf("file name %q is inside the reserved %s directory", name, StateDir)
	}
	return nil
}

func (d *decoder) remaining() int { return len(d.buf) - d.off }

func (d *decoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: "+format, append([]any{ErrTableCorrupt}, args...)...)
	}
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if d.remaining() < n {
		d.fail("truncated at offset %d", d.off)
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) u16() uint16 {
	if b := d.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (d *decoder) u32() uint32 {
	if b := d.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (d *decoder) u64() uint64 {
	if b := d.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (d *decoder) str() string {
	n := d.u16()
	if b := d.take(int(n)); b != nil {
		return string(b)
	}
	return ""
}
