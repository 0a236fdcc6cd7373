// SPDX-License-Identifier: MPL-2.0

package superpack

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
)

var (
	// ErrDuplicatePack is returned when a pack name is added twice.
	ErrDuplicatePack = errors.New("duplicate pack")
	// ErrDuplicateFile is returned when a file name is added twice.
	ErrDuplicateFile = errors.New("duplicate file")
	// ErrUnknownDependency is returned when a pack depends on a pack that was
	// not added before it.
	ErrUnknownDependency = errors.New("unknown dependency")
)

type (
	// Builder assembles a superpack in memory. Packs must be added before
	// the packs that depend on them, so a built superpack never contains a
	// dependency cycle.
	Builder struct {
		packs   []PackMeta
		packIdx map[string]uint32
		files   []builtFile
		names   map[string]struct{}
	}

	builtFile struct {
		entry   FileEntry
		payload []byte
	}
)

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		packIdx: make(map[string]uint32),
		names:   make(map[string]struct{}),
	}
}

// AddPack registers a pack and its direct dependencies.
func (b *Builder) AddPack(name string, deps ...string) error {
	if name == "" || len(name) > math.MaxUint16 {
		return fmt.Errorf("invalid pack name %q", name)
	}
	if _, ok := b.packIdx[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicatePack, name)
	}
	meta := PackMeta{Name: name}
	for _, d := range deps {
		idx, ok := b.packIdx[d]
		if !ok {
			return fmt.Errorf("%w: pack %q depends on %q", ErrUnknownDependency, name, d)
		}
		meta.Dependencies = append(meta.Dependencies, idx)
	}
	b.packIdx[name] = uint32(len(b.packs))
	b.packs = append(b.packs, meta)
	return nil
}

// AddFile compresses data with the requested codec and adds it to pack.
// It returns the entry as it will appear in the file table, minus the start
// position which is assigned when the superpack is written.
func (b *Builder) AddFile(pack, name string, data []byte, codec CompressionType) (FileEntry, error) {
	idx, ok := b.packIdx[pack]
	if !ok {
		return FileEntry{}, fmt.Errorf("file %q: unknown pack %q", name, pack)
	}
	if err := ValidateFileName(name); err != nil {
		return FileEntry{}, err
	}
	if len(name) > math.MaxUint16 {
		return FileEntry{}, fmt.Errorf("file name %q is too long", name)
	}
	if _, dup := b.names[name]; dup {
		return FileEntry{}, fmt.Errorf("%w: %q", ErrDuplicateFile, name)
	}
	if uint64(len(data)) > math.MaxUint32 {
		return FileEntry{}, fmt.Errorf("file %q is larger than 4 GiB", name)
	}

	payload, used, err := Compress(codec, data)
	if err != nil {
		return FileEntry{}, fmt.Errorf("file %q: %w", name, err)
	}
	entry := FileEntry{
		Index:           uint32(len(b.files)),
		Name:            name,
		CompressedSize:  uint32(len(payload)),
		OriginalSize:    uint32(len(data)),
		CompressedCRC32: crc32.ChecksumIEEE(payload),
		Compression:     used,
		PackIndex:       idx,
	}
	b.names[name] = struct{}{}
	b.files = append(b.files, builtFile{entry: entry, payload: payload})
	return entry, nil
}

// Index returns the index the builder would write.
func (b *Builder) Index() *Index {
	ix := &Index{Packs: make([]PackMeta, len(b.packs)), Files: make([]FileEntry, len(b.files))}
	copy(ix.Packs, b.packs)
	var pos uint64
	for i, f := range b.files {
		ix.Files[i] = f.entry
		ix.Files[i].StartPosition = pos
		pos += uint64(f.entry.CompressedSize)
	}
	return ix
}

// WriteTo writes the complete superpack to w.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	ix := b.Index()
	meta := encodeMeta(ix.Packs)
	table := encodeTable(ix.Files)
	footer := Footer{
		TableSize:  uint32(len(table)),
		TableCRC32: crc32.ChecksumIEEE(table),
		NumFiles:   uint32(len(ix.Files)),
		MetaSize:   uint32(len(meta)),
		MetaCRC32:  crc32.ChecksumIEEE(meta),
	}

	bw := bufio.NewWriter(w)
	var n int64
	write := func(p []byte) error {
		m, err := bw.Write(p)
		n += int64(m)
		return err
	}
	for _, f := range b.files {
		if err := write(f.payload); err != nil {
			return n, err
		}
	}
	for _, p := range [][]byte{meta, table, footer.Bytes()} {
		if err := write(p); err != nil {
			return n, err
		}
	}
	return n, bw.Flush()
}

func encodeMeta(packs []PackMeta) []byte {
	b := binary.LittleEndian.AppendUint32(nil, uint32(len(packs)))
	for _, p := range packs {
		b = appendString(b, p.Name)
		b = binary.LittleEndian.AppendUint32(b, uint32(len(p.Dependencies)))
		for _, d := range p.Dependencies {
			b = binary.LittleEndian.AppendUint32(b, d)
		}
	}
	return b
}

func encodeTable(files []FileEntry) []byte {
	b := make([]byte, 0, len(files)*fileRecordSize)
	for _, f := range files {
		b = binary.LittleEndian.AppendUint64(b, f.StartPosition)
		b = binary.LittleEndian.AppendUint32(b, f.CompressedSize)
		b = binary.LittleEndian.AppendUint32(b, f.OriginalSize)
		b = binary.LittleEndian.AppendUint32(b, f.CompressedCRC32)
		b = binary.LittleEndian.AppendUint32(b, uint32(f.Compression))
		b = binary.LittleEndian.AppendUint32(b, f.PackIndex)
	}
	for _, f := range files {
		b = appendString(b, f.Name)
	}
	return b
}

func appendString(b []byte, s string) []byte {
	b = binary.LittleEndian.AppendUint16(b, uint16(len(s)))
	return append(b, s...)
}
