// SPDX-License-Identifier: MPL-2.0

// Package catalog is the immutable, queryable view of a superpack index:
// packs, their dependency graph, and the files each pack owns.
package catalog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/invowk/packfetch/internal/dag"
	"github.com/invowk/packfetch/internal/superpack"

	"golang.org/x/exp/slices"
)

var (
	// ErrUnknownPack is the sentinel for lookups of a pack name the catalog
	// does not contain.
	ErrUnknownPack = errors.New("unknown pack")
	// ErrCyclicDependency is returned when pack dependencies form a cycle.
	ErrCyclicDependency = errors.New("cyclic pack dependency")
)

type (
	// UnknownPackError reports the pack name that was not found.
	UnknownPackError struct {
		Name string
	}

	// Catalog indexes a parsed superpack. It is safe for concurrent reads.
	Catalog struct {
		packs  []packInfo
		byName map[string]int
		files  []superpack.FileEntry
		order  []string
		graph  *dag.Graph
	}

	packInfo struct {
		name       string
		direct     []string
		transitive []string
		files      []uint32
		totalSize  uint64
		hash       uint32
	}
)

func (e *UnknownPackError) Error() string {
	return fmt.Sprintf("unknown pack %q", e.Name)
}

func (e *UnknownPackError) Unwrap() error { return ErrUnknownPack }

// New builds a catalog from an index. A dependency cycle is reported as an
// error wrapping both ErrCyclicDependency and *dag.CycleError.
func New(ix *superpack.Index) (*Catalog, error) {
	if err := ix.Validate(); err != nil {
		return nil, err
	}

	c := &Catalog{
		packs:  make([]packInfo, len(ix.Packs)),
		byName: make(map[string]int, len(ix.Packs)),
		files:  slices.Clone(ix.Files),
		graph:  dag.New(),
	}
	for i, p := range ix.Packs {
		c.packs[i].name = p.Name
		c.byName[p.Name] = i
		c.graph.AddNode(p.Name)
	}
	for i, p := range ix.Packs {
		for _, d := range p.Dependencies {
			dep := ix.Packs[d].Name
			c.packs[i].direct = append(c.packs[i].direct, dep)
			c.graph.AddEdge(dep, p.Name)
		}
	}

	order, err := c.graph.TopologicalSort()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCyclicDependency, err)
	}
	c.order = order

	crcs := make([][]byte, len(c.packs))
	for _, f := range c.files {
		p := &c.packs[f.PackIndex]
		p.files = append(p.files, f.Index)
		p.totalSize += uint64(f.CompressedSize)
		crcs[f.PackIndex] = binary.LittleEndian.AppendUint32(crcs[f.PackIndex], f.CompressedCRC32)
	}
	for i := range c.packs {
		c.packs[i].transitive = c.graph.Ancestors(c.packs[i].name)
		c.packs[i].hash = crc32.ChecksumIEEE(crcs[i])
	}
	return c, nil
}

func (c *Catalog) lookup(name string) (*packInfo, error) {
	i, ok := c.byName[name]
	if !ok {
		return nil, &UnknownPackError{Name: name}
	}
	return &c.packs[i], nil
}

// Has reports whether the catalog contains the named pack.
func (c *Catalog) Has(name string) bool {
	_, ok := c.byName[name]
	return ok
}

// Packs returns every pack name with dependencies before dependents.
func (c *Catalog) Packs() []string {
	return slices.Clone(c.order)
}

// Len returns the number of packs.
func (c *Catalog) Len() int { return len(c.packs) }

// DirectDependencies returns the packs name lists in the superpack metadata.
func (c *Catalog) DirectDependencies(name string) ([]string, error) {
	p, err := c.lookup(name)
	if err != nil {
		return nil, err
	}
	return slices.Clone(p.direct), nil
}

// DependenciesOf returns the transitive dependencies of name, each after its
// own dependencies. The pack itself is not included.
func (c *Catalog) DependenciesOf(name string) ([]string, error) {
	p, err := c.lookup(name)
	if err != nil {
		return nil, err
	}
	return slices.Clone(p.transitive), nil
}

// Dependents returns every pack that transitively depends on name.
func (c *Catalog) Dependents(name string) ([]string, error) {
	if _, err := c.lookup(name); err != nil {
		return nil, err
	}
	return c.graph.Descendants(name), nil
}

// IsAncestor reports whether descendant transitively depends on ancestor.
func (c *Catalog) IsAncestor(ancestor, descendant string) (bool, error) {
	if _, err := c.lookup(ancestor); err != nil {
		return false, err
	}
	if _, err := c.lookup(descendant); err != nil {
		return false, err
	}
	return c.graph.IsAncestor(ancestor, descendant), nil
}

// FilesOf returns the file entries owned by name in file table order.
func (c *Catalog) FilesOf(name string) ([]superpack.FileEntry, error) {
	p, err := c.lookup(name)
	if err != nil {
		return nil, err
	}
	out := make([]superpack.FileEntry, len(p.files))
	for i, idx := range p.files {
		out[i] = c.files[idx]
	}
	return out, nil
}

// File returns the entry at a file table index.
func (c *Catalog) File(index uint32) (superpack.FileEntry, bool) {
	if int(index) >= len(c.files) {
		return superpack.FileEntry{}, false
	}
	return c.files[index], true
}

// Files returns the whole file table.
func (c *Catalog) Files() []superpack.FileEntry {
	return slices.Clone(c.files)
}

// PackOf returns the name of the pack owning a file table index.
func (c *Catalog) PackOf(index uint32) (string, bool) {
	f, ok := c.File(index)
	if !ok {
		return "", false
	}
	return c.packs[f.PackIndex].name, true
}

// TotalSize is the sum of the compressed sizes of the pack's own files.
func (c *Catalog) TotalSize(name string) (uint64, error) {
	p, err := c.lookup(name)
	if err != nil {
		return 0, err
	}
	return p.totalSize, nil
}

// Hash is the CRC32 of the pack's file checksums in table order. It changes
// whenever any payload of the pack changes.
func (c *Catalog) Hash(name string) (uint32, error) {
	p, err := c.lookup(name)
	if err != nil {
		return 0, err
	}
	return p.hash, nil
}
