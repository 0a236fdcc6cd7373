// SPDX-License-Identifier: MPL-2.0

// Package manifest reads superpack build manifests and assembles superpacks
// from directories of asset files.
//
// A manifest is a TOML document listing packs:
//
//	[[pack]]
//	name = "common"
//	dir = "assets/common"
//	compression = "rfc1951"
//
//	[[pack]]
//	name = "ui"
//	dir = "assets/ui"
//	depends = ["common"]
//	compression = "lz4"
//
// Every regular file under dir becomes a superpack file named
// "<prefix>/<path relative to dir>", where prefix defaults to the pack name.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
	"golang.org/x/exp/slices"

	"github.com/invowk/packfetch/internal/dag"
	"github.com/invowk/packfetch/internal/superpack"
)

// ErrInvalidManifest is wrapped by every validation failure.
var ErrInvalidManifest = errors.New("invalid manifest")

type (
	// Manifest is the parsed build description.
	Manifest struct {
		Packs []Pack `toml:"pack"`

		// baseDir resolves relative pack directories.
		baseDir string
	}

	// Pack describes one pack and where its files come from.
	Pack struct {
		Name        string   `toml:"name"`
		Dir         string   `toml:"dir"`
		Prefix      *string  `toml:"prefix"`
		Depends     []string `toml:"depends"`
		Compression string   `toml:"compression"`
	}

	// Result summarizes a build.
	Result struct {
		Packs     int
		Files     int
		InputSize uint64
		Written   int64
	}

	// BuildOption configures Build.
	BuildOption func(*buildOptions)

	buildOptions struct {
		logger *log.Logger
	}
)

// WithLogger reports every added file at debug level.
func WithLogger(l *log.Logger) BuildOption {
	return func(o *buildOptions) {
		o.logger = l
	}
}

// Load reads and validates a manifest. Relative pack directories resolve
// against the manifest's directory.
func Load(fsys afero.Fs, file string) (*Manifest, error) {
	data, err := afero.ReadFile(fsys, file)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	m.baseDir = filepath.Dir(file)
	return m, nil
}

// Parse decodes and validates manifest content. Unknown keys are rejected.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("%w: line %d column %d: %s", ErrInvalidManifest, row, col, derr.Error())
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks names, codecs and dependency references.
func (m *Manifest) Validate() error {
	if len(m.Packs) == 0 {
		return fmt.Errorf("%w: no packs defined", ErrInvalidManifest)
	}
	var errs []error
	seen := make(map[string]bool, len(m.Packs))
	for i, p := range m.Packs {
		switch {
		case p.Name == "":
			errs = append(errs, fmt.Errorf("pack #%d: name is required", i+1))
			continue
		case seen[p.Name]:
			errs = append(errs, fmt.Errorf("pack %q: defined twice", p.Name))
		}
		seen[p.Name] = true
		if p.Dir == "" {
			errs = append(errs, fmt.Errorf("pack %q: dir is required", p.Name))
		}
		if _, err := superpack.ParseCompressionType(p.Compression); err != nil {
			errs = append(errs, fmt.Errorf("pack %q: %w", p.Name, err))
		}
		if slices.Contains(p.Depends, p.Name) {
			errs = append(errs, fmt.Errorf("pack %q: depends on itself", p.Name))
		}
	}
	for _, p := range m.Packs {
		for _, d := range p.Depends {
			if !seen[d] {
				errs = append(errs, fmt.Errorf("pack %q: unknown dependency %q", p.Name, d))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidManifest, errors.Join(errs...))
	}
	return nil
}

// Ordered returns the packs with every dependency before its dependents.
func (m *Manifest) Ordered() ([]Pack, error) {
	g := dag.New()
	byName := make(map[string]Pack, len(m.Packs))
	for _, p := range m.Packs {
		byName[p.Name] = p
		g.AddNode(p.Name)
		for _, d := range p.Depends {
			g.AddEdge(d, p.Name)
		}
	}
	names, err := g.TopologicalSort()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	out := make([]Pack, len(names))
	for i, n := range names {
		out[i] = byName[n]
	}
	return out, nil
}

// Build reads every pack directory from fsys and writes the superpack to w.
func (m *Manifest) Build(fsys afero.Fs, w io.Writer, opts ...BuildOption) (Result, error) {
	o := buildOptions{logger: log.New(io.Discard)}
	for _, opt := range opts {
		opt(&o)
	}

	ordered, err := m.Ordered()
	if err != nil {
		return Result{}, err
	}

	var res Result
	b := superpack.NewBuilder()
	for _, p := range ordered {
		if err := b.AddPack(p.Name, p.Depends...); err != nil {
			return res, err
		}
		codec, _ := superpack.ParseCompressionType(p.Compression)
		n, size, err := m.addDir(fsys, b, p, codec, o.logger)
		if err != nil {
			return res, fmt.Errorf("pack %q: %w", p.Name, err)
		}
		o.logger.Info("Pack added", "pack", p.Name, "files", n, "bytes", size)
		res.Packs++
		res.Files += n
		res.InputSize += size
	}

	written, err := b.WriteTo(w)
	res.Written = written
	if err != nil {
		return res, fmt.Errorf("writing superpack: %w", err)
	}
	return res, nil
}

func (m *Manifest) addDir(fsys afero.Fs, b *superpack.Builder, p Pack, codec superpack.CompressionType, logger *log.Logger) (int, uint64, error) {
	root := p.Dir
	if !filepath.IsAbs(root) && m.baseDir != "" {
		root = filepath.Join(m.baseDir, root)
	}
	prefix := p.Name
	if p.Prefix != nil {
		prefix = strings.Trim(*p.Prefix, "/")
	}

	var (
		count int
		size  uint64
	)
	err := afero.Walk(fsys, root, func(file string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, file)
		if err != nil {
			return err
		}
		name := path.Join(prefix, filepath.ToSlash(rel))
		data, err := afero.ReadFile(fsys, file)
		if err != nil {
			return err
		}
		entry, err := b.AddFile(p.Name, name, data, codec)
		if err != nil {
			return err
		}
		logger.Debug("File added", "name", name, "size", entry.OriginalSize, "stored", entry.CompressedSize, "compression", entry.Compression)
		count++
		size += uint64(len(data))
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return count, size, nil
}
