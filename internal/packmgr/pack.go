// SPDX-License-Identifier: MPL-2.0

package packmgr

import "golang.org/x/exp/slices"

// Pack is a snapshot of one named bundle. The manager owns the live record
// and hands out copies.
type Pack struct {
	Name string
	// Dependencies are the direct dependencies from the superpack metadata.
	Dependencies    []string
	TotalSizeFromDB uint64
	HashFromDB      uint32
	State           PackState
	// DownloadedSize never decreases while a request is active.
	DownloadedSize uint64
	Priority       float32
	ErrorMessage   string
}

func (p Pack) snapshot() Pack {
	p.Dependencies = slices.Clone(p.Dependencies)
	return p
}

// Progress returns the downloaded fraction in [0, 1].
func (p Pack) Progress() float64 {
	switch {
	case p.State == PackMounted:
		return 1
	case p.TotalSizeFromDB == 0:
		return 0
	}
	return min(1, float64(p.DownloadedSize)/float64(p.TotalSizeFromDB))
}
