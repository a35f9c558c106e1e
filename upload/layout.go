// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package upload

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/visicore/frame"
	"github.com/gogpu/visicore/visibility"
)

// InstanceSize is the byte size of one instance row on the GPU.
const InstanceSize = 20

// Region is one of the three sections of a staging buffer. Regions are laid
// out in declaration order.
type Region int

const (
	RegionInstances Region = iota
	RegionDraws
	RegionTable

	regionCount
)

// String returns the region name.
func (r Region) String() string {
	switch r {
	case RegionInstances:
		return "Instances"
	case RegionDraws:
		return "Draws"
	case RegionTable:
		return "Table"
	default:
		return fmt.Sprintf("Unknown(%d)", int(r))
	}
}

// Layout places the three regions inside one staging buffer.
type Layout struct {
	Offset [regionCount]uint64
	Size   [regionCount]uint64
	Total  uint64
}

// ComputeLayout returns the staging layout for the given element counts.
// Each region starts at a multiple of align, which must be a power of two.
func ComputeLayout(instances, draws, entries int, align uint64) Layout {
	var l Layout
	l.Size[RegionInstances] = uint64(instances) * InstanceSize
	l.Size[RegionDraws] = uint64(draws) * frame.DrawIndexedIndirectSize
	l.Size[RegionTable] = uint64(entries) * AddressEntrySize

	off := uint64(0)
	for r := range regionCount {
		off = alignUp(off, align)
		l.Offset[r] = off
		off += l.Size[r]
	}
	l.Total = alignUp(off, 4)
	return l
}

func alignUp(v, align uint64) uint64 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

func putInstances(dst []byte, rows []visibility.GPUInstance) {
	le := binary.LittleEndian
	for i, r := range rows {
		b := dst[i*InstanceSize : (i+1)*InstanceSize]
		le.PutUint32(b[0:4], r.MeshID)
		le.PutUint32(b[4:8], r.MaterialID)
		le.PutUint32(b[8:12], r.TransformID)
		le.PutUint32(b[12:16], uint32(r.DrawType))
		le.PutUint32(b[16:20], uint32(r.Pass))
	}
}

func putDraws(dst []byte, draws []frame.DrawIndexedIndirect) {
	le := binary.LittleEndian
	const n = frame.DrawIndexedIndirectSize
	for i, d := range draws {
		b := dst[i*n : (i+1)*n]
		le.PutUint32(b[0:4], d.IndexCount)
		le.PutUint32(b[4:8], d.InstanceCount)
		le.PutUint32(b[8:12], d.FirstIndex)
		le.PutUint32(b[12:16], uint32(d.BaseVertex))
		le.PutUint32(b[16:20], d.FirstInstance)
	}
}
