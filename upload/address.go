// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package upload

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/wgpu/hal"
)

// AddressEntrySize is the byte size of one serialized AddressEntry.
const AddressEntrySize = 32

// MaxAddressEntries is the capacity of the address table buffer.
const MaxAddressEntries = 8

// Fixed slots of the address table. Slots from SlotUser on are free for
// buffers owned by the caller, such as transforms or materials.
const (
	SlotInstances = iota
	SlotDraws
	SlotUser
)

// AddressEntry tells shaders where a buffer lives. HAL does not expose
// device addresses, so an entry carries the native handle plus the byte
// range and element layout within it.
type AddressEntry struct {
	Buffer hal.Buffer
	Offset uint64
	Size   uint64
	Count  uint32
	Stride uint32
}

// AddressTable is the per-frame table of buffer locations.
type AddressTable struct {
	Entries []AddressEntry
}

// Validate reports a missing buffer in any entry.
func (t *AddressTable) Validate() error {
	for i, e := range t.Entries {
		if e.Buffer == nil {
			return fmt.Errorf("%w: slot %d", ErrMissingAddress, i)
		}
	}
	if len(t.Entries) > MaxAddressEntries {
		return fmt.Errorf("%w: %d entries, max %d", ErrTableFull, len(t.Entries), MaxAddressEntries)
	}
	return nil
}

// Len returns the number of entries.
func (t *AddressTable) Len() int { return len(t.Entries) }

// put serializes the table as 64-bit handle, offset and size split into
// 32-bit halves, followed by count and stride.
func (t *AddressTable) put(dst []byte) {
	le := binary.LittleEndian
	for i, e := range t.Entries {
		b := dst[i*AddressEntrySize : (i+1)*AddressEntrySize]
		le.PutUint64(b[0:8], uint64(e.Buffer.NativeHandle()))
		le.PutUint64(b[8:16], e.Offset)
		le.PutUint64(b[16:24], e.Size)
		le.PutUint32(b[24:28], e.Count)
		le.PutUint32(b[28:32], e.Stride)
	}
}
