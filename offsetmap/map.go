// Copyright (c) 2025 Niema Moshiri and The Zaparoo Project.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of go-mediaimage.
//
// go-mediaimage is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-mediaimage is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-mediaimage.  If not, see <https://www.gnu.org/licenses/>.

// Package offsetmap translates logical sector addresses into positions in
// backing files. A Map is an ordered list of entries that tile the address
// range [0, Total) without gaps or overlaps; the Builder produces one from
// per-track descriptors and derives the track and session tables with it.
package offsetmap

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/ZaparooProject/go-mediaimage/image"
)

// Entry maps Count consecutive logical sectors to a backing file.
// Sector i of the entry occupies Size bytes at Offset + i*Stride.
// A nil File reads as zeros.
type Entry struct {
	File   io.ReaderAt
	Start  uint64
	Count  uint64
	Offset int64
	Stride uint32
	Size   uint32
	// Track is the index of the owning track in Layout.Tracks.
	Track int
}

// End returns the first address after the entry.
func (e Entry) End() uint64 {
	return e.Start + e.Count
}

// Contains reports whether addr falls inside the entry.
func (e Entry) Contains(addr uint64) bool {
	return addr >= e.Start && addr < e.End()
}

// SectorOffset returns the byte offset of addr in the backing file.
func (e Entry) SectorOffset(addr uint64) int64 {
	//nolint:gosec // bounded by the entry extent checked at build time
	return e.Offset + int64(addr-e.Start)*int64(e.Stride)
}

// Map is an immutable sorted list of entries.
type Map struct {
	entries []Entry
	total   uint64
}

// NewMap validates that entries are sorted, contiguous from address 0 and
// non-empty.
func NewMap(entries []Entry) (*Map, error) {
	var next uint64
	for i, e := range entries {
		if e.Count == 0 {
			return nil, fmt.Errorf("%w: entry %d is empty", image.ErrInconsistentLayout, i)
		}
		if e.Start != next {
			kind := "gap"
			if e.Start < next {
				kind = "overlap"
			}
			return nil, fmt.Errorf("%w: %s before entry %d at sector %d (expected %d)",
				image.ErrInconsistentLayout, kind, i, e.Start, next)
		}
		if e.Size == 0 || e.Stride < e.Size {
			return nil, fmt.Errorf("%w: entry %d has size %d stride %d",
				image.ErrInconsistentLayout, i, e.Size, e.Stride)
		}
		next = e.End()
	}
	return &Map{entries: entries, total: next}, nil
}

// Total returns the number of logical sectors covered.
func (m *Map) Total() uint64 {
	return m.total
}

// Entries returns a copy of the entry list.
func (m *Map) Entries() []Entry {
	return append([]Entry(nil), m.entries...)
}

func (m *Map) index(addr uint64) int {
	return sort.Search(len(m.entries), func(i int) bool {
		return m.entries[i].End() > addr
	})
}

// Find returns the entry containing addr.
func (m *Map) Find(addr uint64) (Entry, bool) {
	i := m.index(addr)
	if i >= len(m.entries) || !m.entries[i].Contains(addr) {
		return Entry{}, false
	}
	return m.entries[i], true
}

// Span is the part of one entry touched by a multi-sector read.
type Span struct {
	Entry Entry
	// First is the first logical address of the span.
	First uint64
	Count uint64
}

// Spans splits the read of count sectors at addr along entry boundaries.
func (m *Map) Spans(addr uint64, count uint32) ([]Span, error) {
	if err := image.CheckRange(addr, count, m.total); err != nil {
		return nil, err
	}
	remaining := uint64(count)
	var spans []Span
	for i := m.index(addr); remaining > 0 && i < len(m.entries); i++ {
		e := m.entries[i]
		n := min(e.End()-addr, remaining)
		spans = append(spans, Span{Entry: e, First: addr, Count: n})
		addr += n
		remaining -= n
	}
	return spans, nil
}

// Read returns the stored bytes of the span, Size bytes per sector.
func (s Span) Read() ([]byte, error) {
	e := s.Entry
	//nolint:gosec // span counts are bounded by a uint32 read request
	out := make([]byte, int(s.Count)*int(e.Size))
	if e.File == nil {
		return out, nil
	}
	if e.Stride == e.Size {
		if err := readFull(e.File, e.SectorOffset(s.First), out); err != nil {
			return nil, err
		}
		return out, nil
	}
	for i := range s.Count {
		chunk := out[i*uint64(e.Size) : (i+1)*uint64(e.Size)]
		if err := readFull(e.File, e.SectorOffset(s.First+i), chunk); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ReadRaw returns the stored bytes of count sectors at addr.
func (m *Map) ReadRaw(addr uint64, count uint32) ([]byte, error) {
	spans, err := m.Spans(addr, count)
	if err != nil {
		return nil, err
	}
	if len(spans) == 1 {
		return spans[0].Read()
	}
	var out []byte
	for _, s := range spans {
		data, err := s.Read()
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
	}
	return out, nil
}

func readFull(r io.ReaderAt, off int64, buf []byte) error {
	n, err := r.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: backing data ends at 0x%x, short by %d bytes",
			image.ErrCorruptStructure, off+int64(n), len(buf)-n)
	}
	return fmt.Errorf("read backing data at 0x%x: %w", off, err)
}
