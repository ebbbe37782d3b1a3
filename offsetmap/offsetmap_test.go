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

package offsetmap_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ZaparooProject/go-mediaimage/image"
	"github.com/ZaparooProject/go-mediaimage/offsetmap"
)

// sectorFile returns n sectors of size bytes, each filled with its index+1.
func sectorFile(n, size int) *bytes.Reader {
	data := make([]byte, n*size)
	for i := range n {
		for j := range size {
			data[i*size+j] = byte(i + 1)
		}
	}
	return bytes.NewReader(data)
}

func TestBuildContiguous(t *testing.T) {
	t.Parallel()

	file := sectorFile(150, 16)
	layout, err := offsetmap.Builder{DeclaredTotal: 160}.Build([]offsetmap.Descriptor{
		{Sequence: 1, Type: image.TrackMode1, Sectors: 100, SectorSize: 16, File: file},
		{Sequence: 2, Type: image.TrackAudio, Sectors: 50, SectorSize: 16, File: file, Offset: 1600,
			Pregap: 10, PregapStored: false},
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if got := layout.Map.Total(); got != 160 {
		t.Errorf("Total() = %d, want 160", got)
	}
	entries := layout.Map.Entries()
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	var sum uint64
	for i, e := range entries {
		if i > 0 && e.Start != entries[i-1].End() {
			t.Errorf("entry %d starts at %d, previous ends at %d", i, e.Start, entries[i-1].End())
		}
		sum += e.Count
	}
	if sum != 160 {
		t.Errorf("entry counts sum to %d, want 160", sum)
	}
	if entries[1].File != nil {
		t.Error("unstored pregap should be a zero-fill entry")
	}

	if len(layout.Tracks) != 2 {
		t.Fatalf("got %d tracks, want 2", len(layout.Tracks))
	}
	if tr := layout.Tracks[1]; tr.Start != 100 || tr.End != 159 || tr.Pregap != 10 {
		t.Errorf("track 2 = %+v", tr)
	}
	if len(layout.Sessions) != 1 || layout.Sessions[0].EndTrack != 2 || layout.Sessions[0].End != 159 {
		t.Errorf("sessions = %+v", layout.Sessions)
	}
}

func TestFind(t *testing.T) {
	t.Parallel()

	layout, err := offsetmap.Builder{}.Build([]offsetmap.Descriptor{
		{Sequence: 1, Sectors: 10, SectorSize: 1, File: sectorFile(10, 1)},
		{Sequence: 2, Sectors: 5, SectorSize: 1, Postgap: 2},
		{Sequence: 3, Sectors: 1, SectorSize: 1, File: sectorFile(1, 1)},
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	tests := []struct {
		addr  uint64
		start uint64
		track int
		ok    bool
	}{
		{0, 0, 0, true},
		{9, 0, 0, true},
		{10, 10, 1, true},
		{15, 15, 1, true},
		{16, 15, 1, true},
		{17, 17, 2, true},
		{18, 0, 0, false},
	}
	for _, tt := range tests {
		e, ok := layout.Map.Find(tt.addr)
		if ok != tt.ok {
			t.Errorf("Find(%d) ok = %v, want %v", tt.addr, ok, tt.ok)
			continue
		}
		if ok && (e.Start != tt.start || e.Track != tt.track) {
			t.Errorf("Find(%d) = start %d track %d, want start %d track %d",
				tt.addr, e.Start, e.Track, tt.start, tt.track)
		}
	}
	if tr, ok := layout.TrackAt(16); !ok || tr.Sequence != 2 || tr.Postgap != 2 {
		t.Errorf("TrackAt(16) = %+v, %v", tr, ok)
	}
}

func TestReadRawSpansEntries(t *testing.T) {
	t.Parallel()

	layout, err := offsetmap.Builder{}.Build([]offsetmap.Descriptor{
		{Sequence: 1, Sectors: 3, SectorSize: 4, File: sectorFile(3, 4)},
		{Sequence: 2, Sectors: 2, SectorSize: 4, Pregap: 1},
		{Sequence: 3, Sectors: 2, SectorSize: 4, File: sectorFile(4, 4), Offset: 8},
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	got, err := layout.Map.ReadRaw(2, 5)
	if err != nil {
		t.Fatalf("ReadRaw() error = %v", err)
	}
	want := []byte{
		3, 3, 3, 3,
		0, 0, 0, 0,
		0, 0, 0, 0,
		0, 0, 0, 0,
		3, 3, 3, 3,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("ReadRaw() = %v, want %v", got, want)
	}

	spans, err := layout.Map.Spans(0, 8)
	if err != nil {
		t.Fatalf("Spans() error = %v", err)
	}
	var n uint64
	for _, s := range spans {
		n += s.Count
	}
	if len(spans) != 4 || n != 8 {
		t.Errorf("Spans(0, 8) = %d spans covering %d sectors", len(spans), n)
	}
}

func TestStride(t *testing.T) {
	t.Parallel()

	// Four-byte sectors followed by a two-byte trailer.
	file := bytes.NewReader([]byte{1, 1, 1, 1, 9, 9, 2, 2, 2, 2, 9, 9})
	layout, err := offsetmap.Builder{}.Build([]offsetmap.Descriptor{
		{Sequence: 1, Sectors: 2, SectorSize: 4, Stride: 6, File: file},
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	got, err := layout.Map.ReadRaw(0, 2)
	if err != nil {
		t.Fatalf("ReadRaw() error = %v", err)
	}
	if !bytes.Equal(got, []byte{1, 1, 1, 1, 2, 2, 2, 2}) {
		t.Errorf("ReadRaw() = %v", got)
	}
}

func TestOutOfRange(t *testing.T) {
	t.Parallel()

	layout, err := offsetmap.Builder{}.Build([]offsetmap.Descriptor{
		{Sequence: 1, Sectors: 10, SectorSize: 1, File: sectorFile(10, 1)},
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	for _, tc := range []struct {
		addr  uint64
		count uint32
	}{{10, 1}, {9, 2}, {0, 11}, {0, 0}, {1 << 63, 1}} {
		if _, err := layout.Map.ReadRaw(tc.addr, tc.count); !errors.Is(err, image.ErrSectorAddressOutOfRange) {
			t.Errorf("ReadRaw(%d, %d) error = %v, want ErrSectorAddressOutOfRange", tc.addr, tc.count, err)
		}
	}
}

func TestShortBackingFile(t *testing.T) {
	t.Parallel()

	layout, err := offsetmap.Builder{}.Build([]offsetmap.Descriptor{
		{Sequence: 1, Sectors: 10, SectorSize: 4, File: sectorFile(2, 4)},
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if _, err := layout.Map.ReadRaw(5, 1); !errors.Is(err, image.ErrCorruptStructure) {
		t.Errorf("ReadRaw() past backing data error = %v, want ErrCorruptStructure", err)
	}
}

func TestDropsEmptyTracks(t *testing.T) {
	t.Parallel()

	layout, err := offsetmap.Builder{}.Build([]offsetmap.Descriptor{
		{Sequence: 1, Sectors: 4, SectorSize: 1},
		{Sequence: 2, Sectors: 0, SectorSize: 1},
		{Sequence: 3, Sectors: 4, SectorSize: 1},
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(layout.Tracks) != 2 || layout.Tracks[1].Sequence != 3 || layout.Tracks[1].Start != 4 {
		t.Errorf("tracks = %+v", layout.Tracks)
	}
}

func TestSessions(t *testing.T) {
	t.Parallel()

	t.Run("explicit marker starts a session", func(t *testing.T) {
		t.Parallel()
		layout, err := offsetmap.Builder{}.Build([]offsetmap.Descriptor{
			{Sequence: 1, Session: 1, Sectors: 10, SectorSize: 1, HasStart: true, Start: 0},
			{Sequence: 2, Session: 1, Sectors: 10, SectorSize: 1, HasStart: true, Start: 10},
			{Sequence: 3, Session: 2, Sectors: 5, SectorSize: 1, HasStart: true, Start: 11400},
			{Sequence: 4, Session: 2, Sectors: 5, SectorSize: 1, HasStart: true, Start: 11405},
		})
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if len(layout.Sessions) != 2 {
			t.Fatalf("got %d sessions, want 2", len(layout.Sessions))
		}
		s := layout.Sessions[1]
		if s.Sequence != 2 || s.StartTrack != 3 || s.EndTrack != 4 || s.Start != 20 || s.End != 29 {
			t.Errorf("session 2 = %+v", s)
		}
		if layout.Map.Total() != 30 {
			t.Errorf("Total() = %d, want 30", layout.Map.Total())
		}
	})

	t.Run("geometry wraparound does not start a session", func(t *testing.T) {
		t.Parallel()
		layout, err := offsetmap.Builder{}.Build([]offsetmap.Descriptor{
			{Sequence: 1, Sectors: 9, SectorSize: 1, Cylinder: 79, Head: 1},
			{Sequence: 2, Sectors: 9, SectorSize: 1, Cylinder: 0, Head: 0},
		})
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if len(layout.Sessions) != 1 {
			t.Errorf("got %d sessions, want 1", len(layout.Sessions))
		}
	})
}

func TestInconsistentLayouts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		declared uint64
		descs    []offsetmap.Descriptor
	}{
		{
			name: "gap inside a session",
			descs: []offsetmap.Descriptor{
				{Sequence: 1, Sectors: 10, SectorSize: 1, HasStart: true, Start: 0},
				{Sequence: 2, Sectors: 10, SectorSize: 1, HasStart: true, Start: 12},
			},
		},
		{
			name: "overlap inside a session",
			descs: []offsetmap.Descriptor{
				{Sequence: 1, Sectors: 10, SectorSize: 1, HasStart: true, Start: 0},
				{Sequence: 2, Sectors: 10, SectorSize: 1, HasStart: true, Start: 5},
			},
		},
		{
			name: "session overlaps the previous one",
			descs: []offsetmap.Descriptor{
				{Sequence: 1, Session: 1, Sectors: 10, SectorSize: 1, HasStart: true, Start: 0},
				{Sequence: 2, Session: 2, Sectors: 10, SectorSize: 1, HasStart: true, Start: 9},
			},
		},
		{
			name: "session numbers go backwards",
			descs: []offsetmap.Descriptor{
				{Sequence: 1, Session: 2, Sectors: 10, SectorSize: 1},
				{Sequence: 2, Session: 1, Sectors: 10, SectorSize: 1},
			},
		},
		{
			name:     "declared total mismatch",
			declared: 21,
			descs: []offsetmap.Descriptor{
				{Sequence: 1, Sectors: 10, SectorSize: 1},
				{Sequence: 2, Sectors: 10, SectorSize: 1},
			},
		},
		{
			name:  "nothing to place",
			descs: []offsetmap.Descriptor{{Sequence: 1, SectorSize: 1}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := offsetmap.Builder{DeclaredTotal: tt.declared}.Build(tt.descs)
			if !errors.Is(err, image.ErrInconsistentLayout) {
				t.Errorf("Build() error = %v, want ErrInconsistentLayout", err)
			}
			if !errors.Is(err, image.ErrCorruptStructure) {
				t.Errorf("Build() error = %v, want it to be a corrupt structure", err)
			}
		})
	}
}

func TestNewMapRejectsUnsorted(t *testing.T) {
	t.Parallel()

	_, err := offsetmap.NewMap([]offsetmap.Entry{
		{Start: 0, Count: 4, Size: 1, Stride: 1},
		{Start: 2, Count: 4, Size: 1, Stride: 1},
	})
	if !errors.Is(err, image.ErrInconsistentLayout) {
		t.Errorf("NewMap() error = %v, want ErrInconsistentLayout", err)
	}
}

func FuzzBuild(f *testing.F) {
	f.Add(uint16(10), uint16(0), uint16(5), uint16(2), false)
	f.Add(uint16(0), uint16(3), uint16(0), uint16(0), true)
	f.Add(uint16(1), uint16(1), uint16(1), uint16(1), true)

	f.Fuzz(func(t *testing.T, a, pregap, b, postgap uint16, stored bool) {
		layout, err := offsetmap.Builder{}.Build([]offsetmap.Descriptor{
			{Sequence: 1, Sectors: uint64(a), SectorSize: 1},
			{Sequence: 2, Sectors: uint64(b), SectorSize: 1, Pregap: uint64(pregap),
				PregapStored: stored, Postgap: uint64(postgap)},
		})
		if err != nil {
			return
		}
		var sum uint64
		var next uint64
		for _, e := range layout.Map.Entries() {
			if e.Start != next {
				t.Fatalf("entry starts at %d, want %d", e.Start, next)
			}
			next = e.End()
			sum += e.Count
		}
		if sum != layout.Map.Total() {
			t.Fatalf("entries cover %d sectors, Total() = %d", sum, layout.Map.Total())
		}
		for addr := range min(layout.Map.Total(), 64) {
			if _, ok := layout.Map.Find(addr); !ok {
				t.Fatalf("Find(%d) failed inside the map", addr)
			}
		}
	})
}
