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

package clonecd_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/ZaparooProject/go-mediaimage/format/clonecd"
	"github.com/ZaparooProject/go-mediaimage/image"
	"github.com/ZaparooProject/go-mediaimage/internal/cdsector"
	"github.com/ZaparooProject/go-mediaimage/internal/fixture"
	"github.com/ZaparooProject/go-mediaimage/source"
	"github.com/spf13/afero"
)

var twoTracks = []fixture.Track{
	{Type: image.TrackMode1, Sectors: 100},
	{Type: image.TrackAudio, Sectors: 50},
}

func open(t *testing.T, files fixture.Files) *clonecd.Image {
	t.Helper()
	img, err := clonecd.New().Open(files.Source("disc.ccd"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = img.Close() })
	return img.(*clonecd.Image)
}

func TestIdentify(t *testing.T) {
	t.Parallel()

	p := clonecd.New()
	tests := []struct {
		name string
		data string
		want bool
	}{
		{"header", "[CloneCD]\nVersion=3\n", true},
		{"lower case", "[clonecd]\n", true},
		{"bom and blank lines", "\ufeff\r\n\n[CloneCD]\n", true},
		{"other ini", "[Disc]\nSessions=1\n", false},
		{"binary", "\x00\x01\x02", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := p.Identify(source.Bytes("x.ccd", []byte(tt.data))); got != tt.want {
				t.Errorf("Identify(%q) = %v, want %v", tt.data, got, tt.want)
			}
		})
	}
}

func TestReadAcrossTracks(t *testing.T) {
	t.Parallel()

	img := open(t, fixture.CloneCD("disc", twoTracks, false))
	tracks := img.Tracks()
	if len(tracks) != 2 {
		t.Fatalf("Tracks() = %d tracks, want 2", len(tracks))
	}
	if tracks[0].Start != 0 || tracks[0].End != 99 || tracks[1].Start != 100 || tracks[1].End != 149 {
		t.Errorf("track bounds = %d-%d, %d-%d", tracks[0].Start, tracks[0].End, tracks[1].Start, tracks[1].End)
	}
	if tracks[0].Type != image.TrackMode1 || tracks[1].Type != image.TrackAudio {
		t.Errorf("track types = %s, %s", tracks[0].Type, tracks[1].Type)
	}
	if tracks[0].Pregap != 150 {
		t.Errorf("track 1 pregap = %d, want 150", tracks[0].Pregap)
	}

	info := img.Info()
	if info.Sectors != 150 || info.MediaType != image.MediaCDROM || !info.HasSessions {
		t.Errorf("Info() = %+v", info)
	}

	got, err := img.ReadSectors(99, 2)
	if err != nil {
		t.Fatalf("ReadSectors(99, 2) error = %v", err)
	}
	want := append(fixture.Payload(99, 2048), fixture.Payload(100, cdsector.RawSize)...)
	if !bytes.Equal(got, want) {
		t.Errorf("ReadSectors(99, 2) = %d bytes, want %d bytes of mode 1 then audio", len(got), len(want))
	}

	long, err := img.ReadSectorsLong(10, 1)
	if err != nil {
		t.Fatalf("ReadSectorsLong() error = %v", err)
	}
	if !bytes.Equal(long, fixture.Frame(image.TrackMode1, 10)) {
		t.Error("ReadSectorsLong() does not return the stored frame")
	}

	if _, err := img.ReadSector(150); !errors.Is(err, image.ErrSectorAddressOutOfRange) {
		t.Errorf("ReadSector(150) error = %v, want ErrSectorAddressOutOfRange", err)
	}
}

func TestTags(t *testing.T) {
	t.Parallel()

	img := open(t, fixture.CloneCD("disc", twoTracks, true))
	if !img.Info().HasTag(image.TagCDSubchannel) || !img.Info().HasTag(image.TagCDSync) {
		t.Errorf("ReadableSectorTags = %v", img.Info().ReadableSectorTags)
	}

	sync, err := img.ReadSectorTag(5, image.TagCDSync)
	if err != nil || !bytes.Equal(sync, cdsector.Sync[:]) {
		t.Errorf("ReadSectorTag(sync) = %x, %v", sync, err)
	}
	hdr, err := img.ReadSectorTag(5, image.TagCDHeader)
	if err != nil || hdr[3] != 1 {
		t.Errorf("ReadSectorTag(header) = %x, %v", hdr, err)
	}
	if _, err := img.ReadSectorTag(120, image.TagCDSync); !errors.Is(err, image.ErrTagNotSupported) {
		t.Errorf("sync on an audio track error = %v, want ErrTagNotSupported", err)
	}

	sub, err := img.ReadSectorTag(120, image.TagCDSubchannel)
	if err != nil || !bytes.Equal(sub, cdsector.Interleave(fixture.Sub(120))) {
		t.Errorf("ReadSectorTag(subchannel) = %x, %v", sub, err)
	}
	q, err := img.ReadSectorTag(7, image.TagCDSubchannelQ)
	if err != nil || !bytes.Equal(q, fixture.Sub(7)[12:24]) {
		t.Errorf("ReadSectorTag(Q) = %x, %v", q, err)
	}

	noSub := open(t, fixture.CloneCD("disc", twoTracks, false))
	if _, err := noSub.ReadSectorTag(0, image.TagCDSubchannel); !errors.Is(err, image.ErrTagNotSupported) {
		t.Errorf("subchannel without .sub error = %v, want ErrTagNotSupported", err)
	}
}

func TestMultiSession(t *testing.T) {
	t.Parallel()

	img := open(t, fixture.CloneCD("disc", []fixture.Track{
		{Type: image.TrackAudio, Sectors: 30, Session: 1},
		{Type: image.TrackAudio, Sectors: 20},
		{Type: image.TrackMode1, Sectors: 40, Session: 2},
	}, false))

	sessions := img.Sessions()
	if len(sessions) != 2 {
		t.Fatalf("Sessions() = %+v", sessions)
	}
	if sessions[0].StartTrack != 1 || sessions[0].EndTrack != 2 || sessions[0].End != 49 {
		t.Errorf("session 1 = %+v", sessions[0])
	}
	if sessions[1].StartTrack != 3 || sessions[1].Start != 50 || sessions[1].End != 89 {
		t.Errorf("session 2 = %+v", sessions[1])
	}
	// Track 3 was recorded after the lead-out gap but is stored right
	// after track 2.
	got, err := img.ReadSector(50)
	if err != nil {
		t.Fatalf("ReadSector(50) error = %v", err)
	}
	if !bytes.Equal(got, fixture.Payload(50+6750+4500+150, 2048)) {
		t.Error("first sector of session 2 returned the wrong data")
	}
}

func TestOpenFromFs(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	fixture.CloneCD("Game", twoTracks, true).Write(t, fsys, "/images")
	src, err := source.OpenFs(fsys, "/images/Game.ccd")
	if err != nil {
		t.Fatalf("OpenFs() error = %v", err)
	}
	img, err := clonecd.New().Open(src, image.WithOwned(src))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if n := img.Info().Sectors; n != 150 {
		t.Errorf("Sectors = %d, want 150", n)
	}
	if err := img.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()

	good := fixture.CloneCD("disc", twoTracks, false)
	with := func(ccd string) fixture.Files {
		f := fixture.Files{}
		for k, v := range good {
			f[k] = v
		}
		f["disc.ccd"] = []byte(ccd)
		return f
	}
	short := fixture.Files{"disc.ccd": good["disc.ccd"], "disc.img": good["disc.img"][:cdsector.RawSize*140]}
	ccd := string(good["disc.ccd"])

	tests := []struct {
		name  string
		files fixture.Files
		want  error
	}{
		{"missing data file", good.Without("disc.img"), image.ErrCorruptStructure},
		{"short data file", short, image.ErrInconsistentLayout},
		{"newer version", with(strings.Replace(ccd, "Version=3", "Version=4", 1)), image.ErrUnsupportedVariant},
		{"scrambled", with(strings.Replace(ccd, "DataTracksScrambled=0", "DataTracksScrambled=1", 1)), image.ErrUnsupportedVariant},
		{"bad number", with(strings.Replace(ccd, "PLBA=100", "PLBA=x", 1)), image.ErrCorruptStructure},
		{"no tracks", with("[CloneCD]\nVersion=3\n"), image.ErrCorruptStructure},
		{"not a descriptor", with("[Disc]\n"), image.ErrNotThisFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := clonecd.New().Open(tt.files.Source("disc.ccd"))
			if !errors.Is(err, tt.want) {
				t.Errorf("Open() error = %v, want %v", err, tt.want)
			}
			var fe *image.FormatError
			if !errors.As(err, &fe) || fe.Format != clonecd.Name {
				t.Errorf("Open() error %v is not a clonecd FormatError", err)
			}
		})
	}
}

func TestParseDescriptor(t *testing.T) {
	t.Parallel()

	d, err := clonecd.ParseDescriptor([]byte("\ufeff[CloneCD]\r\nVersion=3\r\n[Disc]\r\nCATALOG=0123456789012\r\n" +
		"; comment\r\n[Entry 0]\r\nSession=1\r\nPoint=0xa2\r\nPLBA=300\r\n[TRACK 1]\r\nMODE=2\r\nINDEX 1=0\r\n"))
	if err != nil {
		t.Fatalf("ParseDescriptor() error = %v", err)
	}
	if d.Version != 3 || d.Catalog != "0123456789012" || len(d.Entries) != 1 {
		t.Errorf("descriptor = %+v", d)
	}
	if e := d.Entries[0]; e.Point != 0xA2 || e.PLBA != 300 {
		t.Errorf("entry = %+v", e)
	}
	if tr := d.Tracks[1]; !tr.HasMode || tr.Mode != 2 || tr.Indexes[1] != 0 {
		t.Errorf("track = %+v", tr)
	}
}

func FuzzParseDescriptor(f *testing.F) {
	f.Add(fixture.CloneCD("disc", twoTracks, false)["disc.ccd"])
	f.Add([]byte("[CloneCD]\n[Entry 0]\nPoint=1\nPLBA=-5\n"))
	f.Add([]byte("[TRACK"))
	f.Fuzz(func(t *testing.T, data []byte) {
		d, err := clonecd.ParseDescriptor(data)
		if err != nil {
			return
		}
		if len(d.Entries) > 1000 {
			t.Fatalf("%d entries parsed", len(d.Entries))
		}
	})
}
