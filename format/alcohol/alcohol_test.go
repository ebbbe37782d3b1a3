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

package alcohol_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ZaparooProject/go-mediaimage/format/alcohol"
	"github.com/ZaparooProject/go-mediaimage/image"
	"github.com/ZaparooProject/go-mediaimage/internal/cdsector"
	"github.com/ZaparooProject/go-mediaimage/internal/fixture"
	"github.com/ZaparooProject/go-mediaimage/source"
)

var tracks = []fixture.Track{
	{Type: image.TrackMode1, Sectors: 60},
	{Type: image.TrackAudio, Sectors: 40},
}

func open(t *testing.T, files fixture.Files) *alcohol.Image {
	t.Helper()
	img, err := alcohol.New().Open(files.Source("disc.mds"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = img.Close() })
	return img.(*alcohol.Image)
}

func TestIdentify(t *testing.T) {
	t.Parallel()

	mds := fixture.Alcohol(t, "disc", tracks, fixture.AlcoholOptions{})["disc.mds"]
	v2 := bytes.Clone(mds)
	v2[16] = 2
	p := alcohol.New()
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"descriptor", mds, true},
		{"header only", mds[:alcohol.HeaderSize], true},
		{"version 2", v2, false},
		{"short", mds[:20], false},
		{"ccd text", []byte("[CloneCD]\n"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := p.Identify(source.Bytes("disc.mds", tt.data)); got != tt.want {
				t.Errorf("Identify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	img := open(t, fixture.Alcohol(t, "disc", tracks, fixture.AlcoholOptions{}))
	info := img.Info()
	if info.Sectors != 100 || info.MediaType != image.MediaCDROM || info.ApplicationVersion != "1.5" {
		t.Errorf("Info() = %+v", info)
	}
	trs := img.Tracks()
	if len(trs) != 2 || trs[1].Start != 60 || trs[1].Type != image.TrackAudio || trs[0].Pregap != 150 {
		t.Fatalf("Tracks() = %+v", trs)
	}

	got, err := img.ReadSectors(59, 2)
	if err != nil {
		t.Fatalf("ReadSectors() error = %v", err)
	}
	want := append(fixture.Payload(59, 2048), fixture.Payload(60, cdsector.RawSize)...)
	if !bytes.Equal(got, want) {
		t.Error("ReadSectors(59, 2) returned the wrong data")
	}
	if _, err := img.ReadSectorTag(0, image.TagCDSubchannel); !errors.Is(err, image.ErrTagNotSupported) {
		t.Errorf("subchannel tag error = %v, want ErrTagNotSupported", err)
	}
	if _, err := img.ReadSectors(99, 2); !errors.Is(err, image.ErrSectorAddressOutOfRange) {
		t.Errorf("ReadSectors(99, 2) error = %v, want ErrSectorAddressOutOfRange", err)
	}
}

func TestSubchannel(t *testing.T) {
	t.Parallel()

	img := open(t, fixture.Alcohol(t, "disc", tracks, fixture.AlcoholOptions{Sub: true, Medium: alcohol.MediumCDR}))
	if img.Info().MediaType != image.MediaCDR {
		t.Errorf("MediaType = %s, want CD-R", img.Info().MediaType)
	}
	if tr := img.Tracks()[0]; tr.RawSize != cdsector.RawWithSubSize || tr.SubchannelSize != cdsector.SubchannelSize {
		t.Errorf("track 1 = %+v", tr)
	}

	data, err := img.ReadSector(70)
	if err != nil || !bytes.Equal(data, fixture.Payload(70, cdsector.RawSize)) {
		t.Errorf("ReadSector(70) = %d bytes, %v", len(data), err)
	}
	long, err := img.ReadSectorsLong(3, 1)
	if err != nil || !bytes.Equal(long, fixture.Frame(image.TrackMode1, 3)) {
		t.Errorf("ReadSectorsLong(3) = %d bytes, %v", len(long), err)
	}
	q, err := img.ReadSectorTag(42, image.TagCDSubchannelQ)
	if err != nil || !bytes.Equal(q, fixture.Sub(42)[12:24]) {
		t.Errorf("ReadSectorTag(Q) = %x, %v", q, err)
	}
}

func TestMultiSession(t *testing.T) {
	t.Parallel()

	img := open(t, fixture.Alcohol(t, "disc", []fixture.Track{
		{Type: image.TrackAudio, Sectors: 10, Session: 1},
		{Type: image.TrackMode2Form1, Sectors: 20, Session: 2},
	}, fixture.AlcoholOptions{}))
	sessions := img.Sessions()
	if len(sessions) != 2 || sessions[1].Start != 10 || sessions[1].End != 29 {
		t.Fatalf("Sessions() = %+v", sessions)
	}
	got, err := img.ReadSector(10)
	if err != nil || !bytes.Equal(got, fixture.Payload(10+6750+4500+150, 2048)) {
		t.Errorf("ReadSector(10) = %d bytes, %v", len(got), err)
	}
	sub, err := img.ReadSectorTag(10, image.TagCDSubHeader)
	if err != nil || len(sub) != 8 {
		t.Errorf("ReadSectorTag(subheader) = %x, %v", sub, err)
	}
}

func TestDataFileName(t *testing.T) {
	t.Parallel()

	for _, wide := range []bool{false, true} {
		files := fixture.Alcohol(t, "disc", tracks, fixture.AlcoholOptions{DataName: "Tÿpe.mdf", Wide: wide})
		img := open(t, files)
		if img.Info().Sectors != 100 {
			t.Errorf("wide=%v: Sectors = %d", wide, img.Info().Sectors)
		}
		if got := img.Header().(*alcohol.Descriptor).Filename; got != "Tÿpe.mdf" {
			t.Errorf("wide=%v: file name = %q", wide, got)
		}
	}
}

func TestDVD(t *testing.T) {
	t.Parallel()

	img := open(t, fixture.Alcohol(t, "disc", []fixture.Track{{Type: image.TrackData, Sectors: 32}},
		fixture.AlcoholOptions{Medium: alcohol.MediumDVDROM}))
	info := img.Info()
	if info.MediaType != image.MediaDVDROM || info.Sectors != 32 || info.SectorSize != 2048 {
		t.Errorf("Info() = %+v", info)
	}
	got, err := img.ReadSector(31)
	if err != nil || !bytes.Equal(got, fixture.Payload(31, 2048)) {
		t.Errorf("ReadSector(31) = %d bytes, %v", len(got), err)
	}
	if _, err := img.ReadSectorsLong(0, 1); !errors.Is(err, image.ErrUnsupportedVariant) {
		t.Errorf("ReadSectorsLong() error = %v, want ErrUnsupportedVariant", err)
	}
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()

	good := fixture.Alcohol(t, "disc", tracks, fixture.AlcoholOptions{})
	mds := good["disc.mds"]
	badMode := bytes.Clone(mds)
	// First data track block: header, one session, three lead-in blocks.
	badMode[alcohol.HeaderSize+alcohol.SessionSize+3*alcohol.TrackSize] = 0xB7
	badSessions := bytes.Clone(mds)
	badSessions[alcohol.HeaderSize+10] = 0xFF

	tests := []struct {
		name  string
		files fixture.Files
		want  error
	}{
		{"missing data file", good.Without("disc.mdf"), image.ErrCorruptStructure},
		{"short data file", fixture.Files{"disc.mds": mds, "disc.mdf": good["disc.mdf"][:1000]}, image.ErrCorruptStructure},
		{"unknown track mode", fixture.Files{"disc.mds": badMode, "disc.mdf": good["disc.mdf"]}, image.ErrUnsupportedVariant},
		{"track blocks past the end", fixture.Files{"disc.mds": badSessions, "disc.mdf": good["disc.mdf"]}, image.ErrCorruptStructure},
		{"truncated header", fixture.Files{"disc.mds": mds[:40]}, image.ErrTruncatedInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := alcohol.New().Open(tt.files.Source("disc.mds"))
			if !errors.Is(err, tt.want) {
				t.Errorf("Open() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	mds := fixture.Alcohol(t, "disc", tracks, fixture.AlcoholOptions{})["disc.mds"]
	h, err := alcohol.DecodeHeader(mds)
	if err != nil {
		t.Fatalf("DecodeHeader() error = %v", err)
	}
	enc, err := alcohol.EncodeHeader(h)
	if err != nil {
		t.Fatalf("EncodeHeader() error = %v", err)
	}
	if !bytes.Equal(enc, mds[:alcohol.HeaderSize]) {
		t.Error("EncodeHeader(DecodeHeader(x)) != x")
	}
}

func FuzzOpen(f *testing.F) {
	f.Add(fixture.Alcohol(f, "disc", tracks, fixture.AlcoholOptions{})["disc.mds"])
	f.Add([]byte(alcohol.Signature))
	mdf := make([]byte, 100*cdsector.RawSize)
	f.Fuzz(func(t *testing.T, data []byte) {
		files := fixture.Files{"disc.mds": data, "disc.mdf": mdf}
		src := files.Source("disc.mds")
		if !alcohol.New().Identify(src) {
			return
		}
		img, err := alcohol.New().Open(src)
		if err != nil {
			return
		}
		defer func() { _ = img.Close() }()
		_, _ = img.ReadSector(0)
	})
}
