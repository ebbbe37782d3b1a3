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

// Command mediainfo detects a disk or disc image and prints its metadata.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ZaparooProject/go-mediaimage"
	"github.com/ZaparooProject/go-mediaimage/image"
	"github.com/ZaparooProject/go-mediaimage/iso9660"
	"github.com/cheggaaa/pb/v3"
	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
)

const appVersion = "0.1.0"

// dumpChunk is the number of sectors read per call while dumping.
const dumpChunk = 64

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	input       string
	dump        string
	jsonOutput  bool
	verify      bool
	listFormats bool
	version     bool
	verbosity   int
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	var o options
	fs := flag.NewFlagSet("mediainfo", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.input, "i", "", "input image path (required)")
	fs.StringVar(&o.dump, "dump", "", "write every sector's user data to this file")
	fs.BoolVar(&o.jsonOutput, "json", false, "output as JSON")
	fs.BoolVar(&o.verify, "verify", false, "check the image's stored checksums")
	fs.BoolVar(&o.listFormats, "list-formats", false, "list supported formats and exit")
	fs.BoolVar(&o.version, "version", false, "print version and exit")
	fs.IntVar(&o.verbosity, "v", 0, "log verbosity")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: mediainfo -i <file> [options]\n\n")
		fmt.Fprintf(stderr, "Detects a disk or disc image and prints its metadata.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  mediainfo -i game.chd\n")
		fmt.Fprintf(stderr, "  mediainfo -i disc.ccd -verify -json\n")
		fmt.Fprintf(stderr, "  mediainfo -i floppy.image.gz -dump floppy.bin\n")
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return &o, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		return 2
	}

	if o.version {
		fmt.Fprintf(stdout, "mediainfo version %s\n", appVersion)
		return 0
	}

	log := newLogger(stderr, o.verbosity)
	reg := mediaimage.NewRegistry(mediaimage.WithLogger(log))

	if o.listFormats {
		fmt.Fprintln(stdout, "Supported formats:")
		for _, p := range reg.Plugins() {
			fmt.Fprintf(stdout, "  %-12s %s\n", p.Name(), strings.Join(p.Extensions(), " "))
		}
		return 0
	}

	if o.input == "" {
		fmt.Fprintf(stderr, "Error: input file required (-i)\n")
		return 1
	}

	img, err := reg.Open(o.input)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening image: %v\n", err)
		return 1
	}
	defer func() { _ = img.Close() }()

	rep := newReport(img, log)
	status := 0
	if o.verify {
		if err := rep.verify(img); err != nil {
			fmt.Fprintf(stderr, "Error verifying image: %v\n", err)
			status = 1
		} else if rep.Verified != nil && !*rep.Verified {
			status = 1
		}
	}

	if o.jsonOutput {
		if err := outputJSON(stdout, rep); err != nil {
			fmt.Fprintf(stderr, "Error encoding JSON: %v\n", err)
			return 1
		}
	} else {
		outputText(stdout, rep)
	}

	if o.dump != "" {
		if err := dump(img, o.dump, stderr); err != nil {
			fmt.Fprintf(stderr, "Error dumping sectors: %v\n", err)
			return 1
		}
	}
	return status
}

func newLogger(w io.Writer, verbosity int) logr.Logger {
	return funcr.New(func(prefix, args string) {
		if prefix != "" {
			fmt.Fprintf(w, "%s: %s\n", prefix, args)
			return
		}
		fmt.Fprintln(w, args)
	}, funcr.Options{Verbosity: verbosity})
}

type report struct {
	Format   string          `json:"format"`
	Info     image.Info      `json:"info"`
	Sessions []image.Session `json:"sessions,omitempty"`
	Tracks   []image.Track   `json:"tracks,omitempty"`
	Volume   *iso9660.Volume `json:"iso9660,omitempty"`
	Verified *bool           `json:"verified,omitempty"`
}

func newReport(img image.Image, log logr.Logger) *report {
	rep := &report{Format: img.Format(), Info: img.Info()}
	if o, ok := img.(image.OpticalImage); ok {
		rep.Sessions = o.Sessions()
		rep.Tracks = o.Tracks()
	}
	vol, err := iso9660.Probe(img)
	switch {
	case err == nil:
		rep.Volume = vol
	case errors.Is(err, iso9660.ErrNoVolume):
		log.V(1).Info("no ISO9660 volume", "reason", err.Error())
	default:
		log.Error(err, "probe ISO9660 volume")
	}
	return rep
}

func (r *report) verify(img image.Image) error {
	v, ok := img.(image.Verifier)
	if !ok {
		return fmt.Errorf("%w: %s images carry no checksums", image.ErrUnsupportedVariant, img.Format())
	}
	good, err := v.Verify()
	if err != nil {
		return err
	}
	r.Verified = &good
	return nil
}

func outputJSON(w io.Writer, rep *report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func outputText(w io.Writer, rep *report) {
	info := rep.Info
	fmt.Fprintf(w, "Format: %s\n", rep.Format)
	fmt.Fprintf(w, "Media: %s\n", info.MediaType)
	fmt.Fprintf(w, "Sectors: %d x %d bytes\n", info.Sectors, info.SectorSize)
	fmt.Fprintf(w, "Image Size: %d bytes\n", info.ImageSize)
	if info.Cylinders != 0 {
		fmt.Fprintf(w, "Geometry: %d/%d/%d\n", info.Cylinders, info.Heads, info.SectorsPerTrack)
	}
	if info.Application != "" {
		fmt.Fprintf(w, "Application: %s %s\n", info.Application, info.ApplicationVersion)
	}
	for _, f := range []struct{ key, value string }{
		{"Creator", info.Creator},
		{"Title", info.MediaTitle},
		{"Comments", info.Comments},
	} {
		if f.value != "" {
			fmt.Fprintf(w, "%s: %s\n", f.key, f.value)
		}
	}
	if !info.CreationTime.IsZero() {
		fmt.Fprintf(w, "Created: %s\n", info.CreationTime.Format("2006-01-02 15:04:05"))
	}
	if len(info.ReadableSectorTags) > 0 {
		tags := make([]string, len(info.ReadableSectorTags))
		for i, t := range info.ReadableSectorTags {
			tags[i] = string(t)
		}
		fmt.Fprintf(w, "Tags: %s\n", strings.Join(tags, ", "))
	}

	if len(rep.Sessions) > 0 {
		fmt.Fprintln(w, "\nSessions:")
		for _, s := range rep.Sessions {
			fmt.Fprintf(w, "  %d: tracks %d-%d, sectors %d-%d\n", s.Sequence, s.StartTrack, s.EndTrack, s.Start, s.End)
		}
	}
	if len(rep.Tracks) > 0 {
		fmt.Fprintln(w, "\nTracks:")
		for _, t := range rep.Tracks {
			fmt.Fprintf(w, "  %2d %-10s sectors %d-%d", t.Sequence, t.Type, t.Start, t.End)
			if t.Pregap != 0 {
				fmt.Fprintf(w, " pregap %d", t.Pregap)
			}
			fmt.Fprintf(w, " (%d/%d bytes)\n", t.SectorSize, t.RawSize)
		}
	}

	if v := rep.Volume; v != nil {
		fmt.Fprintln(w, "\nISO9660:")
		fmt.Fprintf(w, "  Volume: %s\n", v.VolumeID)
		if v.SystemID != "" {
			fmt.Fprintf(w, "  System: %s\n", v.SystemID)
		}
		if v.PublisherID != "" {
			fmt.Fprintf(w, "  Publisher: %s\n", v.PublisherID)
		}
		if v.PreparerID != "" {
			fmt.Fprintf(w, "  Preparer: %s\n", v.PreparerID)
		}
		if v.Created != "" {
			fmt.Fprintf(w, "  UUID: %s\n", v.UUID())
		}
		fmt.Fprintf(w, "  Blocks: %d x %d bytes\n", v.SpaceSize, v.BlockSize)
	}

	if rep.Verified != nil {
		if *rep.Verified {
			fmt.Fprintln(w, "\nVerify: OK")
		} else {
			fmt.Fprintln(w, "\nVerify: MISMATCH")
		}
	}
}

// dump writes the user data of every sector to path.
func dump(img image.Image, path string, progress io.Writer) (err error) {
	out, err := os.Create(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return fmt.Errorf("create dump file: %w", err)
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	total := img.Info().Sectors
	bar := pb.New64(int64(total)) //nolint:gosec // sector counts fit in int64
	bar.SetTemplate(pb.Full)
	bar.SetWriter(progress)
	bar.Start()
	defer bar.Finish()

	for addr := uint64(0); addr < total; {
		n := uint32(min(total-addr, dumpChunk)) //nolint:gosec // at most dumpChunk
		data, err := img.ReadSectors(addr, n)
		if err != nil {
			return fmt.Errorf("read sectors %d-%d: %w", addr, addr+uint64(n)-1, err)
		}
		if _, err := out.Write(data); err != nil {
			return fmt.Errorf("write dump file: %w", err)
		}
		addr += uint64(n)
		bar.Add64(int64(n))
	}
	return nil
}
