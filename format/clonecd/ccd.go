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

package clonecd

import (
	"bufio"
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ZaparooProject/go-mediaimage/image"
)

// Points in the TOC with special meaning.
const (
	pointFirstTrack = 0xA0
	pointLeadOut    = 0xA2
)

// Control field bits.
const controlData = 0x04

// maxEntries bounds the number of TOC entries parsed from a descriptor.
const maxEntries = 1000

// Descriptor is a parsed .ccd file.
type Descriptor struct {
	Tracks              map[int]TrackSection
	Catalog             string
	Entries             []Entry
	Version             int
	TocEntries          int
	Sessions            int
	CDTextLength        int
	DataTracksScrambled bool
}

// Entry is one [Entry n] section: a raw TOC entry.
type Entry struct {
	Session int
	Point   int
	ADR     int
	Control int
	TrackNo int
	ALBA    int64
	PLBA    int64
	PMin    int
	PSec    int
	PFrame  int
}

// TrackSection is one [TRACK n] section.
type TrackSection struct {
	Indexes map[int]int64
	Mode    int
	HasMode bool
}

// ParseDescriptor parses the text of a .ccd file.
func ParseDescriptor(data []byte) (*Descriptor, error) {
	d := &Descriptor{Tracks: map[int]TrackSection{}}
	entries := map[int]*Entry{}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	section := ""
	seenHeader := false
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return nil, fmt.Errorf("%w: line %d: unterminated section %q", image.ErrCorruptStructure, lineNo, line)
			}
			section = strings.ToLower(strings.TrimSpace(line[1 : len(line)-1]))
			if section == "clonecd" {
				seenHeader = true
			}
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("%w: line %d: expected key=value, got %q", image.ErrCorruptStructure, lineNo, line)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		var err error
		switch {
		case section == "clonecd":
			if key == "version" {
				d.Version, err = parseInt(value)
			}
		case section == "disc":
			err = d.setDisc(key, value)
		case strings.HasPrefix(section, "entry "):
			var n int
			if n, err = parseInt(strings.TrimPrefix(section, "entry ")); err != nil {
				break
			}
			e := entries[n]
			if e == nil {
				if len(entries) >= maxEntries {
					return nil, fmt.Errorf("%w: more than %d TOC entries", image.ErrCorruptStructure, maxEntries)
				}
				e = &Entry{}
				entries[n] = e
			}
			err = e.set(key, value)
		case strings.HasPrefix(section, "track "):
			var n int
			if n, err = parseInt(strings.TrimPrefix(section, "track ")); err != nil {
				break
			}
			err = d.setTrack(n, key, value)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %s: %w", image.ErrCorruptStructure, lineNo, key, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", image.ErrCorruptStructure, err)
	}
	if !seenHeader {
		return nil, fmt.Errorf("%w: no [CloneCD] section", image.ErrNotThisFormat)
	}

	keys := make([]int, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		d.Entries = append(d.Entries, *entries[k])
	}
	return d, nil
}

func (d *Descriptor) setDisc(key, value string) error {
	var err error
	switch key {
	case "tocentries":
		d.TocEntries, err = parseInt(value)
	case "sessions":
		d.Sessions, err = parseInt(value)
	case "datatracksscrambled":
		var v int
		v, err = parseInt(value)
		d.DataTracksScrambled = v != 0
	case "cdtextlength":
		d.CDTextLength, err = parseInt(value)
	case "catalog":
		d.Catalog = value
	}
	return err
}

func (d *Descriptor) setTrack(n int, key, value string) error {
	tr := d.Tracks[n]
	if tr.Indexes == nil {
		tr.Indexes = map[int]int64{}
	}
	switch {
	case key == "mode":
		v, err := parseInt(value)
		if err != nil {
			return err
		}
		tr.Mode, tr.HasMode = v, true
	case strings.HasPrefix(key, "index"):
		idx, err := parseInt(strings.TrimSpace(strings.TrimPrefix(key, "index")))
		if err != nil {
			return err
		}
		v, err := strconv.ParseInt(value, 0, 64)
		if err != nil {
			return err
		}
		tr.Indexes[idx] = v
	}
	d.Tracks[n] = tr
	return nil
}

func (e *Entry) set(key, value string) error {
	if key == "alba" || key == "plba" {
		v, err := strconv.ParseInt(value, 0, 64)
		if err != nil {
			return err
		}
		if key == "alba" {
			e.ALBA = v
		} else {
			e.PLBA = v
		}
		return nil
	}
	fields := map[string]*int{
		"session": &e.Session, "point": &e.Point, "adr": &e.ADR, "control": &e.Control,
		"trackno": &e.TrackNo, "pmin": &e.PMin, "psec": &e.PSec, "pframe": &e.PFrame,
	}
	dst, ok := fields[key]
	if !ok {
		return nil
	}
	v, err := parseInt(value)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func parseInt(s string) (int, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return 0, err //nolint:wrapcheck // wrapped with the line number by the caller
	}
	return int(v), nil
}
