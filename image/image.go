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

// Package image defines the contracts shared by every media image format:
// the byte Source an image is read from, the Plugin that recognises and opens
// a format, and the Image handle that serves sectors, tags and metadata.
package image

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
)

// Source is a random-access byte source of known length.
// Plugins never assume a Source is backed by a real file.
type Source interface {
	io.ReaderAt
	Size() int64
	Name() string
}

// SiblingOpener is implemented by sources that can resolve companion files
// stored next to them (a CloneCD .img next to its .ccd, an Alcohol .mdf next
// to its .mds). Returned sources must be closed by the caller when they
// implement io.Closer.
type SiblingOpener interface {
	OpenSibling(name string) (Source, error)
}

// ResourceForker is implemented by sources that expose a secondary data
// stream, such as a classic Mac OS resource fork.
type ResourceForker interface {
	ResourceFork() (Source, error)
}

// Plugin recognises and opens one image format.
type Plugin interface {
	// Name returns a short stable identifier such as "diskcopy42".
	Name() string
	// Extensions returns the customary file extensions, lower case with dot.
	Extensions() []string
	// Identify reports whether src looks like this format. It reads only a
	// small prefix, never fails and never retains src.
	Identify(src Source) bool
	// Open parses the metadata of src and returns a ready image.
	Open(src Source, opts ...OpenOption) (Image, error)
}

// Image is an opened media image.
type Image interface {
	Format() string
	Info() Info
	// ReadSector returns the user data of one sector.
	ReadSector(addr uint64) ([]byte, error)
	// ReadSectors returns the user data of count consecutive sectors,
	// crossing track and file boundaries as needed.
	ReadSectors(addr uint64, count uint32) ([]byte, error)
	// ReadSectorTag returns the tag bytes of one sector.
	ReadSectorTag(addr uint64, tag SectorTag) ([]byte, error)
	io.Closer
}

// OpticalImage is implemented by images of track-structured optical media.
type OpticalImage interface {
	Image
	Tracks() []Track
	Sessions() []Session
	// ReadSectorsLong returns full 2352-byte frames.
	ReadSectorsLong(addr uint64, count uint32) ([]byte, error)
}

// Verifier is implemented by formats that carry their own checksums.
// A false result with a nil error means the stored checksum does not match.
type Verifier interface {
	Verify() (bool, error)
}

// HeaderProvider exposes the decoded on-disk header of a format.
type HeaderProvider interface {
	Header() any
}

// OpenSibling resolves a companion file of src. The exact name is tried
// first, then its lower and upper case spellings.
func OpenSibling(src Source, name string) (Source, error) {
	opener, ok := src.(SiblingOpener)
	if !ok {
		return nil, fmt.Errorf("open %q next to %q: %w", name, src.Name(), fs.ErrNotExist)
	}
	var firstErr error
	for _, candidate := range []string{name, strings.ToLower(name), strings.ToUpper(name)} {
		sib, err := opener.OpenSibling(candidate)
		if err == nil {
			return sib, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, fmt.Errorf("open %q next to %q: %w", name, src.Name(), firstErr)
}

// SiblingName replaces the extension of the source's base name with ext.
func SiblingName(src Source, ext string) string {
	base := path.Base(strings.ReplaceAll(src.Name(), "\\", "/"))
	return strings.TrimSuffix(base, path.Ext(base)) + ext
}

// CloseAll closes every non-nil closer and joins the errors.
func CloseAll(closers ...io.Closer) error {
	var errs []error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CloseSource closes src if it owns a resource.
func CloseSource(src Source) error {
	if c, ok := src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
