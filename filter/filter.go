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

// Package filter unwraps compressed streams and archives so that the image
// inside them can be read like any other source. Gzip and xz streams are
// decompressed into memory; zip, 7z and RAR archives expose their members,
// with the remaining members available as siblings of the chosen one.
package filter

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/ZaparooProject/go-mediaimage/codec"
	"github.com/ZaparooProject/go-mediaimage/image"
	"github.com/ZaparooProject/go-mediaimage/source"
	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"
)

// MaxFilteredSize bounds the decompressed size of a stream or archive member.
const MaxFilteredSize = 4 << 30

// ErrTooLarge is returned when decompressed data exceeds MaxFilteredSize.
var ErrTooLarge = errors.New("decompressed data too large")

var errStreamHeader = errors.New("stream header")

// Kind is a recognised container type.
type Kind int

// Container kinds.
const (
	KindNone Kind = iota
	KindGzip
	KindXz
	KindZip
	KindSevenZip
	KindRar
)

var kindNames = map[Kind]string{
	KindNone:     "none",
	KindGzip:     "gzip",
	KindXz:       "xz",
	KindZip:      "zip",
	KindSevenZip: "7z",
	KindRar:      "rar",
}

func (k Kind) String() string {
	return kindNames[k]
}

var signatures = []struct {
	sig  codec.Signature
	kind Kind
}{
	{codec.NewSignature(0, "\x1f\x8b"), KindGzip},
	{codec.NewSignature(0, "\xfd7zXZ\x00"), KindXz},
	{codec.NewSignature(0, "PK\x03\x04", "PK\x05\x06"), KindZip},
	{codec.NewSignature(0, "7z\xbc\xaf\x27\x1c"), KindSevenZip},
	{codec.NewSignature(0, "Rar!\x1a\x07"), KindRar},
}

// Detect identifies the container type of src by its leading bytes.
func Detect(src image.Source) Kind {
	prefix := codec.Prefix(src, 8)
	for _, s := range signatures {
		if s.sig.Match(prefix) {
			return s.kind
		}
	}
	return KindNone
}

// Accept reports whether a candidate looks like a supported image.
type Accept func(image.Source) bool

// Open returns the image source held by src. Plain sources are returned
// unchanged, as are sources whose stream header fails to decode after a
// signature match. For archives, the first member accept admits is chosen;
// a nil accept admits the first member.
func Open(src image.Source, accept Accept) (image.Source, error) {
	switch kind := Detect(src); kind {
	case KindGzip, KindXz:
		out, err := decompress(src, kind)
		if errors.Is(err, errStreamHeader) {
			return src, nil
		}
		return out, err
	case KindZip, KindSevenZip, KindRar:
		arc, err := openArchive(src, kind)
		if err != nil {
			return nil, err
		}
		return pick(arc, src.Name(), accept)
	default:
		return src, nil
	}
}

func decompress(src image.Source, kind Kind) (image.Source, error) {
	sr := io.NewSectionReader(src, 0, src.Size())
	var (
		r   io.Reader
		ext string
	)
	switch kind {
	case KindGzip:
		gz, err := gzip.NewReader(sr)
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %w", errStreamHeader, err)
		}
		defer func() { _ = gz.Close() }()
		r, ext = gz, ".gz"
	default:
		xr, err := xz.NewReader(sr)
		if err != nil {
			return nil, fmt.Errorf("%w: xz: %w", errStreamHeader, err)
		}
		r, ext = xr, ".xz"
	}
	data, err := readBounded(r)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", kind, src.Name(), err)
	}

	name := src.Name()
	if strings.EqualFold(path.Ext(name), ext) {
		name = name[:len(name)-len(ext)]
	}
	return source.WithSiblings(name, data, func(sibling string) (image.Source, error) {
		return openCompressedSibling(src, sibling)
	}), nil
}

// openCompressedSibling resolves a companion of a decompressed stream,
// preferring a compressed copy next to the original.
func openCompressedSibling(parent image.Source, name string) (image.Source, error) {
	var firstErr error
	for _, candidate := range []string{name + ".gz", name + ".xz", name} {
		sib, err := image.OpenSibling(parent, candidate)
		if err != nil {
			if firstErr == nil || candidate == name {
				firstErr = err
			}
			continue
		}
		out, err := Open(sib, nil)
		if out != sib {
			_ = image.CloseSource(sib)
		}
		return out, err
	}
	return nil, firstErr
}

func readBounded(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, MaxFilteredSize+1))
	if err != nil {
		return nil, image.Decompression(err)
	}
	if n > MaxFilteredSize {
		return nil, ErrTooLarge
	}
	return buf.Bytes(), nil
}
