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

package filter

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/ZaparooProject/go-mediaimage/image"
	"github.com/ZaparooProject/go-mediaimage/source"
	"github.com/bodgit/sevenzip"
	"github.com/nwaples/rardecode/v2"
)

// probeSize is how much of a member is decompressed to identify it.
const probeSize = 64 << 10

// Member describes one file inside an archive.
type Member struct {
	Name string
	Size int64
}

type archive interface {
	members() []Member
	open(name string) (io.ReadCloser, error)
}

func openArchive(src image.Source, kind Kind) (archive, error) {
	switch kind {
	case KindZip:
		r, err := zip.NewReader(src, src.Size())
		if err != nil {
			return nil, fmt.Errorf("%w: zip: %w", image.ErrCorruptStructure, err)
		}
		return zipArchive{r}, nil
	case KindSevenZip:
		r, err := sevenzip.NewReader(src, src.Size())
		if err != nil {
			return nil, fmt.Errorf("%w: 7z: %w", image.ErrCorruptStructure, err)
		}
		return sevenZipArchive{r}, nil
	case KindRar:
		return newRarArchive(src)
	default:
		return nil, fmt.Errorf("%w: %s is not an archive", image.ErrUnsupportedVariant, kind)
	}
}

// Members lists the files of an archive source.
func Members(src image.Source) ([]Member, error) {
	kind := Detect(src)
	arc, err := openArchive(src, kind)
	if err != nil {
		return nil, err
	}
	return arc.members(), nil
}

func pick(arc archive, archiveName string, accept Accept) (image.Source, error) {
	for _, m := range arc.members() {
		if m.Size > MaxFilteredSize {
			continue
		}
		if accept != nil {
			probe, err := probeMember(arc, m)
			if err != nil || !accept(probe) {
				continue
			}
		}
		return materialize(arc, m.Name)
	}
	return nil, fmt.Errorf("%w: nothing recognisable in %s", image.ErrNoMatchingFormat, archiveName)
}

// probeMember returns a source holding the first probeSize bytes of a member
// but reporting its full size.
func probeMember(arc archive, m Member) (image.Source, error) {
	rc, err := arc.open(m.Name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	buf := make([]byte, min(m.Size, probeSize))
	n, err := io.ReadFull(rc, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, image.Decompression(err)
	}
	return &prefixSource{Memory: source.Bytes(m.Name, buf[:n]), size: m.Size}, nil
}

type prefixSource struct {
	*source.Memory
	size int64
}

func (p *prefixSource) Size() int64 {
	return p.size
}

func materialize(arc archive, name string) (image.Source, error) {
	rc, err := arc.open(name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	data, err := readBounded(rc)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", name, err)
	}
	dir := path.Dir(name)
	return source.WithSiblings(name, data, func(sibling string) (image.Source, error) {
		want := path.Join(dir, path.Base(sibling))
		for _, m := range arc.members() {
			if strings.EqualFold(m.Name, want) {
				return materialize(arc, m.Name)
			}
		}
		return nil, fmt.Errorf("member %s: %w", want, fs.ErrNotExist)
	}), nil
}

type zipArchive struct {
	r *zip.Reader
}

func (z zipArchive) members() []Member {
	out := make([]Member, 0, len(z.r.File))
	for _, f := range z.r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		//nolint:gosec // member sizes fit in int64
		out = append(out, Member{Name: f.Name, Size: int64(f.UncompressedSize64)})
	}
	return out
}

func (z zipArchive) open(name string) (io.ReadCloser, error) {
	for _, f := range z.r.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("open %s in zip: %w", name, err)
			}
			return rc, nil
		}
	}
	return nil, fmt.Errorf("member %s: %w", name, fs.ErrNotExist)
}

type sevenZipArchive struct {
	r *sevenzip.Reader
}

func (s sevenZipArchive) members() []Member {
	out := make([]Member, 0, len(s.r.File))
	for _, f := range s.r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		//nolint:gosec // member sizes fit in int64
		out = append(out, Member{Name: f.Name, Size: int64(f.UncompressedSize)})
	}
	return out
}

func (s sevenZipArchive) open(name string) (io.ReadCloser, error) {
	for _, f := range s.r.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("open %s in 7z: %w", name, err)
			}
			return rc, nil
		}
	}
	return nil, fmt.Errorf("member %s: %w", name, fs.ErrNotExist)
}

// rarArchive rescans the stream for every open since RAR members can only
// be read sequentially.
type rarArchive struct {
	src  image.Source
	list []Member
}

func newRarArchive(src image.Source) (*rarArchive, error) {
	a := &rarArchive{src: src}
	r, err := rardecode.NewReader(io.NewSectionReader(src, 0, src.Size()))
	if err != nil {
		return nil, fmt.Errorf("%w: rar: %w", image.ErrCorruptStructure, err)
	}
	for {
		h, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: rar header: %w", image.ErrCorruptStructure, err)
		}
		if h.IsDir {
			continue
		}
		a.list = append(a.list, Member{Name: h.Name, Size: h.UnPackedSize})
	}
	return a, nil
}

func (a *rarArchive) members() []Member {
	return a.list
}

func (a *rarArchive) open(name string) (io.ReadCloser, error) {
	r, err := rardecode.NewReader(io.NewSectionReader(a.src, 0, a.src.Size()))
	if err != nil {
		return nil, fmt.Errorf("%w: rar: %w", image.ErrCorruptStructure, err)
	}
	for {
		h, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: rar header: %w", image.ErrCorruptStructure, err)
		}
		if h.Name == name {
			return io.NopCloser(r), nil
		}
	}
	return nil, fmt.Errorf("member %s: %w", name, fs.ErrNotExist)
}
