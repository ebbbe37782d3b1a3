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

package source

import (
	"fmt"
	"path"
	"strings"

	"github.com/ZaparooProject/go-mediaimage/image"
	"github.com/ZaparooProject/go-mediaimage/internal/resfork"
)

// AppleDoublePrefix marks the companion holding a file's Mac OS metadata
// on filesystems without forks.
const AppleDoublePrefix = "._"

// ResourceFork returns the resource fork stored in the file's AppleDouble
// companion.
func (f *File) ResourceFork() (image.Source, error) {
	return appleDoubleFork(f)
}

// ResourceFork returns the resource fork stored in the file's AppleDouble
// companion.
func (f *FsFile) ResourceFork() (image.Source, error) {
	return appleDoubleFork(f)
}

// ResourceFork returns the resource fork of the AppleDouble companion the
// sibling function resolves.
func (m *Memory) ResourceFork() (image.Source, error) {
	return appleDoubleFork(m)
}

type forkedSource interface {
	image.Source
	image.SiblingOpener
}

func appleDoubleFork(src forkedSource) (image.Source, error) {
	base := path.Base(strings.ReplaceAll(src.Name(), "\\", "/"))
	sib, err := src.OpenSibling(AppleDoublePrefix + base)
	if err != nil {
		return nil, fmt.Errorf("resource fork of %s: %w", src.Name(), err)
	}
	defer func() { _ = image.CloseSource(sib) }()
	fork, err := resfork.FromAppleDouble(sib, sib.Size())
	if err != nil {
		return nil, fmt.Errorf("resource fork of %s: %w", src.Name(), err)
	}
	return Bytes(src.Name()+"/rsrc", fork), nil
}
