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

// Package source provides the image.Source implementations: memory-mapped
// files, files on an afero filesystem, and in-memory buffers.
package source

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZaparooProject/go-mediaimage/image"
	"github.com/spf13/afero"
	"golang.org/x/exp/mmap"
)

// File is a memory-mapped file on the host filesystem.
type File struct {
	*mmap.ReaderAt
	path string
}

// Open maps the file at path.
func Open(path string) (*File, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &File{ReaderAt: r, path: path}, nil
}

// Size returns the file length.
func (f *File) Size() int64 {
	return int64(f.Len())
}

// Name returns the path the file was opened with.
func (f *File) Name() string {
	return f.path
}

// OpenSibling opens name in the same directory, matching case-insensitively
// when no exact match exists.
func (f *File) OpenSibling(name string) (image.Source, error) {
	dir := filepath.Dir(f.path)
	path := filepath.Join(dir, filepath.Base(name))
	if _, err := os.Stat(path); err != nil {
		entries, rerr := os.ReadDir(dir)
		if rerr != nil {
			return nil, fmt.Errorf("open sibling %s: %w", name, err)
		}
		path = ""
		for _, e := range entries {
			if strings.EqualFold(e.Name(), filepath.Base(name)) {
				path = filepath.Join(dir, e.Name())
				break
			}
		}
		if path == "" {
			return nil, fmt.Errorf("open sibling %s: %w", name, fs.ErrNotExist)
		}
	}
	return Open(path)
}

// FsFile is a file on an afero filesystem.
type FsFile struct {
	afero.File
	fs   afero.Fs
	path string
	size int64
}

// OpenFs opens path on fsys.
func OpenFs(fsys afero.Fs, path string) (*FsFile, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("open %s: is a directory", path)
	}
	return &FsFile{File: f, fs: fsys, path: path, size: st.Size()}, nil
}

// Size returns the file length at open time.
func (f *FsFile) Size() int64 {
	return f.size
}

// OpenSibling opens name in the same directory of the same filesystem.
func (f *FsFile) OpenSibling(name string) (image.Source, error) {
	dir := filepath.Dir(f.path)
	path := filepath.Join(dir, filepath.Base(name))
	if ok, _ := afero.Exists(f.fs, path); !ok {
		infos, err := afero.ReadDir(f.fs, dir)
		if err != nil {
			return nil, fmt.Errorf("open sibling %s: %w", name, err)
		}
		path = ""
		for _, info := range infos {
			if strings.EqualFold(info.Name(), filepath.Base(name)) {
				path = filepath.Join(dir, info.Name())
				break
			}
		}
		if path == "" {
			return nil, fmt.Errorf("open sibling %s: %w", name, fs.ErrNotExist)
		}
	}
	return OpenFs(f.fs, path)
}

// SiblingFunc resolves a companion of an in-memory source.
type SiblingFunc func(name string) (image.Source, error)

// Memory is an in-memory source.
type Memory struct {
	*bytes.Reader
	siblings SiblingFunc
	name     string
}

// Bytes returns a source over data.
func Bytes(name string, data []byte) *Memory {
	return &Memory{Reader: bytes.NewReader(data), name: name}
}

// WithSiblings returns a source over data whose companions are resolved by fn.
func WithSiblings(name string, data []byte, fn SiblingFunc) *Memory {
	m := Bytes(name, data)
	m.siblings = fn
	return m
}

// Name returns the name given at construction.
func (m *Memory) Name() string {
	return m.name
}

// OpenSibling resolves name through the sibling function.
func (m *Memory) OpenSibling(name string) (image.Source, error) {
	if m.siblings == nil {
		return nil, fmt.Errorf("open sibling %s: %w", name, fs.ErrNotExist)
	}
	return m.siblings(name)
}
