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

package image

import (
	"io"

	"github.com/go-logr/logr"
)

// DefaultCacheSize is the number of decoded blocks an image keeps in memory.
const DefaultCacheSize = 16

// OpenOptions carries the settings every plugin's Open understands.
type OpenOptions struct {
	Logger    logr.Logger
	Owned     []io.Closer
	CacheSize int
}

// OpenOption configures OpenOptions.
type OpenOption func(*OpenOptions)

// WithLogger routes warnings (V(0)) and structure traces (V(1)) to l.
func WithLogger(l logr.Logger) OpenOption {
	return func(o *OpenOptions) {
		o.Logger = l
	}
}

// WithCacheSize sets the block cache capacity. Values below 1 are ignored.
func WithCacheSize(n int) OpenOption {
	return func(o *OpenOptions) {
		if n > 0 {
			o.CacheSize = n
		}
	}
}

// WithOwned hands c to the image, which closes it on Close.
func WithOwned(c io.Closer) OpenOption {
	return func(o *OpenOptions) {
		o.Owned = append(o.Owned, c)
	}
}

// NewOpenOptions applies opts over the defaults.
func NewOpenOptions(opts ...OpenOption) OpenOptions {
	o := OpenOptions{
		Logger:    logr.Discard(),
		CacheSize: DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
