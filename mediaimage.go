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

// Package mediaimage detects and opens disk and disc image containers. A
// Registry tries its plugins in order; the first one whose Identify
// accepts the source opens it.
package mediaimage

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/ZaparooProject/go-mediaimage/filter"
	"github.com/ZaparooProject/go-mediaimage/format/alcohol"
	"github.com/ZaparooProject/go-mediaimage/format/apridisk"
	"github.com/ZaparooProject/go-mediaimage/format/chd"
	"github.com/ZaparooProject/go-mediaimage/format/clonecd"
	"github.com/ZaparooProject/go-mediaimage/format/diskcopy42"
	"github.com/ZaparooProject/go-mediaimage/format/partclone"
	"github.com/ZaparooProject/go-mediaimage/image"
	"github.com/ZaparooProject/go-mediaimage/source"
	"github.com/go-logr/logr"
	"github.com/spf13/afero"
)

// DefaultPlugins returns a fresh set of every built-in plugin in detection
// order.
func DefaultPlugins() []image.Plugin {
	return []image.Plugin{
		diskcopy42.New(),
		clonecd.New(),
		alcohol.New(),
		apridisk.New(),
		partclone.New(),
		chd.New(),
	}
}

// Registry dispatches sources to plugins.
type Registry struct {
	plugins []image.Plugin
	log     logr.Logger
	filters bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithPlugins replaces the plugin list; detection follows the given order.
func WithPlugins(plugins ...image.Plugin) Option {
	return func(r *Registry) {
		r.plugins = slices.Clone(plugins)
	}
}

// WithLogger sets the logger for detection traces. Plugins opened through
// the registry use it too unless the open options carry their own.
func WithLogger(l logr.Logger) Option {
	return func(r *Registry) {
		r.log = l
	}
}

// WithFilters controls whether Open and OpenFs look inside compressed
// streams and archives. Filters are on by default.
func WithFilters(enabled bool) Option {
	return func(r *Registry) {
		r.filters = enabled
	}
}

// NewRegistry returns a registry of DefaultPlugins unless WithPlugins is
// given.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		plugins: DefaultPlugins(),
		log:     logr.Discard(),
		filters: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Plugins returns the plugins in detection order.
func (r *Registry) Plugins() []image.Plugin {
	return slices.Clone(r.plugins)
}

// Lookup returns the plugin called name.
func (r *Registry) Lookup(name string) (image.Plugin, bool) {
	for _, p := range r.plugins {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// Identify returns the first plugin that accepts src, or
// image.ErrNoMatchingFormat.
func (r *Registry) Identify(src image.Source) (image.Plugin, error) {
	for _, p := range r.plugins {
		if identify(p, src) {
			r.log.V(1).Info("format identified", "plugin", p.Name(), "source", src.Name())
			return p, nil
		}
		r.log.V(1).Info("format rejected", "plugin", p.Name(), "source", src.Name())
	}
	return nil, fmt.Errorf("%w: %s", image.ErrNoMatchingFormat, src.Name())
}

// identify treats a panicking Identify as a rejection.
func identify(p image.Plugin, src image.Source) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return p.Identify(src)
}

// DetectAndOpen opens src with the first plugin that accepts it.
func (r *Registry) DetectAndOpen(src image.Source, opts ...image.OpenOption) (image.Image, error) {
	p, err := r.Identify(src)
	if err != nil {
		return nil, err
	}
	opts = append([]image.OpenOption{image.WithLogger(r.log)}, opts...)
	img, err := p.Open(src, opts...)
	if err != nil {
		return nil, fmt.Errorf("open %s as %s: %w", src.Name(), p.Name(), err)
	}
	return img, nil
}

// Open maps the file at path and opens the image it holds. The returned
// image owns the file and closes it on Close.
func (r *Registry) Open(path string, opts ...image.OpenOption) (image.Image, error) {
	f, err := source.Open(path)
	if err != nil {
		return nil, err
	}
	return r.openOwned(f, f, opts)
}

// OpenFs is Open on an afero filesystem.
func (r *Registry) OpenFs(fsys afero.Fs, path string, opts ...image.OpenOption) (image.Image, error) {
	f, err := source.OpenFs(fsys, path)
	if err != nil {
		return nil, err
	}
	return r.openOwned(f, f, opts)
}

func (r *Registry) openOwned(src image.Source, owned io.Closer, opts []image.OpenOption) (image.Image, error) {
	inner := src
	if r.filters {
		var err error
		inner, err = filter.Open(src, func(s image.Source) bool {
			_, err := r.Identify(s)
			return err == nil
		})
		if err != nil {
			_ = owned.Close()
			return nil, fmt.Errorf("filter %s: %w", src.Name(), err)
		}
	}

	closers := []io.Closer{owned}
	if c, ok := inner.(io.Closer); ok && inner != src {
		closers = append([]io.Closer{c}, closers...)
	}
	for _, c := range closers {
		opts = append(opts, image.WithOwned(c))
	}
	img, err := r.DetectAndOpen(inner, opts...)
	if err != nil {
		return nil, errors.Join(err, image.CloseAll(closers...))
	}
	return img, nil
}

// Open opens the image at path with the default registry.
func Open(path string, opts ...image.OpenOption) (image.Image, error) {
	return NewRegistry().Open(path, opts...)
}
