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

package diskcopy42

import (
	"github.com/ZaparooProject/go-mediaimage/codec"
	"github.com/ZaparooProject/go-mediaimage/image"
	"github.com/ZaparooProject/go-mediaimage/internal/resfork"
	"github.com/go-logr/logr"
)

// VersionResource is the id of the 'vers' resource Disk Copy stamps on the
// images it writes.
const VersionResource = 1

// readVersion replaces the application version with the one recorded in
// the image's resource fork, when the source has one.
func readVersion(rf image.ResourceForker, info *image.Info, log logr.Logger) {
	src, err := rf.ResourceFork()
	if err != nil {
		log.V(2).Info("no resource fork", "reason", err.Error())
		return
	}
	defer func() { _ = image.CloseSource(src) }()
	if src.Size() > resfork.MaxForkSize {
		log.Info("resource fork too large, ignoring it", "size", src.Size())
		return
	}
	data, err := codec.ReadAt(src, 0, int(src.Size()))
	if err != nil {
		log.Error(err, "read resource fork")
		return
	}
	fork, err := resfork.Parse(data)
	if err != nil {
		log.Info("ignoring unreadable resource fork", "error", err.Error())
		return
	}
	res, err := fork.Resource("vers", VersionResource)
	if err != nil {
		log.V(1).Info("resource fork has no version", "types", fork.Types())
		return
	}
	v, err := resfork.DecodeVersion(res)
	if err != nil {
		log.Info("ignoring unreadable version resource", "error", err.Error())
		return
	}
	info.ApplicationVersion = v.String()
	if v.Long != "" {
		info.Comments = v.Long
	}
}
