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

package fixture

import (
	"encoding/binary"

	"github.com/ZaparooProject/go-mediaimage/internal/resfork"
)

// Resource is one entry of a synthetic resource fork.
type Resource struct {
	Type string
	ID   int16
	Data []byte
}

// ResourceFork builds a resource fork holding res, grouped by type in order
// of first appearance.
//
//nolint:gosec // fixtures are small
func ResourceFork(res ...Resource) []byte {
	be := binary.BigEndian
	const dataOff = 256

	data := make([]byte, 0)
	offsets := make([]uint32, len(res))
	for i, r := range res {
		offsets[i] = uint32(len(data))
		data = be.AppendUint32(data, uint32(len(r.Data)))
		data = append(data, r.Data...)
	}

	var types []string
	byType := map[string][]int{}
	for i, r := range res {
		if _, ok := byType[r.Type]; !ok {
			types = append(types, r.Type)
		}
		byType[r.Type] = append(byType[r.Type], i)
	}

	typeList := make([]byte, 2, 2+8*len(types))
	be.PutUint16(typeList, uint16(len(types)-1)) // 0xFFFF for an empty fork
	refOff := 2 + 8*len(types)
	var refs []byte
	for _, typ := range types {
		var code [4]byte
		copy(code[:], typ)
		typeList = append(typeList, code[:]...)
		typeList = be.AppendUint16(typeList, uint16(len(byType[typ])-1))
		typeList = be.AppendUint16(typeList, uint16(refOff+len(refs)))
		for _, i := range byType[typ] {
			refs = be.AppendUint16(refs, uint16(res[i].ID))
			refs = be.AppendUint16(refs, 0xFFFF)
			refs = be.AppendUint32(refs, offsets[i])
			refs = be.AppendUint32(refs, 0)
		}
	}

	mapOff := dataOff + len(data)
	resMap := make([]byte, 28)
	be.PutUint16(resMap[24:], 28)
	be.PutUint16(resMap[26:], uint16(28+len(typeList)+len(refs)))
	resMap = append(resMap, typeList...)
	resMap = append(resMap, refs...)

	out := make([]byte, dataOff)
	be.PutUint32(out[0:], dataOff)
	be.PutUint32(out[4:], uint32(mapOff))
	be.PutUint32(out[8:], uint32(len(data)))
	be.PutUint32(out[12:], uint32(len(resMap)))
	copy(resMap, out[:16])
	out = append(out, data...)
	return append(out, resMap...)
}

// AppleDouble wraps a resource fork in an AppleDouble file, after a finder
// info entry.
//
//nolint:gosec // fixtures are small
func AppleDouble(fork []byte) []byte {
	be := binary.BigEndian
	const (
		entries    = 2
		finderInfo = 9
		infoSize   = 32
	)
	header := 26 + 12*entries
	out := be.AppendUint32(nil, resfork.AppleDoubleMagic)
	out = be.AppendUint32(out, 0x00020000)
	out = append(out, make([]byte, 16)...)
	out = be.AppendUint16(out, entries)
	out = be.AppendUint32(out, finderInfo)
	out = be.AppendUint32(out, uint32(header))
	out = be.AppendUint32(out, infoSize)
	out = be.AppendUint32(out, resfork.EntryResourceFork)
	out = be.AppendUint32(out, uint32(header+infoSize))
	out = be.AppendUint32(out, uint32(len(fork)))
	out = append(out, make([]byte, infoSize)...)
	return append(out, fork...)
}

// Version builds a 'vers' resource.
func Version(major, minorBug, stage, nonRelease uint8, short, long string) []byte {
	out := []byte{major, minorBug, stage, nonRelease, 0, 0, byte(len(short))}
	out = append(out, short...)
	out = append(out, byte(len(long)))
	return append(out, long...)
}
