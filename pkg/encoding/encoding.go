// Copyright (C) 2021  Antonio Lassandro

// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.

// This program is distributed in the hope that it will be useful, but WITHOUT
// ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or
// FITNESS FOR A PARTICULAR PURPOSE.  See the GNU General Public License for
// more details.

// You should have received a copy of the GNU General Public License along
// with this program.  If not, see <http://www.gnu.org/licenses/>.

package encoding

import (
	"encoding/binary"
	"errors"
	"io"
	"strconv"
	"strings"
)

// DecodeHex decodes a hexadecimal string in the formats: 0xFFFF, xFFFF
func DecodeHex(s string) (int32, error) {
	if i := strings.IndexAny(s, "xX"); i == 0 {
		s = "0" + s
	} else if i != 1 {
		return 0, errors.New("invalid hex string")
	}

	result, err := strconv.ParseUint(s, 0, 32)

	if err != nil {
		return 0, err
	}

	return int32(result), nil
}

// DecodeInt decodes a base-10 string in the formats: #123, 123, -123
func DecodeInt(s string) (int32, error) {
	if i := strings.Index(s, "#"); i == 0 {
		s = s[1:]
	}

	result, err := strconv.ParseInt(s, 10, 32)

	if err != nil {
		return 0, err
	}

	return int32(result), nil
}

// DecodeWord decodes either literal format.
func DecodeWord(s string) (int32, error) {
	if strings.ContainsAny(s, "xX") {
		return DecodeHex(s)
	}
	return DecodeInt(s)
}

// WriteWords encodes a word slice as a big-endian int32 stream.
func WriteWords(w io.Writer, words []int32) error {
	scratch := make([]byte, 4)
	for _, word := range words {
		binary.BigEndian.PutUint32(scratch, uint32(word))
		if _, err := w.Write(scratch); err != nil {
			return err
		}
	}
	return nil
}

// ReadWords decodes a big-endian int32 stream until EOF.
func ReadWords(r io.Reader) ([]int32, error) {
	var words []int32
	scratch := make([]byte, 4)

	for {
		_, err := io.ReadFull(r, scratch)

		if err == io.EOF {
			return words, nil
		} else if err != nil {
			return nil, err
		}

		words = append(words, int32(binary.BigEndian.Uint32(scratch)))
	}
}
