// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package fits

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/mlnoga/hdrlight/internal/field"
)

// Writes the field to a FITS file with the given name. Compresses with gzip if the
// suffix is .gz or .gzip
func WriteFile(f *field.Field, fileName string) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	lExt := strings.ToLower(path.Ext(fileName))
	if lExt == ".gz" || lExt == ".gzip" {
		gz := gzip.NewWriter(writer)
		if err := Write(gz, f); err != nil {
			return err
		}
		if err := gz.Close(); err != nil {
			return err
		}
	} else if err := Write(writer, f); err != nil {
		return err
	}
	return writer.Flush()
}

// Writes the field as 32-bit floating point FITS, with its geometry in the CRPIXn, CRVALn and CDELTn keys.
// NaNs are replaced with zeros for compatibility with other software
func Write(w io.Writer, f *field.Field) error {
	// Build header in string buffer
	sb := strings.Builder{}
	writeBool(&sb, "SIMPLE", true, "FITS standard 4.0")
	writeInt(&sb, "BITPIX", -32, "32-bit floating point")
	writeInt(&sb, "NAXIS", len(f.Size), "[1] Number of axes")
	for i, n := range f.Size {
		writeInt(&sb, fmt.Sprintf("NAXIS%d", i+1), n, "[1] Axis size")
	}
	for i := range f.Size {
		writeFloat(&sb, fmt.Sprintf("CRPIX%d", i+1), 1, "Reference sample")
		writeFloat(&sb, fmt.Sprintf("CRVAL%d", i+1), f.Origin[i], "Position of reference sample")
		writeFloat(&sb, fmt.Sprintf("CDELT%d", i+1), f.Spacing[i], "Sample spacing")
	}
	if f.FileName != "" {
		writeString(&sb, "FILENAME", f.FileName, "Source file")
	}
	writeEnd(&sb)
	padBlock(&sb, ' ')

	if _, err := io.WriteString(w, sb.String()); err != nil {
		return err
	}
	if err := writeFloat32Array(w, f.Data); err != nil {
		return err
	}

	// Pad data unit with zeros
	if rem := (len(f.Data) * 4) % fitsBlockSize; rem > 0 {
		_, err := w.Write(make([]byte, fitsBlockSize-rem))
		return err
	}
	return nil
}

// Pads the builder to a multiple of the FITS block size
func padBlock(sb *strings.Builder, pad rune) {
	if rem := sb.Len() % fitsBlockSize; rem > 0 {
		sb.WriteString(strings.Repeat(string(pad), fitsBlockSize-rem))
	}
}

func clip(key, comment string) (string, string) {
	if len(key) > 8 {
		key = key[0:8]
	}
	if len(comment) > 47 {
		comment = comment[0:47]
	}
	return key, comment
}

// Writes a FITS header boolean value
func writeBool(w io.Writer, key string, value bool, comment string) {
	key, comment = clip(key, comment)
	v := "F"
	if value {
		v = "T"
	}
	fmt.Fprintf(w, "%-8s= %20s / %-47s", key, v, comment)
}

// Writes a FITS header integer value
func writeInt(w io.Writer, key string, value int, comment string) {
	key, comment = clip(key, comment)
	fmt.Fprintf(w, "%-8s= %20d / %-47s", key, value, comment)
}

// Writes a FITS header floating point value. Always contains a decimal point, so it parses back as float
func writeFloat(w io.Writer, key string, value float64, comment string) {
	key, comment = clip(key, comment)
	s := strconv.FormatFloat(value, 'G', -1, 64)
	if !strings.Contains(s, ".") {
		if e := strings.IndexByte(s, 'E'); e >= 0 {
			s = s[:e] + ".0" + s[e:]
		} else {
			s += ".0"
		}
	}
	fmt.Fprintf(w, "%-8s= %20s / %-47s", key, s, comment)
}

// Writes a FITS header string value, truncated to fit a single line
func writeString(w io.Writer, key, value, comment string) {
	key, comment = clip(key, comment)
	value = strings.ReplaceAll(value, "'", "''")
	if len(value) > 68 {
		value = value[:68]
		if strings.HasSuffix(value, "'") && !strings.HasSuffix(value, "''") {
			value = value[:67]
		}
	}
	line := fmt.Sprintf("%-8s= '%-8s'", key, value)
	if len(line)+3+len(comment) <= HeaderLineSize {
		line += " / " + comment
	}
	fmt.Fprintf(w, "%-80s", line)
}

// Writes a FITS header end record
func writeEnd(w io.Writer) {
	fmt.Fprintf(w, "END%s", strings.Repeat(" ", HeaderLineSize-3))
}

// Writes FITS binary body data in network byte order, replacing NaNs with zeros
func writeFloat32Array(w io.Writer, data []float32) error {
	buf := make([]byte, bufLen)

	for block := 0; block < len(data); block += bufLen >> 2 {
		size := len(data) - block
		if size > bufLen>>2 {
			size = bufLen >> 2
		}
		for offset := 0; offset < size; offset++ {
			d := data[block+offset]
			if math.IsNaN(float64(d)) {
				d = 0
			}
			val := math.Float32bits(d)
			buf[(offset<<2)+0] = byte(val >> 24)
			buf[(offset<<2)+1] = byte(val >> 16)
			buf[(offset<<2)+2] = byte(val >> 8)
			buf[(offset<<2)+3] = byte(val)
		}
		if _, err := w.Write(buf[:size<<2]); err != nil {
			return err
		}
	}
	return nil
}
