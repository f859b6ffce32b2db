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
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/mlnoga/hdrlight/internal/field"
)

const bufLen int = 16 * 1024 // input buffer length for reading from file, a multiple of all value sizes

// Reads a field from the file with the given name. Reads TIFF if the suffix is .tif or .tiff,
// otherwise FITS. Decompresses gzip if .gz or .gzip suffix is present
func ReadFile(fileName string, id int, logWriter io.Writer) (*field.Field, error) {
	lExt := strings.ToLower(path.Ext(fileName))
	if lExt == ".tif" || lExt == ".tiff" {
		f, err := ReadTIFFFile(fileName)
		if err != nil {
			return nil, err
		}
		f.ID = id
		return f, nil
	}

	file, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var r io.Reader = file
	if lExt == ".gz" || lExt == ".gzip" {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	}

	f, _, err := Read(r, id, logWriter)
	if err != nil {
		return nil, err
	}
	f.FileName = fileName
	return f, nil
}

// Reads a field from a FITS stream. Geometry is taken from the CRPIXn, CRVALn and CDELTn keys,
// defaulting to origin 0 and spacing 1. Returns the field and the remaining header entries
func Read(r io.Reader, id int, logWriter io.Writer) (*field.Field, *Header, error) {
	h := NewHeader()
	if err := h.read(r, id, logWriter); err != nil {
		return nil, nil, err
	}

	// check mandatory fields as per standard
	if !h.Bools["SIMPLE"] {
		return nil, nil, fmt.Errorf("%d: Not a valid FITS file; SIMPLE=T missing in header", id)
	}
	delete(h.Bools, "SIMPLE")

	bitpix, err := h.PopInt("BITPIX")
	if err != nil {
		return nil, nil, fmt.Errorf("%d: %w", id, err)
	}
	naxis, err := h.PopInt("NAXIS")
	if err != nil {
		return nil, nil, fmt.Errorf("%d: %w", id, err)
	}
	if naxis < 1 {
		return nil, nil, fmt.Errorf("%d: FITS file has no data axes", id)
	}

	size := make([]int, naxis)
	origin := make([]float64, naxis)
	spacing := make([]float64, naxis)
	for i := range size {
		suffix := strconv.Itoa(i + 1)
		n, err := h.PopInt("NAXIS" + suffix)
		if err != nil {
			return nil, nil, fmt.Errorf("%d: %w", id, err)
		}
		if n < 1 {
			return nil, nil, fmt.Errorf("%d: invalid axis size NAXIS%s=%d", id, suffix, n)
		}
		size[i] = int(n)
		refPixel := h.PopFloatOr("CRPIX"+suffix, 1)
		refValue := h.PopFloatOr("CRVAL"+suffix, 0)
		spacing[i] = h.PopFloatOr("CDELT"+suffix, 1)
		origin[i] = refValue + (1-refPixel)*spacing[i]
	}
	bzero := h.PopFloatOr("BZERO", 0)
	bscale := h.PopFloatOr("BSCALE", 1)

	f := field.NewWithGeometry(size, origin, spacing, nil)
	f.ID = id
	if err := readData(r, f.Data, int(bitpix), bzero, bscale, id, logWriter); err != nil {
		return nil, nil, err
	}
	return f, h, nil
}

// Returns the size in bytes and a decoder for values of the given BITPIX
func decoderFor(bitpix int) (int, func(b []byte) float64, error) {
	be := binary.BigEndian
	switch bitpix {
	case 8:
		return 1, func(b []byte) float64 { return float64(b[0]) }, nil
	case 16:
		return 2, func(b []byte) float64 { return float64(int16(be.Uint16(b))) }, nil
	case 32:
		return 4, func(b []byte) float64 { return float64(int32(be.Uint32(b))) }, nil
	case 64:
		return 8, func(b []byte) float64 { return float64(int64(be.Uint64(b))) }, nil
	case -32:
		return 4, func(b []byte) float64 { return float64(math.Float32frombits(be.Uint32(b))) }, nil
	case -64:
		return 8, func(b []byte) float64 { return math.Float64frombits(be.Uint64(b)) }, nil
	}
	return 0, nil, fmt.Errorf("unknown BITPIX value %d", bitpix)
}

// Batched read of image data from the stream, converting from network byte order and applying bzero and bscale
func readData(r io.Reader, data []float32, bitpix int, bzero, bscale float64, id int, logWriter io.Writer) error {
	bytesPerValue, decode, err := decoderFor(bitpix)
	if err != nil {
		return fmt.Errorf("%d: %w", id, err)
	}
	if bitpix == 32 || bitpix == 64 || bitpix == -64 {
		fmt.Fprintf(logWriter, "%d: Warning: loss of precision converting BITPIX %d to float32 values\n", id, bitpix)
	}

	buf := make([]byte, bufLen)
	for dataIndex := 0; dataIndex < len(data); {
		n := (len(data) - dataIndex) * bytesPerValue
		if n > bufLen {
			n = bufLen
		}
		if _, err := io.ReadFull(r, buf[:n]); err != nil {
			return fmt.Errorf("%d: reading FITS data: %w", id, err)
		}
		for i := 0; i < n; i += bytesPerValue {
			data[dataIndex] = float32(decode(buf[i:i+bytesPerValue])*bscale + bzero)
			dataIndex++
		}
	}
	return nil
}
