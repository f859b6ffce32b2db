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

// Package fits reads and writes scalar fields as FITS files, and exports
// previews of them as TIFF, JPEG and Radiance HDR images.
// FITS spec here:   https://fits.gsfc.nasa.gov/standard40/fits_standard40aa-le.pdf
// FITS primer here: https://fits.gsfc.nasa.gov/fits_primer.html
package fits

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

const fitsBlockSize int = 2880 // Block size of FITS header and data units
const HeaderLineSize int = 80  // Line size of a FITS header

var reParser *regexp.Regexp = compileRE() // Regexp parser for FITS header lines

// FITS header data
type Header struct {
	Bools    map[string]bool
	Ints     map[string]int64
	Floats   map[string]float64
	Strings  map[string]string
	Dates    map[string]string
	Comments []string
	History  []string
	End      bool
	Length   int
}

// Creates a FITS header initialized with empty maps and arrays
func NewHeader() *Header {
	return &Header{
		Bools:   make(map[string]bool),
		Ints:    make(map[string]int64),
		Floats:  make(map[string]float64),
		Strings: make(map[string]string),
		Dates:   make(map[string]string),
	}
}

// Removes the integer value with the given key from the header and returns it
func (h *Header) PopInt(key string) (int64, error) {
	if val, ok := h.Ints[key]; ok {
		delete(h.Ints, key)
		return val, nil
	}
	return 0, fmt.Errorf("FITS header does not contain integer key %s", key)
}

// Removes the numeric value with the given key from the header and returns it
func (h *Header) PopFloat(key string) (float64, error) {
	if val, ok := h.Ints[key]; ok {
		delete(h.Ints, key)
		return float64(val), nil
	} else if val, ok := h.Floats[key]; ok {
		delete(h.Floats, key)
		return val, nil
	}
	return 0, fmt.Errorf("FITS header does not contain numeric key %s", key)
}

// Removes the numeric value with the given key from the header and returns it, or the default if absent
func (h *Header) PopFloatOr(key string, def float64) float64 {
	if val, err := h.PopFloat(key); err == nil {
		return val
	}
	return def
}

func (h *Header) read(r io.Reader, id int, logWriter io.Writer) error {
	buf := make([]byte, fitsBlockSize)

	for h.Length = 0; !h.End; {
		// read next header unit
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("%d: reading FITS header: %w", id, err)
		}
		h.Length += fitsBlockSize

		// parse all lines in this header unit
		for lineNo := 0; lineNo < fitsBlockSize/HeaderLineSize && !h.End; lineNo++ {
			line := buf[lineNo*HeaderLineSize : (lineNo+1)*HeaderLineSize]
			subValues := reParser.FindSubmatch(line)
			if subValues == nil {
				fmt.Fprintf(logWriter, "%d: Warning: Cannot parse '%s', ignoring\n", id, string(line))
			} else {
				h.readLine(reParser.SubexpNames(), subValues, id, lineNo, logWriter)
			}
		}
	}
	return nil
}

func (h *Header) readLine(subNames []string, subValues [][]byte, id, lineNo int, logWriter io.Writer) {
	key := ""
	// ignore index 0 which is the whole line
	for i := 1; i < len(subNames); i++ {
		if subValues[i] == nil || len(subNames[i]) != 1 {
			continue
		}
		switch c := subNames[i][0]; c {
		case 'E':
			h.End = true
		case 'H':
			h.History = append(h.History, strings.TrimRight(string(subValues[i]), " "))
		case 'C':
			h.Comments = append(h.Comments, strings.TrimRight(string(subValues[i]), " "))
		case 'k':
			key = string(subValues[i])
		case 'b':
			if len(subValues[i]) > 0 {
				v := subValues[i][0]
				h.Bools[key] = v == 't' || v == 'T'
			}
		case 'i':
			if val, err := strconv.ParseInt(string(subValues[i]), 10, 64); err == nil {
				h.Ints[key] = val
			}
		case 'f':
			// Fortran style exponents are legal in FITS
			s := strings.ReplaceAll(string(subValues[i]), "D", "E")
			if val, err := strconv.ParseFloat(s, 64); err == nil {
				h.Floats[key] = val
			}
		case 's':
			h.Strings[key] = strings.TrimRight(strings.ReplaceAll(string(subValues[i]), "''", "'"), " ")
		case 'd':
			h.Dates[key] = string(subValues[i])
		case 'c':
			// ignore value comments
		default:
			fmt.Fprintf(logWriter, "%d:%d: Warning: Unknown token '%s'\n", id, lineNo, string(c))
		}
	}
}

// Build regexp parser for FITS header lines
func compileRE() *regexp.Regexp {
	white := "\\s+"
	whiteOpt := "\\s*"
	whiteLine := white

	rest := ".*"
	histLine := "HISTORY" + white + "(?P<H>" + rest + ")"
	commLine := "COMMENT" + white + "(?P<C>" + rest + ")"
	endLine := "(?P<E>END)" + whiteOpt

	key := "(?P<k>[A-Z0-9_-]+)"
	equals := "="

	boo := "(?P<b>[TF])"
	inte := "(?P<i>[+-]?[0-9]+)"
	floa := "(?P<f>[+-]?[0-9]*\\.[0-9]*(?:[ED][-+]?[0-9]+)?)"
	stri := "'(?P<s>(?:[^']|'')*)'"
	date := "(?P<d>[0-9]{1,4}-?[012][0-9]-?[0123][0-9]T[012][0-9]:?[0-5][0-9]:?[0-5][0-9].?[0-9]*)"
	val := "(?:" + boo + "|" + inte + "|" + floa + "|" + stri + "|" + date + ")"

	commOpt := "(?:/(?P<c>.*))?"
	keyLine := key + whiteOpt + equals + whiteOpt + val + whiteOpt + commOpt

	lineRe := "^(?:" + whiteLine + "|" + histLine + "|" + commLine + "|" + keyLine + "|" + endLine + ")$"
	return regexp.MustCompile(lineRe)
}
