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
	"image"
	"image/color"
	"io"
	"os"

	"golang.org/x/image/tiff"

	"github.com/mlnoga/hdrlight/internal/field"
)

// Reads a grayscale field from the TIFF file with the given name
func ReadTIFFFile(fileName string) (*field.Field, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	f, err := ReadTIFF(bufio.NewReader(file))
	if err != nil {
		return nil, err
	}
	f.FileName = fileName
	return f, nil
}

// Reads a 2D field from a TIFF stream. Color images are converted to 16-bit luminance.
// Sample values are in [0, 65535]
func ReadTIFF(r io.Reader) (*field.Field, error) {
	t, err := tiff.Decode(r)
	if err != nil {
		return nil, err
	}
	bounds := t.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	f := field.New([]int{width, height})
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.Gray16Model.Convert(t.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
			f.Data[y*width+x] = float32(c.Y)
		}
	}
	return f, nil
}

// Writes the central 2D slice of the field to a 16-bit grayscale TIFF file, using the given min, max and gamma
func WriteTIFF16File(f *field.Field, fileName string, min, max, gamma float32) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err := WriteTIFF16(writer, f, min, max, gamma); err != nil {
		return err
	}
	return writer.Flush()
}

// Writes the central 2D slice of the field to 16-bit grayscale TIFF, using the given min, max and gamma
func WriteTIFF16(writer io.Writer, f *field.Field, min, max, gamma float32) error {
	data, width, height := CentralSlice(f)
	img := image.NewGray16(image.Rect(0, 0, width, height))
	stretch := newStretch(min, max, gamma)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray16(x, y, color.Gray16{Y: uint16(stretch(data[y*width+x]) * 65535)})
		}
	}
	return tiff.Encode(writer, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}
