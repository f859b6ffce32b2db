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
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math"
	"os"

	"github.com/mdouchement/hdr"
	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/mdouchement/hdr/hdrcolor"
	"github.com/mdouchement/hdr/tmo"

	"github.com/mlnoga/hdrlight/internal/field"
)

// Names of the tone mapping operators available for previews
var ToneMappers = []string{"drago03", "durand", "linear", "reinhard05"}

// Central slice of a field as a gray HDR image. Negative and NaN samples read as zero
type sliceImage struct {
	data          []float32
	width, height int
}

var _ hdr.Image = sliceImage{}

func newSliceImage(f *field.Field) sliceImage {
	data, width, height := CentralSlice(f)
	return sliceImage{data: data, width: width, height: height}
}

// Implement image.Image
func (s sliceImage) ColorModel() color.Model { return hdrcolor.RGBModel }
func (s sliceImage) Bounds() image.Rectangle { return image.Rect(0, 0, s.width, s.height) }
func (s sliceImage) At(x, y int) color.Color { return s.HDRAt(x, y) }

// Implement hdr.Image
func (s sliceImage) Size() int { return s.width * s.height }
func (s sliceImage) HDRAt(x, y int) hdrcolor.Color {
	v := float64(s.data[y*s.width+x])
	if !(v > 0) || math.IsInf(v, 0) {
		v = 0
	}
	return hdrcolor.RGB{R: v, G: v, B: v}
}

// Writes the central slice of the field to a Radiance RGBE file with the given name
func WriteRadianceFile(f *field.Field, fileName string) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err := WriteRadiance(writer, f); err != nil {
		return err
	}
	return writer.Flush()
}

// Writes the central slice of the field as Radiance RGBE, with equal color channels
func WriteRadiance(w io.Writer, f *field.Field) error {
	return rgbe.Encode(w, newSliceImage(f))
}

// Returns the tone mapping operator with the given name for the image
func newToneMapper(name string, img hdr.Image) (tmo.ToneMappingOperator, error) {
	switch name {
	case "drago03":
		return tmo.NewDefaultDrago03(img), nil
	case "durand":
		return tmo.NewDefaultDurand(img), nil
	case "linear":
		return tmo.NewLinear(img), nil
	case "reinhard05":
		return tmo.NewDefaultReinhard05(img), nil
	}
	return nil, fmt.Errorf("unknown tone mapper '%s', wanted one of %v", name, ToneMappers)
}

// Writes a JPEG preview of the central slice of the field, compressed by the named global tone mapping operator
func WriteToneMappedJPG(w io.Writer, f *field.Field, operator string, quality int) error {
	op, err := newToneMapper(operator, newSliceImage(f))
	if err != nil {
		return err
	}
	return jpeg.Encode(w, op.Perform(), &jpeg.Options{Quality: quality})
}

// Writes a tone mapped JPEG preview of the central slice of the field to the file with the given name
func WriteToneMappedJPGFile(f *field.Field, fileName, operator string, quality int) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err := WriteToneMappedJPG(writer, f, operator, quality); err != nil {
		return err
	}
	return writer.Flush()
}
