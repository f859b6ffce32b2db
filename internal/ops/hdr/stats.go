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

package hdr

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/mlnoga/hdrlight/internal/field"
	"github.com/mlnoga/hdrlight/internal/ops"
	"github.com/mlnoga/hdrlight/internal/stats"
)

// Logs statistics of each input, optionally appending them to a CSV file.
// Takes n inputs, produces n unchanged outputs
type OpStats struct {
	ops.OpUnaryBase
	NumSamples    int    `json:"numSamples"`    // sample size for median and MAD, 0 for the default
	HistogramBins int    `json:"histogramBins"` // if >0, also estimate mode and spread from a histogram fit
	FileName      string `json:"fileName"`      // optional CSV output
	mutex         sync.Mutex
	written       int
}

var _ ops.Operator = (*OpStats)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpStatsDefault() }) } // register the operator for JSON decoding

func NewOpStatsDefault() *OpStats { return NewOpStats(0, 256, "") }

func NewOpStats(numSamples, histogramBins int, fileName string) *OpStats {
	op := &OpStats{
		OpUnaryBase:   ops.OpUnaryBase{OpBase: ops.OpBase{Type: "stats", Active: true}},
		NumSamples:    numSamples,
		HistogramBins: histogramBins,
		FileName:      fileName,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpStats) UnmarshalJSON(data []byte) error {
	def := NewOpStatsDefault()
	type defaults struct {
		ops.OpBase
		NumSamples    int    `json:"numSamples"`
		HistogramBins int    `json:"histogramBins"`
		FileName      string `json:"fileName"`
	}
	d := defaults{def.OpBase, def.NumSamples, def.HistogramBins, def.FileName}
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	op.OpBase, op.NumSamples, op.HistogramBins, op.FileName = d.OpBase, d.NumSamples, d.HistogramBins, d.FileName
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpStats) Apply(f *field.Field, c *ops.Context) (result *field.Field, err error) {
	if !op.Active {
		return f, nil
	}
	if err := c.CheckPath(op.FileName); err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	s := stats.CalcExtended(f.Data, op.NumSamples)
	fmt.Fprintf(c.Log, "%d: %s field with %v\n", f.ID, f.DimensionsToString(), s)

	mode, spread := float32(0), float32(0)
	if op.HistogramBins > 0 {
		mode, spread, err = stats.HistogramLocScale(f.Data, op.HistogramBins)
		if err != nil {
			fmt.Fprintf(c.Log, "%d: Warning: histogram fit failed: %s\n", f.ID, err.Error())
		} else {
			fmt.Fprintf(c.Log, "%d: Histogram mode %.6g spread %.6g\n", f.ID, mode, spread)
		}
	}

	if op.FileName != "" {
		if err := op.appendCSV(f, s, mode, spread); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Appends a line to the CSV file, truncating it and writing the header on first use
func (op *OpStats) appendCSV(f *field.Field, s *stats.Stats, mode, spread float32) error {
	op.mutex.Lock() // lock so a single thread is active
	defer op.mutex.Unlock()

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if op.written == 0 {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	file, err := os.OpenFile(op.FileName, flags, 0666)
	if err != nil {
		return fmt.Errorf("%d: error opening statistics file %s: %w", f.ID, op.FileName, err)
	}
	defer file.Close()

	if op.written == 0 {
		fmt.Fprintf(file, "ID,FileName,Size,%s,Mode,Spread\n", s.ToCSVHeader())
	}
	if _, err := fmt.Fprintf(file, "%d,%s,%s,%s,%.6g,%.6g\n",
		f.ID, f.FileName, f.DimensionsToString(), s.ToCSVLine(), mode, spread); err != nil {
		return err
	}
	op.written++
	return nil
}
