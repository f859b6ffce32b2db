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

package ops

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/pbnjay/memory"

	"github.com/mlnoga/hdrlight/internal/bilateral"
	"github.com/mlnoga/hdrlight/internal/field"
	"github.com/mlnoga/hdrlight/internal/fits"
	"github.com/mlnoga/hdrlight/internal/logging"
	"github.com/mlnoga/hdrlight/internal/stats"
)

// An execution context for operators. Operators run concurrently, so the log
// writer and progress hook must be safe for concurrent use
type Context struct {
	Log          io.Writer              // shared log output, e.g. a logging.Tee
	MemoryMB     int                    // memory.TotalMemory()/1024/1024
	GridMemoryMB int                    // MemoryMB*7/10, shared by concurrent bilateral grids
	MaxThreads   int                    `json:"maxThreads"`
	Sandboxed    bool                   // restrict file names to the current directory tree
	Progress     bilateral.ProgressFunc // optional progress hook
	ctx          context.Context
}

// Creates a context with limits taken from the machine. Writes to the log are serialized
func NewContext(log io.Writer) *Context {
	memoryMB := int(memory.TotalMemory() / 1024 / 1024)
	return &Context{
		Log:          logging.Synchronized(log),
		MemoryMB:     memoryMB,
		GridMemoryMB: memoryMB * 7 / 10,
		MaxThreads:   runtime.GOMAXPROCS(0),
	}
}

// Returns a shallow copy of the context which cancels operators with the given context
func (c *Context) WithContext(ctx context.Context) *Context {
	c2 := *c
	c2.ctx = ctx
	return &c2
}

// Returns the cancellation context, defaulting to context.Background()
func (c *Context) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// Returns the execution options for the core filters. The grid memory is
// split evenly among the given number of concurrent jobs
func (c *Context) Options(concurrentJobs int) bilateral.Options {
	if concurrentJobs < 1 {
		concurrentJobs = 1
	}
	return bilateral.Options{
		Workers:      c.MaxThreads,
		MemoryBudget: uint64(c.GridMemoryMB) * 1024 * 1024 / uint64(concurrentJobs),
		Progress:     c.Progress,
		Log:          c.Log,
	}
}

// A promise for a field. Returns a materialized field, or an error
type Promise func() (f *field.Field, err error)

// Materializes all promises with given concurrency limit
func MaterializeAll(ins []Promise, maxThreads int, forget bool) (outs []*field.Field, err error) {
	if len(ins) == 0 {
		return nil, nil
	}
	if maxThreads < 1 {
		maxThreads = 1
	}
	if !forget {
		outs = make([]*field.Field, len(ins))
	}
	limiter := make(chan bool, maxThreads)
	errs := make(chan error, len(ins))
	for i, in := range ins {
		limiter <- true
		go func(i int, theIn Promise) {
			defer func() { <-limiter }()
			f, err := theIn() // materialize the promise
			if err != nil {
				errs <- err
				return
			}
			if !forget {
				outs[i] = f
			}
			errs <- nil
		}(i, in)
	}
	for i := 0; i < cap(limiter); i++ { // wait for goroutines to finish
		limiter <- true
	}
	collected := []error{}
	for i := 0; i < len(ins); i++ {
		if e := <-errs; e != nil {
			collected = append(collected, e)
		}
	}
	return RemoveNils(outs), errors.Join(collected...)
}

// Remove nils from an array of fields, editing the underlying array in place
func RemoveNils(fs []*field.Field) []*field.Field {
	o := 0
	for i := 0; i < len(fs); i++ {
		if fs[i] != nil {
			fs[o] = fs[i]
			o++
		}
	}
	for i := o; i < len(fs); i++ {
		fs[i] = nil
	}
	return fs[:o]
}

// A general processing operator: takes n promises as inputs,
// and produces m promises as output or an error
type Operator interface {
	GetType() string
	IsActive() bool
	MakePromises(ins []Promise, c *Context) (outs []Promise, err error)
}

// Base type for operators, including type information for JSON serializing/deserializing
type OpBase struct {
	Type   string `json:"type"`
	Active bool   `json:"active"`
}

func (op *OpBase) GetType() string { return op.Type }
func (op *OpBase) IsActive() bool  { return op.Active }

// Factory method for operators. For JSON serializing/deserializing
type OperatorFactory func() Operator

// Mapping from operator type strings to factory method for the type
var operatorFactories = map[string]OperatorFactory{}

// Returns the operator factory for a given type string
func GetOperatorFactory(t string) OperatorFactory {
	return operatorFactories[t]
}

// Returns the sorted list of registered operator types
func GetOperatorTypes() []string {
	res := make([]string, 0, len(operatorFactories))
	for t := range operatorFactories {
		res = append(res, t)
	}
	sort.Strings(res)
	return res
}

// Registers a given type string for a given type of Operator, identified via an exemplar generator
func SetOperatorFactory(f OperatorFactory) {
	op := f()
	t := op.GetType()
	if GetOperatorFactory(t) != nil {
		panic(fmt.Sprintf("error: re-registering operator key %s\n", t))
	}
	operatorFactories[t] = f
}

// Decodes a single polymorphic operator from JSON, using the factory registered for its type
func UnmarshalOperator(raw []byte) (Operator, error) {
	var base OpBase
	if err := json.Unmarshal(raw, &base); err != nil {
		return nil, err
	}
	factory := GetOperatorFactory(base.Type)
	if factory == nil {
		return nil, fmt.Errorf("unknown operator type '%s' in raw JSON message '%s'", base.Type, string(raw))
	}
	op := factory()
	if err := json.Unmarshal(raw, op); err != nil {
		return nil, err
	}
	return op, nil
}

// A unary operator: given n promises as inputs,
// applies itself to each of them individually and returns n output promises or an error
type OperatorUnary interface {
	Operator
	Apply(f *field.Field, c *Context) (fOut *field.Field, err error)
}

// Abstract base type for unary operators. Uses golang workaround for abstract classes
// from https://golangbyexample.com/go-abstract-class/
type OpUnaryBase struct {
	OpBase
	Apply func(f *field.Field, c *Context) (fOut *field.Field, err error) `json:"-"`
}

func (op *OpUnaryBase) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) == 0 {
		return nil, fmt.Errorf("%s operator with %d inputs", op.Type, len(ins))
	}
	outs = make([]Promise, len(ins))
	for i, in := range ins {
		outs[i] = op.MakePromise(in, c)
	}
	return outs, nil
}

func (op *OpUnaryBase) MakePromise(in Promise, c *Context) (out Promise) {
	return func() (f *field.Field, err error) {
		if f, err = in(); err != nil {
			return nil, err
		}
		if f, err = op.Apply(f, c); err != nil {
			return nil, err
		}
		return f, nil
	}
}

// Load a single field from a single filename. Takes zero inputs, produces one output
type OpLoad struct {
	OpBase
	ID       int    `json:"id"`
	FileName string `json:"fileName"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpLoadDefault() }) } // register the operator for JSON decoding

func NewOpLoadDefault() *OpLoad { return NewOpLoad(0, "") }

func NewOpLoad(id int, fileName string) *OpLoad {
	return &OpLoad{
		OpBase:   OpBase{Type: "load", Active: true},
		ID:       id,
		FileName: fileName,
	}
}

// Load field from a file
func (op *OpLoad) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) > 0 {
		return nil, fmt.Errorf("%s operator with non-zero input", op.Type)
	}
	if err := c.CheckPath(op.FileName); err != nil {
		return nil, err
	}

	out := func() (f *field.Field, err error) {
		return op.Apply(c)
	}
	return []Promise{out}, nil
}

// Error for file names a sandboxed context must not read or write
var ErrOutsideSandbox = errors.New("filename outside current directory tree")

// Returns an error wrapping ErrOutsideSandbox if the context is sandboxed and the
// file name or prefix is not allowed. Operators check every file they read or write
func (c *Context) CheckPath(name string) error {
	if c.Sandboxed && !isPathAllowed(name) {
		return fmt.Errorf("%w, aborting: %s", ErrOutsideSandbox, name)
	}
	return nil
}

// Returns true if a path is considered safe, i.e. not an absolute path,
// and doesn't contain the ".." characters to change to a parent directory
func isPathAllowed(p string) bool {
	if filepath.IsAbs(p) {
		return false
	}
	if strings.Contains(p, "..") {
		return false
	}
	return true
}

func (op *OpLoad) Apply(c *Context) (result *field.Field, err error) {
	f, err := fits.ReadFile(op.FileName, op.ID, c.Log)
	if err != nil {
		return nil, err
	}

	s := stats.CalcBasic(f.Data)
	warning := ""
	if s.Max-s.Min < 1e-8 {
		warning = "; WARNING low dynamic range"
	}
	fmt.Fprintf(c.Log, "%d: Loaded %s field with %v from %s%s\n",
		f.ID, f.DimensionsToString(), s, f.FileName, warning)
	return f, nil
}

// Load many fields from a slice of filename patterns with wildcards.
// Takes zero inputs, produces n outputs in pattern order, sorted within each pattern
type OpLoadMany struct {
	OpBase
	FilePatterns []string `json:"filePatterns"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpLoadManyDefault() }) } // register the operator for JSON decoding

func NewOpLoadManyDefault() *OpLoadMany { return NewOpLoadMany(nil) }

func NewOpLoadMany(filePatterns []string) *OpLoadMany {
	return &OpLoadMany{
		OpBase:       OpBase{Type: "loadMany", Active: true},
		FilePatterns: filePatterns,
	}
}

// Turn filename wildcards into list of file load operators
func (op *OpLoadMany) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) > 0 {
		return nil, fmt.Errorf("%s operator with non-zero input", op.Type)
	}
	for _, pattern := range op.FilePatterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		for _, match := range matches {
			if c.Sandboxed && !isPathAllowed(match) {
				fmt.Fprintf(c.Log, "Pattern match outside current directory tree, skipping\n")
				continue
			}
			opLoad := NewOpLoad(len(outs), match)
			promises, err := opLoad.MakePromises(nil, c)
			if err != nil {
				return nil, err
			}
			outs = append(outs, promises...)
		}
	}
	if len(outs) == 0 {
		return nil, fmt.Errorf("%s operator with no files to load from pattern %v", op.Type, op.FilePatterns)
	}
	fmt.Fprintf(c.Log, "Found %d files.\n", len(outs))
	return outs, nil
}

// Saves given promise under a given filename, with pattern expansion for %d based on the field id.
// The format follows the suffix: FITS (optionally gzipped), JPEG or 16-bit TIFF of the central
// slice, or Radiance HDR. Takes one input, produces one output (the materialized but unchanged input)
type OpSave struct {
	OpUnaryBase
	FilePattern string  `json:"filePattern"`
	Gamma       float32 `json:"gamma"`      // display gamma for JPEG and TIFF
	FalseColor  bool    `json:"falseColor"` // false colour JPEG palette
	ToneMapper  string  `json:"toneMapper"` // optional global tone mapper for JPEG, one of fits.ToneMappers
}

func init() { SetOperatorFactory(func() Operator { return NewOpSaveDefault() }) } // register the operator for JSON decoding

// Default for JSON decoding, active unless stated otherwise. Saving is skipped while the pattern is empty
func NewOpSaveDefault() *OpSave {
	op := NewOpSave("")
	op.Active = true
	return op
}

func NewOpSave(filenamePattern string) *OpSave {
	op := OpSave{
		OpUnaryBase: OpUnaryBase{OpBase: OpBase{Type: "save", Active: filenamePattern != ""}},
		FilePattern: filenamePattern,
		Gamma:       1,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpSave) UnmarshalJSON(data []byte) error {
	type defaults OpSave
	def := defaults(*NewOpSaveDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpSave(def)
	op.OpUnaryBase.Apply = op.Apply
	return nil
}

// Returns the file name for the given field ID
func (op *OpSave) FileName(id int) string {
	if strings.Contains(op.FilePattern, "%d") {
		return fmt.Sprintf(op.FilePattern, id)
	}
	return op.FilePattern
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}

func (op *OpSave) Apply(f *field.Field, c *Context) (result *field.Field, err error) {
	if !op.Active || op.FilePattern == "" {
		return f, nil
	}
	fileName := op.FileName(f.ID)
	if err := c.CheckPath(fileName); err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	fnLower := strings.ToLower(fileName)

	if hasAnySuffix(fnLower, ".fits", ".fit", ".fts", ".fits.gz", ".fit.gz", ".fts.gz",
		".fits.gzip", ".fit.gzip", ".fts.gzip") {
		fmt.Fprintf(c.Log, "%d: Writing %s sample FITS to %s\n", f.ID, f.DimensionsToString(), fileName)
		err = fits.WriteFile(f, fileName)
	} else if hasAnySuffix(fnLower, ".jpeg", ".jpg") {
		if op.ToneMapper != "" {
			fmt.Fprintf(c.Log, "%d: Writing %s sample JPEG with %s tone mapping to %s\n",
				f.ID, f.DimensionsToString(), op.ToneMapper, fileName)
			err = fits.WriteToneMappedJPGFile(f, fileName, op.ToneMapper, 95)
		} else {
			palette := fits.Gray
			if op.FalseColor {
				palette = fits.FalseColor
			}
			min, max := stats.MinMax(f.Data)
			fmt.Fprintf(c.Log, "%d: Writing %s sample JPEG with range [%.4g,%.4g] to %s\n",
				f.ID, f.DimensionsToString(), min, max, fileName)
			err = fits.WriteJPGFile(f, fileName, min, max, op.Gamma, palette, 95)
		}
	} else if hasAnySuffix(fnLower, ".tif", ".tiff") {
		min, max := stats.MinMax(f.Data)
		fmt.Fprintf(c.Log, "%d: Writing %s sample 16-bit TIFF with range [%.4g,%.4g] to %s\n",
			f.ID, f.DimensionsToString(), min, max, fileName)
		err = fits.WriteTIFF16File(f, fileName, min, max, op.Gamma)
	} else if hasAnySuffix(fnLower, ".hdr") {
		fmt.Fprintf(c.Log, "%d: Writing %s sample Radiance HDR to %s\n", f.ID, f.DimensionsToString(), fileName)
		err = fits.WriteRadianceFile(f, fileName)
	} else {
		err = errors.New("unknown suffix")
	}
	if err != nil {
		return nil, fmt.Errorf("%d: error writing to file %s: %w", f.ID, fileName, err)
	}
	return f, nil
}

// Applies a sequence of operators to a promise. Number of inputs, outputs as per the chained steps
type OpSequence struct {
	OpBase
	Steps    []Operator        `json:"-"`     // the actual steps
	StepsRaw []json.RawMessage `json:"steps"` // helper for unmarshaling
}

func init() { SetOperatorFactory(func() Operator { return NewOpSequenceDefault() }) } // register the operator for JSON decoding

func NewOpSequenceDefault() *OpSequence { return NewOpSequence() }

func NewOpSequence(steps ...Operator) *OpSequence {
	return &OpSequence{
		OpBase: OpBase{Type: "seq", Active: len(steps) > 0},
		Steps:  steps,
	}
}

// Unmarshals a sequence of polymorphic operators from JSON.
// Uses temporary op.StepsRaw inspired by https://alexkappa.medium.com/json-polymorphism-in-go-4cade1e58ed1
func (op *OpSequence) UnmarshalJSON(b []byte) error {
	type alias OpSequence
	if err := json.Unmarshal(b, (*alias)(op)); err != nil {
		return err
	}
	op.Steps = nil
	for _, raw := range op.StepsRaw {
		step, err := UnmarshalOperator(raw)
		if err != nil {
			return err
		}
		op.Steps = append(op.Steps, step)
	}
	op.StepsRaw = nil
	return nil
}

// Appends one or more operators to the existing sequence
func (op *OpSequence) Append(steps ...Operator) {
	op.Steps = append(op.Steps, steps...)
}

// Marshals a sequence with polymorphic operators to JSON.
// Uses the actual op.Steps with label "steps", and ignores op.StepsRaw
func (op *OpSequence) MarshalJSON() (bs []byte, err error) {
	buf := bytes.Buffer{}
	buf.WriteString("{\"type\":")
	inner, err := json.Marshal(op.Type)
	if err != nil {
		return nil, err
	}
	buf.Write(inner)
	fmt.Fprintf(&buf, ",\"active\":%v,\"steps\":", op.Active)
	if op.Steps == nil {
		buf.WriteString("[]")
	} else {
		inner, err = json.Marshal(op.Steps)
		if err != nil {
			return nil, err
		}
		buf.Write(inner)
	}
	buf.WriteRune('}')
	return buf.Bytes(), nil
}

func (op *OpSequence) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	return op.applyRecursive(op.Steps, ins, c)
}

func (op *OpSequence) applyRecursive(steps []Operator, ins []Promise, c *Context) (outs []Promise, err error) {
	if len(steps) == 0 {
		return ins, nil
	}
	ins, err = steps[0].MakePromises(ins, c)
	if err != nil {
		return nil, err
	}
	return op.applyRecursive(steps[1:], ins, c)
}

// Applies a single operator to each input. Takes n inputs, produces n outputs
type OpForEach struct {
	OpBase
	Operation Operator `json:"-"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpForEachDefault() }) } // register the operator for JSON decoding

func NewOpForEachDefault() *OpForEach { return NewOpForEach(nil) }

func NewOpForEach(operation Operator) *OpForEach {
	return &OpForEach{
		OpBase:    OpBase{Type: "forEach", Active: operation != nil},
		Operation: operation,
	}
}

// Unmarshals the embedded polymorphic operation from JSON
func (op *OpForEach) UnmarshalJSON(b []byte) error {
	var raw struct {
		OpBase
		Operation json.RawMessage `json:"operation"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	op.OpBase = raw.OpBase
	op.Operation = nil
	if len(raw.Operation) > 0 && string(raw.Operation) != "null" {
		operation, err := UnmarshalOperator(raw.Operation)
		if err != nil {
			return err
		}
		op.Operation = operation
	}
	return nil
}

func (op *OpForEach) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		OpBase
		Operation Operator `json:"operation"`
	}{op.OpBase, op.Operation})
}

// Applies the operation to each input individually
func (op *OpForEach) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) == 0 {
		return ins, nil
	}
	if op.Operation == nil {
		return nil, fmt.Errorf("%s operator has no operation to apply", op.Type)
	}
	for _, in := range ins {
		out, err := op.Operation.MakePromises([]Promise{in}, c)
		if err != nil {
			return nil, err
		}
		if len(out) != 1 {
			return nil, fmt.Errorf("%s operator needs exactly one promise from embedded operation", op.Type)
		}
		outs = append(outs, out[0])
	}
	return outs, nil
}

// Selects a single input by index. Takes n inputs, produces one output
type OpSelect struct {
	OpBase
	Index int `json:"index"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpSelectDefault() }) } // register the operator for JSON decoding

func NewOpSelectDefault() *OpSelect { return NewOpSelect(0) }

func NewOpSelect(index int) *OpSelect {
	return &OpSelect{
		OpBase: OpBase{Type: "select", Active: true},
		Index:  index,
	}
}

func (op *OpSelect) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if !op.Active {
		return ins, nil
	}
	if op.Index < 0 || op.Index >= len(ins) {
		return nil, fmt.Errorf("%s operator index %d out of range for %d inputs", op.Type, op.Index, len(ins))
	}
	return []Promise{ins[op.Index]}, nil
}
