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

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/mlnoga/hdrlight/internal/config"
	"github.com/mlnoga/hdrlight/internal/hdr"
	"github.com/mlnoga/hdrlight/internal/logging"
	"github.com/mlnoga/hdrlight/internal/ops"
	hdrops "github.com/mlnoga/hdrlight/internal/ops/hdr"
	"github.com/mlnoga/hdrlight/internal/parallel"
	"github.com/mlnoga/hdrlight/internal/rest"
)

const version = "0.1.0"

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var configFile = flag.String("config", "", "load job settings from YAML `file`; flags given explicitly take precedence")

var out = flag.String("out", "result.fits", "save output to `file`. Suffix selects the format: .fits, .fits.gz, .jpg, .tif or .hdr")
var jpg = flag.String("jpg", "%auto", "save 8bit preview of output as JPEG to `file`. `%auto` replaces suffix of output file with .jpg")
var log = flag.String("log", "%auto", "save log output to `file`. `%auto` replaces suffix of output file with .log")
var prefix = flag.String("prefix", "img", "output prefix for final layers, auxiliary outputs and verbose diagnostics")
var verbose = flag.Bool("v", false, "verbose output, i.e. save all intermediate results of the pipeline")

var levels = flag.Int("levels", 3, "number of pyramid levels for msde")
var rangeSigma = flag.Float64("range", 4, "range sigma (intensity smoothing scale) for tonemap, msde and bilateral")
var domainSigma = flag.Float64("domain", 20, "domain sigma (spatial smoothing scale in physical units) for tonemap, msde and bilateral")
var beta = flag.Float64("beta", 0.8, "detail amplification for msde, 1.0 is maximum detail")
var lambda = flag.Float64("lambda", 0.8, "detail compression exponent for msde")
var contrast = flag.Float64("contrast", 5, "target dynamic range for tonemap")
var weight = flag.Float64("weight", 0.8, "weight of every input after the first for msde")
var sos = flag.Bool("sos", false, "save root sums of squares of the inputs. msde only")
var average = flag.Bool("average", false, "save average of the inputs. msde only")
var bias = flag.Bool("bias", false, "save bias field of the inputs relative to the output. msde only")

var rescale = flag.Bool("rescale", false, "linearly rescale each input to [rescaleMin, rescaleMax] first")
var rescaleMin = flag.Float64("rescaleMin", 0, "lower bound for -rescale; use a positive value before tonemap")
var rescaleMax = flag.Float64("rescaleMax", 1, "upper bound for -rescale")

var gamma = flag.Float64("gamma", 1, "display gamma for JPEG and TIFF previews")
var falseColor = flag.Bool("falseColor", false, "use a false colour palette for JPEG previews")
var toneMapper = flag.String("toneMapper", "", "global tone mapper for JPEG previews, one of drago03, durand, linear, reinhard05")

var statsFile = flag.String("statsFile", "", "append statistics to CSV `file`. stats only")
var bins = flag.Int("bins", 256, "histogram bins for mode estimation, 0=off. stats only")

var threads = flag.Int("threads", 0, "number of threads to use, 0=all available cores")
var memoryMB = flag.Int("memory", 0, "MiB of memory for bilateral grids, 0=0.7x physical memory")

var addr = flag.String("addr", ":8080", "listen address for serve")
var chroot = flag.String("chroot", "", "change filesystem root to `dir` before serving. Requires root")
var setuid = flag.Int("setuid", -1, "change user id before serving, -1=keep")

func main() {
	logWriter := logging.NewTee(os.Stdout)
	start := time.Now()
	flag.Usage = func() {
		fmt.Fprintf(logWriter, `HDRLight Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (tonemap|msde|bilateral|stats|serve|legal|version) (img0.fits ... imgn.fits)

Commands:
  tonemap   Tone map the first input image
  msde      Composite all input images with multiscale detail enhancement
  bilateral Apply the fast bilateral filter to each input image
  stats     Show input image statistics
  serve     Serve the REST API
  legal     Show license and attribution information
  version   Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return
	}
	cmd, inputs := args[0], args[1:]

	// load job settings, then override with flags given explicitly
	cfg := config.DefaultConfig()
	if *configFile != "" {
		var err error
		if cfg, err = config.LoadConfig(*configFile); err != nil {
			logWriter.Fatalf("Error loading configuration: %s\n", err.Error())
		}
	}
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	applyFlags(cfg, inputs, func(name string) bool { return set[name] })
	switch cmd {
	case "tonemap":
		cfg.HDR.Mode = hdr.ModeToneMap
	case "msde":
		cfg.HDR.Mode = hdr.ModeMultiLight
	}

	// initialize logging to file in addition to stdout, if selected
	if *log == "%auto" {
		*log = ""
		if cfg.Processing.LogFile != "" {
			*log = cfg.Processing.LogFile
		} else if isProcessing(cmd) && cfg.Output != "" {
			*log = autoName(cfg.Output, ".log")
		}
	}
	if *log != "" {
		if err := logWriter.AlsoToFile(*log); err != nil {
			logWriter.Fatalf("Unable to open logfile '%s'\n", *log)
		}
	}
	defer logWriter.Close()

	// also auto-select JPEG preview target
	if *jpg == "%auto" {
		*jpg = ""
		if cfg.Preview.FileName != "" {
			*jpg = cfg.Preview.FileName
		} else if cfg.Output != "" && !strings.HasSuffix(strings.ToLower(cfg.Output), ".jpg") {
			*jpg = autoName(cfg.Output, ".jpg")
		}
	}
	cfg.Preview.FileName = *jpg

	// enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			logWriter.Fatalf("Could not create CPU profile: %s\n", err.Error())
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			logWriter.Fatalf("Could not start CPU profile: %s\n", err.Error())
		}
		defer pprof.StopCPUProfile()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	c := ops.NewContext(logWriter).WithContext(ctx)
	cfg.ApplyTo(c)
	c.Progress = func(stage string, done, total int) {
		if stage == "channel" || stage == "pyramid" || stage == "fusion" {
			fmt.Fprintf(logWriter, "Progress: %s %d of %d\n", stage, done, total)
		}
	}

	var err error
	switch cmd {
	case "tonemap", "msde":
		err = cmdComposite(cfg, c)

	case "bilateral":
		op := hdrops.NewOpBilateral(cfg.HDR.DomainSigma, cfg.HDR.RangeSigma)
		err = runSequence(c, ops.NewOpSequence(ops.NewOpLoadMany(cfg.Inputs), ops.NewOpForEach(op),
			ops.NewOpForEach(ops.NewOpSave(cfg.Output))))

	case "stats":
		op := hdrops.NewOpStats(0, *bins, *statsFile)
		err = runSequence(c, ops.NewOpSequence(ops.NewOpLoadMany(cfg.Inputs), ops.NewOpForEach(op)))

	case "serve":
		if err = rest.MakeSandbox(*chroot, *setuid, logWriter); err == nil {
			err = rest.Serve(*addr, c)
		}

	case "legal":
		fmt.Fprint(logWriter, legal)

	case "version":
		fmt.Fprintf(logWriter, "Version %s\n", version)
		fmt.Fprintf(logWriter, "%s\n", parallel.Describe())
		fmt.Fprintf(logWriter, "%d MiB physical memory, %d threads\n", c.MemoryMB, c.MaxThreads)

	case "help", "?":
		flag.Usage()

	default:
		fmt.Fprintf(logWriter, "Unknown command '%s'\n\n", cmd)
		flag.Usage()
		return
	}

	if isProcessing(cmd) {
		fmt.Fprintf(logWriter, "\nDone after %v\n", time.Since(start))
	}

	// store memory profile if flagged
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			logWriter.Fatalf("Could not create memory profile: %s\n", err.Error())
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.Lookup("allocs").WriteTo(f, 0); err != nil {
			logWriter.Fatalf("Could not write allocation profile: %s\n", err.Error())
		}
	}

	if err != nil {
		logWriter.Fatalf("Error: %s\n", err.Error())
	}
}

// Returns true if the command processes input images
func isProcessing(cmd string) bool {
	return cmd == "tonemap" || cmd == "msde" || cmd == "bilateral" || cmd == "stats"
}

// Replaces the suffix of the file name, including any .gz suffix, with the given one
func autoName(fileName, suffix string) string {
	base := fileName
	lower := strings.ToLower(base)
	if strings.HasSuffix(lower, ".gz") || strings.HasSuffix(lower, ".gzip") {
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return strings.TrimSuffix(base, filepath.Ext(base)) + suffix
}

// Overrides configuration entries with flags given explicitly, and with the input
// file names from the command line if any
func applyFlags(cfg *config.Config, inputs []string, isSet func(name string) bool) {
	if len(inputs) > 0 {
		cfg.Inputs = inputs
	}
	if isSet("out") {
		cfg.Output = *out
	}
	if isSet("prefix") {
		cfg.Prefix = *prefix
	}
	if isSet("v") {
		cfg.Verbose = *verbose
	}
	if isSet("levels") {
		cfg.HDR.Levels = *levels
	}
	if isSet("range") {
		cfg.HDR.RangeSigma = *rangeSigma
	}
	if isSet("domain") {
		cfg.HDR.DomainSigma = *domainSigma
	}
	if isSet("beta") {
		cfg.HDR.Beta = *beta
	}
	if isSet("lambda") {
		cfg.HDR.Lambda = *lambda
	}
	if isSet("contrast") {
		cfg.HDR.Contrast = *contrast
	}
	if isSet("weight") {
		cfg.Weight = *weight
	}
	if isSet("sos") {
		cfg.HDR.SumsOfSquares = *sos
	}
	if isSet("average") {
		cfg.HDR.Average = *average
	}
	if isSet("bias") {
		cfg.HDR.BiasField = *bias
	}
	if isSet("rescale") {
		cfg.Rescale.Enabled = *rescale
	}
	if isSet("rescaleMin") {
		cfg.Rescale.OutMin = float32(*rescaleMin)
	}
	if isSet("rescaleMax") {
		cfg.Rescale.OutMax = float32(*rescaleMax)
	}
	if isSet("gamma") {
		cfg.Preview.Gamma = float32(*gamma)
	}
	if isSet("falseColor") {
		cfg.Preview.FalseColor = *falseColor
	}
	if isSet("toneMapper") {
		cfg.Preview.ToneMapper = *toneMapper
	}
	if isSet("threads") {
		cfg.Processing.Threads = *threads
	}
	if isSet("memory") {
		cfg.Processing.MemoryMB = *memoryMB
	}
}

// Runs the tone mapping or multiscale detail enhancement job
func cmdComposite(cfg *config.Config, c *ops.Context) error {
	names, err := cfg.ExpandInputs()
	if err != nil {
		return err
	}
	seq, err := cfg.Sequence(len(names))
	if err != nil {
		return err
	}
	m, err := json.MarshalIndent(seq, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Log, "\nProcessing %d files with these settings:\n%s\n", len(names), string(m))
	return runSequence(c, seq)
}

// Materializes all outputs of the operator sequence
func runSequence(c *ops.Context, seq *ops.OpSequence) error {
	promises, err := seq.MakePromises(nil, c)
	if err != nil {
		return err
	}
	_, err = ops.MaterializeAll(promises, c.MaxThreads, true)
	return err
}
