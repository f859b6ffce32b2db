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

package bilateral

import (
	"io"
	"sync"

	"github.com/mlnoga/hdrlight/internal/logging"
)

// Reports progress of a named stage, e.g. "splat" or "blur", as done out of total steps.
// Stages running concurrently may call it from several goroutines, so it must be safe
// for concurrent use unless the options are Synchronized
type ProgressFunc func(stage string, done, total int)

// Execution options shared by the filter and the stages built on it
type Options struct {
	Workers      int          // maximum number of goroutines for data parallel phases, <=0 for GOMAXPROCS
	MemoryBudget uint64       // maximum bytes for grids, 0 for unlimited
	Progress     ProgressFunc // optional progress hook
	Log          io.Writer    // optional log output, must be safe for concurrent use unless Synchronized
}

// Returns a copy of the options whose log writer and progress hook serialize concurrent calls
func (o Options) Synchronized() Options {
	o.Log = logging.Synchronized(o.Log)
	if progress := o.Progress; progress != nil {
		mutex := &sync.Mutex{}
		o.Progress = func(stage string, done, total int) {
			mutex.Lock()
			defer mutex.Unlock()
			progress(stage, done, total)
		}
	}
	return o
}

// Invokes the progress hook, if any
func (o Options) Report(stage string, done, total int) {
	if o.Progress != nil {
		o.Progress(stage, done, total)
	}
}

// Returns the log writer, discarding output if none is set
func (o Options) Writer() io.Writer {
	if o.Log == nil {
		return io.Discard
	}
	return o.Log
}
