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

package parallel

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/klauspost/cpuid"
)

const defaultCacheBytes = 256 * 1024 // used if the L2 size cannot be detected
const minChunk = 64

// Returns the number of workers to use for the given requested number. Values <=0 select GOMAXPROCS
func Workers(requested int) int {
	if requested <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return requested
}

// Returns the number of items of the given size which fit into half of the L2 cache
func ChunkSize(bytesPerItem int) int {
	cache := cpuid.CPU.Cache.L2
	if cache <= 0 {
		cache = defaultCacheBytes
	}
	if bytesPerItem < 1 {
		bytesPerItem = 1
	}
	n := cache / 2 / bytesPerItem
	if n < minChunk {
		n = minChunk
	}
	return n
}

// Applies fn to contiguous, disjoint chunks covering [0,n), using at most
// the given number of workers. Returns once all chunks are done
func For(n, workers, chunk int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	workers = Workers(workers)
	if chunk <= 0 {
		chunk = (n + workers - 1) / workers
	}
	if workers == 1 || chunk >= n {
		fn(0, n)
		return
	}

	limiter := make(chan bool, workers)
	wg := sync.WaitGroup{}
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		limiter <- true
		wg.Add(1)
		go func(start, end int) {
			defer func() { <-limiter; wg.Done() }()
			fn(start, end)
		}(start, end)
	}
	wg.Wait()
}

// Describes the CPU for log output
func Describe() string {
	return fmt.Sprintf("%s with %d physical and %d logical cores, L2 cache %d KiB, AVX2 %v",
		cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores,
		cpuid.CPU.Cache.L2/1024, cpuid.CPU.AVX2())
}
