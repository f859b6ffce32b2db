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

// Package logging provides the log writer of the command line tool. It writes to
// an output stream, and optionally to a file. It does not add prefixes, or force newlines.
package logging

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
)

// A log writer which is safe for concurrent use by operators
type Tee struct {
	mutex     sync.Mutex
	out       io.Writer
	logFile   *bufio.Writer // the optional additional file to log into
	logFileOS *os.File
}

var _ io.Writer = (*Tee)(nil)

func NewTee(out io.Writer) *Tee {
	return &Tee{out: out}
}

// Enables logging to file, closing any previous file
func (t *Tee) AlsoToFile(fileName string) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if err := t.closeFile(); err != nil {
		return err
	}
	f, err := os.OpenFile(fileName, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		return err
	}
	t.logFileOS, t.logFile = f, bufio.NewWriter(f)
	return nil
}

func (t *Tee) closeFile() error {
	if t.logFile == nil {
		return nil
	}
	err := t.logFile.Flush()
	if cerr := t.logFileOS.Close(); err == nil {
		err = cerr
	}
	t.logFile, t.logFileOS = nil, nil
	return err
}

// Writes to the output stream and, if enabled, the file. Errors writing the file take precedence
func (t *Tee) Write(p []byte) (n int, err error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	n, err = t.out.Write(p)
	if t.logFile != nil {
		if n2, err2 := t.logFile.Write(p); err2 != nil {
			return n2, err2
		}
	}
	return n, err
}

// Returns a writer which serializes concurrent writes to w. Tees are returned unchanged
func Synchronized(w io.Writer) io.Writer {
	if w == nil {
		return nil
	}
	if t, ok := w.(*Tee); ok {
		return t
	}
	return NewTee(w)
}

func (t *Tee) Printf(format string, args ...interface{}) {
	fmt.Fprintf(t, format, args...)
}

// Flushes and syncs the file, if any
func (t *Tee) Sync() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.logFile == nil {
		return nil
	}
	if err := t.logFile.Flush(); err != nil {
		return err
	}
	return t.logFileOS.Sync()
}

// Flushes and closes the file, if any
func (t *Tee) Close() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.closeFile()
}

// Logs the message, closes the file and exits with status 1
func (t *Tee) Fatalf(format string, args ...interface{}) {
	t.Printf(format, args...)
	t.Close()
	os.Exit(1)
}
