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

package rest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mlnoga/hdrlight/internal/fits"
	"github.com/mlnoga/hdrlight/internal/logging"
	"github.com/mlnoga/hdrlight/internal/ops"
	_ "github.com/mlnoga/hdrlight/internal/ops/hdr" // register the HDR operators for JSON decoding
)

// Serves the REST API on the given address until an error occurs.
// Jobs run with the limits of the given context, restricted to the current directory tree
func Serve(addr string, c *ops.Context) error {
	return NewRouter(c).Run(addr)
}

// Returns a router for the REST API
func NewRouter(c *ops.Context) *gin.Engine {
	r := gin.Default()
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.GET("/ops", getOps)
			v1.POST("/job", func(g *gin.Context) { postJob(g, c) })
		}
	}
	return r
}

func getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

func getOps(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"operators":   ops.GetOperatorTypes(),
		"toneMappers": fits.ToneMappers,
	})
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

// Runs a job given as a JSON operator, usually a sequence starting with load operators.
// Streams the log back as plain text
func postJob(g *gin.Context, base *ops.Context) {
	raw, err := g.GetRawData()
	if err != nil {
		g.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	op, err := ops.UnmarshalOperator(raw)
	if err != nil {
		g.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	logWriter := g.Writer
	header := logWriter.Header()
	header.Set("Content-Type", "text/plain")
	logWriter.WriteHeader(http.StatusOK)

	if err := printArgs(logWriter, "Arguments:\n", "\n", op); err != nil {
		fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
		return
	}

	c := base.WithContext(g.Request.Context())
	c.Log = logging.NewTee(logWriter) // operators and channels log concurrently
	c.Sandboxed = true
	promises, err := op.MakePromises(nil, c)
	if err == nil {
		_, err = ops.MaterializeAll(promises, c.MaxThreads, true)
	}
	if err != nil {
		fmt.Fprintf(logWriter, "error: %s\n", err.Error())
	} else {
		fmt.Fprintf(logWriter, "done\n")
	}
	logWriter.Flush()
}
