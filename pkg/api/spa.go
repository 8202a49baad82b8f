// Source: https://github.com/mandrigin/gin-spa
//
// MIT License
//
// Copyright (c) 2020 Igor Mandrigin
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package api

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
)

// hashedAssetPrefixes hold content-hashed build output that never changes under the same name.
var hashedAssetPrefixes = []string{"/assets/", "/_next/static/"}

const (
	cacheImmutable  = "public, max-age=31536000, immutable"
	cacheRevalidate = "no-cache, must-revalidate"
	cacheShort      = "public, max-age=3600, must-revalidate"
)

func isHashedAsset(path string) bool {
	for _, p := range hashedAssetPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// cachePolicy picks the Cache-Control value for a static response. A policy
// already set upstream, such as the guard's no-store on admin pages, wins
// over everything except hashed assets.
func cachePolicy(path, preset string) string {
	switch {
	case isHashedAsset(path):
		return cacheImmutable
	case preset != "":
		return preset
	case path == "/" || strings.HasSuffix(path, ".html"):
		return cacheRevalidate
	default:
		return cacheShort
	}
}

// cacheControlWriter applies cachePolicy just before the status line is written.
type cacheControlWriter struct {
	http.ResponseWriter
	path        string
	wroteHeader bool
}

func (w *cacheControlWriter) WriteHeader(statusCode int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		h := w.Header()
		h.Set("Cache-Control", cachePolicy(w.path, h.Get("Cache-Control")))
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *cacheControlWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// ServeSPA serves files from spaDirectory and falls back to index.html for
// unknown paths so that client-side routing works. A missing hashed asset is
// a 404: answering it with index.html would hand HTML to a script tag left
// over from a previous deploy.
func ServeSPA(urlPrefix, spaDirectory string) gin.HandlerFunc {
	directory := static.LocalFile(spaDirectory, true)
	fileserver := http.FileServer(directory)
	if urlPrefix != "" {
		fileserver = http.StripPrefix(urlPrefix, fileserver)
	}
	serve := func(c *gin.Context, path string) {
		fileserver.ServeHTTP(&cacheControlWriter{ResponseWriter: c.Writer, path: path}, c.Request)
		c.Abort()
	}
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		switch {
		case directory.Exists(urlPrefix, path):
			serve(c, path)
		case isHashedAsset(path):
			c.AbortWithStatus(http.StatusNotFound)
		default:
			c.Request.URL.Path = "/"
			serve(c, "/")
		}
	}
}
