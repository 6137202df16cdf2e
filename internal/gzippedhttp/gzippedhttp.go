// Package gzippedhttp compresses rendered HTML pages for clients that accept gzip.
// Redirects, errors and non-HTML bodies pass through untouched.
package gzippedhttp

import (
	"compress/gzip"
	"net/http"
	"strings"
	"sync"
)

// CompressedHTTPResponseWriter wraps http.ResponseWriter and decides on the
// first write whether the body gets compressed.
type CompressedHTTPResponseWriter struct {
	w          http.ResponseWriter
	zw         *gzip.Writer
	decided    bool
	compressed bool
}

// NewCompressedHTTPResponseWriter returns a writer on top of w. Nothing is
// compressed until a 200 text/html response starts.
func NewCompressedHTTPResponseWriter(w http.ResponseWriter) *CompressedHTTPResponseWriter {
	return &CompressedHTTPResponseWriter{w: w}
}

func compressible(statusCode int, header http.Header) bool {
	if statusCode != http.StatusOK || header.Get("Content-Encoding") != "" {
		return false
	}

	return strings.HasPrefix(header.Get("Content-Type"), "text/html")
}

func (c *CompressedHTTPResponseWriter) decide(statusCode int) {
	if c.decided {
		return
	}
	c.decided = true

	header := c.w.Header()
	header.Add("Vary", "Accept-Encoding")
	if !compressible(statusCode, header) {
		return
	}

	header.Set("Content-Encoding", "gzip")
	header.Del("Content-Length")
	c.zw = gzipWriterPool.Get().(*gzip.Writer)
	c.zw.Reset(c.w)
	c.compressed = true
}

// WriteHeader sets the HTTP status code for the response.
func (c *CompressedHTTPResponseWriter) WriteHeader(statusCode int) {
	c.decide(statusCode)
	c.w.WriteHeader(statusCode)
}

// Write writes the body, compressed when the response qualifies.
func (c *CompressedHTTPResponseWriter) Write(p []byte) (int, error) {
	if !c.decided {
		if c.w.Header().Get("Content-Type") == "" {
			c.w.Header().Set("Content-Type", http.DetectContentType(p))
		}
		c.decide(http.StatusOK)
	}
	if !c.compressed {
		return c.w.Write(p)
	}

	return c.zw.Write(p)
}

// Header returns the HTTP headers associated with the response.
func (c *CompressedHTTPResponseWriter) Header() http.Header {
	return c.w.Header()
}

// Close flushes the gzip stream, if one was started, and returns its writer to the pool.
func (c *CompressedHTTPResponseWriter) Close() error {
	if !c.compressed {
		return nil
	}

	err := c.zw.Close()
	if err != nil {
		return err
	}
	gzipWriterPool.Put(c.zw)
	c.compressed = false

	return nil
}

var gzipWriterPool = sync.Pool{
	New: func() interface{} {
		w, _ := gzip.NewWriterLevel(nil, gzip.BestSpeed)
		return w
	},
}

// GzipResponse is the middleware that compresses HTML pages when the
// request's "Accept-Encoding" header allows it.
func GzipResponse(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		finalResponse := response

		acceptEncoding := request.Header.Get("Accept-Encoding")
		clientAcceptsGzip := strings.Contains(acceptEncoding, "gzip")
		if clientAcceptsGzip {
			responseWithCompression := NewCompressedHTTPResponseWriter(response)
			finalResponse = responseWithCompression
			defer responseWithCompression.Close()
		}

		h.ServeHTTP(finalResponse, request)
	}

	return http.HandlerFunc(middleware)
}
