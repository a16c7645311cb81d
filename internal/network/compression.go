// File: internal/network/compression.go
package network

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// Pools for decompression readers to reduce allocation overhead.
var (
	gzipReaderPool = sync.Pool{
		New: func() interface{} {
			// Allocate the struct only; Reset() prepares it before each use.
			return new(gzip.Reader)
		},
	}

	brotliReaderPool = sync.Pool{
		New: func() interface{} {
			// brotli.NewReader(nil) yields a reusable reader ready for Reset().
			return brotli.NewReader(nil)
		},
	}
)

// Shared empty reader used for safely resetting pooled readers.
var emptyReader = strings.NewReader("")

func getGzipReader(r io.Reader) (*gzip.Reader, error) {
	zr := gzipReaderPool.Get().(*gzip.Reader)
	if err := zr.Reset(r); err != nil {
		// The allocation stays valid for reuse even when Reset fails on a bad
		// header; return it to the pool and surface the error.
		gzipReaderPool.Put(zr)
		return nil, err
	}
	return zr, nil
}

func putGzipReader(zr *gzip.Reader) {
	if zr == nil {
		return
	}
	// Resetting with an empty reader releases references to the previous
	// stream; the io.EOF it reports is expected and ignored.
	_ = zr.Reset(emptyReader)
	gzipReaderPool.Put(zr)
}

func getBrotliReader(r io.Reader) (*brotli.Reader, error) {
	br := brotliReaderPool.Get().(*brotli.Reader)
	if err := br.Reset(r); err != nil {
		brotliReaderPool.Put(br)
		return nil, err
	}
	return br, nil
}

func putBrotliReader(br *brotli.Reader) {
	if br == nil {
		return
	}
	_ = br.Reset(emptyReader)
	brotliReaderPool.Put(br)
}

// CompressionMiddleware is an http.RoundTripper that transparently handles
// response decompression. It advertises gzip and brotli on outgoing requests
// and unwraps the response body according to the Content-Encoding header.
type CompressionMiddleware struct {
	// Transport is the underlying http.RoundTripper. If nil,
	// http.DefaultTransport is used.
	Transport http.RoundTripper
}

// NewCompressionMiddleware wraps the provided transport, defaulting to
// http.DefaultTransport when nil.
func NewCompressionMiddleware(transport http.RoundTripper) *CompressionMiddleware {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &CompressionMiddleware{Transport: transport}
}

// RoundTrip implements http.RoundTripper.
func (cm *CompressionMiddleware) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		// Brotli first; it generally compresses better.
		req.Header.Set("Accept-Encoding", "br, gzip, identity")
	}

	resp, err := cm.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if err := DecompressResponse(resp); err != nil {
		// The body stream may be partially consumed at this point; close it
		// and discard the response rather than hand back a corrupt stream.
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to initialize response decompression: %w", err)
	}

	return resp, nil
}

// closeWrapper ensures the decompression reader and the underlying original
// body are both closed, returning pooled readers via the callback.
type closeWrapper struct {
	io.ReadCloser
	originalBody io.ReadCloser
	poolCallback func()
}

func (w *closeWrapper) Close() error {
	if w.poolCallback != nil {
		w.poolCallback()
		w.poolCallback = nil
	}

	err1 := w.ReadCloser.Close()
	err2 := w.originalBody.Close()
	return errors.Join(err1, err2)
}

// DecompressResponse inspects the Content-Encoding header of a response and
// wraps its body with the matching decompression reader(s). Layered encodings
// are unwrapped in reverse order. On success the Content-Encoding and
// Content-Length headers are removed and resp.Uncompressed is set.
//
// If this function returns an error the body may have been partially read;
// the caller must close it and discard the response.
func DecompressResponse(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}

	encodings := resp.Header.Values("Content-Encoding")
	if len(encodings) == 0 {
		return nil
	}

	// Encodings are listed in application order; decode in reverse.
	for i := len(encodings) - 1; i >= 0; i-- {
		encoding := strings.ToLower(strings.TrimSpace(encodings[i]))

		var reader io.ReadCloser
		var poolCallback func()

		switch encoding {
		case "gzip":
			gzipReader, err := getGzipReader(resp.Body)
			if err != nil {
				return fmt.Errorf("gzip initialization error: %w", err)
			}
			reader = gzipReader
			poolCallback = func() {
				putGzipReader(gzipReader)
			}

		case "br":
			brReader, err := getBrotliReader(resp.Body)
			if err != nil {
				return fmt.Errorf("brotli initialization error: %w", err)
			}
			// The brotli reader does not implement io.Closer.
			reader = io.NopCloser(brReader)
			poolCallback = func() {
				putBrotliReader(brReader)
			}

		case "identity", "":
			continue

		default:
			return fmt.Errorf("unsupported Content-Encoding layer: %s", encoding)
		}

		resp.Body = &closeWrapper{
			ReadCloser:   reader,
			originalBody: resp.Body,
			poolCallback: poolCallback,
		}
	}

	resp.Header.Del("Content-Encoding")
	resp.ContentLength = -1
	resp.Header.Del("Content-Length")
	resp.Uncompressed = true

	return nil
}
