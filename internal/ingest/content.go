package ingest

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrTooLarge is returned when an upload exceeds the configured size cap,
// before or after decompression.
var ErrTooLarge = errors.New("upload exceeds size limit")

// gzipMagic is the two-byte gzip stream header.
var gzipMagic = []byte{0x1f, 0x8b}

// readContent reads an upload into memory, transparently decompressing
// gzip by filename suffix or magic bytes, and enforcing the size cap on
// the decoded result. The returned string is valid UTF-8; undecodable
// byte sequences are dropped rather than failing the upload.
func readContent(filename string, r io.Reader, maxSize int64) (string, int64, error) {
	raw, err := readCapped(r, maxSize)
	if err != nil {
		return "", 0, err
	}

	if isGzip(filename, raw) {
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return "", 0, fmt.Errorf("open gzip stream: %w", err)
		}
		defer zr.Close()

		raw, err = readCapped(zr, maxSize)
		if err != nil {
			return "", 0, err
		}
	}

	text := strings.ToValidUTF8(string(raw), "")
	return text, int64(len(raw)), nil
}

// readCapped reads everything up to maxSize bytes and fails with
// ErrTooLarge when the source has more.
func readCapped(r io.Reader, maxSize int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > maxSize {
		return nil, ErrTooLarge
	}
	return data, nil
}

// isGzip reports whether the upload should be gunzipped first.
func isGzip(filename string, data []byte) bool {
	if strings.HasSuffix(strings.ToLower(filename), ".gz") {
		return true
	}
	return bytes.HasPrefix(data, gzipMagic)
}
