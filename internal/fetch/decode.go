package fetch

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// decodeBody undoes the Content-Encoding the server applied. Unknown
// encodings are passed through untouched.
func decodeBody(contentEncoding string, body []byte) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "", "identity":
		return body, nil

	case "gzip", "x-gzip":
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip body: %w", err)
		}
		defer reader.Close()
		return readAllLimited(reader)

	case "deflate":
		// Servers disagree on whether deflate means zlib-wrapped or raw.
		if reader, err := zlib.NewReader(bytes.NewReader(body)); err == nil {
			defer reader.Close()
			return readAllLimited(reader)
		}
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()
		return readAllLimited(reader)

	case "br":
		return readAllLimited(brotli.NewReader(bytes.NewReader(body)))

	default:
		return body, nil
	}
}

func readAllLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode body: %w", err)
	}
	return data, nil
}
