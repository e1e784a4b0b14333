package parser

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"unicode/utf8"
)

// MaxLogSize is the maximum size of compressed logs to store (1MB).
const MaxLogSize = 1024 * 1024

const truncationMarker = "\n... [truncated] ...\n"

// CompressLog gzips a raw log for storage. Logs whose compressed form exceeds
// MaxLogSize keep only their head and tail. The second return value reports
// whether truncation happened.
func CompressLog(text string) ([]byte, bool, error) {
	compressed, err := gzipString(text)
	if err != nil {
		return nil, false, err
	}
	if len(compressed) <= MaxLogSize {
		return compressed, false, nil
	}

	keep := len(text) / 4
	for keep > 0 {
		compressed, err = gzipString(truncateMiddle(text, keep))
		if err != nil {
			return nil, false, err
		}
		if len(compressed) <= MaxLogSize {
			return compressed, true, nil
		}
		keep /= 2
	}
	return nil, false, fmt.Errorf("log cannot be compressed below %d bytes", MaxLogSize)
}

// truncateMiddle keeps at most keep bytes from each end of text, cut on rune
// boundaries, joined by the truncation marker.
func truncateMiddle(text string, keep int) string {
	if keep*2 >= len(text) {
		return text
	}
	head := keep
	for head > 0 && !utf8.RuneStart(text[head]) {
		head--
	}
	tail := len(text) - keep
	for tail < len(text) && !utf8.RuneStart(text[tail]) {
		tail++
	}
	return text[:head] + truncationMarker + text[tail:]
}

func gzipString(s string) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)

	if _, err := gz.Write([]byte(s)); err != nil {
		return nil, err
	}

	if err := gz.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// DecompressLog decompresses a gzip-compressed log.
func DecompressLog(compressed []byte) (string, error) {
	if len(compressed) == 0 {
		return "", nil
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return "", err
	}
	defer gz.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(gz); err != nil {
		return "", err
	}

	return buf.String(), nil
}
