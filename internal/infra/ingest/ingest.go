// Package ingest turns uploaded or piped bytes into text.
package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Encoding names the charset a payload was decoded from.
type Encoding string

const (
	UTF8   Encoding = "utf-8"
	Latin1 Encoding = "iso-8859-1"
)

// ErrTooLarge is returned when input exceeds the read limit.
var ErrTooLarge = errors.New("input exceeds size limit")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode returns data as text. Valid UTF-8 is used as is (minus a leading
// byte order mark); anything else is decoded as ISO-8859-1, which maps
// every byte and therefore never fails.
func Decode(data []byte) (string, Encoding, error) {
	if utf8.Valid(data) {
		return string(bytes.TrimPrefix(data, utf8BOM)), UTF8, nil
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", "", fmt.Errorf("decode latin-1: %w", err)
	}
	return string(out), Latin1, nil
}

// Read reads at most limit bytes from r and decodes them. limit <= 0
// means no limit.
func Read(r io.Reader, limit int64) (string, Encoding, error) {
	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return "", "", fmt.Errorf("read input: %w", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return "", "", ErrTooLarge
	}
	return Decode(data)
}
