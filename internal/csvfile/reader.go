// Package csvfile turns supplier-provided pricelist bytes into CSV
// records.
//
// Supplier feeds arrive in whatever shape the supplier's ERP exports:
// utf-8 with or without BOM, latin-1 or windows-1252, separated by
// comma, semicolon or tab. This package normalizes all of that before
// the import pipeline sees a single row.
package csvfile

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Validation errors raised before a job is created.
var (
	ErrEmptyFile        = errors.New("file is empty")
	ErrUnknownEncoding  = errors.New("unknown encoding")
	ErrUnknownSeparator = errors.New("unknown separator")
)

// Supported encoding names. Aliases are accepted case-insensitively.
const (
	EncodingUTF8        = "utf-8"
	EncodingLatin1      = "latin-1"
	EncodingWindows1252 = "windows-1252"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// SeparatorRune resolves a separator name or literal to its rune.
// Accepted: "comma"/",", "semicolon"/";", "tab"/"\t".
func SeparatorRune(sep string) (rune, error) {
	switch strings.ToLower(strings.TrimSpace(sep)) {
	case "comma", ",", "":
		return ',', nil
	case "semicolon", ";":
		return ';', nil
	case "tab", "\t", `\t`:
		return '\t', nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSeparator, sep)
}

// Decode converts raw pricelist bytes to UTF-8 text. The BOM, if any,
// is stripped; for utf-8 input, invalid sequences are replaced with '?'
// rather than failing the file.
func Decode(data []byte, encoding string) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	data = bytes.TrimPrefix(data, utf8BOM)
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case EncodingUTF8, "utf8", "":
		return sanitizeUTF8(data), nil
	case EncodingLatin1, "iso-8859-1", "iso8859-1":
		return decodeCharmap(data, charmap.ISO8859_1)
	case EncodingWindows1252, "cp1252":
		return decodeCharmap(data, charmap.Windows1252)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, encoding)
}

// NewReader builds a csv.Reader over decoded pricelist bytes.
// Records may have a varying number of fields; short rows are the
// caller's concern, not a parse error.
func NewReader(data []byte, encoding, separator string) (*csv.Reader, error) {
	decoded, err := Decode(data, encoding)
	if err != nil {
		return nil, err
	}

	sep, err := SeparatorRune(separator)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(bytes.NewReader(decoded))
	r.Comma = sep
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	return r, nil
}

// decodeCharmap decodes single-byte encoded data to UTF-8.
func decodeCharmap(data []byte, cm *charmap.Charmap) ([]byte, error) {
	out, err := cm.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", cm, err)
	}
	return out, nil
}

// sanitizeUTF8 replaces invalid UTF-8 bytes with '?'. Most feeds are
// plain ASCII, so the common case is a no-op.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			out = append(out, '?')
			i++
			continue
		}
		out = append(out, data[i:i+size]...)
		i += size
	}
	return out
}
