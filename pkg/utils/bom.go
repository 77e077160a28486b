package utils

import (
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// StripBOM drops a leading UTF-8 byte-order mark. PCS exports carry one.
// A UTF-16 mark switches decoding to UTF-16, so re-saved exports read the same.
func StripBOM(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}
