package parser

import (
	"bytes"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// textReader strips a UTF-8 BOM, transcodes UTF-16 files that carry a BOM
// and falls back to Windows-1252 for bytes that are not valid UTF-8, which is
// what older Excel "Save as CSV" produces.
func textReader(data []byte) io.Reader {
	src := bytes.NewReader(data)
	if hasUTF16BOM(data) || utf8.Valid(data) {
		return transform.NewReader(src, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	}
	return transform.NewReader(src, charmap.Windows1252.NewDecoder())
}

func hasUTF16BOM(data []byte) bool {
	return bytes.HasPrefix(data, []byte{0xFF, 0xFE}) || bytes.HasPrefix(data, []byte{0xFE, 0xFF})
}
