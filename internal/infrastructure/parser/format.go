package parser

import (
	"bytes"
	"path/filepath"
	"strings"

	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
)

type Format int

const (
	FormatCSV Format = iota + 1
	FormatXLSX
)

func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatXLSX:
		return "xlsx"
	}
	return "unknown"
}

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0}
)

// DetectFormat decides how to decode a file from its extension, using the
// leading bytes to catch misnamed workbooks. Legacy .xls (OLE) workbooks are
// not supported.
func DetectFormat(fileName string, data []byte) (Format, error) {
	if bytes.HasPrefix(data, oleMagic) {
		return 0, domain.ErrUnsupportedFormat
	}

	switch strings.ToLower(filepath.Ext(strings.TrimSpace(fileName))) {
	case ".csv", ".txt", ".tsv":
		if bytes.HasPrefix(data, zipMagic) {
			return FormatXLSX, nil
		}
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case "":
		if bytes.HasPrefix(data, zipMagic) {
			return FormatXLSX, nil
		}
		return FormatCSV, nil
	}
	return 0, domain.ErrUnsupportedFormat
}
