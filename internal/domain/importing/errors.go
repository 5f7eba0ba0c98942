package importing

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownTableType  = errors.New("unknown table type")
	ErrNoData            = errors.New("no data found in file")
	ErrFileTooLarge      = errors.New("file exceeds maximum size")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrCorruptFile       = errors.New("file is corrupt or unreadable")
	ErrJobNotFound       = errors.New("import job not found")
	ErrNoDataRows        = errors.New("file has a header row but no data rows")
	ErrNoValidRows       = errors.New("no valid rows to import")
	ErrNativeUnsupported = errors.New("native bulk load not supported")
)

// HeaderNotFoundError is returned when no header row could be located among
// the scanned rows.
type HeaderNotFoundError struct {
	TableType TableType
	Scanned   int
	Expected  []string
}

func (e *HeaderNotFoundError) Error() string {
	return fmt.Sprintf("header row not found in the first %d rows for %s; expected columns: %s",
		e.Scanned, e.TableType, strings.Join(e.Expected, ", "))
}

// MissingColumnsError is returned when a header row was found but none of
// the columns that identify a record is present.
type MissingColumnsError struct {
	TableType TableType
	Missing   []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("file for %s is missing required columns: %s", e.TableType, strings.Join(e.Missing, " or "))
}
