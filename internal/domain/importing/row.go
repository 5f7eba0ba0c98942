package importing

import "context"

// ParsedRow is one data row after alias mapping. RowNumber is 1-based and
// relative to the detected header row.
type ParsedRow struct {
	RowNumber int64
	Values    map[Field]string
	IsValid   bool
	Errors    []string
}

func (r ParsedRow) Get(f Field) string { return r.Values[f] }

// Error joins row-level problems into the single message stored on the
// staging record.
func (r ParsedRow) Error() string {
	switch len(r.Errors) {
	case 0:
		return ""
	case 1:
		return r.Errors[0]
	}
	out := r.Errors[0]
	for _, e := range r.Errors[1:] {
		out += "; " + e
	}
	return out
}

// RowReader yields parsed rows in file order. Next returns io.EOF after the
// last row. Readers are single-use; open a new one to restart from the top.
type RowReader interface {
	Next(ctx context.Context) (ParsedRow, error)
	Close() error
}

// RowEstimator is implemented by readers that can guess how many rows the
// file holds before reaching its end. Zero means no estimate is available.
type RowEstimator interface {
	EstimatedRows() int64
}
