// Package parser turns uploaded CSV and XLSX files into a stream of canonical
// rows. It locates the header row, maps aliased column names onto schema
// fields, normalizes numerics and flags rows that cannot identify a record.
package parser

import (
	"bytes"
	"context"
	"errors"
	"io"
	"slices"
	"strings"

	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
)

const (
	DefaultHeaderScanRows = 20
	minHeaderMatches      = 2
)

type Config struct {
	// HeaderScanRows bounds how many leading records are searched for the
	// header row.
	HeaderScanRows int
	// LazyQuotes relaxes RFC 4180 quoting for hand-edited CSV files.
	LazyQuotes bool
}

type Parser struct {
	cfg Config
}

func New(cfg Config) *Parser {
	if cfg.HeaderScanRows <= 0 {
		cfg.HeaderScanRows = DefaultHeaderScanRows
	}
	return &Parser{cfg: cfg}
}

// Inspect reads data only as far as its header row and reports the errors
// Open would, so unreadable files are rejected before a job is queued.
func (p *Parser) Inspect(tableType domain.TableType, fileName string, data []byte) error {
	r, err := p.Open(tableType, fileName, data)
	if err != nil {
		return err
	}
	return r.Close()
}

// Open starts a streaming read of data for the given table type. The header
// is located before Open returns, so header problems surface here rather
// than on the first Next call.
func (p *Parser) Open(tableType domain.TableType, fileName string, data []byte) (domain.RowReader, error) {
	schema, err := domain.LookupSchema(tableType)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, domain.ErrNoData
	}

	format, err := DetectFormat(fileName, data)
	if err != nil {
		return nil, err
	}

	var src recordSource
	switch format {
	case FormatXLSX:
		src, err = newXLSXSource(data)
		if err != nil {
			return nil, err
		}
	default:
		src = newCSVSource(data, p.cfg.LazyQuotes)
	}

	r := &reader{src: src, schema: schema}
	if err := r.locateHeader(p.cfg.HeaderScanRows); err != nil {
		_ = src.close()
		return nil, err
	}
	return r, nil
}

type reader struct {
	src    recordSource
	schema *domain.Schema
	// columns maps a cell index to its field; zero means the column is ignored.
	columns   []domain.Field
	headerPos int
	read      int64
}

// locateHeader picks the first header-like row that maps an identifying
// field. A header-like row without one is only reported when nothing better
// follows within the scan window.
func (r *reader) locateHeader(scanRows int) error {
	seen := 0
	partial := false
	for seen < scanRows {
		cells, pos, err := r.src.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		seen++

		columns, matched := r.matchHeader(cells)
		if matched < r.requiredMatches() {
			continue
		}
		if !r.identifies(columns) {
			partial = true
			continue
		}
		r.columns = columns
		r.headerPos = pos
		r.src.markHeader()
		return nil
	}
	if seen == 0 {
		return domain.ErrNoData
	}
	if partial {
		missing := make([]string, len(r.schema.Identifying))
		for i, f := range r.schema.Identifying {
			missing[i] = f.Label()
		}
		return &domain.MissingColumnsError{TableType: r.schema.Type, Missing: missing}
	}
	return &domain.HeaderNotFoundError{
		TableType: r.schema.Type,
		Scanned:   seen,
		Expected:  r.schema.ExpectedColumns(),
	}
}

func (r *reader) identifies(columns []domain.Field) bool {
	for _, c := range columns {
		if c != 0 && slices.Contains(r.schema.Identifying, c) {
			return true
		}
	}
	return false
}

func (r *reader) requiredMatches() int {
	if len(r.schema.Fields) < minHeaderMatches {
		return len(r.schema.Fields)
	}
	return minHeaderMatches
}

// matchHeader resolves each cell against the schema aliases. When two cells
// map to the same field the leftmost one wins.
func (r *reader) matchHeader(cells []string) ([]domain.Field, int) {
	columns := make([]domain.Field, len(cells))
	taken := make(map[domain.Field]bool)
	for i, cell := range cells {
		f, ok := r.schema.Resolve(cell)
		if !ok || taken[f] {
			continue
		}
		taken[f] = true
		columns[i] = f
	}
	return columns, len(taken)
}

func (r *reader) Next(ctx context.Context) (domain.ParsedRow, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.ParsedRow{}, err
		}
		cells, pos, err := r.src.next()
		if err != nil {
			return domain.ParsedRow{}, err
		}

		values := r.mapCells(cells)
		if len(values) == 0 {
			continue
		}
		// Exports that paginate repeat the header row; skip those copies.
		if _, matched := r.matchHeader(cells); matched >= r.requiredMatches() {
			continue
		}
		r.read++
		return r.buildRow(int64(pos-r.headerPos), values), nil
	}
}

func (r *reader) mapCells(cells []string) map[domain.Field]string {
	values := make(map[domain.Field]string)
	for i, cell := range cells {
		if i >= len(r.columns) || r.columns[i] == 0 {
			continue
		}
		if v := strings.TrimSpace(cell); v != "" {
			values[r.columns[i]] = v
		}
	}
	return values
}

func (r *reader) buildRow(rowNumber int64, values map[domain.Field]string) domain.ParsedRow {
	row := domain.ParsedRow{RowNumber: rowNumber, Values: values, IsValid: true}

	for _, f := range r.schema.Fields {
		switch f.Kind() {
		case domain.KindDecimal:
			if raw, ok := values[f]; ok {
				values[f], _ = NormalizeDecimal(raw)
			}
		case domain.KindInteger:
			values[f] = NormalizeQuantity(values[f])
		}
	}

	identified := false
	for _, f := range r.schema.Identifying {
		if values[f] != "" {
			identified = true
			break
		}
	}
	if !identified {
		row.IsValid = false
		row.Errors = append(row.Errors, r.schema.IdentifyingLabel()+" is required")
	}
	return row
}

// EstimatedRows guesses the number of data rows from how far into the file
// the reader is (CSV) or from the sheet's recorded used range (XLSX).
func (r *reader) EstimatedRows() int64 {
	est := r.src.estimate(r.read)
	if est == 0 {
		return 0
	}
	return max(est, r.read)
}

func (r *reader) Close() error {
	return r.src.close()
}
