package parser

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
)

// recordSource yields raw cell records together with their 1-based physical
// position in the file (line for CSV, sheet row for XLSX).
type recordSource interface {
	next() ([]string, int, error)
	// markHeader records the current position as the end of the header row.
	markHeader()
	// estimate extrapolates how many records follow the header once read of
	// them have been consumed. Zero means unknown.
	estimate(read int64) int64
	close() error
}

type csvSource struct {
	r *csv.Reader
	// size approximates the decoded length of the input; start is the
	// decoded offset just past the header row.
	size  int64
	start int64
}

const sniffWindow = 64 * 1024

func newCSVSource(data []byte, lazyQuotes bool) *csvSource {
	br := bufio.NewReaderSize(textReader(data), sniffWindow)
	// Peek returns what it could read alongside ErrBufferFull or io.EOF.
	sample, _ := br.Peek(sniffWindow)

	r := csv.NewReader(br)
	r.Comma = sniffDelimiter(sample)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true
	r.LazyQuotes = lazyQuotes

	size := int64(len(data))
	if hasUTF16BOM(data) {
		size /= 2
	}
	return &csvSource{r: r, size: size}
}

func (s *csvSource) next() ([]string, int, error) {
	record, err := s.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, io.EOF
		}
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrCorruptFile, err)
	}
	line, _ := s.r.FieldPos(0)
	return record, line, nil
}

func (s *csvSource) markHeader() { s.start = s.r.InputOffset() }

func (s *csvSource) estimate(read int64) int64 {
	consumed := s.r.InputOffset() - s.start
	if read <= 0 || consumed <= 0 || s.size <= s.start {
		return 0
	}
	return read * (s.size - s.start) / consumed
}

func (s *csvSource) close() error { return nil }

// sniffDelimiter picks the candidate that splits the sampled lines most
// consistently, preferring the one with the highest count on the first
// non-empty lines. Comma wins ties.
func sniffDelimiter(sample []byte) rune {
	candidates := []rune{',', ';', '\t'}
	lines := bytes.Split(sample, []byte("\n"))
	if len(lines) > 20 {
		lines = lines[:20]
	}

	best, bestScore := ',', 0
	for _, c := range candidates {
		score := 0
		for _, line := range lines {
			score += bytes.Count(line, []byte(string(c)))
		}
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	return best
}

type xlsxSource struct {
	file *excelize.File
	rows *excelize.Rows
	pos  int
	// last is the final used row from the sheet dimension, zero when the
	// workbook does not record one.
	last  int
	start int
}

func newXLSXSource(data []byte) (*xlsxSource, error) {
	if !bytes.HasPrefix(data, zipMagic) {
		return nil, domain.ErrCorruptFile
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorruptFile, err)
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		_ = f.Close()
		return nil, domain.ErrNoData
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrCorruptFile, err)
	}
	// Read after Rows so the loaded sheet is not flushed back into the
	// package the row iterator streams from.
	return &xlsxSource{file: f, rows: rows, last: lastDimensionRow(f, sheets[0])}, nil
}

// lastDimensionRow reads the bottom row of the sheet's used range, e.g.
// 20001 for "A1:F20001".
func lastDimensionRow(f *excelize.File, sheet string) int {
	ref, err := f.GetSheetDimension(sheet)
	if err != nil || ref == "" {
		return 0
	}
	if i := strings.LastIndexByte(ref, ':'); i >= 0 {
		ref = ref[i+1:]
	}
	_, row, err := excelize.CellNameToCoordinates(ref)
	if err != nil {
		return 0
	}
	return row
}

func (s *xlsxSource) next() ([]string, int, error) {
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", domain.ErrCorruptFile, err)
		}
		return nil, 0, io.EOF
	}
	s.pos++
	cols, err := s.rows.Columns()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrCorruptFile, err)
	}
	return cols, s.pos, nil
}

func (s *xlsxSource) markHeader() { s.start = s.pos }

func (s *xlsxSource) estimate(int64) int64 {
	if s.last <= s.start {
		return 0
	}
	return int64(s.last - s.start)
}

func (s *xlsxSource) close() error {
	rowsErr := s.rows.Close()
	if err := s.file.Close(); err != nil {
		return err
	}
	return rowsErr
}
