package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/araddon/dateparse"
	"github.com/hashicorp/go-multierror"
	"github.com/iancoleman/strcase"
	"github.com/spf13/afero"

	"github.com/encyc/feishu-table-go/pkg/feishu"
)

// CSVOptions tunes CSV parsing.
type CSVOptions struct {
	// Comma is the field delimiter.
	// Default: ','
	Comma rune

	// NormalizeHeaders converts column headers to snake_case field names,
	// e.g. "Created At" becomes "created_at".
	NormalizeHeaders bool

	// TimestampColumns lists headers (post-normalization) whose cells are
	// parsed as timestamps and converted to epoch milliseconds. Columns not
	// listed here are still parsed as timestamps when the cell is not a
	// number or boolean and parses as a date.
	TimestampColumns []string
}

// CSVSource reads records from a CSV file. The first row supplies field
// names; subsequent rows become one record each, with per-cell type
// inference (boolean, number, timestamp, string). Empty cells become nil so
// record sanitization renders them as empty strings.
type CSVSource struct {
	fs   afero.Fs
	path string
	opts CSVOptions
}

var _ Source = (*CSVSource)(nil)

// NewCSVSource creates a CSV source reading path through fs.
func NewCSVSource(fs afero.Fs, path string, opts *CSVOptions) *CSVSource {
	s := &CSVSource{fs: fs, path: path}
	if opts != nil {
		s.opts = *opts
	}
	if s.opts.Comma == 0 {
		s.opts.Comma = ','
	}
	return s
}

// Records reads the whole file. Rows that fail to parse are skipped and
// their errors aggregated; the returned records cover every well-formed row
// even when an error is returned.
func (s *CSVSource) Records() ([]*feishu.Record, error) {
	f, err := s.fs.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", s.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = s.opts.Comma
	r.FieldsPerRecord = -1 // row length checked against the header below

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: missing header row", s.path)
		}
		return nil, fmt.Errorf("failed to read header from %s: %w", s.path, err)
	}

	fields := make([]string, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if s.opts.NormalizeHeaders {
			name = strcase.ToSnake(name)
		}
		fields[i] = name
	}

	timestampCols := make(map[string]bool, len(s.opts.TimestampColumns))
	for _, col := range s.opts.TimestampColumns {
		timestampCols[col] = true
	}

	var records []*feishu.Record
	var errs *multierror.Error

	for line := 2; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		if len(row) != len(fields) {
			errs = multierror.Append(errs,
				fmt.Errorf("line %d: expected %d columns, got %d", line, len(fields), len(row)))
			continue
		}

		rec := feishu.NewRecord()
		for i, cell := range row {
			rec.Set(fields[i], convertCell(cell, timestampCols[fields[i]]))
		}
		records = append(records, rec)
	}

	return records, errs.ErrorOrNil()
}

// convertCell infers a cell's value type. Order matters: booleans and
// numbers before timestamps, so "2023" stays a number rather than a year.
func convertCell(cell string, timestamp bool) any {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil
	}

	if timestamp {
		if t, err := dateparse.ParseAny(cell); err == nil {
			return t.UnixMilli()
		}
		return cell
	}

	switch strings.ToLower(cell) {
	case "true":
		return true
	case "false":
		return false
	}

	if i, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		return f
	}

	if looksLikeDate(cell) {
		if t, err := dateparse.ParseAny(cell); err == nil {
			return t.UnixMilli()
		}
	}

	return cell
}

// looksLikeDate gates dateparse so ordinary strings are not misread as
// dates. Requires a digit plus a date separator.
func looksLikeDate(s string) bool {
	if !strings.ContainsAny(s, "0123456789") {
		return false
	}
	return strings.ContainsAny(s, "-/:")
}
