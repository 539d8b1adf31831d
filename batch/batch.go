// Package batch reads and writes the tabular batch query format: a CSV with
// any of the columns soil, temp, humidity and crop, returned with one
// verdict column appended.
package batch

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/liamcoop/irrigation/irrigation"
)

// Recognised column names after normalisation
const (
	ColumnSoil     = "soil"
	ColumnTemp     = "temp"
	ColumnHumidity = "humidity"
	ColumnCrop     = "crop"
)

// Values used for missing columns and empty cells
const (
	DefaultSoil     = 40.0
	DefaultTemp     = 30.0
	DefaultHumidity = 50.0
	DefaultCrop     = "Wheat"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// naValues are cell spellings treated as missing, as spreadsheet exports
// commonly write them
var naValues = map[string]bool{
	"": true, "na": true, "n/a": true, "#n/a": true, "nan": true, "-nan": true,
	"null": true, "none": true, "<na>": true,
}

// Record is one parsed input row
type Record struct {
	Line   int // 1-based line in the file, header is line 1
	Sample irrigation.EnvironmentSample
	Crop   string
}

// Table is a parsed batch file. The raw cells are kept so the output
// reproduces the input exactly.
type Table struct {
	Header  []string
	Rows    [][]string
	Records []Record
	columns map[string]int
}

// Columns reports which recognised columns the file carries
func (t *Table) Columns() []string {
	out := make([]string, 0, 4)
	for _, name := range []string{ColumnSoil, ColumnTemp, ColumnHumidity, ColumnCrop} {
		if _, ok := t.columns[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Len returns the number of data rows
func (t *Table) Len() int { return len(t.Rows) }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), irrigation.ErrInvalidInput)
}

// malformed keeps the reader's error in the chain so callers can still
// tell an oversized upload from a broken file
func malformed(err error) error {
	return fmt.Errorf("malformed CSV: %w: %w", err, irrigation.ErrInvalidInput)
}

// Read parses a batch file. Header names are trimmed and compared
// case-insensitively; the first occurrence of a name wins. Any problem is
// reported as a single irrigation.ErrInvalidInput.
func Read(r io.Reader) (*Table, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, invalid("file is empty")
	}
	if err != nil {
		return nil, malformed(err)
	}

	t := &Table{Header: header, columns: make(map[string]int)}
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		switch key {
		case ColumnSoil, ColumnTemp, ColumnHumidity, ColumnCrop:
			if _, dup := t.columns[key]; !dup {
				t.columns[key] = i
			}
		}
	}
	if len(t.columns) == 0 {
		return nil, invalid("no recognised columns in header %q (want any of soil, temp, humidity, crop)", strings.Join(header, ","))
	}

	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, malformed(err)
		}
		line, _ := cr.FieldPos(0)

		rec, err := t.parse(row, line)
		if err != nil {
			return nil, err
		}
		t.Rows = append(t.Rows, row)
		t.Records = append(t.Records, rec)
	}

	return t, nil
}

func (t *Table) cell(row []string, column string) (string, bool) {
	i, ok := t.columns[column]
	if !ok || i >= len(row) {
		return "", false
	}
	v := strings.TrimSpace(row[i])
	if naValues[strings.ToLower(v)] {
		return "", false
	}
	return v, true
}

func (t *Table) number(row []string, column string, line int, def float64) (float64, error) {
	v, ok := t.cell(row, column)
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, invalid("line %d: column %s: %q is not a number", line, column, v)
	}
	if math.IsNaN(f) {
		return def, nil
	}
	return f, nil
}

func (t *Table) parse(row []string, line int) (Record, error) {
	rec := Record{Line: line, Crop: DefaultCrop}

	var err error
	if rec.Sample.SoilMoisture, err = t.number(row, ColumnSoil, line, DefaultSoil); err != nil {
		return Record{}, err
	}
	if rec.Sample.Temperature, err = t.number(row, ColumnTemp, line, DefaultTemp); err != nil {
		return Record{}, err
	}
	if rec.Sample.Humidity, err = t.number(row, ColumnHumidity, line, DefaultHumidity); err != nil {
		return Record{}, err
	}
	if crop, ok := t.cell(row, ColumnCrop); ok {
		rec.Crop = crop
	}
	return rec, nil
}

// AppendColumn adds a column with one value per row. A column of the same
// name (case-insensitive) is replaced instead, so re-running a batch over
// its own output does not stack verdict columns.
func (t *Table) AppendColumn(name string, values []string) error {
	if len(values) != len(t.Rows) {
		return fmt.Errorf("column %s has %d values for %d rows", name, len(values), len(t.Rows))
	}

	pos := -1
	for i, h := range t.Header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			pos = i
			break
		}
	}
	if pos < 0 {
		t.Header = append(t.Header, name)
	} else {
		t.Header[pos] = name
	}

	for i, row := range t.Rows {
		if pos < 0 {
			t.Rows[i] = append(row, values[i])
			continue
		}
		for len(row) <= pos {
			row = append(row, "")
		}
		row[pos] = values[i]
		t.Rows[i] = row
	}
	return nil
}

// Write renders the table as CSV
func (t *Table) Write(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}
