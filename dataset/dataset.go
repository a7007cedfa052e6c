// Package dataset provides the column-oriented covariate table consumed by
// model fitting. Columns are float64 slices addressed by variable name.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/neurogo/clustergam/pkg/errors"
)

// Dataset is a named collection of equal-length float64 columns.
type Dataset struct {
	names []string
	cols  [][]float64
	index map[string]int
}

// New builds a dataset from names and columns. All columns must have equal
// length and names must be unique.
func New(names []string, cols [][]float64) (*Dataset, error) {
	if len(names) != len(cols) {
		return nil, errors.NewDimensionError("dataset.New", len(names), len(cols), 1)
	}
	if len(cols) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "dataset.New")
	}

	n := len(cols[0])
	index := make(map[string]int, len(names))
	for i, name := range names {
		if name == "" {
			return nil, errors.NewValueError("dataset.New", "empty column name")
		}
		if _, dup := index[name]; dup {
			return nil, errors.NewValueError("dataset.New", fmt.Sprintf("duplicate column name %q", name))
		}
		if len(cols[i]) != n {
			return nil, errors.NewDimensionError("dataset.New", n, len(cols[i]), 0)
		}
		index[name] = i
	}

	return &Dataset{names: names, cols: cols, index: index}, nil
}

// NRows returns the number of rows.
func (d *Dataset) NRows() int {
	if len(d.cols) == 0 {
		return 0
	}
	return len(d.cols[0])
}

// Names returns the column names in order.
func (d *Dataset) Names() []string { return d.names }

// Has reports whether a column exists.
func (d *Dataset) Has(name string) bool {
	_, ok := d.index[name]
	return ok
}

// Column returns the column with the given name. The slice aliases the
// dataset's storage.
func (d *Dataset) Column(name string) ([]float64, error) {
	i, ok := d.index[name]
	if !ok {
		return nil, errors.NewValueError("dataset.Column", fmt.Sprintf("no column named %q", name))
	}
	return d.cols[i], nil
}

// AddColumn appends a column. The column length must match NRows and the
// name must be new.
func (d *Dataset) AddColumn(name string, col []float64) error {
	if _, dup := d.index[name]; dup {
		return errors.NewValueError("dataset.AddColumn", fmt.Sprintf("duplicate column name %q", name))
	}
	if len(col) != d.NRows() {
		return errors.NewDimensionError("dataset.AddColumn", d.NRows(), len(col), 0)
	}
	d.index[name] = len(d.cols)
	d.names = append(d.names, name)
	d.cols = append(d.cols, col)
	return nil
}

// ReplaceColumn swaps the storage of an existing column. The new column
// length must match NRows.
func (d *Dataset) ReplaceColumn(name string, col []float64) error {
	i, ok := d.index[name]
	if !ok {
		return errors.NewValueError("dataset.ReplaceColumn", fmt.Sprintf("no column named %q", name))
	}
	if len(col) != d.NRows() {
		return errors.NewDimensionError("dataset.ReplaceColumn", d.NRows(), len(col), 0)
	}
	d.cols[i] = col
	return nil
}

// Clone returns a copy sharing column storage but with independent name and
// column slices, so AddColumn on the clone does not affect the original.
func (d *Dataset) Clone() *Dataset {
	names := make([]string, len(d.names))
	copy(names, d.names)
	cols := make([][]float64, len(d.cols))
	copy(cols, d.cols)
	index := make(map[string]int, len(d.index))
	for k, v := range d.index {
		index[k] = v
	}
	return &Dataset{names: names, cols: cols, index: index}
}

// FromCSV reads a dataset from CSV with a header row of column names and
// numeric cells.
func FromCSV(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "dataset.FromCSV: header")
	}

	cols := make([][]float64, len(header))
	row := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "dataset.FromCSV")
		}
		row++
		for i, cell := range rec {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, errors.NewValueError("dataset.FromCSV",
					fmt.Sprintf("row %d, column %q: non-numeric value %q", row, header[i], cell))
			}
			cols[i] = append(cols[i], v)
		}
	}
	if row == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "dataset.FromCSV")
	}

	return New(header, cols)
}
