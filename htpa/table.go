package htpa

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
)

// Table is a lookup table mapping compensated pixel signal and ambient
// temperature to object temperature. It is specific to a sensor model and
// identified by the table number stored in each sensor's EEPROM.
type Table struct {
	Number uint16 `json:"table_number"`
	Name   string `json:"name,omitempty"`

	// PCScale scales compensated signals before the sensitivity division.
	PCScale float64 `json:"pc_scale"`
	// Offset is added to the signal before the row lookup.
	Offset int `json:"offset"`
	// RowShift is log2 of the signal distance between rows.
	RowShift uint `json:"row_shift"`
	// ColumnSpacing is the ambient distance between columns in dK.
	ColumnSpacing int `json:"column_spacing"`

	Ambient []int32    `json:"ambient"` // dK, strictly increasing
	Signal  []int32    `json:"signal"`
	Values  [][]uint32 `json:"values"` // dK, [len(Signal)][len(Ambient)]
}

// maxTableFileSize bounds table assets read from disk.
const maxTableFileSize = 4 * 1024 * 1024

// LoadTable reads a lookup table from a JSON file and validates it. If the
// table names a known sensor model, its constants are checked against it.
func LoadTable(path string) (*Table, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("table file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat table file: %w", err)
	}
	if fileInfo.Size() > maxTableFileSize {
		return nil, fmt.Errorf("table file too large: %d bytes (max %d)", fileInfo.Size(), maxTableFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read table file: %w", err)
	}

	t := &Table{}
	if err := json.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("failed to parse table JSON: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.Name != "" {
		if m, ok := LookupModel(t.Name); ok {
			if err := t.CheckModel(m); err != nil {
				return nil, err
			}
		} else {
			Logf("htpa: table %d: unknown sensor model %q, constants not checked", t.Number, t.Name)
		}
	}
	return t, nil
}

// Validate checks the table shape and constants.
func (t *Table) Validate() error {
	if len(t.Ambient) < 2 {
		return configErrorf("table %d: need at least 2 ambient columns, got %d", t.Number, len(t.Ambient))
	}
	for i := 1; i < len(t.Ambient); i++ {
		if t.Ambient[i] <= t.Ambient[i-1] {
			return configErrorf("table %d: ambient axis not strictly increasing at column %d", t.Number, i)
		}
	}
	if len(t.Signal) < 2 {
		return configErrorf("table %d: need at least 2 signal rows, got %d", t.Number, len(t.Signal))
	}
	if len(t.Values) != len(t.Signal) {
		return configErrorf("table %d: %d value rows for %d signal entries", t.Number, len(t.Values), len(t.Signal))
	}
	for r, row := range t.Values {
		if len(row) != len(t.Ambient) {
			return configErrorf("table %d: row %d has %d values, want %d", t.Number, r, len(row), len(t.Ambient))
		}
	}
	if t.ColumnSpacing <= 0 {
		return configErrorf("table %d: column spacing must be positive, got %d", t.Number, t.ColumnSpacing)
	}
	if !(t.PCScale > 0) || math.IsInf(t.PCScale, 0) {
		return configErrorf("table %d: pc scale must be positive, got %g", t.Number, t.PCScale)
	}
	if t.RowShift > 30 {
		return configErrorf("table %d: row shift %d too large", t.Number, t.RowShift)
	}
	return nil
}

// Column returns the ambient column index and the distance of ambient from
// that column's axis entry. The column is the last one whose entry is not
// above ambient, clamped so that c+1 is a valid column.
func (t *Table) Column(ambient float64) (int, float64) {
	c, dta, _ := t.column(ambient)
	return c, dta
}

func (t *Table) column(ambient float64) (c int, dta float64, clamped bool) {
	n := len(t.Ambient)
	if math.IsNaN(ambient) {
		return 0, 0, true
	}
	c = sort.Search(n, func(i int) bool { return float64(t.Ambient[i]) > ambient }) - 1
	if c < 0 {
		return 0, 0, true
	}
	if c > n-2 {
		c = n - 2
	}
	dta = ambient - float64(t.Ambient[c])
	if spacing := float64(t.ColumnSpacing); dta > spacing {
		dta, clamped = spacing, true
	}
	return c, dta, clamped
}

// row returns the signal row index and the fractional position between row r
// and r+1.
func (t *Table) row(v float64) (r int, frac float64, clamped bool) {
	x := v + float64(t.Offset)
	if math.IsNaN(x) {
		return 0, 0, true
	}
	step := float64(int64(1) << t.RowShift)
	rf := math.Floor(x / step)
	switch last := float64(len(t.Signal) - 2); {
	case rf < 0:
		return 0, 0, true
	case rf > last:
		r, clamped = len(t.Signal)-2, true
	default:
		r = int(rf)
	}
	frac = (x - float64(t.Signal[r])) / step
	switch {
	case frac < 0:
		frac = 0
	case frac > 1:
		frac = 1
	}
	return r, frac, clamped
}

// Temperature converts a compensated pixel signal into °C at the given
// ambient temperature in dK. The second result reports whether either index
// had to be clamped to the table bounds.
func (t *Table) Temperature(vPixC, ambientDK float64, globalOffset int8) (float64, bool) {
	c, dta, cc := t.column(ambientDK)
	r, frac, rc := t.row(vPixC)
	return t.interpolate(r, c, frac, dta, globalOffset), cc || rc
}

// Decode converts a whole frame of compensated signals and returns the number
// of clamped pixels.
func (t *Table) Decode(signal *[Rows][Cols]float64, ambientDK float64, globalOffset int8, out *[Rows][Cols]float64) int {
	c, dta, cc := t.column(ambientDK)
	clamped := 0
	for i := range signal {
		for j, v := range signal[i] {
			r, frac, rc := t.row(v)
			out[i][j] = t.interpolate(r, c, frac, dta, globalOffset)
			if cc || rc {
				clamped++
			}
		}
	}
	return clamped
}

func (t *Table) interpolate(r, c int, frac, dta float64, globalOffset int8) float64 {
	k := dta / float64(t.ColumnSpacing)
	lo, hi := t.Values[r], t.Values[r+1]
	vx := float64(lo[c]) + (float64(lo[c+1])-float64(lo[c]))*k
	vy := float64(hi[c]) + (float64(hi[c+1])-float64(hi[c]))*k
	raw := vx + (vy-vx)*frac
	return DKToCelsius(raw + float64(globalOffset))
}

// DKToCelsius converts tenths of a Kelvin into °C.
func DKToCelsius(dk float64) float64 {
	return dk/10 - 273.15
}
