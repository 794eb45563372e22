package htpa

import "strings"

// Model describes the lookup table constants of one sensor model.
type Model struct {
	Name          string
	TableNumber   uint16
	PCScale       float64
	Offset        int
	RowShift      uint
	ColumnSpacing int
	Columns       int // ambient axis entries
	Rows          int // signal axis entries
}

const modelPrefix = "HTPA32x32dR2L"

// Models lists the supported sensor models.
var Models = []Model{
	{Name: modelPrefix + "5_0HiGeF7_7_Gain3k3_Fever", TableNumber: 113, PCScale: 1e8, Offset: 1024, RowShift: 3, ColumnSpacing: 25, Columns: 19, Rows: 1595},
	{Name: modelPrefix + "5_0HiGeF7_7_Gain3k3", TableNumber: 113, PCScale: 1e8, Offset: 1024, RowShift: 6, ColumnSpacing: 100, Columns: 7, Rows: 1595},
	{Name: modelPrefix + "5_0HiGeF7_7_Gain3k3_TaExtended", TableNumber: 113, PCScale: 1e8, Offset: 1024, RowShift: 6, ColumnSpacing: 100, Columns: 12, Rows: 1595},
	{Name: modelPrefix + "1_6HiGe_Gain3k3", TableNumber: 119, PCScale: 1e8, Offset: 1024, RowShift: 6, ColumnSpacing: 100, Columns: 7, Rows: 1595},
	{Name: modelPrefix + "2_1SiF5_0_N2", TableNumber: 130, PCScale: 1e8, Offset: 192, RowShift: 6, ColumnSpacing: 100, Columns: 7, Rows: 1595},
	{Name: modelPrefix + "2_1HiSiF5_0_Gain3k3", TableNumber: 114, PCScale: 1e8, Offset: 1024, RowShift: 6, ColumnSpacing: 100, Columns: 7, Rows: 1595},
	{Name: modelPrefix + "2_1HiSiF5_0_Gain3k3_Extended", TableNumber: 114, PCScale: 1e8, Offset: 1792, RowShift: 6, ColumnSpacing: 100, Columns: 12, Rows: 1595},
	{Name: modelPrefix + "2_1HiSiF5_0_Precise", TableNumber: 116, PCScale: 1e8, Offset: 1024, RowShift: 5, ColumnSpacing: 50, Columns: 22, Rows: 1000},
	{Name: modelPrefix + "2_85Hi_Gain3k3", TableNumber: 127, PCScale: 1e8, Offset: 1024, RowShift: 6, ColumnSpacing: 100, Columns: 7, Rows: 1595},
	{Name: modelPrefix + "3_6HiSi_Rev1_Gain3k3", TableNumber: 117, PCScale: 1e8, Offset: 1024, RowShift: 6, ColumnSpacing: 100, Columns: 7, Rows: 1595},
	{Name: modelPrefix + "3_6HiSi_Rev1_Gain3k3_TaExtended", TableNumber: 117, PCScale: 1e8, Offset: 1024, RowShift: 6, ColumnSpacing: 100, Columns: 12, Rows: 1595},
	{Name: modelPrefix + "7_0HiSi_Gain3k3", TableNumber: 118, PCScale: 1e8, Offset: 640, RowShift: 6, ColumnSpacing: 100, Columns: 7, Rows: 1595},
	{Name: modelPrefix + "1k8_0k7HiGe", TableNumber: 115, PCScale: 1e8, Offset: 1024, RowShift: 6, ColumnSpacing: 100, Columns: 10, Rows: 471},
	{Name: modelPrefix + "1k8_0k7HiGe_TaExtended", TableNumber: 115, PCScale: 1e8, Offset: 1024, RowShift: 6, ColumnSpacing: 100, Columns: 12, Rows: 471},
}

// DefaultModel is the sensor model fitted to the reference camera board.
const DefaultModel = modelPrefix + "2_1HiSiF5_0_Gain3k3"

// LookupModel finds a model by name. The HTPA32x32dR2L prefix is optional and
// case is ignored.
func LookupModel(name string) (Model, bool) {
	for _, m := range Models {
		if strings.EqualFold(m.Name, name) || strings.EqualFold(strings.TrimPrefix(m.Name, modelPrefix), name) {
			return m, true
		}
	}
	return Model{}, false
}

// CheckModel reports whether t carries the constants and shape of m.
func (t *Table) CheckModel(m Model) error {
	switch {
	case t.Number != m.TableNumber:
		return configErrorf("table %d: model %s uses table %d", t.Number, m.Name, m.TableNumber)
	case t.PCScale != m.PCScale:
		return configErrorf("table %d: pc scale %g, model %s uses %g", t.Number, t.PCScale, m.Name, m.PCScale)
	case t.Offset != m.Offset:
		return configErrorf("table %d: offset %d, model %s uses %d", t.Number, t.Offset, m.Name, m.Offset)
	case t.RowShift != m.RowShift:
		return configErrorf("table %d: row shift %d, model %s uses %d", t.Number, t.RowShift, m.Name, m.RowShift)
	case t.ColumnSpacing != m.ColumnSpacing:
		return configErrorf("table %d: column spacing %d, model %s uses %d", t.Number, t.ColumnSpacing, m.Name, m.ColumnSpacing)
	case len(t.Ambient) != m.Columns || len(t.Signal) != m.Rows:
		return configErrorf("table %d: %dx%d values, model %s uses %dx%d", t.Number, len(t.Signal), len(t.Ambient), m.Name, m.Rows, m.Columns)
	}
	return nil
}
