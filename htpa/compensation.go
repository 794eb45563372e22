package htpa

import "math"

// Sensitivity holds the per-pixel sensitivity coefficients PixC.
type Sensitivity [Rows][Cols]float64

// NewSensitivity derives the sensitivity coefficients from p. Every entry must
// be finite and non-zero.
func NewSensitivity(p *Profile) (*Sensitivity, error) {
	s := new(Sensitivity)
	span := float64(p.PixCMax) - float64(p.PixCMin)
	eps := float64(p.Epsilon) / 100
	gain := float64(p.GlobalGain) / 10000
	for i := range s {
		for j := range s[i] {
			c := (float64(p.P[i][j])*span/65535 + float64(p.PixCMin)) * eps * gain
			if c == 0 || math.IsNaN(c) || math.IsInf(c, 0) {
				return nil, configErrorf("pixel (%d,%d) has sensitivity %g", i, j, c)
			}
			s[i][j] = c
		}
	}
	return s, nil
}

// rowGroup maps a logical row to its electrical offset and VDD compensation
// row group.
func rowGroup(row int) int {
	if row < Rows/2 {
		return row % blockRows
	}
	return row%blockRows + Blocks
}

// Compensate applies thermal gradient, electrical offset, supply voltage and
// sensitivity compensation to m and writes the result to out.
//
// Up to the sensitivity step all arithmetic is integer, and the scale shifts
// are arithmetic: negative intermediates round toward negative infinity.
func Compensate(p *Profile, s *Sensitivity, m *PixelMatrix, pcScale float64, out *[Rows][Cols]float64) error {
	if p.PTATThreshold1 == p.PTATThreshold2 {
		return configErrorf("PTAT thresholds are equal (%d)", p.PTATThreshold1)
	}
	ptat := int64(m.PTATAvg)
	vdd := int64(m.VDDAvg)
	slope := (int64(p.VDDThreshold2) - int64(p.VDDThreshold1)) / (int64(p.PTATThreshold2) - int64(p.PTATThreshold1))
	vddDelta := vdd - int64(p.VDDThreshold1) - slope*(ptat-int64(p.PTATThreshold1))

	for i := 0; i < Rows; i++ {
		g := rowGroup(i)
		for j := 0; j < Cols; j++ {
			v := int64(m.Counts[i][j]) - (int64(p.ThGrad[i][j])*ptat)>>p.GradScale - int64(p.ThOffset[i][j])
			v -= int64(m.ElOffsets[g][j])
			v -= (((int64(p.VddCompGrad[g][j])*ptat)>>p.VDDScaleGrad + int64(p.VddCompOff[g][j])) * vddDelta) >> p.VDDScaleOff
			out[i][j] = float64(v) * pcScale / s[i][j]
		}
	}
	return nil
}
