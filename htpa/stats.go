package htpa

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats summarizes one temperature frame. Temperatures are in °C.
type Stats struct {
	Time    time.Time `json:"time"`
	Ambient float64   `json:"ambient"`
	Min     float64   `json:"min"`
	Max     float64   `json:"max"`
	Mean    float64   `json:"mean"`
	// Center is the mean of the four pixels around the optical centre.
	Center  float64 `json:"center"`
	Clamped int     `json:"clamped"`
}

// Stats computes the frame summary.
func (f *TemperatureFrame) Stats() Stats {
	flat := make([]float64, 0, Pixels)
	for i := range f.Temps {
		flat = append(flat, f.Temps[i][:]...)
	}
	r, c := Rows/2, Cols/2
	return Stats{
		Time:    f.Time,
		Ambient: f.Ambient,
		Min:     floats.Min(flat),
		Max:     floats.Max(flat),
		Mean:    stat.Mean(flat, nil),
		Center:  (f.Temps[r-1][c-1] + f.Temps[r-1][c] + f.Temps[r][c-1] + f.Temps[r][c]) / 4,
		Clamped: f.Clamped,
	}
}
