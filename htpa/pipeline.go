package htpa

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// TemperatureFrame is one fully processed frame.
type TemperatureFrame struct {
	Temps   [Rows][Cols]float64 // °C
	Ambient float64             // °C
	PTATAvg uint16
	VDDAvg  uint16
	Time    time.Time
	// Clamped counts pixels whose lookup fell outside the table.
	Clamped int
}

// At returns the temperature of one pixel. It panics if the coordinates are
// outside the array.
func (f *TemperatureFrame) At(row, col int) float64 {
	if row < 0 || row >= Rows || col < 0 || col >= Cols {
		panic(fmt.Sprintf("htpa: pixel (%d,%d) out of range", row, col))
	}
	return f.Temps[row][col]
}

// Pipeline turns raw frames into temperature frames.
//
// Process holds the write lock for the whole run; readers share the read lock
// and always see the last frame that completed successfully.
type Pipeline struct {
	table *Table

	mu      sync.RWMutex
	profile *Profile
	sens    *Sensitivity
	user    bool
	dec     Decoder
	matrix  PixelMatrix
	signal  [Rows][Cols]float64
	front   *TemperatureFrame
	back    *TemperatureFrame
	ready   bool
	now     func() time.Time
}

// NewPipeline returns a pipeline for profile p using factory trim.
func NewPipeline(p *Profile, t *Table) (*Pipeline, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	pl := &Pipeline{
		table: t,
		front: new(TemperatureFrame),
		back:  new(TemperatureFrame),
		now:   time.Now,
	}
	if err := pl.LoadCalibration(p, false); err != nil {
		return nil, err
	}
	return pl, nil
}

// LoadCalibration replaces the calibration in use. user only records which
// trim set the caller programmed into the sensor.
//
// The swap waits for an in-flight Process to finish.
func (pl *Pipeline) LoadCalibration(p *Profile, user bool) error {
	if p.PTATThreshold1 == p.PTATThreshold2 {
		return configErrorf("PTAT thresholds are equal (%d)", p.PTATThreshold1)
	}
	if !isFinite(p.PTATGradient) || !isFinite(p.PTATOffset) {
		return configErrorf("PTAT gradient %g or offset %g is not finite", p.PTATGradient, p.PTATOffset)
	}
	if err := checkDeadPixels(p.DeadPixels); err != nil {
		return err
	}
	s, err := NewSensitivity(p)
	if err != nil {
		return err
	}
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.profile, pl.sens, pl.user = p, s, user
	return nil
}

// Process runs one raw frame through decode, compensation, table lookup and
// dead pixel repair. On error the previously published frame is kept.
func (pl *Pipeline) Process(raw *RawFrame) error {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	pl.dec.Decode(raw, &pl.matrix)
	if !pl.matrix.Ready() {
		return ErrNotReady
	}
	p := pl.profile
	if err := Compensate(p, pl.sens, &pl.matrix, pl.table.PCScale, &pl.signal); err != nil {
		return err
	}
	ambient := p.AmbientDK(pl.matrix.PTATAvg)
	f := pl.back
	f.Clamped = pl.table.Decode(&pl.signal, ambient, p.GlobalOffset, &f.Temps)
	if err := Repair(&f.Temps, p.DeadPixels); err != nil {
		return err
	}
	f.Ambient = DKToCelsius(ambient)
	f.PTATAvg = pl.matrix.PTATAvg
	f.VDDAvg = pl.matrix.VDDAvg
	f.Time = pl.now()

	pl.front, pl.back = pl.back, pl.front
	pl.ready = true
	return nil
}

// Ready reports whether a frame has been published.
func (pl *Pipeline) Ready() bool {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	return pl.ready
}

// Temperature returns the temperature of one pixel of the last frame in °C.
// It panics if the coordinates are outside the array.
func (pl *Pipeline) Temperature(row, col int) float64 {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	return pl.front.At(row, col)
}

// Ambient returns the sensor's own temperature for the last frame in °C.
func (pl *Pipeline) Ambient() float64 {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	return pl.front.Ambient
}

// View calls fn with the last frame under the read lock. fn must not retain f.
func (pl *Pipeline) View(fn func(f *TemperatureFrame)) {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	fn(pl.front)
}

// Snapshot returns a copy of the last frame.
func (pl *Pipeline) Snapshot() TemperatureFrame {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	return *pl.front
}

// Stats summarizes the last frame.
func (pl *Pipeline) Stats() Stats {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	return pl.front.Stats()
}

// Profile returns the calibration in use and whether user trim is selected.
func (pl *Pipeline) Profile() (*Profile, bool) {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	return pl.profile, pl.user
}

func isFinite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
