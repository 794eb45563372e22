package main

import (
	"time"

	"github.com/Xenon22pc/IR-Camera/htpa"
)

const updatedFormat = "2006-01-02 15:04:05" // ISO 8601 without timezone

type FrameReading struct {
	Ambient      float64                       `json:"ambient"`
	Temperatures [htpa.Rows][htpa.Cols]float64 `json:"temperatures"`
	PTAT         uint16                        `json:"ptat"`
	VDD          uint16                        `json:"vdd"`
	Clamped      int                           `json:"clamped"`
	Updated      time.Time                     `json:"-"`
	UpdatedStr   string                        `json:"updated"`
}

func NewFrameReading(f *htpa.TemperatureFrame) FrameReading {
	return FrameReading{
		Ambient:      f.Ambient,
		Temperatures: f.Temps,
		PTAT:         f.PTATAvg,
		VDD:          f.VDDAvg,
		Clamped:      f.Clamped,
		Updated:      f.Time,
		UpdatedStr:   f.Time.Format(updatedFormat),
	}
}

type AmbientReading struct {
	Temperature float64 `json:"temperature"`
}

type PixelReading struct {
	Row         int     `json:"row"`
	Col         int     `json:"col"`
	Temperature float64 `json:"temperature"`
}

type CalibrationState struct {
	Trim string `json:"trim"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
