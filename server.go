package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/Xenon22pc/IR-Camera/htpa"
)

// frameSource is implemented by *htpa.Pipeline.
type frameSource interface {
	Ready() bool
	View(fn func(f *htpa.TemperatureFrame))
	Stats() htpa.Stats
	Ambient() float64
	Temperature(row, col int) float64
}

// calibrator is implemented by *htpa.Dev.
type calibrator interface {
	LoadCalibration(user bool) error
}

var errNoFrame = errors.New("no frame acquired yet")

func newRouter(src frameSource, cal calibrator) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !src.Ready() {
			writeError(w, http.StatusServiceUnavailable, errNoFrame)
			return
		}
		var reading FrameReading
		src.View(func(f *htpa.TemperatureFrame) {
			reading = NewFrameReading(f)
		})
		writeJSON(w, http.StatusOK, reading)
	}).Methods(http.MethodGet)

	r.HandleFunc("/ambient", func(w http.ResponseWriter, r *http.Request) {
		if !src.Ready() {
			writeError(w, http.StatusServiceUnavailable, errNoFrame)
			return
		}
		writeJSON(w, http.StatusOK, AmbientReading{Temperature: src.Ambient()})
	}).Methods(http.MethodGet)

	r.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		if !src.Ready() {
			writeError(w, http.StatusServiceUnavailable, errNoFrame)
			return
		}
		writeJSON(w, http.StatusOK, src.Stats())
	}).Methods(http.MethodGet)

	r.HandleFunc("/pixel/{row}/{col}", func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		row, err := pixelIndex(vars["row"], htpa.Rows)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		col, err := pixelIndex(vars["col"], htpa.Cols)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if !src.Ready() {
			writeError(w, http.StatusServiceUnavailable, errNoFrame)
			return
		}
		writeJSON(w, http.StatusOK, PixelReading{Row: row, Col: col, Temperature: src.Temperature(row, col)})
	}).Methods(http.MethodGet)

	r.HandleFunc("/calibration", func(w http.ResponseWriter, r *http.Request) {
		trim := r.URL.Query().Get("trim")
		var user bool
		switch trim {
		case "factory":
		case "user":
			user = true
		default:
			writeError(w, http.StatusBadRequest, errors.New(`trim must be "factory" or "user"`))
			return
		}
		if err := cal.LoadCalibration(user); err != nil {
			log.Printf("Couldn't load %s calibration: %v", trim, err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		log.Printf("Switched to %s trim", trim)
		writeJSON(w, http.StatusOK, CalibrationState{Trim: trim})
	}).Methods(http.MethodPut)

	return r
}

func pixelIndex(s string, n int) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 || i >= n {
		return 0, errors.New("pixel index " + strconv.Quote(s) + " out of range [0, " + strconv.Itoa(n-1) + "]")
	}
	return i, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	jsonStr, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(jsonStr); err != nil {
		log.Printf("Couldn't send response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}
