// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package htpa

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

const (
	AddrConfig byte = 0x01 // write-only
	AddrStatus byte = 0x02 // read-only

	// trim registers, written in this order

	AddrTrim1 byte = 0x03 // MBIT
	AddrTrim2 byte = 0x04 // BIAS, left
	AddrTrim3 byte = 0x05 // BIAS, right
	AddrTrim4 byte = 0x06 // CLK
	AddrTrim5 byte = 0x07 // BPA, left
	AddrTrim6 byte = 0x08 // BPA, right
	AddrTrim7 byte = 0x09 // PU

	// data registers

	AddrReadTop    byte = 0x0A
	AddrReadBottom byte = 0x0B
)

// config register bits
const (
	configWakeup byte = 1 << 0
	configBlind  byte = 1 << 1
	configVDD    byte = 1 << 2
	configStart  byte = 1 << 3
	configBlock       = 4 // shift

	statusEOC byte = 1 << 0
)

// Default bus settings. The EEPROM does not go faster than 400kHz.
const (
	DefaultSensorAddr uint16 = 0x1A
	DefaultEEPROMAddr uint16 = 0x50

	SensorMaxSpeed = physic.MegaHertz
	EEPROMMaxSpeed = 400 * physic.KiloHertz
)

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	SensorAddr:   DefaultSensorAddr,
	EEPROMAddr:   DefaultEEPROMAddr,
	ReadyTimeout: time.Second,
	VDDPeriod:    10 * time.Second,
}

// Opts defines the options for the device.
type Opts struct {
	SensorAddr uint16
	EEPROMAddr uint16
	// UserTrim programs the user trim set instead of the factory one.
	UserTrim bool
	// ReadyTimeout bounds the wait for each end of conversion.
	ReadyTimeout time.Duration
	// VDDPeriod is how often a cycle samples VDD instead of PTAT in the block
	// headers. The first cycle always samples VDD.
	VDDPeriod time.Duration
}

// NewI2C returns an object that communicates over I²C to an HTPA32x32
// thermopile array. The calibration is read from the sensor EEPROM; table
// must be the lookup table for the sensor model.
//
// A table number mismatch is logged and the device is still returned.
//
// It is recommended to call Halt() when done with the device so it stops
// sampling.
func NewI2C(b i2c.Bus, table *Table, opts *Opts) (*Dev, error) {
	o := DefaultOpts
	if opts != nil {
		o = *opts
		if o.SensorAddr == 0 {
			o.SensorAddr = DefaultSensorAddr
		}
		if o.EEPROMAddr == 0 {
			o.EEPROMAddr = DefaultEEPROMAddr
		}
		if o.ReadyTimeout <= 0 {
			o.ReadyTimeout = DefaultOpts.ReadyTimeout
		}
		if o.VDDPeriod <= 0 {
			o.VDDPeriod = DefaultOpts.VDDPeriod
		}
	}
	d := &Dev{
		d:  &i2c.Dev{Bus: b, Addr: o.SensorAddr},
		ee: &i2c.Dev{Bus: b, Addr: o.EEPROMAddr},
	}
	if err := d.makeDev(table, &o); err != nil {
		return nil, err
	}
	return d, nil
}

// Dev is a handle to an initialized HTPA32x32 device.
type Dev struct {
	d    conn.Conn
	ee   conn.Conn
	opts Opts
	pipe *Pipeline

	mu      sync.Mutex
	raw     RawFrame
	lastVDD time.Time
	stop    chan struct{}
	wg      sync.WaitGroup
}

func (d *Dev) String() string {
	return fmt.Sprintf("HTPA32x32{%s}", d.d)
}

// Pipeline returns the pipeline holding the processed frames.
func (d *Dev) Pipeline() *Pipeline {
	return d.pipe
}

// Sense runs one acquisition cycle and publishes the result to the pipeline.
//
// The first cycle only samples VDD and returns ErrNotReady.
func (d *Dev) Sense() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return d.wrap(errors.New("already sensing continuously"))
	}
	return d.sense()
}

// ReadRawFrame acquires the four blocks of both halves and the blind pair into
// raw without processing them.
func (d *Dev) ReadRawFrame(raw *RawFrame, vdd bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return d.wrap(errors.New("already sensing continuously"))
	}
	return d.readRawFrame(raw, vdd)
}

// SenseContinuous processes frames on a continuous basis and returns the
// statistics of each new frame.
//
// The application must call Halt() to stop the sensing when done to stop the
// sensor and close the channel.
//
// It's the responsibility of the caller to retrieve the values from the
// channel as fast as possible, otherwise the interval may not be respected.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan Stats, error) {
	if interval <= 0 {
		return nil, d.wrap(fmt.Errorf("invalid interval %s", interval))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		close(d.stop)
		d.stop = nil
		d.wg.Wait()
	}

	sensing := make(chan Stats)
	d.stop = make(chan struct{})
	d.wg.Add(1)
	go func(stop <-chan struct{}) {
		defer d.wg.Done()
		defer close(sensing)
		d.sensingContinuous(interval, sensing, stop)
	}(d.stop)
	return sensing, nil
}

// Halt stops the device from acquiring frames as initiated by
// SenseContinuous(), if running, and puts the sensor to sleep.
//
// It is recommended to call this function before terminating the process to
// reduce idle power usage and a goroutine leak.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		close(d.stop)
		d.stop = nil
		d.wg.Wait()
	}
	return d.writeReg(AddrConfig, 0)
}

// LoadCalibration programs the user or factory trim set and makes the
// pipeline use it from the next frame on.
func (d *Dev) LoadCalibration(user bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, _ := d.pipe.Profile()
	if err := d.writeTrim(p.Trim(user)); err != nil {
		return err
	}
	return d.pipe.LoadCalibration(p, user)
}

//

func (d *Dev) makeDev(table *Table, opts *Opts) error {
	d.opts = *opts

	if err := d.writeReg(AddrConfig, configWakeup); err != nil {
		return err
	}

	p, err := LoadProfile(d.readEEPROM, table.Number)
	if IsWarning(err) {
		Logf("%s: %v", d, err)
	} else if err != nil {
		return err
	}
	Logf("%s: device id %d, array type %d, table %d, %d dead pixels", d, p.DeviceID, p.ArrayType, p.TableNumber, len(p.DeadPixels))

	if err := d.writeTrim(p.Trim(opts.UserTrim)); err != nil {
		return err
	}
	if d.pipe, err = NewPipeline(p, table); err != nil {
		return err
	}
	if opts.UserTrim {
		return d.pipe.LoadCalibration(p, true)
	}
	return nil
}

// sense must be called with d.mu lock held.
func (d *Dev) sense() error {
	vdd := d.lastVDD.IsZero() || time.Since(d.lastVDD) >= d.opts.VDDPeriod
	if err := d.readRawFrame(&d.raw, vdd); err != nil {
		return err
	}
	if vdd {
		d.lastVDD = time.Now()
	}
	return d.pipe.Process(&d.raw)
}

func (d *Dev) sensingContinuous(interval time.Duration, sensing chan<- Stats, stop <-chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		// Do one initial sensing right away.
		d.mu.Lock()
		err := d.sense()
		d.mu.Unlock()
		switch {
		case err == nil:
			select {
			case sensing <- d.pipe.Stats():
			case <-stop:
				return
			}
		case errors.Is(err, ErrNotReady):
		default:
			Logf("%s: failed to sense: %v", d, err)
		}
		select {
		case <-stop:
			return
		case <-t.C:
		}
	}
}

func (d *Dev) readRawFrame(raw *RawFrame, vdd bool) error {
	cfg := configWakeup | configStart
	if vdd {
		cfg |= configVDD
	}
	for b := 0; b < Blocks; b++ {
		if err := d.convert(cfg | byte(b)<<configBlock); err != nil {
			return err
		}
		if err := d.readReg(AddrReadTop, raw.Top[b][:]); err != nil {
			return err
		}
		if err := d.readReg(AddrReadBottom, raw.Bottom[b][:]); err != nil {
			return err
		}
	}
	if err := d.convert(configWakeup | configStart | configBlind); err != nil {
		return err
	}
	if err := d.readReg(AddrReadTop, raw.BlindTop[:]); err != nil {
		return err
	}
	if err := d.readReg(AddrReadBottom, raw.BlindBottom[:]); err != nil {
		return err
	}
	raw.VDD = vdd
	return nil
}

// convert starts a conversion and waits for it to end.
func (d *Dev) convert(cfg byte) error {
	if err := d.writeReg(AddrConfig, cfg); err != nil {
		return err
	}
	deadline := time.Now().Add(d.opts.ReadyTimeout)
	var status [1]byte
	for {
		if err := d.readReg(AddrStatus, status[:]); err != nil {
			return err
		}
		if status[0]&statusEOC != 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return &TransportError{Op: fmt.Sprintf("convert 0x%02X", cfg), Err: ErrTimeout}
		}
		doSleep(time.Millisecond)
	}
}

func (d *Dev) writeTrim(t Trim) error {
	regs := [...][2]byte{
		{AddrTrim1, t.MBIT},
		{AddrTrim2, t.BIAS},
		{AddrTrim3, t.BIAS},
		{AddrTrim4, t.CLK},
		{AddrTrim5, t.BPA},
		{AddrTrim6, t.BPA},
		{AddrTrim7, t.PU},
	}
	for _, r := range regs {
		if err := d.writeReg(r[0], r[1]); err != nil {
			return err
		}
		doSleep(5 * time.Millisecond)
	}
	return nil
}

func (d *Dev) readReg(reg uint8, b []byte) error {
	if err := d.d.Tx([]byte{reg}, b); err != nil {
		return &TransportError{Op: fmt.Sprintf("read register 0x%02X", reg), Err: err}
	}
	return nil
}

func (d *Dev) writeReg(reg, v uint8) error {
	if err := d.d.Tx([]byte{reg, v}, nil); err != nil {
		return &TransportError{Op: fmt.Sprintf("write register 0x%02X", reg), Err: err}
	}
	return nil
}

// readEEPROM is a ReadFunc over the calibration EEPROM, which takes a big
// endian 16 bit address.
func (d *Dev) readEEPROM(addr uint16, b []byte) error {
	return d.ee.Tx([]byte{byte(addr >> 8), byte(addr)}, b)
}

func (d *Dev) wrap(err error) error {
	return fmt.Errorf("htpa: %v", err)
}

var doSleep = time.Sleep

var _ conn.Resource = &Dev{}
