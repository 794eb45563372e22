package htpa

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Array geometry.
const (
	Rows      = 32
	Cols      = 32
	Pixels    = Rows * Cols
	Blocks    = 4 // per half
	RowGroups = 2 * Blocks

	blockRows = 4
)

// EEPROM layout. Multi-byte fields are little endian.
const (
	EEAddrPixCMin        uint16 = 0x0000
	EEAddrPixCMax        uint16 = 0x0004
	EEAddrGradScale      uint16 = 0x0008
	EEAddrTableNumber    uint16 = 0x000B
	EEAddrEpsilon        uint16 = 0x000D
	EEAddrFactoryTrim    uint16 = 0x001A // MBIT, BIAS, CLK, BPA, PU
	EEAddrArrayType      uint16 = 0x0022
	EEAddrVDDTh1         uint16 = 0x0026
	EEAddrVDDTh2         uint16 = 0x0028
	EEAddrPTATGradient   uint16 = 0x0034
	EEAddrPTATOffset     uint16 = 0x0038
	EEAddrPTATTh1        uint16 = 0x003C
	EEAddrPTATTh2        uint16 = 0x003E
	EEAddrVDDScaleGrad   uint16 = 0x004E
	EEAddrVDDScaleOff    uint16 = 0x004F
	EEAddrGlobalOffset   uint16 = 0x0054
	EEAddrGlobalGain     uint16 = 0x0055
	EEAddrUserTrim       uint16 = 0x0060 // MBIT, BIAS, CLK, BPA, PU
	EEAddrDeviceID       uint16 = 0x0074
	EEAddrDeadPixCount   uint16 = 0x007F
	EEAddrDeadPixAddr    uint16 = 0x0080
	EEAddrDeadPixMask    uint16 = 0x00B0
	EEAddrVddCompGrad    uint16 = 0x0340
	EEAddrVddCompOff     uint16 = 0x0540
	EEAddrThGrad         uint16 = 0x0740
	EEAddrThOffset       uint16 = 0x0F40
	EEAddrP              uint16 = 0x1740
	EEPROMSize                  = 0x2000
	MaxDeadPixels               = 24
	stripBytes                  = 2 * Cols
	deadPixelMirrorStart        = Pixels / 2
)

// Trim is one set of bias and clock trim register values.
type Trim struct {
	MBIT uint8
	BIAS uint8
	CLK  uint8
	BPA  uint8
	PU   uint8
}

// DeadPixel is a defective pixel and the mask of neighbours that replace it.
type DeadPixel struct {
	// Addr is the logical row-major address, row*Cols+col.
	Addr uint16
	Mask uint8
}

func (p DeadPixel) Row() int { return int(p.Addr) / Cols }
func (p DeadPixel) Col() int { return int(p.Addr) % Cols }

// Profile holds the per-device calibration read from the sensor EEPROM. All
// tables are in logical orientation: row 0 is the top of the image.
//
// A Profile is immutable after LoadProfile returns.
type Profile struct {
	PixCMin        float32
	PixCMax        float32
	GradScale      uint8
	TableNumber    uint16
	Epsilon        uint8
	ArrayType      uint8
	VDDThreshold1  uint16
	VDDThreshold2  uint16
	PTATGradient   float32
	PTATOffset     float32
	PTATThreshold1 uint16
	PTATThreshold2 uint16
	VDDScaleGrad   uint8
	VDDScaleOff    uint8
	GlobalOffset   int8
	GlobalGain     uint16
	DeviceID       uint32

	Factory Trim
	User    Trim

	ThGrad      [Rows][Cols]int16
	ThOffset    [Rows][Cols]int16
	P           [Rows][Cols]uint16
	VddCompGrad [RowGroups][Cols]int16
	VddCompOff  [RowGroups][Cols]int16

	DeadPixels []DeadPixel
}

// Trim returns the user trim set if user is true, the factory set otherwise.
func (p *Profile) Trim(user bool) Trim {
	if user {
		return p.User
	}
	return p.Factory
}

// AmbientDK converts an averaged PTAT reading into ambient temperature in
// tenths of a Kelvin.
func (p *Profile) AmbientDK(ptat uint16) float64 {
	return float64(ptat)*float64(p.PTATGradient) + float64(p.PTATOffset)
}

// ReadFunc fills b with EEPROM content starting at addr.
type ReadFunc func(addr uint16, b []byte) error

// ImageReader returns a ReadFunc backed by an in-memory EEPROM dump.
func ImageReader(img []byte) ReadFunc {
	return func(addr uint16, b []byte) error {
		end := int(addr) + len(b)
		if end > len(img) {
			return fmt.Errorf("read of %d bytes at 0x%04X past end of %d byte image", len(b), addr, len(img))
		}
		copy(b, img[addr:end])
		return nil
	}
}

// LoadProfile reads and parses the calibration profile.
//
// If the EEPROM table number differs from tableNumber the profile is still
// returned, together with a *TableMismatchError.
func LoadProfile(read ReadFunc, tableNumber uint16) (*Profile, error) {
	r := &fieldReader{read: read}
	p := &Profile{
		PixCMin:        r.f32(EEAddrPixCMin),
		PixCMax:        r.f32(EEAddrPixCMax),
		GradScale:      r.u8(EEAddrGradScale),
		TableNumber:    r.u16(EEAddrTableNumber),
		Epsilon:        r.u8(EEAddrEpsilon),
		ArrayType:      r.u8(EEAddrArrayType),
		VDDThreshold1:  r.u16(EEAddrVDDTh1),
		VDDThreshold2:  r.u16(EEAddrVDDTh2),
		PTATGradient:   r.f32(EEAddrPTATGradient),
		PTATOffset:     r.f32(EEAddrPTATOffset),
		PTATThreshold1: r.u16(EEAddrPTATTh1),
		PTATThreshold2: r.u16(EEAddrPTATTh2),
		VDDScaleGrad:   r.u8(EEAddrVDDScaleGrad),
		VDDScaleOff:    r.u8(EEAddrVDDScaleOff),
		GlobalOffset:   int8(r.u8(EEAddrGlobalOffset)),
		GlobalGain:     r.u16(EEAddrGlobalGain),
		DeviceID:       r.u32(EEAddrDeviceID),
		Factory:        r.trim(EEAddrFactoryTrim),
		User:           r.trim(EEAddrUserTrim),
	}

	r.signedStrips(EEAddrVddCompGrad, p.VddCompGrad[:])
	r.signedStrips(EEAddrVddCompOff, p.VddCompOff[:])
	r.signedStrips(EEAddrThGrad, p.ThGrad[:])
	r.signedStrips(EEAddrThOffset, p.ThOffset[:])
	r.strips(EEAddrP, p.P[:])

	n := int(r.u8(EEAddrDeadPixCount))
	if r.err != nil {
		return nil, r.err
	}
	if n > MaxDeadPixels {
		return nil, configErrorf("%d dead pixels listed, at most %d supported", n, MaxDeadPixels)
	}
	if n > 0 {
		addrs := r.bytes(EEAddrDeadPixAddr, 2*n)
		masks := r.bytes(EEAddrDeadPixMask, n)
		if r.err != nil {
			return nil, r.err
		}
		p.DeadPixels = make([]DeadPixel, n)
		for i := range p.DeadPixels {
			addr, err := logicalPixelAddr(binary.LittleEndian.Uint16(addrs[2*i:]))
			if err != nil {
				return nil, err
			}
			p.DeadPixels[i] = DeadPixel{Addr: addr, Mask: masks[i]}
		}
	}

	if p.TableNumber != tableNumber {
		return p, &TableMismatchError{EEPROM: p.TableNumber, Table: tableNumber}
	}
	return p, nil
}

// logicalPixelAddr converts a dead pixel address as stored in the EEPROM into
// the logical row-major address. The lower half is stored with its rows
// mirrored.
func logicalPixelAddr(raw uint16) (uint16, error) {
	if raw >= Pixels {
		return 0, configErrorf("dead pixel address %d out of range", raw)
	}
	if raw <= deadPixelMirrorStart {
		return raw, nil
	}
	a := int(raw)
	return uint16(3*Pixels/2 - a + 2*(a%Cols) - Cols), nil
}

// fieldReader decodes EEPROM fields. The first error sticks and subsequent
// reads return zeroes.
type fieldReader struct {
	read ReadFunc
	err  error
}

func (r *fieldReader) bytes(addr uint16, n int) []byte {
	b := make([]byte, n)
	if r.err != nil {
		return b
	}
	if err := r.read(addr, b); err != nil {
		r.err = &TransportError{Op: fmt.Sprintf("read eeprom 0x%04X", addr), Err: err}
	}
	return b
}

func (r *fieldReader) u8(addr uint16) uint8 {
	return r.bytes(addr, 1)[0]
}

func (r *fieldReader) u16(addr uint16) uint16 {
	return binary.LittleEndian.Uint16(r.bytes(addr, 2))
}

func (r *fieldReader) u32(addr uint16) uint32 {
	return binary.LittleEndian.Uint32(r.bytes(addr, 4))
}

func (r *fieldReader) f32(addr uint16) float32 {
	return math.Float32frombits(r.u32(addr))
}

func (r *fieldReader) trim(addr uint16) Trim {
	b := r.bytes(addr, 5)
	return Trim{MBIT: b[0], BIAS: b[1], CLK: b[2], BPA: b[3], PU: b[4]}
}

// strips reads len(dst) strips of Cols little endian words starting at base.
// The upper half of the strips is stored in order; the lower half follows
// with its order reversed, so physical strip half+i is logical strip n-1-i.
func (r *fieldReader) strips(base uint16, dst [][Cols]uint16) {
	n := len(dst)
	half := n / 2
	upper := r.bytes(base, half*stripBytes)
	for i := 0; i < half; i++ {
		decodeStrip(upper[i*stripBytes:], &dst[i])
	}
	lower := base + uint16(half*stripBytes)
	for i := 0; i < half; i++ {
		b := r.bytes(lower+uint16(i*stripBytes), stripBytes)
		decodeStrip(b, &dst[n-1-i])
	}
}

func (r *fieldReader) signedStrips(base uint16, dst [][Cols]int16) {
	tmp := make([][Cols]uint16, len(dst))
	r.strips(base, tmp)
	for i := range tmp {
		for j, v := range tmp[i] {
			dst[i][j] = int16(v)
		}
	}
}

func decodeStrip(b []byte, dst *[Cols]uint16) {
	for j := range dst {
		dst[j] = binary.LittleEndian.Uint16(b[2*j:])
	}
}
