package htpa

import (
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func init() {
	SetLogger(nil)
	doSleep = func(time.Duration) {}
}

var (
	testFactoryTrim = Trim{MBIT: 0x2C, BIAS: 0x05, CLK: 0x15, BPA: 0x0C, PU: 0x88}
	testUserTrim    = Trim{MBIT: 0x2A, BIAS: 0x07, CLK: 0x14, BPA: 0x0D, PU: 0x44}
)

type eepromImage []byte

func newEEPROMImage() eepromImage {
	return make(eepromImage, EEPROMSize)
}

func (img eepromImage) u8(addr uint16, v uint8) { img[addr] = v }

func (img eepromImage) u16(addr uint16, v uint16) {
	binary.LittleEndian.PutUint16(img[addr:], v)
}

func (img eepromImage) u32(addr uint16, v uint32) {
	binary.LittleEndian.PutUint32(img[addr:], v)
}

func (img eepromImage) f32(addr uint16, v float32) {
	img.u32(addr, math.Float32bits(v))
}

func (img eepromImage) trim(addr uint16, t Trim) {
	copy(img[addr:], []byte{t.MBIT, t.BIAS, t.CLK, t.BPA, t.PU})
}

// strip stores physical strip k of a table at base.
func (img eepromImage) strip(base uint16, k int, v uint16) {
	for j := 0; j < Cols; j++ {
		img.u16(base+uint16(k*stripBytes+2*j), v)
	}
}

func (img eepromImage) deadPixels(raw []uint16, masks []uint8) {
	img.u8(EEAddrDeadPixCount, uint8(len(raw)))
	for i, a := range raw {
		img.u16(EEAddrDeadPixAddr+uint16(2*i), a)
	}
	copy(img[EEAddrDeadPixMask:], masks)
}

// testImage returns an EEPROM image whose compensation terms are all zero,
// unit sensitivity, and a constant ambient of 3050 dK (31.85 °C).
func testImage() eepromImage {
	img := newEEPROMImage()
	img.f32(EEAddrPixCMin, 1)
	img.f32(EEAddrPixCMax, 1)
	img.u16(EEAddrTableNumber, 114)
	img.u8(EEAddrEpsilon, 100)
	img.u8(EEAddrArrayType, 1)
	img.u16(EEAddrPTATTh1, 0)
	img.u16(EEAddrPTATTh2, 1)
	img.f32(EEAddrPTATGradient, 0)
	img.f32(EEAddrPTATOffset, 3050)
	img.u8(EEAddrGlobalOffset, 5)
	img.u16(EEAddrGlobalGain, 10000)
	img.u32(EEAddrDeviceID, 4242)
	img.trim(EEAddrFactoryTrim, testFactoryTrim)
	img.trim(EEAddrUserTrim, testUserTrim)
	return img
}

func testProfile(t *testing.T) *Profile {
	t.Helper()
	p, err := LoadProfile(ImageReader(testImage()), 114)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	return p
}

// testTable is a 4x3 table with Values[r][c] = 3000 + 100r + 10c, so that
// bilinear interpolation is exact.
func testTable() *Table {
	t := &Table{
		Number:        114,
		PCScale:       1,
		Offset:        0,
		RowShift:      6,
		ColumnSpacing: 100,
		Ambient:       []int32{2900, 3000, 3100},
		Signal:        []int32{0, 64, 128, 192},
	}
	for r := range t.Signal {
		row := make([]uint32, len(t.Ambient))
		for c := range row {
			row[c] = uint32(3000 + 100*r + 10*c)
		}
		t.Values = append(t.Values, row)
	}
	return t
}

func putSample(buf *[FrameBufSize]byte, row, col int, v uint16) {
	i := 2 + 2*(col+row*Cols)
	buf[i], buf[i+1] = byte(v>>8), byte(v)
}

func putHeader(buf *[FrameBufSize]byte, v uint16) {
	buf[0], buf[1] = byte(v>>8), byte(v)
}

// uniformFrame returns a raw frame where every pixel reads counts and every
// header reads hdr.
func uniformFrame(counts, hdr uint16, vdd bool) *RawFrame {
	raw := &RawFrame{VDD: vdd}
	for b := 0; b < Blocks; b++ {
		putHeader(&raw.Top[b], hdr)
		putHeader(&raw.Bottom[b], hdr)
		for i := 0; i < blockRows; i++ {
			for j := 0; j < Cols; j++ {
				putSample(&raw.Top[b], i, j, counts)
				putSample(&raw.Bottom[b], i, j, counts)
			}
		}
	}
	return raw
}
