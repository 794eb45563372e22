package htpa

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadProfileScalars(t *testing.T) {
	img := testImage()
	img.f32(EEAddrPixCMin, 1.5)
	img.f32(EEAddrPixCMax, 2.25)
	img.u8(EEAddrGradScale, 9)
	img.u16(EEAddrVDDTh1, 33000)
	img.u16(EEAddrVDDTh2, 34000)
	img.u8(EEAddrVDDScaleGrad, 12)
	img.u8(EEAddrVDDScaleOff, 13)
	img.u8(EEAddrGlobalOffset, 0xFE)

	p, err := LoadProfile(ImageReader(img), 114)
	require.NoError(t, err)

	assert.Equal(t, float32(1.5), p.PixCMin)
	assert.Equal(t, float32(2.25), p.PixCMax)
	assert.Equal(t, uint8(9), p.GradScale)
	assert.Equal(t, uint16(114), p.TableNumber)
	assert.Equal(t, uint8(100), p.Epsilon)
	assert.Equal(t, uint16(33000), p.VDDThreshold1)
	assert.Equal(t, uint16(34000), p.VDDThreshold2)
	assert.Equal(t, float32(3050), p.PTATOffset)
	assert.Equal(t, uint8(12), p.VDDScaleGrad)
	assert.Equal(t, uint8(13), p.VDDScaleOff)
	assert.Equal(t, int8(-2), p.GlobalOffset)
	assert.Equal(t, uint16(10000), p.GlobalGain)
	assert.Equal(t, uint32(4242), p.DeviceID)
	assert.Empty(t, p.DeadPixels)
}

func TestLoadProfileTrim(t *testing.T) {
	p := testProfile(t)
	if diff := cmp.Diff(testFactoryTrim, p.Trim(false)); diff != "" {
		t.Errorf("factory trim mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(testUserTrim, p.Trim(true)); diff != "" {
		t.Errorf("user trim mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadProfileUnmirrorsLowerHalf(t *testing.T) {
	img := testImage()
	for k := 0; k < Rows; k++ {
		img.strip(EEAddrThGrad, k, uint16(k))
		img.strip(EEAddrP, k, uint16(1000+k))
	}
	for k := 0; k < RowGroups; k++ {
		img.strip(EEAddrVddCompOff, k, uint16(k))
	}

	p, err := LoadProfile(ImageReader(img), 114)
	require.NoError(t, err)

	for row := 0; row < Rows; row++ {
		want := row
		if row >= Rows/2 {
			want = Rows/2 + (Rows - 1 - row)
		}
		assert.Equal(t, int16(want), p.ThGrad[row][0], "ThGrad row %d", row)
		assert.Equal(t, int16(want), p.ThGrad[row][Cols-1], "ThGrad row %d", row)
		assert.Equal(t, uint16(1000+want), p.P[row][7], "P row %d", row)
	}
	for g := 0; g < RowGroups; g++ {
		want := g
		if g >= Blocks {
			want = Blocks + (RowGroups - 1 - g)
		}
		assert.Equal(t, int16(want), p.VddCompOff[g][3], "VddCompOff group %d", g)
	}
}

func TestLoadProfileHalfConstants(t *testing.T) {
	const upper, lower = 0x0111, 0x0222
	img := testImage()
	for k := 0; k < Rows; k++ {
		v := uint16(upper)
		if k >= Rows/2 {
			v = lower
		}
		img.strip(EEAddrThOffset, k, v)
	}

	p, err := LoadProfile(ImageReader(img), 114)
	require.NoError(t, err)
	assert.Equal(t, int16(upper), p.ThOffset[0][0])
	assert.Equal(t, int16(upper), p.ThOffset[15][31])
	assert.Equal(t, int16(lower), p.ThOffset[16][0])
	assert.Equal(t, int16(lower), p.ThOffset[31][31])
}

func TestLoadProfileSignedTables(t *testing.T) {
	img := testImage()
	img.strip(EEAddrVddCompGrad, 0, 0xFFFE)
	p, err := LoadProfile(ImageReader(img), 114)
	require.NoError(t, err)
	assert.Equal(t, int16(-2), p.VddCompGrad[0][5])
}

func TestLoadProfileDeadPixels(t *testing.T) {
	img := testImage()
	img.deadPixels([]uint16{100, 512, 600}, []uint8{0x01, 0x10, 0x55})

	p, err := LoadProfile(ImageReader(img), 114)
	require.NoError(t, err)

	want := []DeadPixel{
		{Addr: 100, Mask: 0x01},
		{Addr: 512, Mask: 0x10},
		{Addr: 952, Mask: 0x55}, // stored row 18 col 24, logical row 29
	}
	if diff := cmp.Diff(want, p.DeadPixels); diff != "" {
		t.Errorf("dead pixels mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 29, p.DeadPixels[2].Row())
	assert.Equal(t, 24, p.DeadPixels[2].Col())
}

func TestLoadProfileTooManyDeadPixels(t *testing.T) {
	img := testImage()
	img.u8(EEAddrDeadPixCount, MaxDeadPixels+1)

	p, err := LoadProfile(ImageReader(img), 114)
	assert.Nil(t, p)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoadProfileDeadPixelOutOfRange(t *testing.T) {
	img := testImage()
	img.deadPixels([]uint16{0xFFFF}, []uint8{0x01})

	_, err := LoadProfile(ImageReader(img), 114)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoadProfileTableMismatch(t *testing.T) {
	p, err := LoadProfile(ImageReader(testImage()), 113)
	require.NotNil(t, p)
	assert.Equal(t, uint16(114), p.TableNumber)

	var mismatch *TableMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, uint16(114), mismatch.EEPROM)
	assert.Equal(t, uint16(113), mismatch.Table)
	assert.True(t, IsWarning(err))
}

func TestLoadProfileReadError(t *testing.T) {
	boom := errors.New("bus stuck")
	read := func(addr uint16, b []byte) error {
		if addr == EEAddrThGrad {
			return boom
		}
		return ImageReader(testImage())(addr, b)
	}

	p, err := LoadProfile(read, 114)
	assert.Nil(t, p)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, te.Op, "0x0740")
	assert.False(t, IsWarning(err))
}

func TestImageReaderBounds(t *testing.T) {
	read := ImageReader(make([]byte, 16))
	b := make([]byte, 4)
	assert.NoError(t, read(12, b))
	assert.Error(t, read(13, b))
}
