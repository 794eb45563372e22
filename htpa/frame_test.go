package htpa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// marker encodes where a sample came from: block, half, in-block row, column.
func marker(b, half, i, j int) uint16 {
	return uint16(b<<8 | half<<7 | i<<5 | j)
}

func markedFrame(vdd bool) *RawFrame {
	raw := &RawFrame{VDD: vdd}
	for b := 0; b < Blocks; b++ {
		putHeader(&raw.Top[b], uint16(1000+b))
		putHeader(&raw.Bottom[b], uint16(2000+b))
		for i := 0; i < blockRows; i++ {
			for j := 0; j < Cols; j++ {
				putSample(&raw.Top[b], i, j, marker(b, 0, i, j))
				putSample(&raw.Bottom[b], i, j, marker(b, 1, i, j))
			}
		}
	}
	for i := 0; i < blockRows; i++ {
		for j := 0; j < Cols; j++ {
			putSample(&raw.BlindTop, i, j, uint16(100*i+j+1))
			putSample(&raw.BlindBottom, i, j, uint16(500+100*i+j))
		}
	}
	return raw
}

func TestDecodeBlockPlacement(t *testing.T) {
	var d Decoder
	var m PixelMatrix
	d.Decode(markedFrame(false), &m)

	for b := 0; b < Blocks; b++ {
		for i := 0; i < blockRows; i++ {
			for j := 0; j < Cols; j++ {
				require.Equal(t, marker(b, 0, i, j), m.Counts[blockRows*b+i][j], "top block %d row %d col %d", b, i, j)
				row := Rows/2 + blockRows*(Blocks-1-b) + (blockRows - 1 - i)
				require.Equal(t, marker(b, 1, i, j), m.Counts[row][j], "bottom block %d row %d col %d", b, i, j)
			}
		}
	}
}

func TestDecodeElectricalOffsets(t *testing.T) {
	var d Decoder
	var m PixelMatrix
	d.Decode(markedFrame(false), &m)

	for i := 0; i < blockRows; i++ {
		for j := 0; j < Cols; j++ {
			assert.Equal(t, uint16(100*i+j+1), m.ElOffsets[i][j])
			assert.Equal(t, uint16(500+100*(blockRows-1-i)+j), m.ElOffsets[Blocks+i][j])
		}
	}
}

func TestDecodeHeaderAverages(t *testing.T) {
	var d Decoder
	var m PixelMatrix

	d.Decode(markedFrame(false), &m)
	// (1000+1001+1002+1003 + 2000+2001+2002+2003) / 8
	assert.Equal(t, uint16(1501), m.PTATAvg)
	assert.Equal(t, uint16(0), m.VDDAvg)
	assert.False(t, m.Ready())

	raw := markedFrame(true)
	for b := 0; b < Blocks; b++ {
		putHeader(&raw.Top[b], 30000)
		putHeader(&raw.Bottom[b], 30008)
	}
	d.Decode(raw, &m)
	assert.Equal(t, uint16(1501), m.PTATAvg, "PTAT carried over from the previous cycle")
	assert.Equal(t, uint16(30004), m.VDDAvg)
	assert.True(t, m.Ready())

	d = Decoder{}
	d.Decode(raw, &m)
	assert.Equal(t, uint16(0), m.PTATAvg)
	assert.False(t, m.Ready())
}

func TestDecodeHeaderAverageDoesNotOverflow(t *testing.T) {
	var d Decoder
	var m PixelMatrix
	raw := uniformFrame(0, 0xFFFF, false)
	d.Decode(raw, &m)
	assert.Equal(t, uint16(0xFFFF), m.PTATAvg)
}
