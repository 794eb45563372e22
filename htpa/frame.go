package htpa

// FrameBufSize is the length of one block read: a big endian header word
// followed by blockRows rows of Cols big endian samples.
const FrameBufSize = 2 + 2*blockRows*Cols

// RawFrame is one acquisition cycle as read from the sensor.
type RawFrame struct {
	Top         [Blocks][FrameBufSize]byte
	Bottom      [Blocks][FrameBufSize]byte
	BlindTop    [FrameBufSize]byte
	BlindBottom [FrameBufSize]byte

	// VDD is set when the block headers carry VDD instead of PTAT.
	VDD bool
}

// PixelMatrix is a decoded frame in logical orientation.
type PixelMatrix struct {
	Counts    [Rows][Cols]uint16
	ElOffsets [RowGroups][Cols]uint16
	PTATAvg   uint16
	VDDAvg    uint16
}

// Ready reports whether both header averages are available.
func (m *PixelMatrix) Ready() bool {
	return m.PTATAvg != 0 && m.VDDAvg != 0
}

// Decoder turns RawFrames into PixelMatrix values. It remembers the last
// PTAT and VDD header words, since each cycle only carries one kind.
//
// The zero value is ready to use.
type Decoder struct {
	ptat [RowGroups]uint16
	vdd  [RowGroups]uint16
}

// Decode writes raw into m. The bottom half is read out by the sensor from
// the bottom edge upwards, so its blocks and rows are reversed.
func (d *Decoder) Decode(raw *RawFrame, m *PixelMatrix) {
	hdr := &d.ptat
	if raw.VDD {
		hdr = &d.vdd
	}
	for b := 0; b < Blocks; b++ {
		hdr[b] = header(&raw.Top[b])
		hdr[b+Blocks] = header(&raw.Bottom[b])
		for i := 0; i < blockRows; i++ {
			for j := 0; j < Cols; j++ {
				m.Counts[blockRows*b+i][j] = sample(&raw.Top[b], i, j)
				m.Counts[Rows/2+blockRows*b+i][j] = sample(&raw.Bottom[Blocks-1-b], blockRows-1-i, j)
			}
		}
	}
	for i := 0; i < blockRows; i++ {
		for j := 0; j < Cols; j++ {
			m.ElOffsets[i][j] = sample(&raw.BlindTop, i, j)
			m.ElOffsets[Blocks+i][j] = sample(&raw.BlindBottom, blockRows-1-i, j)
		}
	}
	m.PTATAvg = average(&d.ptat)
	m.VDDAvg = average(&d.vdd)
}

func header(buf *[FrameBufSize]byte) uint16 {
	return uint16(buf[0])<<8 | uint16(buf[1])
}

func sample(buf *[FrameBufSize]byte, row, col int) uint16 {
	i := 2 + 2*(col+row*Cols)
	return uint16(buf[i])<<8 | uint16(buf[i+1])
}

func average(v *[RowGroups]uint16) uint16 {
	var sum uint32
	for _, x := range v {
		sum += uint32(x)
	}
	return uint16(sum / RowGroups)
}
