package htpa

// neighbours holds the (row, col) offset selected by each dead pixel mask bit
// for a pixel in the upper half: N, NE, E, SE, S, SW, W, NW. The lower half
// is stored mirrored, so its row offsets are negated.
var neighbours = [8][2]int{
	{-1, 0}, {-1, 1}, {0, 1}, {1, 1}, {1, 0}, {1, -1}, {0, -1}, {-1, -1},
}

// Repair replaces each dead pixel with the mean of its flagged neighbours.
// Pixels are repaired in order, so a later dead pixel may average an earlier
// repaired one.
func Repair(temps *[Rows][Cols]float64, dead []DeadPixel) error {
	for _, p := range dead {
		v, err := p.average(temps)
		if err != nil {
			return err
		}
		temps[p.Row()][p.Col()] = v
	}
	return nil
}

func (p DeadPixel) average(temps *[Rows][Cols]float64) (float64, error) {
	row, col := p.Row(), p.Col()
	if row >= Rows {
		return 0, configErrorf("dead pixel address %d out of range", p.Addr)
	}
	dir := 1
	if row >= Rows/2 {
		dir = -1
	}
	var sum float64
	n := 0
	for bit, o := range neighbours {
		if p.Mask&(1<<bit) == 0 {
			continue
		}
		r, c := row+dir*o[0], col+o[1]
		if r < 0 || r >= Rows || c < 0 || c >= Cols {
			return 0, configErrorf("dead pixel (%d,%d): neighbour bit %d is outside the array", row, col, bit)
		}
		sum += temps[r][c]
		n++
	}
	if n == 0 {
		return 0, configErrorf("dead pixel (%d,%d) has no neighbours flagged", row, col)
	}
	return sum / float64(n), nil
}

// checkDeadPixels reports the first dead pixel that Repair would reject.
func checkDeadPixels(dead []DeadPixel) error {
	var zero [Rows][Cols]float64
	for _, p := range dead {
		if _, err := p.average(&zero); err != nil {
			return err
		}
	}
	return nil
}
