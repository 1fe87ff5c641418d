package filters

import "fmt"

// rowLayout describes the sample rows a predictor works on.
type rowLayout struct {
	pixel int // bytes per pixel, at least 1
	row   int // bytes per row without the PNG tag byte
}

func layoutOf(p Params) rowLayout {
	colors := max(p.Int("Colors", 1), 1)
	bpc := max(p.Int("BitsPerComponent", 8), 1)
	columns := max(p.Int("Columns", 1), 1)
	return rowLayout{
		pixel: max(colors*bpc/8, 1),
		row:   (columns*colors*bpc + 7) / 8,
	}
}

// unpredict reverses the Predictor given in p. Predictor 2 is the TIFF
// predictor and 10 to 15 select per-row PNG filters.
func unpredict(data []byte, p Params) ([]byte, error) {
	switch pred := p.Int("Predictor", 1); {
	case pred == 1:
		return data, nil
	case pred == 2:
		if bpc := p.Int("BitsPerComponent", 8); bpc != 8 {
			return nil, fmt.Errorf("TIFF predictor with %d bits per component", bpc)
		}
		return tiffUnpredict(data, layoutOf(p)), nil
	case pred >= 10 && pred <= 15:
		return pngUnpredict(data, layoutOf(p))
	default:
		return nil, fmt.Errorf("unsupported predictor %d", pred)
	}
}

// tiffUnpredict adds each byte to the one a pixel to its left.
func tiffUnpredict(data []byte, l rowLayout) []byte {
	out := append([]byte(nil), data...)
	for start := 0; start < len(out); start += l.row {
		row := out[start:min(start+l.row, len(out))]
		for i := l.pixel; i < len(row); i++ {
			row[i] += row[i-l.pixel]
		}
	}
	return out
}

// pngUnpredict decodes rows that each start with a PNG filter type byte.
// A trailing partial row is dropped.
func pngUnpredict(data []byte, l rowLayout) ([]byte, error) {
	stride := l.row + 1
	out := make([]byte, 0, len(data)/stride*l.row)
	prev := make([]byte, l.row)
	for n := 0; len(data) >= stride; n++ {
		kind, in := data[0], data[1:stride]
		data = data[stride:]

		cur := make([]byte, l.row)
		for i, x := range in {
			var left, upLeft byte
			if i >= l.pixel {
				left, upLeft = cur[i-l.pixel], prev[i-l.pixel]
			}
			up := prev[i]
			switch kind {
			case 0:
			case 1:
				x += left
			case 2:
				x += up
			case 3:
				x += byte((int(left) + int(up)) / 2)
			case 4:
				x += paeth(left, up, upLeft)
			default:
				return nil, fmt.Errorf("row %d: unknown PNG filter type %d", n, kind)
			}
			cur[i] = x
		}
		out = append(out, cur...)
		prev = cur
	}
	return out, nil
}

// paeth returns whichever of left, up and upLeft is closest to
// left+up-upLeft, preferring them in that order.
func paeth(left, up, upLeft byte) byte {
	p := int(left) + int(up) - int(upLeft)
	da, db, dc := absInt(p-int(left)), absInt(p-int(up)), absInt(p-int(upLeft))
	switch {
	case da <= db && da <= dc:
		return left
	case db <= dc:
		return up
	}
	return upLeft
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
