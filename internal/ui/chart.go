package ui

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/fridgewatch/internal/state"
)

var sparkBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

const gapRune = '╌'

// bucket averages values into width columns. Columns with no samples are nil.
func bucket(values []*float64, width int) []*float64 {
	if width <= 0 {
		return nil
	}
	if len(values) <= width {
		return values
	}
	out := make([]*float64, width)
	for col := range width {
		start := col * len(values) / width
		end := (col + 1) * len(values) / width
		sum, n := 0.0, 0
		for _, v := range values[start:end] {
			if v != nil {
				sum += *v
				n++
			}
		}
		if n > 0 {
			avg := sum / float64(n)
			out[col] = &avg
		}
	}
	return out
}

// seriesRange returns the min and max of the present values.
func seriesRange(values []*float64) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if v == nil {
			continue
		}
		lo = math.Min(lo, *v)
		hi = math.Max(hi, *v)
		ok = true
	}
	return lo, hi, ok
}

// renderSparkline draws values scaled between lo and hi, one rune per
// column, right-aligned in width. colorOf picks each block's color.
func renderSparkline(values []*float64, width int, lo, hi float64, dim lipgloss.Color, colorOf func(float64) lipgloss.Color) string {
	if width <= 0 {
		return ""
	}
	cols := bucket(values, width)
	span := hi - lo
	if span <= 0 {
		span = 1
	}

	dimStyle := lipgloss.NewStyle().Foreground(dim)
	var sb strings.Builder
	if pad := width - len(cols); pad > 0 {
		sb.WriteString(dimStyle.Render(strings.Repeat(string(gapRune), pad)))
	}
	for _, v := range cols {
		if v == nil {
			sb.WriteString(dimStyle.Render(string(gapRune)))
			continue
		}
		norm := math.Max(0, math.Min(1, (*v-lo)/span))
		idx := min(int(norm*7), 7)
		sb.WriteString(lipgloss.NewStyle().Foreground(colorOf(*v)).Render(string(sparkBlocks[idx])))
	}
	return sb.String()
}

// renderTimeline labels the first, middle and last sample times under a
// sparkline of the same width.
func renderTimeline(points []state.Point, width int) string {
	if len(points) == 0 || width < 5 {
		return ""
	}
	line := []rune(strings.Repeat(" ", width))
	place := func(pos int, label string) {
		r := []rune(label)
		start := max(0, min(pos-len(r)/2, width-len(r)))
		if start+len(r) > width {
			return
		}
		copy(line[start:], r)
	}

	n := len(points)
	offset := 0
	if n < width {
		offset = width - n
	}
	col := func(i int) int {
		if n <= width {
			return offset + i
		}
		return i * width / n
	}

	place(col(0), points[0].Time)
	if width >= 30 && n > 2 {
		place(col(n/2), points[n/2].Time)
	}
	if last := []rune(points[n-1].Time); n > 1 && len(last) <= width {
		copy(line[width-len(last):], last)
	}
	return string(line)
}

func temperatures(points []state.Point) []*float64 {
	out := make([]*float64, len(points))
	for i, p := range points {
		out[i] = p.Temp
	}
	return out
}

func pressures(points []state.Point) []*float64 {
	out := make([]*float64, len(points))
	for i, p := range points {
		out[i] = p.Press
	}
	return out
}
