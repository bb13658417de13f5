package gridline

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
)

const (
	chartHeight     = 10
	barChartPoints  = 40
	lineChartPoints = 60
	scatterWidth    = 40
)

// WriteMarkdown writes the bounding block of store's cells as a markdown
// table of displayed values. Chart cells show [Chart] and each chart is
// rendered as text in its own section after the table.
func WriteMarkdown(w io.Writer, store *CellStore) error {
	bw := bufio.NewWriter(w)
	fmt.Fprint(bw, "# Sheet\n\n")

	refs := store.Refs()
	if len(refs) == 0 {
		fmt.Fprintln(bw, "*Empty spreadsheet*")
		return flushMarkdown(bw)
	}

	top, left := refs[0].Row, refs[0].Col
	bottom, right := top, left
	for _, ref := range refs {
		left = min(left, ref.Col)
		right = max(right, ref.Col)
		bottom = max(bottom, ref.Row)
	}

	var charts []*ChartSpec
	rows := make([][]string, 0, bottom-top+2)
	header := []string{""}
	for col := left; col <= right; col++ {
		header = append(header, ColToName(col))
	}
	rows = append(rows, header)
	for row := top; row <= bottom; row++ {
		line := []string{strconv.Itoa(row + 1)}
		for col := left; col <= right; col++ {
			v := store.Display(CellRef{Row: row, Col: col})
			if v.Kind == ValueChart {
				charts = append(charts, v.Chart)
				line = append(line, "[Chart]")
				continue
			}
			line = append(line, escapeMarkdown(v.String()))
		}
		rows = append(rows, line)
	}

	widths := make([]int, len(header))
	for _, line := range rows {
		for i, cell := range line {
			widths[i] = max(widths[i], runewidth.StringWidth(cell), 3)
		}
	}
	for i, line := range rows {
		writeMarkdownRow(bw, line, widths)
		if i == 0 {
			sep := make([]string, len(widths))
			for j, n := range widths {
				sep[j] = strings.Repeat("-", n)
			}
			writeMarkdownRow(bw, sep, widths)
		}
	}

	for _, c := range charts {
		title := c.Title
		if title == "" {
			title = "Chart"
		}
		fmt.Fprintf(bw, "\n## %s\n\n```\n", title)
		renderChart(bw, c)
		fmt.Fprintln(bw, "```")
	}
	return flushMarkdown(bw)
}

func writeMarkdownRow(w io.Writer, cells []string, widths []int) {
	var b strings.Builder
	b.WriteString("|")
	for i, cell := range cells {
		b.WriteString(" ")
		b.WriteString(runewidth.FillRight(cell, widths[i]))
		b.WriteString(" |")
	}
	fmt.Fprintln(w, b.String())
}

func flushMarkdown(bw *bufio.Writer) error {
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write markdown: %w", err)
	}
	return nil
}

func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\r", "")
	return strings.ReplaceAll(s, "\n", " ")
}

func renderChart(w io.Writer, c *ChartSpec) {
	if len(c.Series) == 0 {
		fmt.Fprintln(w, "(no data)")
		return
	}
	switch c.Kind {
	case "bar":
		renderBars(w, c.Series)
	case "scatter":
		renderPoints(w, c.XS, c.Series, scatterWidth)
		if len(c.XS) > 0 {
			lo, hi := bounds(c.XS)
			fmt.Fprintf(w, "        %-20s%20s\n", strconv.FormatFloat(lo, 'f', 1, 64), strconv.FormatFloat(hi, 'f', 1, 64))
		}
	default:
		ys := c.Series[:min(len(c.Series), lineChartPoints)]
		xs := make([]float64, len(ys))
		for i := range xs {
			xs[i] = float64(i)
		}
		renderPoints(w, xs, ys, len(ys))
	}
}

// renderBars draws one column of '#' per value, scaled to the largest value.
func renderBars(w io.Writer, ys []float64) {
	ys = ys[:min(len(ys), barChartPoints)]
	_, top := bounds(ys)
	heights := make([]int, len(ys))
	for i, y := range ys {
		if top > 0 {
			heights[i] = int(math.Round(y / top * chartHeight))
		}
	}
	for level := chartHeight; level >= 1; level-- {
		fmt.Fprintf(w, "%6.0f |", float64(level)/chartHeight*top)
		for _, h := range heights {
			if h >= level {
				fmt.Fprint(w, " # ")
			} else {
				fmt.Fprint(w, "   ")
			}
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "       +%s\n", strings.Repeat("---", len(ys)))
	fmt.Fprint(w, "        ")
	for i := range ys {
		fmt.Fprintf(w, "%-3s", centered(strconv.Itoa(i+1), 3))
	}
	fmt.Fprintln(w)
}

// renderPoints plots (xs[i], ys[i]) as '*' on a width-column grid.
func renderPoints(w io.Writer, xs, ys []float64, width int) {
	n := min(len(xs), len(ys))
	xlo, xhi := bounds(xs[:n])
	ylo, yhi := bounds(ys[:n])
	grid := make([][]byte, chartHeight)
	for i := range grid {
		grid[i] = []byte(strings.Repeat(" ", width))
	}
	for i := 0; i < n; i++ {
		col := scale(xs[i], xlo, xhi, width)
		row := scale(ys[i], ylo, yhi, chartHeight)
		grid[row][col] = '*'
	}
	for row := chartHeight - 1; row >= 0; row-- {
		y := ylo + float64(row)/(chartHeight-1)*(yhi-ylo)
		fmt.Fprintf(w, "%6.1f |%s\n", y, strings.TrimRight(string(grid[row]), " "))
	}
	fmt.Fprintf(w, "       +%s\n", strings.Repeat("-", width))
}

// scale maps v in [lo, hi] onto 0..steps-1, centring when the span is empty.
func scale(v, lo, hi float64, steps int) int {
	if hi <= lo {
		return steps / 2
	}
	i := int(math.Round((v - lo) / (hi - lo) * float64(steps-1)))
	return min(max(i, 0), steps-1)
}

func bounds(xs []float64) (lo, hi float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	lo, hi = xs[0], xs[0]
	for _, x := range xs[1:] {
		lo = min(lo, x)
		hi = max(hi, x)
	}
	return lo, hi
}

func centered(s string, width int) string {
	pad := width - len(s)
	if pad <= 0 {
		return s
	}
	return strings.Repeat(" ", pad/2) + s + strings.Repeat(" ", pad-pad/2)
}

// WriteMarkdown exports the document as a markdown table.
func (d *Document) WriteMarkdown(w io.Writer) error {
	defer d.rlock()()
	return WriteMarkdown(w, d.sh.store)
}
