/*package render draws summary plots of stored avalanches with matplotlib.
*/
package render

import (
	"fmt"
	"math"
	"strings"

	plt "github.com/phil-mansfield/pyplot"
)

// HistInfo describes the binning of a histogram. Scale is "lin" or "log".
type HistInfo struct {
	Min, Max float64
	Bins     int
	Scale    string
}

func (info *HistInfo) isLog() bool {
	return strings.ToLower(info.Scale) == "log"
}

// GainHistogram is a histogram of avalanche sizes.
type GainHistogram struct {
	Info    HistInfo
	Centers []float64
	Counts  []int
	// Runs is the number of sizes given, including those outside the bins.
	Runs int
	Mean float64
}

// NewGainHistogram bins the electron counts of a set of avalanches. Bins are
// logarithmic if the sizes span more than two decades.
func NewGainHistogram(sizes []int, bins int) (*GainHistogram, error) {
	if len(sizes) == 0 {
		return nil, fmt.Errorf("no avalanche sizes to histogram")
	} else if bins <= 0 {
		return nil, fmt.Errorf("bins is %d, must be positive", bins)
	}

	min, max, sum := sizes[0], sizes[0], 0.0
	xs := make([]float64, len(sizes))
	for i, n := range sizes {
		if n < min { min = n }
		if n > max { max = n }
		sum += float64(n)
		xs[i] = float64(n)
	}

	info := HistInfo{
		Min: float64(min) - 0.5, Max: float64(max) + 0.5,
		Bins: bins, Scale: "lin",
	}
	if min >= 1 && max > 100*min {
		info.Min, info.Max, info.Scale = float64(min), float64(max) * 1.001, "log"
	}

	h := &GainHistogram{
		Info: info, Centers: histCenters(&info), Counts: make([]int, bins),
		Runs: len(sizes), Mean: sum / float64(len(sizes)),
	}
	histogram(xs, &info, h.Counts)
	return h, nil
}

// histCenters returns the centers of a histogram.
func histCenters(info *HistInfo) []float64 {
	min, max := info.Min, info.Max

	isLog := info.isLog()
	if isLog { min, max = math.Log10(min), math.Log10(max) }

	dx := (max - min) / float64(info.Bins)

	centers := make([]float64, info.Bins)
	for i := range centers {
		centers[i] = min + dx * (float64(i) + 0.5)
		if isLog { centers[i] = math.Pow(10, centers[i]) }
	}

	return centers
}

// histEdges returns the bin edges of a histogram.
func histEdges(info *HistInfo) []float64 {
	min, max := info.Min, info.Max

	isLog := info.isLog()
	if isLog { min, max = math.Log10(min), math.Log10(max) }

	dx := (max - min) / float64(info.Bins)
	edges := make([]float64, info.Bins + 1)
	for i := range edges {
		edges[i] = min + dx * float64(i)
		if isLog { edges[i] = math.Pow(10, edges[i]) }
	}
	return edges
}

func histogram(x []float64, info *HistInfo, counts []int) {
	min, max := info.Min, info.Max
	fBins := float64(info.Bins)

	if info.isLog() {
		min, max := math.Log10(min), math.Log10(max)
		dx := (max - min) / fBins

		for i := range x {
			if x[i] <= 0 { continue }
			idx := (math.Log10(x[i]) - min) / dx
			if idx < 0 || idx >= fBins { continue }
			counts[int(idx)]++
		}
	} else {
		dx := (max - min) / fBins

		for i := range x {
			idx := (x[i] - min) / dx
			if idx < 0 || idx >= fBins { continue }
			counts[int(idx)]++
		}
	}
}

// Steps returns the outline of the histogram as a line through the corners
// of its bars.
func (h *GainHistogram) Steps() (xs, ys []float64) {
	edges := histEdges(&h.Info)
	xs = make([]float64, 0, 2*len(h.Counts) + 2)
	ys = make([]float64, 0, 2*len(h.Counts) + 2)

	xs, ys = append(xs, edges[0]), append(ys, 0)
	for i, n := range h.Counts {
		xs = append(xs, edges[i], edges[i+1])
		ys = append(ys, float64(n), float64(n))
	}
	xs, ys = append(xs, edges[len(edges)-1]), append(ys, 0)
	return xs, ys
}

// PlotGain writes a figure of the histogram to fname. Nothing is drawn until
// plt.Execute is called.
func (h *GainHistogram) PlotGain(fname string, logY bool) {
	xs, ys := h.Steps()

	plt.Figure()
	plt.Plot(xs, ys, "k", plt.LW(2))
	plt.Plot([]float64{h.Mean, h.Mean}, []float64{0, float64(maxCount(h))},
		"r", plt.LW(2))
	plt.Title(fmt.Sprintf(`%d avalanches, $\langle n_e \rangle$ = %.4g`,
		h.Runs, h.Mean))
	plt.XLabel(`$n_e$`, plt.FontSize(16))
	plt.YLabel(`$N$`, plt.FontSize(16))
	if h.Info.isLog() { plt.XScale("log") }
	if logY { plt.YScale("log") }
	plt.Grid(plt.Axis("y"))
	plt.SaveFig(fname)
}

func maxCount(h *GainHistogram) int {
	max := 0
	for _, n := range h.Counts {
		if n > max { max = n }
	}
	return max
}
