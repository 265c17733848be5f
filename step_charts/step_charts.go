// step_charts plots training progress (steps per episode) with go-echarts.
package step_charts

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"
)

// DefaultMaxPoints bounds the series length; a 100k-episode run would otherwise
// put 100k points in the page.
const DefaultMaxPoints = 500

// Bucket is the mean step count over a contiguous range of episodes.
type Bucket struct {
	First, Last int
	Mean        float64
}

// Buckets averages steps into at most maxPoints equal-width buckets. Episodes
// are numbered from 1.
func Buckets(steps []int, maxPoints int) []Bucket {
	if len(steps) == 0 || maxPoints <= 0 {
		return nil
	}
	width := (len(steps) + maxPoints - 1) / maxPoints
	buckets := make([]Bucket, 0, (len(steps)+width-1)/width)
	xs := make([]float64, 0, width)
	for start := 0; start < len(steps); start += width {
		end := min(start+width, len(steps))
		xs = xs[:0]
		for _, s := range steps[start:end] {
			xs = append(xs, float64(s))
		}
		buckets = append(buckets, Bucket{
			First: start + 1,
			Last:  end,
			Mean:  stat.Mean(xs, nil),
		})
	}
	return buckets
}

// NewStepsChart builds a line chart of steps per episode, with a second series
// for the running average.
func NewStepsChart(title string, steps []int, maxPoints int) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("%d episodes", len(steps)),
		}),
		charts.WithInitializationOpts(opts.Initialization{
			Theme: "shine",
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: "episode"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "steps", Type: "log"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
	)

	buckets := Buckets(steps, maxPoints)
	xAxis := make([]string, 0, len(buckets))
	perBucket := make([]opts.LineData, 0, len(buckets))
	running := make([]opts.LineData, 0, len(buckets))
	sum, n := 0.0, 0
	for _, b := range buckets {
		xAxis = append(xAxis, fmt.Sprintf("%d", b.Last))
		perBucket = append(perBucket, opts.LineData{Value: b.Mean})
		count := b.Last - b.First + 1
		sum += b.Mean * float64(count)
		n += count
		running = append(running, opts.LineData{Value: sum / float64(n)})
	}

	line.SetXAxis(xAxis).
		AddSeries("steps", perBucket).
		AddSeries("running average", running)
	return line
}

// Render writes a standalone html page charting steps.
func Render(w io.Writer, title string, steps []int) error {
	if err := NewStepsChart(title, steps, DefaultMaxPoints).Render(w); err != nil {
		return fmt.Errorf("render steps chart: %w", err)
	}
	return nil
}
