package render

import (
	"fmt"
	"image/color"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// EChartsAssetsHost serves the echarts javascript for rendered pages.
const EChartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

type trace struct {
	title  string
	values func(Frame) []float64
	yMin   float64
	yMax   float64
	color  color.RGBA
}

var traces = []trace{
	{"Raw", func(f Frame) []float64 { return f.Raw }, RawMin, RawMax, color.RGBA{R: 31, G: 119, B: 180, A: 255}},
	{"Raw rate", func(f Frame) []float64 { return f.RawRate }, RateMin, RateMax, color.RGBA{R: 255, G: 127, B: 14, A: 255}},
	{"Filtered", func(f Frame) []float64 { return f.Filtered }, RawMin, RawMax, color.RGBA{R: 44, G: 160, B: 44, A: 255}},
	{"Filtered rate", func(f Frame) []float64 { return f.FilteredRate }, RateMin, RateMax, color.RGBA{R: 214, G: 39, B: 40, A: 255}},
}

// RenderChart writes an HTML page with one echarts line chart per trace.
func RenderChart(w io.Writer, f Frame) error {
	page := components.NewPage()
	page.SetAssetsHost(EChartsAssetsHost)
	page.PageTitle = "adcscope"

	for _, tr := range traces {
		values := tr.values(f)
		data := make([]opts.LineData, 0, len(values))
		for i, v := range values {
			if i >= len(f.Times) {
				break
			}
			data = append(data, opts.LineData{Value: []interface{}{f.Times[i], v}})
		}

		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "260px", AssetsHost: EChartsAssetsHost}),
			charts.WithTitleOpts(opts.Title{Title: tr.title, Subtitle: fmt.Sprintf("samples=%d t=%.2fs", f.Count, f.XMax)}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
			charts.WithXAxisOpts(opts.XAxis{Type: "value", Min: f.XMin, Max: f.XMax, Name: "t (s)", NameLocation: "middle", NameGap: 25}),
			charts.WithYAxisOpts(opts.YAxis{Type: "value", Min: tr.yMin, Max: tr.yMax}),
		)
		line.AddSeries(tr.title, data,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
			charts.WithLineStyleOpts(opts.LineStyle{Width: 1}),
		)
		page.AddCharts(line)
	}

	return page.Render(w)
}

// WritePNG draws the four traces as stacked panels and writes a PNG image.
func WritePNG(w io.Writer, f Frame) error {
	const (
		width  = 10 * vg.Inch
		height = 10 * vg.Inch
	)

	plots := make([][]*plot.Plot, len(traces))
	for i, tr := range traces {
		p := plot.New()
		p.Title.Text = tr.title
		p.X.Label.Text = "t (s)"
		p.X.Min, p.X.Max = f.XMin, f.XMax
		p.Y.Min, p.Y.Max = tr.yMin, tr.yMax
		p.Add(plotter.NewGrid())

		values := tr.values(f)
		n := min(len(values), len(f.Times))
		if n > 0 {
			pts := make(plotter.XYs, n)
			for j := 0; j < n; j++ {
				pts[j].X = f.Times[j]
				pts[j].Y = values[j]
			}
			line, err := plotter.NewLine(pts)
			if err != nil {
				return fmt.Errorf("%s line: %w", tr.title, err)
			}
			line.Width = vg.Points(1)
			line.Color = tr.color
			p.Add(line)
		}
		plots[i] = []*plot.Plot{p}
	}

	img := vgimg.New(width, height)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: len(traces),
		Cols: 1,
		PadY: vg.Millimeter * 2,
	}
	canvases := plot.Align(plots, tiles, dc)
	for i := range plots {
		plots[i][0].Draw(canvases[i][0])
	}

	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(w); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}
