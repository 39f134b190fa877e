package monitor

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/stress.report/internal/model"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// DatasetScatter renders the rows of a task's dataset as an HTML scatter of
// GSR mean against HR mean, coloured by the first label target.
func DatasetScatter(w io.Writer, task string, rows []model.Row) error {
	data := make([]opts.ScatterData, 0, len(rows))
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, r := range rows {
		var label interface{}
		if len(r.Targets) > 0 {
			v := r.Targets[0]
			label = v
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
		data = append(data, opts.ScatterData{Value: []interface{}{r.Sample.GSRMean, r.Sample.HRMean, label}})
	}
	if len(data) == 0 || lo > hi {
		lo, hi = 0, 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: fmt.Sprintf("%s dataset", task), Theme: "dark", Width: "900px", Height: "700px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("%s dataset", task), Subtitle: fmt.Sprintf("samples=%d", len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "GSR mean", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "HR mean (bpm)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Dimension:  "2",
			Min:        float32(lo),
			Max:        float32(hi),
			InRange:    &opts.VisualMapInRange{Color: []string{"#313695", "#74add1", "#fee090", "#f46d43", "#a50026"}},
		}),
	)
	scatter.AddSeries(task, data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))
	return scatter.Render(w)
}
