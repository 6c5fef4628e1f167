package output

import (
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

// FrequencyBucket is one value/count pair from the frequency engine,
// in the order the chart should render them.
type FrequencyBucket struct {
	Value string
	Count uint64
}

// PlotFrequencyChart renders the top buckets of one field's frequency
// table as an interactive bar chart, adapted from the source's /16 IP
// heatmap: same global-options/page-render shape, a bar series over
// value/count pairs instead of a two-axis heatmap over IP octets.
func PlotFrequencyChart(field string, buckets []FrequencyBucket, filename string) error {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:       fmt.Sprintf("Frequency: %s", field),
			Width:           "160vh",
			Height:          "80vh",
			Theme:           types.ThemeVintage,
			BackgroundColor: "transparent",
		}),
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("Value Frequency — %s", field),
			Left:  "center",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: field, Type: "category"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "count", Type: "value"}),
	)

	labels := make([]string, len(buckets))
	items := make([]opts.BarData, len(buckets))
	for i, b := range buckets {
		labels[i] = b.Value
		items[i] = opts.BarData{Value: b.Count}
	}
	bar.SetXAxis(labels).AddSeries("count", items)

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(bar)

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("creating chart file %s: %w", filename, err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		return fmt.Errorf("rendering frequency chart: %w", err)
	}
	return nil
}
