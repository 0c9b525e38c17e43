// Package report renders a single-page HTML summary of a conversion run
// from the finished table set.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/dataset.export/internal/nuscenes"
)

// Render writes the report page: a line chart of annotations per sample and
// a bar chart of instances per category, headed by the run summary.
func Render(w io.Writer, tables *nuscenes.TableSet) error {
	page := components.NewPage()
	page.AddCharts(annotationsPerSample(tables), instancesPerCategory(tables))
	return page.Render(w)
}

func summary(tables *nuscenes.TableSet) string {
	name := ""
	if len(tables.Scenes) > 0 {
		name = tables.Scenes[0].Name
	}
	return fmt.Sprintf("scene %s: %d samples, %d annotations, %d instances, %d records",
		name, len(tables.Samples), len(tables.SampleAnnotations), len(tables.Instances), tables.RecordCount())
}

// annotationsPerSample charts how many annotations each emitted sample
// carries, in sample order.
func annotationsPerSample(tables *nuscenes.TableSet) *charts.Line {
	counts := make(map[string]int, len(tables.Samples))
	for _, a := range tables.SampleAnnotations {
		counts[a.SampleToken]++
	}

	x := make([]string, 0, len(tables.Samples))
	y := make([]opts.LineData, 0, len(tables.Samples))
	for i, s := range tables.Samples {
		x = append(x, fmt.Sprintf("%d", i))
		y = append(y, opts.LineData{Value: counts[s.Token]})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Dataset export report", Width: "1200px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Annotations per sample", Subtitle: summary(tables)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	line.SetXAxis(x).AddSeries("annotations", y)
	return line
}

// instancesPerCategory charts the distinct object counts per category name,
// categories without instances omitted.
func instancesPerCategory(tables *nuscenes.TableSet) *charts.Bar {
	nameByToken := make(map[string]string, len(tables.Categories))
	for _, c := range tables.Categories {
		nameByToken[c.Token] = c.Name
	}
	counts := make(map[string]int)
	for _, in := range tables.Instances {
		counts[nameByToken[in.CategoryToken]]++
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	y := make([]opts.BarData, 0, len(names))
	for _, name := range names {
		y = append(y, opts.BarData{Value: counts[name]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Instances per category"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(names).AddSeries("instances", y,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
	)
	return bar
}
