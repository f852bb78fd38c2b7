/*
 *     Copyright 2023 The Dragonfly Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package report renders the per epoch summary of a finished run.
package report

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/guptarohit/asciigraph"
	"github.com/olekukonko/tablewriter"
	dataframe "github.com/rocketlaunchr/dataframe-go"
	"github.com/rocketlaunchr/dataframe-go/exports"

	logger "d7y.io/ddgtrainer/internal/dflog"
	"d7y.io/ddgtrainer/trainer/training"
)

const (
	// StatisticsFileName is the csv summary of every epoch.
	StatisticsFileName = "epochs_statistics.csv"

	// EpochColumn is the first column of the summary.
	EpochColumn = "epoch"

	trainLineColor = "black"
	trainLineType  = "dashed"
	plotHeight     = 10
)

// metric selects one column family of the summary.
type metric struct {
	name  string
	value func(m training.Metrics) float64
}

var metricFamilies = []metric{
	{name: "rmse", value: func(m training.Metrics) float64 { return m.RMSE }},
	{name: "mae", value: func(m training.Metrics) float64 { return m.MAE }},
	{name: "corr", value: func(m training.Metrics) float64 { return m.Corr }},
}

// ChartFileName returns the chart file of a metric family.
func ChartFileName(name string) string {
	return fmt.Sprintf("epochs_%s.html", name)
}

// Report writes the summary csv and the charts of history into resultDir and
// prints the summary to stdout.
func Report(ctx context.Context, history *training.History, resultDir, modelName string) error {
	return Write(ctx, os.Stdout, history, resultDir, modelName)
}

// Write is Report printing to w.
func Write(ctx context.Context, w io.Writer, history *training.History, resultDir, modelName string) error {
	if history == nil || history.Epochs() == 0 {
		logger.Warn("no completed epochs to report")
		return nil
	}

	df := NewDataFrame(history)
	if err := writeStatistics(ctx, df, filepath.Join(resultDir, StatisticsFileName)); err != nil {
		return err
	}

	for _, family := range metricFamilies {
		if err := writeChart(history, family, modelName, filepath.Join(resultDir, ChartFileName(family.name))); err != nil {
			return err
		}
	}

	writeTable(w, df)
	if len(history.ValidationNames) > 0 {
		writePlot(w, history.ValidationNames[0]+"_mae", history.Validations[0])
	}

	logger.Infof("report of %d epochs written to %s", history.Epochs(), resultDir)
	return nil
}

// NewDataFrame joins the metric arrays of every split on the epoch column.
func NewDataFrame(history *training.History) *dataframe.DataFrame {
	epochs := make([]interface{}, 0, history.Epochs())
	for i := 1; i <= history.Epochs(); i++ {
		epochs = append(epochs, int64(i))
	}

	series := []dataframe.Series{dataframe.NewSeriesInt64(EpochColumn, nil, epochs...)}
	for _, family := range metricFamilies {
		series = append(series, dataframe.NewSeriesFloat64(columnName(history.TrainName, family.name), nil, values(history.Train, family)))
	}

	for _, family := range metricFamilies {
		for i, name := range history.ValidationNames {
			series = append(series, dataframe.NewSeriesFloat64(columnName(name, family.name), nil, values(history.Validations[i], family)))
		}
	}

	return dataframe.NewDataFrame(series...)
}

func columnName(split, metric string) string {
	return fmt.Sprintf("%s_%s", split, metric)
}

func values(series []training.Metrics, family metric) []float64 {
	vals := make([]float64, 0, len(series))
	for _, m := range series {
		vals = append(vals, family.value(m))
	}

	return vals
}

func writeStatistics(ctx context.Context, df *dataframe.DataFrame, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return exports.ExportToCSV(ctx, file, df)
}

func writeChart(history *training.History, family metric, modelName, path string) error {
	epochs := make([]int, 0, history.Epochs())
	for i := 1; i <= history.Epochs(); i++ {
		epochs = append(epochs, i)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Model: %s", modelName)}),
		charts.WithXAxisOpts(opts.XAxis{Name: EpochColumn}),
		charts.WithYAxisOpts(opts.YAxis{Name: family.name}),
	)

	line.SetXAxis(epochs).
		AddSeries(columnName(history.TrainName, family.name), lineData(history.Train, family),
			charts.WithLineStyleOpts(opts.LineStyle{Color: trainLineColor, Type: trainLineType}))
	for i, name := range history.ValidationNames {
		line.AddSeries(columnName(name, family.name), lineData(history.Validations[i], family))
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return line.Render(file)
}

// lineData leaves a gap for NaN values, which json can not encode.
func lineData(series []training.Metrics, family metric) []opts.LineData {
	data := make([]opts.LineData, 0, len(series))
	for _, m := range series {
		v := family.value(m)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			data = append(data, opts.LineData{Value: nil})
			continue
		}

		data = append(data, opts.LineData{Value: v})
	}

	return data
}

func writeTable(w io.Writer, df *dataframe.DataFrame) {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetHeader(df.Names())

	for row := 0; row < df.NRows(); row++ {
		cells := make([]string, 0, len(df.Series))
		for _, s := range df.Series {
			switch v := s.Value(row).(type) {
			case nil:
				cells = append(cells, "NaN")
			case float64:
				cells = append(cells, strconv.FormatFloat(v, 'f', 4, 64))
			default:
				cells = append(cells, s.ValueString(row))
			}
		}

		table.Append(cells)
	}

	table.Render()
}

func writePlot(w io.Writer, caption string, series []training.Metrics) {
	vals := make([]float64, 0, len(series))
	for _, m := range series {
		if !math.IsNaN(m.MAE) && !math.IsInf(m.MAE, 0) {
			vals = append(vals, m.MAE)
		}
	}

	if len(vals) == 0 {
		return
	}

	fmt.Fprintln(w, asciigraph.Plot(vals, asciigraph.Height(plotHeight), asciigraph.Caption(caption)))
}
