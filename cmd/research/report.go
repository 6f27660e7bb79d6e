package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"rsicross/internal/indicator"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/moznion/go-optional"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	faintStyle = lipgloss.NewStyle().Faint(true)
)

// report is a rendered table plus a one-line summary.
type report struct {
	title   string
	headers []string
	rows    [][]string
	summary string
}

func (r report) writeTable(w io.Writer) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(r.headers...).
		Rows(r.rows...)
	_, err := fmt.Fprintf(w, "%s\n%s\n%s\n", titleStyle.Render(r.title), t.Render(), faintStyle.Render(r.summary))
	return err
}

func (r report) writeCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(r.headers); err != nil {
		return err
	}
	if err := cw.WriteAll(r.rows); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func (r report) write(w io.Writer, format string) error {
	switch format {
	case "table":
		return r.writeTable(w)
	case "csv":
		return r.writeCSV(w)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func rsiReport(symbol string, prices indicator.PriceSeries, eval indicator.Evaluation, low, high float64) report {
	rows := make([][]string, len(prices))
	for i, p := range prices {
		zone := ""
		rsi := at(eval.RSI, i)
		if rsi.IsSome() {
			zone = string(indicator.Classify(rsi.Unwrap(), low, high))
		}
		rows[i] = []string{
			p.Time.Format("2006-01-02"),
			formatFloat(p.Price),
			formatOptional(rsi),
			formatOptional(at(eval.EWMA, i)),
			zone,
		}
	}

	summary := fmt.Sprintf("mean RSI %s, latest RSI %s vs EWMA %s",
		formatOptional(eval.RSIMean), formatOptional(eval.RSILatest), formatOptional(eval.EWMALatest))
	if eval.Signal.Direction != "" {
		summary += fmt.Sprintf(": %s (delta %+.2f)", eval.Signal.Direction, eval.Signal.Delta)
	}
	return report{
		title:   fmt.Sprintf("%s RSI(%d)", symbol, eval.Window),
		headers: []string{"date", "close", "rsi", "rsi_ewma", "zone"},
		rows:    rows,
		summary: summary,
	}
}

func maReport(symbol string, prices indicator.PriceSeries, windows []int) (report, error) {
	averages := make([]indicator.Series, len(windows))
	headers := []string{"date", "close"}
	for i, w := range windows {
		sma, err := indicator.SMA(prices, w)
		if err != nil {
			return report{}, err
		}
		averages[i] = sma
		headers = append(headers, fmt.Sprintf("ma_%d", w))
	}

	rows := make([][]string, len(prices))
	for i, p := range prices {
		row := []string{p.Time.Format("2006-01-02"), formatFloat(p.Price)}
		for _, sma := range averages {
			row = append(row, formatOptional(sma[i]))
		}
		rows[i] = row
	}

	var latest []string
	for j, sma := range averages {
		latest = append(latest, fmt.Sprintf("%d-day %s", windows[j], formatOptional(sma.Latest())))
	}
	return report{
		title:   fmt.Sprintf("%s moving averages", symbol),
		headers: headers,
		rows:    rows,
		summary: "latest " + strings.Join(latest, ", "),
	}, nil
}

// parseWindows reads a comma separated list of positive window lengths.
func parseWindows(value string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		w, err := strconv.Atoi(part)
		if err != nil || w <= 0 {
			return nil, fmt.Errorf("invalid window %q", part)
		}
		out = append(out, w)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no windows given")
	}
	return out, nil
}

func at(s indicator.Series, i int) optional.Option[float64] {
	if i >= len(s) {
		return optional.None[float64]()
	}
	return s[i]
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatOptional(v optional.Option[float64]) string {
	if v.IsNone() {
		return ""
	}
	return formatFloat(v.Unwrap())
}
