package md

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"rsicross/internal/indicator"
)

// CSVHistory serves bars from a local "time,close" file. A header row is
// skipped; extra columns are ignored. The symbol in the request is not
// checked, one file holds one instrument.
type CSVHistory struct {
	path string
}

func NewCSVHistory(path string) *CSVHistory {
	return &CSVHistory{path: path}
}

func (c *CSVHistory) Bars(ctx context.Context, req Request) (indicator.PriceSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(c.path)
	if err != nil {
		return nil, fmt.Errorf("open price csv: %w", err)
	}
	defer file.Close()

	points, err := ReadCSV(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.path, err)
	}

	inRange := points[:0]
	for _, p := range points {
		if !req.Start.IsZero() && p.Time.Before(req.Start) {
			continue
		}
		if !req.End.IsZero() && p.Time.After(req.End) {
			continue
		}
		inRange = append(inRange, p)
	}
	return toSeries(inRange, req.Limit)
}

// ReadCSV parses time,close rows. Times are RFC3339 or YYYY-MM-DD.
func ReadCSV(r io.Reader) ([]indicator.Point, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var points []indicator.Point
	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		if len(record) < 2 {
			return nil, fmt.Errorf("line %d: expected time,close", line)
		}
		ts, err := parseTime(record[0])
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad close %q: %w", line, record[1], err)
		}
		if math.IsNaN(price) || math.IsInf(price, 0) {
			return nil, fmt.Errorf("line %d: close %q: %w", line, record[1], indicator.ErrInvalidPrice)
		}
		points = append(points, indicator.Point{Time: ts, Price: price})
	}
	return points, nil
}

func parseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.UTC(), nil
	}
	return time.Parse("2006-01-02", value)
}
