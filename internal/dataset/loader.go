package dataset

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// ReadCSV reads a headered CSV stream into raw rows keyed by column name.
func ReadCSV(r io.Reader) ([]RawRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []RawRecord
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}

		row := make(RawRecord, len(header))
		for i, col := range header {
			row[col] = record[i]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// LoadCSV reads raw rows from a local CSV file.
func LoadCSV(filePath string) ([]RawRecord, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	rows, err := ReadCSV(file)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("file", filePath).
		Int("rows", len(rows)).
		Msg("CSV cohort loaded")

	return rows, nil
}

// FetchCSV downloads a CSV cohort export over HTTP(S).
func FetchCSV(ctx context.Context, url string, timeout time.Duration) ([]RawRecord, error) {
	client := resty.New()
	if timeout > 0 {
		client.SetTimeout(timeout)
	} else {
		client.SetTimeout(30 * time.Second)
	}

	resp, err := client.R().
		SetContext(ctx).
		SetHeader("Accept", "text/csv").
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch cohort export: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("cohort export %s returned %s", url, resp.Status())
	}

	rows, err := ReadCSV(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("url", url).
		Int("rows", len(rows)).
		Dur("elapsed", resp.Time()).
		Msg("CSV cohort fetched")

	return rows, nil
}

// WriteCSV writes raw rows with the given column order.
func WriteCSV(w io.Writer, columns []string, rows []RawRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	record := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			record[i] = row[col]
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// IsRemote reports whether a data source should be fetched over HTTP.
func IsRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}
