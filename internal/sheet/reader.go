// Package sheet reads form responses from a CSV export.
package sheet

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"intake/internal/config"
	"intake/internal/services"
)

const defaultRequestTimeout = 30 * time.Second

// Reader returns every response row. The first row is the header row.
type Reader interface {
	ReadAll(ctx context.Context) ([][]string, error)
}

// HTTPDoer describes the HTTP client used for URL sources.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CSVReader reads a local CSV file or a published CSV export URL.
type CSVReader struct {
	source string
	client HTTPDoer
}

// NewCSVReader builds a reader for a path or http(s) URL.
func NewCSVReader(source string, client HTTPDoer) *CSVReader {
	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &CSVReader{source: strings.TrimSpace(source), client: client}
}

// NewConfiguredReader builds a reader from the [sheet] config section.
func NewConfiguredReader(cfg config.Sheet) *CSVReader {
	timeout := defaultRequestTimeout
	if cfg.RequestTimeout > 0 {
		timeout = time.Duration(cfg.RequestTimeout) * time.Second
	}
	return NewCSVReader(cfg.Source, &http.Client{Timeout: timeout})
}

// Source returns the configured path or URL.
func (r *CSVReader) Source() string {
	return r.source
}

// ReadAll fetches and parses the export. Rows may have differing lengths.
func (r *CSVReader) ReadAll(ctx context.Context) ([][]string, error) {
	if r.source == "" {
		return nil, services.Wrap(services.ErrConfiguration, "sheet", "read", "sheet.source is not configured", nil)
	}
	var data []byte
	var err error
	if isURL(r.source) {
		data, err = r.fetch(ctx)
	} else {
		data, err = os.ReadFile(r.source)
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrConfiguration, "sheet", "read", fmt.Sprintf("source %q does not exist", r.source), err)
		}
	}
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func (r *CSVReader) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.source, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "sheet", "fetch", "invalid source url", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "sheet", "fetch", "request failed", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "sheet", "fetch", "read body", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, services.Wrap(services.ErrTransient, "sheet", "fetch", fmt.Sprintf("http %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, services.Wrap(services.ErrExternal, "sheet", "fetch", fmt.Sprintf("http %d", resp.StatusCode), nil)
	}
	return data, nil
}

// Parse decodes CSV data and strips a UTF-8 byte order mark. Rows of empty
// cells come back as empty rows so data row positions match the sheet.
func Parse(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, services.Wrap(services.ErrExternal, "sheet", "parse", "invalid csv", err)
	}
	rows := make([][]string, 0, len(records))
	for i, record := range records {
		if i > 0 && blank(record) {
			rows = append(rows, []string{})
			continue
		}
		rows = append(rows, record)
	}
	return rows, nil
}

func blank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func isURL(source string) bool {
	return strings.HasPrefix(source, "https://") || strings.HasPrefix(source, "http://")
}
