package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

// corpus-import loads call transcripts from an xlsx workbook and ingests
// them through the server's API, one POST per row. Expected columns:
// call_id, agent_id, customer_id, language, start_time, duration_seconds,
// transcript. The first row is treated as a header.

type importRow struct {
	CallID          string    `json:"call_id,omitempty"`
	AgentID         string    `json:"agent_id"`
	CustomerID      string    `json:"customer_id"`
	Language        string    `json:"language,omitempty"`
	StartTime       time.Time `json:"start_time"`
	DurationSeconds int       `json:"duration_seconds"`
	Transcript      string    `json:"transcript"`
}

func main() {
	var (
		filePath  = flag.String("file", "", "Path to the xlsx workbook")
		sheetName = flag.String("sheet", "", "Sheet name (defaults to the first sheet)")
		serverURL = flag.String("server", "http://localhost:8080", "Base URL of the insights server")
	)
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if *filePath == "" {
		logger.Fatal("-file is required")
	}

	workbook, err := excelize.OpenFile(*filePath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open workbook")
	}
	defer workbook.Close()

	sheet := *sheetName
	if sheet == "" {
		sheet = workbook.GetSheetName(0)
	}

	rows, err := workbook.GetRows(sheet)
	if err != nil {
		logger.WithError(err).WithField("sheet", sheet).Fatal("Failed to read sheet")
	}
	if len(rows) < 2 {
		logger.Fatal("Workbook has no data rows")
	}

	client := &http.Client{Timeout: 30 * time.Second}
	imported, failed := 0, 0

	for i, row := range rows[1:] {
		record, err := parseRow(row)
		if err != nil {
			failed++
			logger.WithError(err).WithField("row", i+2).Warn("Skipping row")
			continue
		}

		if err := ingest(client, *serverURL, record); err != nil {
			failed++
			logger.WithError(err).WithFields(logrus.Fields{
				"row":     i + 2,
				"call_id": record.CallID,
			}).Warn("Ingest failed")
			continue
		}
		imported++
	}

	logger.WithFields(logrus.Fields{
		"imported": imported,
		"failed":   failed,
	}).Info("Import complete")

	if failed > 0 {
		os.Exit(1)
	}
}

func parseRow(row []string) (*importRow, error) {
	if len(row) < 7 {
		return nil, fmt.Errorf("expected 7 columns, got %d", len(row))
	}

	startTime, err := parseStartTime(row[4])
	if err != nil {
		return nil, fmt.Errorf("invalid start_time %q: %w", row[4], err)
	}

	duration, err := strconv.Atoi(row[5])
	if err != nil {
		return nil, fmt.Errorf("invalid duration_seconds %q: %w", row[5], err)
	}

	return &importRow{
		CallID:          row[0],
		AgentID:         row[1],
		CustomerID:      row[2],
		Language:        row[3],
		StartTime:       startTime,
		DurationSeconds: duration,
		Transcript:      row[6],
	}, nil
}

func parseStartTime(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format")
}

func ingest(client *http.Client, serverURL string, record *importRow) error {
	body, err := json.Marshal(record)
	if err != nil {
		return err
	}

	resp, err := client.Post(serverURL+"/api/v1/calls", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, data)
	}
	return nil
}
