package datalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/lidar-tools/lidarchive/internal/models"
)

const notAvailable = "N/A"

// CSVHeader lists the export columns.
var CSVHeader = []string{
	"Process Start",
	"Task ID",
	"Data Folder",
	"Output Folder",
	"Output File",
	"System ID",
	"Remote Measurement ID",
	"Uploaded",
	"Downloaded",
	"Remote Version",
	"Result",
}

// Rows converts the tasks to history rows in ledger order.
func (d *Datalog) Rows() []models.TaskRow {
	runID := d.Config().RunID
	tasks := d.Tasks()
	rows := make([]models.TaskRow, len(tasks))
	for i := range tasks {
		rows[i] = TaskRow(runID, &tasks[i])
	}
	return rows
}

// TaskRow flattens one task.
func TaskRow(runID string, t *models.Task) models.TaskRow {
	row := models.TaskRow{
		RunID:         runID,
		ProcessStart:  t.ProcessStart,
		TaskID:        t.ID,
		SystemID:      t.SystemID,
		RemoteID:      t.RemoteID,
		Uploaded:      t.Uploaded,
		Downloaded:    t.Downloaded,
		RemoteVersion: t.RemoteVersion,
		Result:        t.Result,
	}
	if len(t.Measurement.Data) > 0 {
		row.DataFolder = filepath.Dir(t.Measurement.Data[0].Path)
	}
	if t.OutputPath != "" {
		row.OutputFolder = filepath.Dir(t.OutputPath)
		row.OutputFile = filepath.Base(t.OutputPath)
	}
	return row
}

// WriteCSV appends one line per task to path, writing the header first
// when the file is new.
func (d *Datalog) WriteCSV(path string) (err error) {
	rows := d.Rows()

	_, statErr := os.Stat(path)
	isNew := errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open csv datalog: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	w := csv.NewWriter(f)
	if isNew {
		if err := w.Write(CSVHeader); err != nil {
			return err
		}
	}
	for _, row := range rows {
		if err := w.Write(csvRecord(row)); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write csv datalog: %w", err)
	}

	d.log.WithField("path", path).WithField("rows", len(rows)).Info("Saved datalog CSV")
	return nil
}

func csvRecord(r models.TaskRow) []string {
	system := notAvailable
	if r.SystemID != 0 {
		system = strconv.Itoa(r.SystemID)
	}
	return []string{
		r.ProcessStart.Format("2006-01-02 15:04:05"),
		r.TaskID,
		orNA(r.DataFolder),
		orNA(r.OutputFolder),
		orNA(r.OutputFile),
		system,
		orNA(r.RemoteID),
		strconv.FormatBool(r.Uploaded),
		strconv.FormatBool(r.Downloaded),
		orNA(r.RemoteVersion),
		orNA(r.Result),
	}
}

func orNA(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}
