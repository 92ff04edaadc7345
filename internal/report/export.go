// Package report renders ingestion run summaries as XLSX and PDF documents.
package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"cardiac-monitor/internal/ingestion"
)

// RunSummary is one row of the per-patient breakdown.
type RunSummary struct {
	PatientID string
	Stats     ingestion.Stats
}

// BuildRunPDF renders a minimal PDF for an ingestion run.
func BuildRunPDF(total *ingestion.Stats, patients []RunSummary) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Cardiac Device Ingestion Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Run: %s", total.RunID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Started: %s", total.StartedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Completed: %s", total.CompletedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Duration: %s", total.Duration()))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Success rate: %.1f%%", total.SuccessRate()))
	pdf.Ln(8)

	pdf.Cell(0, 6, fmt.Sprintf("Total readings: %d", total.TotalReadings))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Stored: %d", total.SuccessfulReadings))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Duplicates skipped: %d", total.DuplicateReadings))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Validation failures: %d", total.ValidationFailures))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Alerts generated: %d", total.AlertsGenerated))
	pdf.Ln(8)

	// Per-patient table
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(45, 6, "Patient", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Readings", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Stored", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Alerts", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Errors", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, summary := range patients {
		pdf.CellFormat(45, 6, summary.PatientID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%d", summary.Stats.TotalReadings), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%d", summary.Stats.SuccessfulReadings), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%d", summary.Stats.AlertsGenerated), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%d", len(summary.Stats.Errors)), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	if len(total.Errors) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Arial", "B", 10)
		pdf.Cell(0, 6, "Errors")
		pdf.Ln(6)
		pdf.SetFont("Arial", "", 9)
		for _, message := range total.Errors {
			pdf.MultiCell(0, 5, message, "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildRunXLSX renders a minimal XLSX for an ingestion run.
func BuildRunXLSX(total *ingestion.Stats, patients []RunSummary) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	patientsSheet := "patients"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(patientsSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Cardiac Device Ingestion Report")
	_ = f.SetCellValue(summarySheet, "A3", "Run")
	_ = f.SetCellValue(summarySheet, "B3", total.RunID)
	_ = f.SetCellValue(summarySheet, "A4", "Started")
	_ = f.SetCellValue(summarySheet, "B4", total.StartedAt.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A5", "Completed")
	_ = f.SetCellValue(summarySheet, "B5", total.CompletedAt.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A6", "Total readings")
	_ = f.SetCellValue(summarySheet, "B6", total.TotalReadings)
	_ = f.SetCellValue(summarySheet, "A7", "Stored")
	_ = f.SetCellValue(summarySheet, "B7", total.SuccessfulReadings)
	_ = f.SetCellValue(summarySheet, "A8", "Duplicates skipped")
	_ = f.SetCellValue(summarySheet, "B8", total.DuplicateReadings)
	_ = f.SetCellValue(summarySheet, "A9", "Validation failures")
	_ = f.SetCellValue(summarySheet, "B9", total.ValidationFailures)
	_ = f.SetCellValue(summarySheet, "A10", "Alerts generated")
	_ = f.SetCellValue(summarySheet, "B10", total.AlertsGenerated)
	_ = f.SetCellValue(summarySheet, "A11", "Success rate (%)")
	_ = f.SetCellValue(summarySheet, "B11", total.SuccessRate())

	_ = f.SetCellValue(patientsSheet, "A1", "Patient")
	_ = f.SetCellValue(patientsSheet, "B1", "Readings")
	_ = f.SetCellValue(patientsSheet, "C1", "Stored")
	_ = f.SetCellValue(patientsSheet, "D1", "Duplicates")
	_ = f.SetCellValue(patientsSheet, "E1", "Alerts")
	_ = f.SetCellValue(patientsSheet, "F1", "Errors")
	for i, summary := range patients {
		row := i + 2
		_ = f.SetCellValue(patientsSheet, fmt.Sprintf("A%d", row), summary.PatientID)
		_ = f.SetCellValue(patientsSheet, fmt.Sprintf("B%d", row), summary.Stats.TotalReadings)
		_ = f.SetCellValue(patientsSheet, fmt.Sprintf("C%d", row), summary.Stats.SuccessfulReadings)
		_ = f.SetCellValue(patientsSheet, fmt.Sprintf("D%d", row), summary.Stats.DuplicateReadings)
		_ = f.SetCellValue(patientsSheet, fmt.Sprintf("E%d", row), summary.Stats.AlertsGenerated)
		_ = f.SetCellValue(patientsSheet, fmt.Sprintf("F%d", row), len(summary.Stats.Errors))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
