// Package export writes request listings as spreadsheets.
package export

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/baiirun/mesa/internal/model"
)

const (
	SheetName   = "Solicitudes"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var Header = []string{
	"ID", "Título", "Estado", "Prioridad", "Tipo", "Canal", "Departamento", "Nivel",
	"Solicitante", "Asignado a", "Fecha solicitud", "Creada", "Completada", "Horas registradas",
}

// Filename is the suggested download name for an export taken at now.
func Filename(now time.Time) string {
	return "solicitudes-" + now.UTC().Format("20060102-150405") + ".xlsx"
}

// WriteXLSX writes one header row and one row per request to w.
func WriteXLSX(w io.Writer, reqs []model.Request) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	if err := f.SetRowStyle(SheetName, 1, 1, bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i := range reqs {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := Row(&reqs[i])
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(SheetName, "B", "B", 40); err != nil {
		return fmt.Errorf("failed to size columns: %w", err)
	}
	if err := f.SetColWidth(SheetName, "C", "N", 18); err != nil {
		return fmt.Errorf("failed to size columns: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// Row renders r as spreadsheet cells in Header order.
func Row(r *model.Request) []any {
	level := ""
	if r.Level != nil {
		level = strconv.Itoa(*r.Level)
	}
	return []any{
		r.ID,
		r.Title,
		string(r.Status),
		string(r.Priority),
		string(r.Type),
		string(r.Channel),
		r.Department,
		level,
		r.RequesterName,
		deref(r.AssignedToName),
		formatTime(&r.RequestedAt),
		formatTime(&r.CreatedAt),
		formatTime(r.CompletionDate),
		r.WorklogHours,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}
