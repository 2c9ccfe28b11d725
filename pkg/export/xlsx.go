package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/evosim/evoclient/pkg/store"
)

const (
	sheetSession     = "Session"
	sheetSimulations = "Simulations"
)

// XLSXExporter writes a two-sheet workbook: session fields on one sheet,
// one row per simulation run on the other. One-way, like csv.
type XLSXExporter struct{}

// Export writes the session as an xlsx workbook.
func (e *XLSXExporter) Export(session *store.Session, w io.Writer) error {
	if session == nil {
		return ErrNilSession
	}

	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName("Sheet1", sheetSession); err != nil {
		return fmt.Errorf("failed to set up workbook: %w", err)
	}
	if _, err := f.NewSheet(sheetSimulations); err != nil {
		return fmt.Errorf("failed to set up workbook: %w", err)
	}

	fields := [][2]interface{}{
		{"ID", session.ID},
		{"Name", session.Name},
		{"Status", string(session.Status)},
		{"Priority", string(session.Priority)},
		{"Tags", strings.Join(session.Tags, ";")},
		{"Created", session.CreatedAt.Format(time.RFC3339)},
		{"Updated", session.UpdatedAt.Format(time.RFC3339)},
		{"Simulations", len(session.Simulations)},
	}
	for i, field := range fields {
		row := i + 1
		if err := f.SetCellValue(sheetSession, fmt.Sprintf("A%d", row), field[0]); err != nil {
			return fmt.Errorf("failed to write session sheet: %w", err)
		}
		if err := f.SetCellValue(sheetSession, fmt.Sprintf("B%d", row), field[1]); err != nil {
			return fmt.Errorf("failed to write session sheet: %w", err)
		}
	}

	for col, name := range runColumns {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to write run header: %w", err)
		}
		if err := f.SetCellValue(sheetSimulations, cell, name); err != nil {
			return fmt.Errorf("failed to write run header: %w", err)
		}
	}

	for i := range session.Simulations {
		for col, value := range runRow(&session.Simulations[i]) {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return fmt.Errorf("failed to write run row: %w", err)
			}
			if err := f.SetCellValue(sheetSimulations, cell, value); err != nil {
				return fmt.Errorf("failed to write run row: %w", err)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// Extension returns "xlsx".
func (e *XLSXExporter) Extension() string {
	return "xlsx"
}
