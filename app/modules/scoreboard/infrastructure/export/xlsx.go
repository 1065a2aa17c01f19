// Package scoreboardexport renders a projected scoreboard as a spreadsheet or
// a progression chart.
package scoreboardexport

import (
	"fmt"
	"io"

	scoreboardservice "github.com/scorecard-club/scorecard/app/modules/scoreboard/application"
	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet holding the board.
const SheetName = "Scoreboard"

// WriteXLSX writes one row per player: name, one column per round, then the
// total. Empty cells stay blank so they are distinguishable from zero.
func WriteXLSX(w io.Writer, roundCount int, rows []scoreboardservice.Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]any, 0, roundCount+2)
	header = append(header, "Player")
	for r := 1; r <= roundCount; r++ {
		header = append(header, fmt.Sprintf("R%d", r))
	}
	header = append(header, "Total")
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, row := range rows {
		values := make([]any, 0, roundCount+2)
		values = append(values, row.Name)
		for r := 0; r < roundCount; r++ {
			var v any
			if r < len(row.Cells) {
				if n, ok := row.Cells[r].Value(); ok {
					v = n
				}
			}
			values = append(values, v)
		}
		values = append(values, row.Total)

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("failed to write row for %s: %w", row.PlayerID, err)
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		XSplit:      1,
		YSplit:      1,
		TopLeftCell: "B2",
		ActivePane:  "bottomRight",
	}); err != nil {
		return fmt.Errorf("failed to freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
