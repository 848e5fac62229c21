package export

import (
	"fmt"
	"io"

	"github.com/fpang/ec8a-extractor/internal/form"
	"github.com/fpang/ec8a-extractor/internal/store"
	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet holding the results table.
const SheetName = "Results"

// WriteXLSX writes the same table as WriteCSV as an Excel workbook. Numbers
// are stored as numeric cells so totals can be summed in the spreadsheet.
func WriteXLSX(w io.Writer, records []store.Record, l form.Layout) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}

	set := func(col, row int, v any) error {
		cellName, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return err
		}
		return f.SetCellValue(SheetName, cellName, v)
	}

	for i, h := range l.Header() {
		if err := set(i+1, 1, h); err != nil {
			return fmt.Errorf("xlsx header: %w", err)
		}
	}

	for r, row := range rows(records, l) {
		for c, cl := range row {
			var v any
			switch cl.kind {
			case cellText, cellToken:
				v = cl.text
			case cellNumber:
				v = cl.num
			default:
				continue
			}
			if err := set(c+1, r+2, v); err != nil {
				return fmt.Errorf("xlsx row %d: %w", r+2, err)
			}
		}
	}

	// Filename, status and admin columns hold long text.
	lastText, _ := excelize.ColumnNumberToName(2 + len(l.AdminFields))
	_ = f.SetColWidth(SheetName, "A", "A", 28)
	_ = f.SetColWidth(SheetName, "B", lastText, 18)
	_ = f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}
