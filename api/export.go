package api

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/warp/allocation-ledger/allocation"
)

const historySheet = "Sheet1"

var historyHeadings = []string{
	"Date", "Root ID", "RM ID", "BM ID", "Item", "Emp Code", "Employee", "Qty",
	"Purpose", "Assigned By", "Role", "Region", "Branch", "To Vendor", "LR No",
}

// writeHistoryWorkbook writes one row per employee share. Custom columns
// entered on any share are appended after the fixed headings.
func writeHistoryWorkbook(w io.Writer, records []allocation.Allocation) error {
	f := excelize.NewFile()
	defer f.Close()

	extras := extraColumns(records)
	headings := append(append([]string{}, historyHeadings...), extras...)
	if err := setRow(f, 1, headings); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetRowStyle(historySheet, 1, 1, bold); err != nil {
		return err
	}

	rowNo := 2
	for _, a := range records {
		for _, s := range a.Employees {
			row := []any{
				a.Date.Format(time.DateOnly), a.RootID, a.RMID, a.BMID, string(a.Item),
				s.EmpCode, s.Name, s.Qty, a.Purpose, a.AssignedBy, string(a.Role),
				a.Region, a.Branch, yesNo(a.ToVendor), a.LRNo,
			}
			for _, col := range extras {
				row = append(row, s.Extra[col])
			}
			if err := setRow(f, rowNo, row); err != nil {
				return err
			}
			rowNo++
		}
	}

	return f.Write(w)
}

func setRow[T any](f *excelize.File, rowNo int, values []T) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNo)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(historySheet, cell, &values); err != nil {
		return fmt.Errorf("row %d: %w", rowNo, err)
	}
	return nil
}

func extraColumns(records []allocation.Allocation) []string {
	seen := make(map[string]bool)
	for _, a := range records {
		for _, s := range a.Employees {
			for k := range s.Extra {
				seen[k] = true
			}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
