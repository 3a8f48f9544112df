package reports

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// WriteBreakdownExcel renders the breakdown as an XLSX workbook with a
// Breakdown sheet and a Branch Totals sheet. Amounts are written as floats
// so spreadsheet formulas work on them.
func WriteBreakdownExcel(w io.Writer, summary []BreakdownRow) error {
	f := excelize.NewFile()

	breakdownSheet := "Breakdown"
	if err := f.SetSheetName("Sheet1", breakdownSheet); err != nil {
		return err
	}

	f.SetCellValue(breakdownSheet, "A1", "Branch")
	f.SetCellValue(breakdownSheet, "B1", "License")
	f.SetCellValue(breakdownSheet, "C1", "Total Amount")
	for i, row := range summary {
		f.SetCellValue(breakdownSheet, "A"+fmt.Sprint(i+2), row.Branch)
		f.SetCellValue(breakdownSheet, "B"+fmt.Sprint(i+2), row.License)
		f.SetCellValue(breakdownSheet, "C"+fmt.Sprint(i+2), row.TotalAmount.InexactFloat64())
	}

	totalsSheet := "Branch Totals"
	if _, err := f.NewSheet(totalsSheet); err != nil {
		return err
	}

	f.SetCellValue(totalsSheet, "A1", "Branch")
	f.SetCellValue(totalsSheet, "B1", "Total")
	branchTotals := BuildBranchTotals(summary)
	for i, row := range branchTotals {
		f.SetCellValue(totalsSheet, "A"+fmt.Sprint(i+2), row.Branch)
		f.SetCellValue(totalsSheet, "B"+fmt.Sprint(i+2), row.TotalAmount.InexactFloat64())
	}
	f.SetCellValue(totalsSheet, "A"+fmt.Sprint(len(branchTotals)+2), "Grand Total")
	f.SetCellValue(totalsSheet, "B"+fmt.Sprint(len(branchTotals)+2), GrandTotal(summary).InexactFloat64())

	return f.Write(w)
}
