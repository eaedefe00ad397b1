package bill

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ExportXLSX renders a successful extraction as a workbook with a
// "Line Items" sheet (one row per item) and a "Summary" sheet.
func ExportXLSX(resp *ExtractionResponse) ([]byte, error) {
	if resp == nil || !resp.IsSuccess || resp.Data == nil {
		return nil, fmt.Errorf("nothing to export: extraction did not succeed")
	}

	f := excelize.NewFile()
	defer f.Close()

	const items = "Line Items"
	if err := f.SetSheetName("Sheet1", items); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	headers := []string{"Page", "Page Type", "Item", "Quantity", "Rate", "Amount"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(items, cell, h)
	}

	row := 2
	var total float64
	for _, page := range resp.Data.PagewiseLineItems {
		for _, item := range page.BillItems {
			write := func(col int, v any) {
				cell, _ := excelize.CoordinatesToCellName(col, row)
				_ = f.SetCellValue(items, cell, v)
			}
			write(1, page.PageNo)
			write(2, page.PageType)
			write(3, item.Name)
			write(4, item.Quantity)
			write(5, item.Rate)
			write(6, item.Amount)
			total += item.Amount
			row++
		}
	}

	_ = f.SetColWidth(items, "A", "A", 8)  // page
	_ = f.SetColWidth(items, "B", "B", 18) // page type
	_ = f.SetColWidth(items, "C", "C", 40) // item
	_ = f.SetColWidth(items, "D", "F", 12) // numbers

	const summary = "Summary"
	if _, err := f.NewSheet(summary); err != nil {
		return nil, fmt.Errorf("creating summary sheet: %w", err)
	}
	rows := [][]any{
		{"Pages", len(resp.Data.PagewiseLineItems)},
		{"Items", resp.Data.TotalItemCount},
		{"Total Amount", total},
		{"Total Tokens", resp.TokenUsage.TotalTokens},
		{"Input Tokens", resp.TokenUsage.InputTokens},
		{"Output Tokens", resp.TokenUsage.OutputTokens},
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summary, cell, &r); err != nil {
			return nil, fmt.Errorf("writing summary: %w", err)
		}
	}
	_ = f.SetColWidth(summary, "A", "A", 16)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
