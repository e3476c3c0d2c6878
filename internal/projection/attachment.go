package projection

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"MacroTracker/internal/series"
)

// Fixed cell layout of the forecast table in the attachment: the median
// column holds rows 7 through 13 for horizons M..M+6 and row 14 for the
// next-12-months figure.
const (
	medianColumn     = "D"
	firstHorizonRow  = 7
	lastHorizonRow   = 13
	twelveMonthRow   = 14
)

// ParseAttachment extracts the horizon vector from a spreadsheet
// attachment. Source figures are percentages and are converted to
// decimal fractions. An empty or unreadable cell becomes 0.0 so the
// vector always has exactly NumHorizons entries and destination columns
// stay aligned.
func ParseAttachment(r io.Reader) ([series.NumHorizons]float64, error) {
	var horizons [series.NumHorizons]float64

	f, err := excelize.OpenReader(r)
	if err != nil {
		return horizons, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return horizons, fmt.Errorf("workbook has no sheets")
	}
	sheet := sheets[0]

	i := 0
	for row := firstHorizonRow; row <= twelveMonthRow; row++ {
		cell, err := f.GetCellValue(sheet, fmt.Sprintf("%s%d", medianColumn, row))
		if err != nil {
			return horizons, fmt.Errorf("read cell %s%d: %w", medianColumn, row, err)
		}
		horizons[i] = percentToFraction(cell)
		i++
	}
	return horizons, nil
}

func percentToFraction(cell string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil {
		return 0.0
	}
	return v / 100.0
}
