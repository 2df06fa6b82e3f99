// Package export writes the ranking board to spreadsheet files.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"iq-quiz-client/internal/display"
	"iq-quiz-client/internal/domain"
)

const (
	rankingSheet = "Ranking"
	markerSheet  = "Percentiles"
)

var rankingHeaders = []string{"Rank", "Nickname", "Estimated IQ", "Level", "Correct", "Time", "Score"}

// RankingXLSX writes the board as an .xlsx workbook: one sheet with the top
// entries and, when present, one with the percentile markers.
func RankingXLSX(w io.Writer, r domain.Ranking) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(rankingSheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	// the default sheet is replaced by ours
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("drop default sheet: %w", err)
	}

	if err := writeRows(f, rankingSheet, rankingHeaders, len(r.Entries), func(i int) []interface{} {
		return entryRow(r.Entries[i])
	}); err != nil {
		return err
	}
	if err := f.SetCellValue(rankingSheet, fmt.Sprintf("A%d", len(r.Entries)+3), "Participants"); err != nil {
		return err
	}
	if err := f.SetCellValue(rankingSheet, fmt.Sprintf("B%d", len(r.Entries)+3), r.TotalParticipants); err != nil {
		return err
	}

	if len(r.Percentiles) > 0 {
		if _, err := f.NewSheet(markerSheet); err != nil {
			return fmt.Errorf("create sheet: %w", err)
		}
		headers := append([]string{"Percentile"}, rankingHeaders...)
		if err := writeRows(f, markerSheet, headers, len(r.Percentiles), func(i int) []interface{} {
			m := r.Percentiles[i]
			return append([]interface{}{fmt.Sprintf("top %d%%", m.Percentile)}, entryRow(m.Entry)...)
		}); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, headers []string, n int, row func(int) []interface{}) error {
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	for r := 0; r < n; r++ {
		for c, v := range row(r) {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func entryRow(e domain.RankingEntry) []interface{} {
	return []interface{}{
		e.Rank,
		e.Nickname,
		e.EstimatedIQ,
		display.IQLabel(e.EstimatedIQ),
		e.CorrectCount,
		display.FormatClock(e.TimeSeconds),
		e.Score,
	}
}
