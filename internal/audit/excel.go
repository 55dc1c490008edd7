// Package audit exports the notification log for offline review.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"revia/internal/model"
)

// LogSource reads notification log entries for export.
type LogSource interface {
	ListNotificationLogs(ctx context.Context, userID int64, limit int) ([]model.NotificationLog, error)
}

// Exporter writes notification logs to an Excel workbook.
type Exporter struct {
	source LogSource
}

// NewExporter creates an exporter over the given log source.
func NewExporter(source LogSource) *Exporter {
	return &Exporter{source: source}
}

// Export writes up to limit entries (all users when userID is 0) as a
// single-sheet workbook.
func (e *Exporter) Export(ctx context.Context, w io.Writer, userID int64, limit int) error {
	entries, err := e.source.ListNotificationLogs(ctx, userID, limit)
	if err != nil {
		return fmt.Errorf("load notification logs: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Notification log"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"ID", "User", "Type", "Sent at", "Metadata"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}

	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, 1)
		endCell, _ := excelize.CoordinatesToCellName(len(headers), 1)
		_ = f.SetCellStyle(sheet, startCell, endCell, style)
	}

	for row, entry := range entries {
		values := []any{
			entry.ID,
			entry.UserID,
			string(entry.Type),
			entry.SentAt.Format(time.RFC3339),
			encodeMetadata(entry.Metadata),
		}
		for col, val := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, val); err != nil {
				return err
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func encodeMetadata(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	data, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(data)
}
