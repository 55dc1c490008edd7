package audit

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"revia/internal/model"
)

// FakeLogSource implements LogSource for testing.
type FakeLogSource struct {
	entries []model.NotificationLog
	err     error
}

func (f *FakeLogSource) ListNotificationLogs(ctx context.Context, userID int64, limit int) ([]model.NotificationLog, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

func TestExport(t *testing.T) {
	sentAt := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	source := &FakeLogSource{entries: []model.NotificationLog{
		{
			ID:     "log-1",
			UserID: 42,
			Type:   model.TypePushNotification,
			SentAt: sentAt,
			Metadata: map[string]string{
				"title": "Time to train",
			},
		},
	}}

	var buf bytes.Buffer
	require.NoError(t, NewExporter(source).Export(context.Background(), &buf, 0, 100))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Notification log")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, []string{"ID", "User", "Type", "Sent at", "Metadata"}, rows[0])
	assert.Equal(t, "log-1", rows[1][0])
	assert.Equal(t, "42", rows[1][1])
	assert.Equal(t, "push_notification", rows[1][2])
	assert.Equal(t, sentAt.Format(time.RFC3339), rows[1][3])
	assert.Contains(t, rows[1][4], "Time to train")
}

func TestExportSourceError(t *testing.T) {
	source := &FakeLogSource{err: errors.New("database error")}

	var buf bytes.Buffer
	err := NewExporter(source).Export(context.Background(), &buf, 0, 100)
	assert.Error(t, err)
	assert.Zero(t, buf.Len())
}
