package roster

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/classtrack/backend/internal/storage"
)

// ExportHeader is the first CSV row of every export.
var ExportHeader = []string{"username", "email", "mobile", "first_name", "last_name", "date_of_birth", "address"}

// ExportFilterAllowed reports whether name may be used as the export filter
// column.
func ExportFilterAllowed(name string) bool {
	for _, col := range ExportHeader[:5] {
		if col == name {
			return true
		}
	}
	return false
}

// WriteCSV streams matching students into w one row at a time. The writer
// is flushed per row, so a sink that blocks pauses the database cursor and
// memory stays bounded regardless of result size.
func WriteCSV(ctx context.Context, store storage.Storage, filterBy, filterValue string, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return err
	}

	err := store.ForEachExportRow(ctx, filterBy, filterValue, func(row storage.ExportRow) error {
		record := []string{
			row.Username,
			row.Email,
			row.Mobile,
			row.FirstName,
			row.LastName,
			deref(row.DateOfBirth),
			deref(row.Address),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
		cw.Flush()
		return cw.Error()
	})
	if err != nil {
		return err
	}

	cw.Flush()
	return cw.Error()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
