// Package roster holds the bulk student import/export pipeline, kept out of
// the HTTP handlers so it can run against any reader/writer.
package roster

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log"

	"github.com/classtrack/backend/internal/apperr"
	"github.com/classtrack/backend/internal/models"
	"github.com/classtrack/backend/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

// ImportRow is one parsed CSV line, keyed by the header row.
type ImportRow struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Mobile      string `json:"mobile"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"`
	Address     string `json:"address"`
}

type CreatedStudent struct {
	UserID    string `json:"user_id"`
	StudentID string `json:"student_id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
}

type RejectedRow struct {
	Student ImportRow `json:"student"`
	Reason  string    `json:"reason"`
}

// ImportResult accounts for every input row exactly once: each row is
// either in Created or in Rejected.
type ImportResult struct {
	Created  []CreatedStudent `json:"newStudents"`
	Rejected []RejectedRow    `json:"duplicateUsers"`
}

type Importer struct {
	store      storage.Storage
	bcryptCost int
}

func NewImporter(store storage.Storage, bcryptCost int) *Importer {
	return &Importer{store: store, bcryptCost: bcryptCost}
}

// Import parses the CSV and processes rows independently: a rejected row
// never aborts the batch. The student role id is resolved once up front; its
// absence is a configuration fault and nothing is imported.
func (i *Importer) Import(ctx context.Context, r io.Reader) (*ImportResult, error) {
	rows, err := parseRows(r)
	if err != nil {
		return nil, apperr.File("Invalid CSV file")
	}

	role, err := i.store.GetRoleByName(ctx, models.RoleStudent)
	if err != nil {
		if errors.Is(err, storage.ErrRoleNotFound) {
			return nil, apperr.Configuration("Student role not found in database")
		}
		return nil, apperr.Database("student role lookup", err)
	}

	result := &ImportResult{
		Created:  []CreatedStudent{},
		Rejected: []RejectedRow{},
	}

	for _, row := range rows {
		if row.Username == "" || row.Email == "" || row.Password == "" ||
			row.Mobile == "" || row.FirstName == "" || row.LastName == "" {
			result.Rejected = append(result.Rejected, RejectedRow{Student: row, Reason: "Missing required fields"})
			continue
		}

		exists, err := i.store.UserExists(ctx, row.Username, row.Email, row.Mobile, "")
		if err != nil {
			result.Rejected = append(result.Rejected, RejectedRow{Student: row, Reason: "Database error"})
			log.Printf("import: uniqueness check for %q: %v", row.Username, err)
			continue
		}
		if exists {
			result.Rejected = append(result.Rejected, RejectedRow{Student: row, Reason: "Duplicate username, email, or mobile"})
			continue
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(row.Password), i.bcryptCost)
		if err != nil {
			result.Rejected = append(result.Rejected, RejectedRow{Student: row, Reason: "Password hashing failed"})
			continue
		}

		user := &models.User{
			Username: row.Username,
			Email:    row.Email,
			Mobile:   row.Mobile,
			Password: string(hash),
			Role:     models.RoleStudent,
			IsActive: true,
		}
		student := &models.Student{
			FirstName: row.FirstName,
			LastName:  row.LastName,
		}
		if row.DateOfBirth != "" {
			dob := row.DateOfBirth
			student.DateOfBirth = &dob
		}
		if row.Address != "" {
			addr := row.Address
			student.Address = &addr
		}

		if err := i.store.CreateStudentAccount(ctx, user, role.ID, student); err != nil {
			reason := "Database error"
			if errors.Is(err, storage.ErrDuplicate) {
				reason = "Duplicate username, email, or mobile"
			} else {
				log.Printf("import: insert for %q: %v", row.Username, err)
			}
			result.Rejected = append(result.Rejected, RejectedRow{Student: row, Reason: reason})
			continue
		}

		result.Created = append(result.Created, CreatedStudent{
			UserID:    user.ID,
			StudentID: student.ID,
			Username:  user.Username,
			Email:     user.Email,
		})
	}

	return result, nil
}

var columnNames = map[string]bool{
	"username":      true,
	"email":         true,
	"password":      true,
	"mobile":        true,
	"first_name":    true,
	"last_name":     true,
	"date_of_birth": true,
	"address":       true,
}

func parseRows(r io.Reader) ([]ImportRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, err
	}

	// Columns are located by header name so field order in the upload does
	// not matter.
	index := map[string]int{}
	for i, name := range header {
		if columnNames[name] {
			index[name] = i
		}
	}

	var rows []ImportRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		field := func(name string) string {
			i, ok := index[name]
			if !ok || i >= len(record) {
				return ""
			}
			return record[i]
		}
		rows = append(rows, ImportRow{
			Username:    field("username"),
			Email:       field("email"),
			Password:    field("password"),
			Mobile:      field("mobile"),
			FirstName:   field("first_name"),
			LastName:    field("last_name"),
			DateOfBirth: field("date_of_birth"),
			Address:     field("address"),
		})
	}
	return rows, nil
}
