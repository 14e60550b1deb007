package importer

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	StoresSheet = "Stores"
	UsersSheet  = "Users"
)

// StoreRow is one line of the Stores sheet.
type StoreRow struct {
	Line    int
	Name    string
	Address string
	Phone   string
}

// UserRow is one line of the Users sheet. Roles and Stores are comma
// separated in the workbook.
type UserRow struct {
	Line        int
	Username    string
	Email       string
	Password    string
	FirstName   string
	LastName    string
	PhoneNumber string
	Roles       []string
	Stores      []string
}

// Workbook holds the parsed rows of both sheets. Either sheet may be absent.
type Workbook struct {
	Stores []StoreRow
	Users  []UserRow
}

// ReadWorkbook parses an XLSX document. Columns are matched by header name,
// so their order does not matter.
func ReadWorkbook(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open XLSX file: %w", err)
	}
	defer f.Close()

	wb := &Workbook{}

	storeRows, err := readSheet(f, StoresSheet)
	if err != nil {
		return nil, err
	}
	for _, row := range storeRows {
		if row.get("name") == "" {
			continue
		}
		wb.Stores = append(wb.Stores, StoreRow{
			Line:    row.line,
			Name:    row.get("name"),
			Address: row.get("address"),
			Phone:   row.get("phone"),
		})
	}

	userRows, err := readSheet(f, UsersSheet)
	if err != nil {
		return nil, err
	}
	for _, row := range userRows {
		if row.get("username") == "" {
			continue
		}
		wb.Users = append(wb.Users, UserRow{
			Line:        row.line,
			Username:    row.get("username"),
			Email:       row.get("email"),
			Password:    row.get("password"),
			FirstName:   row.get("first name"),
			LastName:    row.get("last name"),
			PhoneNumber: row.get("phone"),
			Roles:       splitList(strings.ToLower(row.get("roles"))),
			Stores:      splitList(row.get("stores")),
		})
	}

	if len(wb.Stores) == 0 && len(wb.Users) == 0 {
		return nil, fmt.Errorf("no %q or %q rows found in XLSX file", StoresSheet, UsersSheet)
	}
	return wb, nil
}

type sheetRow struct {
	line   int
	values map[string]string
}

func (r sheetRow) get(column string) string {
	return r.values[column]
}

func readSheet(f *excelize.File, sheet string) ([]sheetRow, error) {
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, nil
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s rows: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = normalizeHeader(h)
	}

	result := make([]sheetRow, 0, len(rows)-1)
	for i, cells := range rows[1:] {
		values := make(map[string]string, len(headers))
		for col, cell := range cells {
			if col < len(headers) && headers[col] != "" {
				values[headers[col]] = strings.TrimSpace(cell)
			}
		}
		// line numbers are 1-based and include the header
		result = append(result, sheetRow{line: i + 2, values: values})
	}
	return result, nil
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, "_", " ")
	switch h {
	case "phone number", "phone num":
		return "phone"
	case "first", "firstname":
		return "first name"
	case "last", "lastname":
		return "last name"
	}
	return h
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
