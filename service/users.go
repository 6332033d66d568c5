package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/AnTengye/solarflow/model"
)

// Login sheet layout: one header row, then username, password, role.
const (
	loginHeaderRows = 1
	loginUserCol    = 0
	loginPassCol    = 1
	loginRoleCol    = 2
)

// UserDirectory authenticates against the credential rows of the Login tab.
// Passwords are compared as stored in the sheet.
type UserDirectory struct {
	rows  RowSource
	sheet string
}

func NewUserDirectory(rows RowSource) *UserDirectory {
	return &UserDirectory{rows: rows, sheet: model.SheetLogin}
}

// Authenticate returns the session of the first row whose username (case
// insensitive) and password match. A blank role reads as a regular user.
func (d *UserDirectory) Authenticate(ctx context.Context, username, password string) (*model.Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	rows, err := d.rows.FetchRows(ctx, d.sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	for i, row := range rows {
		if i < loginHeaderRows {
			continue
		}
		name := strings.TrimSpace(CellString(cellAt(row, loginUserCol)))
		if name == "" || !strings.EqualFold(name, username) {
			continue
		}
		if strings.TrimSpace(CellString(cellAt(row, loginPassCol))) != password {
			continue
		}

		role := strings.ToLower(strings.TrimSpace(CellString(cellAt(row, loginRoleCol))))
		if role == "" {
			role = model.RoleUser
		}
		return &model.Session{Username: name, Role: role}, nil
	}
	return nil, ErrInvalidCredentials
}
