package db

import (
	"strings"

	"github.com/recipebox/recipebox/errors"
)

// ErrDatabaseClosed is returned when the store is used after shutdown closed
// the connection.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed reports whether err means the connection is closed. The
// sql package returns its own unexported error, so the message is matched too.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}
	return strings.Contains(err.Error(), "database is closed")
}
