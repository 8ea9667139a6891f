package store

import (
	"database/sql"
	"errors"
)

// scanNotFound translates sql.ErrNoRows into the package's ErrNotFound.
func scanNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
