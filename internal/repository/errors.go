package repository

import (
	"errors"
	"fmt"

	"github.com/Domenick1991/ticketbari/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrConflict is returned when a conditional write found the row in a
// different state than the caller expected. Callers re-read the row rather
// than retrying the write.
var ErrConflict = errors.New("conflict")

const uniqueViolation = "23505"

// duplicateAs turns a unique violation into a validation error naming what
// was duplicated. Other errors pass through.
func duplicateAs(err error, what string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s already used", domain.ErrValidation, what)
	}
	return err
}
