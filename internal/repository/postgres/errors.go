package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"

	"github.com/ignite/lead-import/internal/service/leadimport"
)

// classify maps driver errors onto the lead import error taxonomy: data and
// constraint violations (SQLSTATE classes 22 and 23) reject one record,
// connection-level failures make the whole store unavailable.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "22", "23":
			field := pqErr.Column
			if field == "" {
				field = pqErr.Constraint
			}
			return &leadimport.ValidationError{Field: field, Message: pqErr.Message}
		case "08", "53":
			return fmt.Errorf("%s: %w: %v", op, leadimport.ErrStoreUnavailable, err)
		case "57":
			if pqErr.Code != "57014" { // query_canceled
				return fmt.Errorf("%s: %w: %v", op, leadimport.ErrStoreUnavailable, err)
			}
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.As(err, &netErr) {
		return fmt.Errorf("%s: %w: %v", op, leadimport.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
