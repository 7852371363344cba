package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/lib/pq"
	"github.com/vncsmyrnk/servervote/internal/core/domain"
)

const (
	codeUniqueViolation     = pq.ErrorCode("23505")
	codeForeignKeyViolation = pq.ErrorCode("23503")
	codeSerializationFailed = pq.ErrorCode("40001")
	codeDeadlockDetected    = pq.ErrorCode("40P01")
	codeLockNotAvailable    = pq.ErrorCode("55P03")
	codeAdminShutdown       = pq.ErrorCode("57P01")
	classConnection         = pq.ErrorClass("08")
	classInsufficientRes    = pq.ErrorClass("53")
)

// classify maps driver failures onto domain errors. Failures that are safe
// to retry are wrapped with domain.ErrTransient.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == codeUniqueViolation:
			return fmt.Errorf("failed to %s: %w", op, domain.ErrDuplicateTarget)
		case pqErr.Code == codeForeignKeyViolation:
			return fmt.Errorf("failed to %s: %w", op, domain.ErrTargetNotFound)
		case pqErr.Code == codeSerializationFailed,
			pqErr.Code == codeDeadlockDetected,
			pqErr.Code == codeLockNotAvailable,
			pqErr.Code == codeAdminShutdown,
			pqErr.Code.Class() == classConnection,
			pqErr.Code.Class() == classInsufficientRes:
			return fmt.Errorf("failed to %s: %w: %w", op, domain.ErrTransient, err)
		}
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.ErrUnexpectedEOF) || errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("failed to %s: %w: %w", op, domain.ErrTransient, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
