// Package services holds the business rules behind the HTTP handlers. Every
// method bounds its store calls with the configured query timeout and returns
// errors from the apperror taxonomy.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"chatrelay/server/internal/apperror"
	"chatrelay/server/internal/store"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const DefaultQueryTimeout = 5 * time.Second

type base struct {
	store   store.Store
	log     logrus.FieldLogger
	timeout time.Duration
}

func newBase(st store.Store, log logrus.FieldLogger, timeout time.Duration) base {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return base{store: st, log: log, timeout: timeout}
}

func (b base) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.timeout)
}

// fail converts a store error that has no domain meaning for the caller.
// Timeouts and cancellations keep their own kind, everything else is internal.
func (b base) fail(op string, err error) error {
	var ae *apperror.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		b.log.WithError(err).WithField("op", op).Warn("store call timed out")
		return apperror.Timeout(err)
	}
	b.log.WithError(err).WithField("op", op).Error("store call failed")
	return apperror.Internal(err)
}

// canonicalID parses id in any form uuid.Parse accepts (upper case, braces,
// urn prefix, no hyphens) and returns the lower-case hyphenated form used as
// the identity everywhere else.
func canonicalID(id string) (string, bool) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}

// sameID keeps ids that do not parse, such as test fixtures, as they are.
func sameID(id string) string {
	if canonical, ok := canonicalID(id); ok {
		return canonical
	}
	return id
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrChatNotFound) || errors.Is(err, store.ErrUserNotFound)
}
