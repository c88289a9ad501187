package services

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/marketcart/api/internal/domain"
	"github.com/marketcart/api/internal/platform/pagination"
	"github.com/marketcart/api/internal/repositories"
)

var (
	// ErrValidation signals malformed or missing input, or references to unknown catalog data.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound covers absent records and failed transition guards alike. Callers recover by
	// re-reading the current state.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates the request collides with the current state.
	ErrConflict = errors.New("conflict")
	// ErrForbidden indicates the actor may not perform the operation on the target.
	ErrForbidden = errors.New("forbidden")
	// ErrUpstream wraps payment provider failures.
	ErrUpstream = errors.New("upstream failure")
	// ErrInternal wraps store failures and unexpected errors.
	ErrInternal = errors.New("internal error")
)

var classified = []error{ErrValidation, ErrNotFound, ErrConflict, ErrForbidden, ErrUpstream, ErrInternal}

func isClassified(err error) bool {
	for _, target := range classified {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// mapRepositoryError reclassifies persistence failures. Errors already carrying a service
// sentinel pass through so transaction callbacks can return them unchanged.
func mapRepositoryError(err error) error {
	if err == nil || isClassified(err) {
		return err
	}
	switch {
	case errors.Is(err, pagination.ErrInvalidPageToken):
		return fmt.Errorf("%w: %w", ErrValidation, err)
	case errors.Is(err, domain.ErrIllegalTransition), errors.Is(err, domain.ErrItemCancelled):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %w", ErrConflict, err)
		case repoErr.IsInvalid():
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}
	return fmt.Errorf("%w: %w", ErrInternal, err)
}

// notFoundAs maps a repository not-found into target, leaving other failures to mapRepositoryError.
func notFoundAs(err error, target error, format string, args ...any) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %s", target, fmt.Sprintf(format, args...))
	}
	return mapRepositoryError(err)
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
