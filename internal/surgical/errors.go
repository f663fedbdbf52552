package surgical

import (
	"errors"
	"fmt"
)

var (
	ErrCaseNotFound        = errors.New("case not found")
	ErrCaseIDMismatch      = errors.New("case id cannot be changed")
	ErrInvalidCase         = errors.New("invalid case")
	ErrPatientNameRequired = errors.New("patient name is required")
	ErrInsuranceRequired   = errors.New("insurance provider is required")
	ErrInvalidSettings     = errors.New("invalid settings")
	ErrUnknownToken        = errors.New("unknown template token")
	ErrUnknownList         = errors.New("unknown reference list")
	ErrDuplicateItem       = errors.New("item already present")
	ErrItemNotFound        = errors.New("item not found")
	ErrEmptyItem           = errors.New("item is empty")
	ErrSummaryInProgress   = errors.New("summary already being generated for this case")
)

func invalidCase(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidCase, fmt.Sprintf(format, args...))
}
