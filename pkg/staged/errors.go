package staged

import (
	"fmt"
	"strings"

	"github.com/vango-dev/projectform/internal/errors"
)

// Reason classifies why files were rejected.
type Reason string

const (
	ReasonCapacity  Reason = "capacity"
	ReasonTooLarge  Reason = "too_large"
	ReasonNotImage  Reason = "not_image"
	ReasonDuplicate Reason = "duplicate"
)

// BatchError collects the rejections of one Add call.
// Its message is what the user is shown.
type BatchError struct {
	Errors []*errors.Error
}

// Error joins the rejection messages, one per line.
func (e *BatchError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Message
	}
	return strings.Join(msgs, "\n")
}

// Unwrap exposes the individual rejections to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Errors))
	for i, err := range e.Errors {
		errs[i] = err
	}
	return errs
}

// Rejected returns the names of the files rejected individually.
func (e *BatchError) Rejected() []string {
	var names []string
	for _, err := range e.Errors {
		if err.Field != "" {
			names = append(names, err.Field)
		}
	}
	return names
}

func capacityError(remaining, max int) *errors.Error {
	return errors.New("V101").WithMessage(fmt.Sprintf(
		"You can only upload %d more file(s). Maximum of %d files allowed.", remaining, max))
}

func tooLargeError(f *File, max int64) *errors.Error {
	return errors.New("V102").
		WithField(f.Name).
		WithMessage(fmt.Sprintf("File '%s' is too large. Maximum size is %s.", f.Name, FormatSize(max)))
}

func notImageError(f *File) *errors.Error {
	return errors.New("V103").
		WithField(f.Name).
		WithMessage(fmt.Sprintf("File '%s' is not an image.", f.Name))
}

func duplicateError(f *File) *errors.Error {
	return errors.New("V104").
		WithField(f.Name).
		WithMessage(fmt.Sprintf("File '%s' is already added.", f.Name))
}

func readError(f *File, cause error) *errors.Error {
	return errors.New("V105").
		WithField(f.Name).
		WithMessage(fmt.Sprintf("Could not read file '%s' for preview.", f.Name)).
		Wrap(cause)
}

// FormatSize renders a byte count the way limits are shown to users.
func FormatSize(n int64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%dMB", n>>20)
	case n >= 1<<10 && n%(1<<10) == 0:
		return fmt.Sprintf("%dKB", n>>10)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}
