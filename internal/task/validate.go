package task

import (
	"github.com/orchid-dev/orchid/internal/errors"
)

// Validate checks a submitted definition before it is persisted. A failed
// validation is surfaced synchronously; nothing about the task is recorded.
func Validate(d *Definition) error {
	if d == nil {
		return errors.NewValidationError("definition is nil").
			WithCause(errors.ErrInvalidTaskDefinition)
	}
	if !d.Type.Valid() {
		return errors.NewValidationError("unknown task type").
			WithField("type").WithValue(string(d.Type)).
			WithCause(errors.ErrInvalidTaskDefinition)
	}
	if len(d.Payload) == 0 {
		return errors.NewValidationError("payload is required").
			WithField("payload").
			WithCause(errors.ErrInvalidTaskDefinition)
	}
	if d.Workflow != nil && d.Workflow.Name == "" {
		return errors.NewValidationError("workflow name must not be empty").
			WithField("workflow.name").
			WithCause(errors.ErrInvalidTaskDefinition)
	}

	switch d.Type {
	case TypeErrorRecreation:
		p, err := d.DecodeRecreation()
		if err != nil {
			return errors.NewValidationError("malformed payload").
				WithField("payload").
				WithCause(errors.Join(errors.ErrInvalidTaskDefinition, err))
		}
		if p.ID == "" || p.Code == "" {
			return errors.NewValidationError("error_recreation payload requires id and code").
				WithField("payload").
				WithCause(errors.ErrInvalidTaskDefinition)
		}
	case TypeSolutionValidation:
		p, err := d.DecodeValidation()
		if err != nil {
			return errors.NewValidationError("malformed payload").
				WithField("payload").
				WithCause(errors.Join(errors.ErrInvalidTaskDefinition, err))
		}
		if p.ID == "" || p.Solution == "" {
			return errors.NewValidationError("solution_validation payload requires id and solution").
				WithField("payload").
				WithCause(errors.ErrInvalidTaskDefinition)
		}
	case TypeTesting:
		p, err := d.DecodeTesting()
		if err != nil {
			return errors.NewValidationError("malformed payload").
				WithField("payload").
				WithCause(errors.Join(errors.ErrInvalidTaskDefinition, err))
		}
		if p.ID == "" || p.SuiteName == "" {
			return errors.NewValidationError("testing payload requires id and suiteName").
				WithField("payload").
				WithCause(errors.ErrInvalidTaskDefinition)
		}
	}
	return nil
}
