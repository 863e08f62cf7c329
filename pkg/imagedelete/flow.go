// Package imagedelete removes an already persisted project image.
//
// Each delete control on the page gets a Flow:
//
//	Idle -> Confirming -> Requesting -> Removed
//	                   \             \-> Failed -> Confirming ...
//	                    \-> Idle (declined)
//
// Removed is terminal. Activations while a prompt or request is pending
// are ignored, and a failed request is never retried automatically.
package imagedelete

import (
	"context"
	"log/slog"

	"github.com/vango-dev/projectform/internal/errors"
	"github.com/vango-dev/projectform/pkg/future"
)

// ConfirmMessage is the prompt shown before deleting.
const ConfirmMessage = "Are you sure you want to remove this image? This action cannot be undone."

// State is the state of a Flow.
type State int

const (
	Idle State = iota
	Confirming
	Requesting
	Removed
	Failed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Confirming:
		return "confirming"
	case Requesting:
		return "requesting"
	case Removed:
		return "removed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Control is the delete button of one persisted image.
type Control interface {
	// ImageID returns the id of the image the control deletes.
	ImageID() string

	// SetBusy disables the control and shows a spinner, or restores it.
	SetBusy(busy bool)

	// Detach removes the image card from the page.
	Detach()
}

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(message string) *future.Future[bool]
}

// Alerter shows a blocking, user-visible message.
type Alerter interface {
	Alert(message string)
}

// Deleter performs the delete request. It returns nil when the server
// confirmed the deletion, a T202 error when the server declined it and a
// T201 error for anything else.
type Deleter interface {
	Delete(ctx context.Context, imageID string) error
}

// Outcome names how a Flow activation ended.
type Outcome string

const (
	OutcomeDeclined Outcome = "declined"
	OutcomeRemoved  Outcome = "removed"
	OutcomeRejected Outcome = "rejected"
	OutcomeError    Outcome = "error"
)

// Observer receives flow outcomes, e.g. for metrics.
type Observer interface {
	DeleteFinished(outcome Outcome)
}

// Config configures a Flow.
type Config struct {
	Control   Control   // required
	Confirmer Confirmer // required
	Deleter   Deleter   // required
	Alerter   Alerter   // required

	// Loop is where prompt and request completions resume.
	// Default: future.Inline.
	Loop future.Dispatcher

	// Context is passed to the Deleter. Default: context.Background().
	Context context.Context

	Observer Observer
	Logger   *slog.Logger
}

// Flow drives the deletion of one persisted image.
// All methods must be called on the Loop.
type Flow struct {
	control   Control
	confirmer Confirmer
	deleter   Deleter
	alerter   Alerter
	loop      future.Dispatcher
	ctx       context.Context
	observer  Observer
	logger    *slog.Logger

	state State
}

// NewFlow creates a Flow in the Idle state.
// It panics if a required dependency is missing.
func NewFlow(cfg Config) *Flow {
	if cfg.Control == nil || cfg.Confirmer == nil || cfg.Deleter == nil || cfg.Alerter == nil {
		panic("imagedelete: Config requires Control, Confirmer, Deleter and Alerter")
	}
	if cfg.Loop == nil {
		cfg.Loop = future.Inline
	}
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Flow{
		control:   cfg.Control,
		confirmer: cfg.Confirmer,
		deleter:   cfg.Deleter,
		alerter:   cfg.Alerter,
		loop:      cfg.Loop,
		ctx:       cfg.Context,
		observer:  cfg.Observer,
		logger:    cfg.Logger.With("component", "imagedelete", "image_id", cfg.Control.ImageID()),
	}
}

// State returns the current state.
func (f *Flow) State() State {
	return f.state
}

// Activate handles a click on the control.
func (f *Flow) Activate() {
	if f.state != Idle && f.state != Failed {
		f.logger.Debug("activation ignored", "state", f.state)
		return
	}
	f.state = Confirming
	f.confirmer.Confirm(ConfirmMessage).OnCompleteOn(f.loop, f.confirmed)
}

func (f *Flow) confirmed(ok bool, err error) {
	if f.state != Confirming {
		return
	}
	if err != nil || !ok {
		f.state = Idle
		f.finish(OutcomeDeclined)
		return
	}

	f.state = Requesting
	f.control.SetBusy(true)

	id := f.control.ImageID()
	future.Go(func() (struct{}, error) {
		return struct{}{}, f.deleter.Delete(f.ctx, id)
	}).OnCompleteOn(f.loop, f.requested)
}

func (f *Flow) requested(_ struct{}, err error) {
	if f.state != Requesting {
		return
	}
	if err == nil {
		f.state = Removed
		f.control.Detach()
		f.logger.Info("image deleted")
		f.finish(OutcomeRemoved)
		return
	}

	f.state = Failed
	f.control.SetBusy(false)

	failure := errors.FromError(err, "T201")
	outcome := OutcomeError
	if failure.Code == "T202" {
		outcome = OutcomeRejected
	}
	f.logger.Warn("image delete failed", "code", failure.Code, "error", err)
	f.alerter.Alert(userMessage(failure))
	f.finish(outcome)
}

func (f *Flow) finish(outcome Outcome) {
	if f.observer != nil {
		f.observer.DeleteFinished(outcome)
	}
}

// userMessage returns the registered message for the failure's code, so
// detail added for logs never reaches the alert.
func userMessage(err *errors.Error) string {
	if err.Code == "T202" {
		return errors.New("T202").Message
	}
	return errors.New("T201").Message
}
