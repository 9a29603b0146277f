package executor

import (
	"github.com/xerolinux/xero-toolkit/internal/models"
)

// DefaultEscalation is the program privileged steps run through.
const DefaultEscalation = "pkexec"

// HelperSource answers which AUR helper to use.
type HelperSource interface {
	PreferredHelper() (string, bool)
	DetectHelper() (string, bool)
}

// Resolver maps a step to a concrete program and argument vector.
type Resolver struct {
	escalation string
	helpers    HelperSource
}

func NewResolver(escalation string, helpers HelperSource) *Resolver {
	if escalation == "" {
		escalation = DefaultEscalation
	}
	return &Resolver{escalation: escalation, helpers: helpers}
}

func (r *Resolver) Escalation() string {
	return r.escalation
}

// Resolve is called once per step, right before spawning, so helper
// availability is read fresh every time.
func (r *Resolver) Resolve(step models.CommandStep) (string, []string, error) {
	switch step.Type {
	case models.CommandPrivileged:
		args := make([]string, 0, len(step.Args)+1)
		args = append(args, step.Command)
		args = append(args, step.Args...)
		return r.escalation, args, nil

	case models.CommandAur:
		helper, ok := r.helper()
		if !ok {
			return "", nil, &ResolutionError{StepName: step.Name, OriginalError: ErrHelperNotFound}
		}
		args := make([]string, 0, len(step.Args)+2)
		args = append(args, "--sudo", r.escalation)
		args = append(args, step.Args...)
		return helper, args, nil

	default:
		return step.Command, append([]string(nil), step.Args...), nil
	}
}

func (r *Resolver) helper() (string, bool) {
	if r.helpers == nil {
		return "", false
	}
	if name, ok := r.helpers.PreferredHelper(); ok {
		return name, true
	}
	return r.helpers.DetectHelper()
}
