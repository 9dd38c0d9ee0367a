// Package notify tells submitters about the final outcome of their form
// responses.
package notify

import (
	"context"
	"errors"

	"github.com/dukex/reviewflow/pkg/models"
)

// Notification describes a terminal transition of a form response.
type Notification struct {
	FormResponseID string
	FlowID         string
	FlowName       string
	StepID         string
	StepName       string
	Status         models.FormResponseStatus
	Reason         string
	ReviewerID     string
	Recipients     []string // user IDs
}

// Notifier delivers a notification. Callers treat failures as non-fatal.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, notification Notification) error

func (f NotifierFunc) Notify(ctx context.Context, notification Notification) error {
	return f(ctx, notification)
}

// Nop discards every notification.
var Nop Notifier = NotifierFunc(func(context.Context, Notification) error { return nil })

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, notification Notification) error {
	var errs []error

	for _, notifier := range m {
		err := notifier.Notify(ctx, notification)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
