package ui

import (
	"context"

	"github.com/desertthunder/agin/internal/notify"
)

var _ notify.Confirmer = (*Confirmer)(nil)

type confirmRequest struct {
	confirmation notify.Confirmation
	answer       chan bool
}

// Confirmer implements [notify.Confirmer] by rendering a dialog in the TUI.
//
// Confirm blocks until the user answers or ctx is done, so it must not be called from
// the bubbletea event loop itself.
type Confirmer struct {
	requests chan confirmRequest
}

func NewConfirmer() *Confirmer {
	return &Confirmer{requests: make(chan confirmRequest)}
}

func (c *Confirmer) Confirm(ctx context.Context, conf notify.Confirmation) (bool, error) {
	req := confirmRequest{confirmation: conf, answer: make(chan bool, 1)}
	select {
	case c.requests <- req:
	case <-ctx.Done():
		return false, ctx.Err()
	}

	select {
	case ok := <-req.answer:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
