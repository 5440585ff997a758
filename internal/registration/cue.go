package registration

import (
	"context"
	"errors"
	"io"

	"smec-portal/internal/models"
)

// Cue is a fire-and-forget signal played when a purchase starts.
type Cue interface {
	Play(ctx context.Context, event models.Event) error
}

// BellCue rings the terminal bell.
type BellCue struct {
	W io.Writer
}

func (c BellCue) Play(ctx context.Context, event models.Event) error {
	_, err := io.WriteString(c.W, "\a")
	return err
}

type MultiCue []Cue

func (m MultiCue) Play(ctx context.Context, event models.Event) error {
	var errs []error
	for _, c := range m {
		if c == nil {
			continue
		}
		errs = append(errs, c.Play(ctx, event))
	}
	return errors.Join(errs...)
}
