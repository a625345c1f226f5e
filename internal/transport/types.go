package transport

import (
	"context"
	"errors"
	"fmt"
)

// Sender delivers a plain text message to one notification channel.
type Sender interface {
	Name() string
	SendText(ctx context.Context, text string) error
}

// Multi fans a message out to every sender in order. All senders are tried;
// failures are joined.
type Multi []Sender

// NewMulti returns the single sender unwrapped, or a Multi for several.
// It returns nil when senders is empty.
func NewMulti(senders ...Sender) Sender {
	out := make(Multi, 0, len(senders))
	for _, s := range senders {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	default:
		return out
	}
}

func (m Multi) Name() string {
	name := "multi"
	for i, s := range m {
		if i == 0 {
			name += ":"
		} else {
			name += ","
		}
		name += s.Name()
	}
	return name
}

func (m Multi) SendText(ctx context.Context, text string) error {
	var errs []error
	for _, s := range m {
		if err := s.SendText(ctx, text); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
