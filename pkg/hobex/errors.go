package hobex

import (
	"errors"
	"fmt"
)

// TransportError marks failures where no terminal response was received:
// timeouts, connection resets, DNS failures. Callers treat these differently
// from declines because the transaction may still complete on the terminal.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("hobex %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err stems from the network rather than the
// terminal backend.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
