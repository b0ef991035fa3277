package settings

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// TypeMismatchError reports a token that cannot be read as the declared kind.
type TypeMismatchError struct {
	Token string
	Kind  Kind
	Err   error
}

func (e *TypeMismatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot read %q as %s: %v", e.Token, e.Kind, e.Err)
	}
	return fmt.Sprintf("cannot read %q as %s", e.Token, e.Kind)
}

func (e *TypeMismatchError) Unwrap() error { return e.Err }

// ShapeMismatchError reports a value whose shape cannot be coerced to the
// declared kind.
type ShapeMismatchError struct {
	Want Kind
	Got  KindTag
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("value of kind %s does not fit %s", e.Got, e.Want)
}

// Warning is a non-fatal problem found while reading or writing settings.
type Warning struct {
	Setting string
	Line    int // 1-based source line, 0 when not tied to a file
	Err     error
}

func (w Warning) String() string {
	var b strings.Builder
	if w.Line > 0 {
		fmt.Fprintf(&b, "line %d: ", w.Line)
	}
	if w.Setting != "" {
		b.WriteString(w.Setting)
		b.WriteString(": ")
	}
	b.WriteString(w.Err.Error())
	return b.String()
}

type Warnings []Warning

func (ws Warnings) Strings() []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.String()
	}
	return out
}

// Err combines the warnings into one error, nil when there are none.
func (ws Warnings) Err() error {
	var err error
	for _, w := range ws {
		err = multierr.Append(err, fmt.Errorf("%s", w.String()))
	}
	return err
}
