package template

import (
	"errors"
	"fmt"
	"strings"

	"github.com/osteele/liquid"
	"github.com/osteele/liquid/expressions"
)

var (
	ErrUndefinedFilter      = errors.New("undefined filter")
	ErrUnexpectedExpression = errors.New("unexpected expression after variable")
)

// CheckOutputTag reports why the output tag {{ expression }} cannot be used in
// a control value: a Liquid syntax error, text left over after the variable
// path, or a filter the engine does not register.
func CheckOutputTag(expression string) error {
	tpl, err := parseEngine.ParseString("{{" + expression + "}}")
	if err != nil {
		return err
	}

	if path, rest := ParseVariable(expression); path != "" && rest != "" && !strings.HasPrefix(rest, "[") {
		return fmt.Errorf("%w: %q", ErrUnexpectedExpression, rest)
	}

	// Filters are resolved when the tag is evaluated, not when it is parsed.
	if _, renderErr := tpl.RenderString(liquid.Bindings{}); renderErr != nil {
		if name, ok := undefinedFilter(renderErr); ok {
			return fmt.Errorf("%w: %s", ErrUndefinedFilter, name)
		}
	}

	return nil
}

type causer interface {
	Cause() error
}

func undefinedFilter(err error) (string, bool) {
	for err != nil {
		var undefined expressions.UndefinedFilter
		if errors.As(err, &undefined) {
			return string(undefined), true
		}

		c, ok := err.(causer)
		if !ok {
			return "", false
		}

		err = c.Cause()
	}

	return "", false
}
