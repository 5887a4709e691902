package flows

import (
	"strings"
	"unicode/utf8"

	"github.com/m3rciful/penny/core/state"
	"github.com/m3rciful/penny/internal/units"
)

func trim(s string) string { return strings.TrimSpace(s) }

// minText requires at least n characters after trimming. Commands are
// rejected so a mistyped /command is not stored as a value.
func minText(field string, n int, expected string) func(string) (string, error) {
	return func(s string) (string, error) {
		s = trim(s)
		if strings.HasPrefix(s, "/") || utf8.RuneCountInString(s) < n {
			return "", state.Invalid(field, expected)
		}
		return s, nil
	}
}

func ticker(s string) (string, error) {
	s = strings.ToUpper(trim(s))
	n := utf8.RuneCountInString(s)
	if n < 2 || n > 5 || strings.ContainsAny(s, " \t/") {
		return "", state.Invalid("ticker", "")
	}
	return s, nil
}

func address(field string) func(string) (string, error) {
	return func(s string) (string, error) {
		s = trim(s)
		if !units.IsAddress(s) {
			return "", state.Invalid(field, "")
		}
		return s, nil
	}
}

func positiveDecimal(field string) func(string) (string, error) {
	return func(s string) (string, error) {
		v, err := units.ParsePositive(s)
		if err != nil {
			return "", state.Invalid(field, "")
		}
		return v, nil
	}
}

func nonNegativeInteger(field string) func(string) (string, error) {
	return func(s string) (string, error) {
		s = trim(s)
		if !units.IsNonNegativeInteger(s) {
			return "", state.Invalid(field, "")
		}
		if _, err := units.ToBaseUnits(s, units.DefaultDecimals); err != nil {
			return "", state.Invalid(field, "")
		}
		if t := strings.TrimLeft(s, "0"); t != "" {
			s = t
		} else {
			s = "0"
		}
		return s, nil
	}
}

// textRule binds a string validator to a text input and a setter.
func textRule[T any](check func(string) (string, error), set func(*T, string)) state.Rule[T] {
	return state.Rule[T]{
		On: state.OnText(),
		Apply: func(f *T, in state.Input) error {
			v, err := check(in.Text)
			if err != nil {
				return err
			}
			set(f, v)
			return nil
		},
	}
}
