package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

var (
	errEmpty    = errors.New("empty price")
	errNegative = errors.New("negative price")
)

// ParseError reports a raw price that could not be turned into an amount.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse price %q: %v", e.Raw, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// groupSeparators are removed anywhere in the input.
var groupSeparators = strings.NewReplacer(
	",", "",
	" ", "",
	"\u00a0", "",
	"\u2009", "",
	"\u202f", "",
)

// Normalize converts a raw upstream price into a canonical non-negative amount.
// Strings may carry one leading currency symbol and grouping separators.
func Normalize(raw any) (decimal.Decimal, error) {
	switch v := raw.(type) {
	case decimal.Decimal:
		return checkAmount(v.String(), v)
	case *decimal.Decimal:
		if v == nil {
			return decimal.Decimal{}, &ParseError{Raw: "<nil>", Err: errEmpty}
		}
		return checkAmount(v.String(), *v)
	case int:
		return checkAmount(fmt.Sprint(v), decimal.NewFromInt(int64(v)))
	case int64:
		return checkAmount(fmt.Sprint(v), decimal.NewFromInt(v))
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Decimal{}, &ParseError{Raw: fmt.Sprint(v), Err: errors.New("not a finite number")}
		}
		return checkAmount(fmt.Sprint(v), decimal.NewFromFloat(v))
	case json.Number:
		return parseString(v.String())
	case string:
		return parseString(v)
	case nil:
		return decimal.Decimal{}, &ParseError{Raw: "<nil>", Err: errEmpty}
	default:
		return decimal.Decimal{}, &ParseError{Raw: fmt.Sprint(v), Err: fmt.Errorf("unsupported type %T", v)}
	}
}

func parseString(raw string) (decimal.Decimal, error) {
	text := strings.TrimSpace(raw)
	if r, size := utf8.DecodeRuneInString(text); size > 0 && unicode.Is(unicode.Sc, r) {
		text = strings.TrimSpace(text[size:])
	}
	text = groupSeparators.Replace(text)
	if text == "" {
		return decimal.Decimal{}, &ParseError{Raw: raw, Err: errEmpty}
	}

	amount, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Decimal{}, &ParseError{Raw: raw, Err: err}
	}
	return checkAmount(raw, amount)
}

func checkAmount(raw string, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Decimal{}, &ParseError{Raw: raw, Err: errNegative}
	}
	return amount, nil
}
