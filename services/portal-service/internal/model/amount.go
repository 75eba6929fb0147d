package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Amount is a non-negative money value in cents, parsed from and rendered as
// a two-decimal string.
type Amount int64

// MaxAmount is the largest value a NUMERIC(10,2) column holds.
const MaxAmount Amount = 99_999_999_99

var ErrInvalidAmount = errors.New("amount must be a positive decimal with at most two fraction digits")

func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	whole, frac, hasDot := strings.Cut(s, ".")
	if whole == "" && (!hasDot || frac == "") {
		return 0, ErrInvalidAmount
	}
	if len(frac) > 2 || !allDigits(whole) || !allDigits(frac) {
		return 0, ErrInvalidAmount
	}
	if whole == "" {
		whole = "0"
	}
	for len(frac) < 2 {
		frac += "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units > int64(MaxAmount)/100 {
		return 0, ErrInvalidAmount
	}
	cents, _ := strconv.ParseInt(frac, 10, 64)
	return Amount(units*100 + cents), nil
}

func MustAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (a Amount) Cents() int64 { return int64(a) }

func (a Amount) String() string {
	return fmt.Sprintf("%d.%02d", int64(a)/100, int64(a)%100)
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts "225.00" or a bare 225.00 literal. The literal is
// parsed from its source text, never through float64.
func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = 0
		return nil
	}
	raw := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return ErrInvalidAmount
		}
	}
	v, err := ParseAmount(raw)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
