package ledger

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// Amount is an arbitrary precision signed integer of reward base units.
// The zero value is an unset amount which behaves as zero in arithmetic.
// Amount values are immutable; arithmetic returns new values.
type Amount struct {
	i *big.Int
}

// NewAmount returns an Amount holding v.
func NewAmount(v int64) Amount {
	return Amount{i: big.NewInt(v)}
}

// AmountFromBig copies v into a new Amount. A nil v yields an unset Amount.
func AmountFromBig(v *big.Int) Amount {
	if v == nil {
		return Amount{}
	}
	return Amount{i: new(big.Int).Set(v)}
}

// ParseAmount parses a base-10 integer string.
func ParseAmount(s string) (Amount, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return Amount{}, fmt.Errorf("invalid amount %q", s)
	}
	return Amount{i: v}, nil
}

// Valid reports whether the amount was explicitly set.
func (a Amount) Valid() bool {
	return a.i != nil
}

// Big returns a copy of the underlying integer.
func (a Amount) Big() *big.Int {
	if a.i == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.i)
}

func (a Amount) Add(b Amount) Amount {
	return Amount{i: new(big.Int).Add(a.Big(), b.Big())}
}

func (a Amount) Sub(b Amount) Amount {
	return Amount{i: new(big.Int).Sub(a.Big(), b.Big())}
}

func (a Amount) Neg() Amount {
	return Amount{i: new(big.Int).Neg(a.Big())}
}

func (a Amount) Sign() int {
	if a.i == nil {
		return 0
	}
	return a.i.Sign()
}

func (a Amount) IsZero() bool {
	return a.Sign() == 0
}

func (a Amount) Cmp(b Amount) int {
	return a.Big().Cmp(b.Big())
}

// Equal compares numeric values; an unset amount equals zero.
func (a Amount) Equal(b Amount) bool {
	return a.Cmp(b) == 0
}

func (a Amount) String() string {
	if a.i == nil {
		return "0"
	}
	return a.i.String()
}

// MarshalJSON encodes the amount as a decimal string so precision survives
// JSON consumers that parse numbers as float64.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts a decimal string or a bare JSON integer.
func (a *Amount) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		a.i = nil
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
