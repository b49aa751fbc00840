package util

import (
	"math/big"
	"testing"
)

func TestIn(t *testing.T) {
	ss := []string{"ganache", "ropsten"}
	if !In(ss, "ropsten") {
		t.Errorf("expected ropsten to be found in %v", ss)
	}
	if In(ss, "mainNet") {
		t.Errorf("did not expect mainNet to be found in %v", ss)
	}
}

// TestToBase checks the exact conversion of caller-facing amounts to base units
func TestToBase(t *testing.T) {
	cases := []struct {
		name, amount string
		decimals     int
		exp          string // expected base units, "" when an error is expected
		err          error
	}{
		{"integer", "5", 18, "5000000000000000000", nil},
		{"fraction", "1.25", 18, "1250000000000000000", nil},
		{"noWhole", ".5", 18, "500000000000000000", nil},
		{"trailingDot", "2.", 18, "2000000000000000000", nil},
		{"zero", "0", 18, "0", nil},
		{"fullPrecision", "0.000000000000000001", 18, "1", nil},
		{"tooPrecise", "0.0000000000000000001", 18, "", ErrPrecision},
		{"negative", "-1", 18, "", ErrBadAmount},
		{"empty", "", 18, "", ErrBadAmount},
		{"dotOnly", ".", 18, "", ErrBadAmount},
		{"junk", "1x2", 18, "", ErrBadAmount},
		{"twoDots", "1.2.3", 18, "", ErrBadAmount},
	}

	for _, c := range cases {
		v, err := ToBase(c.amount, c.decimals)
		if err != c.err {
			t.Errorf("[%s] error:%v expected:%v", c.name, err, c.err)
			continue
		}
		if err == nil && v.String() != c.exp {
			t.Errorf("[%s] got:%s expected:%s", c.name, v.String(), c.exp)
		}
	}
}

// TestFromBase checks rendering base units back to caller-facing amounts
func TestFromBase(t *testing.T) {
	cases := []struct {
		name, base, exp string
	}{
		{"integer", "5000000000000000000", "5"},
		{"fraction", "1250000000000000000", "1.25"},
		{"smallest", "1", "0.000000000000000001"},
		{"zero", "0", "0"},
	}

	for _, c := range cases {
		v, _ := new(big.Int).SetString(c.base, 10)
		if got := FromBase(v, 18); got != c.exp {
			t.Errorf("[%s] got:%s expected:%s", c.name, got, c.exp)
		}
	}
}
