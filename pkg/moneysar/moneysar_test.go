package moneysar

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestRoundHalfUp(t *testing.T) {
	cases := map[string]string{
		"1.005":  "1.01",
		"1.004":  "1",
		"-1.005": "-1.01",
		"10":     "10",
	}
	for in, want := range cases {
		got := Round(decimal.RequireFromString(in))
		if !got.Equal(decimal.RequireFromString(want)) {
			t.Errorf("Round(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestLineTotalAndGross(t *testing.T) {
	if got := LineTotal(decimal.RequireFromString("33.335"), 3); got.String() != "100.01" {
		t.Errorf("LineTotal = %s", got)
	}
	if got := GrossFromNet(decimal.RequireFromString("100"), decimal.RequireFromString("0.15")); got.String() != "115" {
		t.Errorf("GrossFromNet = %s", got)
	}
}

func TestFormat(t *testing.T) {
	if got := Format(decimal.RequireFromString("12.5")); got != "12.50 SAR" {
		t.Errorf("Format = %q", got)
	}
}
