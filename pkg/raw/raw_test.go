package raw

import (
	"testing"

	"github.com/shopspring/decimal"

	nano "github.com/nanopay/nanogate/pkg"
)

func TestParseMalformed(t *testing.T) {
	cases := []string{"", "   ", "bogus", "12a3", "1.5", "0x10"}
	for _, c := range cases {
		if Parse(c).Sign() != 0 {
			t.Errorf("Parse(%q) should be zero", c)
		}
	}
}

func TestToDecimal(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"1000000000000000000000000000000", "1"},
		{"1500000000000000000000000000000", "1.5"},
		{"1", "0.000000000000000000000000000001"},
		{"0", "0"},
		{"", "0"},
		{"not-a-number", "0"},
		{"2500000000000000000000000000000000", "2500"},
	}
	for _, tt := range tests {
		got := ToDecimal(tt.raw)
		want := decimal.RequireFromString(tt.want)
		if !got.Equal(want) {
			t.Errorf("ToDecimal(%q) = %s, want %s", tt.raw, got, want)
		}
	}
}

func TestFromDecimal(t *testing.T) {
	tests := []struct {
		amount string
		want   string
	}{
		{"1", "1000000000000000000000000000000"},
		{"0.5", "500000000000000000000000000000"},
		{"0", "0"},
		{"123.456", "123456000000000000000000000000000"},
	}
	for _, tt := range tests {
		got := FromDecimal(decimal.RequireFromString(tt.amount))
		if got != tt.want {
			t.Errorf("FromDecimal(%s) = %s, want %s", tt.amount, got, tt.want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	// fromDecimal(toDecimal(r)) == r up to zero normalization
	cases := []string{
		"0",
		"1",
		"1000000000000000000000000000000",
		"340282366920938463463374607431768211455",
		"7000000000000000000000000001",
	}
	for _, r := range cases {
		got := FromDecimal(ToDecimal(r))
		if Compare(got, r) != 0 {
			t.Errorf("round trip of %s gave %s", r, got)
		}
	}
}

func TestAdd(t *testing.T) {
	if got := Add("1", "2"); got != "3" {
		t.Errorf("Add = %s", got)
	}
	// amounts beyond uint64
	if got := Add("1000000000000000000000000000000", "500000000000000000000000000000"); got != "1500000000000000000000000000000" {
		t.Errorf("Add large = %s", got)
	}
	// zero behaviour with missing fields
	if got := Add("", "42"); got != "42" {
		t.Errorf("Add empty = %s", got)
	}
}

func TestSub(t *testing.T) {
	got, err := Sub("10", "4")
	if err != nil || got != "6" {
		t.Errorf("Sub = %s, %v", got, err)
	}

	_, err = Sub("4", "10")
	if !nano.IsError(err, nano.NegativeBalance) {
		t.Errorf("expected negative-balance error, got %v", err)
	}

	// exact spend leaves zero
	got, err = Sub("1000000000000000000000000000000", "1000000000000000000000000000000")
	if err != nil || got != "0" {
		t.Errorf("Sub to zero = %s, %v", got, err)
	}
}

func TestCompare(t *testing.T) {
	if Compare("1", "2") != -1 || Compare("2", "1") != 1 || Compare("5", "5") != 0 {
		t.Error("Compare ordering wrong")
	}
	if Compare("", "0") != 0 {
		t.Error("empty should equal zero")
	}
}
