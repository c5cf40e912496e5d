package cli

import (
	"reflect"
	"testing"
)

func TestSplitPrices(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{in: "100,90,60", want: []string{"100", "90", "60"}},
		{in: " 100 , ,60 ", want: []string{"100", "60"}},
		{in: "$1,299.00;$999.99", want: []string{"$1,299.00", "$999.99"}},
		{in: "", want: nil},
	}
	for _, tc := range cases {
		if got := splitPrices(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("splitPrices(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
