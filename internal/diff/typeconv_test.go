package diff

import "testing"

func TestIsLosslessTypeChange(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{"smallint", "integer", true},
		{"integer", "bigint", true},
		{"integer", "numeric", true},
		{"varchar(255)", "text", true},
		{"text", "integer", false},
		{"numeric", "integer", false},
		{"bigint", "integer", false},
		{"integer", "integer", true},
	}
	for _, c := range cases {
		if got := isLosslessTypeChange(c.from, c.to); got != c.want {
			t.Errorf("isLosslessTypeChange(%q, %q) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}
