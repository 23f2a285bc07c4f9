package fmt_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	basefmt "github.com/gx-org/stencil/base/fmt"
)

func TestNumber(t *testing.T) {
	tests := []struct {
		txt  string
		want string
	}{
		{
			txt: `
%0 = load(%1) [0, 0]:[8, 8]
%2 = apply(%0) [0, 0]:[8, 8]
`,
			want: `
1 %0 = load(%1) [0, 0]:[8, 8]
2 %2 = apply(%0) [0, 0]:[8, 8]
`,
		},
		{
			txt: `
Line1
Line2
Line3
Line4
Line5
Line6
Line7
Line8
Line9
Line10
`,
			want: `
01 Line1
02 Line2
03 Line3
04 Line4
05 Line5
06 Line6
07 Line7
08 Line8
09 Line9
10 Line10
`,
		},
	}
	for _, test := range tests {
		got := basefmt.Number(strings.TrimSpace(test.txt))
		want := strings.TrimSpace(test.want)
		if got != want {
			t.Errorf("got:\n%s\nbut want:\n%s\ndiff:\n%s", got, want, cmp.Diff(got, want))
		}
	}
}

func TestIndentSkip(t *testing.T) {
	tests := []struct {
		skip int
		txt  string
		want string
	}{
		{
			skip: 0,
			txt:  "a\nb",
			want: "\ta\n\tb",
		},
		{
			skip: 1,
			txt:  "head:\nbody\ntail",
			want: "head:\n\tbody\n\ttail",
		},
	}
	for _, test := range tests {
		got := basefmt.IndentSkip(test.skip, test.txt)
		if got != test.want {
			t.Errorf("IndentSkip(%d, %q) = %q but want %q", test.skip, test.txt, got, test.want)
		}
	}
}
