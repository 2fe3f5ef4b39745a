package sgfa

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalizeTag(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "plain", want: "plain"},
		{in: "a:b", want: "a: b"},
		{in: "a: b", want: "a: b"},
		{in: " a : b ", want: "a: b"},
		{in: "a:b:c", want: "a: b:c"},
		{in: "a:  spaced  out", want: "a: spaced  out"},
		{in: "", wantErr: true},
		{in: "_reserved", wantErr: true},
		{in: "a/b", wantErr: true},
		{in: `a\b`, wantErr: true},
		{in: "a*b", wantErr: true},
		{in: "a?b", wantErr: true},
		{in: "a:", wantErr: true},
		{in: ":b", wantErr: true},
		{in: "tab\there", wantErr: true},
		{in: strings.Repeat("x", 129), wantErr: true},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			got, err := NormalizeTag(c.in)
			if c.wantErr {
				if !errors.Is(err, ErrLimits) {
					t.Fatalf("got (%q, %v), want ErrLimits", got, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != c.want {
				t.Errorf("got %q, want %q", got, c.want)
			}
		})
	}
}

func TestCheckLimits(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "id ok", err: CheckIDText("demo")},
		{name: "id empty", err: CheckIDText(""), wantErr: true},
		{name: "id long", err: CheckIDText(strings.Repeat("x", 129)), wantErr: true},
		{name: "id control", err: CheckIDText("a\x01b"), wantErr: true},
		{name: "title ok", err: CheckTitle("hello")},
		{name: "title newline", err: CheckTitle("a\nb"), wantErr: true},
		{name: "body ok", err: CheckBody([]byte("line one\n\tline two\r\n"))},
		{name: "body empty", err: CheckBody(nil), wantErr: true},
		{name: "body control", err: CheckBody([]byte("a\x00b")), wantErr: true},
		{name: "body long", err: CheckBody([]byte(strings.Repeat("x", 8193))), wantErr: true},
		{name: "user ok", err: CheckUser("alice")},
		{name: "user long", err: CheckUser(strings.Repeat("x", 65)), wantErr: true},
		{name: "name ok", err: CheckName("report.pdf")},
		{name: "name slash", err: CheckName("a/b"), wantErr: true},
		{name: "name long", err: CheckName(strings.Repeat("x", 256)), wantErr: true},
		{name: "time ok", err: CheckTime("2024-01-02 03:04:05")},
		{name: "time short", err: CheckTime("2024-01-02"), wantErr: true},
		{name: "time iso", err: CheckTime("2024-01-02T03:04:05"), wantErr: true},
		{name: "time bad month", err: CheckTime("2024-13-02 03:04:05"), wantErr: true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if c.wantErr {
				if !errors.Is(c.err, ErrLimits) {
					t.Fatalf("got %v, want ErrLimits", c.err)
				}
			} else if c.err != nil {
				t.Fatal(c.err)
			}
		})
	}
}

func TestParseNum(t *testing.T) {
	cases := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "0", want: 0},
		{in: "7", want: 7},
		{in: "1234567890", want: 1234567890},
		{in: "", wantErr: true},
		{in: "01", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "1x", wantErr: true},
		{in: " 1", wantErr: true},
		{in: "99999999999999999999", wantErr: true},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			got, err := parseNum(c.in)
			if c.wantErr {
				if !errors.Is(err, ErrCorrupt) {
					t.Fatalf("got (%d, %v), want ErrCorrupt", got, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != c.want {
				t.Errorf("got %d, want %d", got, c.want)
			}
		})
	}
}
