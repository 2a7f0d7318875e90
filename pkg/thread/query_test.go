package thread

import "testing"

func TestIsSHALike(t *testing.T) {
	cases := map[string]bool{
		"abc1234":                                  true,
		"ABCDEF0":                                  true,
		"deadbeefdeadbeefdeadbeefdeadbeefdeadbeef":  true, // 40 hex chars
		"deadbeefdeadbeefdeadbeefdeadbeefdeadbeefA": false, // 41 chars, too long
		"abc12":             false, // too short
		"not a sha at all":  false, // whitespace
		"ghijklm":           false, // non-hex letters
		"":                  false,
	}
	for in, want := range cases {
		if got := IsSHALike(in); got != want {
			t.Errorf("IsSHALike(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNormalizeCacheQuery(t *testing.T) {
	if got := NormalizeCacheQuery("  Foo   BAR\tbaz  "); got != "foo bar baz" {
		t.Errorf("got %q", got)
	}
	if got := NormalizeCacheQuery(""); got != "" {
		t.Errorf("got %q", got)
	}
}

func TestFTSQueryEscapesEmbeddedQuotes(t *testing.T) {
	if got := FTSQuery(`foo "bar" baz`); got != `"foo  bar  baz"` {
		t.Errorf("got %q", got)
	}
}
