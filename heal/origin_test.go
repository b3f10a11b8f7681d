package heal

import "testing"

func TestValidate(t *testing.T) {
	cases := []struct {
		s         Strictness
		rec, cur  string
		wantValid bool
	}{
		{ExactMatch, "http://h/p?a=1", "http://h/p?a=1", true},
		{ExactMatch, "http://h/p?a=1", "http://h/p?a=2", false},
		{ExactMatch, "http://h/p", "http://h/p#top", false},
		{AllowNonMatchingAnchorHashes, "http://h/p#a", "http://h/p#b", true},
		{AllowNonMatchingAnchorHashes, "http://h/p?q=1#a", "http://h/p?q=1", true},
		{AllowNonMatchingAnchorHashes, "http://h/p?q=1", "http://h/p?q=2", false},
		{AllowNonMatchingAnchorHashes, "http://h:80/p", "http://h:81/p", false},
		{AllowNonMatchingQueryStrings, "http://h/p?q=1#a", "http://h/p?q=2#b", true},
		{AllowNonMatchingQueryStrings, "http://h/p", "https://h/p", false},
		{AllowNonMatchingQueryStrings, "http://h/p", "http://h/p/", false},
		{DontCheckOrigin, "http://a/", "http://b/", true},
	}
	for _, tc := range cases {
		got := Validate(FingerprintOf(tc.rec), FingerprintOf(tc.cur), tc.s)
		if got != tc.wantValid {
			t.Errorf("Validate(%q, %q, %s): got %v, want %v", tc.rec, tc.cur, tc.s, got, tc.wantValid)
		}
	}
}

func TestValidate_UnknownRecorded(t *testing.T) {
	if !Validate(Fingerprint{}, FingerprintOf("http://x/"), ExactMatch) {
		t.Fatal("unknown recorded fingerprint must be accepted")
	}
}

func TestReduceLocation_Unparseable(t *testing.T) {
	loc := "http://h/%zz?x=1#f"
	if got := reduceLocation(loc, AllowNonMatchingAnchorHashes); got != "http://h/%zz?x=1" {
		t.Fatalf("anchor: got %q", got)
	}
	if got := reduceLocation(loc, AllowNonMatchingQueryStrings); got != "http://h/%zz" {
		t.Fatalf("query: got %q", got)
	}
}

func TestParseStrictness(t *testing.T) {
	for in, want := range map[string]Strictness{
		"exact":                            ExactMatch,
		"allow_non_matching_query_strings": AllowNonMatchingQueryStrings,
		"":                                 AllowNonMatchingAnchorHashes,
		"NONE":                             DontCheckOrigin,
	} {
		got, err := ParseStrictness(in)
		if err != nil || got != want {
			t.Errorf("ParseStrictness(%q): got %s, %v, want %s", in, got, err, want)
		}
	}
	if _, err := ParseStrictness("sometimes"); err == nil {
		t.Error("ParseStrictness(sometimes): expected error")
	}

	var s Strictness
	if err := s.UnmarshalText([]byte("exact_match")); err != nil || s != ExactMatch {
		t.Errorf("UnmarshalText: got %s, %v", s, err)
	}
}

func TestParseSelector(t *testing.T) {
	cases := map[string]Selector{
		"..":            XPath(".."),
		"#bottom":       CSS("#bottom"),
		"xpath://div":   XPath("//div"),
		"id:bottom":     ID("bottom"),
		" css:.mod10 ":  CSS(".mod10"),
		"div > span.hi": CSS("div > span.hi"),
	}
	for in, want := range cases {
		if got := ParseSelector(in); got != want {
			t.Errorf("ParseSelector(%q): got %v, want %v", in, got, want)
		}
	}
	if got := ID("bottom").String(); got != "id:bottom" {
		t.Errorf("String: got %q", got)
	}
}
