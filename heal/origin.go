package heal

import (
	"fmt"
	"net/url"
	"strings"
)

// Strictness controls how the location a handle was first resolved on is
// compared with the location it is re-resolved on.
type Strictness int

const (
	// DontCheckOrigin accepts re-resolution after any navigation.
	DontCheckOrigin Strictness = iota + 1
	// AllowNonMatchingAnchorHashes ignores the fragment.
	AllowNonMatchingAnchorHashes
	// AllowNonMatchingQueryStrings ignores the fragment and the query string.
	AllowNonMatchingQueryStrings
	// ExactMatch rejects any difference.
	ExactMatch
)

// DefaultStrictness is used when Options.Strictness is left unset (zero).
const DefaultStrictness = AllowNonMatchingAnchorHashes

var strictnessNames = map[Strictness]string{
	DontCheckOrigin:              "dont_check_origin",
	AllowNonMatchingAnchorHashes: "allow_non_matching_anchor_hashes",
	AllowNonMatchingQueryStrings: "allow_non_matching_query_strings",
	ExactMatch:                   "exact_match",
}

func (s Strictness) String() string {
	if n, ok := strictnessNames[s]; ok {
		return n
	}
	return fmt.Sprintf("strictness(%d)", int(s))
}

// ParseStrictness parses the snake_case name of a Strictness. The short
// forms "none", "anchor", "query" and "exact" are accepted too.
func ParseStrictness(s string) (Strictness, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dont_check_origin", "none":
		return DontCheckOrigin, nil
	case "allow_non_matching_anchor_hashes", "anchor", "":
		return AllowNonMatchingAnchorHashes, nil
	case "allow_non_matching_query_strings", "query":
		return AllowNonMatchingQueryStrings, nil
	case "exact_match", "exact":
		return ExactMatch, nil
	}
	return 0, fmt.Errorf("heal: unknown origin strictness %q", s)
}

func (s Strictness) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Strictness) UnmarshalText(b []byte) error {
	v, err := ParseStrictness(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Fingerprint records where a handle was first resolved. The zero value
// means the session could not report a location.
type Fingerprint struct {
	Location string
	Known    bool
}

// FingerprintOf returns the fingerprint of a reported location.
func FingerprintOf(location string) Fingerprint {
	return Fingerprint{Location: location, Known: true}
}

// Key reduces the fingerprint for comparison under s.
func (f Fingerprint) Key(s Strictness) string {
	return reduceLocation(f.Location, s)
}

// Validate reports whether a replacement resolved at current may stand in
// for an object first resolved at recorded. Unknown fingerprints on either
// side are accepted.
func Validate(recorded, current Fingerprint, s Strictness) bool {
	if s == DontCheckOrigin || !recorded.Known || !current.Known {
		return true
	}
	return recorded.Key(s) == current.Key(s)
}

func reduceLocation(loc string, s Strictness) string {
	if s == ExactMatch || s == DontCheckOrigin {
		return loc
	}
	u, err := url.Parse(loc)
	if err != nil {
		loc, _, _ = strings.Cut(loc, "#")
		if s == AllowNonMatchingQueryStrings {
			loc, _, _ = strings.Cut(loc, "?")
		}
		return loc
	}
	u.Fragment = ""
	u.RawFragment = ""
	if s == AllowNonMatchingQueryStrings {
		u.RawQuery = ""
		u.ForceQuery = false
	}
	return u.String()
}
