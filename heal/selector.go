package heal

import "strings"

// Strategy names how a Selector pattern is interpreted by a session.
type Strategy string

const (
	StrategyCSS   Strategy = "css"
	StrategyXPath Strategy = "xpath"
	StrategyID    Strategy = "id"
)

// Selector describes how to find a remote object. It is a value type and is
// also used as the diagnostic label of the handles it produces.
type Selector struct {
	Strategy Strategy
	Pattern  string
}

// CSS returns a CSS selector.
func CSS(pattern string) Selector { return Selector{Strategy: StrategyCSS, Pattern: pattern} }

// XPath returns an XPath selector. Patterns are evaluated relative to the
// scope they are issued against.
func XPath(pattern string) Selector { return Selector{Strategy: StrategyXPath, Pattern: pattern} }

// ID returns a selector matching the element id exactly.
func ID(id string) Selector { return Selector{Strategy: StrategyID, Pattern: id} }

// Parent selects the parent of the scope.
func Parent() Selector { return XPath("..") }

// ParseSelector turns a user-supplied selector string into a Selector.
// ".." is the parent of the scope, an "xpath:" or "id:" prefix selects that
// strategy, anything else is CSS.
func ParseSelector(s string) Selector {
	s = strings.TrimSpace(s)
	switch {
	case s == "..":
		return Parent()
	case strings.HasPrefix(s, "xpath:"):
		return XPath(strings.TrimPrefix(s, "xpath:"))
	case strings.HasPrefix(s, "id:"):
		return ID(strings.TrimPrefix(s, "id:"))
	case strings.HasPrefix(s, "css:"):
		return CSS(strings.TrimPrefix(s, "css:"))
	}
	return CSS(s)
}

func (s Selector) String() string {
	return string(s.Strategy) + ":" + s.Pattern
}

// IsZero reports whether s is the zero Selector (used for the root scope).
func (s Selector) IsZero() bool {
	return s.Strategy == "" && s.Pattern == ""
}
