package browser

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/domheal/heal"
)

func TestIsStaleError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"detached node", &cdp.Error{Code: -32000, Message: "Node is detached from document"}, true},
		{"missing node", &cdp.Error{Code: -32000, Message: "Could not find node with given id"}, true},
		{"context gone", fmt.Errorf("eval: %w", &cdp.Error{Code: -32000, Message: "Cannot find context with specified id"}), true},
		{"object gone", &rod.ObjectNotFoundError{}, true},
		{"plain text", errors.New("Execution context was destroyed, most likely because of a navigation"), true},
		{"syntax error", &cdp.Error{Code: -32000, Message: "SyntaxError: Unexpected token"}, false},
		{"timeout", errors.New("context deadline exceeded"), false},
	}
	for _, tc := range cases {
		if got := isStaleError(tc.err); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestClassify(t *testing.T) {
	// WHAT: Protocol "node gone" failures are marked heal.ErrStale, others are not.
	// WHY: Only ErrStale makes a handle re-resolve; anything else must surface.
	cause := &cdp.Error{Code: -32000, Message: "No node with given id found"}
	err := classify("text", cause)
	if !heal.IsStale(err) {
		t.Fatalf("classify(node gone): %v is not stale", err)
	}
	var cerr *cdp.Error
	if !errors.As(err, &cerr) {
		t.Fatal("classify must keep the protocol error in the chain")
	}

	if err := classify("click", errors.New("element covered")); heal.IsStale(err) {
		t.Fatalf("classify(covered): %v must not be stale", err)
	}
}

func TestIDSelector(t *testing.T) {
	cases := map[string]string{
		"bottom":     `[id="bottom"]`,
		`a"b`:        `[id="a\"b"]`,
		"with:colon": `[id="with:colon"]`,
		`back\slash`: `[id="back\\slash"]`,
		"line\nfeed": `[id="line\a feed"]`,
		"tab\there":  `[id="tab\9 here"]`,
		"del\x7f":    `[id="del\7f "]`,
		"nul\x00":    "[id=\"nul\uFFFD\"]",
		"caf\u00e9":  `[id="café"]`,
	}
	for in, want := range cases {
		if got := idSelector(in); got != want {
			t.Errorf("idSelector(%q): got %s, want %s", in, got, want)
		}
	}
}

func TestShouldBlock(t *testing.T) {
	blocked := map[string]bool{"images": true, "fonts": true, "xhr": true}
	cases := map[proto.NetworkResourceType]bool{
		proto.NetworkResourceTypeImage:      true,
		proto.NetworkResourceTypeFont:       true,
		proto.NetworkResourceTypeXHR:        true,
		proto.NetworkResourceTypeStylesheet: false,
		proto.NetworkResourceTypeDocument:   false,
	}
	for typ, want := range cases {
		if got := shouldBlock(blocked, typ); got != want {
			t.Errorf("shouldBlock(%s): got %v, want %v", typ, got, want)
		}
	}
}

func TestParseStealthLevel(t *testing.T) {
	for in, want := range map[string]StealthLevel{"": LevelHeadless, "plain": LevelPlain, "headful": LevelHeadful} {
		got, err := ParseStealthLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseStealthLevel(%q): got %d, %v", in, got, err)
		}
	}
	if _, err := ParseStealthLevel("invisible"); err == nil {
		t.Error("ParseStealthLevel(invisible): expected error")
	}
}
