package browser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"

	"github.com/hazyhaar/domheal/heal"
)

// finder is the lookup surface shared by *rod.Page and *rod.Element.
// Element lookups evaluate relative to the element, so XPath ".." is its
// parent.
type finder interface {
	Has(selector string) (bool, *rod.Element, error)
	HasX(xpath string) (bool, *rod.Element, error)
	Elements(selector string) (rod.Elements, error)
	ElementsX(xpath string) (rod.Elements, error)
}

func findOne(f finder, sel heal.Selector) (*rod.Element, error) {
	var (
		ok  bool
		el  *rod.Element
		err error
	)
	switch sel.Strategy {
	case heal.StrategyXPath:
		ok, el, err = f.HasX(sel.Pattern)
	case heal.StrategyID:
		ok, el, err = f.Has(idSelector(sel.Pattern))
	default:
		ok, el, err = f.Has(sel.Pattern)
	}
	if err != nil {
		return nil, classify("find "+sel.String(), err)
	}
	if !ok {
		return nil, fmt.Errorf("browser: %s: %w", sel, heal.ErrNotFound)
	}
	return el, nil
}

func findMany(f finder, sel heal.Selector) (rod.Elements, error) {
	var (
		els rod.Elements
		err error
	)
	switch sel.Strategy {
	case heal.StrategyXPath:
		els, err = f.ElementsX(sel.Pattern)
	case heal.StrategyID:
		els, err = f.Elements(idSelector(sel.Pattern))
	default:
		els, err = f.Elements(sel.Pattern)
	}
	if err != nil {
		return nil, classify("find all "+sel.String(), err)
	}
	return els, nil
}

// idSelector matches the id attribute exactly, whatever characters it holds.
func idSelector(id string) string {
	return "[id=" + cssString(id) + "]"
}

// cssString quotes s as a CSS string token, serialised the way CSSOM
// serialises strings: control characters become hex escapes followed by a
// space, quotes and backslashes are backslash-escaped, NUL becomes U+FFFD.
func cssString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch {
		case r == 0:
			b.WriteRune('\uFFFD')
		case r < 0x20 || r == 0x7f:
			b.WriteString(`\` + strconv.FormatInt(int64(r), 16) + " ")
		case r == '"' || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// staleMessages are DevTools protocol failures raised when a remote object
// id outlived its node, document, or execution context.
var staleMessages = []string{
	"could not find node with given id",
	"no node with given id found",
	"node is detached from document",
	"node with given id does not belong to the document",
	"cannot find context with specified id",
	"could not find object with given id",
	"cannot find object with id",
	"execution context was destroyed",
}

// isStaleError reports whether err is a protocol failure meaning the
// referenced node or its context is gone.
func isStaleError(err error) bool {
	if err == nil {
		return false
	}
	var notFound *rod.ObjectNotFoundError
	if errors.As(err, &notFound) {
		return true
	}
	msg := err.Error()
	var cerr *cdp.Error
	if errors.As(err, &cerr) {
		msg = cerr.Message
	}
	msg = strings.ToLower(msg)
	for _, m := range staleMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// classify wraps err, marking it heal.ErrStale when the protocol says the
// object is gone.
func classify(op string, err error) error {
	if isStaleError(err) {
		return fmt.Errorf("browser: %s: %w: %w", op, heal.ErrStale, err)
	}
	return fmt.Errorf("browser: %s: %w", op, err)
}
