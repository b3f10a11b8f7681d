package browser_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"

	"github.com/hazyhaar/domheal/browser"
	"github.com/hazyhaar/domheal/fixture"
	"github.com/hazyhaar/domheal/heal"
	"github.com/hazyhaar/domheal/retrier"
)

// openFixture starts the fixture server and a Chrome tab on path. Set
// DOMHEAL_CHROME_URL to use an already running Chrome.
func openFixture(t *testing.T, path string) (context.Context, *browser.Tab) {
	t.Helper()
	if testing.Short() {
		t.Skip("browser test skipped in -short mode")
	}
	remote := os.Getenv("DOMHEAL_CHROME_URL")
	if _, ok := launcher.LookPath(); !ok && remote == "" {
		t.Skip("no chrome binary found")
	}

	srv := httptest.NewServer(fixture.NewRouter(fixture.Config{Interval: 100 * time.Millisecond}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)

	mgr := browser.NewManager(browser.Config{RemoteURL: remote, Stealth: browser.LevelPlain})
	if err := mgr.Start(ctx); err != nil {
		t.Skipf("chrome unavailable: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })

	tab, err := browser.OpenTab(ctx, mgr, srv.URL+path)
	if err != nil {
		t.Fatalf("OpenTab: %v", err)
	}
	return ctx, tab
}

func poll() *retrier.Retrier {
	return retrier.New(retrier.Options{Interval: 50 * time.Millisecond})
}

// verifyContentChanged waits for text, then for the text to change across
// at least one rebuild of the hierarchy.
func verifyContentChanged(ctx context.Context, t *testing.T, h *heal.Handle) {
	t.Helper()
	r := poll()
	err := r.DoUntil(ctx, retrier.Noop, func(ctx context.Context) (bool, error) {
		txt, err := h.Text(ctx)
		return strings.TrimSpace(txt) != "", err
	}, 5*time.Second)
	if err != nil {
		t.Fatalf("wait for content: %v", err)
	}

	first, err := h.Text(ctx)
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	updated := first
	err = r.Do(func(ctx context.Context) error {
		var err error
		updated, err = h.Text(ctx)
		return err
	}).ForNoLongerThan(5*time.Second).Until(ctx, func(context.Context) (bool, error) {
		return updated != first, nil
	})
	if err != nil {
		t.Fatalf("wait for rebuild: %v", err)
	}
}

func TestTab_FindFromDriverSurvivesRebuild(t *testing.T) {
	// WHAT: A handle found from the driver keeps reading #bottom across rebuilds.
	// WHY: The fixture replaces the whole hierarchy every 100ms.
	ctx, tab := openFixture(t, "/stale-element.html")
	d := heal.NewDriver(tab, heal.Options{})

	bottom, err := d.Find(ctx, heal.ID("bottom"))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	verifyContentChanged(ctx, t, bottom)
}

func TestTab_FindThroughAncestorsSurvivesRebuild(t *testing.T) {
	ctx, tab := openFixture(t, "/stale-element.html")
	d := heal.NewDriver(tab, heal.Options{})

	top, err := d.Find(ctx, heal.ID("top"))
	if err != nil {
		t.Fatalf("Find top: %v", err)
	}
	middle, err := top.Find(ctx, heal.ID("middle"))
	if err != nil {
		t.Fatalf("Find middle: %v", err)
	}
	bottom, err := middle.Find(ctx, heal.ID("bottom"))
	if err != nil {
		t.Fatalf("Find bottom: %v", err)
	}
	verifyContentChanged(ctx, t, bottom)

	parent, err := bottom.Find(ctx, heal.Parent())
	if err != nil {
		t.Fatalf("Find parent: %v", err)
	}
	if id, _, _ := parent.Attribute(ctx, "id"); id != "middle" {
		t.Fatalf("parent id: got %q, want middle", id)
	}
}

func TestTab_CollectionsAreLazy(t *testing.T) {
	ctx, tab := openFixture(t, "/stale-element.html")
	d := heal.NewDriver(tab, heal.Options{})

	list, err := d.Find(ctx, heal.ID("mod10"))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	for name, divs := range map[string]*heal.Collection[*heal.Handle]{
		"driver":  d.FindAll(heal.CSS(".mod10")),
		"element": list.FindAll(heal.CSS(".mod10")),
	} {
		err := poll().Do(retrier.Noop).ForNoLongerThan(15*time.Second).Until(ctx, func(ctx context.Context) (bool, error) {
			n, err := divs.Len(ctx)
			return n > 5, err
		})
		if err != nil {
			t.Fatalf("%s: wait for .mod10 divs: %v", name, err)
		}
	}
}

func TestTab_OriginAfterSubmit(t *testing.T) {
	// WHAT: A form submit changes the query string; the default strictness
	// refuses to re-resolve there, the query-tolerant one heals.
	ctx, tab := openFixture(t, "/form.html")

	strict := heal.NewDriver(tab, heal.Options{})
	loose := heal.NewDriver(tab, heal.Options{Strictness: heal.AllowNonMatchingQueryStrings})

	strictEcho, err := strict.Find(ctx, heal.ID("echo"))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	looseEcho, err := loose.Find(ctx, heal.ID("echo"))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	q, err := loose.Find(ctx, heal.ID("q"))
	if err != nil {
		t.Fatalf("Find q: %v", err)
	}
	if err := q.Input(ctx, "healed"); err != nil {
		t.Fatalf("Input: %v", err)
	}
	if err := q.Submit(ctx); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	err = poll().DoUntil(ctx, retrier.Noop, func(ctx context.Context) (bool, error) {
		loc, err := tab.CurrentLocation(ctx)
		return strings.Contains(loc, "q=healed"), err
	}, 10*time.Second)
	if err != nil {
		t.Fatalf("wait for navigation: %v", err)
	}

	var incons *heal.InconsistentOriginError
	if _, err := strictEcho.Text(ctx); !errors.As(err, &incons) {
		t.Fatalf("strict Text: got %v, want InconsistentOriginError", err)
	}

	err = poll().DoUntil(ctx, retrier.Noop, func(ctx context.Context) (bool, error) {
		txt, err := looseEcho.Text(ctx)
		return txt == "healed", err
	}, 10*time.Second)
	if err != nil {
		t.Fatalf("loose Text: %v", err)
	}
}

func TestTab_HTMLAndEval(t *testing.T) {
	ctx, tab := openFixture(t, "/form.html?q=hello")
	d := heal.NewDriver(tab, heal.Options{})

	html, err := tab.HTML(ctx)
	if err != nil || !strings.Contains(html, `id="echo"`) {
		t.Fatalf("HTML: %v", err)
	}
	title, err := d.Eval(ctx, `() => document.title`)
	if err != nil || title != "form" {
		t.Fatalf("Eval: got %v, %v", title, err)
	}

	q, err := d.Find(ctx, heal.CSS("input#q"))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	tag, err := q.Eval(ctx, `() => this.tagName`)
	if err != nil || tag != "INPUT" {
		t.Fatalf("Handle.Eval: got %v, %v", tag, err)
	}
	if err := q.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if v, err := q.Eval(ctx, `() => this.value`); err != nil || v != "" {
		t.Fatalf("value after Clear: got %v, %v", v, err)
	}
}
