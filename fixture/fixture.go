// Package fixture serves the pages used to exercise stale-reference
// recovery against a real browser.
//
//	/stale-element.html  #top > #middle > #bottom rebuilt on an interval,
//	                     one .mod10 div appended under #mod10 per rebuild
//	/form.html           a GET form echoing its q parameter
//	/healthz             liveness
package fixture

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

//go:embed pages
var pages embed.FS

var tmpl = template.Must(template.ParseFS(pages, "pages/*.html"))

// Config configures the fixture router.
type Config struct {
	// Interval between rebuilds of the stale-element hierarchy. Default: 1s.
	Interval time.Duration

	// Keep is the number of .mod10 divs kept on the page. Default: 10.
	Keep int

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.Keep <= 0 {
		c.Keep = 10
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

type pageData struct {
	IntervalMS int64
	Keep       int
	Query      string
}

// NewRouter returns the fixture handler.
func NewRouter(cfg Config) http.Handler {
	cfg.defaults()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(headToGet)
	r.Use(securityHeaders)
	r.Use(requestLogger(cfg.Logger))

	data := pageData{IntervalMS: cfg.Interval.Milliseconds(), Keep: cfg.Keep}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	})
	r.Get("/", page(cfg.Logger, "index.html", func(*http.Request) pageData { return data }))
	r.Get("/stale-element.html", page(cfg.Logger, "stale-element.html", func(*http.Request) pageData { return data }))
	r.Get("/form.html", page(cfg.Logger, "form.html", func(r *http.Request) pageData {
		d := data
		d.Query = r.URL.Query().Get("q")
		return d
	}))
	r.Get("/stale-element.js", func(w http.ResponseWriter, _ *http.Request) {
		js, err := pages.ReadFile("pages/stale-element.js")
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.Write(js)
	})
	return r
}

func page(log *slog.Logger, name string, data func(*http.Request) pageData) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if err := tmpl.ExecuteTemplate(w, name, data(r)); err != nil {
			log.Error("fixture: render", "page", name, "error", err)
		}
	}
}
