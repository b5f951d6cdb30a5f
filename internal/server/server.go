package server

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/TobiSchelling/subnet/internal/artifact"
	"github.com/TobiSchelling/subnet/internal/database"
	"github.com/TobiSchelling/subnet/internal/network"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

const defaultLimit = 20

// errNoBuild means the catalog has nothing to serve for the request.
var errNoBuild = errors.New("no network has been built yet")

// Server is the HTTP server for browsing overlap networks.
type Server struct {
	db       *database.DB
	pages    map[string]*template.Template
	mux      *http.ServeMux
	networks *cache.Cache
}

// loaded is a catalog build with its network read from disk.
type loaded struct {
	build  *database.Build
	net    *network.Network
	totals map[string]int64
}

// New creates a new Server. Loaded networks are kept for ttl after their
// last load.
func New(db *database.DB, ttl time.Duration) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown":     renderMarkdown,
		"formatPeriod": database.FormatPeriodDisplay,
		"comma":        func(n int) string { return humanize.Comma(int64(n)) },
		"since":        builtSince,
		"shortKey": func(k string) string {
			if len(k) > 12 {
				return k[:12]
			}
			return k
		},
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// For each page template, clone the base and parse the page into the clone.
	// This gives each page its own {{define "content"}} and {{define "title"}}.
	pageNames := []string{"index.html", "overlaps.html", "error.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	s := &Server{
		db:       db,
		pages:    pages,
		mux:      http.NewServeMux(),
		networks: cache.New(ttl, 2*ttl),
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	// Static files
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	// Routes
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/overlaps/", s.handleOverlaps)
	s.mux.HandleFunc("/api/overlaps/", s.handleAPIOverlaps)
	s.mux.HandleFunc("/api/pairs", s.handleAPIPairs)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	builds, err := s.db.GetAllBuilds()
	if err != nil {
		log.Errorf("listing builds: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.render(w, http.StatusOK, "index.html", map[string]any{
		"Builds": builds,
	})
}

func (s *Server) handleOverlaps(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/overlaps/")
	if name == "" {
		if q := strings.TrimSpace(r.URL.Query().Get("subreddit")); q != "" {
			http.Redirect(w, r, "/overlaps/"+q, http.StatusFound)
			return
		}
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		s.renderError(w, http.StatusBadRequest, err)
		return
	}

	l, err := s.network(r.URL.Query().Get("period"))
	if err != nil {
		s.renderError(w, statusFor(err), err)
		return
	}
	overlaps, err := l.net.StrongestOverlaps(name)
	if err != nil {
		s.renderError(w, statusFor(err), err)
		return
	}

	s.render(w, http.StatusOK, "overlaps.html", map[string]any{
		"Subreddit": name,
		"Build":     l.build,
		"Report":    overlapReport(name, l, truncate(overlaps, limit)),
	})
}

func (s *Server) handleAPIOverlaps(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/overlaps/")
	if name == "" {
		writeJSONError(w, http.StatusBadRequest, errors.New("subreddit is required"))
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	l, err := s.network(r.URL.Query().Get("period"))
	if err != nil {
		writeJSONError(w, statusFor(err), err)
		return
	}
	overlaps, err := l.net.StrongestOverlaps(name)
	if err != nil {
		writeJSONError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"subreddit": name,
		"period":    l.build.PeriodID,
		"build":     l.build.Key,
		"overlaps":  truncate(overlaps, limit),
	})
}

func (s *Server) handleAPIPairs(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	l, err := s.network(r.URL.Query().Get("period"))
	if err != nil {
		writeJSONError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"period": l.build.PeriodID,
		"build":  l.build.Key,
		"pairs":  l.net.TopPairs(limit),
	})
}

// network returns the latest build for period (any period when empty),
// loading its artifacts on first use.
func (s *Server) network(period string) (*loaded, error) {
	b, err := s.db.GetLatestBuild(period)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, errNoBuild
	}

	if v, ok := s.networks.Get(b.Key); ok {
		return v.(*loaded), nil
	}

	n, err := artifact.Load(artifact.PathsIn(b.Dir))
	if err != nil {
		return nil, err
	}
	rows, err := s.db.GetSubredditTotals(b.Key)
	if err != nil {
		return nil, err
	}
	totals := make(map[string]int64, len(rows))
	for _, t := range rows {
		totals[t.Name] = t.TotalComments
	}

	l := &loaded{build: b, net: n, totals: totals}
	s.networks.SetDefault(b.Key, l)
	log.Debugf("loaded network %s (%d subreddits)", b.Key[:min(12, len(b.Key))], n.Len())
	return l, nil
}

// overlapReport renders the ranking as markdown for the overlaps page.
func overlapReport(name string, l *loaded, overlaps []network.Overlap) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## r/%s\n\n", escapeMarkdown(name))
	if total, ok := l.totals[name]; ok {
		fmt.Fprintf(&sb, "%s comments after filtering, %s subreddits in the network.\n\n",
			humanize.Comma(total), humanize.Comma(int64(l.net.Len())))
	}
	if len(overlaps) == 0 {
		sb.WriteString("No other subreddits in this network.\n")
		return sb.String()
	}

	sb.WriteString("| # | Subreddit | Weight | Comments |\n|---:|---|---:|---:|\n")
	for i, o := range overlaps {
		comments := ""
		if total, ok := l.totals[o.Subreddit]; ok {
			comments = humanize.Comma(total)
		}
		fmt.Fprintf(&sb, "| %d | [r/%s](%s) | %s | %s |\n",
			i+1, escapeMarkdown(o.Subreddit), overlapsHref(o.Subreddit),
			strconv.FormatFloat(o.Weight, 'g', 6, 64), comments)
	}
	return sb.String()
}

// markdownEscaper backslash-escapes the punctuation that would otherwise
// split a table cell or open inline markup.
var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"|", `\|`,
	"[", `\[`,
	"]", `\]`,
	"(", `\(`,
	")", `\)`,
	"*", `\*`,
	"_", `\_`,
	"`", "\\`",
	"#", `\#`,
	"<", `\<`,
	">", `\>`,
	"&", `\&`,
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

func overlapsHref(name string) string {
	return "/overlaps/" + strings.ReplaceAll(url.PathEscape(name), "&", "%26")
}

func parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid limit %q", v)
	}
	return n, nil
}

// truncate keeps the first limit overlaps. Zero keeps all.
func truncate(o []network.Overlap, limit int) []network.Overlap {
	if limit > 0 && limit < len(o) {
		return o[:limit]
	}
	return o
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, network.ErrUnknownSubreddit):
		return http.StatusNotFound
	case errors.Is(err, errNoBuild), errors.Is(err, artifact.ErrNotFound):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Errorf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Errorf("Error rendering template %s: %v", name, err)
	}
}

func (s *Server) renderError(w http.ResponseWriter, status int, err error) {
	if status == http.StatusInternalServerError {
		log.Errorf("request failed: %v", err)
	}
	s.render(w, status, "error.html", map[string]any{
		"Status":  status,
		"Message": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("encoding response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	if status == http.StatusInternalServerError {
		log.Errorf("request failed: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// builtSince turns a SQLite datetime into "3 hours ago".
func builtSince(s *string) string {
	if s == nil {
		return ""
	}
	t, err := time.Parse(time.DateTime, *s)
	if err != nil {
		return *s
	}
	return humanize.Time(t)
}

// Serve starts the HTTP server on the given port.
func Serve(db *database.DB, port int, ttl time.Duration) error {
	srv, err := New(db, ttl)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Infof("Server listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
