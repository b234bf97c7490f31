package server

import (
	"html/template"
	"net/http"
	"strconv"

	"github.com/abramin/symdex/internal/i18n"
	"github.com/abramin/symdex/internal/store"
	"github.com/abramin/symdex/internal/vector"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="{{.Lang}}">
<head>
    <meta charset="utf-8">
    <title>{{.T "TITLE"}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            max-width: 960px;
            margin: 40px auto;
            padding: 20px;
            background: #1a1a1a;
            color: #e5e5e5;
        }
        h1 { color: #60a5fa; }
        a { color: #60a5fa; }
        form { background: #2a2a2a; padding: 16px; border-radius: 8px; margin-bottom: 16px; }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 4px 8px; border-bottom: 1px solid #333; }
        .muted { color: #9ca3af; }
    </style>
</head>
<body>
    <h1>{{.T "TITLE"}}</h1>
    <p class="muted">{{.Summary}}</p>
    <p class="muted">{{.T "LABEL_LANGUAGE"}}:
    {{range .Languages}} <a href="/?lang={{.}}">{{.}}</a>{{end}}
    </p>

    <form method="get" action="/">
        <input type="hidden" name="lang" value="{{.Lang}}">
        <label>{{.T "LABEL_SEARCH"}} <input name="q" value="{{.Query}}"></label>
        <button type="submit">{{.T "BUTTON_SEARCH"}}</button>
    </form>
    {{if .Query}}
    <table>
        <tr><th>{{.T "HEADER_NAME"}}</th><th>{{.T "HEADER_KIND"}}</th><th>{{.T "HEADER_FILE"}}</th></tr>
        {{range .Hits}}<tr><td>{{.Name}}</td><td>{{.Kind}}</td><td>{{.FilePath}}</td></tr>
        {{else}}<tr><td colspan="3" class="muted">{{$.T "STATUS_NO_RESULTS"}}</td></tr>{{end}}
    </table>
    {{end}}

    {{if .SemanticEnabled}}
    <form method="get" action="/">
        <input type="hidden" name="lang" value="{{.Lang}}">
        <label>{{.T "LABEL_SEMANTIC"}} <input name="s" value="{{.Semantic}}"></label>
        <button type="submit">{{.T "BUTTON_SEMANTIC"}}</button>
    </form>
    {{if .Semantic}}
    <table>
        <tr><th>{{.T "HEADER_NAME"}}</th><th>{{.T "HEADER_FILE"}}</th><th>{{.T "HEADER_SCORE"}}</th></tr>
        {{range .Matches}}<tr><td>{{.Symbol}}</td><td>{{.Source}}</td><td>{{printf "%.3f" .Score}}</td></tr>
        {{else}}<tr><td colspan="3" class="muted">{{$.T "STATUS_NO_RESULTS"}}</td></tr>{{end}}
    </table>
    {{end}}
    {{end}}

    <h3>{{.T "HEADER_RECENT"}}</h3>
    <table>
        {{range .Recent}}<tr><td><a href="/api/file?path={{.Path}}">{{.RelativePath}}</a></td><td class="muted">{{.LastUpdated.Format "2006-01-02 15:04:05"}}</td></tr>
        {{else}}<tr><td class="muted">{{$.T "STATUS_NO_RESULTS"}}</td></tr>{{end}}
    </table>
</body>
</html>
`))

const recentOnPage = 10

type pageData struct {
	Lang            string
	Languages       []string
	Summary         string
	Query           string
	Hits            []store.SearchHit
	SemanticEnabled bool
	Semantic        string
	Matches         []vector.Match
	Recent          []*store.File

	bundle *i18n.Bundle
}

// T looks up a WEB string in the page language.
func (p pageData) T(key string) string {
	return p.bundle.Lookup(p.Lang, "WEB", key)
}

// handlePage renders the browser page. Search results are rendered on the
// server so the page works without scripts.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	q := r.URL.Query()
	data := pageData{
		Lang:            s.language(r),
		Languages:       s.bundle.Languages(),
		Query:           q.Get("q"),
		SemanticEnabled: s.vectors != nil,
		bundle:          s.bundle,
	}

	stats, err := s.store.GetStats(ctx)
	if err != nil {
		s.logger.Error("loading stats", "error", err)
		http.Error(w, "failed to load stats", http.StatusInternalServerError)
		return
	}
	data.Summary = s.bundle.Format(data.Lang, "WEB", "STATS_SUMMARY", map[string]any{
		"files":   strconv.Itoa(stats.FileCount),
		"symbols": strconv.Itoa(stats.SymbolCount),
	})

	if data.Recent, err = s.store.RecentFiles(ctx, recentOnPage); err != nil {
		s.logger.Error("loading recent files", "error", err)
	}
	if data.Query != "" {
		if data.Hits, err = s.store.SearchSymbols(ctx, data.Query, 50); err != nil {
			s.logger.Error("searching symbols", "query", data.Query, "error", err)
		}
	}
	if data.SemanticEnabled {
		data.Semantic = q.Get("s")
		if data.Semantic != "" {
			if data.Matches, err = s.vectors.Query(ctx, data.Semantic, 10, nil); err != nil {
				s.logger.Error("semantic query", "query", data.Semantic, "error", err)
			}
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, data); err != nil {
		s.logger.Error("rendering page", "error", err)
	}
}
