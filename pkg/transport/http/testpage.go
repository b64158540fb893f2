package http

import (
	"html/template"
	"net/http"
	"sort"

	"github.com/rhuss/wandel/pkg/catalog"
	"github.com/rhuss/wandel/pkg/debug"
)

// testOptionRows is the number of free-form option rows on the test page.
const testOptionRows = 6

var testPage = template.Must(template.New("test").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h2>{{.Title}}</h2>
<form method="POST" enctype="multipart/form-data" action="/test">
<table>
<tr><td>file *</td><td><input type="file" name="file"></td></tr>
<tr><td>sourceMimetype</td><td><input type="text" name="sourceMimetype" list="mimetypes"></td></tr>
<tr><td>targetMimetype *</td><td><input type="text" name="targetMimetype" list="mimetypes"></td></tr>
{{range .Rows}}<tr><td><input type="text" name="name{{.}}" list="options"></td><td><input type="text" name="value{{.}}"></td></tr>
{{end}}<tr><td></td><td><input type="submit" value="Transform"></td></tr>
</table>
<datalist id="mimetypes">{{range .Mimetypes}}<option value="{{.}}">{{end}}</datalist>
<datalist id="options">{{range .Options}}<option value="{{.}}">{{end}}</datalist>
</form>
<p><a href="/log">Log entries</a> <a href="/transform/config?configVersion=2">Transform config</a> <a href="/ready">Ready</a> <a href="/live">Live</a></p>
</body>
</html>
`))

type testPageData struct {
	Title     string
	Rows      []int
	Mimetypes []string
	Options   []string
}

// handleTestPage handles GET / with a form that posts to /test. The
// suggestions come from the loaded catalog.
func (a *Adapter) handleTestPage(w http.ResponseWriter, _ *http.Request) {
	data := testPageData{Title: a.config.EngineName + " Test Page"}
	for i := range testOptionRows {
		data.Rows = append(data.Rows, i)
	}
	if cfg, err := a.catalog.TransformConfig(1); err == nil {
		data.Mimetypes, data.Options = suggestions(cfg)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := testPage.Execute(w, data); err != nil {
		debug.Log("transport", "rendering test page failed", "error", err)
	}
}

// suggestions lists the mimetypes and option names a catalog knows about.
func suggestions(cfg catalog.TransformConfig) (mimetypes, options []string) {
	seenTypes := make(map[string]bool)
	for _, t := range cfg.Transformers {
		for _, s := range t.Supported {
			seenTypes[s.SourceMediaType] = true
			seenTypes[s.TargetMediaType] = true
		}
	}
	seenOptions := make(map[string]bool)
	for _, opts := range cfg.TransformOptions {
		collectNames(opts, seenOptions)
	}
	return sortedKeys(seenTypes), sortedKeys(seenOptions)
}

func collectNames(opts catalog.Options, seen map[string]bool) {
	for _, o := range opts {
		switch o := o.(type) {
		case catalog.OptionValue:
			seen[o.Name] = true
		case catalog.OptionGroup:
			collectNames(o.Options, seen)
		}
	}
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		if k != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
