package render

import (
	"bytes"
	"embed"
	htmltemplate "html/template"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	texttemplate "text/template"

	"github.com/yuin/goldmark"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/apitree/internal/foundation/errors"
	"git.home.luguber.info/inful/apitree/internal/links"
	"git.home.luguber.info/inful/apitree/internal/tree"
)

//go:embed templates
var builtinFS embed.FS

// Format is the output language of a template set.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// Ext returns the page extension for f.
func (f Format) Ext() string {
	if f == FormatHTML {
		return ".html"
	}
	return ".md"
}

const (
	nodeTemplate     = "node.tmpl"
	indexTemplate    = "index.tmpl"
	partialsTemplate = "partials.tmpl"
	setManifest      = "set.yaml"

	defaultTOCDepth = 2
)

// Options tunes page construction.
type Options struct {
	// TOCDepth limits how many levels of descendants the TOC lists (default 2).
	TOCDepth int
}

func (o Options) tocDepth() int {
	if o.TOCDepth <= 0 {
		return defaultTOCDepth
	}
	return o.TOCDepth
}

// setConfig is the optional set.yaml inside a template directory.
type setConfig struct {
	Format      Format `yaml:"format"`
	Ext         string `yaml:"ext"`
	FrontMatter *bool  `yaml:"front_matter"`
}

type executor interface {
	ExecuteTemplate(w io.Writer, name string, data any) error
}

// Set is a loaded template set. It implements Template and is safe for
// concurrent use.
type Set struct {
	name        string
	format      Format
	ext         string
	frontMatter bool
	hasIndex    bool
	exec        executor
	md          goldmark.Markdown
	opts        Options
}

// Builtins lists the built-in set names.
func Builtins() []string { return []string{string(FormatMarkdown), string(FormatHTML)} }

// Load resolves name to a built-in set or a directory containing node.tmpl
// (optionally index.tmpl, partials.tmpl and set.yaml). Missing sets and
// templates that do not parse are config errors.
func Load(name string, opts Options) (*Set, error) {
	if name == "" {
		name = string(FormatMarkdown)
	}
	switch Format(name) {
	case FormatMarkdown, FormatHTML:
		sub, err := fs.Sub(builtinFS, "templates/"+name)
		if err != nil {
			return nil, errors.InternalError("embedded template set missing").WithCause(err).WithContext("template", name).Build()
		}
		return newSet(name, setConfig{Format: Format(name)}, nil, sub, opts)
	}

	info, err := os.Stat(name)
	if err != nil || !info.IsDir() {
		return nil, errors.ConfigError("template set not found").
			WithCause(err).
			WithContext("template", name).
			WithContext("builtins", strings.Join(Builtins(), ",")).
			Build()
	}
	dir := os.DirFS(name)
	if _, err := fs.Stat(dir, nodeTemplate); err != nil {
		return nil, errors.ConfigError("template set has no node.tmpl").WithCause(err).WithContext("template", name).Build()
	}

	cfg := setConfig{Format: FormatMarkdown}
	if data, err := fs.ReadFile(dir, setManifest); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.ConfigError("invalid set.yaml").WithCause(err).WithContext("template", name).Build()
		}
	}
	if cfg.Format != FormatMarkdown && cfg.Format != FormatHTML {
		return nil, errors.ConfigError("unknown template format").
			WithContext("template", name).
			WithContext("format", string(cfg.Format)).
			Build()
	}
	base, err := fs.Sub(builtinFS, "templates/"+string(cfg.Format))
	if err != nil {
		return nil, errors.InternalError("embedded template set missing").WithCause(err).Build()
	}
	return newSet(name, cfg, base, dir, opts)
}

// newSet parses base partials (if any) and then every template file of
// files so a directory set can reuse or override the built-in partials.
func newSet(name string, cfg setConfig, base, files fs.FS, opts Options) (*Set, error) {
	s := &Set{
		name:        name,
		format:      cfg.Format,
		ext:         cfg.Ext,
		frontMatter: cfg.Format == FormatMarkdown,
		md:          goldmark.New(),
		opts:        opts,
	}
	if s.ext == "" {
		s.ext = cfg.Format.Ext()
	}
	if !strings.HasPrefix(s.ext, ".") {
		s.ext = "." + s.ext
	}
	if cfg.FrontMatter != nil {
		s.frontMatter = *cfg.FrontMatter && cfg.Format == FormatMarkdown
	}

	type source struct {
		fsys fs.FS
		file string
	}
	var sources []source
	if base != nil {
		sources = append(sources, source{base, partialsTemplate})
	}
	for _, f := range []string{partialsTemplate, nodeTemplate, indexTemplate} {
		if _, err := fs.Stat(files, f); err == nil {
			sources = append(sources, source{files, f})
			if f == indexTemplate {
				s.hasIndex = true
			}
		}
	}

	var textT *texttemplate.Template
	var htmlT *htmltemplate.Template
	if s.format == FormatHTML {
		htmlT = htmltemplate.New(name).Funcs(htmltemplate.FuncMap(funcs()))
	} else {
		textT = texttemplate.New(name).Funcs(funcs())
	}
	for _, src := range sources {
		data, err := fs.ReadFile(src.fsys, src.file)
		if err != nil {
			return nil, errors.ConfigError("read template").WithCause(err).WithContext("template", filepath.Join(name, src.file)).Build()
		}
		if htmlT != nil {
			_, err = htmlT.New(src.file).Parse(string(data))
		} else {
			_, err = textT.New(src.file).Parse(string(data))
		}
		if err != nil {
			return nil, errors.ConfigError("template does not parse").WithCause(err).WithContext("template", filepath.Join(name, src.file)).Build()
		}
	}
	if htmlT != nil {
		s.exec = htmlT
	} else {
		s.exec = textT
	}
	return s, nil
}

func funcs() map[string]any {
	return map[string]any{
		"title": titleCase,
		"join":  strings.Join,
		"trim":  strings.TrimSpace,
		"add":   func(a, b int) int { return a + b },
	}
}

// Name returns the set's name or directory.
func (s *Set) Name() string { return s.name }

// Format returns the set's output format.
func (s *Set) Format() Format { return s.format }

// Ext returns the page extension the set produces.
func (s *Set) Ext() string { return s.ext }

// Render implements Template.
func (s *Set) Render(node *tree.ModuleNode, children []*tree.ModuleNode, table *links.Table) ([]byte, error) {
	page := NewPage(node, children, table, s.opts)
	if s.format == FormatHTML && page.Docstring != "" {
		var buf bytes.Buffer
		if err := s.md.Convert([]byte(page.Docstring), &buf); err != nil {
			return nil, s.renderError(node, err)
		}
		// #nosec G203 -- goldmark escapes raw HTML by default
		page.DocHTML = htmltemplate.HTML(buf.String())
	}

	name := nodeTemplate
	if page.IsRoot && s.hasIndex {
		name = indexTemplate
	}
	var buf bytes.Buffer
	if err := s.exec.ExecuteTemplate(&buf, name, page); err != nil {
		return nil, s.renderError(node, err)
	}
	body := []byte(strings.TrimSpace(buf.String()) + "\n")
	if !s.frontMatter {
		return body, nil
	}
	out, err := withFrontMatter(frontMatterFields(page), body)
	if err != nil {
		return nil, s.renderError(node, err)
	}
	return out, nil
}

func (s *Set) renderError(node *tree.ModuleNode, err error) error {
	label := node.DottedName
	if label == "" {
		label = node.ShortName
	}
	return errors.RenderError("template execution failed").
		WithCause(err).
		WithContext("dotted_name", label).
		WithContext("template", s.name).
		Build()
}
