// Package linkcheck verifies that the relative links in rendered pages point
// at files that exist in the output directory.
package linkcheck

import (
	"bytes"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"golang.org/x/net/html"

	"git.home.luguber.info/inful/apitree/internal/foundation/errors"
)

// ExtractMarkdown returns the destinations of inline links, images and
// reference definitions in a markdown body, in document order.
func ExtractMarkdown(body []byte) []string {
	md := goldmark.New()
	ctx := parser.NewContext()
	root := md.Parser().Parse(text.NewReader(body), parser.WithContext(ctx))

	var out []string
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *gmast.Link:
			out = append(out, string(node.Destination))
		case *gmast.Image:
			out = append(out, string(node.Destination))
		}
		return gmast.WalkContinue, nil
	})

	// Reference definitions live in the parse context, not the AST.
	refs := ctx.References()
	sort.Slice(refs, func(i, j int) bool {
		return string(refs[i].Label()) < string(refs[j].Label())
	})
	for _, ref := range refs {
		out = append(out, string(ref.Destination()))
	}
	return out
}

// ExtractHTML returns the href/src destinations of a, img, link and script elements.
func ExtractHTML(r io.Reader) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryValidation, "failed to parse HTML").
			WithSeverity(errors.SeverityError).
			Build()
	}

	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "a", "link":
				if href := getAttr(n, "href"); href != "" {
					out = append(out, href)
				}
			case "img", "script":
				if src := getAttr(n, "src"); src != "" {
					out = append(out, src)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out, nil
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// stripFrontMatter drops a leading "---" YAML block.
func stripFrontMatter(content []byte) []byte {
	if !bytes.HasPrefix(content, []byte("---\n")) {
		return content
	}
	rest := content[4:]
	if end := bytes.Index(rest, []byte("\n---\n")); end >= 0 {
		return rest[end+5:]
	}
	return content
}

// localTarget reports the path part of dest when dest is a relative link
// into the site. Absolute URLs, site-absolute paths and pure fragments are
// not checked.
func localTarget(dest string) (string, bool) {
	dest = strings.TrimSpace(dest)
	if dest == "" || strings.HasPrefix(dest, "#") || strings.HasPrefix(dest, "/") {
		return "", false
	}
	u, err := url.Parse(dest)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "", false
	}
	if u.Path == "" {
		return "", false
	}
	return u.Path, true
}
