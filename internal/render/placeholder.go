package render

import (
	"fmt"
	"html"
	"strings"

	"git.home.luguber.info/inful/apitree/internal/tree"
)

// Placeholder produces the markdown page written in place of a node whose
// rendering failed, so links to it keep resolving.
func Placeholder(node *tree.ModuleNode, err error) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", node.ShortName)
	if node.DottedName != "" {
		fmt.Fprintf(&b, "`%s`\n\n", node.DottedName)
	}
	fmt.Fprintf(&b, "> Documentation for this unit could not be rendered: %s\n", oneLine(err))
	return []byte(b.String())
}

// Placeholder produces a failure page in the set's format.
func (s *Set) Placeholder(node *tree.ModuleNode, err error) []byte {
	if s.format != FormatHTML {
		return Placeholder(node, err)
	}
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n</head>\n<body>\n", html.EscapeString(node.ShortName))
	fmt.Fprintf(&b, "<h1>%s</h1>\n", html.EscapeString(node.ShortName))
	fmt.Fprintf(&b, "<p class=\"render-error\">Documentation for this unit could not be rendered: %s</p>\n", html.EscapeString(oneLine(err)))
	b.WriteString("</body>\n</html>\n")
	return []byte(b.String())
}

func oneLine(err error) string {
	if err == nil {
		return "unknown error"
	}
	return strings.Join(strings.Fields(err.Error()), " ")
}
