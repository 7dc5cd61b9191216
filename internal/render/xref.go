package render

import (
	"regexp"
	"strings"

	"git.home.luguber.info/inful/apitree/internal/links"
	"git.home.luguber.info/inful/apitree/internal/tree"
	"git.home.luguber.info/inful/apitree/internal/unit"
)

var xrefRe = regexp.MustCompile("`([A-Za-z_][A-Za-z0-9_]*(?:\\.[A-Za-z_][A-Za-z0-9_]*)*)`")

// RewriteXRefs turns inline-code references to documented names into
// relative markdown links. Names resolve as absolute dotted names first and
// then relative to node and each enclosing scope. Fenced code blocks, text
// already inside link brackets and self references are left alone.
func RewriteXRefs(doc string, node *tree.ModuleNode, table *links.Table) string {
	if doc == "" || !strings.Contains(doc, "`") {
		return doc
	}
	self := node.OutputPath()
	lines := strings.Split(doc, "\n")
	inFence := false
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		lines[i] = rewriteLine(line, node.DottedName, self, table)
	}
	return strings.Join(lines, "\n")
}

func rewriteLine(line, scope, self string, table *links.Table) string {
	matches := xrefRe.FindAllStringSubmatchIndex(line, -1)
	if matches == nil {
		return line
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		name := line[m[2]:m[3]]
		if start > 0 && line[start-1] == '[' || end < len(line) && line[end] == ']' {
			continue
		}
		target, ok := resolveName(name, scope, table)
		if !ok || target == self {
			continue
		}
		b.WriteString(line[last:start])
		b.WriteString("[`" + name + "`](" + links.Rel(self, target) + ")")
		last = end
	}
	b.WriteString(line[last:])
	return b.String()
}

func resolveName(name, scope string, table *links.Table) (string, bool) {
	if p, ok := table.Lookup(name); ok {
		return p, true
	}
	for s := scope; s != ""; s = unit.Parent(s) {
		if p, ok := table.Lookup(s + "." + name); ok {
			return p, true
		}
	}
	return "", false
}
