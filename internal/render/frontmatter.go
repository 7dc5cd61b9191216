package render

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/inful/mdfp"
	"gopkg.in/yaml.v3"
)

const fmDelimiter = "---\n"

// ErrNoFrontMatter is returned by SplitFrontMatter for documents without a
// closed YAML header.
var ErrNoFrontMatter = errors.New("document has no yaml front matter")

// frontMatterFields is the header written above every markdown page.
func frontMatterFields(p Page) map[string]any {
	fields := map[string]any{
		"title":  p.Title,
		"weight": p.Weight,
	}
	if p.DottedName != "" {
		fields["dotted_name"] = p.DottedName
	}
	if p.Kind != "" {
		fields["kind"] = p.Kind
	}
	if p.SourceURL != "" {
		fields["source"] = p.SourceURL
	}
	return fields
}

// withFrontMatter prefixes body with a deterministic YAML header carrying an
// mdfp fingerprint of the header fields and the body.
func withFrontMatter(fields map[string]any, body []byte) ([]byte, error) {
	delete(fields, mdfp.FingerprintField)
	header, err := serializeYAML(fields)
	if err != nil {
		return nil, err
	}
	fields[mdfp.FingerprintField] = mdfp.CalculateFingerprintFromParts(strings.TrimSuffix(string(header), "\n"), string(body))
	header, err = serializeYAML(fields)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 2*len(fmDelimiter)+len(header)+len(body))
	out = append(out, fmDelimiter...)
	out = append(out, header...)
	out = append(out, fmDelimiter...)
	return append(out, body...), nil
}

// SplitFrontMatter separates a rendered page into its YAML fields and body.
func SplitFrontMatter(content []byte) (map[string]any, []byte, error) {
	if !bytes.HasPrefix(content, []byte(fmDelimiter)) {
		return nil, content, ErrNoFrontMatter
	}
	rest := content[len(fmDelimiter):]
	idx := bytes.Index(rest, []byte("\n"+fmDelimiter))
	if idx < 0 {
		return nil, content, ErrNoFrontMatter
	}
	var fields map[string]any
	if err := yaml.Unmarshal(rest[:idx+1], &fields); err != nil {
		return nil, content, fmt.Errorf("parse front matter: %w", err)
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, rest[idx+1+len(fmDelimiter):], nil
}

// serializeYAML encodes fields with sorted keys so output is stable.
func serializeYAML(fields map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range keys {
		val, err := scalarNode(fields[k])
		if err != nil {
			return nil, fmt.Errorf("front matter field %s: %w", k, err)
		}
		n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, val)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(n); err != nil {
		_ = enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func scalarNode(v any) (*yaml.Node, error) {
	switch vv := v.(type) {
	case string:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: vv}, nil
	case int:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(vv)}, nil
	case bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(vv)}, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}
