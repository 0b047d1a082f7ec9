package schema

import (
	"fmt"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

var (
	markdownOnce   sync.Once
	markdownParser goldmark.Markdown
)

func getMarkdownParser() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownParser = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return markdownParser
}

// SearchableText returns the plain text the full-text index sees for an
// entry: its title followed by every searchable field.
func (s *Schema) SearchableText(typeName, title string, data map[string]any) string {
	parts := []string{title}
	if t, ok := s.byType[typeName]; ok {
		for _, f := range t.Fields {
			if !f.Searchable {
				continue
			}
			v, ok := data[f.Name]
			if !ok || v == nil {
				continue
			}
			parts = append(parts, fieldText(f.Kind, v))
		}
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

func fieldText(kind FieldKind, v any) string {
	switch kind {
	case KindMarkdown:
		if s, ok := v.(string); ok {
			return MarkdownText(s)
		}
	case KindList:
		items, ok := v.([]any)
		if !ok {
			return ""
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			out = append(out, fieldText(KindText, item))
		}
		return strings.Join(out, " ")
	case KindObject, KindReference:
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case float64, bool, int, int64:
		return fmt.Sprint(x)
	}
	return ""
}

// MarkdownText strips markdown syntax, keeping the words a reader sees.
// Fenced and indented code blocks are dropped.
func MarkdownText(src string) string {
	if src == "" {
		return ""
	}
	source := []byte(src)
	doc := getMarkdownParser().Parser().Parse(text.NewReader(source))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			if entering {
				b.Write(node.Segment.Value(source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					b.WriteByte(' ')
				}
			}
		case *ast.AutoLink:
			if entering {
				b.Write(node.URL(source))
			}
		default:
			if !entering && n.Type() == ast.TypeBlock {
				b.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.Join(strings.Fields(b.String()), " ")
}
