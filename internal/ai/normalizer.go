package ai

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// NormalizeMarkdown flattens markdown to plain text so embedding input is
// not polluted by formatting syntax. Code blocks keep their raw content,
// headings keep their text.
func NormalizeMarkdown(markdown string) string {
	md := goldmark.New()
	reader := text.NewReader([]byte(markdown))
	doc := md.Parser().Parse(reader)

	var parts []string
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *ast.FencedCodeBlock:
			var code strings.Builder
			for i := 0; i < n.Lines().Len(); i++ {
				line := n.Lines().At(i)
				code.Write(line.Value(reader.Source()))
			}
			if txt := strings.TrimSpace(code.String()); txt != "" {
				parts = append(parts, txt)
			}
		default:
			if txt := extractText(node, reader.Source()); txt != "" {
				parts = append(parts, txt)
			}
		}
	}
	if len(parts) == 0 {
		return strings.TrimSpace(markdown)
	}
	return strings.Join(parts, "\n\n")
}

// TruncateForEmbedding bounds text to a provider-safe size, cutting at a
// rune boundary so multi-byte input never ends mid-character.
func TruncateForEmbedding(text string, maxChars int) string {
	if maxChars <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars])
}

func extractText(n ast.Node, source []byte) string {
	var sb strings.Builder
	ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if node.Type() == ast.TypeBlock || node.Type() == ast.TypeInline {
			if node.Kind() == ast.KindText {
				sb.Write(node.(*ast.Text).Segment.Value(source))
				sb.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
