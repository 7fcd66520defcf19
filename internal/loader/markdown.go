package loader

import (
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/FKhadivpour/RAG-Application/internal/models"
)

func loadMarkdown(path string) (models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Document{}, err
	}

	md := goldmark.New()
	reader := text.NewReader(data)
	root := md.Parser().Parse(reader)

	var sb strings.Builder
	var title string
	err = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if _, ok := n.(*ast.Paragraph); ok {
				sb.WriteString("\n\n")
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			heading := string(node.Text(data))
			if title == "" && node.Level == 1 {
				title = heading
			}
			sb.WriteString(heading + "\n\n")
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			sb.Write(node.Segment.Value(data))
			if node.HardLineBreak() || node.SoftLineBreak() {
				sb.WriteString("\n")
			}
		case *ast.FencedCodeBlock:
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				sb.Write(seg.Value(data))
			}
			sb.WriteString("\n")
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return models.Document{}, err
	}

	content := strings.TrimSpace(sb.String())
	if title == "" {
		title = docID(path)
	}
	return models.Document{
		ID:       docID(path),
		Text:     content,
		Metadata: map[string]string{"source": path, "title": title},
	}, nil
}
