// ABOUTME: Flattens assistant markdown into plain terminal text
// ABOUTME: Walks the goldmark AST keeping list markers, code indentation and link targets

package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

type listState struct {
	ordered bool
	next    int
}

type plainWriter struct {
	source      []byte
	b           bytes.Buffer
	lists       []listState
	atItemStart bool
}

// Markdown renders src as plain text. Headings and paragraphs are separated
// by blank lines, list items keep their markers, code blocks are indented by
// four spaces and links are followed by their target in parentheses.
func Markdown(src string) string {
	source := []byte(src)
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))

	w := &plainWriter{source: source}
	_ = ast.Walk(doc, w.visit)
	return strings.TrimRight(w.b.String(), "\n ")
}

func (w *plainWriter) visit(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading, *ast.Paragraph:
		if entering {
			w.blockStart()
		} else {
			w.ensureNewline()
		}

	case *ast.TextBlock:
		if entering {
			w.atItemStart = false
		} else {
			w.ensureNewline()
		}

	case *ast.List:
		if entering {
			if len(w.lists) == 0 {
				w.blockStart()
			}
			w.lists = append(w.lists, listState{ordered: node.IsOrdered(), next: node.Start})
		} else {
			w.lists = w.lists[:len(w.lists)-1]
			w.atItemStart = false
		}

	case *ast.ListItem:
		if entering {
			w.ensureNewline()
			w.atItemStart = false
			top := &w.lists[len(w.lists)-1]
			w.b.WriteString(strings.Repeat("  ", len(w.lists)-1))
			if top.ordered {
				fmt.Fprintf(&w.b, "%d. ", top.next)
				top.next++
			} else {
				w.b.WriteString("• ")
			}
			w.atItemStart = true
		}

	case *ast.FencedCodeBlock, *ast.CodeBlock:
		if entering {
			w.blockStart()
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				w.b.WriteString("    ")
				w.b.Write(seg.Value(w.source))
			}
			w.ensureNewline()
		}
		return ast.WalkSkipChildren, nil

	case *ast.ThematicBreak:
		if entering {
			w.blockStart()
			w.b.WriteString("────────\n")
		}

	case *ast.Text:
		if entering {
			w.b.Write(node.Segment.Value(w.source))
			switch {
			case node.HardLineBreak():
				w.b.WriteByte('\n')
			case node.SoftLineBreak():
				w.b.WriteByte(' ')
			}
		}

	case *ast.String:
		if entering {
			w.b.Write(node.Value)
		}

	case *ast.Link:
		if !entering && len(node.Destination) > 0 {
			fmt.Fprintf(&w.b, " (%s)", node.Destination)
		}

	case *ast.AutoLink:
		if entering {
			w.b.Write(node.URL(w.source))
		}
		return ast.WalkSkipChildren, nil

	case *ast.HTMLBlock, *ast.RawHTML:
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}

// blockStart separates a new block from the previous one: a blank line at
// top level, a plain newline inside lists. The first block of a list item
// continues on the marker's line.
func (w *plainWriter) blockStart() {
	if w.atItemStart {
		w.atItemStart = false
		return
	}
	w.ensureNewline()
	if len(w.lists) == 0 && w.b.Len() > 0 && !bytes.HasSuffix(w.b.Bytes(), []byte("\n\n")) {
		w.b.WriteByte('\n')
	}
}

func (w *plainWriter) ensureNewline() {
	if w.b.Len() > 0 && !bytes.HasSuffix(w.b.Bytes(), []byte("\n")) {
		w.b.WriteByte('\n')
	}
}
