// Package text cleans model output for storage and display.
package text

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	gmtext "github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

var (
	// Invisible and bidi control characters models occasionally emit.
	invisibleReplacer = strings.NewReplacer(
		"\u2060", "", "\u180E", "",
		"\u2028", "\n", "\u2029", "\n\n",
		"\u200B", "", "\u200C", "", "\u200D", "",
		"\uFEFF", "", "\u00AD", "",
		"\u202A", "", "\u202B", "", "\u202C", "", "\u202D", "", "\u202E", "",
	)

	controlChars     = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
	multipleNewlines = regexp.MustCompile(`\n{3,}`)
)

// Normalize fixes line endings, drops control and invisible characters,
// trims trailing whitespace on every line and collapses runs of blank lines.
// Indentation is preserved.
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = invisibleReplacer.Replace(s)
	s = controlChars.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t\u00A0")
	}
	s = strings.Join(lines, "\n")

	s = multipleNewlines.ReplaceAllString(s, "\n\n")
	return strings.Trim(s, "\n ")
}

// Plain converts markdown to readable plain text for clients that show
// messages without formatting. Lists keep a "-" marker, links keep their
// target and code is emitted verbatim.
func Plain(md string) string {
	s := Normalize(md)
	if s == "" {
		return ""
	}

	src := []byte(s)
	doc := markdown.Parser().Parse(gmtext.NewReader(src))
	r := plainRenderer{source: src}
	return Normalize(r.blocks(doc))
}

var (
	markdown   = goldmark.New(goldmark.WithExtensions(extension.Strikethrough))
	htmlPolicy = bluemonday.StrictPolicy()
)

type plainRenderer struct {
	source []byte
}

// blocks renders the block children of parent, keeping a blank line only
// where the source had one.
func (r *plainRenderer) blocks(parent ast.Node) string {
	var b strings.Builder
	for c := parent.FirstChild(); c != nil; c = c.NextSibling() {
		s := r.block(c)
		if s == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
			if c.HasBlankPreviousLines() {
				b.WriteByte('\n')
			}
		}
		b.WriteString(s)
	}
	return b.String()
}

func (r *plainRenderer) block(n ast.Node) string {
	switch n := n.(type) {
	case *ast.Paragraph, *ast.TextBlock, *ast.Heading:
		return r.inlines(n)
	case *ast.ThematicBreak:
		return ""
	case *ast.CodeBlock, *ast.FencedCodeBlock:
		return strings.TrimRight(r.lines(n), "\n")
	case *ast.HTMLBlock:
		raw := r.lines(n)
		if n.HasClosure() {
			raw += string(n.ClosureLine.Value(r.source))
		}
		return strings.TrimSpace(stripHTML(raw))
	case *ast.List:
		return r.list(n)
	default:
		return r.blocks(n)
	}
}

func (r *plainRenderer) list(l *ast.List) string {
	sep := "\n"
	if !l.IsTight {
		sep = "\n\n"
	}

	items := make([]string, 0, l.ChildCount())
	i := l.Start
	for c := l.FirstChild(); c != nil; c = c.NextSibling() {
		marker := "- "
		if l.IsOrdered() {
			marker = strconv.Itoa(i) + ". "
			i++
		}
		body := r.blocks(c)
		pad := "\n" + strings.Repeat(" ", len(marker))
		items = append(items, marker+strings.ReplaceAll(body, "\n", pad))
	}
	return strings.Join(items, sep)
}

func (r *plainRenderer) lines(n ast.Node) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(r.source))
	}
	return b.String()
}

func (r *plainRenderer) inlines(parent ast.Node) string {
	var b strings.Builder
	for c := parent.FirstChild(); c != nil; c = c.NextSibling() {
		r.inline(&b, c)
	}
	return b.String()
}

func (r *plainRenderer) inline(b *strings.Builder, n ast.Node) {
	switch n := n.(type) {
	case *ast.Text:
		b.WriteString(html.UnescapeString(string(util.UnescapePunctuations(n.Segment.Value(r.source)))))
		if n.SoftLineBreak() || n.HardLineBreak() {
			b.WriteByte('\n')
		}
	case *ast.String:
		if n.IsCode() {
			b.Write(n.Value)
			return
		}
		b.WriteString(html.UnescapeString(string(n.Value)))
	case *ast.CodeSpan:
		r.codeSpan(b, n)
	case *ast.Link:
		label, dest := r.inlines(n), string(n.Destination)
		if label == "" || label == dest {
			b.WriteString(dest)
			return
		}
		b.WriteString(label + " (" + dest + ")")
	case *ast.AutoLink:
		b.Write(n.Label(r.source))
	case *ast.RawHTML:
		var raw strings.Builder
		for i := 0; i < n.Segments.Len(); i++ {
			seg := n.Segments.At(i)
			raw.Write(seg.Value(r.source))
		}
		b.WriteString(stripHTML(raw.String()))
	default:
		// Emphasis, strikethrough and image alt text keep only their content.
		b.WriteString(r.inlines(n))
	}
}

// codeSpan writes the span content untouched apart from line endings.
func (r *plainRenderer) codeSpan(b *strings.Builder, n *ast.CodeSpan) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		var v []byte
		switch c := c.(type) {
		case *ast.Text:
			v = c.Segment.Value(r.source)
		case *ast.String:
			v = c.Value
		default:
			continue
		}
		if len(v) > 0 && v[len(v)-1] == '\n' {
			b.Write(v[:len(v)-1])
			b.WriteByte(' ')
			continue
		}
		b.Write(v)
	}
}

func stripHTML(s string) string {
	return html.UnescapeString(htmlPolicy.Sanitize(s))
}
