package render

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var whitespace = regexp.MustCompile(`[ \t\r\n\f]+`)

// toMarkdown converts a block's children into Markdown.
func toMarkdown(n *html.Node) string {
	return tidy(children(n))
}

func children(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		s := convert(c)
		if c.Type == html.TextNode && (sb.Len() == 0 || strings.HasSuffix(sb.String(), "\n")) {
			s = strings.TrimLeft(s, " ")
		}
		sb.WriteString(s)
	}
	return sb.String()
}

func convert(n *html.Node) string {
	switch n.Type {
	case html.TextNode:
		return whitespace.ReplaceAllString(n.Data, " ")
	case html.ElementNode:
	default:
		return ""
	}

	if n.Data == "math" {
		tex := strings.TrimSpace(textContent(n))
		if tex == "" {
			return ""
		}
		if attr(n, "display") == "block" {
			return "\n\n$$" + tex + "$$\n\n"
		}
		return "$" + tex + "$"
	}

	switch n.DataAtom {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		level := int(n.Data[1] - '0')
		text := collapse(children(n))
		if text == "" {
			return ""
		}
		return "\n\n" + strings.Repeat("#", level) + " " + text + "\n\n"
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Header, atom.Footer, atom.Figure, atom.Figcaption:
		return block(strings.TrimSpace(children(n)))
	case atom.Blockquote:
		inner := tidy(children(n))
		if inner == "" {
			return ""
		}
		return block("> " + strings.ReplaceAll(inner, "\n", "\n> "))
	case atom.Br:
		return "\n"
	case atom.Hr:
		return block("---")
	case atom.Strong, atom.B:
		return wrap(children(n), "**")
	case atom.Em, atom.I:
		return wrap(children(n), "*")
	case atom.Code:
		if text := textContent(n); text != "" {
			return "`" + text + "`"
		}
		return ""
	case atom.Pre:
		return "\n\n```\n" + strings.Trim(textContent(n), "\n") + "\n```\n\n"
	case atom.A:
		text := collapse(children(n))
		href := attr(n, "href")
		if href == "" {
			return text
		}
		return "[" + text + "](" + href + ")"
	case atom.Img:
		return "![" + escapeAlt(attr(n, "alt")) + "](" + attr(n, "src") + ")"
	case atom.Ul, atom.Ol:
		return list(n)
	case atom.Table, atom.Sup, atom.Sub:
		var sb strings.Builder
		_ = html.Render(&sb, n)
		if n.DataAtom == atom.Table {
			return block(sb.String())
		}
		return sb.String()
	case atom.Input:
		if attr(n, "type") != "checkbox" {
			return ""
		}
		for _, a := range n.Attr {
			if a.Key == "checked" {
				return "[x] "
			}
		}
		return "[ ] "
	case atom.Script, atom.Style:
		return ""
	}
	return children(n)
}

func list(n *html.Node) string {
	ordered := n.DataAtom == atom.Ol
	num := 1
	if v, err := strconv.Atoi(attr(n, "start")); err == nil {
		num = v
	}

	var sb strings.Builder
	for li := n.FirstChild; li != nil; li = li.NextSibling {
		if li.Type != html.ElementNode || li.DataAtom != atom.Li {
			continue
		}
		marker := "- "
		if ordered {
			marker = fmt.Sprintf("%d. ", num)
			num++
		}
		body := strings.ReplaceAll(tidy(children(li)), "\n\n", "\n")
		body = strings.ReplaceAll(body, "\n", "\n"+strings.Repeat(" ", len(marker)))
		sb.WriteString(marker + body + "\n")
	}
	if sb.Len() == 0 {
		return ""
	}
	return block(strings.TrimRight(sb.String(), "\n"))
}

func block(s string) string {
	if s == "" {
		return ""
	}
	return "\n\n" + s + "\n\n"
}

// wrap applies an inline marker, keeping surrounding spaces outside it.
func wrap(s, marker string) string {
	inner := strings.TrimSpace(s)
	if inner == "" {
		return s
	}
	var lead, trail string
	if strings.HasPrefix(s, " ") {
		lead = " "
	}
	if strings.HasSuffix(s, " ") {
		trail = " "
	}
	return lead + marker + inner + marker + trail
}

// tidy trims trailing spaces and squeezes blank lines outside code fences.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	inFence := false
	blank := 0
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "```") {
			inFence = !inFence
			out = append(out, strings.TrimRight(l, " \t"))
			blank = 0
			continue
		}
		if !inFence {
			l = strings.TrimRight(l, " \t")
			if l == "" {
				blank++
				if blank > 1 {
					continue
				}
			} else {
				blank = 0
			}
		}
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return sb.String()
}

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
