package ui

import (
	"strings"

	"golang.org/x/net/html"
)

// maxSnippetWords bounds snippets shown under a source.
const maxSnippetWords = 40

// SnippetText turns a backend snippet, which may carry search-engine
// highlighting markup, into a short line of plain text.
func SnippetText(snippet string) string {
	if !strings.ContainsAny(snippet, "<&") {
		return truncateWords(cleanText(snippet), maxSnippetWords)
	}

	nodes, err := html.ParseFragment(strings.NewReader(snippet), &html.Node{
		Type: html.ElementNode,
		Data: "div",
	})
	if err != nil {
		return truncateWords(cleanText(snippet), maxSnippetWords)
	}

	var text strings.Builder
	for _, n := range nodes {
		collectText(n, &text)
	}
	return truncateWords(cleanText(text.String()), maxSnippetWords)
}

// collectText appends the visible text under n, skipping script and style
func collectText(n *html.Node, text *strings.Builder) {
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return
	}
	if n.Type == html.TextNode {
		text.WriteString(n.Data)
		text.WriteString(" ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, text)
	}
}

func cleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func truncateWords(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return text
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
