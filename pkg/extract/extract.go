// Package extract turns uploaded knowledge documents into plain text
// suitable for folding into a system instruction. It handles plain text,
// markdown, and HTML by stripping markup rather than parsing it; anything
// else is rejected.
package extract

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ErrUnsupported is wrapped into errors for file types extraction cannot
// handle.
var ErrUnsupported = fmt.Errorf("unsupported document type")

var (
	htmlTagRe     = regexp.MustCompile(`(?s)<[^>]*>`)
	htmlScriptRe  = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	mdHeadingRe   = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdEmphasisRe  = regexp.MustCompile(`(\*{1,3}|_{1,3}|~~)`)
	mdLinkRe      = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdImageRe     = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	mdCodeFenceRe = regexp.MustCompile("(?m)^```[^\n]*$")
	blankRunsRe   = regexp.MustCompile(`\n{3,}`)
)

// FromFile extracts text based on the file extension.
func FromFile(name string, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s is not valid UTF-8 text", ErrUnsupported, name)
	}
	text := string(data)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", "":
		return normalize(text), nil
	case ".md", ".markdown":
		return Markdown(text), nil
	case ".html", ".htm":
		return HTML(text), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(name))
	}
}

// Markdown strips markdown syntax, keeping link text and heading content.
func Markdown(text string) string {
	text = mdImageRe.ReplaceAllString(text, "")
	text = mdLinkRe.ReplaceAllString(text, "$1")
	text = mdCodeFenceRe.ReplaceAllString(text, "")
	text = mdHeadingRe.ReplaceAllString(text, "")
	text = mdEmphasisRe.ReplaceAllString(text, "")
	return normalize(text)
}

// HTML removes script/style blocks and tags, then collapses whitespace.
func HTML(text string) string {
	text = htmlScriptRe.ReplaceAllString(text, " ")
	text = htmlTagRe.ReplaceAllString(text, " ")
	text = strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	).Replace(text)
	return normalize(text)
}

func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	text = strings.Join(lines, "\n")
	text = blankRunsRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
