// Package ui holds the box-drawing helpers used by console output.
package ui

import (
	"strings"
	"unicode/utf8"
)

// Tree hierarchy symbols
const (
	TreeBranch     = "├── "
	TreeLastBranch = "└── "
	TreeContinue   = "│   "
	TreeIndent     = "    "

	BoxTopLeft     = "┌"
	BoxTopRight    = "┐"
	BoxBottomLeft  = "└"
	BoxBottomRight = "┘"
	BoxVertical    = "│"
	BoxHorizontal  = "─"
	BoxTeeRight    = "├"
	BoxTeeLeft     = "┤"
)

// TreePrefix returns the connector for a node at depth (0 is the root), given
// whether each ancestor below the root was the last of its siblings.
func TreePrefix(depth int, isLast bool, ancestorsLast []bool) string {
	if depth == 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i < depth-1; i++ {
		if i < len(ancestorsLast) && ancestorsLast[i] {
			b.WriteString(TreeIndent)
		} else {
			b.WriteString(TreeContinue)
		}
	}
	if isLast {
		b.WriteString(TreeLastBranch)
	} else {
		b.WriteString(TreeBranch)
	}
	return b.String()
}

// TreeLines renders a failure path ("suite", "spec", "expectation") as indented
// tree lines, one per element.
func TreeLines(path []string) []string {
	lines := make([]string, 0, len(path))
	for depth, name := range path {
		lines = append(lines, TreePrefix(depth, true, allTrue(depth))+name)
	}
	return lines
}

func allTrue(n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = true
	}
	return out
}

// BoxHeader creates a box header with the given title, at least width wide.
func BoxHeader(title string, width int) string {
	titleLen := utf8.RuneCountInString(title)
	if width < titleLen+4 {
		width = titleLen + 4
	}
	padding := width - 4 - titleLen

	header := BoxTopLeft + strings.Repeat(BoxHorizontal, width-2) + BoxTopRight + "\n"
	header += BoxVertical + " " + title + strings.Repeat(" ", padding+1) + BoxVertical + "\n"
	header += BoxTeeRight + strings.Repeat(BoxHorizontal, width-2) + BoxTeeLeft + "\n"
	return header
}

func BoxFooter(width int) string {
	if width < 2 {
		width = 2
	}
	return BoxBottomLeft + strings.Repeat(BoxHorizontal, width-2) + BoxBottomRight + "\n"
}

// BoxLine creates a content line within a box, truncating content that does not fit.
func BoxLine(content string, width int) string {
	maxLen := width - 4
	if maxLen < 4 {
		maxLen = 4
	}
	contentLen := utf8.RuneCountInString(content)
	if contentLen > maxLen {
		runes := []rune(content)
		content = string(runes[:maxLen-3]) + "..."
		contentLen = maxLen
	}
	return BoxVertical + " " + content + strings.Repeat(" ", maxLen-contentLen+1) + BoxVertical + "\n"
}
