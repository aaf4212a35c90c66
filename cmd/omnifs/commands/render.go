// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/lipgloss/tree"

	"github.com/bureau-foundation/omnifs/lib/engine"
	"github.com/bureau-foundation/omnifs/lib/namespace"
)

// timeLayout renders persisted timestamps in CLI output.
const timeLayout = "2006-01-02 15:04:05"

// styles holds the lipgloss styles for one output stream. The
// renderer detects the stream's color support, so output written to
// a pipe or buffer is plain text.
type styles struct {
	renderer  *lipgloss.Renderer
	directory lipgloss.Style
	file      lipgloss.Style
	muted     lipgloss.Style
	header    lipgloss.Style
	errorText lipgloss.Style
	warning   lipgloss.Style
	ok        lipgloss.Style
}

func newStyles(w io.Writer) styles {
	renderer := lipgloss.NewRenderer(w)
	return styles{
		renderer:  renderer,
		directory: renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		file:      renderer.NewStyle(),
		muted:     renderer.NewStyle().Foreground(lipgloss.Color("8")),
		header:    renderer.NewStyle().Bold(true),
		errorText: renderer.NewStyle().Foreground(lipgloss.Color("9")),
		warning:   renderer.NewStyle().Foreground(lipgloss.Color("11")),
		ok:        renderer.NewStyle().Foreground(lipgloss.Color("10")),
	}
}

// newTable returns a bordered table with a bold header row.
func (s styles) newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(s.muted).
		Headers(headers...).
		StyleFunc(func(row, column int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.header.Padding(0, 1)
			}
			return s.renderer.NewStyle().Padding(0, 1)
		})
}

// entryLabel is the display name of an entry in ls and tree output.
func (s styles) entryLabel(entry namespace.Entry) string {
	if entry.IsDir() {
		return s.directory.Render(entry.Name + "/")
	}
	return s.file.Render(entry.Name) + s.muted.Render(fmt.Sprintf(" (%d bytes)", entry.Size))
}

// buildTree renders the subtree at path by listing each directory
// through the engine. Children appear in name order.
func (s styles) buildTree(e *engine.Engine, root namespace.Entry) (*tree.Tree, error) {
	label := s.directory.Render(root.Path)
	if root.Path != "/" {
		label = s.entryLabel(root)
	}
	node := tree.Root(label).
		Enumerator(tree.RoundedEnumerator).
		EnumeratorStyle(s.muted)
	if !root.IsDir() {
		return node, nil
	}

	children, err := e.List(root.Path)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		if !child.IsDir() {
			node.Child(s.entryLabel(child))
			continue
		}
		subtree, err := s.buildTree(e, child)
		if err != nil {
			return nil, err
		}
		node.Child(subtree)
	}
	return node, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}
