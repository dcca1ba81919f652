package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/xab-mack/contractscan/internal/model"
)

// window is the number of findings listed at once.
const window = 15

type modelT struct {
	res      *model.ScanResult
	cursor   int
	offset   int
	expanded bool
}

func initialModel(res *model.ScanResult) modelT { return modelT{res: res} }

func (m modelT) Init() tea.Cmd { return nil }

func (m modelT) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	n := len(m.res.Findings)
	switch key.String() {
	case "q", "esc", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < n-1 {
			m.cursor++
		}
	case "home", "g":
		m.cursor = 0
	case "end", "G":
		if n > 0 {
			m.cursor = n - 1
		}
	case "enter", " ":
		m.expanded = !m.expanded
	}
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+window {
		m.offset = m.cursor - window + 1
	}
	return m, nil
}

func (m modelT) View() string {
	var b strings.Builder
	s := m.res.Summary
	fmt.Fprintf(&b, "Findings (%d) in %d files, risk score %.2f\n\n", s.Total, s.Files, s.RiskScore)
	if len(m.res.Findings) == 0 {
		b.WriteString("  no findings\n")
	}
	end := min(m.offset+window, len(m.res.Findings))
	for i := m.offset; i < end; i++ {
		f := m.res.Findings[i]
		marker := "  "
		if i == m.cursor {
			marker = "> "
		}
		fmt.Fprintf(&b, "%s%-8s %s %s:%d %s\n", marker, f.Severity, f.RuleID, f.File, f.StartLine, f.Message)
		if i == m.cursor && m.expanded {
			if f.Entity != "" {
				fmt.Fprintf(&b, "      in %s\n", f.Entity)
			}
			for _, line := range strings.Split(f.Snippet, "\n") {
				if line != "" {
					fmt.Fprintf(&b, "      | %s\n", line)
				}
			}
			if f.Fix != "" {
				fmt.Fprintf(&b, "      fix: %s\n", f.Fix)
			}
		}
	}
	b.WriteString("\n↑/↓ move • enter details • q quit\n")
	return b.String()
}

// Run launches the findings browser.
func Run(res *model.ScanResult) error {
	p := tea.NewProgram(initialModel(res))
	_, err := p.Run()
	return err
}
