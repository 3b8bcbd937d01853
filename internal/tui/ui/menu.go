package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// menuRows is how many hints fit in one column of the header.
const menuRows = 6

// Menu displays keyboard shortcut hints in columns.
type Menu struct {
	*tview.TextView
	theme   *Theme
	hints   []MenuHint
	offline bool
}

// NewMenu creates a new menu hint bar.
func NewMenu(theme *Theme) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 2, 0)

	return &Menu{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders hints top to bottom, then left to right.
func (m *Menu) Update(hints []MenuHint) {
	m.hints = hints
	m.render()
}

// SetConnected redraws the hints when the session goes on or offline.
// Live hints are dimmed while it is offline.
func (m *Menu) SetConnected(connected bool) {
	if m.offline == !connected {
		return
	}
	m.offline = !connected
	m.render()
}

func (m *Menu) render() {
	m.Clear()
	_, _ = fmt.Fprint(m, m.layout(m.hints))
}

func (m *Menu) layout(hints []MenuHint) string {
	if len(hints) == 0 {
		return ""
	}
	keyColor := Tag(m.theme.MenuKeyColor)
	numColor := Tag(m.theme.NumericKeyColor)
	dimColor := Tag(m.theme.PendingColor)

	cols := (len(hints) + menuRows - 1) / menuRows
	width := make([]int, cols)
	for i, h := range hints {
		if w := len(h.Key) + 3 + len(h.Description); w > width[i/menuRows] {
			width[i/menuRows] = w
		}
	}

	rows := min(len(hints), menuRows)
	var sb strings.Builder
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			i := c*menuRows + r
			if i >= len(hints) {
				break
			}
			h := hints[i]
			kc := keyColor
			if h.Numeric {
				kc = numColor
			}
			pad := width[c] - (len(h.Key) + 3 + len(h.Description)) + 2
			if h.Live && m.offline {
				fmt.Fprintf(&sb, "[%s::d]<%s> %s[-:-:-]%s", dimColor, h.Key, h.Description, strings.Repeat(" ", pad))
				continue
			}
			fmt.Fprintf(&sb, "[%s::b]<%s>[-:-:-] %s%s", kc, h.Key, h.Description, strings.Repeat(" ", pad))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
