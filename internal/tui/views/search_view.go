package views

import (
	"fmt"
	"time"

	"github.com/dropdeck/dropdeck/internal/deck"
	"github.com/dropdeck/dropdeck/internal/tui/ui"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// HitKind is the type of a search result row.
type HitKind string

const (
	HitMessage HitKind = "MSG"
	HitFile    HitKind = "FILE"
	HitGroup   HitKind = "GROUP"
)

// SearchHit is one row of the results table.
type SearchHit struct {
	Kind           HitKind
	ID             string
	ConversationID string
	Label          string
	Detail         string
	At             time.Time
}

// SearchView provides global search across messages, files and groups.
type SearchView struct {
	*tview.Flex
	theme   *ui.Theme
	input   *tview.InputField
	results *tview.Table
	onQuery func(query string)
	hits    []SearchHit
	now     func() time.Time
}

// NewSearchView creates a new search view.
func NewSearchView(theme *ui.Theme) *SearchView {
	input := tview.NewInputField().
		SetLabel(" Search: ").
		SetFieldWidth(0)
	input.SetBorderColor(theme.BorderColor)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	results := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	results.SetBorder(true)
	results.SetBorderColor(theme.BorderColor)
	results.SetBackgroundColor(theme.BgColor)
	results.SetTitle(" Results ")
	results.SetTitleColor(theme.TitleColor)
	results.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(input, 1, 0, true).
		AddItem(results, 0, 1, false)

	sv := &SearchView{
		Flex:    flex,
		theme:   theme,
		input:   input,
		results: results,
		now:     time.Now,
	}
	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && sv.onQuery != nil && sv.input.GetText() != "" {
			sv.onQuery(sv.input.GetText())
		}
	})

	return sv
}

// Name implements Component.
func (sv *SearchView) Name() string { return "Search" }

// Init implements Component.
func (sv *SearchView) Init() {}

// Start implements Component.
func (sv *SearchView) Start() {}

// Stop implements Component.
func (sv *SearchView) Stop() {}

// Hints implements Component.
func (sv *SearchView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Search/Open"},
		{Key: "Tab", Description: "Results"},
		{Key: "Esc", Description: "Back"},
		{Key: ":", Description: "Command"},
	}
}

// SetOnQuery sets the callback when a search query is submitted.
func (sv *SearchView) SetOnQuery(fn func(query string)) {
	sv.onQuery = fn
}

// SetQuery puts query into the input, as when a search starts from the
// command prompt.
func (sv *SearchView) SetQuery(query string) {
	sv.input.SetText(query)
}

// Update refreshes search results. Message hits come first, then groups,
// then files.
func (sv *SearchView) Update(res deck.SearchResult) {
	sv.hits = flattenResults(res)
	sv.results.Clear()

	headers := []string{" TYPE", " NAME", " DETAIL", " TIME"}
	for col, h := range headers {
		sv.results.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(sv.theme.TableHeaderFg).
			SetBackgroundColor(sv.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold))
	}

	now := sv.now()
	for i, h := range sv.hits {
		row := i + 1
		ts := ""
		if !h.At.IsZero() {
			ts = formatTime(h.At, now)
		}
		sv.results.SetCell(row, 0, tview.NewTableCell(" "+string(h.Kind)).SetTextColor(sv.theme.CounterColor))
		sv.results.SetCell(row, 1, tview.NewTableCell(" "+clean(oneLine(h.Label))).SetMaxWidth(25).SetTextColor(sv.theme.FgColor))
		sv.results.SetCell(row, 2, tview.NewTableCell(" "+clean(oneLine(h.Detail))).SetExpansion(1).SetTextColor(sv.theme.FgColor))
		sv.results.SetCell(row, 3, tview.NewTableCell(" "+ts).SetMaxWidth(12).SetTextColor(sv.theme.FgColor))
	}

	title := fmt.Sprintf(" Results (%d) ", len(sv.hits))
	if res.Offline {
		title = fmt.Sprintf(" Results (%d) [offline] ", len(sv.hits))
	}
	sv.results.SetTitle(title)
}

func flattenResults(res deck.SearchResult) []SearchHit {
	var hits []SearchHit
	for _, m := range res.Messages {
		sender := m.SenderName
		if sender == "" {
			sender = m.SenderID
		}
		hits = append(hits, SearchHit{
			Kind:           HitMessage,
			ID:             m.ID,
			ConversationID: m.ConversationID,
			Label:          sender,
			Detail:         m.Body.Preview(),
			At:             m.CreatedAt,
		})
	}
	for _, c := range res.Conversations {
		hits = append(hits, SearchHit{
			Kind:           HitGroup,
			ID:             c.ID,
			ConversationID: c.ID,
			Label:          c.Name,
			Detail:         c.Description,
			At:             c.LastActivity(),
		})
	}
	for _, f := range res.Files {
		hits = append(hits, SearchHit{
			Kind:   HitFile,
			ID:     f.ID,
			Label:  f.Name,
			Detail: fmt.Sprintf("%s, %s", f.MIME, humanSize(f.Size)),
		})
	}
	return hits
}

// SelectedResult returns the hit under the cursor.
func (sv *SearchView) SelectedResult() (SearchHit, bool) {
	row, _ := sv.results.GetSelection()
	idx := row - 1
	if idx >= 0 && idx < len(sv.hits) {
		return sv.hits[idx], true
	}
	return SearchHit{}, false
}

// Input returns the search input field.
func (sv *SearchView) Input() *tview.InputField {
	return sv.input
}

// Results returns the results table.
func (sv *SearchView) Results() *tview.Table {
	return sv.results
}
