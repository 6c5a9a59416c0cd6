package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/marketfeed/internal/coord"
	"github.com/abelbrown/marketfeed/internal/model"
	"github.com/abelbrown/marketfeed/internal/search"
)

// mockActions records which actions were triggered.
type mockActions struct {
	loads    int
	refresh  int
	filters  []string
	sorts    []model.SortSpec
	cleared  int
	queries  []string
	more     int
	cleanups int
}

func (m *mockActions) actions() Actions {
	noop := func() tea.Msg { return nil }
	return Actions{
		Load:         func() tea.Cmd { m.loads++; return noop },
		Refresh:      func() tea.Cmd { m.refresh++; return noop },
		SelectFilter: func(tag string) tea.Cmd { m.filters = append(m.filters, tag); return noop },
		SelectSort:   func(s model.SortSpec) tea.Cmd { m.sorts = append(m.sorts, s); return noop },
		ClearFilters: func() tea.Cmd { m.cleared++; return noop },
		Search:       func(q string) tea.Cmd { m.queries = append(m.queries, q); return noop },
		LoadMore:     func() tea.Cmd { m.more++; return noop },
		ClearSearch:  func() tea.Cmd { m.cleanups++; return noop },
	}
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, a App, msgs ...tea.Msg) App {
	t.Helper()
	for _, msg := range msgs {
		m, _ := a.Update(msg)
		a = m.(App)
	}
	return a
}

func sampleFeed() FeedLoaded {
	return FeedLoaded{
		Collections: []coord.Snapshot{
			{Name: "featured", State: coord.StateReady, ServerTotal: 2, Items: []model.Item{
				{ID: "1", Title: "Desk", Price: "25", Condition: "good"},
				{ID: "2", Title: "Lamp", Price: "0"},
			}},
			{Name: "city", State: coord.StateError, Items: []model.Item{
				{ID: "3", Title: "Bike", Price: "bad"},
			}},
		},
		Filter: model.NewFilterSpec(),
		Sort:   model.SortDefault,
	}
}

func TestAppInitLoads(t *testing.T) {
	m := &mockActions{}
	app := NewApp(m.actions())
	if app.Init() == nil {
		t.Fatal("Init should return a command")
	}
	if m.loads != 1 {
		t.Errorf("expected one load, got %d", m.loads)
	}
}

func TestAppInitWithoutLoad(t *testing.T) {
	if NewApp(Actions{}).Init() != nil {
		t.Error("Init should return nil without a Load action")
	}
}

func TestAppNavigatesAcrossCollections(t *testing.T) {
	app := press(t, NewApp(Actions{}), sampleFeed())

	app = press(t, app, key("j"), key("j"))
	if app.Cursor() != 2 {
		t.Errorf("cursor should cross into the next collection, got %d", app.Cursor())
	}
	app = press(t, app, key("j"))
	if app.Cursor() != 2 {
		t.Errorf("cursor should stop at the last item, got %d", app.Cursor())
	}
	app = press(t, app, key("g"))
	if app.Cursor() != 0 {
		t.Errorf("g should jump to the top, got %d", app.Cursor())
	}
	app = press(t, app, key("G"))
	if app.Cursor() != 2 {
		t.Errorf("G should jump to the end, got %d", app.Cursor())
	}
}

func TestAppFilterKeys(t *testing.T) {
	m := &mockActions{}
	app := press(t, NewApp(m.actions()), sampleFeed())

	press(t, app, key("1"), key("3"), key("e"), key("0"), key("c"))
	want := []string{"brand-new", "good", "rent", "free"}
	if strings.Join(m.filters, ",") != strings.Join(want, ",") {
		t.Errorf("filters = %v, want %v", m.filters, want)
	}
	if m.cleared != 1 {
		t.Errorf("expected clear, got %d", m.cleared)
	}
}

func TestAppSortCycles(t *testing.T) {
	m := &mockActions{}
	app := press(t, NewApp(m.actions()), sampleFeed())
	press(t, app, key("o"))
	if len(m.sorts) != 1 || m.sorts[0] != model.SortPriceAsc {
		t.Errorf("sorts = %v", m.sorts)
	}
	if nextSort(model.SortPopularity) != model.SortDefault {
		t.Error("sort cycle should wrap")
	}
}

func TestAppSearchMode(t *testing.T) {
	m := &mockActions{}
	app := press(t, NewApp(m.actions()), sampleFeed(), key("/"))
	if !app.Searching() {
		t.Fatal("/ should enter search mode")
	}

	app = press(t, app, key("l"), key("a"), key("m"))
	if got := strings.Join(m.queries, ","); got != "l,la,lam" {
		t.Errorf("queries = %q", got)
	}
	if len(m.filters) != 0 {
		t.Error("typing must not toggle filters")
	}

	app = press(t, app, tea.KeyMsg{Type: tea.KeyEnter}, key("m"))
	if m.more != 1 {
		t.Errorf("m should load more once the input is blurred, got %d", m.more)
	}

	app = press(t, app, tea.KeyMsg{Type: tea.KeyEsc})
	if app.Searching() {
		t.Error("esc should leave search mode")
	}
	if m.cleanups != 1 {
		t.Errorf("expected search clear, got %d", m.cleanups)
	}
}

func TestAppSearchResults(t *testing.T) {
	app := press(t, NewApp(Actions{}),
		tea.WindowSizeMsg{Width: 100, Height: 20},
		key("/"),
		SearchUpdated{Session: search.Snapshot{
			State:   search.StateReady,
			Query:   "lamp",
			Results: []model.Item{{ID: "9", Title: "Desk lamp", Price: "12.5"}},
			Total:   4,
			HasMore: true,
		}},
	)
	view := app.View()
	if !strings.Contains(view, "Desk lamp") {
		t.Error("view should list search results")
	}
	if !strings.Contains(view, "1/4+") {
		t.Error("status should show loaded/total with more marker")
	}
}

func TestAppRendersFeed(t *testing.T) {
	app := press(t, NewApp(Actions{}), tea.WindowSizeMsg{Width: 100, Height: 20}, sampleFeed())
	view := app.View()
	for _, want := range []string{"featured", "2 of 2", "Desk", "$25.00", "free", "error, showing 1", "bad"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestAppShowsErrors(t *testing.T) {
	feed := sampleFeed()
	feed.Err = model.ErrTransientNetwork
	app := press(t, NewApp(Actions{}), tea.WindowSizeMsg{Width: 100, Height: 20}, feed)
	if !strings.Contains(app.View(), "transient network failure") {
		t.Error("view should show the error")
	}
	app = press(t, app, key("j"))
	if strings.Contains(app.View(), "transient network failure") {
		t.Error("key press should dismiss the error")
	}
}

func TestRenderRowsScrollsToCursor(t *testing.T) {
	var items []model.Item
	for i := 0; i < 30; i++ {
		items = append(items, model.Item{ID: string(rune('a' + i%26)), Title: "item"})
	}
	items[29].Title = "last one"
	out := RenderRows(itemRows(items), 29, 80, 5)
	if !strings.Contains(out, "last one") {
		t.Error("selected item should be visible")
	}
	if lines := strings.Count(out, "\n"); lines != 5 {
		t.Errorf("expected 5 lines, got %d", lines)
	}
}

func TestRenderItemLineTruncatesWideTitles(t *testing.T) {
	item := model.Item{ID: "x", Title: strings.Repeat("机", 100), Price: "3"}
	line := renderItemLine(item, false, 40)
	if !strings.Contains(line, "…") {
		t.Error("long titles should be truncated")
	}
}

func TestFormatPrice(t *testing.T) {
	tests := map[string]string{"0": "free", "$0.00": "free", "7.5": "$7.50", "bad": "bad", "": "-"}
	for in, want := range tests {
		if got := formatPrice(model.Item{Price: in}); got != want {
			t.Errorf("formatPrice(%q) = %q, want %q", in, got, want)
		}
	}
}
