package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/marketfeed/internal/coord"
	"github.com/abelbrown/marketfeed/internal/model"
	"github.com/abelbrown/marketfeed/internal/search"
)

// Actions are the engine operations the App triggers. Each returns a Cmd
// that eventually yields FeedLoaded or SearchUpdated. Nil actions are
// ignored.
type Actions struct {
	Load         func() tea.Cmd
	Refresh      func() tea.Cmd
	SelectFilter func(tag string) tea.Cmd
	SelectSort   func(s model.SortSpec) tea.Cmd
	ClearFilters func() tea.Cmd
	Search       func(query string) tea.Cmd
	LoadMore     func() tea.Cmd
	ClearSearch  func() tea.Cmd
}

// sortCycle is the order 'o' steps through.
var sortCycle = []model.SortSpec{
	model.SortDefault,
	model.SortPriceAsc,
	model.SortPriceDesc,
	model.SortNewest,
	model.SortPopularity,
}

// conditionKeys maps number keys to condition tags.
var conditionKeys = map[string]model.Condition{
	"1": model.ConditionBrandNew,
	"2": model.ConditionLikeNew,
	"3": model.ConditionGood,
	"4": model.ConditionFair,
	"5": model.ConditionPoor,
}

// App is the root Bubble Tea model.
// App does NOT hold the engine. It receives state via messages.
type App struct {
	actions Actions

	feed        []coord.Snapshot
	filter      model.FilterSpec
	sort        model.SortSpec
	usingServer bool

	session   search.Snapshot
	searching bool // search view active
	input     textinput.Model
	spinner   spinner.Model

	cursor  int
	err     error
	width   int
	height  int
	ready   bool
	loading bool
}

// NewApp creates an App.
func NewApp(actions Actions) App {
	in := textinput.New()
	in.Placeholder = "search the marketplace"
	in.Prompt = "/ "
	in.CharLimit = 120

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return App{
		actions: actions,
		filter:  model.NewFilterSpec(),
		sort:    model.SortDefault,
		input:   in,
		spinner: sp,
	}
}

// Init loads the feed.
func (a App) Init() tea.Cmd {
	if a.actions.Load == nil {
		return nil
	}
	return tea.Batch(a.actions.Load(), a.spinner.Tick)
}

// Update handles messages and returns the updated model and any commands.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.input.Width = msg.Width - 4
		a.ready = true
		return a, nil

	case FeedLoaded:
		a.loading = false
		a.feed = msg.Collections
		a.filter = msg.Filter
		a.sort = msg.Sort
		a.usingServer = msg.UsingServer
		a.err = msg.Err
		a.clampCursor()
		return a, nil

	case SearchUpdated:
		a.session = msg.Session
		if msg.Session.Err != nil {
			a.err = msg.Session.Err
		}
		a.clampCursor()
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (a App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return a, tea.Quit
	}
	a.err = nil

	if a.searching && a.input.Focused() {
		return a.handleSearchInput(msg)
	}

	switch msg.String() {
	case "q":
		return a, tea.Quit
	case "esc":
		if a.searching {
			return a.leaveSearch()
		}
	case "j", "down":
		if a.cursor < len(a.items())-1 {
			a.cursor++
		}
	case "k", "up":
		if a.cursor > 0 {
			a.cursor--
		}
	case "g", "home":
		a.cursor = 0
	case "G", "end":
		if n := len(a.items()); n > 0 {
			a.cursor = n - 1
		}
	case "/":
		a.searching = true
		a.cursor = 0
		return a, a.input.Focus()
	case "m":
		if a.searching && a.actions.LoadMore != nil {
			return a, a.actions.LoadMore()
		}
	case "r":
		if a.searching {
			return a, nil
		}
		return a.run(a.actions.Refresh)
	case "c":
		return a.run(a.actions.ClearFilters)
	case "o":
		if a.actions.SelectSort != nil {
			a.loading = true
			return a, a.actions.SelectSort(nextSort(a.sort))
		}
	case "e":
		return a.toggle(string(model.SellingRent))
	case "s":
		return a.toggle(string(model.SellingSell))
	case "0":
		return a.toggle(model.FreeTag)
	default:
		if c, ok := conditionKeys[msg.String()]; ok {
			return a.toggle(string(c))
		}
	}
	return a, nil
}

func (a App) handleSearchInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		return a.leaveSearch()
	case tea.KeyEnter:
		a.input.Blur()
		return a, nil
	}

	before := a.input.Value()
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	if a.input.Value() != before && a.actions.Search != nil {
		return a, tea.Batch(cmd, a.actions.Search(a.input.Value()))
	}
	return a, cmd
}

func (a App) leaveSearch() (tea.Model, tea.Cmd) {
	a.searching = false
	a.input.Blur()
	a.input.SetValue("")
	a.cursor = 0
	if a.actions.ClearSearch != nil {
		return a, a.actions.ClearSearch()
	}
	return a, nil
}

func (a App) toggle(tag string) (tea.Model, tea.Cmd) {
	if a.searching || a.actions.SelectFilter == nil {
		return a, nil
	}
	a.loading = true
	return a, a.actions.SelectFilter(tag)
}

func (a App) run(action func() tea.Cmd) (tea.Model, tea.Cmd) {
	if action == nil {
		return a, nil
	}
	a.loading = true
	return a, action()
}

func nextSort(s model.SortSpec) model.SortSpec {
	for i, v := range sortCycle {
		if v == s {
			return sortCycle[(i+1)%len(sortCycle)]
		}
	}
	return sortCycle[0]
}

// items returns the selectable items of the active view.
func (a App) items() []model.Item {
	if a.searching {
		return a.session.Results
	}
	_, items := feedRows(a.feed)
	return items
}

func (a *App) clampCursor() {
	n := len(a.items())
	if a.cursor >= n {
		a.cursor = n - 1
	}
	if a.cursor < 0 {
		a.cursor = 0
	}
}

// View renders the UI.
func (a App) View() string {
	if !a.ready {
		return "Loading..."
	}

	header := RenderFilterBar(a.filter, a.sort, a.usingServer, a.width) + "\n"
	var rows []row
	if a.searching {
		header = a.input.View() + "\n"
		rows = itemRows(a.session.Results)
	} else {
		rows, _ = feedRows(a.feed)
	}

	contentHeight := a.height - 2
	errorBar := ""
	if a.err != nil {
		errorBar = ErrorStyle.Width(a.width).Render("Error: "+a.err.Error()) + "\n"
		contentHeight--
	}

	return header + RenderRows(rows, a.cursor, a.width, contentHeight) + errorBar +
		RenderStatusBar(a.position(), a.width, a.searching)
}

func (a App) position() string {
	if a.loading || (a.searching && (a.session.State == search.StateSearching || a.session.LoadingMore)) {
		return a.spinner.View() + " loading "
	}
	if a.searching {
		switch a.session.State {
		case search.StateDebouncing:
			return " typing... "
		case search.StateReady:
			more := ""
			if a.session.HasMore {
				more = "+"
			}
			return fmt.Sprintf(" %d/%d%s ", len(a.session.Results), a.session.Total, more)
		}
		return " "
	}
	return fmt.Sprintf(" %d/%d ", a.cursor+1, len(a.items()))
}

// Cursor returns the current cursor position (for testing).
func (a App) Cursor() int {
	return a.cursor
}

// Searching reports whether the search view is active (for testing).
func (a App) Searching() bool {
	return a.searching
}
