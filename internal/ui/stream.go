package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/abelbrown/marketfeed/internal/coord"
	"github.com/abelbrown/marketfeed/internal/model"
)

// row is one rendered line: a collection header or an item.
type row struct {
	header string
	meta   string
	item   *model.Item
}

// feedRows flattens collections into rows. Items are returned in display
// order so a cursor can index them.
func feedRows(cols []coord.Snapshot) ([]row, []model.Item) {
	var rows []row
	var items []model.Item
	for _, c := range cols {
		rows = append(rows, row{header: c.Name, meta: collectionMeta(c)})
		for i := range c.Items {
			items = append(items, c.Items[i])
			rows = append(rows, row{item: &c.Items[i]})
		}
	}
	return rows, items
}

// itemRows wraps a flat result list.
func itemRows(items []model.Item) []row {
	rows := make([]row, len(items))
	for i := range items {
		rows[i] = row{item: &items[i]}
	}
	return rows
}

func collectionMeta(c coord.Snapshot) string {
	switch c.State {
	case coord.StateLoading:
		return "loading"
	case coord.StateError:
		return fmt.Sprintf("error, showing %d", len(c.Items))
	case coord.StateIdle:
		return "waiting for location"
	}
	meta := fmt.Sprintf("%d of %d", len(c.Items), c.ServerTotal)
	if c.ServerFiltered {
		meta += " (server)"
	}
	return meta
}

// RenderRows renders rows with the cursor-th item selected, scrolled so
// the selection stays visible.
func RenderRows(rows []row, cursor, width, height int) string {
	if len(rows) == 0 {
		return HelpStyle.Render("Nothing to show. Press 'r' to refresh or '/' to search.")
	}
	if height < 1 {
		height = 1
	}

	selectedRow := -1
	n := 0
	for i, r := range rows {
		if r.item == nil {
			continue
		}
		if n == cursor {
			selectedRow = i
			break
		}
		n++
	}

	offset := 0
	if selectedRow >= height {
		offset = selectedRow - height + 1
	}

	var b strings.Builder
	for i := offset; i < len(rows) && i < offset+height; i++ {
		r := rows[i]
		if r.item == nil {
			b.WriteString(SectionHeader.Render(r.header) + SectionMeta.Render(r.meta))
		} else {
			b.WriteString(renderItemLine(*r.item, i == selectedRow, width))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// renderItemLine renders a single item line.
func renderItemLine(item model.Item, selected bool, width int) string {
	badge := ""
	if c := item.ConditionTag(); c != "" {
		badge = ConditionBadge.Render(string(c))
	}
	price := PriceBadge.Render(formatPrice(item))

	titleWidth := width - lipgloss.Width(badge) - lipgloss.Width(price) - 4
	if titleWidth < 10 {
		titleWidth = 10
	}
	title := item.Title
	if title == "" {
		title = item.ID
	}
	title = runewidth.Truncate(title, titleWidth, "…")
	title = runewidth.FillRight(title, titleWidth)

	style := NormalItem
	if selected {
		style = SelectedItem
	}
	return style.Render(title) + price + badge
}

// formatPrice renders a price for display; unparsable prices are shown raw.
func formatPrice(item model.Item) string {
	if item.IsFree() {
		return "free"
	}
	if d, ok := item.ParsedPrice(); ok {
		return "$" + d.StringFixed(2)
	}
	if item.Price == "" {
		return "-"
	}
	return item.Price
}

// RenderFilterBar renders the active filters and sort.
func RenderFilterBar(f model.FilterSpec, s model.SortSpec, usingServer bool, width int) string {
	parts := []string{"filters:"}
	if f.Empty() {
		parts = append(parts, "none")
	}
	for _, t := range f.Tags() {
		parts = append(parts, ActiveChip.Render(t))
	}
	parts = append(parts, " sort: "+string(s))
	if usingServer {
		parts = append(parts, " [server]")
	}
	return FilterBar.Width(width).Render(strings.Join(parts, " "))
}

// RenderStatusBar renders the bottom status bar with key hints.
func RenderStatusBar(position string, width int, searching bool) string {
	var keys []string
	if searching {
		keys = []string{
			StatusBarKey.Render("esc") + StatusBarText.Render(":back"),
			StatusBarKey.Render("enter") + StatusBarText.Render(":results"),
			StatusBarKey.Render("m") + StatusBarText.Render(":more"),
		}
	} else {
		keys = []string{
			StatusBarKey.Render("j/k") + StatusBarText.Render(":nav"),
			StatusBarKey.Render("1-5") + StatusBarText.Render(":condition"),
			StatusBarKey.Render("e/s/0") + StatusBarText.Render(":rent/sell/free"),
			StatusBarKey.Render("o") + StatusBarText.Render(":sort"),
			StatusBarKey.Render("c") + StatusBarText.Render(":clear"),
			StatusBarKey.Render("/") + StatusBarText.Render(":search"),
			StatusBarKey.Render("r") + StatusBarText.Render(":refresh"),
			StatusBarKey.Render("q") + StatusBarText.Render(":quit"),
		}
	}
	keyHints := strings.Join(keys, " ")

	padding := width - lipgloss.Width(position) - lipgloss.Width(keyHints)
	if padding < 0 {
		padding = 0
	}
	return StatusBar.Width(width).Render(position + strings.Repeat(" ", padding) + keyHints)
}
