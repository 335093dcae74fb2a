/*
hmi.go Terminal view of a running network. The view only reads committed
snapshots; the breaker and fault keys go through the same handles as any
other client.
*/

package hmi

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell"
	"github.com/ohowland/elec_core/internal/pkg/network"
	"github.com/rivo/tview"
)

const logo = `
 ___________________________________
 _/\/\/\/\/\__/\/\________/\/\/\/\/\_
 _/\/\________/\/\______/\/\_________
 _/\/\/\/\____/\/\______/\/\_________
 _/\/\________/\/\______/\/\_________
 _/\/\/\/\/\__/\/\/\/\/\__/\/\/\/\/\_
 ___________________________________
`

// RefreshInterval is how often the table redraws.
const RefreshInterval = 500 * time.Millisecond

var header = []string{"Component", "Type", "In V", "Out V", "In A", "Out A", "Out W", "State"}

// Page builds one screen of the HMI.
type Page func(h *HMI) (title string, content tview.Primitive)

// HMI is a live component table for one network.
type HMI struct {
	app   *tview.Application
	pages *tview.Pages
	table *tview.Table
	net   *network.Network
}

// New builds the splash and overview pages for n.
func New(n *network.Network) *HMI {
	h := &HMI{
		app:   tview.NewApplication(),
		pages: tview.NewPages(),
		net:   n,
	}
	for _, page := range []Page{Splash, Overview} {
		title, content := page(h)
		h.pages.AddPage(title, content, true, title == "Splash")
	}
	return h
}

// Run draws the HMI until ctx is done or the user quits.
func (h *HMI) Run(ctx context.Context) error {
	go func() {
		ticker := time.NewTicker(RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				h.app.Stop()
				return
			case <-ticker.C:
				h.app.QueueUpdateDraw(h.refresh)
			}
		}
	}()

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(h.pages, 0, 1, true)
	return h.app.SetRoot(layout, true).Run()
}

func (h *HMI) refresh() {
	snap := h.net.Snapshot()
	Fill(h.table, snap.Status())
	h.table.SetTitle(fmt.Sprintf(" %s  t=%.1fs  x%.1f ", h.net.Name(), snap.SimTime, h.net.TimeFactor()))
}

// Splash is the title page.
func Splash(h *HMI) (title string, content tview.Primitive) {
	lines := strings.Split(logo, "\n")
	logoWidth := 0
	for _, line := range lines {
		if len(line) > logoWidth {
			logoWidth = len(line)
		}
	}
	logoBox := tview.NewTextView().
		SetTextColor(tcell.ColorBlue).
		SetDoneFunc(func(key tcell.Key) {
			h.pages.SwitchToPage("Overview")
		})
	fmt.Fprint(logoBox, logo)

	frame := tview.NewFrame(tview.NewBox()).
		SetBorders(0, 0, 0, 0, 0, 0).
		AddText("Electrical Network "+h.net.Name(), true, tview.AlignCenter, tcell.ColorWhite).
		AddText("", true, tview.AlignCenter, tcell.ColorWhite).
		AddText("press enter", true, tview.AlignCenter, tcell.ColorDarkMagenta)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(tview.NewBox(), 0, 5, false).
		AddItem(tview.NewFlex().
			AddItem(tview.NewBox(), 0, 1, false).
			AddItem(logoBox, logoWidth, 1, true).
			AddItem(tview.NewBox(), 0, 1, false), len(lines), 1, true).
		AddItem(frame, 0, 10, false)

	return "Splash", flex
}

// Overview is the component table. Enter toggles a breaker, f fails and
// s shorts the selected component.
func Overview(h *HMI) (title string, content tview.Primitive) {
	h.table = tview.NewTable().
		SetFixed(1, 1).
		SetBorders(false).
		SetSelectable(true, false).
		SetSeparator(' ')
	h.table.SetBorder(true).SetTitle(" " + h.net.Name() + " ")
	Fill(h.table, h.net.Snapshot().Status())

	h.table.SetSelectedFunc(func(row, column int) {
		c, ok := h.selected(row)
		if !ok {
			return
		}
		if cb, ok := c.AsBreaker(); ok {
			cb.SetClosed(!cb.Closed())
		}
	})
	h.table.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		row, _ := h.table.GetSelection()
		c, ok := h.selected(row)
		if !ok {
			return event
		}
		switch event.Rune() {
		case 'f':
			c.SetFailed(!c.Failed())
			return nil
		case 's':
			c.SetShorted(!c.Shorted())
			return nil
		}
		return event
	})

	return "Overview", h.table
}

func (h *HMI) selected(row int) (*network.Comp, bool) {
	if row < 1 {
		return nil, false
	}
	return h.net.FindByName(h.table.GetCell(row, 0).Text)
}

// Fill writes one row per component under the header.
func Fill(table *tview.Table, status []network.CompStatus) {
	for column, cell := range header {
		table.SetCell(0, column, tview.NewTableCell(cell).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false))
	}
	for i, cs := range status {
		for column, cell := range Row(cs) {
			color := tcell.ColorWhite
			switch {
			case column == 0:
				color = tcell.ColorDarkCyan
			case cs.Failed || cs.Shorted:
				color = tcell.ColorRed
			}
			table.SetCell(i+1, column, tview.NewTableCell(cell).
				SetTextColor(color).
				SetAlign(tview.AlignLeft))
		}
	}
}

// Row formats one component for the table.
func Row(cs network.CompStatus) []string {
	return []string{
		cs.Name,
		cs.Type,
		fmt.Sprintf("%.1f", cs.InVolts),
		fmt.Sprintf("%.1f", cs.OutVolts),
		fmt.Sprintf("%.1f", cs.InAmps),
		fmt.Sprintf("%.1f", cs.OutAmps),
		fmt.Sprintf("%.0f", cs.OutPwr),
		state(cs),
	}
}

func state(cs network.CompStatus) string {
	var flags []string
	if cs.Failed {
		flags = append(flags, "FAILED")
	}
	if cs.Shorted {
		flags = append(flags, "SHORTED")
	}
	switch {
	case cs.Tripped != nil && *cs.Tripped:
		flags = append(flags, "TRIPPED")
	case cs.Closed != nil && *cs.Closed:
		flags = append(flags, "closed")
	case cs.Closed != nil:
		flags = append(flags, "open")
	}
	if cs.Charge != nil {
		flags = append(flags, fmt.Sprintf("%.0f%%", *cs.Charge*100))
	}
	if cs.RPM != nil {
		flags = append(flags, fmt.Sprintf("%.0f rpm", *cs.RPM))
	}
	if cs.Powered != nil && !*cs.Powered {
		flags = append(flags, "unpowered")
	}
	if len(cs.Joined) > 0 {
		flags = append(flags, "joined "+strings.Join(cs.Joined, ","))
	}
	return strings.Join(flags, " ")
}
