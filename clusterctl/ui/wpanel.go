// Copyright 2026 The Clustervisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ui

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell"
	"github.com/gdamore/tcell/views"

	"github.com/gdamore/clustervisor/clusterctl/util"
	"github.com/gdamore/clustervisor/rest"
)

var (
	StyleNormal = tcell.StyleDefault.
			Foreground(tcell.ColorSilver).
			Background(tcell.ColorBlack)
	StyleHeader = StyleNormal.Bold(true)
	StyleGood   = tcell.StyleDefault.
			Foreground(tcell.ColorGreen).
			Background(tcell.ColorBlack)
	StyleWarn = tcell.StyleDefault.
			Foreground(tcell.ColorYellow).
			Background(tcell.ColorBlack)
	StyleError = tcell.StyleDefault.
			Foreground(tcell.ColorMaroon).
			Background(tcell.ColorBlack)
)

// WorkerPanel is the main screen: one row per worker, refreshed from the
// master's control plane.
type WorkerPanel struct {
	content *views.CellView
	lines   []string
	styles  []tcell.Style
	curx    int
	cury    int

	nactive   int
	nexited   int
	ndisabled int

	Panel
}

// workerModel provides the model for a CellView.
type workerModel struct {
	w *WorkerPanel
}

func NewWorkerPanel(app *App) *WorkerPanel {
	w := &WorkerPanel{}

	w.Panel.Init(app)
	w.content = views.NewCellView()
	w.SetContent(w.content)

	w.content.SetModel(&workerModel{w})
	w.content.SetStyle(StyleNormal)

	w.SetTitle("Workers")
	w.SetKeys([]string{"[Q] Quit"})

	return w
}

func (w *WorkerPanel) Draw() {
	w.update()
	w.Panel.Draw()
}

func (w *WorkerPanel) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyF1:
			w.App().ShowHelp()
			return true
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'Q', 'q':
				w.App().Quit()
				return true
			case 'H', 'h':
				w.App().ShowHelp()
				return true
			case 'L', 'l':
				w.App().ShowLog()
				return true
			case 'R', 'r':
				w.App().Restart()
				return true
			case 'S', 's':
				w.App().Shutdown()
				return true
			}
		}
	}
	return w.Panel.HandleEvent(ev)
}

func (model *workerModel) GetCell(x, y int) (rune, tcell.Style, []rune, int) {
	w := model.w
	if y < 0 || y >= len(w.lines) {
		return ' ', StyleNormal, nil, 1
	}
	ch := ' '
	if x >= 0 && x < len(w.lines[y]) {
		ch = rune(w.lines[y][x])
	}
	return ch, w.styles[y], nil, 1
}

func (model *workerModel) GetBounds() (int, int) {
	// This assumes that all content is displayable runes of width 1.
	w := model.w
	x := 0
	for _, l := range w.lines {
		if x < len(l) {
			x = len(l)
		}
	}
	return x, len(w.lines)
}

func (model *workerModel) GetCursor() (int, int, bool, bool) {
	w := model.w
	return w.curx, w.cury, false, false
}

func (model *workerModel) MoveCursor(offx, offy int) {
	model.SetCursor(model.w.curx+offx, model.w.cury+offy)
}

func (model *workerModel) SetCursor(x, y int) {
	w := model.w
	mx, my := model.GetBounds()
	if x >= mx {
		x = mx - 1
	}
	if y >= my {
		y = my - 1
	}
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	w.curx, w.cury = x, y
}

func workerStyle(item *rest.WorkerInfo) tcell.Style {
	switch {
	case item.RespawnDisabled:
		return StyleError
	case item.Active:
		return StyleGood
	}
	return StyleWarn
}

// update is called to update content, e.g. in response to Draw() or
// as part of another update.  It runs on the application goroutine.
func (w *WorkerPanel) update() {
	info, items, err := w.App().GetCluster()
	if err != nil {
		if e, ok := err.(*rest.Error); ok && e.Code == 401 {
			w.SetStatus("Not authorized (use -u user:pass)")
		} else {
			w.SetStatus(fmt.Sprintf("Cannot load workers: %v", err))
		}
		w.SetStatusStyle(StatusBarStyleError)
		w.lines = []string{}
		w.styles = []tcell.Style{}
		w.SetKeys([]string{"[Q] Quit", "[H] Help"})
		return
	}

	now := time.Now()
	lines := []string{util.WorkerHeader}
	styles := []tcell.Style{StyleHeader}

	w.nactive, w.nexited, w.ndisabled = 0, 0, 0
	for _, item := range items {
		lines = append(lines, util.WorkerLine(item, now))
		styles = append(styles, workerStyle(item))
		switch {
		case item.RespawnDisabled:
			w.ndisabled++
		case item.Active:
			w.nactive++
		default:
			w.nexited++
		}
	}
	w.lines = lines
	w.styles = styles

	status := fmt.Sprintf("%4d Workers %4d Running %4d Exited %4d Disabled",
		len(items), w.nactive, w.nexited, w.ndisabled)
	if info != nil {
		switch {
		case info.ShuttingDown:
			status += "   Shutting down"
		case info.Restarting:
			status += "   Restarting"
		}
	}
	if msg := w.App().Message(); msg != "" {
		status += "   " + msg
	}
	w.SetStatus(status)

	switch {
	case w.ndisabled > 0:
		w.SetStatusStyle(StatusBarStyleError)
	case w.nexited > 0 || (info != nil && (info.Restarting || info.ShuttingDown)):
		w.SetStatusStyle(StatusBarStyleWarn)
	case w.nactive > 0:
		w.SetStatusStyle(StatusBarStyleGood)
	default:
		w.SetStatusStyle(StatusBarStyleNormal)
	}

	if info != nil {
		w.SetTitle(fmt.Sprintf("Port %d (%s), %d CPUs",
			info.Port, info.PortPolicy, info.CPUs))
	}
	w.SetKeys([]string{"[Q] Quit", "[H] Help", "[L] Log",
		"[R] Restart", "[S] Shutdown"})
}
