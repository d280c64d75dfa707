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

// Package ui is a live terminal view of a cluster, in the manner of top.
package ui

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gdamore/tcell"
	"github.com/gdamore/tcell/views"

	"github.com/gdamore/clustervisor/clusterctl/util"
	"github.com/gdamore/clustervisor/rest"
)

// RefreshInterval is how often the worker list is fetched.
var RefreshInterval = time.Second

type App struct {
	app       *views.Application
	view      views.View
	panel     views.Widget
	help      *HelpPanel
	log       *LogPanel
	main      *WorkerPanel
	client    *rest.Client
	server    string
	logger    *log.Logger
	err       error
	cluster   *rest.ClusterInfo
	items     []*rest.WorkerInfo
	logInfo   *rest.LogInfo
	logErr    error
	logCancel context.CancelFunc
	message   string
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	views.WidgetWatchers
}

func (a *App) show(w views.Widget) {
	if w != a.panel {
		a.panel.SetView(nil)
		a.panel = w
	}
	a.panel.SetView(a.view)
	a.panel.Resize()
	a.app.Refresh()
}

func (a *App) ShowHelp() {
	a.show(a.help)
}

func (a *App) ShowLog() {
	if a.logCancel != nil {
		a.logCancel()
	}
	ctx, cancel := context.WithCancel(a.ctx)
	a.logInfo = nil
	a.logErr = nil
	a.logCancel = cancel
	a.wg.Add(1)
	go a.refreshLog(ctx)

	a.show(a.log)
}

func (a *App) ShowMain() {
	if a.logCancel != nil {
		a.logCancel()
		a.logCancel = nil
	}
	a.show(a.main)
}

// action runs a control request in the background and reports the
// outcome in the status bar.
func (a *App) action(what string, fn func() error) {
	a.message = what + " ..."
	go func() {
		msg := what + " requested"
		if e := fn(); e != nil {
			msg = what + " failed: " + e.Error()
		}
		a.Logf("%s", msg)
		a.app.PostFunc(func() {
			a.message = msg
			a.app.Update()
		})
	}()
}

func (a *App) Restart() {
	a.action("Rolling restart", a.client.Restart)
}

func (a *App) Shutdown() {
	a.action("Shutdown", a.client.Shutdown)
}

// Message is the outcome of the last control request.
func (a *App) Message() string {
	return a.message
}

func (a *App) Quit() {
	/* This just posts the quit event. */
	a.app.Quit()
}

func (a *App) SetLogger(logger *log.Logger) {
	a.logger = logger
}

func (a *App) Logf(fmt string, v ...interface{}) {
	if a.logger != nil {
		a.logger.Printf(fmt, v...)
	}
}

// SetScreen uses scr instead of the terminal.
func (a *App) SetScreen(scr tcell.Screen) {
	a.app.SetScreen(scr)
}

func (a *App) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		// Intercept a few control keys up front, for global handling.
		case tcell.KeyCtrlC:
			a.Quit()
			return true
		case tcell.KeyCtrlL:
			a.app.Refresh()
			return true
		}
	}

	if a.panel != nil {
		return a.panel.HandleEvent(ev)
	}
	return false
}

func (a *App) Draw() {
	if a.panel != nil {
		a.panel.Draw()
	}
}

func (a *App) Resize() {
	if a.panel != nil {
		a.panel.Resize()
	}
}

func (a *App) SetView(view views.View) {
	a.view = view
	if a.panel != nil {
		a.panel.SetView(view)
	}
}

func (a *App) Size() (int, int) {
	if a.panel != nil {
		return a.panel.Size()
	}
	return 0, 0
}

func (a *App) GetAppName() string {
	return "clusterctl"
}

// GetCluster returns the most recently fetched state.
func (a *App) GetCluster() (*rest.ClusterInfo, []*rest.WorkerInfo, error) {
	return a.cluster, a.items, a.err
}

func (a *App) GetLog() (*rest.LogInfo, error) {
	return a.logInfo, a.logErr
}

func NewApp(client *rest.Client, server string) *App {
	app := &App{}
	app.app = &views.Application{}
	app.client = client
	app.server = server
	app.ctx, app.cancel = context.WithCancel(context.Background())
	app.help = NewHelpPanel(app)
	app.log = NewLogPanel(app)
	app.main = NewWorkerPanel(app)
	app.panel = app.main
	return app
}

func (a *App) fetch() (*rest.ClusterInfo, []*rest.WorkerInfo, error) {
	info, e := a.client.Cluster()
	if e != nil {
		return nil, nil, e
	}
	items, e := a.client.Workers()
	if e != nil {
		return nil, nil, e
	}
	util.SortWorkers(items)
	return info, items, nil
}

// refresh keeps the worker list current.
func (a *App) refresh() {
	defer a.wg.Done()
	for {
		info, items, e := a.fetch()
		a.app.PostFunc(func() {
			a.cluster = info
			a.items = items
			a.err = e
			a.app.Update()
		})
		select {
		case <-a.ctx.Done():
			return
		case <-time.After(RefreshInterval):
		}
	}
}

func (a *App) refreshLog(ctx context.Context) {
	defer a.wg.Done()
	info, e := a.client.GetLog()
	for {
		a.app.PostFunc(func() {
			if ctx.Err() == nil {
				a.logInfo = info
				a.logErr = e
				a.app.Update()
			}
		})
		if ctx.Err() != nil {
			return
		}
		if e != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
			info, e = a.client.GetLog()
			continue
		}
		info, e = a.client.WatchLog(ctx, info)
	}
}

func (a *App) Run() error {
	a.Logf("Starting up user interface")
	a.app.SetRootWidget(a)
	a.ShowMain()
	a.wg.Add(1)
	go a.refresh()
	e := a.app.Run()
	a.cancel()
	a.wg.Wait()
	return e
}
