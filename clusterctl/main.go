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

// Command clusterctl talks to the control plane of a clusterd master.
// It uses subcommands.
//
// The flags are
//
//	-a <address>	- select the master's control address, default is
//			  http://127.0.0.1:8321
//	-u <user:pass>	- user name & password for basic auth
//
// Subcommands are
//
//	status          - show the state of the cluster
//	workers         - list all workers
//	worker <id>     - show more detailed worker info
//	restart         - start a rolling restart
//	shutdown        - stop all workers, and the master
//	log [-f]        - obtain (and optionally follow) the event log
//	top             - a live view of the workers (the default)
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gdamore/clustervisor/clusterctl/ui"
	"github.com/gdamore/clustervisor/clusterctl/util"
	"github.com/gdamore/clustervisor/rest"
)

var addr string = "http://127.0.0.1:8321"
var auth string = ""
var follow bool
var debugLog string

var client *rest.Client

var rootCmd = &cobra.Command{
	Use:           "clusterctl",
	Short:         "Control a clusterd master",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		client = rest.NewClient(nil, addr)
		if auth != "" {
			a := strings.SplitN(auth, ":", 2)
			if len(a) != 2 {
				return fmt.Errorf("bad user:pass supplied")
			}
			client.SetAuth(a[0], a[1])
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return doUI()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the cluster",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info, e := client.Cluster()
		if e != nil {
			return e
		}
		state := "running"
		switch {
		case info.ShuttingDown:
			state = "shutting down"
		case info.Restarting:
			state = "restarting"
		case !info.Running:
			state = "stopped"
		}
		fmt.Printf("Role:      %s\n", info.Role)
		fmt.Printf("State:     %s\n", state)
		fmt.Printf("Port:      %d (%s)\n", info.Port, info.PortPolicy)
		fmt.Printf("Workers:   %d active of %d\n", info.Active, info.Workers)
		fmt.Printf("CPUs:      %d (%d physical)\n", info.CPUs, info.PhysicalCPUs)
		if !info.StartTime.IsZero() {
			d := time.Since(info.StartTime)
			fmt.Printf("Uptime:    %s\n", util.FormatDuration(d))
		}
		return nil
	},
}

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "List all workers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		items, e := client.Workers()
		if e != nil {
			return e
		}
		util.SortWorkers(items)
		now := time.Now()
		fmt.Println(util.WorkerHeader)
		for _, w := range items {
			fmt.Println(util.WorkerLine(w, now))
		}
		return nil
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker <id>",
	Short: "Show more detailed worker info",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, e := strconv.ParseUint(args[0], 10, 8)
		if e != nil {
			return fmt.Errorf("bad worker id %q", args[0])
		}
		w, e := client.Worker(uint8(id))
		if e != nil {
			return e
		}
		fmt.Printf("ID:        %d\n", w.ID)
		fmt.Printf("Port:      %d\n", w.Port)
		fmt.Printf("Pid:       %d\n", w.Pid)
		fmt.Printf("Instance:  %s\n", w.Instance)
		fmt.Printf("Status:    %s\n", util.Status(w))
		fmt.Printf("Uptime:    %s\n", util.FormatDuration(util.Uptime(w, time.Now())))
		fmt.Printf("Restarts:  %d\n", w.Restarts)
		fmt.Printf("Crashes:  ")
		for _, t := range w.Crashes {
			fmt.Printf(" %s", t.Format(time.StampMilli))
		}
		fmt.Printf("\n")
		if w.LastExit != "" {
			fmt.Printf("Last exit: %s\n", w.LastExit)
		}
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Start a rolling restart of all workers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return client.Restart()
	},
}

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Stop all workers, and the master",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return client.Shutdown()
	},
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Obtain the master's event log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info, e := client.GetLog()
		if e != nil {
			return e
		}
		last := printLog(info, 0)
		if !follow {
			return nil
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()
		for {
			info, e = client.WatchLog(ctx, info)
			if ctx.Err() != nil {
				return nil
			}
			if e != nil {
				return e
			}
			last = printLog(info, last)
		}
	},
}

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "A live view of the workers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return doUI()
	},
}

// printLog prints the records newer than last, and returns the newest
// record id seen.
func printLog(info *rest.LogInfo, last int64) int64 {
	for _, r := range info.Records {
		if r.ID <= last {
			continue
		}
		fmt.Printf("%s %s\n", r.Time.Format(time.StampMilli), r.Text)
		last = r.ID
	}
	return last
}

func doUI() error {
	app := ui.NewApp(client, addr)
	if debugLog != "" {
		f, e := os.OpenFile(debugLog, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if e != nil {
			return e
		}
		defer f.Close()
		app.SetLogger(log.New(f, "", log.LstdFlags))
	}
	return app.Run()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&addr, "address", "a", addr, "master control address")
	rootCmd.PersistentFlags().StringVarP(&auth, "user", "u", auth, "user:pass authentication")
	topCmd.Flags().StringVarP(&debugLog, "debug-log", "d", "", "write a debug log to this file")
	rootCmd.Flags().AddFlagSet(topCmd.Flags())
	logCmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing new records")

	rootCmd.AddCommand(statusCmd, workersCmd, workerCmd, restartCmd,
		shutdownCmd, logCmd, topCmd)
}

func main() {
	if e := rootCmd.Execute(); e != nil {
		fmt.Fprintf(os.Stderr, "Failed: %v\n", e)
		os.Exit(1)
	}
}
