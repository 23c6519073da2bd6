// Copyright 2026 The Crew Authors
// SPDX-License-Identifier: Apache-2.0

// crew is the operator CLI for the crew subsystem: status updates,
// cross-tab messages, tab listings, and agent hook management.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/crew-foundation/crew/cmd/crew/cli"
	"github.com/crew-foundation/crew/lib/config"
	"github.com/crew-foundation/crew/protocol"
)

// EnvPane names the environment variable carrying the invoking
// terminal's pane handle, exported by the host into every pane.
const EnvPane = "CREW_PANE"

// requestTimeout bounds how long a one-shot command waits for the
// Authority's reply.
const requestTimeout = 5 * time.Second

func main() {
	if err := rootCommand().Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "crew: %v\n", err)
		os.Exit(1)
	}
}

type commonFlags struct {
	socket string
	pane   uint64
}

func (f *commonFlags) flagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("crew", pflag.ContinueOnError)
	flags.StringVar(&f.socket, "socket", "", "hub socket path (default from configuration)")
	flags.Uint64Var(&f.pane, "pane", 0, "pane handle (default from $"+EnvPane+")")
	return flags
}

// socketPath resolves the hub socket: the flag wins, otherwise the
// configuration (CREW_CONFIG or built-in default).
func (f *commonFlags) socketPath() (string, error) {
	if f.socket != "" {
		return f.socket, nil
	}
	cfg, err := config.Load("")
	if err != nil {
		return "", err
	}
	return cfg.HubSocket, nil
}

// paneHandle resolves the invoking pane. The boolean is false when no
// pane is known, which outside a crew session is normal: hook
// commands must be silent no-ops there.
func (f *commonFlags) paneHandle() (uint64, bool) {
	if f.pane != 0 {
		return f.pane, true
	}
	value := os.Getenv(EnvPane)
	if value == "" {
		return 0, false
	}
	pane, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, false
	}
	return pane, true
}

func rootCommand() *cli.Command {
	return &cli.Command{
		Name:    "crew",
		Summary: "Tab naming, status, and messaging for crew sessions.",
		Description: `crew coordinates the tabs of a crew session: it reports agent
activity status, sends messages between named tabs, and inspects the
Authority's state.`,
		Subcommands: []*cli.Command{
			statusCommand(),
			tellCommand(),
			listCommand(),
			stateCommand(),
			setupCommand(),
			removeCommand(),
		},
	}
}

func statusCommand() *cli.Command {
	var flags commonFlags
	return &cli.Command{
		Name:    "status",
		Summary: "Report this pane's activity status.",
		Usage:   "crew status [flags] <state>",
		Description: "Sends a status update for the invoking pane's tab.\n\nValid states: " +
			statusList() + ".",
		Examples: []cli.Example{
			{Description: "Mark this tab's agent as working", Command: "crew status working"},
			{Description: "Update a specific pane", Command: "crew status --pane 7 idle"},
		},
		Flags: flags.flagSet,
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: crew status <state> (valid states: %s)", statusList())
			}
			status, err := protocol.ParseStatus(args[0])
			if err != nil {
				return fmt.Errorf("%w (valid states: %s)", err, statusList())
			}
			pane, ok := flags.paneHandle()
			if !ok {
				// Hook invocation outside a crew session.
				return nil
			}
			return withSession(&flags, func(ctx context.Context, session *cli.Session) error {
				return session.Publish(protocol.StatusUpdate{Pane: &pane, State: status})
			})
		},
	}
}

func tellCommand() *cli.Command {
	var flags commonFlags
	return &cli.Command{
		Name:    "tell",
		Summary: "Send a message to a named tab's terminal.",
		Usage:   "crew tell [flags] <name> <message...>",
		Examples: []cli.Example{
			{Description: "Ask alice to review", Command: `crew tell alice "please review the diff"`},
		},
		Flags: flags.flagSet,
		Run: func(args []string) error {
			if len(args) < 2 {
				return fmt.Errorf("usage: crew tell <name> <message...>")
			}
			pane, _ := flags.paneHandle()
			tell := protocol.Tell{
				To:         args[0],
				SenderPane: pane,
				Message:    strings.Join(args[1:], " "),
			}
			return requestAndPrint(&flags, tell)
		},
	}
}

func listCommand() *cli.Command {
	var flags commonFlags
	var asJSON bool
	return &cli.Command{
		Name:    "list",
		Summary: "List all tabs with their statuses.",
		Usage:   "crew list [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := flags.flagSet()
			flagSet.BoolVar(&asJSON, "json", false, "machine-readable output")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("usage: crew list [--json]")
			}
			return requestAndPrint(&flags, protocol.StatusQuery{Kind: protocol.QueryList, JSON: asJSON})
		},
	}
}

func stateCommand() *cli.Command {
	var flags commonFlags
	return &cli.Command{
		Name:    "state",
		Summary: "Dump detailed per-tab state as JSON.",
		Usage:   "crew state [flags]",
		Flags:   flags.flagSet,
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("usage: crew state")
			}
			return requestAndPrint(&flags, protocol.StatusQuery{Kind: protocol.QueryState, JSON: true})
		},
	}
}

func setupCommand() *cli.Command {
	var settings string
	return &cli.Command{
		Name:    "setup",
		Summary: "Install agent lifecycle hooks that report status.",
		Usage:   "crew setup [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("setup", pflag.ContinueOnError)
			flagSet.StringVar(&settings, "settings", "", "agent settings file (default ~/.claude/settings.json)")
			return flagSet
		},
		Run: func(args []string) error {
			path, err := settingsPath(settings)
			if err != nil {
				return err
			}
			installed, skipped, err := cli.InstallHooks(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "crew: installed %d hooks, %d already present (%s)\n",
				installed, skipped, path)
			return nil
		},
	}
}

func removeCommand() *cli.Command {
	var settings string
	return &cli.Command{
		Name:    "remove",
		Summary: "Remove the agent lifecycle hooks.",
		Usage:   "crew remove [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("remove", pflag.ContinueOnError)
			flagSet.StringVar(&settings, "settings", "", "agent settings file (default ~/.claude/settings.json)")
			return flagSet
		},
		Run: func(args []string) error {
			path, err := settingsPath(settings)
			if err != nil {
				return err
			}
			removed, err := cli.RemoveHooks(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "crew: removed %d hooks (%s)\n", removed, path)
			return nil
		},
	}
}

func settingsPath(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	return cli.DefaultSettingsPath()
}

func withSession(flags *commonFlags, run func(context.Context, *cli.Session) error) error {
	socketPath, err := flags.socketPath()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	session, err := cli.Connect(ctx, socketPath, cli.NewCommandLogger())
	if err != nil {
		return err
	}
	defer session.Close()
	return run(ctx, session)
}

// requestAndPrint sends a request, prints the Authority's reply, and
// turns diagnostic replies into a non-zero exit.
func requestAndPrint(flags *commonFlags, message protocol.Message) error {
	return withSession(flags, func(ctx context.Context, session *cli.Session) error {
		text, err := session.Request(ctx, message)
		if err != nil {
			return err
		}
		if strings.HasPrefix(text, "error: ") {
			return fmt.Errorf("%s", strings.TrimSuffix(strings.TrimPrefix(text, "error: "), "\n"))
		}
		fmt.Print(text)
		return nil
	})
}

func statusList() string {
	names := make([]string, len(protocol.Statuses))
	for i, status := range protocol.Statuses {
		names[i] = string(status)
	}
	return strings.Join(names, ", ")
}
