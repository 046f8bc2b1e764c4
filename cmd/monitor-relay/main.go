package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	if cmd == "--version" {
		return runVersion(args)
	}

	switch cmd {
	case "poll":
		if hasHelpFlag(args) {
			printPollHelp()
			return 0
		}
		return runPoll(args)
	case "serve":
		if hasHelpFlag(args) {
			printServeHelp()
			return 0
		}
		return runServe(args)
	case "status":
		if hasHelpFlag(args) {
			printStatusHelp()
			return 0
		}
		return runStatus(args)
	case "watch":
		if hasHelpFlag(args) {
			printWatchHelp()
			return 0
		}
		return runWatch(args)

	// --- NOUNS ---
	case "webhook":
		return runWebhookNoun(args)
	case "config":
		return runConfigNoun(args)

	case "version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: monitor-relay version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("monitor-relay %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}

	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	resolvedCommit := strings.TrimSpace(gitCommit)
	if resolvedCommit == "" || resolvedCommit == "unknown" {
		resolvedCommit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if resolvedCommit != "" {
		info.Commit = shortenCommit(resolvedCommit)
	}

	resolvedBuildTime := strings.TrimSpace(buildDate)
	if resolvedBuildTime == "" || resolvedBuildTime == "unknown" {
		resolvedBuildTime = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalizedBuildTime, ok := normalizeBuildTimeUTC(resolvedBuildTime); ok {
		info.BuildTime = normalizedBuildTime
	}

	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}

	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`monitor-relay - Telegram remote control for GitHub Actions monitor workflows

Usage:
  monitor-relay <command> [flags]
  monitor-relay <noun> <action> [flags]

Relay Commands:
  poll              Run one getUpdates cycle (or loop with --every)
  serve             Receive updates on the webhook listener
  status            Print the latest run of every workflow
  watch             Live workflow status dashboard

Webhook Commands:
  webhook register  Point the bot at the public webhook URL
  webhook delete    Remove the webhook (required before polling)

Config Commands:
  config check      Validate configuration
  config lock       Record config file hashes in .checksums

Chat Commands (sent by the operator):
  /test             Liveness reply
  /trigger          Dispatch every workflow
  /status           Report the latest run of every workflow

General:
  --version         Show version information
  version           Show version information
  help              Show this help message

Use 'monitor-relay <command> --help' for command flags.
`)
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printPollHelp() {
	fmt.Println("Usage: monitor-relay poll [--config PATH] [--every DURATION]")
	fmt.Println("Fetch updates since the stored offset, handle them, and store the new offset.")
	fmt.Println("Without --every (or poller.every) a single cycle runs, suitable for cron.")
	fmt.Println("")
	fmt.Println("Exit codes:")
	fmt.Println("  0  Cycle completed, or another cycle holds the lock")
	fmt.Println("  1  Configuration or transport error")
}

func printServeHelp() {
	fmt.Println("Usage: monitor-relay serve [--config PATH]")
	fmt.Println("Start the webhook listener in the foreground.")
}

func printStatusHelp() {
	fmt.Println("Usage: monitor-relay status [--config PATH] [--json]")
	fmt.Println("Query the latest run of every workflow and print a table. Nothing is sent to Telegram.")
}

func printWatchHelp() {
	fmt.Println("Usage: monitor-relay watch [--config PATH] [--every DURATION]")
	fmt.Println()
	fmt.Println("Live workflow status dashboard.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --every DURATION Refresh interval (default: 30s)")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
	fmt.Println("  r                Refresh now")
	fmt.Println("  ↑/↓, k/j         Navigate workflows")
}
