package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/mattjoyce/monitor-relay/internal/config"
	"github.com/mattjoyce/monitor-relay/internal/doctor"
)

// --- NOUN DISPATCHERS ---

func runWebhookNoun(args []string) int {
	if len(args) < 1 {
		printWebhookNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printWebhookNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "register":
		if hasHelpFlag(actionArgs) {
			printWebhookRegisterHelp()
			return 0
		}
		return runWebhookRegister(actionArgs)
	case "delete":
		if hasHelpFlag(actionArgs) {
			printWebhookDeleteHelp()
			return 0
		}
		return runWebhookDelete(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown webhook action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

// --- WEBHOOK ---

// webhookURL appends the configured path when base has none.
func webhookURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid --url: %w", err)
	}
	if u.Scheme != "https" {
		return "", fmt.Errorf("invalid --url %q: Telegram only delivers to https URLs", base)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = path
	}
	return u.String(), nil
}

func runWebhookRegister(args []string) int {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	baseURL := fs.String("url", "", "Public https URL of the webhook listener")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if *baseURL == "" {
		fmt.Fprintln(os.Stderr, "Usage: monitor-relay webhook register --url https://host[/path]")
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if err := cfg.CheckTelegram(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	target, err := webhookURL(*baseURL, cfg.Webhook.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Telegram.RequestTimeout)
	defer cancel()
	if err := newTelegramClient(cfg).SetWebhook(ctx, target, cfg.Webhook.Secret); err != nil {
		fmt.Fprintf(os.Stderr, "setWebhook failed: %v\n", err)
		return 1
	}

	fmt.Printf("Webhook registered: %s\n", target)
	if cfg.Webhook.Secret == "" {
		fmt.Println("Warning: no webhook.secret configured; requests are not authenticated.")
	}
	return 0
}

func runWebhookDelete(args []string) int {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	dropPending := fs.Bool("drop-pending", false, "Discard updates queued while the webhook was set")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if err := cfg.CheckTelegram(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Telegram.RequestTimeout)
	defer cancel()
	if err := newTelegramClient(cfg).DeleteWebhook(ctx, *dropPending); err != nil {
		fmt.Fprintf(os.Stderr, "deleteWebhook failed: %v\n", err)
		return 1
	}

	fmt.Println("Webhook deleted; polling mode can be used.")
	return 0
}

// --- CONFIG ---

func runConfigCheck(args []string) int {
	var configPath string
	var strict, jsonOut bool
	var format string

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&strict, "strict", false, "Treat warnings as errors")
	fs.StringVar(&format, "format", "human", "Output format (human, json)")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if jsonOut {
		format = "json"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	result := doctor.New(cfg).Validate()

	switch format {
	case "json":
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	default:
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	if strict && len(result.Warnings) > 0 {
		return 2
	}
	return 0
}

func runConfigLock(args []string) int {
	var configPath string
	var verbose, verboseShort, dryRun bool

	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&verboseShort, "v", false, "Verbose output")
	fs.BoolVar(&dryRun, "dry-run", false, "Dry run")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	isVerbose := verbose || verboseShort

	if configPath == "" {
		discovered, err := config.DiscoverConfigPath()
		if errors.Is(err, config.ErrNoConfigFile) {
			fmt.Fprintln(os.Stderr, "No config file to lock; pass --config PATH")
			return 1
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
			return 1
		}
		configPath = discovered
	}

	absPath, err := filepath.Abs(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve config path: %v\n", err)
		return 1
	}
	if info, err := os.Stat(absPath); err == nil && info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
	}

	dir, name := filepath.Dir(absPath), filepath.Base(absPath)
	if isVerbose {
		fmt.Printf("Processing directory: %s\n", dir)
	}

	report, err := config.GenerateChecksumsWithReport(dir, []string{name}, dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to update checksums: %v\n", err)
		return 1
	}

	for _, f := range report.Files {
		if !f.Exists {
			fmt.Fprintf(os.Stderr, "Config file not found: %s\n", f.Path)
			return 1
		}
		if isVerbose {
			fmt.Printf("  HASH %s: %s\n", f.Filename, f.Hash)
		}
	}

	switch {
	case dryRun:
		fmt.Printf("Dry run: %s not written\n", report.ChecksumPath)
	case report.Written:
		fmt.Printf("Locked %s (%s)\n", name, report.ChecksumPath)
	}
	return 0
}

// --- HELP ---

func printWebhookNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: monitor-relay webhook <action>")
	fmt.Fprintln(w, "Actions: register, delete")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: monitor-relay config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, lock")
}

func printWebhookRegisterHelp() {
	fmt.Println("Usage: monitor-relay webhook register --url URL [--config PATH]")
	fmt.Println("Call setWebhook with the public URL and webhook.secret.")
	fmt.Println("When URL has no path, webhook.path is appended.")
}

func printWebhookDeleteHelp() {
	fmt.Println("Usage: monitor-relay webhook delete [--drop-pending] [--config PATH]")
	fmt.Println("Call deleteWebhook so getUpdates polling works again.")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: monitor-relay config check [--config PATH] [--strict] [--json]")
	fmt.Println("Validate configuration and report errors and warnings.")
	fmt.Println("")
	fmt.Println("Exit codes:")
	fmt.Println("  0  Valid")
	fmt.Println("  1  Invalid, or the config could not be loaded")
	fmt.Println("  2  Valid with warnings (--strict only)")
}

func printConfigLockHelp() {
	fmt.Println("Usage: monitor-relay config lock [--config PATH] [-v|--verbose] [--dry-run]")
	fmt.Println("Record the config file's BLAKE3 hash in .checksums; later loads refuse a modified file.")
}

