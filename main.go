// main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"

	"github.com/stylecast/stylecast/internal/app"
	"github.com/stylecast/stylecast/internal/config"
	"github.com/stylecast/stylecast/internal/storage"
	"github.com/stylecast/stylecast/internal/util"
)

var (
	showHelp = flag.Bool("h", false, "Show help")
	version  = flag.Bool("version", false, "Show version")
)

// appVersion is set at build time via -ldflags "-X main.appVersion=x.y.z"
var appVersion = "dev"

const configFileName = "stylecast.json"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("StyleCast v%s\n", appVersion)
		return
	}
	if *showHelp {
		showUsage()
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		showUsage()
		return
	}

	switch args[0] {
	case "host":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Error: host command requires a session directory")
			fmt.Fprintln(os.Stderr, "Usage: stylecast host <session-directory>")
			os.Exit(1)
		}
		runHost(args[1])

	case "call":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "Error: call command requires a session directory and peer id")
			fmt.Fprintln(os.Stderr, "Usage: stylecast call <session-directory> <peer-id> [call-id]")
			os.Exit(1)
		}
		callID := ""
		if len(args) > 3 {
			callID = args[3]
		}
		runCall(args[1], args[2], callID)

	case "login":
		if len(args) < 5 {
			fmt.Fprintln(os.Stderr, "Error: login requires directory, token, user id, and user name")
			fmt.Fprintln(os.Stderr, "Usage: stylecast login <session-directory> <token> <user-id> <user-name>")
			os.Exit(1)
		}
		runLogin(args[1], args[2], args[3], args[4])

	case "logout":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Usage: stylecast logout <session-directory>")
			os.Exit(1)
		}
		runLogout(args[1])

	case "sessions":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Usage: stylecast sessions <session-directory>")
			os.Exit(1)
		}
		runSessions(args[1])

	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command '%s'\n", args[0])
		fmt.Fprintln(os.Stderr)
		showUsage()
		os.Exit(1)
	}
}

func runHost(dirArg string) {
	absDir, cfgPath, cfg := mustLoadSession(dirArg)
	printBanner(absDir, cfgPath, cfg, "")

	ctx, cancel := signalContext()
	defer cancel()

	if err := app.Run(ctx, app.Options{
		SessionDir: absDir,
		CfgPath:    cfgPath,
		Cfg:        cfg,
	}); err != nil {
		log.Fatalf("Host session failed: %v", err)
	}
}

func runCall(dirArg, peerID, callID string) {
	absDir, cfgPath, cfg := mustLoadSession(dirArg)
	if callID == "" {
		callID = "call-" + uuid.NewString()[:8]
	}
	printBanner(absDir, cfgPath, cfg, callID)

	ctx, cancel := signalContext()
	defer cancel()

	if err := app.Run(ctx, app.Options{
		SessionDir: absDir,
		CfgPath:    cfgPath,
		Cfg:        cfg,
		DialPeer:   peerID,
		DialCallID: callID,
	}); err != nil {
		log.Fatalf("Call failed: %v", err)
	}
}

func runLogin(dirArg, token, userID, userName string) {
	absDir, _, cfg := mustLoadSession(dirArg)
	db, err := storage.Open(util.ResolvePath(absDir, cfg.Storage.DBDir))
	if err != nil {
		log.Fatalf("Open storage: %v", err)
	}
	defer db.Close()

	err = db.SaveCredentials(storage.Credentials{Token: token, UserID: userID, UserName: userName})
	if err != nil {
		log.Fatalf("Save credentials: %v", err)
	}
	fmt.Printf("Logged in as %s (%s)\n", userName, userID)
}

func runLogout(dirArg string) {
	absDir, _, cfg := mustLoadSession(dirArg)
	db, err := storage.Open(util.ResolvePath(absDir, cfg.Storage.DBDir))
	if err != nil {
		log.Fatalf("Open storage: %v", err)
	}
	defer db.Close()

	if err := db.ClearCredentials(); err != nil {
		log.Fatalf("Clear credentials: %v", err)
	}
	fmt.Println("Logged out")
}

func runSessions(dirArg string) {
	absDir, _, cfg := mustLoadSession(dirArg)
	db, err := storage.Open(util.ResolvePath(absDir, cfg.Storage.DBDir))
	if err != nil {
		log.Fatalf("Open storage: %v", err)
	}
	defer db.Close()

	summaries, err := db.SessionSummaries()
	if err != nil {
		log.Fatalf("Read sessions: %v", err)
	}
	if len(summaries) == 0 {
		fmt.Println("No finished sessions yet")
		return
	}
	for _, s := range summaries {
		fmt.Printf("%-20s wardrobe=%-12s items=%d\n", s.CallID, s.WardrobeID, s.TotalItems)
	}
}

// mustLoadSession resolves the session directory and loads (or creates) its
// config file.
func mustLoadSession(dirArg string) (absDir, cfgPath string, cfg config.Config) {
	absDir, err := filepath.Abs(dirArg)
	if err != nil {
		log.Fatalf("Invalid session directory: %v", err)
	}
	if stat, err := os.Stat(absDir); err != nil || !stat.IsDir() {
		log.Fatalf("Session directory does not exist: %s", absDir)
	}

	cfgPath = filepath.Join(absDir, configFileName)
	cfg, created, err := config.Ensure(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if created {
		log.Printf("Created default config at %s", cfgPath)
	}
	return absDir, cfgPath, cfg
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("\nShutting down gracefully...")
		cancel()
	}()
	return ctx, cancel
}

func showUsage() {
	fmt.Println("StyleCast - live shopping session layer")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  stylecast host <directory>                       Host: wait for incoming calls")
	fmt.Println("  stylecast call <directory> <peer-id> [call-id]   Place an outbound call")
	fmt.Println("  stylecast login <directory> <token> <user-id> <user-name>")
	fmt.Println("  stylecast logout <directory>")
	fmt.Println("  stylecast sessions <directory>                   List finished session summaries")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -h        Show this help message")
	fmt.Println("  -version  Show version information")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  # Log in and host sessions from ./me")
	fmt.Println("  stylecast login ./me <token> u-42 Ada")
	fmt.Println("  stylecast host ./me")
	fmt.Println()
	fmt.Println("  # Call a friend")
	fmt.Println("  stylecast call ./me u-17")
}

func printBanner(dir, cfgPath string, cfg config.Config, callID string) {
	fmt.Println("╔════════════════════════════════════════════════════════╗")
	fmt.Println("║                 StyleCast Session Layer                ║")
	fmt.Println("╚════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("Session Directory: %s\n", dir)
	fmt.Printf("Config File:       %s\n", cfgPath)
	if cfg.Profile.Label != "" {
		fmt.Printf("Profile:           %s\n", cfg.Profile.Label)
	}
	fmt.Printf("Messaging:         %s\n", cfg.Messaging.ServerURL)
	fmt.Printf("Wardrobe API:      %s\n", cfg.API.BaseURL)
	if callID != "" {
		fmt.Printf("Call ID:           %s\n", callID)
	}
	fmt.Println()
	fmt.Println("Starting... (Press Ctrl+C to stop)")
	fmt.Println("────────────────────────────────────────────────────────")
	fmt.Println()
}
