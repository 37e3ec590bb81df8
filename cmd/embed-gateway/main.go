// ABOUTME: Entry point for embed-gateway, the guest token server for embedded dashboards
// ABOUTME: Subcommands: serve, token, verify, health

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/2389/embed-gateway/internal/config"
	"github.com/2389/embed-gateway/internal/gateway"
	"github.com/2389/embed-gateway/internal/guesttoken"
	"github.com/2389/embed-gateway/internal/signer"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                _              _                   _
  ___ _ __ ___ | |__   ___  __| |       __ _ _ __ | |_ _____      ____ _ _   _
 / _ \ '_ ' _ \| '_ \ / _ \/ _' |_____ / _' | '_ \| __/ _ \ \ /\ / / _' | | | |
|  __/ | | | | | |_) |  __/ (_| |_____| (_| | | | | ||  __/\ V  V / (_| | |_| |
 \___|_| |_| |_|_.__/ \___|\__,_|      \__, |_| |_|\__\___| \_/\_/ \__,_|\__, |
                                       |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: --config flag > EMBED_GATEWAY_CONFIG env var > XDG_CONFIG_HOME/embed-gateway/gateway.yaml > ~/.config/embed-gateway/gateway.yaml
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envPath := os.Getenv("EMBED_GATEWAY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "embed-gateway", "gateway.yaml")
}

func printUsage() {
	fmt.Println("Usage: embed-gateway <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                      Start the guest token HTTP server")
	fmt.Println("  token [--auth-type pem]    Issue one guest token and print it")
	fmt.Println("  verify --public-key FILE   Verify a locally signed guest token")
	fmt.Println("  health                     Check gateway health")
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	args := os.Args[2:]
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, args)
	case "token":
		err = runToken(ctx, args)
	case "verify":
		err = runVerify(args)
	case "health":
		err = runHealth(ctx, args)
	case "help", "-h", "--help":
		printUsage()
	case "version", "--version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func runServe(ctx context.Context, args []string) error {
	fs := newFlagSet("serve")
	configFlag := fs.StringP("config", "c", "", "path to config file (.yaml or .toml)")
	httpAddr := fs.String("http-addr", "", "override server.http_addr")
	if err := fs.Parse(args); err != nil {
		return err
	}

	configPath := getConfigPath(*configFlag)

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.LoadOrEnv(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *httpAddr != "" {
		cfg.Server.HTTPAddr = *httpAddr
	}

	logger := setupLogger(cfg.Logging, os.Stdout)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Upstream:  %s\n", cfg.Upstream.BaseURL)
	green.Print("    ▶ ")
	fmt.Printf("Dashboard: ")
	if cfg.Embed.DashboardID == "" {
		yellow.Println("(not configured)")
	} else {
		cyan.Println(cfg.Embed.DashboardID)
	}
	fmt.Println()

	logger.Info("starting embed-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"upstream", cfg.Upstream.BaseURL,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func runToken(ctx context.Context, args []string) error {
	fs := newFlagSet("token")
	configFlag := fs.StringP("config", "c", "", "path to config file (.yaml or .toml)")
	authType := fs.String("auth-type", string(guesttoken.ModeAPI), "api (remote exchange) or pem (local signing)")
	verbose := fs.BoolP("verbose", "v", false, "log issuance details to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadOrEnv(getConfigPath(*configFlag))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logCfg := cfg.Logging
	if !*verbose {
		logCfg.Level = "error"
	}
	logger := setupLogger(logCfg, os.Stderr)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	token, err := gw.IssueToken(ctx, guesttoken.ParseMode(*authType))
	if err != nil {
		return fmt.Errorf("issuing guest token: %s", guesttoken.PublicMessage(err))
	}

	fmt.Println(token)
	return nil
}

func runVerify(args []string) error {
	fs := newFlagSet("verify")
	publicKeyPath := fs.String("public-key", "", "path to the PEM public key")
	audience := fs.String("audience", "", "expected workspace slug (aud claim)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *publicKeyPath == "" {
		return fmt.Errorf("--public-key is required")
	}

	publicKeyPEM, err := os.ReadFile(*publicKeyPath)
	if err != nil {
		return fmt.Errorf("reading public key: %w", err)
	}

	token, err := readTokenArg(fs.Args(), os.Stdin)
	if err != nil {
		return err
	}

	claims, kid, err := signer.Verify(token, publicKeyPEM, *audience)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Fprint(os.Stderr, "✓ ")
	fmt.Fprintf(os.Stderr, "signature valid (kid=%s)\n", kid)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(claims)
}

// readTokenArg takes the token from the first argument, or the first line of r.
func readTokenArg(args []string, r io.Reader) (string, error) {
	if len(args) > 1 {
		return "", fmt.Errorf("unexpected argument: %s", args[1])
	}
	if len(args) == 1 {
		return strings.TrimSpace(args[0]), nil
	}

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading token: %w", err)
	}
	token := strings.Trim(strings.TrimSpace(line), `"`)
	if token == "" {
		return "", fmt.Errorf("token is required (argument or stdin)")
	}
	return token, nil
}

func runHealth(ctx context.Context, args []string) error {
	fs := newFlagSet("health")
	configFlag := fs.StringP("config", "c", "", "path to config file (.yaml or .toml)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadOrEnv(getConfigPath(*configFlag))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", dialableAddr(cfg.Server.HTTPAddr))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

// dialableAddr maps wildcard listen hosts to loopback.
func dialableAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
