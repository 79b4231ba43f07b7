package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alertbridge/alertbridge/internal/cli"
	"github.com/alertbridge/alertbridge/internal/cli/wizard"
	"github.com/alertbridge/alertbridge/internal/models"
	"github.com/alertbridge/alertbridge/internal/version"
)

const usage = `Usage: alertbridge <command> [options]

Commands:
  setup                                  interactive setup wizard
  providers                              list configured providers
  alerts                                 list received alerts
  scopes <provider-id>                   validate provider credential scopes
  provision <provider-id>                register the vendor-side webhook
  poll <provider-id>                     trigger an immediate poll
  mute <provider-id> <monitor-id>        mute a monitor
  unmute <provider-id> <monitor-id>      unmute a monitor
  events <provider-id> <monitor-id>      show recent events for a monitor
  logs <provider-id>                     show recent vendor logs
  monitors <provider-id>                 list vendor monitor configurations
  deploy <provider-id> <file>            create a vendor monitor from a JSON file
  query <provider-id>                    run a logs or metrics query
  version                                print version and exit

Global options (before the command):
  -config <path>                         path to CLI config file
`

func main() {
	configPath := flag.String("config", cli.DefaultConfigPath(), "path to config file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}
	cmd, rest := args[0], args[1:]

	if cmd == "version" {
		fmt.Println(version.String())
		return
	}

	cfg, err := cli.LoadConfig(*configPath)
	if err != nil {
		fatal("failed to load config: %v", err)
	}

	if cmd == "setup" {
		updated, err := wizard.Run(cfg)
		if err != nil {
			fatal("setup failed: %v", err)
		}
		if err := cli.SaveConfig(updated, *configPath); err != nil {
			fatal("failed to save config: %v", err)
		}
		fmt.Printf("Config saved to %s\n", *configPath)
		return
	}

	if !cfg.IsConfigured() {
		fmt.Fprintln(os.Stderr, "AlertBridge CLI is not configured. Run: alertbridge setup")
		os.Exit(1)
	}
	api := cli.NewAPIClient(cfg.ServerURL, cfg.Password, cfg.InsecureSkipTLS)

	switch cmd {
	case "providers":
		runProviders(api)
	case "alerts":
		runAlerts(api, rest)
	case "scopes":
		runScopes(api, rest)
	case "provision":
		runProvision(api, rest)
	case "poll":
		runPoll(api, rest)
	case "mute":
		runMute(api, rest)
	case "unmute":
		runUnmute(api, rest)
	case "events":
		runEvents(api, rest)
	case "logs":
		runLogs(api, rest)
	case "monitors":
		runMonitors(api, rest)
	case "deploy":
		runDeploy(api, rest)
	case "query":
		runQuery(api, rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		flag.Usage()
		os.Exit(1)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func requireArgs(rest []string, n int, what string) {
	if len(rest) < n {
		fatal("missing argument: %s", what)
	}
}

func runProviders(api *cli.APIClient) {
	providers, err := api.ListProviders()
	if err != nil {
		fatal("%v", err)
	}
	if len(providers) == 0 {
		fmt.Println("No providers configured.")
		return
	}
	fmt.Printf("%-38s %-10s %-20s %s\n", "ID", "TYPE", "NAME", "ENABLED")
	for _, p := range providers {
		fmt.Printf("%-38s %-10s %-20s %v\n", p.ID, p.Type, p.Name, p.Enabled)
	}
}

func runAlerts(api *cli.APIClient, rest []string) {
	fs := flag.NewFlagSet("alerts", flag.ExitOnError)
	providerID := fs.String("provider", "", "filter by provider id")
	severity := fs.String("severity", "", "filter by severity")
	limit := fs.Int("limit", 50, "max alerts to list")
	fs.Parse(rest)

	alerts, total, err := api.ListAlerts(*providerID, *severity, *limit)
	if err != nil {
		fatal("%v", err)
	}
	if len(alerts) == 0 {
		fmt.Println("No alerts.")
		return
	}
	fmt.Printf("%-10s %-10s %-40s %-8s %s\n", "SEVERITY", "STATUS", "NAME", "COUNT", "LAST RECEIVED")
	for _, a := range alerts {
		fmt.Printf("%-10s %-10s %-40s %-8d %s\n",
			a.Severity, a.Status, truncate(a.Name, 40), a.TimesReceived,
			a.LastReceived.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("\n%d of %d alerts shown.\n", len(alerts), total)
}

func runScopes(api *cli.APIClient, rest []string) {
	requireArgs(rest, 1, "provider-id")
	fmt.Println("Validating credential scopes (this probes the vendor API)...")
	scopes, err := api.ValidateScopes(rest[0])
	if err != nil {
		fatal("%v", err)
	}
	fmt.Println()
	wizard.PrintScopes(scopes)
}

func runProvision(api *cli.APIClient, rest []string) {
	requireArgs(rest, 1, "provider-id")
	fs := flag.NewFlagSet("provision", flag.ExitOnError)
	apiKey := fs.String("api-key", "", "ingest key the webhook authenticates with")
	patch := fs.Bool("patch-monitors", false, "add the webhook mention to every monitor message")
	fs.Parse(rest[1:])

	if *apiKey == "" {
		fatal("-api-key is required")
	}
	target, err := api.SetupWebhook(rest[0], *apiKey, *patch)
	if err != nil {
		fatal("%v", err)
	}
	fmt.Printf("Webhook registered, delivering to %s\n", target)
}

func runPoll(api *cli.APIClient, rest []string) {
	requireArgs(rest, 1, "provider-id")
	if err := api.Poll(rest[0]); err != nil {
		fatal("%v", err)
	}
	fmt.Println("Poll scheduled.")
}

func runMute(api *cli.APIClient, rest []string) {
	requireArgs(rest, 2, "provider-id and monitor-id")
	fs := flag.NewFlagSet("mute", flag.ExitOnError)
	groups := fs.String("groups", "", "comma-separated groups to mute (default: whole monitor)")
	untilStr := fs.String("until", "", "mute until (RFC3339, default: 24h from now)")
	fs.Parse(rest[2:])

	req := models.MuteRequest{}
	if *groups != "" {
		req.Groups = strings.Split(*groups, ",")
	}
	if *untilStr != "" {
		until, err := time.Parse(time.RFC3339, *untilStr)
		if err != nil {
			fatal("invalid -until value: %v", err)
		}
		req.Until = &until
	}
	if err := api.MuteMonitor(rest[0], rest[1], req); err != nil {
		fatal("%v", err)
	}
	fmt.Println("Monitor muted.")
}

func runUnmute(api *cli.APIClient, rest []string) {
	requireArgs(rest, 2, "provider-id and monitor-id")
	fs := flag.NewFlagSet("unmute", flag.ExitOnError)
	groups := fs.String("groups", "", "comma-separated groups to unmute (default: whole monitor)")
	fs.Parse(rest[2:])

	req := models.MuteRequest{}
	if *groups != "" {
		req.Groups = strings.Split(*groups, ",")
	}
	if err := api.UnmuteMonitor(rest[0], rest[1], req); err != nil {
		fatal("%v", err)
	}
	fmt.Println("Monitor unmuted.")
}

func runEvents(api *cli.APIClient, rest []string) {
	requireArgs(rest, 2, "provider-id and monitor-id")
	events, err := api.MonitorEvents(rest[0], rest[1])
	if err != nil {
		fatal("%v", err)
	}
	printJSON(events)
}

func runLogs(api *cli.APIClient, rest []string) {
	requireArgs(rest, 1, "provider-id")
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	limit := fs.Int("limit", 100, "max log records")
	fs.Parse(rest[1:])

	logs, err := api.Logs(rest[0], *limit)
	if err != nil {
		fatal("%v", err)
	}
	printJSON(logs)
}

func runMonitors(api *cli.APIClient, rest []string) {
	requireArgs(rest, 1, "provider-id")
	monitors, err := api.ListMonitors(rest[0])
	if err != nil {
		fatal("%v", err)
	}
	printJSON(monitors)
}

func runDeploy(api *cli.APIClient, rest []string) {
	requireArgs(rest, 2, "provider-id and definition file")

	var definition []byte
	var err error
	if rest[1] == "-" {
		definition, err = io.ReadAll(os.Stdin)
	} else {
		definition, err = os.ReadFile(rest[1])
	}
	if err != nil {
		fatal("read monitor definition: %v", err)
	}

	result, err := api.DeployMonitor(rest[0], definition)
	if err != nil {
		fatal("%v", err)
	}
	fmt.Printf("Monitor %q created with id %d\n", result.Name, result.MonitorID)
	if result.URL != "" {
		fmt.Println(result.URL)
	}
}

func runQuery(api *cli.APIClient, rest []string) {
	requireArgs(rest, 1, "provider-id")
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	kind := fs.String("kind", "metrics", `query kind: "logs" or "metrics"`)
	query := fs.String("query", "", "vendor query string")
	timeframe := fs.String("timeframe", "1h", `trailing window, e.g. "15m", "2h", "7d"`)
	fs.Parse(rest[1:])

	if *query == "" {
		fatal("-query is required")
	}
	result, err := api.Query(rest[0], *kind, *query, *timeframe)
	if err != nil {
		fatal("%v", err)
	}
	fmt.Printf("Window: %s .. %s\n",
		result.Window.From.Format(time.RFC3339), result.Window.To.Format(time.RFC3339))
	printJSON(result.Results)
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal("encode output: %v", err)
	}
	fmt.Println(string(out))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
