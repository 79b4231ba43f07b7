package wizard

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/alertbridge/alertbridge/internal/cli"
	"github.com/alertbridge/alertbridge/internal/models"
)

// Run executes the interactive setup wizard and returns an updated config.
func Run(existingConfig *cli.Config) (*cli.Config, error) {
	cfg := existingConfig
	if cfg == nil {
		cfg = cli.DefaultConfig()
	}

	fmt.Println()
	fmt.Println("  ╔══════════════════════════════════════╗")
	fmt.Println("  ║        AlertBridge CLI Setup         ║")
	fmt.Println("  ╚══════════════════════════════════════╝")
	fmt.Println()

	if cfg.IsConfigured() {
		fmt.Println("  Existing configuration detected.")
		fmt.Println()
	}

	for {
		action, err := runSetupMenu(cfg)
		if err != nil {
			return nil, err
		}
		switch action {
		case "server":
			if err := runServerForm(cfg); err != nil {
				return nil, fmt.Errorf("server setup: %w", err)
			}
		case "provider":
			if !cfg.IsConfigured() {
				fmt.Println("  Configure the server connection first.")
				fmt.Println()
				continue
			}
			if err := runProviderForm(cfg); err != nil {
				return nil, fmt.Errorf("provider setup: %w", err)
			}
		case "save":
			if !cfg.IsConfigured() {
				fmt.Println("  Server URL and admin password are required before saving.")
				fmt.Println()
				continue
			}
			return cfg, nil
		case "cancel":
			return nil, fmt.Errorf("setup cancelled by user")
		}
	}
}

func runSetupMenu(cfg *cli.Config) (string, error) {
	serverLabel := cfg.ServerURL
	if strings.TrimSpace(serverLabel) == "" {
		serverLabel = "<not set>"
	}

	var action string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Setup menu").
				Description(fmt.Sprintf("Server: %s", truncate(serverLabel, 40))).
				Options(
					huh.NewOption("Configure server connection", "server"),
					huh.NewOption("Add a Datadog provider", "provider"),
					huh.NewOption("Save and exit", "save"),
					huh.NewOption("Cancel setup", "cancel"),
				).
				Value(&action),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	return action, nil
}

func runServerForm(cfg *cli.Config) error {
	serverURL := cfg.ServerURL
	password := cfg.Password
	insecure := cfg.InsecureSkipTLS

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Server URL").
				Description("The URL of your AlertBridge server").
				Placeholder("https://alerts.example.com").
				Value(&serverURL),
			huh.NewInput().
				Title("Admin Password").
				Description("The admin password configured on the server").
				EchoMode(huh.EchoModePassword).
				Value(&password),
			huh.NewConfirm().
				Title("Allow self-signed certificates?").
				Description("Enable if your server uses a self-signed TLS certificate").
				Value(&insecure),
		),
	)

	if err := form.Run(); err != nil {
		return err
	}

	// Normalize URL
	serverURL = strings.TrimRight(serverURL, "/")
	if !strings.HasPrefix(serverURL, "http://") && !strings.HasPrefix(serverURL, "https://") {
		serverURL = "https://" + serverURL
	}

	// Test connection
	fmt.Printf("\n  Testing connection to %s... ", serverURL)
	api := cli.NewAPIClient(serverURL, password, insecure)
	if err := api.Health(); err != nil {
		fmt.Printf("FAILED\n")
		fmt.Printf("  Error: %s\n\n", err)

		var keep bool
		retryForm := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Connection failed. Continue anyway?").
					Value(&keep),
			),
		)
		if err := retryForm.Run(); err != nil {
			return err
		}
		if !keep {
			return fmt.Errorf("connection test failed")
		}
	} else {
		fmt.Printf("OK\n\n")
	}

	cfg.ServerURL = serverURL
	cfg.Password = password
	cfg.InsecureSkipTLS = insecure
	return nil
}

func runProviderForm(cfg *cli.Config) error {
	var name, apiKey, appKey string
	site := "datadoghq.com"
	validateNow := true

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Provider name").
				Placeholder("production").
				Value(&name),
			huh.NewInput().
				Title("Datadog API key").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
			huh.NewInput().
				Title("Datadog application key").
				EchoMode(huh.EchoModePassword).
				Value(&appKey),
			huh.NewSelect[string]().
				Title("Datadog site").
				Options(
					huh.NewOption("US1 (datadoghq.com)", "datadoghq.com"),
					huh.NewOption("EU (datadoghq.eu)", "datadoghq.eu"),
					huh.NewOption("US3 (us3.datadoghq.com)", "us3.datadoghq.com"),
					huh.NewOption("US5 (us5.datadoghq.com)", "us5.datadoghq.com"),
				).
				Value(&site),
			huh.NewConfirm().
				Title("Validate credential scopes after creating?").
				Value(&validateNow),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}
	if name == "" || apiKey == "" || appKey == "" {
		return fmt.Errorf("name, api key and application key are required")
	}

	config := fmt.Sprintf(`{"api_key":%q,"app_key":%q,"site":%q}`, apiKey, appKey, site)
	api := cli.NewAPIClient(cfg.ServerURL, cfg.Password, cfg.InsecureSkipTLS)
	created, err := api.CreateProvider(&models.ProviderInstance{
		Type:    "datadog",
		Name:    name,
		Enabled: true,
		Config:  config,
	})
	if err != nil {
		return fmt.Errorf("create provider: %w", err)
	}
	fmt.Printf("\n  Provider %q created (id %s).\n", created.Name, created.ID)

	if validateNow {
		fmt.Print("  Validating credential scopes... ")
		scopes, err := api.ValidateScopes(created.ID)
		if err != nil {
			fmt.Printf("FAILED\n  Error: %s\n\n", err)
			return nil
		}
		fmt.Printf("done\n\n")
		PrintScopes(scopes)
	}
	fmt.Println()
	return nil
}

// PrintScopes renders scope validation results as an aligned list.
func PrintScopes(scopes []models.ScopeResult) {
	for _, sc := range scopes {
		mark := "granted"
		if !sc.Granted {
			mark = "DENIED"
		}
		fmt.Printf("  %-24s %-8s", sc.Name, mark)
		if sc.Mandatory {
			fmt.Print(" (mandatory)")
		}
		fmt.Println()
		if !sc.Granted && sc.Reason != "" {
			fmt.Printf("      reason: %s\n", sc.Reason)
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
