package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/claudish/claudish/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Manage the claudish configuration file.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration interactively",
	Long:  `Initialize configuration by prompting for an optional proxy API key, a default model, and local-provider base URLs and keys.`,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration.`,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  `Validate the current configuration for errors.`,
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	color.Blue("claudish Configuration Setup")
	color.Yellow("Credentials are normally supplied via environment variables (OPENROUTER_API_KEY, OLLAMA_BASE_URL, ...).")
	color.Yellow("This wizard only persists values you want remembered across restarts; leave a prompt blank to skip it.")

	reader := bufio.NewReader(os.Stdin)
	prompt := func(label string) string {
		fmt.Print(label)
		v, _ := reader.ReadString('\n')
		return strings.TrimSpace(v)
	}

	cfg := &config.Config{
		Host:            config.DefaultHost,
		Port:            config.DefaultPort,
		ReasoningPolicy: config.DefaultReasoningPolicy,
	}

	cfg.APIKey = prompt("\nclaudish API key (optional, required of incoming clients if set): ")
	cfg.DefaultModel = prompt("Default model id (e.g. ollama/qwen2.5 or anthropic/claude-3.5-sonnet): ")

	color.Cyan("\nLocal providers (leave name blank to stop adding more):")
	for {
		name := prompt("  Provider name (ollama, lmstudio, vllm, mlx): ")
		if name == "" {
			break
		}
		baseURL := prompt("  Base URL (recorded only; requests use the provider's env var): ")
		apiKey := prompt("  API key (blank if unauthenticated): ")

		cfg.Providers = append(cfg.Providers, config.Provider{
			Name:    name,
			BaseURL: baseURL,
			APIKey:  apiKey,
		})
	}

	if err := cfgMgr.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	color.Green("Configuration saved successfully to: %s", cfgMgr.GetPath())
	color.Cyan("You can now start claudish with: claudish start")

	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if !cfgMgr.Exists() {
		color.Yellow("No configuration found. Run 'claudish config init' to create one.")
		return nil
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	color.Blue("Current Configuration:")
	fmt.Printf("  %-17s: %s\n", "Host", cfg.Host)
	fmt.Printf("  %-17s: %d\n", "Port", cfg.Port)
	fmt.Printf("  %-17s: %s\n", "API Key", maskString(cfg.APIKey))
	fmt.Printf("  %-17s: %s\n", "Reasoning Policy", cfg.ReasoningPolicy)
	fmt.Printf("  %-17s: %s\n", "Default Model", cfg.DefaultModel)
	fmt.Printf("  %-17s: %s\n", "Config Path", cfgMgr.GetPath())

	fmt.Println("\nLocal Providers:")
	if len(cfg.Providers) == 0 {
		fmt.Println("  (none persisted; env vars are consulted directly at request time)")
	}
	for _, provider := range cfg.Providers {
		fmt.Printf("  - Name: %s\n", provider.Name)
		fmt.Printf("    Base URL: %s\n", provider.BaseURL)
		fmt.Printf("    API Key: %s\n", maskString(provider.APIKey))
	}

	return nil
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	if !cfgMgr.Exists() {
		return fmt.Errorf("no configuration found")
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	var errs []string

	switch cfg.ReasoningPolicy {
	case "as_text", "as_thinking", "suppress":
	default:
		errs = append(errs, fmt.Sprintf("invalid reasoning_policy %q (want as_text, as_thinking, or suppress)", cfg.ReasoningPolicy))
	}

	for i, provider := range cfg.Providers {
		if provider.Name == "" {
			errs = append(errs, fmt.Sprintf("provider %d: name is required", i))
		}
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d", cfg.Port))
	}

	if len(errs) > 0 {
		color.Red("Configuration validation failed:")
		for _, e := range errs {
			fmt.Printf("  - %s\n", e)
		}
		return fmt.Errorf("configuration validation failed")
	}

	color.Green("Configuration is valid!")
	return nil
}

func maskString(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
