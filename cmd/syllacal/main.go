package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/njt/syllacal/internal/extract"
	"github.com/njt/syllacal/internal/output"
	"github.com/njt/syllacal/internal/plugin"
	"github.com/njt/syllacal/libsyllacal"
)

var (
	configMgr *libsyllacal.ConfigManager
	rootCmd   = &cobra.Command{
		Use:   "syllacal",
		Short: "Extract calendar entries from syllabus text and sync them to Google Calendar",
		Long:  `syllacal parses free-form syllabus text into events and tasks and pushes them into a Google Calendar account.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				slog.SetLogLoggerLevel(slog.LevelDebug)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: false,
	}
)

func init() {
	var err error
	configMgr, err = libsyllacal.NewConfigManager()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing config manager: %v\n", err)
		os.Exit(1)
	}

	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(pluginsCmd)
}

// newAuthenticator builds the authenticator over the file-backed credential store.
func newAuthenticator(config *libsyllacal.Config) (*libsyllacal.Authenticator, error) {
	if config.ClientID == "" || config.ClientSecret == "" {
		return nil, fmt.Errorf("client ID and client secret must be configured. Use 'syllacal config set' to configure")
	}

	store, err := libsyllacal.NewFileStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create credential store: %w", err)
	}

	return libsyllacal.NewAuthenticator(libsyllacal.AuthConfig{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		RedirectURL:  config.RedirectURL,
		Scopes:       config.Scopes,
	}, store), nil
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with Google Calendar",
	Long:  `Authenticate with Google Calendar using the OAuth authorization-code flow`,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := configMgr.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		auth, err := newAuthenticator(config)
		if err != nil {
			return err
		}

		redirect, err := url.Parse(config.RedirectURL)
		if err != nil {
			return fmt.Errorf("invalid redirect URL %q: %w", config.RedirectURL, err)
		}

		stateBytes := make([]byte, 16)
		if _, err := rand.Read(stateBytes); err != nil {
			return fmt.Errorf("failed to generate state: %w", err)
		}
		state := hex.EncodeToString(stateBytes)

		codeCh := make(chan string, 1)
		mux := http.NewServeMux()
		mux.HandleFunc(redirect.Path, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("state") != state {
				http.Error(w, "state mismatch", http.StatusBadRequest)
				return
			}
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "missing authorization code", http.StatusBadRequest)
				return
			}
			fmt.Fprintln(w, "Login complete. You can close this window and return to the terminal.")
			codeCh <- code
		})

		server := &http.Server{Addr: redirect.Host, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintf(os.Stderr, "callback server error: %v\n", err)
			}
		}()

		fmt.Println("Open this URL in your browser to sign in:")
		fmt.Println()
		fmt.Println(auth.AuthURL(state))
		fmt.Println()

		ctx := cmd.Context()
		var code string
		select {
		case code = <-codeCh:
		case <-time.After(5 * time.Minute):
			_ = server.Shutdown(context.Background())
			return fmt.Errorf("timed out waiting for authorization")
		case <-ctx.Done():
			_ = server.Shutdown(context.Background())
			return ctx.Err()
		}
		_ = server.Shutdown(context.Background())

		if _, err := auth.ExchangeCode(ctx, code); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}

		fmt.Println("Successfully authenticated!")
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out from Google Calendar",
	Long:  `Remove the stored OAuth credential`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := libsyllacal.NewFileStore()
		if err != nil {
			return fmt.Errorf("failed to open credential store: %w", err)
		}

		if err := store.Delete(); err != nil {
			return fmt.Errorf("logout failed: %w", err)
		}

		fmt.Println("Successfully logged out!")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	Long:  `Display whether a usable Google Calendar credential is stored`,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := configMgr.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		auth, err := newAuthenticator(config)
		if err != nil {
			return err
		}

		if !auth.IsAuthenticated(cmd.Context()) {
			fmt.Println("Status: Not authenticated")
			return nil
		}

		fmt.Println("Status: Authenticated")
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Manage syllacal configuration settings`,
}

var configSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set configuration values",
	Long:  `Set configuration values like the OAuth client ID and default timezone`,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := configMgr.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		set := func(flag string, target *string) {
			if v, _ := cmd.Flags().GetString(flag); v != "" {
				*target = v
			}
		}
		set("client-id", &config.ClientID)
		set("client-secret", &config.ClientSecret)
		set("redirect-url", &config.RedirectURL)
		set("timezone", &config.Timezone)
		set("openai-api-key", &config.OpenAIAPIKey)
		set("openai-model", &config.OpenAIModel)
		set("openai-base-url", &config.OpenAIBaseURL)

		if config.Timezone != "" {
			if _, err := time.LoadLocation(config.Timezone); err != nil {
				return fmt.Errorf("invalid timezone %q: %w", config.Timezone, err)
			}
		}

		if err := configMgr.Save(config); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		fmt.Println("Configuration saved successfully!")
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display current configuration settings`,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := configMgr.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		masked := func(s string) string {
			if s == "" {
				return "(not set)"
			}
			return "(set)"
		}

		fmt.Printf("Client ID: %s\n", config.ClientID)
		fmt.Printf("Client secret: %s\n", masked(config.ClientSecret))
		fmt.Printf("Redirect URL: %s\n", config.RedirectURL)
		fmt.Printf("Scopes: %v\n", config.Scopes)
		fmt.Printf("Timezone: %s\n", config.Timezone)
		fmt.Printf("OpenAI API key: %s\n", masked(config.OpenAIAPIKey))
		fmt.Printf("OpenAI model: %s\n", config.OpenAIModel)

		return nil
	},
}

// readInputText reads the syllabus text from a file or stdin ("-").
func readInputText(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read input file: %w", err)
	}
	return string(data), nil
}

// newOrchestrator wires the extraction strategies: AI when a key is
// configured, rule-based always available as the fallback.
func newOrchestrator(config *libsyllacal.Config, disableAI bool) *extract.Orchestrator {
	var ai extract.Extractor
	if !disableAI && config.OpenAIAPIKey != "" {
		ai = extract.NewAIExtractor(extract.AIConfig{
			APIKey:  config.OpenAIAPIKey,
			BaseURL: config.OpenAIBaseURL,
			Model:   config.OpenAIModel,
		})
	}
	return extract.NewOrchestrator(ai, nil)
}

// runExtraction is shared by parse and sync.
func runExtraction(cmd *cobra.Command, config *libsyllacal.Config) (*extract.Result, *time.Location, error) {
	input, _ := cmd.Flags().GetString("input")
	timezone, _ := cmd.Flags().GetString("timezone")
	noAI, _ := cmd.Flags().GetBool("no-ai")

	if timezone == "" {
		timezone = config.Timezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}

	text, err := readInputText(input)
	if err != nil {
		return nil, nil, err
	}

	orchestrator := newOrchestrator(config, noAI)
	result, err := orchestrator.Extract(cmd.Context(), text, time.Now().In(loc), loc)
	if err != nil {
		return nil, nil, fmt.Errorf("extraction failed: %w", err)
	}

	return result, loc, nil
}

// printEntries writes the human-readable entry listing.
func printEntries(result *extract.Result) {
	fmt.Printf("Found %d entries", len(result.Entries))
	if result.Dropped > 0 {
		fmt.Printf(" (%d candidates dropped)", result.Dropped)
	}
	if result.UsedFallback {
		fmt.Print(" [AI unavailable, used rule-based extraction]")
	}
	fmt.Println(":")

	for i, e := range result.Entries {
		fmt.Printf("[%d] %s (%s)\n", i+1, e.Title, e.Kind)
		if e.AllDay {
			fmt.Printf("    date: %s\n", e.Start.Format("2006-01-02"))
		} else {
			fmt.Printf("    start: %s\n", e.Start.Format("2006-01-02 15:04 MST"))
			fmt.Printf("    end:   %s\n", e.End.Format("2006-01-02 15:04 MST"))
		}
		if e.Location != "" {
			fmt.Printf("    location: %s\n", e.Location)
		}
		if e.Recurrence != nil {
			fmt.Printf("    repeats: weekly on %s (%d times)\n", e.Recurrence.Weekday, e.Recurrence.Count)
		}
	}
}

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Extract calendar entries from syllabus text",
	Long:  `Parse a plain-text syllabus into calendar-ready events and tasks without pushing them anywhere.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := configMgr.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		result, _, err := runExtraction(cmd, config)
		if err != nil {
			return err
		}

		if icsPath, _ := cmd.Flags().GetString("ics"); icsPath != "" {
			if err := libsyllacal.ExportICS(icsPath, result.Entries); err != nil {
				return err
			}
			fmt.Printf("Wrote ICS to %s\n", icsPath)
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			resp := output.FormatParseResponse(result.Entries, result.Dropped, result.UsedFallback)
			return output.WriteJSON(os.Stdout, resp)
		}

		if len(result.Entries) == 0 {
			fmt.Printf("No calendar-ready entries found (%d candidates dropped)\n", result.Dropped)
			return nil
		}

		printEntries(result)
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Extract entries and create them in Google Calendar",
	Long:  `Parse a plain-text syllabus and create one calendar event per extracted entry.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := configMgr.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		result, loc, err := runExtraction(cmd, config)
		if err != nil {
			return err
		}

		if icsPath, _ := cmd.Flags().GetString("ics"); icsPath != "" {
			if err := libsyllacal.ExportICS(icsPath, result.Entries); err != nil {
				return err
			}
			fmt.Printf("Wrote ICS to %s\n", icsPath)
		}

		if len(result.Entries) == 0 {
			fmt.Printf("No calendar-ready entries found (%d candidates dropped)\n", result.Dropped)
			return nil
		}

		if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
			printEntries(result)
			fmt.Println("\nDry run: skipping calendar sync")
			return nil
		}

		auth, err := newAuthenticator(config)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		httpClient, err := auth.AuthorizedClient(ctx)
		if err != nil {
			return err
		}

		client := libsyllacal.NewClient(httpClient)

		calendarID, _ := cmd.Flags().GetString("calendar-id")
		if newCalendar, _ := cmd.Flags().GetBool("new-calendar"); newCalendar {
			calendarName, _ := cmd.Flags().GetString("calendar-name")
			created, err := client.InsertCalendar(ctx, &libsyllacal.Calendar{
				Summary:     calendarName,
				Description: "Events extracted from academic syllabi",
				TimeZone:    loc.String(),
			})
			if err != nil {
				return fmt.Errorf("failed to create calendar: %w", err)
			}
			calendarID = created.ID
			fmt.Printf("Created calendar %q\n", calendarName)
		}

		syncer := libsyllacal.NewSyncer(client, &libsyllacal.SyncerOptions{CalendarID: calendarID})
		results := syncer.SyncAll(ctx, result.Entries)

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return output.WriteJSON(os.Stdout, output.FormatSyncResponse(results, calendarID))
		}

		var failed int
		for _, r := range results {
			if r.Err != nil {
				failed++
				fmt.Printf("FAILED  %s: %v\n", r.Title, r.Err)
				continue
			}
			fmt.Printf("created %s", r.Title)
			if r.Link != "" {
				fmt.Printf(" (%s)", r.Link)
			}
			fmt.Println()
		}

		fmt.Printf("\nCreated %d of %d entries", len(results)-failed, len(results))
		if failed > 0 {
			fmt.Printf(" (%d failed)", failed)
		}
		if result.Dropped > 0 {
			fmt.Printf("; %d candidates dropped before sync", result.Dropped)
		}
		fmt.Println()

		return nil
	},
}

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List available plugins",
	Long:  `List all available syllacal-* plugins in PATH`,
	RunE: func(cmd *cobra.Command, args []string) error {
		plugins, err := plugin.ListPlugins()
		if err != nil {
			return fmt.Errorf("failed to list plugins: %w", err)
		}

		if len(plugins) == 0 {
			fmt.Println("No plugins found in PATH")
			return nil
		}

		fmt.Println("Available plugins:")
		for _, p := range plugins {
			fmt.Printf("  - %s\n", p)
		}

		return nil
	},
}

func init() {
	configSetCmd.Flags().String("client-id", "", "Google OAuth client ID")
	configSetCmd.Flags().String("client-secret", "", "Google OAuth client secret")
	configSetCmd.Flags().String("redirect-url", "", "OAuth redirect URL (loopback)")
	configSetCmd.Flags().String("timezone", "", "Default IANA timezone for normalization")
	configSetCmd.Flags().String("openai-api-key", "", "API key for the AI extraction capability")
	configSetCmd.Flags().String("openai-model", "", "Model for the AI extraction capability")
	configSetCmd.Flags().String("openai-base-url", "", "Base URL for the AI extraction capability")

	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configShowCmd)

	parseCmd.Flags().StringP("input", "i", "-", "Input text file path or '-' to read stdin")
	parseCmd.Flags().String("timezone", "", "IANA timezone for normalization (default: configured timezone)")
	parseCmd.Flags().String("ics", "", "Also write entries to an .ics file")
	parseCmd.Flags().Bool("no-ai", false, "Skip the AI extractor and use rule-based extraction")
	parseCmd.Flags().Bool("json", false, "Output as JSON")

	syncCmd.Flags().StringP("input", "i", "-", "Input text file path or '-' to read stdin")
	syncCmd.Flags().String("timezone", "", "IANA timezone for normalization (default: configured timezone)")
	syncCmd.Flags().String("ics", "", "Also write entries to an .ics file")
	syncCmd.Flags().Bool("no-ai", false, "Skip the AI extractor and use rule-based extraction")
	syncCmd.Flags().String("calendar-id", "primary", "Target calendar ID")
	syncCmd.Flags().Bool("new-calendar", false, "Create a dedicated calendar for the entries")
	syncCmd.Flags().String("calendar-name", "Syllabus Events", "Name for the dedicated calendar")
	syncCmd.Flags().Bool("dry-run", false, "Don't create events; just show parsed results")
	syncCmd.Flags().Bool("json", false, "Output as JSON")
}

func main() {
	// Check if we should try to execute a plugin
	if len(os.Args) > 1 {
		cmdName := os.Args[1]
		isKnownCmd := false
		for _, cmd := range rootCmd.Commands() {
			if cmd.Name() == cmdName || cmd.HasAlias(cmdName) {
				isKnownCmd = true
				break
			}
		}

		// If not a known command and not a flag, try plugin
		if !isKnownCmd && cmdName != "" && !strings.HasPrefix(cmdName, "-") {
			if err := plugin.ExecutePlugin(cmdName, os.Args[2:]); err == nil {
				return
			}
			// If plugin fails, fall through to normal cobra execution
			// which will show the "unknown command" error
		}
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
