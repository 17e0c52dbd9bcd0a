package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/normanking/jarvis/internal/apperr"
	"github.com/normanking/jarvis/internal/config"
	"github.com/normanking/jarvis/internal/intent"
	"github.com/normanking/jarvis/internal/logging"
	"github.com/normanking/jarvis/internal/metrics"
)

var (
	version = "0.1.0"
	cfgPath string
	connect string
	verbose bool
	noColor bool

	cfg    *config.Config
	logger *logging.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "jarvis",
		Short: "Jarvis - voice assistant core for a media player",
		Long: `Jarvis turns spoken commands into player intents and answers questions.

  • Local tiers first: cache, exact phrases, grammar
  • Remote classification with quota, retries and an offline queue
  • Encrypted API key storage

Start the privileged service:  jarvis serve
Resolve a command:             jarvis resolve "skip 30 seconds"
Ask a question:                jarvis ask "what is this video about?"`,
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
		SilenceUsage:       true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.jarvis/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&connect, "connect", "", "router websocket address of a running `jarvis serve`, e.g. ws://127.0.0.1:8765/ws")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Jarvis v%s\n", version)
		},
	})

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(keyCmd())
	rootCmd.AddCommand(quotaCmd())
	rootCmd.AddCommand(queueCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// SETUP
// ═══════════════════════════════════════════════════════════════════════════════

func setup(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(config.DataDir()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	var err error
	if cfgPath != "" {
		cfg, err = config.LoadFromPath(cfgPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	opts := cfg.LoggerOptions()
	opts.NoColor = noColor
	if verbose {
		opts.Level = "debug"
		opts.ShowCaller = true
	}
	logger, err = logging.New(opts)
	if err != nil {
		return err
	}
	logging.SetGlobal(logger.Logger)

	if noColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	logger.Debug().Str("config", cfgPath).Str("connect", connect).Msg("jarvis starting")
	return nil
}

func teardown(cmd *cobra.Command, args []string) error {
	if logger != nil {
		return logger.Close()
	}
	return nil
}

func openApp(ctx context.Context) (*app, error) {
	return newApp(ctx, cfg, logger.Logger, connect)
}

func commandContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// spoken prints the assistant's words for err and returns err for the exit code.
func spoken(err error) error {
	if msg := apperr.UserMessage(err); msg != "" {
		fmt.Fprintln(os.Stderr, msg)
	}
	return err
}

// ═══════════════════════════════════════════════════════════════════════════════
// RESOLVE
// ═══════════════════════════════════════════════════════════════════════════════

func resolveCmd() *cobra.Command {
	var localOnly, asJSON bool

	cmd := &cobra.Command{
		Use:   "resolve [utterance]",
		Short: "Resolve an utterance into a player intent",
		Long: `Run an utterance through the resolution tiers and print the intent.

Examples:
  jarvis resolve pause
  jarvis resolve "skip 30 seconds"
  jarvis resolve --local "make it twice as fast"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(time.Minute)
			defer cancel()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			r := a.resolver
			if localOnly {
				r = a.newResolver(false)
			}
			in := r.Resolve(ctx, strings.Join(args, " "))

			if asJSON {
				return printYAMLorJSON(in, true)
			}
			fmt.Println(renderIntent(in))
			return nil
		},
	}
	cmd.Flags().BoolVar(&localOnly, "local", false, "skip the remote classifier")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the intent as JSON")
	return cmd
}

func renderIntent(in intent.Intent) string {
	label := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	action := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	source := lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	var sb strings.Builder
	sb.WriteString(label.Render("action     ") + action.Render(in.Action) + "\n")
	if !in.Parameter.IsNull() {
		sb.WriteString(label.Render("parameter  ") + in.Parameter.String() + "\n")
	}
	sb.WriteString(label.Render("confidence ") + fmt.Sprintf("%.2f", in.Confidence) + "\n")
	sb.WriteString(label.Render("source     ") + source.Render(in.Source.String()))
	return sb.String()
}

// ═══════════════════════════════════════════════════════════════════════════════
// ASK
// ═══════════════════════════════════════════════════════════════════════════════

func askCmd() *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask Jarvis a question (one-shot)",
		Long: `Ask a question and get a conversational answer.

Examples:
  jarvis ask "what did the speaker just say about entropy?"
  jarvis ask --plain "explain this in one sentence"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(2 * time.Minute)
			defer cancel()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			answer, err := a.proxy.Complete(ctx, strings.Join(args, " "))
			if err != nil {
				return spoken(err)
			}

			if plain || noColor {
				fmt.Println(answer)
				return nil
			}
			fmt.Println(renderMarkdown(answer))
			return nil
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "print the answer without markdown rendering")
	return cmd
}

func renderMarkdown(content string) string {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return content
	}
	rendered, err := renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(rendered, "\n")
}

// ═══════════════════════════════════════════════════════════════════════════════
// KEY
// ═══════════════════════════════════════════════════════════════════════════════

func keyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the stored API key",
	}

	var fromEnv bool
	set := &cobra.Command{
		Use:   "set [key]",
		Short: "Encrypt and store the API key",
		Long: `Store the API key. With --from-env the key is read from OPENAI_API_KEY,
which may come from ~/.jarvis/.env.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			switch {
			case fromEnv:
				key = os.Getenv("OPENAI_API_KEY")
				if key == "" {
					return errors.New("OPENAI_API_KEY is not set")
				}
			case len(args) == 1:
				key = args[0]
			default:
				return errors.New("pass the key as an argument or use --from-env")
			}
			// Pasted keys and .env values often carry a stray newline.
			key = strings.TrimSpace(key)
			if key == "" {
				return errors.New("the API key is blank")
			}

			ctx, cancel := commandContext(30 * time.Second)
			defer cancel()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.proxy.SetCredential(ctx, key); err != nil {
				return err
			}
			fmt.Println("✅ API key stored")
			return nil
		},
	}
	set.Flags().BoolVar(&fromEnv, "from-env", false, "read the key from OPENAI_API_KEY")
	cmd.AddCommand(set)

	var reveal bool
	get := &cobra.Command{
		Use:   "get",
		Short: "Show the stored API key (masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(30 * time.Second)
			defer cancel()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			key, ok, err := a.proxy.GetCredential(ctx)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println(apperr.MessageAPIKeyMissing)
				return nil
			}
			if reveal {
				fmt.Println(key)
			} else {
				fmt.Println(maskKey(key))
			}
			return nil
		},
	}
	get.Flags().BoolVar(&reveal, "reveal", false, "print the full key")
	cmd.AddCommand(get)

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the stored API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(30 * time.Second)
			defer cancel()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.proxy.ClearCredential(ctx); err != nil {
				return err
			}
			fmt.Println("API key removed")
			return nil
		},
	})

	return cmd
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("•", len(key))
	}
	return key[:4] + strings.Repeat("•", len(key)-8) + key[len(key)-4:]
}

// ═══════════════════════════════════════════════════════════════════════════════
// QUOTA
// ═══════════════════════════════════════════════════════════════════════════════

func quotaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Show the remote call quota window",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(30 * time.Second)
			defer cancel()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			status, err := a.proxy.Quota(ctx)
			if err != nil {
				return err
			}
			fmt.Println(metrics.NewDashboard(a.collector).RenderQuota(status))
			return nil
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// QUEUE
// ═══════════════════════════════════════════════════════════════════════════════

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and replay the offline queue",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List queued requests, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(30 * time.Second)
			defer cancel()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.requirePrivileged("queue list"); err != nil {
				return err
			}

			entries, err := a.gateway.Queue().List(ctx)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("Queue is empty")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%s  %-8s  %s  %s\n", e.EnqueuedAt.Local().Format("2006-01-02 15:04:05"), e.Kind, e.ID, e.Payload)
			}
			fmt.Printf("\n%d of %d\n", len(entries), a.gateway.Queue().Max())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "drain",
		Short: "Replay queued requests now",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(5 * time.Minute)
			defer cancel()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.proxy.DrainQueue(ctx)
			if err != nil {
				return spoken(err)
			}
			fmt.Printf("replayed %d, dropped %d, remaining %d\n", res.Replayed, res.Dropped, res.Remaining)
			if res.Stopped != "" {
				fmt.Printf("stopped early: %s\n", res.Stopped)
			}
			return nil
		},
	})

	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// CONFIG
// ═══════════════════════════════════════════════════════════════════════════════

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printYAMLorJSON(cfg, false)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			if cfgPath != "" {
				fmt.Println(cfgPath)
				return
			}
			fmt.Println(config.DefaultPath())
		},
	})

	return cmd
}

func printYAMLorJSON(v any, asJSON bool) error {
	if asJSON {
		return printJSON(v)
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
