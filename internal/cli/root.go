package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/spf13/cobra"

	"github.com/apresai/personagen/internal/config"
	"github.com/apresai/personagen/internal/contract"
	"github.com/apresai/personagen/internal/gateway"
	"github.com/apresai/personagen/internal/observability"
	"github.com/apresai/personagen/internal/persona"
	"github.com/apresai/personagen/internal/pipeline"
	"github.com/apresai/personagen/internal/progress"
)

var Version = "dev"

var rootCmd = &cobra.Command{
	Use:          "personagen",
	Short:        "Generate ideal-client personas for therapists with a quality-checked LLM pipeline",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		flagTUI = true
		return runGenerate(cmd, args)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "personagen %s (contract %s)\n", Version, contract.Default().Version)
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a persona from therapist details",
	RunE:  runGenerate,
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List supported models",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		for _, name := range gateway.ModelNames() {
			def := ""
			if name == gateway.DefaultModel {
				def = " (default)"
			}
			fmt.Fprintf(out, "  %-16s %s%s\n", name, gateway.ProviderFor(name), def)
		}
	},
}

var (
	flagName            string
	flagFocus           string
	flagTarget          string
	flagYears           int
	flagEnergizing      []string
	flagDraining        []string
	flagTopics          []string
	flagFraming         string
	flagRequest         string
	flagModel           string
	flagContract        string
	flagMaxRetries      int
	flagDeadline        time.Duration
	flagNoSummary       bool
	flagOutput          string
	flagMarkdown        string
	flagJSON            bool
	flagVerbose         bool
	flagTUI             bool
	flagAnthropicAPIKey string
	flagGeminiAPIKey    string
	flagOpenAIAPIKey    string
)

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(contractCmd)

	rootCmd.PersistentFlags().StringVarP(&flagContract, "contract", "c", "", "Content contract: default, a YAML file, or s3://bucket/key (overrides PERSONAGEN_CONTRACT)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable detailed logging")

	f := generateCmd.Flags()
	f.StringVarP(&flagName, "name", "n", "", "Therapist name")
	f.StringVarP(&flagFocus, "focus", "f", "", "Clinical focus (e.g. anxiety)")
	f.StringVar(&flagTarget, "target", "", "Target client (e.g. adults, parents of teens)")
	f.IntVarP(&flagYears, "years", "y", 0, "Years of practice")
	f.StringSliceVar(&flagEnergizing, "energizing", nil, "Client qualities that energize you (comma-separated)")
	f.StringSliceVar(&flagDraining, "draining", nil, "Client qualities that drain you (comma-separated)")
	f.StringSliceVar(&flagTopics, "topics", nil, "Topics you love discussing (comma-separated)")
	f.StringVar(&flagFraming, "framing", "", "Client framing: adult or parent (inferred from the target when empty)")
	f.StringVarP(&flagRequest, "request", "r", "", "Read the request from a YAML or JSON file; flags override its fields")
	f.StringVarP(&flagModel, "model", "m", "", "Model: "+strings.Join(gateway.ModelNames(), ", ")+" (overrides PERSONAGEN_MODEL)")
	f.IntVar(&flagMaxRetries, "max-retries", 0, "Regeneration retries (defaults to the contract value)")
	f.DurationVar(&flagDeadline, "deadline", 0, "Stop starting new attempts after this long (e.g. 90s)")
	f.BoolVar(&flagNoSummary, "no-summary", false, "Skip the therapist-facing summary")
	f.StringVarP(&flagOutput, "output", "o", "", "Write the full result JSON to this path")
	f.StringVar(&flagMarkdown, "markdown", "", "Write the persona as Markdown to this path")
	f.BoolVar(&flagJSON, "json", false, "Print the result JSON instead of the formatted persona")
	f.BoolVarP(&flagTUI, "tui", "t", false, "Interactive setup wizard")
	f.StringVar(&flagAnthropicAPIKey, "anthropic-api-key", "", "Anthropic API key (overrides ANTHROPIC_API_KEY env var)")
	f.StringVar(&flagGeminiAPIKey, "gemini-api-key", "", "Gemini API key (overrides GEMINI_API_KEY env var)")
	f.StringVar(&flagOpenAIAPIKey, "openai-api-key", "", "OpenAI API key (overrides OPENAI_API_KEY env var)")
}

func Execute() error {
	return rootCmd.Execute()
}

// session is the resolved runtime state shared by the subcommands.
type session struct {
	settings config.Settings
	logger   *slog.Logger
	aws      *aws.Config
	loader   contract.Loader
}

func newSession(ctx context.Context, stderr io.Writer, quietLogs bool) (*session, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flagContract != "" {
		settings.Contract = flagContract
	}

	level := settings.LogLevel
	switch {
	case flagVerbose:
		level = "debug"
	case quietLogs:
		level = "error"
	}
	s := &session{
		settings: settings,
		logger:   observability.NewLogger(stderr, level, "text"),
	}

	// AWS is only needed for s3:// contracts, Bedrock models and secrets.
	needsAWS := strings.HasPrefix(settings.Contract, "s3://") || settings.SecretPrefix != ""
	if flagModel != "" {
		needsAWS = needsAWS || gateway.ProviderFor(flagModel) == gateway.ProviderBedrock
	} else {
		needsAWS = needsAWS || gateway.ProviderFor(settings.Model) == gateway.ProviderBedrock
	}
	if needsAWS {
		cfg, err := config.AWSConfig(ctx, settings.AWSRegion)
		if err != nil {
			return nil, err
		}
		s.aws = &cfg
		s.loader.S3 = s3.NewFromConfig(cfg)
		if settings.SecretPrefix != "" {
			s.settings.LoadSecrets(ctx, secretsmanager.NewFromConfig(cfg), s.logger)
		}
	}
	return s, nil
}

func (s *session) contract(ctx context.Context) (*contract.Contract, error) {
	return s.loader.Load(ctx, s.settings.Contract)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := buildRequest(cmd)
	if err != nil {
		return err
	}

	// Run interactive setup if requested
	if flagTUI {
		if req, err = runInteractiveSetup(req); err != nil {
			return err
		}
	}

	req = req.Normalized()
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid request: %w\nProvide --name, --focus and --target, a --request file, or use --tui", err)
	}

	model := flagModel
	if model != "" && !gateway.IsValidModel(model) {
		return fmt.Errorf("invalid model %q: must be one of %s", model, strings.Join(gateway.ModelNames(), ", "))
	}

	showBar := !flagVerbose && !flagJSON
	sess, err := newSession(ctx, cmd.ErrOrStderr(), showBar)
	if err != nil {
		return err
	}
	if model == "" {
		model = sess.settings.Model
	}
	c, err := sess.contract(ctx)
	if err != nil {
		return err
	}

	keys := sess.settings.Keys
	if flagAnthropicAPIKey != "" {
		keys.Anthropic = flagAnthropicAPIKey
	}
	if flagGeminiAPIKey != "" {
		keys.Gemini = flagGeminiAPIKey
	}
	if flagOpenAIAPIKey != "" {
		keys.OpenAI = flagOpenAIAPIKey
	}
	if err := checkAPIKeys(model, keys); err != nil {
		return err
	}

	deadline := flagDeadline
	if deadline == 0 {
		deadline = sess.settings.Deadline
	}

	if observability.TracingEnabled() {
		tp, err := observability.InitTracer(ctx, observability.TracerConfig{Service: "personagen-cli", Version: Version, Environment: "cli"})
		if err != nil {
			sess.logger.Warn("Failed to init tracer, continuing without tracing", "error", err)
		} else {
			defer tp.Shutdown(context.Background())
		}
	}

	opts := pipeline.Options{
		Model:    model,
		Keys:     keys,
		AWS:      sess.aws,
		Contract: c,
		Deadline: deadline,
		Summary:  !flagNoSummary,
		Logger:   sess.logger,
	}
	if cmd.Flags().Changed("max-retries") {
		opts.MaxRetries = &flagMaxRetries
	}

	// Wire up progress bar when not in verbose mode
	var bar *progress.BarRenderer
	if showBar {
		bar = progress.NewBarRenderer(os.Stderr)
		opts.OnProgress = bar.Handle
	}

	res, err := pipeline.Generate(ctx, req, opts)
	if err != nil {
		if bar != nil {
			bar.Finish()
		}
		return err
	}

	if flagOutput != "" {
		if err := pipeline.SaveResult(res, flagOutput); err != nil {
			return err
		}
		if bar != nil {
			bar.Handle(progress.Event{Stage: progress.StageComplete, Message: fmt.Sprintf("Persona %s with score %d/100", res.Status, res.Validation.Score), OutputFile: flagOutput})
		}
	}
	if bar != nil {
		bar.Finish()
	}
	if flagMarkdown != "" {
		md := persona.RenderMarkdown(res.Persona, c, res.Summary)
		if err := os.WriteFile(flagMarkdown, []byte(md), 0644); err != nil {
			return fmt.Errorf("write markdown to %s: %w", flagMarkdown, err)
		}
	}

	if flagJSON {
		return printJSON(cmd.OutOrStdout(), res)
	}
	printResult(cmd.OutOrStdout(), res, c)
	return nil
}

// buildRequest merges the --request file with explicit flags.
func buildRequest(cmd *cobra.Command) (persona.Request, error) {
	var req persona.Request
	if flagRequest != "" {
		loaded, err := loadRequest(flagRequest)
		if err != nil {
			return req, err
		}
		req = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("name") {
		req.Name = flagName
	}
	if flags.Changed("focus") {
		req.Focus = flagFocus
	}
	if flags.Changed("target") {
		req.TargetClient = flagTarget
	}
	if flags.Changed("years") {
		req.Years = flagYears
	}
	if flags.Changed("energizing") {
		req.Energizing = flagEnergizing
	}
	if flags.Changed("draining") {
		req.Draining = flagDraining
	}
	if flags.Changed("topics") {
		req.Topics = flagTopics
	}
	if flags.Changed("framing") {
		req.Framing = flagFraming
	}
	return req, nil
}

func checkAPIKeys(model string, keys gateway.Keys) error {
	var missing, flag string
	switch gateway.ProviderFor(model) {
	case gateway.ProviderClaude:
		missing, flag = "ANTHROPIC_API_KEY", "--anthropic-api-key"
		if keys.Anthropic != "" {
			return nil
		}
	case gateway.ProviderGemini:
		missing, flag = "GEMINI_API_KEY", "--gemini-api-key"
		if keys.Gemini != "" {
			return nil
		}
	case gateway.ProviderOpenAI:
		missing, flag = "OPENAI_API_KEY", "--openai-api-key"
		if keys.OpenAI != "" {
			return nil
		}
	default:
		// Bedrock uses the AWS credential chain
		return nil
	}
	return fmt.Errorf("missing required environment variable %s\nYou can also pass it via %s", missing, flag)
}
