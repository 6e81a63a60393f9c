package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rafabd1/Foxglove/internal/config"
	"github.com/rafabd1/Foxglove/internal/core"
	"github.com/rafabd1/Foxglove/internal/input"
	"github.com/rafabd1/Foxglove/internal/networking"
	"github.com/rafabd1/Foxglove/internal/output"
	"github.com/rafabd1/Foxglove/internal/report"
	"github.com/rafabd1/Foxglove/internal/utils"
)

const version = "1.0.0"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "foxglove [targets...]",
	Short: "Time-based blind injection scanner",
	Long: `Foxglove detects blind time-based injection points by measuring whether an
endpoint's response time is causally controlled by an attacker-supplied delay.

Each target URL must carry a delay placeholder (default {SLEEP}) inside the
parameter under test, e.g.:

  foxglove "https://example.com/search?q=1'+AND+SLEEP({SLEEP})--+-"

Foxglove substitutes increasing delays into the placeholder, measures the
responses, and reports the endpoint as injectable only when the observed
times track the requested delays with slope ~1.`,
	Version:      version,
	SilenceUsage: true,
	RunE:         runScan,
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "path to a YAML config file")

	flags.StringP("targets-file", "l", "", "file with one target URL per line")
	flags.String("delay-token", "{SLEEP}", "placeholder substituted with the delay in seconds")

	flags.Int("requests-limit", 10, "maximum probe requests per target")
	flags.Float64("seconds-limit", 20, "total injected-delay budget per target, in seconds")
	flags.Float64("correlation-error-range", 0.1, "acceptance tolerance on |correlation - 1|")
	flags.Float64("slope-error-range", 0.2, "acceptance tolerance on |slope - 1|")

	flags.IntP("concurrency", "c", 10, "number of concurrent timing checks")
	flags.Int("timeout", 60, "HTTP request timeout in seconds")
	flags.String("user-agent", "", "custom User-Agent header")
	flags.StringSliceP("header", "H", nil, "custom header 'Name: Value' (repeatable)")
	flags.Bool("insecure", false, "skip TLS certificate verification")
	flags.String("proxy", "", "proxy URL, comma-separated list, or file with one proxy per line")
	flags.Int("min-request-delay", 100, "minimum delay between requests to the same domain, in ms")
	flags.Int("throttle-standby", 60000, "base standby after a 429 from a domain, in ms")
	flags.Int("max-retries", 2, "retries for throttled targets (probe requests are never retried)")
	flags.Int("retry-delay-base", 500, "base backoff for setup-request retries, in ms")
	flags.Int("retry-delay-max", 5000, "maximum backoff for setup-request retries, in ms")

	flags.StringP("output", "o", "", "write the report to this file instead of stdout")
	flags.StringP("format", "f", "text", "report format: text, json or csv")
	flags.StringP("verbosity", "v", "info", "log level: debug, info, warn, error")
	flags.Bool("no-color", false, "disable ANSI colors")
	flags.Bool("silent", false, "suppress all non-error output except the report")
	flags.Bool("no-progress", false, "disable the progress bar")

	if err := viper.BindPFlags(flags); err != nil {
		fmt.Fprintf(os.Stderr, "failed to bind flags: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("foxglove")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home + "/.config/foxglove")
		}
	}

	viper.SetEnvPrefix("FOXGLOVE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && cfgFile != "" {
			fmt.Fprintf(os.Stderr, "failed to read config file: %v\n", err)
			os.Exit(1)
		}
	}
}

// buildConfig assembles the runtime config from viper (flags take precedence
// over FOXGLOVE_* environment variables, which take precedence over the
// config file) on top of the defaults.
func buildConfig(args []string) (*config.Config, error) {
	cfg := config.GetDefaultConfig()

	cfg.Targets = args
	cfg.TargetsFile = viper.GetString("targets-file")
	cfg.DelayToken = viper.GetString("delay-token")

	cfg.RequestsLimit = viper.GetInt("requests-limit")
	cfg.SecondsLimit = viper.GetFloat64("seconds-limit")
	cfg.CorrelationErrorRange = viper.GetFloat64("correlation-error-range")
	cfg.SlopeErrorRange = viper.GetFloat64("slope-error-range")

	cfg.Concurrency = viper.GetInt("concurrency")
	cfg.RequestTimeoutSecs = viper.GetInt("timeout")
	if ua := viper.GetString("user-agent"); ua != "" {
		cfg.UserAgent = ua
	}
	cfg.InsecureSkipVerify = viper.GetBool("insecure")
	cfg.ProxyInput = viper.GetString("proxy")
	cfg.MinRequestDelayMs = viper.GetInt("min-request-delay")
	cfg.ThrottleStandbyMs = viper.GetInt("throttle-standby")
	cfg.MaxRetries = viper.GetInt("max-retries")
	cfg.RetryDelayBaseMs = viper.GetInt("retry-delay-base")
	cfg.RetryDelayMaxMs = viper.GetInt("retry-delay-max")

	cfg.OutputFile = viper.GetString("output")
	cfg.OutputFormat = viper.GetString("format")
	cfg.Verbosity = viper.GetString("verbosity")
	cfg.NoColor = viper.GetBool("no-color")
	cfg.Silent = viper.GetBool("silent")
	cfg.NoProgress = viper.GetBool("no-progress")

	for _, header := range viper.GetStringSlice("header") {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid header format '%s' (expected 'Name: Value')", header)
		}
		cfg.CustomHeaders[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}

	return cfg, nil
}

// gatherAndValidate merges targets from every source (positional arguments,
// targets file, piped stdin) into the config before validation runs, so
// `echo url | foxglove` passes the no-targets check.
func gatherAndValidate(cfg *config.Config, reader *input.Reader) error {
	targets, err := reader.GatherTargets(cfg.Targets, cfg.TargetsFile)
	if err != nil {
		return err
	}
	cfg.Targets = targets
	return cfg.Validate()
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(args)
	if err != nil {
		return err
	}

	logger := utils.NewDefaultLogger(utils.StringToLogLevel(cfg.Verbosity), cfg.NoColor, cfg.Silent)

	if cfg.ProxyInput != "" {
		proxies, err := utils.ParseProxyInput(cfg.ProxyInput, logger)
		if err != nil {
			return err
		}
		cfg.ParsedProxies = proxies
	}

	if err := gatherAndValidate(cfg, input.NewReader(logger)); err != nil {
		return err
	}
	targets := utils.PreprocessTargets(cfg.Targets, logger)
	if len(targets) == 0 {
		return fmt.Errorf("no valid targets to scan")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := networking.NewClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize HTTP client: %w", err)
	}
	domainManager := networking.NewDomainManager(cfg, logger)

	scheduler, err := core.NewScheduler(cfg, client, domainManager, logger)
	if err != nil {
		return err
	}

	var bar *output.ProgressBar
	if !cfg.NoProgress && !cfg.Silent {
		bar = output.NewProgressBar(len(targets), 30)
		bar.SetPrefix("Scanning ")
		bar.Start()
		scheduler.SetProgressCallback(func(completed, total int) {
			bar.Update(completed)
		})
	}

	startedAt := time.Now()
	findings, scanErrs := scheduler.Run(ctx, targets)
	if bar != nil {
		bar.Stop()
	}

	summary := report.Summary{
		TargetsScanned: len(targets),
		TargetsFailed:  len(scanErrs),
		FindingsCount:  len(findings),
		StartedAt:      startedAt,
		FinishedAt:     time.Now(),
	}
	logger.Infof("Scan finished in %s: %d finding(s), %d target(s) failed",
		summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond), len(findings), len(scanErrs))

	if err := report.GenerateReport(findings, summary, cfg.OutputFormat, cfg.OutputFile, logger); err != nil {
		return err
	}

	if ctx.Err() != nil {
		return fmt.Errorf("scan interrupted")
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
