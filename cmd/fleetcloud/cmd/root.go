package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/term"

	"fleetcloud.sh/internal/ferrors"
	"fleetcloud.sh/internal/logging"
	"fleetcloud.sh/internal/tracing"
	"fleetcloud.sh/internal/version"
	"fleetcloud.sh/sdk"
)

var (
	// Color functions
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	blue   = color.New(color.FgBlue).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// annotationAuthenticated marks commands that need an API token
const annotationAuthenticated = "authenticated"

var authenticated = map[string]string{annotationAuthenticated: "true"}

// app is the state shared by the commands of one invocation
type app struct {
	v       *viper.Viper
	cfgFile string
	verbose bool
	noColor bool

	log    *logging.Logger
	client *sdk.Client
	tracer *tracing.Tracer
	span   trace.Span

	// isTerminal reports whether a command stream is attached to a terminal
	isTerminal func(stream any) bool

	// running is set once flag and argument validation passed
	running bool
}

func newApp() *app {
	return &app{
		v:          viper.New(),
		log:        logging.Nop(),
		isTerminal: isTerminal,
	}
}

// Execute runs the CLI until completion or until interrupted
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp()
	root := newRootCmd(a)
	cmd, err := root.ExecuteContextC(ctx)
	a.finish(err)
	if err != nil {
		a.reportError(cmd, err)
	}
	return err
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "fleetcloud",
		Short: "fleetcloud - CLI for the fleetcloud IoT platform",
		Long: `fleetcloud manages the fleets, devices and releases of your
fleetcloud account, and provisions devices on your local network.`,
		Version:       version.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// cobra checks flag groups only after this hook
			if err := cmd.ValidateFlagGroups(); err != nil {
				return err
			}
			a.running = true
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.fleetcloud/config.toml)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	flags.BoolVar(&a.noColor, "no-color", false, "disable colored output")
	flags.String("api-url", "", "platform API URL")
	flags.String("token", "", "API token")

	a.v.BindPFlag("verbose", flags.Lookup("verbose"))
	a.v.BindPFlag("no-color", flags.Lookup("no-color"))
	a.v.BindPFlag("api.url", flags.Lookup("api-url"))
	a.v.BindPFlag("api.token", flags.Lookup("token"))

	root.AddCommand(
		newDevicesCmd(a),
		newJoinCmd(a),
		newReleaseCmd(a),
		newReleasesCmd(a),
		newVersionCmd(),
	)

	return root
}

// setup loads the configuration and, for authenticated commands, the client
func (a *app) setup(cmd *cobra.Command) error {
	if err := a.loadConfig(); err != nil {
		return err
	}

	a.verbose = a.v.GetBool("verbose")
	if a.noColor || a.v.GetBool("no-color") {
		color.NoColor = true
	}

	level := "info"
	if a.verbose {
		level = "debug"
	}
	a.log = logging.New(logging.Config{
		Level:  level,
		Output: cmd.ErrOrStderr(),
		Color:  !color.NoColor,
	})
	if used := a.v.ConfigFileUsed(); used != "" && a.verbose {
		a.log.Debug("Using config file: " + used)
	}

	tracer, err := tracing.Setup(cmd.Context(), tracing.Config{
		ServiceName:    "fleetcloud",
		ServiceVersion: version.Version,
		Endpoint:       a.v.GetString("telemetry.otlp_endpoint"),
		Protocol:       a.v.GetString("telemetry.otlp_protocol"),
		Insecure:       a.v.GetBool("telemetry.insecure"),
		SampleRate:     a.v.GetFloat64("telemetry.sample_rate"),
	})
	if err != nil {
		return ferrors.Wrap(err, "failed to set up tracing")
	}
	a.tracer = tracer
	ctx, span := tracer.Start(cmd.Context(), cmd.CommandPath())
	a.span = span
	cmd.SetContext(ctx)

	if cmd.Annotations[annotationAuthenticated] != "" {
		client, err := a.newClient()
		if err != nil {
			return err
		}
		a.client = client
		a.log.Debug("Using API", zap.String("url", client.BaseURL()))
	}
	return nil
}

// loadConfig reads in config file and ENV variables if set
func (a *app) loadConfig() error {
	v := a.v
	setDefaults(v)

	v.SetEnvPrefix("FLEETCLOUD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetConfigType("toml")
	if a.cfgFile != "" {
		v.SetConfigFile(a.cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.SetConfigFile(filepath.Join(home, ".fleetcloud", "config.toml"))
	} else {
		return nil
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.cfgFile == "" && (errors.Is(err, fs.ErrNotExist) || errors.As(err, &notFound)) {
			return nil
		}
		return ferrors.ExpectedFrom(err, "Could not read config file %s: %v", v.ConfigFileUsed(), err)
	}
	return nil
}

// finish ends the invocation span and flushes traces
func (a *app) finish(err error) {
	if a.span != nil {
		tracing.End(a.span, err)
	}
	if a.tracer == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if shutdownErr := a.tracer.Shutdown(ctx); shutdownErr != nil {
		a.log.WithError(shutdownErr).Debug("failed to export traces")
	}
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// API defaults
	v.SetDefault("api.url", sdk.DefaultBaseURL)
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("dashboard.url", sdk.DefaultDashboardURL)

	// Join defaults
	v.SetDefault("join.scan_timeout", "5s")
	v.SetDefault("join.wait_timeout", "5m")
	v.SetDefault("join.ssh_port", 22222)

	// Telemetry defaults; tracing stays off without an endpoint
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_protocol", "http")
	v.SetDefault("telemetry.insecure", false)
	v.SetDefault("telemetry.sample_rate", 1.0)
}

func (a *app) newClient() (*sdk.Client, error) {
	client, err := sdk.NewClient(a.v.GetString("api.url"), sdk.Options{
		Token:        a.v.GetString("api.token"),
		Timeout:      a.v.GetDuration("api.timeout"),
		UserAgent:    version.UserAgent(),
		DashboardURL: a.v.GetString("dashboard.url"),
		Logger:       a.log,
	})
	switch {
	case errors.Is(err, sdk.ErrNotAuthenticated):
		return nil, ferrors.ExpectedFrom(err, "Not logged in. Set api.token in the config file, FLEETCLOUD_API_TOKEN or --token")
	case errors.Is(err, sdk.ErrTokenExpired):
		return nil, ferrors.ExpectedFrom(err, "Your API token has expired. Generate a new one in the dashboard")
	}
	return client, err
}

// reportError prints a failed command's error. Expected errors print their
// message only; verbose mode adds the wrapped chain of anything else.
func (a *app) reportError(cmd *cobra.Command, err error) {
	w := cmd.ErrOrStderr()
	printError(w, "%s", err.Error())

	if a.verbose && !ferrors.IsExpected(err) {
		for _, cause := range ferrors.Chain(err)[1:] {
			fmt.Fprintf(w, "  caused by: %s\n", cause)
		}
	}

	if !a.running && !ferrors.IsExpected(err) && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(w, "Run '%s --help' for usage.\n", cmd.CommandPath())
	}
}

func isTerminal(stream any) bool {
	f, ok := stream.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}

// Helper functions for consistent output

func printSuccess(w io.Writer, format string, a ...any) {
	fmt.Fprintf(w, "%s %s\n", green("[OK]"), fmt.Sprintf(format, a...))
}

func printError(w io.Writer, format string, a ...any) {
	fmt.Fprintf(w, "%s %s\n", red("[ERROR]"), fmt.Sprintf(format, a...))
}

func printWarning(w io.Writer, format string, a ...any) {
	fmt.Fprintf(w, "%s %s\n", yellow("[WARN]"), fmt.Sprintf(format, a...))
}

func printInfo(w io.Writer, format string, a ...any) {
	fmt.Fprintf(w, "%s %s\n", blue("[INFO]"), fmt.Sprintf(format, a...))
}
