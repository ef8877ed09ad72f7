package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/hrygo/eyemath/internal/profile"
	"github.com/hrygo/eyemath/internal/version"
	"github.com/hrygo/eyemath/server"
	"github.com/hrygo/eyemath/solver/backend"
	"github.com/hrygo/eyemath/solver/classify"
	"github.com/hrygo/eyemath/solver/metrics"
	"github.com/hrygo/eyemath/solver/orchestrator"
	"github.com/hrygo/eyemath/solver/render"
)

var (
	rootCmd = &cobra.Command{
		Use:          "eyemath",
		Short:        `Solves LaTeX math expressions: simplify, solve, factorize, find roots, differentiate, integrate and limits.`,
		Version:      version.String(),
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			// Systemd units pass configuration through the environment.
			if !isRunningAsSystemdService() {
				_ = godotenv.Load()
			}
			slog.SetDefault(newLogger(os.Stderr, viper.GetString("mode"), viper.GetString("log-level")))
			return nil
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC solver server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	solveCmd = &cobra.Command{
		Use:   "solve <expression>",
		Short: "Solve one expression and print the result",
		Args:  cobra.ExactArgs(1),
		RunE:  runSolve,
	}
)

func init() {
	defaults := profile.Default()

	pf := rootCmd.PersistentFlags()
	pf.String("mode", defaults.Mode, `mode of server, can be "prod" or "dev" or "demo"`)
	pf.String("log-level", "info", "log level: debug, info, warn or error")
	pf.String("backend", defaults.Backend, `algebra backend, "local" or "remote"`)
	pf.String("backend-url", "", "base URL of the remote algebra backend")
	pf.Duration("solve-timeout", defaults.SolveTimeout, "timeout of one backend invocation")
	pf.Bool("use-algorithms", defaults.UseAlgorithms, "solve quadratic equations in closed form")
	pf.String("renderer-url", "", "base URL of the image renderer, empty disables rendering")
	pf.Duration("render-timeout", defaults.RenderTimeout, "timeout of one render call")
	pf.Int("render-concurrency", defaults.RenderConcurrency, "concurrent render calls per request")

	sf := serveCmd.Flags()
	sf.String("addr", "", "address of server")
	sf.Int("port", defaults.Port, "HTTP port of server")
	sf.Int("grpc-port", defaults.GRPCPort, "gRPC port of server, 0 disables gRPC")
	sf.Float64("rate-limit", 0, "HTTP requests per second per client, 0 disables limiting")
	sf.Int("rate-burst", defaults.RateBurst, "HTTP rate limit burst")

	for _, name := range []string{"mode", "log-level", "backend", "backend-url", "solve-timeout", "use-algorithms",
		"renderer-url", "render-timeout", "render-concurrency"} {
		if err := viper.BindPFlag(name, pf.Lookup(name)); err != nil {
			panic(err)
		}
	}
	for _, name := range []string{"addr", "port", "grpc-port", "rate-limit", "rate-burst"} {
		if err := viper.BindPFlag(name, sf.Lookup(name)); err != nil {
			panic(err)
		}
	}

	solveCmd.Flags().Bool("steps", false, "include solving steps")
	solveCmd.Flags().String("operation", "", "force the operation (e.g. differentiate, integrate)")
	solveCmd.Flags().String("variable", "", "override variable detection")
	solveCmd.Flags().Bool("render", false, "render results to image URLs")
	solveCmd.Flags().String("credential", "", "credential forwarded to the renderer")
	solveCmd.Flags().StringP("output", "o", "text", "output format: text, json or yaml")

	viper.SetEnvPrefix("eyemath")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(serveCmd, solveCmd)
}

// loadProfile layers defaults, EYEMATH_* variables and flags, in that order.
func loadProfile() (*profile.Profile, error) {
	p := profile.Default()
	p.FromEnv()

	p.Mode = viper.GetString("mode")
	p.Backend = viper.GetString("backend")
	p.BackendURL = viper.GetString("backend-url")
	p.SolveTimeout = viper.GetDuration("solve-timeout")
	p.UseAlgorithms = viper.GetBool("use-algorithms")
	p.RendererURL = viper.GetString("renderer-url")
	p.RenderTimeout = viper.GetDuration("render-timeout")
	p.RenderConcurrency = viper.GetInt("render-concurrency")
	p.Addr = viper.GetString("addr")
	p.Port = viper.GetInt("port")
	p.GRPCPort = viper.GetInt("grpc-port")
	p.RateLimit = viper.GetFloat64("rate-limit")
	p.RateBurst = viper.GetInt("rate-burst")
	p.Version = version.String()

	if err := p.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return p, nil
}

// newLogger returns a text logger in dev and a JSON logger in prod.
func newLogger(w io.Writer, mode, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if mode == "prod" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func newBackend(p *profile.Profile, logger *slog.Logger) backend.Backend {
	if p.Backend == profile.BackendRemote {
		return backend.NewRemote(backend.RemoteConfig{
			BaseURL: p.BackendURL,
			APIKey:  p.BackendAPIKey,
			Timeout: p.SolveTimeout,
		}, logger)
	}
	return backend.NewLocal(logger)
}

func newOrchestrator(p *profile.Profile, rec metrics.Recorder, logger *slog.Logger) *orchestrator.Orchestrator {
	var renderer render.Renderer
	if p.RenderEnabled() {
		renderer = render.NewClient(render.Config{
			BaseURL:   p.RendererURL,
			Timeout:   p.RenderTimeout,
			CacheSize: p.RenderCacheSize,
			CacheTTL:  p.RenderCacheTTL,
			Recorder:  rec,
		}, logger)
	}
	return orchestrator.New(orchestrator.Config{
		Timeout:           p.SolveTimeout,
		UseAlgorithms:     p.UseAlgorithms,
		RenderConcurrency: p.RenderConcurrency,
	}, newBackend(p, logger), renderer, orchestrator.WithLogger(logger), orchestrator.WithMetrics(rec))
}

func runServe(cmd *cobra.Command, _ []string) error {
	p, err := loadProfile()
	if err != nil {
		return err
	}
	logger := slog.Default()

	exporter := metrics.NewPrometheusExporter(metrics.Config{ProcessCollectors: true})
	orch := newOrchestrator(p, exporter, logger)
	s := server.NewServer(server.Config{
		Addr:             p.Addr,
		Port:             p.Port,
		GRPCPort:         p.GRPCPort,
		Mode:             p.Mode,
		RateLimit:        p.RateLimit,
		RateBurst:        p.RateBurst,
		EnableReflection: p.IsDev(),
	}, orch, exporter.Handler(), logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals...)
	defer stop()

	if err := s.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start server")
	}
	printGreetings(cmd.OutOrStdout(), p, s)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.Shutdown(shutdownCtx)
	return nil
}

func runSolve(cmd *cobra.Command, args []string) error {
	p, err := loadProfile()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	opName, _ := flags.GetString("operation")
	op, err := classify.ParseOperation(opName)
	if err != nil {
		return err
	}
	showSteps, _ := flags.GetBool("steps")
	renderResults, _ := flags.GetBool("render")
	variable, _ := flags.GetString("variable")
	credential, _ := flags.GetString("credential")
	output, _ := flags.GetString("output")

	orch := newOrchestrator(p, metrics.Nop{}, slog.Default())
	res := orch.Solve(cmd.Context(), orchestrator.SolveRequest{
		Expression:    args[0],
		ShowSteps:     showSteps,
		RenderResults: renderResults,
		Operation:     op,
		Variable:      variable,
		Credential:    credential,
	})

	if err := writeResult(cmd.OutOrStdout(), res, output); err != nil {
		return err
	}
	if !res.Success {
		return errors.Errorf("solve failed: %s", res.Error)
	}
	return nil
}

func writeResult(w io.Writer, res orchestrator.SolveResult, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(res); err != nil {
			return errors.Wrap(err, "encode yaml")
		}
		return enc.Close()
	case "text", "":
		fmt.Fprintf(w, "Operation: %s\n", res.Operation)
		for _, r := range res.Results {
			fmt.Fprintf(w, "Result: %s\n", r)
		}
		if len(res.SolvingSteps) > 0 && res.SolvingSteps[0] != orchestrator.None {
			fmt.Fprintln(w, "Steps:")
			for _, step := range res.SolvingSteps {
				fmt.Fprintf(w, "  %s\n", step)
			}
		}
		for _, url := range res.ImageURLs {
			if url != orchestrator.None {
				fmt.Fprintf(w, "Image: %s\n", url)
			}
		}
		if res.Error != "" {
			fmt.Fprintf(w, "Error: %s\n", res.Error)
		}
		return nil
	default:
		return errors.Errorf("unknown output format %q", format)
	}
}

func printGreetings(w io.Writer, p *profile.Profile, s *server.Server) {
	fmt.Fprintf(w, "EyeMath %s started successfully!\n", p.Version)
	if p.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
	}
	fmt.Fprintf(w, "Mode: %s\n", p.Mode)
	fmt.Fprintf(w, "Backend: %s\n", p.Backend)
	if p.RenderEnabled() {
		fmt.Fprintf(w, "Renderer: %s\n", p.RendererURL)
	}
	fmt.Fprintf(w, "HTTP API on %s\n", s.HTTPAddr())
	if addr := s.GRPCAddr(); addr != "" {
		fmt.Fprintf(w, "gRPC on %s\n", addr)
	}
}

// isRunningAsSystemdService detects if the process is running under systemd
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
