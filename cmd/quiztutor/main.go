package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pavelanni/quiztutor/internal/handler"
	appI18n "github.com/pavelanni/quiztutor/internal/i18n"
	"github.com/pavelanni/quiztutor/internal/llm/prompts"
	"github.com/pavelanni/quiztutor/internal/metrics"
	"github.com/pavelanni/quiztutor/internal/model"
	"github.com/pavelanni/quiztutor/internal/quizfile"
	"github.com/pavelanni/quiztutor/internal/store"
	"github.com/pavelanni/quiztutor/internal/tracing"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "quiztutor",
		Short:        "Conversational quiz tutor graded by LLMs",
		SilenceUsage: true,
	}

	serve := serveCmd()
	root.AddCommand(serve, chatCmd(), importCmd(), exportCmd(), resetCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `quiztutor --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(f *pflag.FlagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	f.String("log-file", "", "Write logs to this file with rotation instead of stderr")
}

func addStoreFlags(f *pflag.FlagSet) {
	f.String("db-driver", store.DriverSQLite, "Database driver (sqlite, postgres)")
	f.String("db", "quiztutor.db", "SQLite path or PostgreSQL connection string")
	f.String("perf-backend", "sql", "Performance record backend (sql, redis)")
	f.String("redis-addr", "localhost:6379", "Redis address for --perf-backend=redis")
	f.String("redis-password", "", "Redis password")
	f.Int("redis-db", 0, "Redis database number")
	f.Duration("redis-ttl", 0, "Expire idle performance records in Redis (0 = never)")
}

func addLLMFlags(f *pflag.FlagSet) {
	f.String("llm-provider", "openai", "LLM provider (openai, anthropic, gemini, mock)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.Duration("llm-timeout", 30*time.Second, "Time limit for grading one turn, retries included")
	f.Int("llm-retries", 3, "Attempts per LLM request on transient errors")
	f.String("prompt-variant", string(prompts.PromptStandard), "Grading prompt variant (strict, standard, lenient)")
	f.String("prompts-dir", "", "Directory with templates/grade_<variant>.txt overriding the built-in prompts")
}

func addTutorFlags(f *pflag.FlagSet) {
	f.StringP("lang", "l", "en", "Tutor language (en, ru)")
	f.Float64("auto-advance", 0.8, "Score at or above which an answer moves to the next question")
	f.Float64("gate", 0.5, "Minimum last score for \"next\" to move on")
	f.StringSliceP("quizzes", "q", nil, "Quiz JSON files to import on startup (repeatable)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP tutor server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /tutor)")
	f.StringSlice("cors-origins", nil, "Allowed CORS origins for browser clients")
	f.String("jaeger-endpoint", "", "Jaeger collector endpoint; empty disables tracing")
	f.Bool("llm-ping", true, "Check the OpenAI-compatible endpoint on startup")
	addTutorFlags(f)
	addStoreFlags(f)
	addLLMFlags(f)
	addLogFlags(f)
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Finalize quizzes from JSON files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	f := cmd.Flags()
	f.String("db-driver", store.DriverSQLite, "Database driver (sqlite, postgres)")
	f.String("db", "quiztutor.db", "SQLite path or PostgreSQL connection string")
	addLogFlags(f)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export performance records with attempt histories as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db-driver", store.DriverSQLite, "Database driver (sqlite, postgres)")
	f.String("db", "quiztutor.db", "SQLite path or PostgreSQL connection string")
	f.String("subject", "", "Only export this subject")
	f.String("week", "", "Only export this week")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(f)
	return cmd
}

func resetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Rewind a student's quiz to the first question, keeping attempt history",
		RunE:  runReset,
	}
	f := cmd.Flags()
	f.String("student", "", "Student ID (required)")
	f.String("subject", "", "Subject (required)")
	f.String("week", "", "Week (required)")
	addStoreFlags(f)
	addLogFlags(f)

	_ = cmd.MarkFlagRequired("student")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("week")

	return cmd
}

func setupLogging(v *viper.Viper) {
	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	if path := v.GetString("log-file"); path != "" {
		out = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		}
	}

	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(out, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(out, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("QUIZTUTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("quiztutor")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/quiztutor")
	v.AddConfigPath("/etc/quiztutor")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Init()
	if endpoint := v.GetString("jaeger-endpoint"); endpoint != "" {
		shutdown, err := tracing.InitTracer("quiztutor", endpoint)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				slog.Warn("flush traces", "error", err)
			}
		}()
		slog.Info("tracing enabled", "endpoint", endpoint)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	d, err := buildDeps(ctx, v, true)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := importQuizzes(ctx, d.db, v.GetStringSlice("quizzes")); err != nil {
		return err
	}

	cfg := model.TutorConfig{
		AutoAdvance:   v.GetFloat64("auto-advance"),
		Gate:          v.GetFloat64("gate"),
		PromptVariant: v.GetString("prompt-variant"),
		BasePath:      handler.NormalizeBasePath(v.GetString("base-path")),
		Lang:          lang,
	}
	h := handler.New(d.machine, d.db, cfg, d.checks...)

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Router(v.GetStringSlice("cors-origins")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", addr,
			"llm_provider", v.GetString("llm-provider"),
			"model", v.GetString("llm-model"),
			"lang", lang,
			"auto_advance", cfg.AutoAdvance,
			"gate", cfg.Gate,
			"prompt_variant", cfg.PromptVariant,
			"perf_backend", v.GetString("perf-backend"),
			"base_path", cfg.BasePath,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func importQuizzes(ctx context.Context, db *store.Store, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	if _, err := quizfile.Import(ctx, db, store.QuizHashKey, paths...); err != nil {
		return fmt.Errorf("import quizzes: %w", err)
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	db, err := store.Open(v.GetString("db-driver"), v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	results, err := quizfile.Import(cmd.Context(), db, store.QuizHashKey, args...)
	for _, r := range results {
		status := "imported"
		if r.Skipped {
			status = "unchanged"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s/%s\t%d questions\t%s\n", r.Path, r.Subject, r.Week, r.Questions, status)
	}
	return err
}

func runExport(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	db, err := store.Open(v.GetString("db-driver"), v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	dump, err := db.ExportPerformance(cmd.Context(), v.GetString("subject"), v.GetString("week"))
	if err != nil {
		return fmt.Errorf("export performance: %w", err)
	}

	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	slog.Info("exported performance records", "count", len(dump.Records))
	return nil
}

func runReset(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	d, err := buildDeps(cmd.Context(), v, false)
	if err != nil {
		return err
	}
	defer d.Close()

	key := model.SessionKey{
		StudentID: v.GetString("student"),
		Subject:   v.GetString("subject"),
		Week:      v.GetString("week"),
	}
	if err := d.machine.Reset(cmd.Context(), key); err != nil {
		return fmt.Errorf("reset %s: %w", key, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "reset %s/%s for %s\n", key.Subject, key.Week, key.StudentID)
	return nil
}
