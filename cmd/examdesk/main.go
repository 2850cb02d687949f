package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/examdesk/examdesk/internal/generator"
	"github.com/examdesk/examdesk/internal/grading"
	"github.com/examdesk/examdesk/internal/handler"
	"github.com/examdesk/examdesk/internal/intake"
	"github.com/examdesk/examdesk/internal/model"
	"github.com/examdesk/examdesk/internal/quota"
	"github.com/examdesk/examdesk/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "examdesk",
		Short: "Trade exam administration: paper generation, grading, results",
	}

	serve := serveCmd()
	root.AddCommand(serve, importCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `examdesk --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP exam server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "examdesk.db", "SQLite database path")
	f.Uint64("seed", 0, "RNG seed for question draws (0 = random)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.String("admin-password", "", "Initial admin password (or set EXAMDESK_ADMIN_PASSWORD)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Bulk-import answer sheet CSV files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	f := cmd.Flags()
	f.String("db", "examdesk.db", "SQLite database path")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export candidate results",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "examdesk.db", "SQLite database path")
	f.String("exam-id", "", "Exam identifier for output (required)")
	f.String("date", "", "Exam date in YYYY-MM-DD format (required)")
	f.String("format", "json", "Output format (json, table)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("exam-id")
	_ = cmd.MarkFlagRequired("date")

	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

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
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("EXAMDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("examdesk")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examdesk")
	v.AddConfigPath("/etc/examdesk")
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
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// Seed default admin user if no users exist.
	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	// Sweep stale login tokens at startup and hourly thereafter.
	sweepSessions(db)
	go func() {
		for range time.Tick(time.Hour) {
			sweepSessions(db)
		}
	}()

	// Quota tables come from the config file; defaults otherwise.
	cfg, err := quota.Load(v)
	if err != nil {
		return fmt.Errorf("load quotas: %w", err)
	}

	seed := v.GetUint64("seed")
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed))
	slog.Info("question draw RNG ready", "seed", seed)

	gen := generator.New(db, cfg, rng)
	engine := grading.New(db)
	h := handler.New(db, gen, engine, cfg, v.GetBool("secure-cookies"))

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	h.Routes(r)

	addr := v.GetString("addr")
	candidates, err := db.CandidateCount()
	if err != nil {
		return fmt.Errorf("count candidates: %w", err)
	}
	slog.Info("starting server",
		"addr", addr,
		"db", v.GetString("db"),
		"candidates", candidates,
		"trades", len(cfg.Trades),
		"common_quota", cfg.Common.Total(),
	)
	return http.ListenAndServe(addr, r)
}

func sweepSessions(db *store.Store) {
	n, err := db.CleanupExpiredSessions()
	if err != nil {
		slog.Warn("cleanup expired auth sessions", "error", err)
		return
	}
	if n > 0 {
		slog.Info("expired auth sessions removed", "count", n)
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	var total model.IntakeSummary
	for _, path := range args {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		rows, err := intake.Parse(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		summary, err := db.ImportIntake(rows)
		if err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
		slog.Info("imported answer sheet", "path", path, "rows", len(rows))

		total.CandidatesCreated += summary.CandidatesCreated
		total.CandidatesUpdated += summary.CandidatesUpdated
		total.QuestionsCreated += summary.QuestionsCreated
		total.AnswersCreated += summary.AnswersCreated
	}

	green := color.New(color.FgGreen).FprintfFunc()
	cyan := color.New(color.FgCyan).FprintfFunc()
	green(os.Stdout, "Import complete: %d file(s)\n", len(args))
	cyan(os.Stdout, "  candidates created: %d, updated: %d\n", total.CandidatesCreated, total.CandidatesUpdated)
	cyan(os.Stdout, "  questions created:  %d\n", total.QuestionsCreated)
	cyan(os.Stdout, "  answers recorded:   %d\n", total.AnswersCreated)
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	info := model.ExamInfo{
		ExamID: v.GetString("exam-id"),
		Date:   v.GetString("date"),
	}
	if err := db.SetExamInfo(info); err != nil {
		return fmt.Errorf("record exam info: %w", err)
	}

	candidates, err := db.ExportAllCandidates()
	if err != nil {
		return fmt.Errorf("export candidates: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if strings.ToLower(v.GetString("format")) == "table" {
		return writeResultsTable(w, candidates)
	}

	export := model.ResultsExport{
		ExamID:     info.ExamID,
		Date:       info.Date,
		Candidates: candidates,
	}
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

func writeResultsTable(w io.Writer, candidates []model.CandidateResult) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{
		"Enrolment No", "Name", "Trade", "Primary", "Secondary",
		"Viva", "Practical", "Grand Total", "Complete", "Checked By",
	})
	table.SetBorder(false)

	for _, c := range candidates {
		t := c.Totals
		complete := "no"
		if c.AllMarksAssigned {
			complete = "yes"
		}
		table.Append([]string{
			c.EnrolmentNo,
			c.Name,
			c.Trade,
			strconv.FormatFloat(t.PrimaryTotal, 'f', 1, 64),
			strconv.FormatFloat(t.SecondaryTotal, 'f', 1, 64),
			strconv.Itoa(t.Viva1 + t.Viva2),
			strconv.Itoa(t.Practical1 + t.Practical2),
			strconv.FormatFloat(t.GrandTotal, 'f', 1, 64),
			complete,
			c.CheckedBy,
		})
	}
	table.Render()
	return nil
}

func seedAdmin(db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or EXAMDESK_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
