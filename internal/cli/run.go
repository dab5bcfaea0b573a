package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/BrianHuang880507/CogScreen-AI/internal/api"
	"github.com/BrianHuang880507/CogScreen-AI/internal/capture"
	"github.com/BrianHuang880507/CogScreen-AI/internal/config"
	"github.com/BrianHuang880507/CogScreen-AI/internal/exam"
	"github.com/BrianHuang880507/CogScreen-AI/internal/metrics"
	"github.com/BrianHuang880507/CogScreen-AI/internal/store"
	"github.com/BrianHuang880507/CogScreen-AI/internal/vad"
)

var metricsAddr string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start an interactive exam session",
	Long:  "Runs the interactive exam loop. Type 'help' at the prompt for the available commands.",
	RunE:  runExam,
}

func init() {
	runCmd.Flags().StringVar(&metricsAddr, "metrics", "", "Serve Prometheus metrics on this address (e.g. :9091)")
}

func runExam(cmd *cobra.Command, args []string) error {
	// Environment overrides live in .env during development; absence is fine.
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := initLogger(cfg.Logging)
	logger.Info("Starting cogscreen",
		slog.String("api_base_url", cfg.API.BaseURL),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Float64("vad_threshold", cfg.VAD.Threshold),
		slog.Int("vad_window_size", cfg.VAD.WindowSize),
	)

	registry := prometheus.NewRegistry()
	appMetrics := metrics.NewMetrics(registry)
	if metricsAddr != "" {
		go serveMetrics(metricsAddr, registry, logger)
	}

	client, err := api.NewClient(api.Config{
		BaseURL:   cfg.API.BaseURL,
		Timeout:   cfg.API.GetTimeoutDuration(),
		UserAgent: cfg.API.UserAgent,
	})
	if err != nil {
		return fmt.Errorf("failed to create API client: %w", err)
	}

	sessions, err := store.Open(getDBPath(cfg.Store.Path))
	if err != nil {
		return fmt.Errorf("failed to open resume store: %w", err)
	}
	defer sessions.Close()

	detector, err := vad.NewDetector(cfg.VAD.Threshold, cfg.VAD.WindowSize)
	if err != nil {
		return fmt.Errorf("failed to create voice detector: %w", err)
	}

	source := capture.NewMicrophoneSource(cfg.Audio.SampleRate)
	engine, err := capture.NewEngine(source, detector, capture.Config{
		SampleRate:   cfg.Audio.SampleRate,
		TickInterval: cfg.VAD.GetTickInterval(),
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create capture engine: %w", err)
	}

	notifier := newConsoleNotifier(os.Stdout)
	controller, err := exam.NewController(client, sessions, engine, notifier, logger, appMetrics, exam.Options{
		PatientID:       cfg.Exam.PatientID,
		SilenceDuration: cfg.Audio.GetSilenceDuration(),
		SampleRate:      cfg.Audio.SampleRate,
		ResultsURL:      cfg.Exam.ResultsURL,
	})
	if err != nil {
		return fmt.Errorf("failed to create exam controller: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	interact(ctx, controller, client)
	logger.Info("Exam session ended")
	return nil
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		cfg := config.Default()
		applyEnvOverrides(cfg)
		return cfg, cfg.Validate()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv("COGSCREEN_API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("COGSCREEN_PATIENT_ID"); v != "" {
		cfg.Exam.PatientID = v
	}
}

const helpText = `Commands:
  start <instrument>  start or resume an exam (mmse, spmsq, ad8, moca)
  next                go to the next question
  prev                go to the previous question
  rec                 start recording an answer
  stop                stop recording and upload the answer
  yes | no            submit a manual accept/reject decision
  confirm             flag the next upload as manually confirmed
  status              show the current session state
  report              submit the report for the active session
  results             fetch and print the scored report
  help                show this help
  quit                exit`

func interact(ctx context.Context, controller *exam.Controller, client *api.Client) {
	fmt.Println(helpText)
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		fields := strings.Fields(strings.ToLower(scanner.Text()))
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "start":
			if len(fields) < 2 {
				fmt.Println("usage: start <instrument>")
				continue
			}
			if err := controller.StartExam(ctx, fields[1]); err != nil {
				fmt.Printf("start failed: %v\n", err)
			}
		case "next":
			controller.HandleNavigation(ctx, exam.DirectionNext)
		case "prev":
			controller.HandleNavigation(ctx, exam.DirectionPrev)
		case "rec":
			if err := controller.BeginRecording(ctx); err != nil {
				fmt.Printf("recording failed: %v\n", err)
			}
		case "stop":
			controller.StopRecording(ctx)
		case "yes", "no":
			if err := controller.SubmitManualDecision(ctx, fields[0] == "yes"); err != nil {
				fmt.Printf("decision failed: %v\n", err)
			}
		case "confirm":
			controller.SetManualConfirm(true)
			fmt.Println("next upload will be flagged as manually confirmed")
		case "status":
			printStatus(controller)
		case "report":
			if err := controller.SubmitReport(ctx, exam.SubmitOptions{ShowStatus: true, OpenResults: true}); err != nil {
				fmt.Printf("report failed: %v\n", err)
			}
		case "results":
			printReport(ctx, controller, client)
		case "help":
			fmt.Println(helpText)
		case "quit", "exit":
			return
		default:
			fmt.Printf("unknown command %q, type 'help'\n", fields[0])
		}
	}
}

func printStatus(controller *exam.Controller) {
	sessionID := controller.SessionID()
	if sessionID == "" {
		fmt.Println("no active session")
		return
	}

	fmt.Printf("instrument: %s\n", controller.Instrument())
	fmt.Printf("session:    %s\n", sessionID)
	fmt.Printf("answered:   %d\n", controller.AnsweredCount())
	if q, ok := controller.CurrentQuestion(); ok {
		fmt.Printf("question:   %d. %s\n", controller.Position(), q.Text)
	}
}

func printReport(ctx context.Context, controller *exam.Controller, client *api.Client) {
	sessionID := controller.SessionID()
	if sessionID == "" {
		fmt.Println("no active session")
		return
	}

	report, err := client.Report(ctx, sessionID)
	if err != nil {
		fmt.Printf("failed to fetch report: %v\n", err)
		return
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, report, "", "  "); err != nil {
		fmt.Println(string(report))
		return
	}
	fmt.Println(pretty.String())
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	logger.Info("Serving metrics", slog.String("address", addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Metrics server failed", slog.String("error", err.Error()))
	}
}

func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stdout":
		output = os.Stdout
	case "stderr", "":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = os.Stderr
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
