// loto scans Lô Tô tickets and keeps score while numbers are called.
//
// Three commands share one configuration:
//
//	loto serve   the recognition service (model, optional OCR, history)
//	loto board   the scan session over HTTP with live SSE updates
//	loto play    the scan session in the terminal
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/bodul/loto/clock"
	"github.com/bodul/loto/ocr"
	"github.com/bodul/loto/recognition"
	"github.com/bodul/loto/scan"
	"github.com/bodul/loto/tui"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printUsage()
		return nil
	}
	switch args[0] {
	case "serve":
		return runServe(args[1:])
	case "board":
		return runBoard(args[1:])
	case "play":
		return runPlay(args[1:])
	case "help", "-h", "--help":
		printUsage()
		return nil
	default:
		return fmt.Errorf("unknown command %q (want serve, board or play)", args[0])
	}
}

// commandFlags are the flags every command takes.
type commandFlags struct {
	*pflag.FlagSet
	configPath string
	logLevel   string
}

func newCommandFlags(name string) *commandFlags {
	f := &commandFlags{FlagSet: pflag.NewFlagSet("loto "+name, pflag.ContinueOnError)}
	f.StringVar(&f.configPath, "config", "", "YAML configuration file (default: $LOTO_CONFIG)")
	f.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	f.BoolP("help", "h", false, "show help")
	return f
}

// parse parses args and loads the configuration. It returns a nil
// config when help was requested.
func (f *commandFlags) parse(args []string, summary string) (*Config, error) {
	if err := f.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(f.FlagSet, summary)
			return nil, nil
		}
		return nil, err
	}
	if help, _ := f.GetBool("help"); help {
		printHelp(f.FlagSet, summary)
		return nil, nil
	}

	// A missing .env is fine.
	_ = godotenv.Load()

	cfg, err := LoadConfig(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	return cfg, nil
}

func runServe(args []string) error {
	flags := newCommandFlags("serve")
	addr := flags.String("addr", "", "listen address")
	provider := flags.String("provider", "", "AI provider: gemini or openai")
	useOCR := flags.Bool("ocr", false, "run Tesseract before the model")

	cfg, err := flags.parse(args, "Run the ticket recognition service.")
	if cfg == nil || err != nil {
		return err
	}
	if flags.Changed("addr") {
		cfg.Server.Addr = *addr
	}
	if flags.Changed("provider") {
		cfg.AI.Provider = *provider
	}
	if flags.Changed("ocr") {
		cfg.OCR.Enabled = *useOCR
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log, false)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := openStore(ctx, cfg.Database.DSN(), logger)
	defer store.Close()

	var reader TicketReader
	analyzer, err := newAnalyzer(ctx, cfg.AI, logger)
	if err != nil {
		logger.Warn("ticket analysis disabled", zap.Error(err))
	} else {
		var scanner ocr.Scanner
		if cfg.OCR.Enabled {
			scanner = ocr.NewTesseract(logger, cfg.OCR.Languages...)
		}
		reader = NewHybridReader(scanner, analyzer, logger)
		logger.Info("ticket analysis enabled",
			zap.String("provider", analyzer.Name()),
			zap.Bool("ocr", cfg.OCR.Enabled))
	}

	srv := NewServer(cfg.Server, store, reader, logger)
	go srv.uploadRL.run(ctx)

	return serveHTTP(ctx, &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, logger)
}

func newAnalyzer(ctx context.Context, cfg AIConfig, logger *zap.Logger) (Analyzer, error) {
	if cfg.Provider == "openai" {
		a, err := NewOpenAIAnalyzer(cfg.OpenAI, logger)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
	a, err := NewGeminiAnalyzer(ctx, cfg.Gemini, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func runBoard(args []string) error {
	flags := newCommandFlags("board")
	addr := flags.String("addr", "", "listen address of the board")
	serviceURL := flags.String("service-url", "", "base URL of the recognition service")
	upload := flags.String("upload", "", "upload encoding: stream or blob")

	cfg, err := flags.parse(args, "Serve a scan session over HTTP with live updates.")
	if cfg == nil || err != nil {
		return err
	}
	if flags.Changed("addr") {
		cfg.Client.BoardAddr = *addr
	}
	applyClientFlags(flags, cfg, *serviceURL, *upload)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log, false)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sse := NewBroadcaster()
	orch, err := newSession(cfg.Client, newSSEEffects(sse), logger)
	if err != nil {
		return err
	}
	defer orch.Close()

	dir, err := os.MkdirTemp("", "loto-board-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	board := NewBoard(orch, sse, dir, logger)
	defer board.Close()

	// SSE streams never finish on their own; no write timeout.
	return serveHTTP(ctx, &http.Server{
		Addr:        cfg.Client.BoardAddr,
		Handler:     board,
		ReadTimeout: cfg.Server.ReadTimeout,
	}, logger)
}

func runPlay(args []string) error {
	flags := newCommandFlags("play")
	serviceURL := flags.String("service-url", "", "base URL of the recognition service")
	upload := flags.String("upload", "", "upload encoding: stream or blob")

	cfg, err := flags.parse(args, "Scan a ticket and mark numbers in the terminal.\n\nUsage:\n  loto play [flags] [image]")
	if cfg == nil || err != nil {
		return err
	}
	applyClientFlags(flags, cfg, *serviceURL, *upload)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if flags.NArg() > 1 {
		return fmt.Errorf("unexpected argument: %s", flags.Arg(1))
	}

	logger, err := newLogger(cfg.Log, true)
	if err != nil {
		return err
	}
	defer logger.Sync()

	orch, err := newSession(cfg.Client, tui.Bell(os.Stderr), logger)
	if err != nil {
		return err
	}
	defer orch.Close()

	if path := flags.Arg(0); path != "" {
		if err := orch.SelectFrom(context.Background(), scan.FileSource{Path: path}); err != nil {
			return err
		}
	}

	program := tea.NewProgram(tui.New(orch), tea.WithAltScreen())
	_, err = program.Run()
	return err
}

func applyClientFlags(flags *commandFlags, cfg *Config, serviceURL, upload string) {
	if flags.Changed("service-url") {
		cfg.Client.ServiceURL = serviceURL
	}
	if flags.Changed("upload") {
		cfg.Client.Upload = upload
	}
}

// newSession wires an orchestrator to the recognition service.
func newSession(cfg ClientConfig, effects scan.EffectsFunc, logger *zap.Logger) (*scan.Orchestrator, error) {
	encoder, err := recognition.NewEncoder(cfg.Upload, nil)
	if err != nil {
		return nil, err
	}
	client, err := recognition.NewClient(cfg.ServiceURL, encoder, nil, logger)
	if err != nil {
		return nil, err
	}
	return scan.New(client, scan.Config{
		StageOffsets: []time.Duration{cfg.Stage1Offset, cfg.Stage2Offset},
		Timeout:      cfg.Timeout,
		Clock:        clock.Real(),
		Logger:       logger,
		Effects:      effects,
	}), nil
}

// serveHTTP runs srv until ctx is done, then shuts it down. Requests
// see ctx cancelled so long-lived streams end with it.
func serveHTTP(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	srv.BaseContext = func(net.Listener) context.Context { return ctx }

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newLogger builds the JSON production logger. The terminal board owns
// the screen, so play logs go to the configured file, in development
// format, or nowhere.
func newLogger(cfg LogConfig, terminal bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if terminal {
		if cfg.File == "" {
			return zap.NewNop(), nil
		}
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		zcfg.Level = level
	}
	if cfg.File != "" {
		zcfg.OutputPaths = []string{cfg.File}
		zcfg.ErrorOutputPaths = []string{cfg.File}
	}
	return zcfg.Build()
}

func printUsage() {
	fmt.Fprint(os.Stderr, `loto - scan Lô Tô tickets and mark called numbers

Usage:
  loto serve [flags]         run the recognition service
  loto board [flags]         serve a scan session over HTTP
  loto play  [flags] [image] play in the terminal

Run "loto <command> --help" for the flags of a command.
`)
}

func printHelp(flagSet *pflag.FlagSet, summary string) {
	fmt.Fprintf(os.Stderr, "%s\n\nFlags:\n", summary)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
