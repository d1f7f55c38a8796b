package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/conorfennell/vocabsync/internal/api"
	"github.com/conorfennell/vocabsync/internal/auth"
	"github.com/conorfennell/vocabsync/internal/checkin"
	"github.com/conorfennell/vocabsync/internal/config"
	"github.com/conorfennell/vocabsync/internal/kv"
	"github.com/conorfennell/vocabsync/internal/lookup"
	"github.com/conorfennell/vocabsync/internal/review"
	vsync "github.com/conorfennell/vocabsync/internal/sync"
	"github.com/conorfennell/vocabsync/internal/vocab"
	"github.com/conorfennell/vocabsync/internal/wrong"
)

const usage = `Usage: vocabsync [global flags] <command> [args]

Commands:
  register USERNAME EMAIL PASSWORD   create an account and sign in
  login EMAIL PASSWORD               sign in
  logout                             forget the stored session
  whoami                             show the signed-in user
  lookup WORD [--save]               explain a word with the lookup API
  add --word W --english E [...]     save a word by hand
  words [--category C]               list saved words
  remove WORD                        delete a saved word and its review plan
  review due|upcoming|stats|init|calendar|info|record|reset
  wrong list|stats|master|delete|clear
  checkin [progress|stats|achievements|calendar]
  quiz [--count N]                   answer questions about saved words
  import FILE [flags]                add words from a .xlsx or .csv file
  sync upload|download|merge|auto    mirror local data to the server

Global flags:
`

type app struct {
	cfg    *config.Client
	logger *slog.Logger
	out    io.Writer
	in     io.Reader

	store   *kv.DB
	words   *vocab.Repository
	reviews *review.Scheduler
	wrongs  *wrong.Repository
	checkin *checkin.Tracker
	lookup  *lookup.Client
	api     *api.Client
	auth    *auth.Client
	sync    *vsync.Engine
}

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"register": cmdRegister,
	"login":    cmdLogin,
	"logout":   cmdLogout,
	"whoami":   cmdWhoami,
	"lookup":   cmdLookup,
	"add":      cmdAdd,
	"words":    cmdWords,
	"remove":   cmdRemove,
	"review":   cmdReview,
	"wrong":    cmdWrong,
	"checkin":  cmdCheckin,
	"quiz":     cmdQuiz,
	"import":   cmdImport,
	"sync":     cmdSync,
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, rest, err := config.LoadClient(args)
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		printUsage(os.Stderr)
		return errors.New("no command given")
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		printUsage(os.Stderr)
		return fmt.Errorf("unknown command %q", rest[0])
	}

	a, err := newApp(cfg, os.Stdout, os.Stdin)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return cmd(ctx, a, rest[1:])
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, usage)
	flags := config.ClientFlags("vocabsync")
	flags.SetOutput(w)
	flags.PrintDefaults()

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(w, "\nKnown commands: %v\n", names)
}

func newApp(cfg *config.Client, out io.Writer, in io.Reader) (*app, error) {
	logger := config.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	store, err := kv.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	apiClient := api.NewClient(cfg.API.URL, cfg.API.Timeout)
	authClient, err := auth.New(store, apiClient)
	if err != nil {
		store.Close()
		return nil, err
	}

	words := vocab.New(store)
	return &app{
		cfg:     cfg,
		logger:  logger,
		out:     out,
		in:      in,
		store:   store,
		words:   words,
		reviews: review.NewScheduler(store, words),
		wrongs:  wrong.New(store),
		checkin: checkin.New(store),
		lookup: lookup.New(lookup.Config{
			BaseURL: cfg.Lookup.BaseURL,
			APIKey:  cfg.Lookup.APIKey,
			Model:   cfg.Lookup.Model,
		}),
		api:  apiClient,
		auth: authClient,
		sync: vsync.NewEngine(store, authClient, apiClient, vsync.WithInterval(cfg.Sync.Interval)),
	}, nil
}

func (a *app) close() {
	a.sync.StopAutoSync()
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close local store", "error", err)
	}
}

// push mirrors the current value of each key to the server when signed in.
func (a *app) push(ctx context.Context, keys ...string) {
	for _, key := range keys {
		raw, ok, err := a.store.Get(key)
		if err != nil {
			a.logger.Warn("failed to read key for sync", "key", key, "error", err)
			continue
		}
		if !ok {
			continue
		}
		a.sync.SyncItem(ctx, key, kv.EncodeValue(raw))
	}
}
