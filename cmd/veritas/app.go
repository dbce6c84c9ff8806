package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"veritas/internal/api"
	"veritas/internal/config"
	"veritas/internal/format"
	"veritas/internal/journal"
	"veritas/internal/logging"
	"veritas/internal/session"
)

// app is the state shared by every command of one invocation.
type app struct {
	getenv func(string) string
	flags  struct {
		config    string
		baseURL   string
		logLevel  string
		logFormat string
		output    string
	}

	cfg    config.Config
	store  *session.Store
	live   *session.Session
	client *api.Client
	now    func() time.Time
}

// setup resolves config, logging, the stored session and the API client.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.flags.config, a.getenv)
	if err != nil {
		return err
	}
	if a.flags.baseURL != "" {
		cfg.BaseURL = a.flags.baseURL
	}
	if a.flags.logLevel != "" {
		cfg.LogLevel = a.flags.logLevel
	}
	if a.flags.logFormat != "" {
		cfg.LogFormat = a.flags.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := a.tableMode(); err != nil && a.flags.output != "json" {
		return err
	}
	a.cfg = cfg

	level, _ := logging.ParseLevel(cfg.LogLevel)
	logging.Init(level, cfg.LogFormat, cmd.ErrOrStderr())

	if cfg.SessionFile == "" {
		return errors.New("no session file location: set session_file or " + config.EnvSessionFile)
	}
	a.store = session.NewStore(cfg.SessionFile)
	if a.live, err = a.store.Load(); err != nil {
		return err
	}
	if a.now == nil {
		a.now = time.Now
	}

	a.client, err = api.New(cfg.BaseURL,
		api.WithTokenSource(a.live),
		api.WithTimeout(cfg.Timeout),
		api.WithRetries(cfg.Retries),
		api.WithLogger(logging.New("api")),
	)
	return err
}

// requireLogin fails fast when there is no usable session.
func (a *app) requireLogin() error {
	return a.live.Check(a.now())
}

func (a *app) sessions() *session.Manager {
	return session.NewManager(a.client, a.store, a.live)
}

// openJournal opens the submission journal, or an in-memory one when no
// journal file is configured.
func (a *app) openJournal() (journal.Store, error) {
	if a.cfg.JournalDB == "" {
		return journal.NewMemStore(), nil
	}
	return journal.Open(a.cfg.JournalDB)
}

func (a *app) tableMode() (format.Mode, error) {
	return format.ParseMode(a.flags.output)
}

// render writes v as indented JSON for --output json, else the table.
func (a *app) render(w io.Writer, v any, table func(format.Mode) string) error {
	if a.flags.output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	mode, err := a.tableMode()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, table(mode))
	return err
}
