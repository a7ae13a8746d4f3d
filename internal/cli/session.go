package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/assetsched/internal/asset"
	"github.com/roach88/assetsched/internal/compiler"
	"github.com/roach88/assetsched/internal/config"
	"github.com/roach88/assetsched/internal/engine"
	"github.com/roach88/assetsched/internal/evaluator"
	"github.com/roach88/assetsched/internal/store"
)

// StoreFlags are the flags shared by commands that open the database.
type StoreFlags struct {
	Database string
	Sensor   string
}

// session is what evaluate and run share: config, compiled definitions and
// an open store.
type session struct {
	cfg     config.Config
	project *compiler.Project
	store   *store.Store
	logger  *slog.Logger
}

// openSession loads config, applies flag overrides, compiles paths and opens
// the database. Failures are reported through f.
func openSession(f *OutputFormatter, opts *RootOptions, flags StoreFlags, paths []string) (*session, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}
	if flags.Database != "" {
		cfg.Database = flags.Database
	}
	if flags.Sensor != "" {
		cfg.Sensor = flags.Sensor
	}
	if err := config.Validate(cfg); err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeConfig, "invalid config", err)
	}
	logger := configureLogging(f.errWriter(), opts.Verbose, cfg.SlogLevel())

	project, err := compiler.LoadProject(compiler.Options{}, paths...)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeLoad, "failed to compile definitions", err)
	}
	logger.Debug("definitions compiled", "assets", len(project.Graph.Keys()))

	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}
	return &session{cfg: cfg, project: project, store: st, logger: logger}, nil
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		s.logger.Error("error closing database", "error", err)
	}
}

func (s *session) evaluatorOptions() (evaluator.Options, error) {
	cond, err := s.cfg.Condition()
	if err != nil {
		return evaluator.Options{}, fmt.Errorf("default condition: %w", err)
	}
	return evaluator.Options{
		DefaultCondition: cond,
		Policies:         s.project.Policies,
		Parallelism:      s.cfg.Parallelism,
		Logger:           s.logger,
	}, nil
}

func (s *session) daemonConfig(selection []asset.Key) (engine.DaemonConfig, error) {
	evalOpts, err := s.evaluatorOptions()
	if err != nil {
		return engine.DaemonConfig{}, err
	}
	return engine.DaemonConfig{
		Sensor:    s.cfg.Sensor,
		Interval:  s.cfg.TickInterval,
		Selection: selection,
		RunTags:   s.cfg.RunTags,
		Options:   evalOpts,
	}, nil
}

// parseSelection parses comma-separated asset keys. Every key must exist in g.
func parseSelection(raw string, g *asset.Graph) ([]asset.Key, error) {
	if raw == "" {
		return nil, nil
	}
	var keys []asset.Key
	for _, s := range strings.Split(raw, ",") {
		k, err := asset.ParseKey(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		if !g.Has(k) {
			return nil, fmt.Errorf("unknown asset %q", k)
		}
		keys = append(keys, k)
	}
	return keys, nil
}
