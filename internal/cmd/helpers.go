package cmd

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamancini/hotpush/internal/config"
	"github.com/adamancini/hotpush/internal/engine"
	"github.com/adamancini/hotpush/internal/interactive"
	"github.com/adamancini/hotpush/internal/logging"
	"github.com/adamancini/hotpush/internal/output"
	"github.com/adamancini/hotpush/internal/transport"
	"github.com/adamancini/hotpush/internal/types"
)

// newFetcher builds the transport for update checks and downloads.
var newFetcher = func() transport.Fetcher {
	return transport.New(transport.WithVersion(buildInfo.version))
}

// cliHost stands in for the application process. Restart requests are
// reported to the user rather than acted on.
type cliHost struct {
	version string

	mu        sync.Mutex
	restarted bool
}

func (h *cliHost) BinaryVersion() string { return h.version }

func (h *cliHost) Restart(immediate bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.restarted = h.restarted || immediate
}

func (h *cliHost) restartRequested() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.restarted
}

// confirm asks before a destructive step. It prompts on a terminal, or
// anywhere with interactiveMode, unless yes is set.
func confirm(cmd *cobra.Command, yes, interactiveMode bool, format string, args ...any) bool {
	in := cmd.InOrStdin()
	if yes || (!interactiveMode && !interactive.IsTerminal(in)) {
		return true
	}
	return interactive.NewPrompterWithIO(in, cmd.ErrOrStderr()).Confirm(format, args...)
}

// session is an engine opened from the resolved configuration.
type session struct {
	cfg       *config.Config
	engine    *engine.Engine
	host      *cliHost
	out       *output.Writer
	logCloser io.Closer
}

// openSession resolves the configuration, initializes logging and opens the
// engine. Callers must Close the session.
func openSession(cmd *cobra.Command) (*session, error) {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}

	cfg, path, err := config.Resolve(configPath)
	if err != nil {
		return nil, err
	}

	logCloser := logging.Init(logOptions(cfg.Logging, cmd.ErrOrStderr()))
	log := logging.L("cli")
	if path != "" {
		log.Debug("using config file", logging.KeyPath, path)
	} else {
		log.Debug("no config file found, using environment")
	}

	host := &cliHost{version: binaryVersion}
	eng, err := engine.New(cfg.Engine(),
		engine.WithFetcher(newFetcher()),
		engine.WithHost(host),
		engine.WithEntryPoint(cfg.EntryPoint),
		engine.WithCompanion(cfg.IsCompanion),
	)
	if err != nil {
		_ = logCloser.Close()
		return nil, err
	}

	return &session{
		cfg:       cfg,
		engine:    eng,
		host:      host,
		out:       output.NewWriter(cmd.OutOrStdout(), format),
		logCloser: logCloser,
	}, nil
}

// Close releases the engine and the log file.
func (s *session) Close() error {
	return errors.Join(s.engine.Close(), s.logCloser.Close())
}

// logOptions merges the logging flags over the config file section.
func logOptions(cfg config.LoggingConfig, stderr io.Writer) logging.Options {
	opts := logging.Options{
		Format: cfg.Format,
		Level:  cfg.Level,
		File:   cfg.File,
		Output: stderr,
	}
	if logFormat != "" {
		opts.Format = logFormat
	}
	if logLevel != "" {
		opts.Level = logLevel
	}
	if logFile != "" {
		opts.File = logFile
	}
	switch {
	case verbose:
		opts.Level = "debug"
	case quiet:
		opts.Level = "error"
	case opts.Level == "":
		opts.Level = "warn"
	}
	return opts
}

// syncFlags are the sync command's overrides of the config file.
type syncFlags struct {
	deploymentKey             string
	installMode               string
	mandatoryInstallMode      string
	minimumBackgroundDuration string
	checkFrequency            string
	ignoreFailedUpdates       bool
	ignoreFailedUpdatesSet    bool
}

// syncOptions converts the config sync section, with flag overrides, into
// engine options.
func syncOptions(cfg config.SyncConfig, flags syncFlags) (engine.SyncOptions, error) {
	pick := func(flag, file string) string {
		if flag != "" {
			return flag
		}
		return file
	}

	var opts engine.SyncOptions
	opts.DeploymentKey = flags.deploymentKey

	var err error
	if s := pick(flags.installMode, cfg.InstallMode); s != "" {
		if opts.InstallMode, err = types.ParseInstallMode(s); err != nil {
			return opts, fmt.Errorf("install mode: %w", err)
		}
	}
	if s := pick(flags.mandatoryInstallMode, cfg.MandatoryInstallMode); s != "" {
		if opts.MandatoryInstallMode, err = types.ParseInstallMode(s); err != nil {
			return opts, fmt.Errorf("mandatory install mode: %w", err)
		}
	}
	if s := pick(flags.checkFrequency, cfg.CheckFrequency); s != "" {
		if opts.CheckFrequency, err = types.ParseCheckFrequency(s); err != nil {
			return opts, fmt.Errorf("check frequency: %w", err)
		}
	}
	if s := pick(flags.minimumBackgroundDuration, cfg.MinimumBackgroundDuration); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d < 0 {
			return opts, fmt.Errorf("invalid minimum background duration '%s'", s)
		}
		opts.MinimumBackgroundDuration = d
	}

	switch {
	case flags.ignoreFailedUpdatesSet:
		ignore := flags.ignoreFailedUpdates
		opts.IgnoreFailedUpdates = &ignore
	case cfg.IgnoreFailedUpdates != nil:
		ignore := *cfg.IgnoreFailedUpdates
		opts.IgnoreFailedUpdates = &ignore
	}
	return opts, nil
}

// packageFields renders a package for text output.
func packageFields(p types.Package) output.Fields {
	d := p.Meta()
	fields := output.Fields{
		{Label: "Label", Value: d.Label},
		{Label: "Package hash", Value: d.PackageHash},
		{Label: "App version", Value: d.AppVersion},
		{Label: "Mandatory", Value: d.IsMandatory},
	}
	if d.Description != "" {
		fields = append(fields, output.Field{Label: "Description", Value: d.Description})
	}
	if d.FailedInstall {
		fields = append(fields, output.Field{Label: "Failed before", Value: true})
	}
	switch pkg := p.(type) {
	case *types.RemotePackage:
		if pkg.PackageSize > 0 {
			fields = append(fields, output.Field{Label: "Size", Value: pkg.PackageSize})
		}
	case *types.LocalPackage:
		fields = append(fields,
			output.Field{Label: "Pending", Value: pkg.IsPending},
			output.Field{Label: "First run", Value: pkg.IsFirstRun},
		)
	}
	return fields
}
