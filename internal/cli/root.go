// Package cli implements the mailrules command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/mailrules/internal/config"
	"github.com/joshsymonds/mailrules/internal/gmail"
	"github.com/joshsymonds/mailrules/internal/property"
	"github.com/joshsymonds/mailrules/internal/rate"
	"github.com/joshsymonds/mailrules/internal/rules"
	"github.com/joshsymonds/mailrules/internal/runtime"
	"github.com/joshsymonds/mailrules/internal/settings"
)

// ClientFactory opens a Gmail client with the given scope.
type ClientFactory func(ctx context.Context, credentialsDir string, scope runtime.Scope) (gmail.Client, error)

// app carries state shared by every subcommand of one invocation.
type app struct {
	cfgFile      string
	logLevel     string
	storeBackend string
	storePath    string
	output       string
	// shared opens badger per call so other processes can write meanwhile.
	shared bool

	newClient ClientFactory

	cfg       config.Config
	logger    *slog.Logger
	logCloser io.Closer
	bag       property.Closer
}

// Execute runs the command tree against os.Args.
func Execute(ctx context.Context) error {
	root, a := newRootCmd(nil)
	err := root.ExecuteContext(ctx)
	return errors.Join(err, a.close())
}

// newRootCmd builds the command tree. A nil factory authenticates against
// Gmail with the OAuth client and token in the credentials directory. The
// returned app must be closed once the command finishes.
func newRootCmd(newClient ClientFactory) (*cobra.Command, *app) {
	if newClient == nil {
		newClient = runtime.NewGmailClient
	}
	a := &app{newClient: newClient}

	root := &cobra.Command{
		Use:   "mailrules",
		Short: "Rule-based triage for the Gmail inbox",
		Long: `mailrules keeps a list of rules (a criterion and an action) and applies
them to the most recent inbox threads, once or on a schedule.

Examples:
  mailrules rules add --name receipts --field from --contains billing@shop.test --action label --value Receipts
  mailrules apply --dry-run
  mailrules settings set --auto-apply --interval 4
  mailrules run`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is <user config dir>/mailrules/config.toml)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&a.storeBackend, "store", "", "property store backend: memory, sqlite, badger")
	flags.StringVar(&a.storePath, "store-path", "", "property store file or directory")
	flags.StringVarP(&a.output, "output", "o", outputText, "output format: text, json")

	root.AddCommand(
		newRulesCmd(a),
		newSettingsCmd(a),
		newApplyCmd(a),
		newRunCmd(a),
		newAuditCmd(a),
		newImportCmd(a),
		newDebugCmd(a),
		newAuthCmd(a),
	)
	return root, a
}

// setup reads the config file, applies flag overrides and builds the logger.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Read(a.cfgFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.storeBackend != "" {
		cfg.Store.Backend = a.storeBackend
	}
	if a.storePath != "" {
		cfg.Store.Path = a.storePath
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if a.output != outputText && a.output != outputJSON {
		return fmt.Errorf("unknown output format %q", a.output)
	}
	logger, closer, err := runtime.NewLogger(runtime.LogOptions{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return err
	}
	a.cfg, a.logger, a.logCloser = cfg, logger, closer
	return nil
}

func (a *app) close() error {
	var errs []error
	if a.bag != nil {
		errs = append(errs, a.bag.Close())
		a.bag = nil
	}
	if a.logCloser != nil {
		errs = append(errs, a.logCloser.Close())
		a.logCloser = nil
	}
	return errors.Join(errs...)
}

// store opens the configured property bag once per invocation.
func (a *app) store() (property.Bag, error) {
	if a.bag != nil {
		return a.bag, nil
	}
	open := property.Open
	if a.shared {
		open = property.OpenShared
	}
	bag, err := open(a.cfg.Store.Backend, a.cfg.Store.Path, a.logger)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", a.cfg.Store.Backend, err)
	}
	a.logger.Debug("opened property store", "backend", a.cfg.Store.Backend, "path", a.cfg.Store.Path)
	a.bag = bag
	return bag, nil
}

func (a *app) ruleStore() (*rules.Store, error) {
	bag, err := a.store()
	if err != nil {
		return nil, err
	}
	return rules.NewStore(bag, a.logger), nil
}

func (a *app) settingsStore() (*settings.Store, error) {
	bag, err := a.store()
	if err != nil {
		return nil, err
	}
	return settings.NewStore(bag, a.logger), nil
}

// gmailClient authenticates and returns a rate limited client. The returned stop
// function releases the limiter.
func (a *app) gmailClient(ctx context.Context, scope runtime.Scope) (gmail.Client, rate.Limiter, func(), error) {
	client, err := a.newClient(ctx, a.cfg.Gmail.CredentialsDir, scope)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create gmail client: %w", err)
	}
	if a.cfg.Gmail.RPS <= 0 {
		return client, nil, func() {}, nil
	}
	bucket := rate.NewTokenBucket(a.cfg.Gmail.RPS)
	return client, bucket, bucket.Stop, nil
}
