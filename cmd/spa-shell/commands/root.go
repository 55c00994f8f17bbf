// Package commands implements the spa-shell command line interface.
package commands

import (
	"context"
	"io"
	"net/url"
	"os"

	shell "github.com/always-cache/spa-shell"
	"github.com/always-cache/spa-shell/cache"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.trai.ch/zerr"
)

// Version of the binary.
var Version = "DEV"

// CLI represents the command line interface for spa-shell.
type CLI struct {
	rootCmd *cobra.Command

	configFile     string
	origin         string
	host           string
	version        string
	storeProvider  string
	dbFilename     string
	redisAddr      string
	verbosityTrace bool
	logFilename    string
	logOutput      io.Writer
}

// New creates the CLI with all its commands.
func New() *CLI {
	c := &CLI{logOutput: os.Stdout}
	rootCmd := &cobra.Command{
		Use:           "spa-shell",
		Short:         "Offline-capable proxy and router for the movies single-page app",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setupLogging()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&c.configFile, "config", "c", "", "YAML config file")
	flags.StringVar(&c.origin, "origin", "", "Origin URL to proxy to")
	flags.StringVar(&c.host, "host", "", "Hostname of origin")
	flags.StringVar(&c.version, "cache-version", "", "Name of the cache generation")
	flags.StringVar(&c.storeProvider, "store", "", "Cache store: memory, sqlite or redis")
	flags.StringVar(&c.dbFilename, "db", "", "Cache DB file name (use 'memory' for in-memory db)")
	flags.StringVar(&c.redisAddr, "redis-addr", "", "Redis address for the redis store")
	flags.BoolVar(&c.verbosityTrace, "vv", false, "Verbosity: trace logging")
	flags.StringVar(&c.logFilename, "log-file", "", "Log file to use (in addition to stdout)")

	rootCmd.AddCommand(c.newServeCmd())
	rootCmd.AddCommand(c.newInstallCmd())
	rootCmd.AddCommand(c.newRefreshCmd())
	rootCmd.AddCommand(c.newGenerationsCmd())
	rootCmd.AddCommand(c.newResolveCmd())

	c.rootCmd = rootCmd
	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output and error streams, logs included. Used for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
	c.logOutput = err
}

func (c *CLI) setupLogging() error {
	logLevel := zerolog.DebugLevel
	if c.verbosityTrace {
		logLevel = zerolog.TraceLevel
	}

	// log to stdout, and to the log file if specified
	logOutputs := []io.Writer{zerolog.ConsoleWriter{Out: c.logOutput}}
	if c.logFilename != "" {
		logFileOutput, err := os.OpenFile(c.logFilename, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
		if err != nil {
			return zerr.With(zerr.Wrap(err, "cannot open log file"), "file", c.logFilename)
		}
		logOutputs = append(logOutputs, logFileOutput)
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("binary", Version).Logger()
	return nil
}

// config loads the config file, if any, and applies the flags on top of it.
func (c *CLI) config() (shell.Config, error) {
	config := shell.DefaultConfig()
	if c.configFile != "" {
		var err error
		if config, err = shell.LoadConfig(c.configFile); err != nil {
			return config, err
		}
	}
	if c.origin != "" {
		config.Origin = c.origin
	}
	if c.host != "" {
		config.Host = c.host
	}
	if c.version != "" {
		config.Version = c.version
	}
	if c.storeProvider != "" {
		config.Store.Provider = c.storeProvider
	}
	if c.dbFilename != "" {
		config.Store.Path = c.dbFilename
	}
	if c.redisAddr != "" {
		config.Store.RedisAddr = c.redisAddr
	}
	return config, nil
}

// shellInstance is the strategy engine wired for a config.
type shellInstance struct {
	config       shell.Config
	origin       *url.URL
	storage      cache.Storage
	worker       *shell.Worker
	registration *shell.Registration
}

func (s *shellInstance) Close() error {
	return s.storage.Close()
}

// newShell opens the store and creates a registration with a parsed, not yet registered worker.
func (c *CLI) newShell(ctx context.Context) (*shellInstance, error) {
	config, err := c.config()
	if err != nil {
		return nil, err
	}
	origin, err := config.OriginURL()
	if err != nil {
		return nil, err
	}
	storage, err := config.Store.OpenStorage(ctx)
	if err != nil {
		return nil, err
	}

	fetcher := shell.NewHTTPFetcher(*origin, config.Host)
	worker, err := shell.NewWorker(shell.WorkerConfig{
		Version:         config.Version,
		Scope:           *origin,
		Storage:         storage,
		Fetcher:         fetcher,
		APIPrefix:       config.APIPrefix,
		OfflineDocument: config.OfflineDocument,
		Precache:        config.Precache,
	})
	if err != nil {
		storage.Close()
		return nil, err
	}
	return &shellInstance{
		config:  config,
		origin:  origin,
		storage: storage,
		worker:  worker,
		registration: shell.NewRegistration(shell.RegistrationConfig{
			Origin:     *origin,
			OriginHost: config.Host,
			Fetcher:    fetcher,
		}),
	}, nil
}
