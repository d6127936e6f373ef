package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/videofetcher/internal/repositories"
	"github.com/desertthunder/videofetcher/internal/services"
	"github.com/desertthunder/videofetcher/internal/shared"
	"github.com/desertthunder/videofetcher/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	extractor  services.Extractor
	api        *services.APIService
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Extractor  services.Extractor // Built from config on first use when nil
	API        *services.APIService
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		extractor:  opts.Extractor,
		api:        opts.API,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

// SetLogger replaces the runner's logger.
func (r *Runner) SetLogger(l *log.Logger) { r.logger = l }

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		serveCommand, downloadCommand, probeCommand, tasksCommand, cookiesCommand,
		historyCommand, watchCommand, setupCommand, apiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// app builds the root command.
func (r *Runner) app(version string) *cli.Command {
	return &cli.Command{
		Name:    "vf",
		Usage:   "Queue, run, and monitor video downloads",
		Version: version,
		Writer:  r.output,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
				Sources: cli.EnvVars("VF_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "server",
				Usage:   "Address of a running vf server (default: derived from config)",
				Sources: cli.EnvVars("VF_SERVER"),
			},
			&cli.StringFlag{
				Name:    "owner",
				Usage:   "Identity sent to the server",
				Sources: cli.EnvVars("VF_OWNER"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override the configured log level (debug, info, warn, error)",
			},
		},
		Before:   r.before,
		Commands: r.register(),
	}
}

// before loads the config file when present and prepares the API client.
func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String("config"); path != "" {
		if _, err := os.Stat(path); err == nil {
			config, err := shared.LoadConfig(path)
			if err != nil {
				return ctx, err
			}
			r.config, r.configPath = config, path
		} else if cmd.IsSet("config") {
			return ctx, fmt.Errorf("%w: %s", shared.ErrMissingConfig, path)
		}
	}

	level := r.config.Logging.Level
	if l := cmd.String("log-level"); l != "" {
		level = l
	}
	if err := shared.ApplyLogLevel(r.logger, level); err != nil {
		return ctx, fmt.Errorf("%w: %v", shared.ErrInvalidFlag, err)
	}

	if r.api == nil {
		r.api = services.NewAPIService(r.serverURL(cmd.String("server")), r.httpClient)
	}
	if owner := cmd.String("owner"); owner != "" {
		r.api = r.api.WithOwner(owner)
	}
	return ctx, nil
}

func (r *Runner) serverURL(flag string) string {
	if flag != "" {
		return strings.TrimRight(flag, "/")
	}
	host := r.config.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, r.config.Server.Port)
}

// newExtractor returns the injected extractor, or the yt-dlp gateway behind a probe cache.
func (r *Runner) newExtractor() (services.Extractor, func(), error) {
	if r.extractor != nil {
		return r.extractor, func() {}, nil
	}
	cfg := r.config.Extractor
	ytdlp := services.NewYTDLPService(cfg.Binary, shared.WithLogger(r.logger, "extractor", "yt-dlp"))
	cached, err := services.NewCachedExtractor(ytdlp, cfg.ProbeCacheSize, cfg.ProbeCacheTTL.Duration)
	if err != nil {
		return nil, nil, err
	}
	return cached, cached.Close, nil
}

// openHistory opens the run history when the database is enabled.
func (r *Runner) openHistory() (*repositories.HistoryRepository, func(), error) {
	if !r.config.Database.Enabled {
		return nil, func() {}, nil
	}
	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open history database: %w", err)
	}
	return repositories.NewHistoryRepository(db), func() { db.Close() }, nil
}

// newManager wires a task manager from config. The returned func releases its resources.
func (r *Runner) newManager(baseDir string, workers int, events chan<- tasks.ProgressUpdate) (*tasks.Manager, func(), error) {
	ext, closeExt, err := r.newExtractor()
	if err != nil {
		return nil, nil, err
	}
	history, closeDB, err := r.openHistory()
	if err != nil {
		closeExt()
		return nil, nil, err
	}

	dl := r.config.Download
	if baseDir == "" {
		baseDir = dl.BaseDir
	}
	if workers <= 0 {
		workers = dl.MaxConcurrent
	}

	opts := tasks.ManagerOpts{
		Store:          repositories.NewTaskStore(baseDir),
		Extractor:      ext,
		Logger:         r.logger,
		Events:         events,
		Workers:        workers,
		UseArchive:     dl.UseArchive,
		Trash:          dl.Trash,
		DefaultQuality: dl.DefaultQuality,
	}
	if history != nil {
		opts.Recorder = history
	}
	return tasks.NewManager(opts), func() { closeDB(); closeExt() }, nil
}

// localOwner is the identity used for downloads that never pass through the server.
func (r *Runner) localOwner(flag string) string {
	if flag != "" {
		return flag
	}
	if u, ok := r.config.Admin(); ok && u.Name != "" {
		return u.Name
	}
	return "local"
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
