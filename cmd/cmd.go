// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

var (
	qualityFlag = &cli.StringFlag{
		Name:    "quality",
		Aliases: []string{"q"},
		Usage:   "Quality preset (best, 1080p, 720p, 480p, audio)",
	}
	formatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format (table, json, csv, md, txt)",
		Value:   "table",
	}
)

// optionFlags are the per-submission download settings shared by download and retry commands.
func optionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{Name: "audio-only", Usage: "Extract audio only"},
		&cli.StringFlag{Name: "audio-format", Usage: "Audio codec when extracting audio", Value: "mp3"},
		&cli.BoolFlag{Name: "subs", Usage: "Write subtitles"},
		&cli.StringFlag{Name: "sub-langs", Usage: "Comma-separated subtitle languages"},
		&cli.BoolFlag{Name: "thumbnail", Usage: "Write the thumbnail next to the video"},
		&cli.BoolFlag{Name: "embed-thumbnail", Usage: "Embed the thumbnail into the media file"},
		&cli.BoolFlag{Name: "embed-metadata", Usage: "Embed metadata into the media file"},
		&cli.BoolFlag{Name: "playlist", Usage: "Download the whole playlist when a URL points at one"},
		&cli.StringFlag{Name: "proxy", Usage: "Proxy URL for the extractor"},
		&cli.StringFlag{Name: "cookies", Usage: "Netscape cookie file"},
		&cli.StringFlag{Name: "cookies-from-browser", Usage: "Browser to read cookies from"},
		&cli.StringFlag{Name: "rate-limit", Usage: "Maximum download rate (e.g. 2M)"},
		&cli.IntFlag{Name: "retries", Usage: "Extractor retries"},
		&cli.IntFlag{Name: "fragment-retries", Usage: "Extractor fragment retries"},
		&cli.IntFlag{Name: "concurrent-fragments", Usage: "Fragments downloaded in parallel"},
		&cli.BoolFlag{Name: "archive", Usage: "Skip videos already recorded in the owner's download archive"},
	}
}

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API and download workers",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default: server.host:server.port)",
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Concurrent downloads (default: download.max_concurrent)",
			},
			&cli.StringFlag{
				Name:  "dir",
				Usage: "Download directory (default: download.base_dir)",
			},
		},
		Action: r.Serve,
	}
}

func downloadCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "download",
		Aliases:   []string{"dl"},
		Usage:     "Download URLs locally and wait for them to finish",
		ArgsUsage: "<url|share text>...",
		Flags: append([]cli.Flag{
			qualityFlag,
			&cli.StringFlag{
				Name:    "input",
				Aliases: []string{"i"},
				Usage:   "Read URLs from a file, one per line",
			},
			&cli.StringFlag{
				Name:  "dir",
				Usage: "Download directory (default: download.base_dir)",
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Concurrent downloads (default: download.max_concurrent)",
			},
			&cli.StringFlag{
				Name:  "as",
				Usage: "Owner to file downloads under",
			},
			formatFlag,
		}, optionFlags()...),
		Action: r.Download,
	}
}

func probeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "probe",
		Usage:     "Preview metadata for URLs without downloading",
		ArgsUsage: "<url|share text>...",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "remote",
				Usage: "Probe through the server instead of locally",
			},
			&cli.StringFlag{Name: "proxy", Usage: "Proxy URL for the extractor"},
			&cli.StringFlag{Name: "cookies", Usage: "Netscape cookie file"},
			&cli.StringFlag{Name: "cookies-from-browser", Usage: "Browser to read cookies from"},
			&cli.BoolFlag{Name: "pretty", Usage: "Pretty-print output", Value: true},
		},
		Action: r.Probe,
	}
}

func tasksCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tasks",
		Aliases: []string{"t"},
		Usage:   "Manage tasks on a running server",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Queue URLs on the server",
				ArgsUsage: "<url|share text>...",
				Flags:     append([]cli.Flag{qualityFlag}, optionFlags()...),
				Action:    r.TasksAdd,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List tasks",
				Flags: []cli.Flag{
					formatFlag,
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only show tasks with this status",
					},
					&cli.StringFlag{
						Name:  "export",
						Usage: "Write the list to a file (format from extension)",
					},
				},
				Action: r.TasksList,
			},
			{
				Name:      "get",
				Usage:     "Show one task",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags:     []cli.Flag{&cli.BoolFlag{Name: "pretty", Value: true}},
				Action:    r.TasksGet,
			},
			{
				Name:      "pause",
				Usage:     "Pause a running task",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Action:    r.TasksAction("pause"),
			},
			{
				Name:      "cancel",
				Usage:     "Cancel a task",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Action:    r.TasksAction("cancel"),
			},
			{
				Name:      "retry",
				Usage:     "Retry a paused or failed task",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Action:    r.TasksAction("retry"),
			},
			{
				Name:   "retry-failed",
				Usage:  "Retry every failed task",
				Action: r.TasksRetryFailed,
			},
			{
				Name:   "clear",
				Usage:  "Remove all tasks and their files",
				Flags:  []cli.Flag{&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Do not ask for confirmation"}},
				Action: r.TasksClear,
			},
			{
				Name:  "bundle",
				Usage: "Save completed downloads as one zip archive",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Archive path (default: videos_<timestamp>.zip)",
					},
				},
				Action: r.TasksBundle,
			},
		},
	}
}

func cookiesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cookies",
		Usage: "Browser cookie helpers for platforms that need a session",
		Commands: []*cli.Command{
			{
				Name:  "detect",
				Usage: "Find a browser whose cookie store holds a usable session",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "browser",
						Usage: "Browsers to try, in order",
					},
				},
				Action: r.CookiesDetect,
			},
			{
				Name:   "refresh",
				Usage:  "Open the platform in the default browser to renew its session",
				Action: r.CookiesRefresh,
			},
		},
	}
}

func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Query finished runs recorded in the database",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recorded runs",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "Only runs for this owner"},
					&cli.StringFlag{Name: "status", Usage: "Only runs with this status"},
					&cli.StringFlag{Name: "task", Usage: "Only runs of this task"},
					&cli.IntFlag{Name: "limit", Usage: "Maximum rows", Value: 50},
					&cli.BoolFlag{Name: "csv", Usage: "Output CSV"},
				},
				Action: r.HistoryList,
			},
			{
				Name:   "stats",
				Usage:  "Count runs per status",
				Flags:  []cli.Flag{&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "Only runs for this owner"}},
				Action: r.HistoryStats,
			},
		},
	}
}

func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Interactive task monitor for a running server",
		Flags: []cli.Flag{
			qualityFlag,
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Refresh interval",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Where logs go while the UI owns the terminal",
				Value: "./tmp/vf-watch.log",
			},
		},
		Action: r.Watch,
	}
}

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize configuration and database",
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Write an example config.toml",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Where to write the file (default: --config)",
					},
				},
				Action: r.SetupConfig,
			},
			{
				Name:  "database",
				Usage: "Create the history database and run migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Revert the most recently applied migration instead",
					},
				},
				Action: r.SetupDatabase,
			},
		},
	}
}

// apiCommand makes raw calls against a running server.
func apiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Direct calls to the server's HTTP API",
		Commands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "GET a path and print the response",
				Arguments: []cli.Argument{&cli.StringArg{Name: "path"}},
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Compact JSON output"},
				},
				Action: r.APIGet,
			},
			{
				Name:      "post",
				Usage:     "POST a JSON body to a path",
				Arguments: []cli.Argument{&cli.StringArg{Name: "path"}},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "data",
						Aliases: []string{"d"},
						Usage:   "JSON body to send",
						Value:   "{}",
					},
				},
				Action: r.APIPost,
			},
		},
	}
}
