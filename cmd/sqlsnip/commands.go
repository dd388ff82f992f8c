package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/sql-snippets/internal/archive"
	"github.com/sakif/sql-snippets/internal/config"
	"github.com/sakif/sql-snippets/internal/editor"
	"github.com/sakif/sql-snippets/internal/format"
	"github.com/sakif/sql-snippets/internal/logging"
	"github.com/sakif/sql-snippets/internal/server"
	"github.com/sakif/sql-snippets/internal/workspace"
)

// app carries the global flags and what they resolve to.
type app struct {
	configPath string
	dbPath     string
	verbose    bool

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "sqlsnip",
		Short:         "Save, search, format, and recover SQL snippets",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: ./sqlsnip.yaml if present)")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "snippet database path (overrides storage.dbPath)")
	root.PersistentFlags().BoolVar(&a.verbose, "verbose", false, "debug logging")

	root.AddCommand(
		a.serveCmd(),
		a.listCmd(),
		a.searchCmd(),
		a.showCmd(),
		a.newCmd(),
		a.rmCmd(),
		a.exportCmd(),
		a.importCmd(),
		a.formatCmd(),
		a.backupsCmd(),
		a.recoverCmd(),
	)
	return root
}

// load resolves config and the logger. One-shot commands log at warn so
// store chatter stays off the terminal unless --verbose is given.
func (a *app) load(cmd *cobra.Command, quiet bool) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.Storage.DBPath = a.dbPath
	}
	switch {
	case a.verbose:
		cfg.Logger.Level = "debug"
	case quiet && cfg.Logger.Level != "error":
		cfg.Logger.Level = "warn"
	}

	logger, err := logging.New(cmd.ErrOrStderr(), cfg.Logger)
	if err != nil {
		return err
	}
	a.cfg, a.logger = cfg, logger
	return nil
}

// withStorage runs fn against the configured store and closes it after.
func (a *app) withStorage(cmd *cobra.Command, fn func(*server.Storage) error) error {
	if err := a.load(cmd, true); err != nil {
		return err
	}
	st, err := server.OpenStorage(a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}

// readInput reads path, or stdin for "" and "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// --- serve ---

func (a *app) serveCmd() *cobra.Command {
	var (
		port      int
		ephemeral bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd, false); err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}
			if ephemeral {
				a.cfg.Storage.Ephemeral = true
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			srv, err := server.New(a.cfg, a.logger)
			if err != nil {
				return err
			}
			return srv.Start()
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "listen port (overrides server.port)")
	cmd.Flags().BoolVar(&ephemeral, "ephemeral", false, "keep snippets in memory only")
	return cmd
}

// --- list / search / show ---

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List snippets, most recently modified first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStorage(cmd, func(st *server.Storage) error {
				return printSnippets(cmd, st, "")
			})
		},
	}
}

func (a *app) searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Find snippets whose name or SQL contains the query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStorage(cmd, func(st *server.Storage) error {
				return printSnippets(cmd, st, strings.Join(args, " "))
			})
		},
	}
}

func printSnippets(cmd *cobra.Command, st *server.Storage, query string) error {
	snippets := st.Store.Search(cmd.Context(), query)
	if len(snippets) == 0 {
		printWarning(cmd.ErrOrStderr(), "no snippets found")
		return nil
	}
	tw := newTable(cmd.OutOrStdout())
	fmt.Fprintln(tw, "ID\tNAME\tMODIFIED")
	for _, sn := range snippets {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", sn.ID, sn.Name, formatTime(sn.LastModified))
	}
	return tw.Flush()
}

func (a *app) showCmd() *cobra.Command {
	var highlight bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a snippet's SQL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStorage(cmd, func(st *server.Storage) error {
				sn, err := st.Store.GetByID(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				printStatus(cmd.ErrOrStderr(), "Name", "%s", sn.Name)
				printStatus(cmd.ErrOrStderr(), "Modified", "%s", formatTime(sn.LastModified))
				if !highlight {
					fmt.Fprintln(out, sn.SQL)
					return nil
				}
				theme, err := editor.ParseTheme(a.cfg.Editor.Theme)
				if err != nil {
					return err
				}
				ed := editor.New(theme)
				ed.Attach(sn.SQL)
				defer ed.Detach()
				if err := ed.Highlight(out, editor.FormatTerminal); err != nil {
					return err
				}
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&highlight, "highlight", false, "syntax-highlight the SQL")
	return cmd
}

// --- new / rm ---

func (a *app) newCmd() *cobra.Command {
	var sql, file string
	cmd := &cobra.Command{
		Use:   "new <name>",
		Short: "Create a snippet",
		Long: `Create a snippet from --sql, from --file (use - for stdin), or with the
default placeholder text when neither is given.

Examples:
  sqlsnip new "Active users" --sql "SELECT * FROM users WHERE active"
  sqlsnip new "Monthly report" --file report.sql
  pbpaste | sqlsnip new "From clipboard" --file -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("sql") && cmd.Flags().Changed("file") {
				return fmt.Errorf("--sql and --file are mutually exclusive")
			}
			text := workspace.DefaultSQL
			switch {
			case cmd.Flags().Changed("sql"):
				text = sql
			case cmd.Flags().Changed("file"):
				data, err := readInput(cmd, file)
				if err != nil {
					return err
				}
				text = string(data)
			}

			return a.withStorage(cmd, func(st *server.Storage) error {
				sn, err := st.Store.Create(cmd.Context(), args[0], text)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), sn.ID)
				printSuccess(cmd.ErrOrStderr(), "created %q", sn.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sql, "sql", "", "snippet SQL text")
	cmd.Flags().StringVarP(&file, "file", "f", "", "read SQL from a file (- for stdin)")
	return cmd
}

func (a *app) rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a snippet and its backup",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStorage(cmd, func(st *server.Storage) error {
				removed, err := st.Store.Delete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("snippet not found with id %s", args[0])
				}
				printSuccess(cmd.ErrOrStderr(), "deleted %s", args[0])
				return nil
			})
		},
	}
}

// --- export / import ---

func (a *app) exportCmd() *cobra.Command {
	var (
		out      string
		compress bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every snippet to an export file",
		Long: `Write every snippet as a JSON array. The default file name is
sql-snippets-<YYYY-MM-DD>.json (.json.zst with --compress). Use --out - for stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStorage(cmd, func(st *server.Storage) error {
				data, err := st.Store.Export(cmd.Context())
				if err != nil {
					return err
				}
				if compress {
					codec, err := archive.NewCodec()
					if err != nil {
						return err
					}
					defer codec.Close()
					data = codec.Compress(data)
				}

				if out == "-" {
					_, err := cmd.OutOrStdout().Write(data)
					return err
				}
				if out == "" {
					out = archive.FileName(time.Now(), compress)
				}
				if err := archive.WriteFile(out, data); err != nil {
					return err
				}
				printSuccess(cmd.ErrOrStderr(), "exported to %s", out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (- for stdout)")
	cmd.Flags().BoolVarP(&compress, "compress", "z", false, "zstd-compress the export")
	return cmd
}

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace every snippet with the contents of an export file",
		Long: `Replace the whole collection with an export file (plain or zstd). The
file is validated first; nothing changes if any snippet in it is invalid.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			codec, err := archive.NewCodec()
			if err != nil {
				return err
			}
			defer codec.Close()
			data, err := codec.Decode(raw)
			if err != nil {
				return fmt.Errorf("invalid export file: %w", err)
			}

			return a.withStorage(cmd, func(st *server.Storage) error {
				printStep(cmd.ErrOrStderr(), "importing %s", args[0])
				res, err := st.Store.Import(cmd.Context(), data)
				if err != nil {
					return err
				}
				if !res.Success {
					return fmt.Errorf("%s", res.Message)
				}
				printSuccess(cmd.ErrOrStderr(), "%s (%d snippets)", res.Message, res.Count)
				return nil
			})
		},
	}
}

// --- format ---

func (a *app) formatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "format [file]",
		Short: "Pretty-print SQL from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			data, err := readInput(cmd, path)
			if err != nil {
				return err
			}
			out, err := format.New().Format(string(data))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(out, "\n"))
			return nil
		},
	}
}

// --- backups / recover ---

func (a *app) backupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backups",
		Short: "List recovery backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStorage(cmd, func(st *server.Storage) error {
				backups := st.Store.ListBackups(cmd.Context())
				if len(backups) == 0 {
					printWarning(cmd.ErrOrStderr(), "no backups")
					return nil
				}
				tw := newTable(cmd.OutOrStdout())
				fmt.Fprintln(tw, "SNIPPET\tNAME\tTAKEN\tUNSAVED")
				for _, b := range backups {
					unsaved := st.Store.HasUnsavedChanges(cmd.Context(), b.SnippetID)
					fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", b.SnippetID, b.Name, formatTime(b.Time()), unsaved)
				}
				return tw.Flush()
			})
		},
	}
}

func (a *app) recoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover <id>",
		Short: "Apply a snippet's backup and clear it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStorage(cmd, func(st *server.Storage) error {
				sn, err := st.Store.Recover(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printSuccess(cmd.ErrOrStderr(), "recovered %q", sn.Name)
				fmt.Fprintln(cmd.OutOrStdout(), sn.SQL)
				return nil
			})
		},
	}
}
