package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newBanlistCommand(opts *RootOptions, backend Backend) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "banlist",
		Short: "Query, import and export the global ban registry",
	}
	cmd.AddCommand(newBanlistQueryCommand(opts, backend))
	cmd.AddCommand(newBanlistCountCommand(opts, backend))
	cmd.AddCommand(newBanlistImportCommand(opts, backend))
	cmd.AddCommand(newBanlistExportCommand(backend))
	cmd.AddCommand(newBanlistArchiveCommand(opts, backend))
	return cmd
}

func newBanlistQueryCommand(opts *RootOptions, backend Backend) *cobra.Command {
	return &cobra.Command{
		Use:   "query <id...>",
		Short: "Show the ban records of the given user ids",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			svc, err := backend.Services(cmd.Context())
			if err != nil {
				return err
			}
			bans, err := svc.Bans.Lookup(cmd.Context(), ids)
			if err != nil {
				return err
			}
			return newOutput(opts, cmd).emit(bans, func(w io.Writer) {
				if len(bans) == 0 {
					fmt.Fprintln(w, "None of the users are banned.")
					return
				}
				for _, b := range bans {
					fmt.Fprintf(w, "%d  %s  %s\n", b.ID, b.Reason, b.RecordedAt.Format("2006-01-02 15:04"))
				}
			})
		},
	}
}

func newBanlistCountCommand(opts *RootOptions, backend Backend) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count all bans, or the bans with exactly --reason",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := backend.Services(cmd.Context())
			if err != nil {
				return err
			}
			var n int64
			if reason != "" {
				n, err = svc.Bans.CountReason(cmd.Context(), reason)
			} else {
				n, err = svc.Bans.TotalCount(cmd.Context())
			}
			if err != nil {
				return err
			}
			return newOutput(opts, cmd).emit(map[string]int64{"count": n}, func(w io.Writer) {
				fmt.Fprintln(w, n)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "count only bans with this reason")
	return cmd
}

func newBanlistImportCommand(opts *RootOptions, backend Backend) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv|->",
		Short: "Merge an id,reason CSV into the registry and mirror it to the ban authority",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, closeFn, err := openInput(cmd, args[0])
			if err != nil {
				return err
			}
			defer closeFn()

			svc, err := backend.Services(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.Sync.Import(cmd.Context(), r)
			if err != nil {
				return err
			}
			return newOutput(opts, cmd).emit(res, func(w io.Writer) {
				fmt.Fprintf(w, "Imported %d rows (%d users) in %s, skipped %d.\n",
					res.Count, res.Persisted, res.Elapsed.Round(time.Millisecond), res.Skipped)
				if res.Pushed > 0 || res.FailedChunks > 0 {
					fmt.Fprintf(w, "Pushed %d to the authority, %d chunks failed.\n", res.Pushed, res.FailedChunks)
				}
			})
		},
	}
}

func newBanlistExportCommand(backend Backend) *cobra.Command {
	var (
		exclude  []string
		diffFile string
		outFile  string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the registry as an id,reason CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			excluded, err := parseIDs(exclude)
			if err != nil {
				return err
			}
			svc, err := backend.Services(cmd.Context())
			if err != nil {
				return err
			}

			var buf bytes.Buffer
			if diffFile != "" {
				r, closeFn, err := openInput(cmd, diffFile)
				if err != nil {
					return err
				}
				defer closeFn()
				err = svc.Sync.ExportDiff(cmd.Context(), &buf, r)
				if err != nil {
					return err
				}
			} else if err := svc.Sync.Export(cmd.Context(), &buf, excluded); err != nil {
				return err
			}

			if outFile == "" || outFile == "-" {
				_, err = cmd.OutOrStdout().Write(buf.Bytes())
				return err
			}
			return os.WriteFile(outFile, buf.Bytes(), 0o644)
		},
	}
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "user ids to leave out")
	cmd.Flags().StringVar(&diffFile, "diff", "", "only export users missing from this id,reason CSV")
	cmd.Flags().StringVarP(&outFile, "output", "o", "", "write to this file instead of stdout")
	return cmd
}

func newBanlistArchiveCommand(opts *RootOptions, backend Backend) *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Upload a full CSV snapshot to the configured bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := backend.Services(cmd.Context())
			if err != nil {
				return err
			}
			location, err := svc.Sync.Archive(cmd.Context())
			if err != nil {
				return err
			}
			return newOutput(opts, cmd).emit(map[string]string{"location": location}, func(w io.Writer) {
				fmt.Fprintf(w, "Snapshot stored at %s\n", location)
			})
		},
	}
}

func newGbanCommand(opts *RootOptions, backend Backend) *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "gban <id> [reason...]",
		Short: "Ban a user globally",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			svc, err := backend.Services(cmd.Context())
			if err != nil {
				return err
			}
			reason := strings.Join(args[1:], " ")
			ban, err := svc.Bans.GlobalBan(cmd.Context(), id, reason, message)
			if err != nil {
				return err
			}
			return newOutput(opts, cmd).emit(ban, func(w io.Writer) {
				fmt.Fprintf(w, "Globally banned %d: %s\n", ban.ID, ban.Reason)
			})
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "the offending message, kept as evidence")
	return cmd
}

func newUngbanCommand(opts *RootOptions, backend Backend) *cobra.Command {
	return &cobra.Command{
		Use:   "ungban <id>",
		Short: "Lift a global ban",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			svc, err := backend.Services(cmd.Context())
			if err != nil {
				return err
			}
			removed, err := svc.Bans.GlobalUnban(cmd.Context(), id)
			if err != nil {
				return err
			}
			return newOutput(opts, cmd).emit(map[string]bool{"removed": removed}, func(w io.Writer) {
				if removed {
					fmt.Fprintf(w, "Ungbanned %d\n", id)
				} else {
					fmt.Fprintf(w, "%d was not banned\n", id)
				}
			})
		},
	}
}

func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return f, func() { _ = f.Close() }, nil
}
