package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/autobahn/moderation/internal/denylist_service/app"
	"github.com/autobahn/moderation/internal/denylist_service/domain"
)

func newDenylistCommand(opts *RootOptions, backend Backend) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "denylist",
		Aliases: []string{"bl"},
		Short:   "Manage the typed denylists (bio, string, channel, domain, file, mhash, tld)",
	}
	cmd.AddCommand(newDenylistAddCommand(opts, backend))
	cmd.AddCommand(newDenylistDelCommand(opts, backend))
	cmd.AddCommand(newDenylistQueryCommand(opts, backend))
	cmd.AddCommand(newDenylistCountCommand(opts, backend))
	return cmd
}

func newDenylistAddCommand(opts *RootOptions, backend Backend) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "add <category> [token...]",
		Short: "Add tokens, or a file/photo with --file, to a denylist",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, err := domain.ParseCategory(args[0])
			if err != nil {
				return err
			}
			svc, err := backend.Services(cmd.Context())
			if err != nil {
				return err
			}

			var report *app.Report
			if category.Binary() {
				if file == "" {
					return fmt.Errorf("%s needs --file", category)
				}
				payload, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("reading %s: %w", file, err)
				}
				report, err = svc.Denylists.AddPayload(cmd.Context(), category, payload)
				if err != nil {
					return err
				}
			} else {
				if len(args) < 2 {
					return fmt.Errorf("%s needs at least one token", category)
				}
				report, err = svc.Denylists.Add(cmd.Context(), category, args[1:])
				if err != nil {
					return err
				}
			}

			return newOutput(opts, cmd).emit(report, func(w io.Writer) {
				writeEntries(w, "Added", report.Added)
				writeEntries(w, "Existing", report.Existing)
				writeList(w, "Skipped", report.Skipped)
				if report.Warning != "" {
					fmt.Fprintf(w, "Warning: %s\n", report.Warning)
				}
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "file or photo to hash for the file and mhash lists")
	return cmd
}

func newDenylistDelCommand(opts *RootOptions, backend Backend) *cobra.Command {
	return &cobra.Command{
		Use:     "del <category> <token...>",
		Aliases: []string{"rm"},
		Short:   "Retire denylist entries",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, err := domain.ParseCategory(args[0])
			if err != nil {
				return err
			}
			svc, err := backend.Services(cmd.Context())
			if err != nil {
				return err
			}
			report, err := svc.Denylists.Retire(cmd.Context(), category, args[1:])
			if err != nil {
				return err
			}
			return newOutput(opts, cmd).emit(report, func(w io.Writer) {
				writeList(w, "Removed", report.Removed)
				writeList(w, "Skipped", report.Skipped)
			})
		},
	}
}

func newDenylistQueryCommand(opts *RootOptions, backend Backend) *cobra.Command {
	return &cobra.Command{
		Use:   "query <category> [indices...]",
		Short: "Show entries by index (e.g. 3, 4..20, 1,5,9) or all active entries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, err := domain.ParseCategory(args[0])
			if err != nil {
				return err
			}
			indices, err := app.ParseIndices(args[1:])
			if err != nil {
				return err
			}
			svc, err := backend.Services(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.Denylists.Query(cmd.Context(), category, indices)
			if err != nil {
				return err
			}
			return newOutput(opts, cmd).emit(res, func(w io.Writer) {
				fmt.Fprintf(w, "%s (%s): %d active\n", category, category.Code(), res.Total)
				for _, e := range res.Items {
					if e.Retired {
						fmt.Fprintf(w, "  %d: %s (retired)\n", e.Index, e.Value)
						continue
					}
					fmt.Fprintf(w, "  %d: %s\n", e.Index, e.Value)
				}
			})
		},
	}
}

func newDenylistCountCommand(opts *RootOptions, backend Backend) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Count the active entries of every denylist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := backend.Services(cmd.Context())
			if err != nil {
				return err
			}
			counts, err := svc.Denylists.Counts(cmd.Context())
			if err != nil {
				return err
			}
			return newOutput(opts, cmd).emit(counts, func(w io.Writer) {
				for _, c := range counts {
					fmt.Fprintf(w, "%-8s %s  %d\n", c.Name, c.Code, c.Count)
				}
			})
		},
	}
}
