// Package cli implements moderationctl, the operator command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	banapp "github.com/autobahn/moderation/internal/banlist_service/app"
	bandomain "github.com/autobahn/moderation/internal/banlist_service/domain"
	dlapp "github.com/autobahn/moderation/internal/denylist_service/app"
	dldomain "github.com/autobahn/moderation/internal/denylist_service/domain"
)

type DenylistManager interface {
	Add(ctx context.Context, category dldomain.Category, tokens []string) (*dlapp.Report, error)
	AddPayload(ctx context.Context, category dldomain.Category, payload []byte) (*dlapp.Report, error)
	Retire(ctx context.Context, category dldomain.Category, tokens []string) (*dlapp.RetireReport, error)
	Query(ctx context.Context, category dldomain.Category, indices []int64) (*dlapp.QueryResult, error)
	Counts(ctx context.Context) ([]dlapp.CategoryCount, error)
}

type BanService interface {
	GlobalBan(ctx context.Context, id int64, reason, message string) (*bandomain.BannedUser, error)
	GlobalUnban(ctx context.Context, id int64) (bool, error)
	Lookup(ctx context.Context, ids []int64) ([]bandomain.BannedUser, error)
	CountReason(ctx context.Context, reason string) (int64, error)
	TotalCount(ctx context.Context) (int64, error)
}

type SyncService interface {
	Import(ctx context.Context, r io.Reader) (*banapp.ImportResult, error)
	Export(ctx context.Context, w io.Writer, diff []int64) error
	ExportDiff(ctx context.Context, w io.Writer, other io.Reader) error
	Archive(ctx context.Context) (string, error)
}

type TagEditor interface {
	TagsFor(ctx context.Context, chatID int64) (map[string]string, error)
	SetTag(ctx context.Context, chatID int64, name, value string) (map[string]string, error)
	RemoveTag(ctx context.Context, chatID int64, name string) (map[string]string, error)
}

// Services are the application services the commands drive.
type Services struct {
	Denylists DenylistManager
	Bans      BanService
	Sync      SyncService
	Tags      TagEditor
}

// Backend opens the services lazily so that commands like `token` work
// without a database.
type Backend interface {
	Services(ctx context.Context) (*Services, error)
	Migrate(ctx context.Context) error
	AdminSecret() string
	Close()
}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string // "json" | "text"
}

var validFormats = []string{"text", "json"}

// NewRootCommand creates the moderationctl root command.
func NewRootCommand(backend Backend) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "moderationctl",
		Short: "Operate the moderation denylists, global bans and chat tags",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newDenylistCommand(opts, backend))
	cmd.AddCommand(newBanlistCommand(opts, backend))
	cmd.AddCommand(newGbanCommand(opts, backend))
	cmd.AddCommand(newUngbanCommand(opts, backend))
	cmd.AddCommand(newChatCommand(opts, backend))
	cmd.AddCommand(newMigrateCommand(backend))
	cmd.AddCommand(newTokenCommand(backend))
	return cmd
}
