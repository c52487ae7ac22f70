package cli

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"
)

func newChatCommand(opts *RootOptions, backend Backend) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Inspect and edit per-chat settings",
	}
	tags := &cobra.Command{
		Use:   "tags",
		Short: "Chat tags such as grenzschutz=silent or polizei=exclude",
	}
	tags.AddCommand(
		newChatTagsGetCommand(opts, backend),
		newChatTagsSetCommand(opts, backend),
		newChatTagsRemoveCommand(opts, backend),
	)
	cmd.AddCommand(tags)
	return cmd
}

func printTags(opts *RootOptions, cmd *cobra.Command, chatID int64, tags map[string]string) error {
	return newOutput(opts, cmd).emit(tags, func(w io.Writer) {
		if len(tags) == 0 {
			fmt.Fprintf(w, "Chat %d has no tags.\n", chatID)
			return
		}
		names := make([]string, 0, len(tags))
		for name := range tags {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			fmt.Fprintf(w, "%s=%s\n", name, tags[name])
		}
	})
}

func newChatTagsGetCommand(opts *RootOptions, backend Backend) *cobra.Command {
	return &cobra.Command{
		Use:   "get [--] <chat-id>",
		Short: "Show the tags of a chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := parseID(args[0])
			if err != nil {
				return err
			}
			svc, err := backend.Services(cmd.Context())
			if err != nil {
				return err
			}
			tags, err := svc.Tags.TagsFor(cmd.Context(), chatID)
			if err != nil {
				return err
			}
			return printTags(opts, cmd, chatID, tags)
		},
	}
}

func newChatTagsSetCommand(opts *RootOptions, backend Backend) *cobra.Command {
	return &cobra.Command{
		Use:   "set [--] <chat-id> <name> <value>",
		Short: "Set a chat tag",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := parseID(args[0])
			if err != nil {
				return err
			}
			svc, err := backend.Services(cmd.Context())
			if err != nil {
				return err
			}
			tags, err := svc.Tags.SetTag(cmd.Context(), chatID, args[1], args[2])
			if err != nil {
				return err
			}
			return printTags(opts, cmd, chatID, tags)
		},
	}
}

func newChatTagsRemoveCommand(opts *RootOptions, backend Backend) *cobra.Command {
	return &cobra.Command{
		Use:     "rm [--] <chat-id> <name>",
		Aliases: []string{"del"},
		Short:   "Remove a chat tag",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := parseID(args[0])
			if err != nil {
				return err
			}
			svc, err := backend.Services(cmd.Context())
			if err != nil {
				return err
			}
			tags, err := svc.Tags.RemoveTag(cmd.Context(), chatID, args[1])
			if err != nil {
				return err
			}
			return printTags(opts, cmd, chatID, tags)
		},
	}
}
