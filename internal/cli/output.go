package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/autobahn/moderation/internal/denylist_service/domain"
)

// output writes either indented JSON or the text produced by text.
type output struct {
	format string
	w      io.Writer
}

func newOutput(opts *RootOptions, cmd *cobra.Command) *output {
	return &output{format: opts.Format, w: cmd.OutOrStdout()}
}

func (o *output) emit(v any, text func(w io.Writer)) error {
	if o.format == "json" {
		enc := json.NewEncoder(o.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(o.w)
	return nil
}

func writeEntries(w io.Writer, title string, entries []domain.Entry) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", title)
	for _, e := range entries {
		fmt.Fprintf(w, "  %d: %s\n", e.Index, e.Value)
	}
}

func writeList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", title)
	for _, it := range items {
		fmt.Fprintf(w, "  %s\n", it)
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func parseIDs(args []string) ([]int64, error) {
	var ids []int64
	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			id, err := parseID(part)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}
