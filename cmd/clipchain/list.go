package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/satindergrewal/clipchain/internal/clip"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List catalog clips with their markers and links",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			catalog, err := store.Catalog()
			if err != nil {
				return err
			}
			if len(catalog) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No clips")
				return nil
			}

			rows := make([][]string, 0, len(catalog))
			for _, id := range catalog.IDs() {
				rows = append(rows, clipRow(store, id, catalog[id]))
			}
			table := renderTable(
				[]string{"ID", "File", "Size", "Modified", "Begin", "End", "Before", "After"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
			)
			fmt.Fprint(cmd.OutOrStdout(), table)
			return nil
		},
	}
}

func clipRow(store *clip.Store, id clip.ID, location string) []string {
	row := []string{string(id), filepath.Base(location), "-", "-", "-", "-", "-", "-"}
	if info, err := os.Stat(location); err == nil {
		row[2] = humanize.Bytes(uint64(info.Size()))
		row[3] = humanize.Time(info.ModTime())
	}
	m, err := store.Metadata(id)
	if err != nil {
		return row
	}
	row[4] = formatSeconds(m.MarkerBeginning)
	row[5] = formatSeconds(m.MarkerEnd)
	if m.Inverted() {
		row[5] += " (inverted)"
	}
	row[6] = clip.LinkString(m.AudioClipBefore)
	row[7] = clip.LinkString(m.AudioClipAfter)
	return row
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "s"
}
