package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/satindergrewal/clipchain/internal/chain"
	"github.com/satindergrewal/clipchain/internal/clip"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report orphaned audio, unreadable metadata and dangling links",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withIndex(cmd.Context(), func(store *clip.Store, index *chain.Index) error {
				var rows [][]string
				problems := 0

				orphans, err := store.FindOrphans()
				if err != nil {
					return err
				}
				for _, id := range orphans.Audio {
					rows = append(rows, []string{"orphaned audio", string(id), "no metadata record"})
				}
				for _, id := range orphans.Metadata {
					rows = append(rows, []string{"orphaned metadata", string(id), "no audio file"})
				}
				problems += len(orphans.Audio) + len(orphans.Metadata)

				records, bad, err := store.Records()
				if err != nil {
					return err
				}
				badIDs := make([]clip.ID, 0, len(bad))
				for id := range bad {
					badIDs = append(badIDs, id)
				}
				sort.Slice(badIDs, func(i, j int) bool { return badIDs[i] < badIDs[j] })
				for _, id := range badIDs {
					rows = append(rows, []string{"bad metadata", string(id), bad[id].Error()})
				}
				problems += len(bad)

				dangling, err := index.Dangling(cmd.Context())
				if err != nil {
					return err
				}
				for _, id := range dangling {
					rows = append(rows, []string{"dangling link", string(id), "links to a clip that is gone"})
				}
				problems += len(dangling)

				// inverted markers are accepted, so they are reported but not counted
				ids := make([]clip.ID, 0, len(records))
				for id := range records {
					ids = append(ids, id)
				}
				sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
				for _, id := range ids {
					if m := records[id]; m.Inverted() {
						rows = append(rows, []string{"inverted markers", string(id),
							fmt.Sprintf("end %s before beginning %s", formatSeconds(m.MarkerEnd), formatSeconds(m.MarkerBeginning))})
					}
				}

				out := cmd.OutOrStdout()
				if len(rows) == 0 {
					fmt.Fprintln(out, "All clips consistent")
					return nil
				}
				fmt.Fprint(out, renderTable([]string{"Kind", "Clip", "Detail"}, rows, nil))
				if problems > 0 {
					return fmt.Errorf("%d problem(s) found", problems)
				}
				return nil
			})
		},
	}
}
