package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satindergrewal/clipchain/internal/chain"
	"github.com/satindergrewal/clipchain/internal/clip"
)

func newChainCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "chain [clip-id]",
		Short: "Show the chain through a clip, or every chain head",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withIndex(cmd.Context(), func(_ *clip.Store, index *chain.Index) error {
				out := cmd.OutOrStdout()
				if len(args) == 0 {
					heads, err := index.Heads(cmd.Context())
					if err != nil {
						return err
					}
					if len(heads) == 0 {
						fmt.Fprintln(out, "No chains")
						return nil
					}
					rows := make([][]string, 0, len(heads))
					for _, id := range heads {
						c, err := index.Walk(cmd.Context(), id)
						if err != nil {
							return err
						}
						rows = append(rows, []string{string(id), fmt.Sprint(len(c.Nodes))})
					}
					fmt.Fprint(out, renderTable([]string{"Head", "Clips"}, rows, []columnAlignment{alignLeft, alignRight}))
					return nil
				}

				c, err := index.Walk(cmd.Context(), clip.ID(args[0]))
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(c.Nodes))
				for i, n := range c.Nodes {
					row := []string{fmt.Sprint(i + 1), string(n.ID), "missing", "-"}
					if !n.Missing {
						row[2] = formatSeconds(n.Link.MarkerBeginning)
						row[3] = formatSeconds(n.Link.MarkerEnd)
					}
					rows = append(rows, row)
				}
				fmt.Fprint(out, renderTable([]string{"#", "Clip", "Begin", "End"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignRight}))
				if c.Cyclic {
					fmt.Fprintln(out, "chain loops back on itself")
				}
				return nil
			})
		},
	}
}
