package cmd

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/tablemesh/tablemesh-engine/pkg/services"
)

func newGraphCmd() *cobra.Command {
	var showEdges bool

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Summarize the relationship graph built from the metadata snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, logger, snap, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			graph := services.BuildRelationshipGraph(snap, nil, logger)
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "Tables: %d, relationship edges: %d\n\n", graph.TableCount(), graph.EdgeCount())

			components, islands := graph.Connectivity()
			for i, comp := range components {
				fmt.Fprintf(out, "Component %d (%d tables): %s\n", i+1, comp.Size, strings.Join(comp.Tables, ", "))
			}
			if len(islands) > 0 {
				fmt.Fprintf(out, "Islands (no relationships): %s\n", strings.Join(islands, ", "))
			}

			if showEdges {
				fmt.Fprintln(out)
				alignment := make([]tw.Align, 4)
				for i := range alignment {
					alignment[i] = tw.AlignNone
				}
				table := tablewriter.NewTable(out,
					tablewriter.WithRenderer(renderer.NewMarkdown()),
					tablewriter.WithAlignment(alignment),
					tablewriter.WithHeaderAutoFormat(tw.Off),
				)
				table.Header([]string{"from", "to", "type", "on"})
				for _, name := range snap.TableNames() {
					for _, edge := range graph.EdgesFrom(name) {
						table.Append([]string{edge.FromTable, edge.ToTable, edge.RelationshipType, edge.On})
					}
				}
				table.Render()
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showEdges, "edges", false, "list every relationship edge")
	return cmd
}
