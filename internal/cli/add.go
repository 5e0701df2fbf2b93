package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loomworks/loom/artifact"
)

func newAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <coordinate> <bundle>",
		Short: "Add a bundle to the store under a coordinate",
		Long: `Add inspects the bundle at the given path and stores its bytes and the
discovered plugin metadata under the coordinate (namespace/name:version).
Parent ranges declare which artifacts this one extends; at least one
declared range must match a stored artifact.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			coordinate, err := artifact.ParseCoordinate(args[0])
			if err != nil {
				return err
			}

			rawParents, err := cmd.Flags().GetStringArray("parent")
			if err != nil {
				return err
			}
			parents := make([]artifact.Range, 0, len(rawParents))
			for _, raw := range rawParents {
				parentRange, err := artifact.ParseRange(raw)
				if err != nil {
					return err
				}
				parents = append(parents, parentRange)
			}

			repo, err := newRepository(cmd)
			if err != nil {
				return err
			}
			if err := repo.AddArtifact(cmd.Context(), coordinate, args[1], parents); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", coordinate)
			return nil
		},
	}
	cmd.Flags().StringArray("parent", nil,
		`parent range this artifact extends, e.g. "default/etl-app[1.0.0,2.0.0)" (repeatable)`)
	return cmd
}
