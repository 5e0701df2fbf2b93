package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loomworks/loom/artifact"
)

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <coordinate>",
		Short: "Delete a stored artifact",
		Long: `Delete removes the artifact from the store. Deletion is refused while
other stored artifacts still declare a parent range matching it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			coordinate, err := artifact.ParseCoordinate(args[0])
			if err != nil {
				return err
			}
			repo, err := newRepository(cmd)
			if err != nil {
				return err
			}
			if err := repo.DeleteArtifact(cmd.Context(), coordinate); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", coordinate)
			return nil
		},
	}
}
