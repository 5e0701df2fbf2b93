package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loomworks/loom/artifact"
	"github.com/loomworks/loom/plugin"
)

func newFindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "find <coordinate> <type> <name>",
		Short: "Select the plugin an artifact would get for a capability",
		Long: `Find resolves the capability (type, name) against everything visible to
the artifact and reports which artifact and class the highest-version
selection picks.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			coordinate, err := artifact.ParseCoordinate(args[0])
			if err != nil {
				return err
			}
			repo, err := newRepository(cmd)
			if err != nil {
				return err
			}
			match, err := repo.FindPlugin(cmd.Context(), coordinate, args[1], args[2], plugin.HighestVersionSelector{})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s:%s -> %s (%s)\n",
				match.Class.Type, match.Class.Name, match.Artifact.Coordinate, match.Class.ClassName)
			return nil
		},
	}
}
