package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/loomworks/loom/artifact"
)

func newPluginsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plugins <coordinate>",
		Short: "List the plugins visible to an artifact",
		Long: `Plugins lists every plugin the artifact can use: its own plus those of
every artifact it transitively extends. The result is printed as YAML,
ordered by artifact.`,
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
			entries, err := repo.GetPlugins(cmd.Context(), coordinate)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(entries)
			if err != nil {
				return fmt.Errorf("failed to encode plugin entries: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
