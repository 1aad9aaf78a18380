package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blitz-test/blitz/packages/catalog"
	"github.com/blitz-test/blitz/packages/core/config"
	"github.com/blitz-test/blitz/packages/core/graph"
)

var listCmd = &cobra.Command{
	Use:   "list [manifest]",
	Short: "List discovered tests and their fixture plans",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fileConfig, err := config.LoadConfig(configFlag)
		if err != nil {
			return err
		}
		cfg := fileConfig.Merge(flagOverrides(args))

		mf, err := catalog.LoadFile(cfg.Manifest)
		if err != nil {
			return err
		}

		tests := catalog.FilterName(mf.Tests, nameFlag)
		tests = catalog.FilterMarkers(tests, splitList(markersFlag))

		g, err := graph.Build(tests, mf.Fixtures)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(ExitConfigError)
		}

		for _, t := range tests {
			fmt.Fprintln(cmd.OutOrStdout(), t.ID)
			if verboseFlag {
				for _, name := range g.SetupOrder(t.ID) {
					def := g.Definition(name)
					fmt.Fprintf(cmd.OutOrStdout(), "    %s (%s)\n", name, def.Scope)
				}
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d tests\n", len(tests))
		return nil
	},
}

func init() {
	listCmd.Flags().StringVar(&configFlag, "config", getEnvString("BLITZ_CONFIG", ""), "Path to config file (env: BLITZ_CONFIG)")
	listCmd.Flags().StringVarP(&nameFlag, "name", "n", "", "List only tests matching name pattern")
	listCmd.Flags().StringVarP(&markersFlag, "markers", "m", "", "List only tests with specified markers (comma-separated)")
	listCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "Include each test's fixture setup plan")
}
