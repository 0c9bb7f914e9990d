package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cory-johannsen/encounters/internal/importer"
	"github.com/cory-johannsen/encounters/internal/storage/postgres"
)

func importMonstersCommand(e *env) *cobra.Command {
	var (
		dir   string
		owner string
		dry   bool
	)
	cmd := &cobra.Command{
		Use:   "import-monsters",
		Short: "Load monster YAML files into the catalog",
		Long: `Reads every *.yaml and *.yml file in --dir, each holding a top-level
"monsters" list, and upserts the monsters into the catalog. Monsters without
an id receive one derived from their name, so re-importing updates in place.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start := time.Now()
			ctx, cancel := context.WithTimeout(cmd.Context(), e.timeout)
			defer cancel()

			pool, err := e.connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			ownerID := ""
			if owner != "" {
				acct, err := postgres.NewAccountRepository(pool.DB()).GetByUsername(ctx, owner)
				if err != nil {
					return fmt.Errorf("looking up owner %q: %w", owner, err)
				}
				ownerID = acct.ID
			}

			imp := importer.New(importer.NewYAMLSource(), postgres.NewMonsterRepository(pool.DB()), e.logger)
			res, err := imp.Run(ctx, dir, importer.Options{OwnerID: ownerID, DryRun: dry})
			if err != nil {
				return err
			}
			if dry {
				fmt.Fprintf(cmd.OutOrStdout(), "validated %d monster(s) [%s]\n", res.Loaded, time.Since(start))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d of %d monster(s) [%s]\n", res.Written, res.Loaded, time.Since(start))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "content/monsters", "directory of monster YAML files")
	cmd.Flags().StringVar(&owner, "owner", "", "username that owns user monsters lacking an owner_id")
	cmd.Flags().BoolVar(&dry, "dry-run", false, "validate without writing")
	return cmd
}
