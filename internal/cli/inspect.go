package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/SimonXuku/tsunami/internal/store"
)

var (
	inspectDB    string
	inspectLimit int
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print recent recommendations from the local database",
	RunE:  runInspectCmd,
}

func init() {
	inspectCmd.Flags().StringVar(&inspectDB, "db", "loop.db", "path to the loop database")
	inspectCmd.Flags().IntVar(&inspectLimit, "limit", 20, "number of recommendations to print")
}

func runInspectCmd(cmd *cobra.Command, args []string) error {
	db, err := store.New(inspectDB)
	if err != nil {
		return err
	}
	defer db.Close()

	recs, err := db.RecentRecommendations(inspectLimit)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, rec := range recs {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}
