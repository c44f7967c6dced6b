package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SimonXuku/tsunami/internal/replay"
)

var replayFixture string

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded fixture and verify its outcomes",
	RunE:  runReplayCmd,
}

func init() {
	replayCmd.Flags().StringVar(&replayFixture, "fixture", "", "path to fixture JSON")
	replayCmd.MarkFlagRequired("fixture")
}

func runReplayCmd(cmd *cobra.Command, args []string) error {
	f, err := replay.LoadFixture(replayFixture)
	if err != nil {
		return err
	}

	results, err := replay.Replay(f)
	if err != nil {
		return err
	}

	s := replay.Summarize(results)
	fmt.Fprintf(cmd.OutOrStdout(), "cycles: %d  recommendations: %d  aborted: %d\n",
		s.TotalCycles, s.Recommendations, s.Aborted)

	mismatches := replay.Compare(results, f.Expected)
	for _, m := range mismatches {
		fmt.Fprintln(cmd.OutOrStdout(), "mismatch:", m)
	}
	if len(mismatches) > 0 {
		return fmt.Errorf("%d expectation(s) failed", len(mismatches))
	}
	return nil
}
