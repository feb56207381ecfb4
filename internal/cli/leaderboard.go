package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/config"
	"classroom-quiz-service/internal/domain"
	"github.com/spf13/cobra"
)

// NewLeaderboardCmd prints the current ranking from the configured storage.
func NewLeaderboardCmd(configPath *string) *cobra.Command {
	var student string
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Print the current leaderboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(*configPath)
			if err != nil {
				return err
			}
			setupLogger(cfg.LogLevel())

			repo, closeRepo, err := openRepository(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeRepo()

			store := app.NewStore(repo, cfg.Storage.Key)
			if err := store.Load(cmd.Context()); err != nil {
				return err
			}
			lb := app.BuildLeaderboard(store.Snapshot(), student, time.Now())
			return writeLeaderboard(cmd.OutOrStdout(), lb)
		},
	}
	cmd.Flags().StringVar(&student, "student", "", "student name to highlight")
	return cmd
}

func writeLeaderboard(out io.Writer, lb domain.Leaderboard) error {
	if len(lb.Entries) == 0 {
		_, err := fmt.Fprintln(out, "no student has answered yet")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tNAME\tSCHOOL\tAGE\tCORRECT\tANSWERED\tACCURACY")
	for _, e := range lb.Entries {
		marker := ""
		if e.Highlight {
			marker = " *"
		}
		fmt.Fprintf(tw, "%d\t%s%s\t%s\t%s\t%d\t%d\t%d%%\n",
			e.Rank, e.Name, marker, e.School, e.Age, e.CorrectAnswers, e.TotalAnswers, e.Accuracy)
	}
	return tw.Flush()
}
