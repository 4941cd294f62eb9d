package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/tender-scout/internal/model"
	"github.com/sells-group/tender-scout/internal/store"
)

var tendersCmd = &cobra.Command{
	Use:   "tenders",
	Short: "List scraped tender notices",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		src, _ := cmd.Flags().GetString("source")
		country, _ := cmd.Flags().GetString("country")
		priority, _ := cmd.Flags().GetString("priority")
		minScore, _ := cmd.Flags().GetInt("min-score")
		limit, _ := cmd.Flags().GetInt("limit")

		tenders, err := st.ListTenders(ctx, store.TenderFilter{
			Source:   src,
			Country:  country,
			Priority: model.Priority(priority),
			MinScore: minScore,
			Limit:    limit,
		})
		if err != nil {
			return eris.Wrap(err, "tenders list")
		}

		if len(tenders) == 0 {
			fmt.Fprintln(os.Stderr, "No tenders found.")
			return nil
		}

		formatTendersList(os.Stdout, tenders)
		return nil
	},
}

// formatTendersList writes a tabular list of tenders to out.
func formatTendersList(out io.Writer, tenders []model.TenderRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "REFERENCE\tSOURCE\tCOUNTRY\tSCORE\tPRIORITY\tDEADLINE\tTITLE")
	for _, rec := range tenders {
		deadline := "-"
		if rec.Deadline != nil {
			deadline = rec.Deadline.Format("2006-01-02")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			rec.Reference, rec.Source, rec.Country,
			rec.RelevanceScore, rec.PriorityLevel, deadline, truncate(rec.Title, 60),
		)
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	tendersCmd.Flags().String("source", "", "filter by source")
	tendersCmd.Flags().String("country", "", "filter by country")
	tendersCmd.Flags().String("priority", "", "filter by priority bucket (high, medium, low, very_low)")
	tendersCmd.Flags().Int("min-score", 0, "minimum relevance score")
	tendersCmd.Flags().Int("limit", 50, "max number of tenders to display")
	rootCmd.AddCommand(tendersCmd)
}
