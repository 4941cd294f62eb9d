package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/tender-scout/internal/model"
	"github.com/sells-group/tender-scout/internal/store"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect scrape session history",
	Long:  "Commands for listing, viewing, and summarizing scrape sessions.",
}

// -- sessions list --

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scrape sessions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		src, _ := cmd.Flags().GetString("source")
		limit, _ := cmd.Flags().GetInt("limit")

		sessions, err := st.ListSessions(ctx, store.SessionFilter{
			Source: src,
			Status: model.SessionStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "sessions list")
		}

		if len(sessions) == 0 {
			fmt.Fprintln(os.Stderr, "No sessions found.")
			return nil
		}

		ptrs := make([]*model.ScrapeSession, len(sessions))
		for i := range sessions {
			ptrs[i] = &sessions[i]
		}
		formatSessionsList(os.Stdout, ptrs)
		return nil
	},
}

// -- sessions show --

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show full details of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sess, err := st.GetSession(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "sessions show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sess)
	},
}

// -- sessions stats --

var sessionsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate session statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		sessions, err := st.ListSessions(ctx, store.SessionFilter{Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "sessions stats")
		}

		stats := computeSessionStats(sessions, time.Now().Add(-since))
		fmt.Printf("Total:      %d\n", stats.Total)
		fmt.Printf("Completed:  %d\n", stats.Completed)
		fmt.Printf("Failed:     %d\n", stats.Failed)
		fmt.Printf("Cancelled:  %d\n", stats.Cancelled)
		fmt.Printf("Active:     %d\n", stats.Active)
		fmt.Printf("Persisted:  %d records\n", stats.Persisted)
		if stats.AvgDurSecs > 0 {
			fmt.Printf("Avg dur:    %.1fs\n", stats.AvgDurSecs)
		}
		return nil
	},
}

// sessionStats holds aggregate statistics computed from a set of sessions.
type sessionStats struct {
	Total      int
	Completed  int
	Failed     int
	Cancelled  int
	Active     int
	Persisted  int
	AvgDurSecs float64
}

// computeSessionStats aggregates sessions started at or after cutoff.
func computeSessionStats(sessions []model.ScrapeSession, cutoff time.Time) sessionStats {
	var s sessionStats

	var totalDur time.Duration
	var durCount int

	for _, sess := range sessions {
		if sess.StartedAt.Before(cutoff) {
			continue
		}
		s.Total++
		s.Persisted += sess.RecordsPersisted

		switch sess.Status {
		case model.SessionCompleted:
			s.Completed++
		case model.SessionFailed:
			s.Failed++
		case model.SessionCancelled:
			s.Cancelled++
		default:
			s.Active++
		}

		if sess.CompletedAt != nil {
			totalDur += sess.CompletedAt.Sub(sess.StartedAt)
			durCount++
		}
	}

	if durCount > 0 {
		s.AvgDurSecs = totalDur.Seconds() / float64(durCount)
	}
	return s
}

func init() {
	sessionsListCmd.Flags().String("status", "", "filter by status (pending, running, completed, failed, cancelled)")
	sessionsListCmd.Flags().String("source", "", "filter by source")
	sessionsListCmd.Flags().Int("limit", 50, "max number of sessions to display")

	sessionsStatsCmd.Flags().Duration("since", 168*time.Hour, "time window for stats (e.g. 24h, 72h, 168h)")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsStatsCmd)
	rootCmd.AddCommand(sessionsCmd)
}
