package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/tender-scout/internal/model"
)

var (
	scrapeSources  []string
	scrapeKeywords []string
	scrapeProfile  string
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run scrape sessions against one or more sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		profile, err := loadProfile(scrapeProfile, scrapeKeywords)
		if err != nil {
			return err
		}

		orc := initOrchestrator(st)

		var mu sync.Mutex
		ids := make([]string, 0, len(scrapeSources))

		g, gctx := errgroup.WithContext(ctx)
		for _, src := range scrapeSources {
			g.Go(func() error {
				sess, err := orc.Schedule(gctx, src, profile)
				if err != nil {
					return eris.Wrapf(err, "schedule %s", src)
				}
				mu.Lock()
				ids = append(ids, sess.ID)
				mu.Unlock()
				return nil
			})
		}
		scheduleErr := g.Wait()

		// Ctrl-C cancels every in-flight session; the runners checkpoint
		// and mark themselves cancelled before Wait returns.
		go func() {
			<-ctx.Done()
			zap.L().Info("interrupt received, cancelling sessions")
			orc.Shutdown()
		}()

		orc.Wait()

		finals := make([]*model.ScrapeSession, 0, len(ids))
		failed := false
		for _, id := range ids {
			sess, err := orc.GetStatus(cmd.Context(), id)
			if err != nil {
				return eris.Wrapf(err, "status %s", id)
			}
			if sess.Status == model.SessionFailed {
				failed = true
			}
			finals = append(finals, sess)
		}
		formatSessionsList(os.Stdout, finals)

		if scheduleErr != nil {
			return scheduleErr
		}
		if failed {
			return eris.New("one or more sessions failed")
		}
		return nil
	},
}

// formatSessionsList writes a tabular list of sessions to out.
func formatSessionsList(out io.Writer, sessions []*model.ScrapeSession) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSOURCE\tSTATUS\tPAGES\tFOUND\tPERSISTED\tERRORS\tDURATION")
	for _, s := range sessions {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			s.ID, s.Source, s.Status,
			s.PagesProcessed, s.RecordsFound, s.RecordsPersisted, len(s.Errors),
			fmtDuration(s.StartedAt, s.CompletedAt),
		)
	}
	_ = w.Flush()
}

func init() {
	scrapeCmd.Flags().StringSliceVar(&scrapeSources, "source", []string{"ungm"}, "sources to scrape (repeatable)")
	scrapeCmd.Flags().StringSliceVar(&scrapeKeywords, "keyword", nil, "keywords overriding the profile")
	scrapeCmd.Flags().StringVar(&scrapeProfile, "profile", "", "path to a YAML scrape profile")
	rootCmd.AddCommand(scrapeCmd)
}
