package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tender-scout/internal/model"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "Resume a failed or cancelled session from its last checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		orc := initOrchestrator(st)

		sess, err := orc.Resume(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "resume")
		}
		zap.L().Info("session resumed",
			zap.String("from", args[0]),
			zap.String("session_id", sess.ID),
			zap.String("source", sess.Source),
		)

		go func() {
			<-ctx.Done()
			zap.L().Info("interrupt received, cancelling session")
			orc.Shutdown()
		}()

		orc.Wait()

		final, err := orc.GetStatus(cmd.Context(), sess.ID)
		if err != nil {
			return eris.Wrap(err, "resume status")
		}
		formatSessionsList(os.Stdout, []*model.ScrapeSession{final})

		if final.Status == model.SessionFailed {
			return eris.New("resumed session failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}
