package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/tender-scout/internal/model"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <session-id>",
	Short: "Cancel a pending or orphaned session",
	Long:  "Marks a non-terminal session cancelled in the store, freeing its source for a new run. Sessions live inside a serve process are cancelled through the HTTP API instead.",
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
			return eris.Wrap(err, "cancel")
		}
		if sess.Status.Terminal() {
			return eris.Errorf("session %s already %s", sess.ID, sess.Status)
		}

		sess.Status = model.SessionCancelled
		now := time.Now().UTC()
		sess.CompletedAt = &now
		if err := st.SaveSession(ctx, sess); err != nil {
			return eris.Wrap(err, "cancel")
		}

		fmt.Printf("Session %s cancelled.\n", sess.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}
