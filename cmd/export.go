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

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Export a session's result artifact as JSON",
	Long:  "Writes the result artifact for a session: the summary with country, organization-type, and priority breakdowns, plus the source's current records and the session's errors.",
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
			return eris.Wrap(err, "export")
		}

		records, err := st.ListTenders(ctx, store.TenderFilter{Source: sess.Source, Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "export tenders")
		}

		result := model.BuildResult(*sess, records, time.Now().UTC())

		out := os.Stdout
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return eris.Wrapf(err, "create %s", exportOut)
			}
			defer f.Close() //nolint:errcheck
			out = f
		}

		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return eris.Wrap(err, "encode result")
		}
		if exportOut != "" {
			fmt.Fprintf(os.Stderr, "Wrote %d records to %s\n", len(result.Records), exportOut)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file (default stdout)")
	rootCmd.AddCommand(exportCmd)
}
