package main

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hscore/internal/chat"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the assistant about the current snapshot",
	Long: `Ask a question in plain English. Questions about ranks ("rank 5", "#3"),
top lists ("top 10 subzones") or extremes ("most elderly residents") are
answered from the current snapshot.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// The assistant still answers general questions without a store.
		var src chat.Source
		if st, err := initStore(ctx); err != nil {
			zap.L().Warn("ask: store unavailable, answering without data", zap.Error(err))
		} else {
			defer st.Close() //nolint:errcheck
			src = st
		}

		a, err := initAssistant(src)
		if err != nil {
			return err
		}
		reply, err := a.Ask(ctx, strings.Join(args, " "))
		if err != nil {
			return eris.Wrap(err, "ask")
		}
		fmt.Println(reply.Content)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}
