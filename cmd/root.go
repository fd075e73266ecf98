package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hscore/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "hscore",
	Short: "Hawker Opportunity Score for Singapore subzones",
	Long:  "Scores every Singapore subzone for hawker-centre opportunity from population demand, existing hawker supply and transit access, stores scored runs as snapshots, and serves them over HTTP with a chat assistant.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
