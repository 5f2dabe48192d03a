package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmeireles/writeback/internal/logging"
	syncpkg "github.com/dmeireles/writeback/internal/sync"
)

// syncCmd runs one drain pass from the command line and exits non-zero when
// records remain queued.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Drain the queue once against the backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadValidConfig()
		if err != nil {
			return err
		}
		logging.Setup("writeback", cfg.Log.Level, true)

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		eng := syncpkg.New(st, buildExecutor(cfg), &syncpkg.Config{
			MaxAttempts: cfg.Sync.MaxAttempts,
		})

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		success := eng.Synchronize(ctx)

		depth, derr := st.Count(ctx)
		if derr != nil {
			return derr
		}

		if outputJSON {
			return printOutput(struct {
				Success   bool `json:"success"`
				Remaining int  `json:"remaining"`
			}{Success: success, Remaining: depth})
		}

		if !success {
			return fmt.Errorf("queue not drained, %d operations remaining", depth)
		}
		fmt.Println("queue drained")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
