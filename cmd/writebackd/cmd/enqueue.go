package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	apperrors "github.com/dmeireles/writeback/internal/errors"
	"github.com/dmeireles/writeback/internal/logging"
	"github.com/dmeireles/writeback/internal/models"
)

var (
	enqueueKind       string
	enqueueMethod     string
	enqueueEndpoint   string
	enqueuePayload    string
	enqueuePriority   int
	enqueueEntityID   string
	enqueueEntityType string
)

// enqueueCmd stages one operation directly into the local queue. A running
// daemon picks it up on its next pass.
var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Stage an operation for replay",
	Long: `Stage an operation in the local queue. The record is replayed against
the backend on the next sync pass, in priority order (lower replays first).`,
	Example: `  writebackd enqueue --method POST --endpoint /api/presences --payload '{"student_id":7}'
  writebackd enqueue --kind update --method PUT --endpoint /api/absences/42 \
      --payload '{"is_justified":true}' --priority 2 --entity-id 42 --entity-type absence`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logging.Setup("writeback", cfg.Log.Level, true)

		if enqueuePayload != "" && !json.Valid([]byte(enqueuePayload)) {
			return apperrors.New(apperrors.ErrInvalidOperation, "payload must be valid JSON")
		}

		op, err := models.New(models.ParseKind(enqueueKind), enqueueMethod, enqueueEndpoint, json.RawMessage(enqueuePayload))
		if err != nil {
			return err
		}
		if enqueuePriority != 0 {
			op.Priority = enqueuePriority
		}
		op.EntityID = enqueueEntityID
		op.EntityType = enqueueEntityType

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Append(context.Background(), op); err != nil {
			return err
		}

		if outputJSON {
			return printOutput(op)
		}
		fmt.Printf("enqueued %s (%s %s, priority %d)\n", op.ID, op.Method, op.Endpoint, op.Priority)
		return nil
	},
}

func init() {
	enqueueCmd.Flags().StringVar(&enqueueKind, "kind", "create", "operation kind: "+strings.Join(kindNames(), ", "))
	enqueueCmd.Flags().StringVar(&enqueueMethod, "method", "", "HTTP method to replay with (required)")
	enqueueCmd.Flags().StringVar(&enqueueEndpoint, "endpoint", "", "backend endpoint path (required)")
	enqueueCmd.Flags().StringVar(&enqueuePayload, "payload", "", "JSON request body")
	enqueueCmd.Flags().IntVar(&enqueuePriority, "priority", 0, "replay priority, lower first (default 5)")
	enqueueCmd.Flags().StringVar(&enqueueEntityID, "entity-id", "", "optional correlated entity id")
	enqueueCmd.Flags().StringVar(&enqueueEntityType, "entity-type", "", "optional correlated entity type")
	enqueueCmd.MarkFlagRequired("method")
	enqueueCmd.MarkFlagRequired("endpoint")
	rootCmd.AddCommand(enqueueCmd)
}
