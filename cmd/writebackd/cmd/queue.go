package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmeireles/writeback/internal/logging"
	"github.com/dmeireles/writeback/internal/models"
	"github.com/dmeireles/writeback/internal/uuid"
)

// queueCmd represents the queue command group
var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage the local queue",
}

// queueListCmd lists pending operations in replay order.
var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending operations in replay order",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logging.Setup("writeback", cfg.Log.Level, true)

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		ops, err := st.List(context.Background())
		if err != nil {
			return err
		}
		sort.SliceStable(ops, func(i, j int) bool {
			return ops[i].Priority < ops[j].Priority
		})

		if outputJSON {
			return printOutput(ops)
		}

		if len(ops) == 0 {
			fmt.Println("queue is empty")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKIND\tMETHOD\tENDPOINT\tPRIO\tATTEMPTS\tCREATED")
		for _, op := range ops {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
				op.ID, op.Kind, op.Method, op.Endpoint, op.Priority, op.Attempts,
				op.CreatedAtTime().Format(time.RFC3339))
		}
		return w.Flush()
	},
}

// queueStatsCmd summarizes the queue by kind and priority.
var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue counts by kind and priority",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logging.Setup("writeback", cfg.Log.Level, true)

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		ops, err := st.List(context.Background())
		if err != nil {
			return err
		}

		byKind := map[string]int{}
		byPriority := map[int]int{}
		retrying := 0
		for _, op := range ops {
			byKind[string(op.Kind)]++
			byPriority[op.Priority]++
			if op.Attempts > 0 {
				retrying++
			}
		}

		stats := struct {
			Total      int            `json:"total"`
			Retrying   int            `json:"retrying"`
			ByKind     map[string]int `json:"by_kind"`
			ByPriority map[int]int    `json:"by_priority"`
		}{
			Total:      len(ops),
			Retrying:   retrying,
			ByKind:     byKind,
			ByPriority: byPriority,
		}

		if outputJSON {
			return printOutput(stats)
		}

		fmt.Printf("total:    %d\n", stats.Total)
		fmt.Printf("retrying: %d\n", stats.Retrying)
		fmt.Println("by kind:")
		for _, kind := range kindNames() {
			if n := byKind[kind]; n > 0 {
				fmt.Printf("  %-8s %d\n", kind, n)
			}
		}
		fmt.Println("by priority:")
		for _, prio := range sortedKeys(byPriority) {
			fmt.Printf("  %-8d %d\n", prio, byPriority[prio])
		}
		return nil
	},
}

// queueRemoveCmd removes one pending operation.
var queueRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a pending operation from the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := uuid.Validate(args[0]); err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logging.Setup("writeback", cfg.Log.Level, true)

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Remove(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("removed %s\n", args[0])
		return nil
	},
}

func sortedKeys(m map[int]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// kindNames lists the kinds accepted by enqueue, for help output.
func kindNames() []string {
	return []string{
		string(models.KindCreate),
		string(models.KindUpdate),
		string(models.KindDelete),
		string(models.KindCustom),
	}
}

func init() {
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueStatsCmd)
	queueCmd.AddCommand(queueRemoveCmd)
	rootCmd.AddCommand(queueCmd)
}
