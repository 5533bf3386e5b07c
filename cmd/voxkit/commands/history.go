package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/itchyny/gojq"
	"github.com/spf13/cobra"

	"github.com/voxkit/voxkit/pkg/cli"
	"github.com/voxkit/voxkit/pkg/convo"
	"github.com/voxkit/voxkit/pkg/kv"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect a room's persisted conversation snapshot",
	Long: `Read the durable history slot for a room and print the persisted
messages. Use --json for machine-readable output, or --jq to filter the
JSON with a jq expression.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().String("room", "", "room name (overrides config)")
	historyCmd.Flags().Bool("json", false, "print raw JSON")
	historyCmd.Flags().String("jq", "", "jq expression applied to the JSON output")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	room := flagOr(cmd, "room", cfg.Room)
	if room == "" {
		return fmt.Errorf("room is required (flag or config)")
	}

	storeDir, err := cfg.StorePath()
	if err != nil {
		return err
	}
	store, err := kv.NewBadger(kv.BadgerOptions{Dir: storeDir})
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer store.Close()

	data, err := store.Get(cmd.Context(), convo.HistoryKey(room))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			fmt.Printf("no persisted history for room %q\n", room)
			return nil
		}
		return fmt.Errorf("read history: %w", err)
	}
	msgs, err := convo.DecodeSnapshot(data)
	if err != nil {
		return fmt.Errorf("decode history: %w", err)
	}

	if expr, _ := cmd.Flags().GetString("jq"); expr != "" {
		return printFiltered(msgs, expr)
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(msgs)
	}

	styles := cli.NewStyles(cli.DefaultTheme)
	fmt.Println(styles.FormatSequence(msgs))
	return nil
}

// printFiltered runs a jq expression over the JSON form of the messages
// and prints each result on its own line.
func printFiltered(msgs []convo.Message, expr string) error {
	query, err := gojq.Parse(expr)
	if err != nil {
		return fmt.Errorf("parse jq expression: %w", err)
	}

	// Round-trip through JSON so gojq sees plain maps and numbers.
	data, err := json.Marshal(msgs)
	if err != nil {
		return err
	}
	var input any
	if err := json.Unmarshal(data, &input); err != nil {
		return err
	}

	iter := query.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return fmt.Errorf("jq: %w", err)
		}
		out, err := json.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	}
	return nil
}
