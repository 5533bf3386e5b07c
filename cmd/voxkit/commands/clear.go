package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voxkit/voxkit/pkg/convo"
	"github.com/voxkit/voxkit/pkg/kv"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete a room's persisted snapshot",
	RunE:  runClear,
}

func init() {
	clearCmd.Flags().String("room", "", "room name (overrides config)")
	rootCmd.AddCommand(clearCmd)
}

func runClear(cmd *cobra.Command, _ []string) error {
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

	if err := store.Delete(cmd.Context(), convo.HistoryKey(room)); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	fmt.Printf("cleared history for room %q\n", room)
	return nil
}
