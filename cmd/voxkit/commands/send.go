package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/voxkit/voxkit/pkg/convo"
	"github.com/voxkit/voxkit/pkg/convo/livefeed"
)

var sendCmd = &cobra.Command{
	Use:   "send <text>...",
	Short: "Publish one outbound message to the feed",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSend,
}

func init() {
	sendCmd.Flags().String("feed", "", "websocket feed URL (overrides config)")
	sendCmd.Flags().String("identity", "", "local participant identity (overrides config)")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	feedURL := flagOr(cmd, "feed", cfg.FeedURL)
	identity := flagOr(cmd, "identity", cfg.Identity)
	if feedURL == "" {
		return fmt.Errorf("feed URL is required (flag or config)")
	}

	feed, err := livefeed.Dial(cmd.Context(), feedURL, discardHandler{}, &livefeed.Options{Identity: identity})
	if err != nil {
		return err
	}
	defer feed.Close()

	return feed.SendText(cmd.Context(), strings.Join(args, " "))
}

// discardHandler drops inbound frames; send is outbound-only.
type discardHandler struct{}

func (discardHandler) HandleTranscription(convo.TranscriptionEvent) {}
func (discardHandler) HandleChat(convo.ChatMessage)                 {}
func (discardHandler) HandleData([]byte)                            {}
