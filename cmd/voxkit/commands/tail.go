package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/voxkit/voxkit/pkg/cli"
	"github.com/voxkit/voxkit/pkg/convo"
	"github.com/voxkit/voxkit/pkg/convo/livefeed"
	"github.com/voxkit/voxkit/pkg/kv"
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow a session feed and render the reconciled conversation",
	Long: `Connect to the session feed, reconcile all channels into one ordered
view, and re-render it as events arrive.

Typed lines are sent as outbound messages. When the latest remote message
carries options, typing its number sends that option's value instead.`,
	RunE: runTail,
}

func init() {
	tailCmd.Flags().String("feed", "", "websocket feed URL (overrides config)")
	tailCmd.Flags().String("room", "", "room name (overrides config)")
	tailCmd.Flags().String("identity", "", "local participant identity (overrides config)")
	rootCmd.AddCommand(tailCmd)
}

func runTail(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	feedURL := flagOr(cmd, "feed", cfg.FeedURL)
	room := flagOr(cmd, "room", cfg.Room)
	identity := flagOr(cmd, "identity", cfg.Identity)
	if feedURL == "" || room == "" {
		return fmt.Errorf("feed URL and room are required (flags or config)")
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

	styles := cli.NewStyles(cli.DefaultTheme)
	var renderMu sync.Mutex
	var latestOptions []convo.Option

	engineCfg := convo.Config{
		Store:         store,
		Room:          room,
		LocalIdentity: identity,
		Logger:        convo.DefaultLogger(),
		OnUpdate: func(msgs []convo.Message) {
			renderMu.Lock()
			defer renderMu.Unlock()
			latestOptions = nil
			for i := len(msgs) - 1; i >= 0; i-- {
				if len(msgs[i].Options) > 0 {
					latestOptions = msgs[i].Options
					break
				}
			}
			fmt.Print("\033[2J\033[H")
			fmt.Println(styles.FormatSequence(msgs))
		},
	}
	if w := cfg.Windows; w != nil {
		engineCfg.MatchWindow = w.Match.Duration()
		engineCfg.OfferExpiry = w.OfferExpiry.Duration()
		engineCfg.SettleWindow = w.Settle.Duration()
	}

	// The feed client is both the engine's outbound sender and its inbound
	// source, so wire it up in two steps.
	var feed *livefeed.Client
	engineCfg.Sender = convo.SenderFunc(func(ctx context.Context, text string) error {
		return feed.SendText(ctx, text)
	})

	engine, err := convo.NewEngine(engineCfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	feed, err = livefeed.Dial(ctx, feedURL, livefeed.EngineHandler(engine, engineCfg.Logger), &livefeed.Options{
		Identity: identity,
		Logger:   engineCfg.Logger,
	})
	if err != nil {
		return err
	}
	defer feed.Close()

	go readInput(ctx, engine, &renderMu, &latestOptions)

	select {
	case <-ctx.Done():
		return nil
	case <-feed.Done():
		if err := feed.Err(); err != nil {
			return fmt.Errorf("feed closed: %w", err)
		}
		return nil
	}
}

// readInput forwards stdin lines as outbound messages; a bare number picks
// the corresponding option of the latest offered set.
func readInput(ctx context.Context, engine *convo.Engine, mu *sync.Mutex, latest *[]convo.Option) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if n, err := strconv.Atoi(line); err == nil {
			mu.Lock()
			opts := *latest
			mu.Unlock()
			if n >= 1 && n <= len(opts) {
				if err := engine.SelectOption(opts[n-1]); err != nil {
					fmt.Fprintf(os.Stderr, "send: %v\n", err)
				}
				continue
			}
		}

		if err := engine.Send(line); err != nil {
			fmt.Fprintf(os.Stderr, "send: %v\n", err)
		}
	}
}

// flagOr returns the flag value when set, else the fallback.
func flagOr(cmd *cobra.Command, name, fallback string) string {
	if v, _ := cmd.Flags().GetString(name); v != "" {
		return v
	}
	return fallback
}
