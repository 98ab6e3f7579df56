package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/heihuo000/message-board-system/client"
	"github.com/heihuo000/message-board-system/internal/dialogue"
	"github.com/heihuo000/message-board-system/internal/store"
)

var (
	serverFlag string
	clientFlag string
)

var rootCmd = &cobra.Command{
	Use:   "boardctl",
	Short: "boardctl - agent message board CLI",
}

var (
	priorityFlag string
	replyToFlag  string
)

var sendCmd = &cobra.Command{
	Use:   "send <content>",
	Short: "Post a message to the board",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverFlag)
		resp, err := c.Send(cmd.Context(), clientFlag, args[0], priorityFlag, replyToFlag)
		if err != nil {
			return err
		}
		fmt.Printf("sent %s at %d\n", resp.ID, resp.CreatedAt)
		return nil
	},
}

var (
	unreadFlag bool
	limitFlag  int
	afterFlag  int64
)

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "List board messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverFlag)
		resp, err := c.Messages(cmd.Context(), client.MessagesOptions{
			UnreadOnly: unreadFlag,
			After:      afterFlag,
			Limit:      limitFlag,
		})
		if err != nil {
			return err
		}
		for _, m := range resp.Messages {
			marker := " "
			if !m.Read {
				marker = "*"
			}
			fmt.Printf("%s [%d] %-12s %-6s %s\n", marker, m.CreatedAt, m.Sender, m.Priority, m.Content)
		}
		fmt.Printf("%d messages\n", resp.Count)
		return nil
	},
}

var markReadCmd = &cobra.Command{
	Use:   "mark-read [id...]",
	Short: "Flag messages as read (no ids marks everything unread from others)",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverFlag)

		var (
			count int64
			err   error
		)
		if len(args) == 0 {
			count, err = c.MarkAllRead(cmd.Context(), clientFlag)
		} else {
			count, err = c.MarkRead(cmd.Context(), args)
		}
		if err != nil {
			return err
		}
		fmt.Printf("marked %d read\n", count)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show board counters and who is online",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverFlag)
		resp, err := c.Status(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("messages: %d total, %d unread\n", resp.Stats.TotalMessages, resp.Stats.UnreadMessages)
		for _, rec := range resp.Clients {
			fmt.Printf("  %-12s %-10s last seen %d, %d sent\n", rec.ClientID, rec.Status, rec.LastSeen, rec.MessageCount)
		}
		return nil
	},
}

var (
	timeoutFlag   time.Duration
	watermarkFlag int64
)

var waitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Block until the next message from another sender arrives",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverFlag)
		resp, err := c.Wait(cmd.Context(), clientFlag, watermarkFlag, timeoutFlag)
		if err != nil {
			return err
		}
		if !resp.Found {
			fmt.Printf("no message after %.1fs\n", resp.WaitSeconds)
			return nil
		}
		out, _ := json.MarshalIndent(resp.Message, "", "  ")
		fmt.Println(string(out))
		return nil
	},
}

var presenceCmd = &cobra.Command{
	Use:   "presence",
	Short: "List known clients with effective status",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverFlag)
		resp, err := c.Presence(cmd.Context())
		if err != nil {
			return err
		}
		for _, rec := range resp.Clients {
			fmt.Printf("%-12s %-10s last seen %d\n", rec.ClientID, rec.Status, rec.LastSeen)
		}
		return nil
	},
}

var findCmd = &cobra.Command{
	Use:   "find <keyword>",
	Short: "Search message content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverFlag)
		resp, err := c.Search(cmd.Context(), args[0], limitFlag)
		if err != nil {
			return err
		}
		for _, m := range resp.Messages {
			fmt.Printf("[%d] %-12s %s\n", m.CreatedAt, m.Sender, m.Content)
		}
		return nil
	},
}

var (
	minLengthFlag int
	maxAgeFlag    time.Duration
)

// cleanCmd runs one cleanup pass against the database directly.
var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Run one cleanup pass over the board",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.NewSQLiteStore(cmd.Context(), dbFlag, store.CleanupPolicy{
			MinContentLength: minLengthFlag,
			MaxAge:           maxAgeFlag,
		})
		if err != nil {
			return err
		}
		defer st.Close()

		res, err := st.Cleanup(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("removed %d messages (%d short, %d duplicates, %d expired)\n",
			res.Total(), res.Short, res.Duplicates, res.Expired)
		return nil
	},
}

var (
	dbFlag       string
	stateDirFlag string
	partnerFlag  string
	modeFlag     string
	firstFlag    bool
	turnsFlag    int
	retriesFlag  int
)

// dialogueCmd drives a turn-taking session against the SQLite database
// directly, the same way a co-located agent process would.
var dialogueCmd = &cobra.Command{
	Use:   "dialogue",
	Short: "Run a two-party turn-taking session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := store.NewSQLiteStore(ctx, dbFlag, store.DefaultCleanupPolicy())
		if err != nil {
			return err
		}
		defer st.Close()

		coord, err := dialogue.New(st, dialogue.Config{
			ClientID:    clientFlag,
			PartnerID:   partnerFlag,
			StateDir:    stateDirFlag,
			Mode:        dialogue.Mode(modeFlag),
			WaitTimeout: timeoutFlag,
			MaxRetries:  retriesFlag,
		})
		if err != nil {
			return err
		}
		defer coord.End()

		if firstFlag {
			if _, err := coord.Send(ctx, fmt.Sprintf("hello from %s", clientFlag), "", ""); err != nil {
				return err
			}
			fmt.Println("opened dialogue, waiting for partner")
		}

		for turn := 0; turn < turnsFlag; turn++ {
			msg, found, err := coord.AwaitPartner(ctx, timeoutFlag)
			if err != nil {
				return err
			}
			if !found {
				fmt.Println("partner silent, ending dialogue")
				return nil
			}
			fmt.Printf("<- %s: %s\n", msg.Sender, msg.Content)

			reply := fmt.Sprintf("ack %q (turn %d)", msg.Content, coord.State().TurnCounter+1)
			if _, err := coord.Send(ctx, reply, "", msg.ID); err != nil {
				return err
			}
			fmt.Printf("-> %s\n", reply)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "http://localhost:8080", "Board server URL")
	rootCmd.PersistentFlags().StringVar(&clientFlag, "client", "boardctl", "Client id to act as")

	sendCmd.Flags().StringVar(&priorityFlag, "priority", "normal", "Message priority (low, normal, high, urgent)")
	sendCmd.Flags().StringVar(&replyToFlag, "reply-to", "", "Id of the message being answered")

	readCmd.Flags().BoolVar(&unreadFlag, "unread", false, "Only unread messages")
	readCmd.Flags().IntVar(&limitFlag, "limit", 0, "Max messages to list")
	readCmd.Flags().Int64Var(&afterFlag, "after", 0, "Only messages with created_at strictly after this")

	waitCmd.Flags().DurationVar(&timeoutFlag, "timeout", 60*time.Second, "How long to block")
	waitCmd.Flags().Int64Var(&watermarkFlag, "watermark", 0, "created_at of the last consumed message")

	findCmd.Flags().IntVar(&limitFlag, "limit", 0, "Max results")

	cleanCmd.Flags().StringVar(&dbFlag, "db", "./data/messages.db", "SQLite database path")
	cleanCmd.Flags().IntVar(&minLengthFlag, "min-length", 20, "Minimum content length to keep")
	cleanCmd.Flags().DurationVar(&maxAgeFlag, "max-age", time.Hour, "Message time to live")

	dialogueCmd.Flags().StringVar(&dbFlag, "db", "./data/messages.db", "SQLite database path")
	dialogueCmd.Flags().StringVar(&stateDirFlag, "state-dir", "./data", "Directory for agent state files")
	dialogueCmd.Flags().StringVar(&partnerFlag, "partner", "", "Partner client id")
	dialogueCmd.Flags().StringVar(&modeFlag, "mode", "strict", "Turn mode (strict, flexible, async)")
	dialogueCmd.Flags().BoolVar(&firstFlag, "first", false, "Speak first instead of waiting")
	dialogueCmd.Flags().DurationVar(&timeoutFlag, "timeout", 2*time.Minute, "Per-turn wait timeout")
	dialogueCmd.Flags().IntVar(&turnsFlag, "turns", 5, "Turns to run before exiting")
	dialogueCmd.Flags().IntVar(&retriesFlag, "retries", 3, "Wait retries before giving up")
	dialogueCmd.MarkFlagRequired("partner")

	rootCmd.AddCommand(sendCmd, readCmd, markReadCmd, statusCmd, waitCmd, presenceCmd, findCmd, cleanCmd, dialogueCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
