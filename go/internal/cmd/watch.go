package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcdev12/raidtimer/go/clients/raidtimer_client"
	"github.com/mcdev12/raidtimer/go/internal/events"
)

var watchServer string

var watchCmd = &cobra.Command{
	Use:   "watch <group>",
	Short: "Follow a group's timer and print every change",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client := raidtimer_client.NewRaidTimerClient(watchServer, cfg.LongPollTimeout)
		if _, err := client.CheckVersion(ctx); err != nil {
			return err
		}

		err := client.Watch(ctx, args[0], func(state events.GroupState) error {
			printState(cmd.OutOrStdout(), state)
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchServer, "server", "http://localhost:8080", "base URL of the raidtimer server")
	rootCmd.AddCommand(watchCmd)
}

func printState(w io.Writer, state events.GroupState) {
	fmt.Fprintf(w, "[%s] %s #%d %s", state.GroupID, state.ServerTime, state.UpdateID, strings.ToUpper(state.Status))
	if state.StartTime != nil {
		fmt.Fprintf(w, " start=%s", *state.StartTime)
	}
	if state.StopTime != nil {
		fmt.Fprintf(w, " stop=%s", *state.StopTime)
	}
	fmt.Fprintln(w)
	for i, seg := range state.Segments {
		if !seg.IsSet {
			fmt.Fprintf(w, "  %2d %-16s -\n", i, seg.Name)
			continue
		}
		fmt.Fprintf(w, "  %2d %-16s %s (best %s)\n", i, seg.Name,
			time.Duration(seg.ShortestTimeMs)*time.Millisecond,
			time.Duration(seg.ShortestDurationMs)*time.Millisecond)
	}
}
