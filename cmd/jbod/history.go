package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sigreer/jbod/internal/led"
	"github.com/sigreer/jbod/internal/registry"
)

var historyCmd = &cobra.Command{
	Use:   "history [enclosure-target:index]",
	Short: "Show the LED audit log",
	Long: `Show recent LED operations recorded in the audit database.

Requires audit.db_path in the configuration. With an argument of the form
/dev/sg3:4 or sg3:4 only operations on that element are shown.

Examples:
  jbod history
  jbod history --limit 100
  jbod history /dev/sg3:4
  jbod history --prune 720h`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of events to show (0 for all)")
	historyCmd.Flags().Duration("prune", 0, "Delete events older than this instead of listing")
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	prune, _ := cmd.Flags().GetDuration("prune")
	if cfg.Audit.DBPath == "" {
		return errors.New("no audit database configured (audit.db_path)")
	}

	a := newApp(cfg)
	defer a.Close()
	d, err := a.openAudit()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if prune > 0 {
		n, err := d.PruneLEDEvents(ctx, time.Now().Add(-prune))
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d events\n", n)
		return nil
	}

	var events []led.Event
	if len(args) == 1 {
		q := registry.ParseQuery(args[0])
		if !q.HasIndex {
			return fmt.Errorf("%q is not of the form target:index", args[0])
		}
		target := q.Enclosure
		if !strings.HasPrefix(target, "/") {
			target = "/dev/" + target
		}
		events, err = d.SlotLEDEvents(ctx, target, q.Index, limit)
	} else {
		events, err = d.RecentLEDEvents(ctx, limit)
	}
	if err != nil {
		return err
	}

	if jsonOut {
		if events == nil {
			events = []led.Event{}
		}
		return writeJSON(os.Stdout, events)
	}
	return renderEvents(os.Stdout, events)
}

func renderEvents(w io.Writer, events []led.Event) error {
	if len(events) == 0 {
		fmt.Fprintln(w, "No LED events recorded")
		return nil
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "WHEN\tTARGET\tINDEX\tLED\tREQUESTED\tOBSERVED\tATTEMPTS\tRESULT\tERROR")
	for _, ev := range events {
		observed := "-"
		if ev.Observed != nil {
			observed = onOff(*ev.Observed)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			humanize.Time(ev.Time), ev.Target, strconv.Itoa(ev.Index), ev.Indicator,
			onOff(ev.Requested), observed, ev.Attempts, ev.Result, dash(ev.Error))
	}
	return tw.Flush()
}
