package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sigreer/jbod/internal/led"
)

var locateCmd = &cobra.Command{
	Use:   "locate <slot>",
	Short: "Flash the identify LED of a disk slot for a while",
	Long: `Turn on the identify LED of a disk slot, wait, and turn it off again.

The LED is turned off when the timeout expires or when the command is
interrupted with Ctrl+C. The slot accepts the same forms as "jbod led".

Examples:
  jbod locate /dev/sda                 # Flash for the configured duration
  jbod locate --timeout 60s ZA1DKJT7   # Flash for 60s
  jbod locate /dev/sg3:4 --json`,
	Args: cobra.ExactArgs(1),
	Run:  runLocate,
}

func init() {
	locateCmd.Flags().DurationP("timeout", "t", 0, "LED flash duration (default from config, 30s)")
}

func runLocate(cmd *cobra.Command, args []string) {
	d, _ := cmd.Flags().GetDuration("timeout")
	if d <= 0 {
		d = cfg.LED.LocateDuration
	}

	ctx, stop := signalContext()
	defer stop()
	a := newApp(cfg)
	defer a.Close()

	resp := newLEDResponse("timed", led.Identify, nil, nil)
	enc, el, err := a.find(ctx, args[0])
	if err != nil {
		exitLED(resp, err)
	}
	resp = newLEDResponse("timed", led.Identify, enc, el)

	c, err := a.controller()
	if err != nil {
		exitLED(resp, err)
	}

	if !jsonOut {
		fmt.Printf("Locating %s slot %d (%s) for %s, Ctrl+C to stop\n", enc.ID, el.Slot(), el.Label(), d)
	}
	start := time.Now()
	err = c.Locate(ctx, led.RefOf(enc, el), d)
	resp.Duration = time.Since(start).Seconds()
	resp.StopReason = "timeout"
	if errors.Is(err, context.Canceled) {
		resp.StopReason = "interrupted"
		err = nil
	}
	if err != nil {
		exitLED(resp, err)
	}

	resp.Success = true
	resp.LEDState = "off"
	if jsonOut {
		writeJSON(os.Stdout, resp)
		return
	}
	fmt.Printf("Identify LED off after %.0fs (%s)\n", resp.Duration, resp.StopReason)
}
