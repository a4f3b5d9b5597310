package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sigreer/jbod/internal/led"
	"github.com/sigreer/jbod/internal/topology"
)

// LEDResponse is the JSON result of an LED change.
type LEDResponse struct {
	Success    bool    `json:"success"`
	ID         string  `json:"id,omitempty"`
	Action     string  `json:"action"`    // "on", "off", "timed"
	Indicator  string  `json:"indicator"` // "identify", "fault"
	LEDState   string  `json:"led_state,omitempty"`
	Enclosure  string  `json:"enclosure,omitempty"`
	Target     string  `json:"target,omitempty"`
	Index      int     `json:"index"`
	Slot       int     `json:"slot"`
	Device     string  `json:"device,omitempty"`
	Serial     string  `json:"serial,omitempty"`
	Attempts   int     `json:"attempts,omitempty"`
	Duration   float64 `json:"duration_seconds,omitempty"`
	StopReason string  `json:"stop_reason,omitempty"` // "timeout", "interrupted"
	Reason     string  `json:"reason,omitempty"`
	Timestamp  string  `json:"timestamp"`
	Error      string  `json:"error,omitempty"`
}

func newLEDResponse(action string, ind led.Indicator, enc *topology.Enclosure, el *topology.Element) *LEDResponse {
	r := &LEDResponse{
		Action:    action,
		Indicator: ind.String(),
		Index:     -1,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if enc != nil && el != nil {
		r.Enclosure, r.Target = enc.ID, enc.Target
		r.Index, r.Slot = el.Index, el.Slot()
		if b := el.Binding; b != nil {
			r.Device, r.Serial = b.Device, b.Serial
		}
	}
	return r
}

// fail records err on the response, including the reason of a control error.
func (r *LEDResponse) fail(err error) {
	r.Success = false
	r.Error = err.Error()
	var ce *led.ControlError
	if errors.As(err, &ce) {
		r.Reason = ce.Reason.String()
	}
}

var ledCmd = &cobra.Command{
	Use:   "led (--locate|--fault) <slot> (--on|--off)",
	Short: "Set the identify or fault LED of a disk slot",
	Long: `Set the identify (locate) or fault indicator of one disk slot and wait until
the enclosure reports the new state.

The slot can be given as:
  - Block device: /dev/sdb, sdb, /dev/disk/by-id/...
  - SCSI generic device of the disk: /dev/sg12
  - Disk serial number or SAS address
  - Enclosure and element index: 5003048000000a7f:4 or /dev/sg3:4

Examples:
  jbod led --locate /dev/sdb --on
  jbod led --fault 5003048000000a7f:4 --off
  jbod led --locate ZA1DKJT7 --on --json`,
	Args: cobra.NoArgs,
	Run:  runLED,
}

func init() {
	ledCmd.Flags().StringP("locate", "l", "", "Slot whose identify LED to change")
	ledCmd.Flags().StringP("fault", "f", "", "Slot whose fault LED to change")
	ledCmd.Flags().Bool("on", false, "Turn the LED on")
	ledCmd.Flags().Bool("off", false, "Turn the LED off")
}

// ledRequest validates the flag combination of the led command.
func ledRequest(locate, fault string, on, off bool) (led.Indicator, string, bool, error) {
	switch {
	case locate != "" && fault != "":
		return 0, "", false, errors.New("use either --locate or --fault, not both")
	case locate == "" && fault == "":
		return 0, "", false, errors.New("one of --locate or --fault is required")
	case on && off:
		return 0, "", false, errors.New("refusing to turn a LED on and off at once")
	case !on && !off:
		return 0, "", false, errors.New("one of --on or --off is required")
	}
	if locate != "" {
		return led.Identify, locate, on, nil
	}
	return led.Fault, fault, on, nil
}

func runLED(cmd *cobra.Command, args []string) {
	locate, _ := cmd.Flags().GetString("locate")
	fault, _ := cmd.Flags().GetString("fault")
	on, _ := cmd.Flags().GetBool("on")
	off, _ := cmd.Flags().GetBool("off")

	ind, query, want, err := ledRequest(locate, fault, on, off)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signalContext()
	defer stop()
	a := newApp(cfg)
	defer a.Close()

	resp := newLEDResponse(onOff(want), ind, nil, nil)
	enc, el, err := a.find(ctx, query)
	if err != nil {
		exitLED(resp, err)
	}
	resp = newLEDResponse(onOff(want), ind, enc, el)

	c, err := a.controller()
	if err != nil {
		exitLED(resp, err)
	}
	ref := led.RefOf(enc, el)
	var ack *led.Ack
	if ind == led.Identify {
		ack, err = c.SetIdentify(ctx, ref, want)
	} else {
		ack, err = c.SetFault(ctx, ref, want)
	}
	if err != nil {
		exitLED(resp, err)
	}

	resp.Success = true
	resp.ID = ack.ID.String()
	resp.LEDState = onOff(ack.On)
	resp.Attempts = ack.Attempts
	resp.Duration = ack.Duration.Seconds()
	if jsonOut {
		writeJSON(os.Stdout, resp)
		return
	}
	fmt.Printf("%s LED %s: %s slot %d (%s)\n", ind, resp.LEDState, enc.ID, el.Slot(), el.Label())
}

func exitLED(resp *LEDResponse, err error) {
	resp.fail(err)
	if jsonOut {
		writeJSON(os.Stdout, resp)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
