package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sigreer/jbod/internal/registry"
	"github.com/sigreer/jbod/internal/topology"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List enclosures and their elements",
	Long: `Discover every enclosure and print its disks, fans and sensors.

Without selection flags everything is printed. Targets that fail are reported
on stderr and do not hide the enclosures that answered.`,
	Args: cobra.NoArgs,
	Run:  runList,
}

func init() {
	listCmd.Flags().BoolP("enclosures", "e", false, "List enclosures")
	listCmd.Flags().BoolP("disks", "d", false, "List disk slots")
	listCmd.Flags().BoolP("fans", "f", false, "List fans")
	listCmd.Flags().BoolP("sensors", "s", false, "List temperature, voltage and current sensors")
}

type listSelection struct {
	enclosures, disks, fans, sensors bool
}

func (s listSelection) all() listSelection {
	if !s.enclosures && !s.disks && !s.fans && !s.sensors {
		return listSelection{true, true, true, true}
	}
	return s
}

func runList(cmd *cobra.Command, args []string) {
	var sel listSelection
	sel.enclosures, _ = cmd.Flags().GetBool("enclosures")
	sel.disks, _ = cmd.Flags().GetBool("disks")
	sel.fans, _ = cmd.Flags().GetBool("fans")
	sel.sensors, _ = cmd.Flags().GetBool("sensors")

	ctx, stop := signalContext()
	defer stop()
	a := newApp(cfg)
	defer a.Close()

	outcomes := a.discover(ctx)
	if jsonOut {
		writeJSON(os.Stdout, newListOutput(outcomes))
	} else {
		renderErrors(os.Stderr, outcomes)
		renderList(os.Stdout, outcomes, sel.all())
	}
	if len(outcomes.Enclosures()) == 0 {
		os.Exit(1)
	}
}

func renderList(w io.Writer, outcomes registry.Outcomes, sel listSelection) {
	encs := outcomes.Enclosures()
	if len(encs) == 0 {
		fmt.Fprintln(w, "No enclosures found")
		return
	}
	sections := []struct {
		on     bool
		title  string
		render func(io.Writer, []*topology.Enclosure) error
	}{
		{sel.enclosures, "Enclosures", renderEnclosures},
		{sel.disks, "Disks", renderDisks},
		{sel.fans, "Fans", renderFans},
		{sel.sensors, "Sensors", renderSensors},
	}
	first := true
	for _, s := range sections {
		if !s.on {
			continue
		}
		if !first {
			fmt.Fprintln(w)
		}
		first = false
		fmt.Fprintf(w, "%s:\n", s.title)
		s.render(w, encs)
	}
}
