package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sigreer/jbod/internal/health"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Monitoring check of all enclosures",
	Long: `Discover every enclosure and grade its element status.

Prints a one line summary followed by one line per problem and exits with
the Nagios plugin codes: 0 OK, 1 WARNING, 2 CRITICAL, 3 UNKNOWN.`,
	Args: cobra.NoArgs,
	Run:  runCheck,
}

func runCheck(cmd *cobra.Command, args []string) {
	ctx, stop := signalContext()
	defer stop()
	a := newApp(cfg)

	report := health.Evaluate(a.discover(ctx))
	a.Close()
	if jsonOut {
		writeJSON(os.Stdout, report)
	} else {
		renderReport(os.Stdout, report)
	}
	os.Exit(int(report.State))
}

func renderReport(w io.Writer, r *health.Report) {
	fmt.Fprintln(w, r.Summary())
	for _, f := range r.Findings {
		where := f.Target
		if f.Enclosure != "" {
			where = f.Enclosure
		}
		if f.Element != nil {
			where = fmt.Sprintf("%s:%d", where, *f.Element)
		}
		if where == "" {
			fmt.Fprintf(w, "%s: %s\n", f.State, f.Message)
			continue
		}
		fmt.Fprintf(w, "%s: %s %s\n", f.State, where, f.Message)
	}
}
