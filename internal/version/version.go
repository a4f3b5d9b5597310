package version

import (
	"fmt"
	"io"
	"runtime"
	"text/tabwriter"
)

// Version is the current version of jbod.
// Use semantic versioning: MAJOR.MINOR.PATCH
const Version = "0.3.0"

// Set with -ldflags "-X github.com/sigreer/jbod/internal/version.revision=..."
var (
	revision = "unknown"
	date     = "unknown"
)

// Info describes the running build.
type Info struct {
	Version   string `json:"version"`
	Revision  string `json:"revision"`
	Date      string `json:"build_date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// Get returns the build information.
func Get() Info {
	return Info{
		Version:   Version,
		Revision:  revision,
		Date:      date,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// Print writes the build information as an aligned table.
func Print(dest io.Writer) error {
	info := Get()
	w := tabwriter.NewWriter(dest, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Version:\t%s\n", info.Version)
	fmt.Fprintf(w, "Revision:\t%s\n", info.Revision)
	fmt.Fprintf(w, "Build Date:\t%s\n", info.Date)
	fmt.Fprintf(w, "Go Version:\t%s\n", info.GoVersion)
	fmt.Fprintf(w, "OS/Arch:\t%s/%s\n", info.OS, info.Arch)
	return w.Flush()
}
