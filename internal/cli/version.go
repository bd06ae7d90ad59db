package cli

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Build metadata, overridden at release time via
// -ldflags "-X github.com/snowstage/stagectl/internal/cli.version=...".
var (
	version = "dev"
	commit  = ""
	date    = ""
)

// newVersionCommand creates the "version" subcommand.
func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the stagectl version",
		RunE: func(_ *cobra.Command, _ []string) error {
			fmt.Println(versionString())
			return nil
		},
	}
}

// versionString prefers ldflags values and falls back to module build info
// for go-install builds.
func versionString() string {
	v := version
	c := commit
	if v == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.Main.Version != "" && info.Main.Version != "(devel)" {
				v = info.Main.Version
			}
			if c == "" {
				for _, setting := range info.Settings {
					if setting.Key == "vcs.revision" {
						c = setting.Value
						break
					}
				}
			}
		}
	}

	out := "stagectl " + v
	if c != "" {
		short := c
		if len(short) > 12 {
			short = short[:12]
		}
		out += " (" + short + ")"
	}
	if date != "" {
		out += " built " + date
	}
	return out
}
