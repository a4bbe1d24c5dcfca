package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/tessera/internal/capability"
)

func profilesCmd() *cli.Command {
	var asYAML bool

	return &cli.Command{
		Name:  "profiles",
		Usage: "List the capability profiles",
		Flags: append(profileFlags(),
			&cli.BoolFlag{
				Name:        "yaml",
				Usage:       "print a profiles file instead of a table",
				Destination: &asYAML,
			},
		),
		Action: withSetup(func(ctx context.Context, cmd *cli.Command) error {
			applyProfileConfig(cmd, settings, nil)
			reg, err := loadRegistry()
			if err != nil {
				return err
			}
			if asYAML {
				return writeProfilesYAML(os.Stdout, reg.All())
			}
			return writeProfiles(os.Stdout, reg.All(), profileName)
		}),
	}
}

func writeProfiles(w io.Writer, profiles []capability.Capability, current string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSCRATCHPAD\tCORES\tBLOCK\tGEN\tATOMIC_ADD\tF32_TO_S8")
	for _, c := range profiles {
		name := c.Name
		if name == current {
			name += " *"
		}
		fmt.Fprintf(tw, "%s\t%d KiB\t%d\t%d\t%d\t%t\t%t\n",
			name, c.ScratchpadBytes/1024, c.CoreNum, c.BlockBytes, c.Generation, c.AtomicAdd, c.DirectF32ToS8)
	}
	return tw.Flush()
}

// writeProfilesYAML emits a file LoadFile can read back.
func writeProfilesYAML(w io.Writer, profiles []capability.Capability) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(map[string][]capability.Capability{"profiles": profiles}); err != nil {
		return err
	}
	return enc.Close()
}
