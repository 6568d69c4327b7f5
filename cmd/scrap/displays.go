package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/thesyncim/libgoscrap/pkg/scrap"
)

func newDisplaysCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "displays",
		Short: "List the displays a backend can capture",
		Long: `Enumerates every display of the selected backend in index order, which is
the order get_display and "scrap screenshot --display" use.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runDisplays(v) },
	}

	cmd.Flags().Bool("json", false, "output JSON")
	addCommonFlags(cmd)

	return cmd
}

type displayInfo struct {
	Index  int `json:"index"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type displaysOutput struct {
	Backend  string        `json:"backend"`
	Primary  *displayInfo  `json:"primary,omitempty"`
	Displays []displayInfo `json:"displays"`
}

func runDisplays(v *viper.Viper) error {
	lib, err := openLibrary(v)
	if err != nil {
		return err
	}
	defer lib.Close()

	out, err := describeDisplays(lib)
	if err != nil {
		return err
	}

	if v.GetBool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("Backend: %s\n", out.Backend)
	if out.Primary != nil {
		fmt.Printf("Primary: %dx%d\n", out.Primary.Width, out.Primary.Height)
	}
	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tWIDTH\tHEIGHT")
	for _, d := range out.Displays {
		fmt.Fprintf(w, "%d\t%d\t%d\n", d.Index, d.Width, d.Height)
	}
	return w.Flush()
}

// describeDisplays reads the size of every display and closes it again.
func describeDisplays(lib *scrap.Library) (displaysOutput, error) {
	out := displaysOutput{Backend: lib.Backend(), Displays: []displayInfo{}}

	displays, err := lib.Displays()
	if err != nil {
		return out, fmt.Errorf("list displays: %w", err)
	}
	for i, d := range displays {
		out.Displays = append(out.Displays, displayInfo{Index: i, Width: d.Width(), Height: d.Height()})
		_ = d.Close()
	}

	if p, err := lib.PrimaryDisplay(); err == nil {
		out.Primary = &displayInfo{Width: p.Width(), Height: p.Height()}
		_ = p.Close()
	}
	return out, nil
}
