package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/dolly/story"
	"github.com/teranos/dolly/trip"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a story file and list its panels",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	s, err := story.Load(args[0])
	if err != nil {
		if t, ok := trip.As(err); ok {
			fmt.Fprintln(out, t.DetailedString())
		} else {
			fmt.Fprintln(out, err)
		}
		return fmt.Errorf("%s is not a valid story", args[0])
	}

	fmt.Fprintf(out, "%s: %q, %d panels\n", args[0], s.Title, len(s.Panels))
	for i, p := range s.Panels {
		fmt.Fprintf(out, "  %2d  %-12s %-9s %s\n", i, p.ID, p.Kind, p.Advance)
	}
	return nil
}
