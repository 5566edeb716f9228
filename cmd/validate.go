package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/walkthrough/internal/tour"
)

func validateCmd() *cobra.Command {
	var printYAML bool
	cmd := &cobra.Command{
		Use:   "validate <tour.yaml>...",
		Short: "Check tour files without opening a browser",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			failed := 0
			for _, path := range args {
				t, err := tour.Load(path)
				if err != nil {
					fmt.Fprintf(os.Stderr, "%s\n", err)
					failed++
					continue
				}
				fmt.Printf("Tour %q at %s is valid (%d steps).\n", t.Name, path, len(t.Steps))
				for i, st := range t.Steps {
					fmt.Printf("  %s\n", stepLabel(i, st))
				}
				if printYAML {
					data, err := t.Marshal()
					if err != nil {
						fmt.Fprintf(os.Stderr, "Error: %s\n", err)
						os.Exit(1)
					}
					fmt.Println(string(data))
				}
			}
			if failed > 0 {
				os.Exit(1)
			}
		},
	}
	cmd.Flags().BoolVar(&printYAML, "print", false, "print the normalized tour as YAML")
	return cmd
}
