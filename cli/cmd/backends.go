package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var showParts bool

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List available backends",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := newRegistry()
		for _, id := range registry.IDs() {
			b, err := registry.Get(id)
			if err != nil {
				return err
			}
			caps := b.Capabilities()
			dialects := make([]string, 0, len(caps.Dialects))
			for _, d := range caps.Dialects {
				dialects = append(dialects, string(d))
			}
			fmt.Printf("%-12s dialects: %s\n", id, strings.Join(dialects, ", "))
			if showParts {
				for _, p := range b.SupportedParts() {
					fmt.Printf("    %s\n", p)
				}
			}
		}
		return nil
	},
}

func init() {
	backendsCmd.Flags().BoolVar(&showParts, "parts", false, "also list each backend's supported parts")
}
