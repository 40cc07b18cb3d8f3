package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configured runners, KB stores, and doc sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("ragocore status")
		fmt.Println(strings.Repeat("=", 40))

		fmt.Println("\nLLM runners:")
		for _, r := range a.Config.LLMRunners {
			fmt.Printf("  %s (%s)\n", r.Name, r.Type)
		}

		fmt.Println("\nKnowledge bases:")
		for _, k := range a.KBStore.List() {
			fmt.Printf("  %s (embedding: %s)\n", k.FullName, k.Embedding.Model)
		}

		fmt.Println("\nDocument sources:")
		for _, d := range a.Config.DocSources {
			fmt.Printf("  %s (%s)\n", d.Name, d.Root)
		}

		fmt.Println("\nIngest:")
		ist := a.Ingest.Status()
		fmt.Printf("  active: %v  result: %s  kb: %d/%d  doc: %d/%d\n",
			ist.Active, ist.Result, ist.KBNum, ist.KBTotal, ist.DocNum, ist.DocTotal)

		return nil
	},
}
