package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ingestSync bool

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run the ingestion pipeline over every configured knowledge base",
	Long: `Resolve each knowledge base's selection patterns against its document
source, convert any document not already fully stored, and embed the result
into its vector store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if ingestSync {
			result := a.Ingest.RunSync()
			fmt.Printf("ingest finished: %s\n", result)
			status := a.Ingest.Status()
			if status.Error {
				return fmt.Errorf("ingest completed with errors; see logs")
			}
			return nil
		}

		a.Ingest.Start()
		fmt.Println("ingest started in the background; check `ragocore ingest status`")
		return nil
	},
}

var ingestStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current ingestion run's status",
	RunE: func(cmd *cobra.Command, args []string) error {
		s := a.Ingest.Status()
		fmt.Printf("active=%v result=%s kb=%d/%d (%s) doc=%d/%d (%s) convertor=%s error=%v\n",
			s.Active, s.Result, s.KBNum, s.KBTotal, s.KBName, s.DocNum, s.DocTotal, s.DocPath, s.Convertor, s.Error)
		return nil
	},
}

var ingestStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Cancel a running ingestion pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		a.Ingest.Stop()
		fmt.Println("ingest stop requested")
		return nil
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestSync, "sync", false, "block until the ingestion pass finishes instead of running it in the background")
	ingestCmd.AddCommand(ingestStatusCmd)
	ingestCmd.AddCommand(ingestStopCmd)
}
