package main

import (
	"fmt"
	"strings"

	"github.com/ragocore/ragocore/pkg/kb"
	"github.com/spf13/cobra"
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage knowledge bases",
}

var kbListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every configured knowledge base",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, k := range a.KBStore.List() {
			fmt.Printf("%s\n  embedding: %s\n  selection: %s\n  convertors: %d\n",
				k.FullName, k.Embedding.Model, strings.Join(k.Selection, ", "), len(k.Convertors))
		}
		return nil
	},
}

var kbStatusCmd = &cobra.Command{
	Use:   "status <name>",
	Short: "Partition a knowledge base's selected documents into processed/not-processed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		processed, notProcessed, err := a.Ingest.KBStatus(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("processed (%d):\n", len(processed))
		for _, p := range processed {
			fmt.Printf("  %s\n", p)
		}
		fmt.Printf("not processed (%d):\n", len(notProcessed))
		for _, p := range notProcessed {
			fmt.Printf("  %s\n", p)
		}
		return nil
	},
}

var (
	kbName       string
	kbSelection  []string
	kbConversion string
	kbEmbedModel string
)

var kbUpsertCmd = &cobra.Command{
	Use:   "upsert",
	Short: "Create or update a knowledge base descriptor",
	RunE: func(cmd *cobra.Command, args []string) error {
		desc := kb.Descriptor{
			Name:       kbName,
			Selection:  kbSelection,
			Convertors: []kb.ConvertorConfig{{Conversion: kbConversion}},
			Embedding:  kb.EmbeddingConfig{Model: kbEmbedModel},
		}
		ok, err := a.KBStore.Upsert(desc)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no configured kbstore accepted the upsert")
		}
		fmt.Printf("upserted knowledge base %q\n", kbName)
		return nil
	},
}

func init() {
	kbUpsertCmd.Flags().StringVar(&kbName, "name", "", "knowledge base name")
	kbUpsertCmd.Flags().StringSliceVar(&kbSelection, "selection", nil, "glob patterns selecting documents from the bound source")
	kbUpsertCmd.Flags().StringVar(&kbConversion, "conversion", "raw", "convertor dialect to use (raw, ocr, ocr_llm, llm, ...)")
	kbUpsertCmd.Flags().StringVar(&kbEmbedModel, "embedding-model", "", "embedding model name")
	_ = kbUpsertCmd.MarkFlagRequired("name")
	_ = kbUpsertCmd.MarkFlagRequired("embedding-model")

	kbCmd.AddCommand(kbListCmd)
	kbCmd.AddCommand(kbUpsertCmd)
	kbCmd.AddCommand(kbStatusCmd)
}
