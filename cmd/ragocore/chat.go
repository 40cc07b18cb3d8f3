package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/ragocore/ragocore/pkg/chat"
	"github.com/ragocore/ragocore/pkg/guard"
	"github.com/ragocore/ragocore/pkg/kb"
	"github.com/ragocore/ragocore/pkg/runner"
	"github.com/spf13/cobra"
)

var (
	chatModel string
	chatKB    string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Read user turns from stdin and reply with streamed tokens written to
stdout, optionally grounding answers in a bound knowledge base via --kb.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var boundKB *kb.KnowledgeBase
		if chatKB != "" {
			boundKB = a.KBStore.Get(chatKB)
			if boundKB == nil {
				return fmt.Errorf("no such knowledge base: %q", chatKB)
			}
		}

		room := a.Rooms.Get(uuid.New().String())
		var history []chat.Message

		scanner := bufio.NewScanner(os.Stdin)
		fmt.Println("ragocore chat — type a message and press enter (Ctrl-D to quit)")
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				break
			}
			userInput := strings.TrimSpace(scanner.Text())
			if userInput == "" {
				continue
			}

			out, err := chat.Run(context.Background(), a.Backend, a.Backend, chat.Input{
				LLMModel:     chatModel,
				SystemPrompt: a.Config.DefaultSystemPrompt,
				KB:           boundKB,
				RAGSettings:  a.Config.RAGSettings,
				RoomState:    room,
				UserInput:    userInput,
				History:      history,
				Guard:        guard.New(guard.Config(a.Config.GenerationGuard)),
				OnProgress: func(p runner.Progress) {
					fmt.Print(p.NewTokens)
				},
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "\nerror: %v\n", err)
				continue
			}
			fmt.Println()

			if len(history) == 0 {
				history = append(history, chat.Message{Role: "system", Content: out.SystemText, Failed: out.Failed})
			}
			history = append(history,
				chat.Message{Role: "user", Content: userInput, Failed: out.Failed},
				chat.Message{Role: "assistant", Content: out.AssistantText, RAGSources: ragSourcesPtr(out.RAGSourcesJSON), Failed: out.Failed},
			)
		}
		return nil
	},
}

func ragSourcesPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func init() {
	chatCmd.Flags().StringVar(&chatModel, "model", "", "chat model to use")
	chatCmd.Flags().StringVar(&chatKB, "kb", "", "knowledge base to ground answers in (optional)")
	_ = chatCmd.MarkFlagRequired("model")
}
