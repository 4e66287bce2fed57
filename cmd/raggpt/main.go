// Command raggpt is the entry point for the RAG-GPT document chatbot.
// It provides a CLI (via Cobra) for indexing documents, asking questions,
// summarising files, and running the chat API and the reference file server.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/raggpt-go/cmd/raggpt/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
