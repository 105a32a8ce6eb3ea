package rag

import (
	"fmt"
	"strings"

	"github.com/gamma-omg/pdf-rag/generator"
)

const DefaultSystemPrompt = "You are a helpful assistant that answers questions using only the provided passages. " +
	"If the passages do not contain the answer, say that you don't know. Be concise and accurate."

// BuildContext labels passages by rank, most relevant first.
func BuildContext(passages []string) string {
	blocks := make([]string, len(passages))
	for i, p := range passages {
		blocks[i] = fmt.Sprintf("[Passage %d]\n%s", i+1, p)
	}

	return strings.Join(blocks, "\n\n")
}

func BuildPrompt(passages []string, question string, systemPrompt string) []generator.Message {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	return []generator.Message{
		{Role: generator.RoleSystem, Content: systemPrompt},
		{Role: generator.RoleUser, Content: fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\nAnswer:", BuildContext(passages), question)},
	}
}
