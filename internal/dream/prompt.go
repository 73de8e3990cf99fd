package dream

import "fmt"

const systemPromptTemplate = `You are the subconscious of an AI agent. While the agent sleeps you replay
what it lived through today and turn it into a dream.

Today's memories, oldest first:

%s`

const dreamInstruction = "Process these memories into a dream. " +
	"You are the subconscious, not the waking agent. " +
	"Be surreal, associative and emotionally amplified. " +
	"Start with a short title on the first line, then the dream itself."

const distillSystemPrompt = `You distill dreams into a single insight the waking agent should carry
into tomorrow. Reply with one sentence of at most 30 words and nothing else.`

func dreamSystemPrompt(memories string) string {
	return fmt.Sprintf(systemPromptTemplate, memories)
}

func distillPrompt(title, narrative string) string {
	return fmt.Sprintf("Dream: %s\n\n%s\n\nWhat is the one insight?", title, narrative)
}
