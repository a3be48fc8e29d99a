package ollama

import "fmt"

const summarizeTemperature = 0.2

func buildSummarizePrompt(maxWords int) string {
	return fmt.Sprintf(`You are a careful editor.
Rewrite the user's text in at most %d words.
Keep the meaning, the warm supportive tone and any concrete advice.
Reply with the rewritten text only. No preamble, no markdown.`, maxWords)
}
