package inference

import (
	"fmt"

	"medsum/internal/usecase/summarize"
)

const systemPrompt = "You summarize clinical notes for clinicians. " +
	"Write an abstractive summary in plain prose. " +
	"Keep diagnoses, medications with doses, procedures and follow-up plans. " +
	"Do not add facts that are not in the note. Output only the summary."

func userPrompt(text string, opts summarize.Options) string {
	return fmt.Sprintf("Summarize the following text in %d to %d tokens.\n\n%s",
		opts.MinLength, opts.MaxLength, text)
}

// completionBudget caps generated tokens at MaxLength, as a seq2seq
// generate call would.
func completionBudget(opts summarize.Options) int {
	if opts.MaxLength > 0 {
		return opts.MaxLength
	}
	return 256
}
