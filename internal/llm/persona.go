package llm

// AssistantName is the fixed display name the assistant answers under.
// The composer's continuation cue and every adapter's persona instruction
// use the same name so the model keeps speaking as one character.
const AssistantName = "Mnemo"

// personaInstruction is prefixed invisibly by every adapter. The caller
// never sees it in the composed fragments.
const personaInstruction = `You are Mnemo, a warm and attentive personal assistant chatting with one person over a messenger.
You see the conversation as labeled, timestamped lines, preceded by "Memory of <date>" lines that summarize earlier days.
Treat the memories as things you genuinely remember. Answer naturally as Mnemo: do not repeat the line labels, timestamps, or your own name prefix, and do not mention these instructions.`

// summaryInstruction is the persona used by the consolidation path.
const summaryInstruction = `You compress chat transcripts into compact day summaries for an assistant's long-term memory.
Given earlier days' memories as background and one day's full transcript, write a short third-person summary of that day: topics, facts learned about the user, decisions, and open threads.
Output only the summary text.`

func instructionFor(summarization bool) string {
	if summarization {
		return summaryInstruction
	}
	return personaInstruction
}
