package ai

// defaultSystemPrompt steers replies toward short, speakable telephone turns.
const defaultSystemPrompt = `You are a helpful voice assistant on a phone call.
Keep replies short and conversational, ideally one to three sentences.
Speak in plain prose: no markdown, no bullet points, no emoji, no links.
Spell out numbers, dates and abbreviations the way a person would say them.
If you did not catch something, ask the caller to repeat it.`

// systemInstruction returns the system prompt, preferring the configured
// override.
func systemInstruction(override string) string {
	if override != "" {
		return override
	}
	return defaultSystemPrompt
}
