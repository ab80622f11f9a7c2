// Package chat is the service facade between request handlers and the
// upstream inference client: prompt formatting, generation, health and
// model-info queries.
package chat

import "sort"

// PromptFormatter prepends a language instruction to a message when the
// language code is known. Unknown or absent codes leave the message
// untouched and let the model infer the language. The table is open; new
// languages are added with AddLanguage, not control flow.
type PromptFormatter struct {
	instructions map[string]string
}

// NewPromptFormatter returns a formatter with the stock language table.
func NewPromptFormatter() *PromptFormatter {
	return &PromptFormatter{
		instructions: map[string]string{
			"en": "Answer in English to the following question:",
			"fr": "Réponds en français à la question suivante:",
			"es": "Responde en español a la siguiente pregunta:",
			"de": "Antworte auf Deutsch auf die folgende Frage:",
		},
	}
}

// Format returns the prompt to send upstream for a user message.
func (f *PromptFormatter) Format(message, language string) string {
	instruction, ok := f.instructions[language]
	if !ok {
		return message
	}
	return instruction + "\n\n" + message
}

// AddLanguage registers or replaces an instruction for a language code.
func (f *PromptFormatter) AddLanguage(code, instruction string) {
	f.instructions[code] = instruction
}

// SupportedLanguages lists the registered language codes, sorted.
func (f *PromptFormatter) SupportedLanguages() []string {
	codes := make([]string, 0, len(f.instructions))
	for code := range f.instructions {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
