package core

import (
	"medchat-proxy/internal/llm"
	"medchat-proxy/pkg"
)

// Assemble builds the prompt sent to the model: the language's system prompt,
// the stored history in order, then the new user message.  History is not
// truncated here; the store read limit bounds it.
func Assemble(language string, history []pkg.Message, newMessage string) ([]llm.Message, error) {
	lang, err := LookupLanguage(language)
	if err != nil {
		return nil, err
	}
	return assemble(lang, history, newMessage), nil
}

func assemble(lang *Language, history []pkg.Message, newMessage string) []llm.Message {
	messages := make([]llm.Message, 0, 1+len(history)+1)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: lang.SystemPrompt})
	for _, m := range history {
		role := llm.RoleUser
		if m.Sender == pkg.SenderAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: m.Text})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: newMessage})
	return messages
}
