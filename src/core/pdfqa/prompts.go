package pdfqa

import "github.com/tmc/langchaingo/prompts"

const askPDFTemplate = `<s>[INST] You are a technical assistant good at searching documents. If you do not have an answer from the provided information say so. [/INST] </s>
[INST] {{.question}}
       Context: {{.context}}
       Answer:
[/INST]`

func newAskPDFPrompt() prompts.PromptTemplate {
	return prompts.NewPromptTemplate(askPDFTemplate, []string{"context", "question"})
}
