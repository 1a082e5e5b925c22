package service

import (
	"fmt"
	"strings"
)

// BuildJudgePrompt 组装一次评审请求：固定评审说明 + 用户 rubric + 问题/参考答案/候选答案
func BuildJudgePrompt(question, candidateAnswer, contextAnswer, rubric string) string {
	var b strings.Builder
	b.WriteString("You are an expert judge. Evaluate the CANDIDATE ANSWER to the QUESTION.\n")
	b.WriteString("The REFERENCE ANSWER comes from the knowledge base and is provided as context and as a quality benchmark.\n\n")

	b.WriteString("Core criteria:\n")
	b.WriteString("- Factual accuracy: is the information correct?\n")
	b.WriteString("- Relevance: does it directly answer the question?\n")
	b.WriteString("- Completeness: does it cover the important aspects of the question?\n")
	b.WriteString("- Clarity and concision: is it easy to understand and to the point?\n")
	b.WriteString("- Tone: is it neutral and professional?\n\n")

	if r := strings.TrimSpace(rubric); r != "" {
		b.WriteString("Additional criteria from the user:\n")
		b.WriteString(r)
		b.WriteString("\n\n")
	}

	b.WriteString(fmt.Sprintf("QUESTION: %q\n", question))
	b.WriteString(fmt.Sprintf("REFERENCE ANSWER: %q\n", contextAnswer))
	b.WriteString(fmt.Sprintf("CANDIDATE ANSWER: %q\n\n", candidateAnswer))

	b.WriteString("Tasks:\n")
	b.WriteString("1. Score the candidate answer between 0.0 (very poor, irrelevant or wrong) and 1.0 (excellent, accurate, complete).\n")
	b.WriteString("2. Justify the score briefly, comparing with the reference answer where relevant.\n")
	b.WriteString("3. If the candidate answer can be improved, propose a better answer in suggestedAnswer; otherwise use an empty string.\n\n")

	b.WriteString("Respond ONLY with a JSON object with exactly these fields:\n")
	b.WriteString(`{"score": number, "justification": string, "suggestedAnswer": string}`)
	b.WriteString("\n")
	return b.String()
}
