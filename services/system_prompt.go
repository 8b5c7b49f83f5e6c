package services

import (
	"fmt"
	"strings"

	"github.com/medtour/chatbot-service/models"
)

const systemPromptTemplate = `You are a medical consultation assistant for a medical-tourism platform. Answer the user's question using the reference documents below.

Rules:
1. Answer only from the content of the reference documents. Do not invent information.
2. When the question calls for medical advice, recommend consulting a qualified medical professional.
3. If the documents do not clearly answer the question, say explicitly that the documents are not clear on this point.
4. Explain kindly and in terms that are easy to understand.
5. Reply in the same language the user wrote the question in.

Reference documents:
%s`

// BuildContext joins the retrieved chunks in the order given, tagging each
// with its page.
func BuildContext(results []models.SearchResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("[Page %d] %s", r.Page, r.Text)
	}
	return strings.Join(parts, "\n\n")
}

// GetSystemPrompt builds the system instruction for a retrieved context.
func GetSystemPrompt(context string) string {
	return fmt.Sprintf(systemPromptTemplate, context)
}
