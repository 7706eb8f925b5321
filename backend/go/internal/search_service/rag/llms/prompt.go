package llms

import (
	"Neurologix/backend/go/internal/models"
	"Neurologix/backend/go/internal/search_service/rag/interfaces"
	"fmt"
	"strings"
)

var answerInstructions = []string{
	"You answer clinicians' questions about concussion assessments using ONLY the numbered records in <evidence>.",
	"1. Cite every statement by appending the record number in square brackets, for example [1] or [2].",
	"2. Copy numbers exactly as they appear in the records. Never compute, round or estimate new numbers.",
	"3. If the records do not answer the question, say so in one sentence.",
	"4. Do not give medical advice or diagnoses.",
	"5. Answer in plain prose, at most five sentences.",
}

var extractInstructions = []string{
	"You extract query slots from a clinician's question about concussion assessments.",
	"1. Choose \"metric\" only from the names listed in <catalog>, or leave it empty.",
	"2. \"patient_ids\" lists patient identifiers such as P001 that appear in the question.",
	"3. \"time_anchor\" is one of the anchors listed in <catalog>, or empty.",
	"4. Reply with a single JSON object and nothing else.",
}

const extractFormat = `{"metric": "", "patient_ids": [], "time_anchor": ""}`

// BuildPrompt renders a generation request into the provider-neutral request
// sent to the model. Answer synthesis is plain text; intent extraction asks for JSON.
func BuildPrompt(req interfaces.GenerationRequest) (*models.GenerateContentRequest, error) {
	var sys, user strings.Builder
	var out models.GenerateContentRequest

	switch req.Mode {
	case interfaces.ModeSynthesizeAnswer:
		writeInstructions(&sys, answerInstructions)
		user.WriteString("<evidence>\n")
		user.WriteString(escape(req.Evidence))
		user.WriteString("\n</evidence>\n\n")
	case interfaces.ModeExtractIntent:
		writeInstructions(&sys, extractInstructions)
		sys.WriteString("<format>\n")
		sys.WriteString(extractFormat)
		sys.WriteString("\n</format>\n")
		user.WriteString("<catalog>\n")
		user.WriteString(escape(req.Evidence))
		user.WriteString("\n</catalog>\n\n")
		out.JSONOutput = true
	default:
		return nil, fmt.Errorf("unknown generation mode %q", req.Mode)
	}

	user.WriteString("<query>\n")
	user.WriteString(escape(req.Question))
	user.WriteString("\n</query>\n")

	temperature := float32(0)
	out.SystemInstruction = sys.String()
	out.Content = []models.Content{models.TextContent(models.SpeakerUser, user.String())}
	out.Temperature = &temperature
	return &out, nil
}

func writeInstructions(sb *strings.Builder, lines []string) {
	sb.WriteString("<instructions>\n")
	for _, line := range lines {
		sb.WriteString("  <line>")
		sb.WriteString(escape(line))
		sb.WriteString("</line>\n")
	}
	sb.WriteString("</instructions>\n\n")
}

func escape(value string) string {
	s := strings.TrimSpace(value)
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	)
	return replacer.Replace(s)
}
