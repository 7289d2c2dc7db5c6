package generator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/miradorstack/mirador-triage/internal/models"
)

const maxPromptRecords = 10

// BuildPrompt renders an incident context into the instruction sent to the model.
func BuildPrompt(ic models.IncidentContext) string {
	var b strings.Builder
	b.WriteString("You are an SRE triage agent. Propose one remediation for the incident below.\n")
	b.WriteString("Respond with a single JSON object and nothing else:\n")
	b.WriteString(`{"action": "ROLLBACK|SCALE_UP|RESTART_SERVICE|CREATE_TICKET|MANUAL_INVESTIGATION", "confidence": 0.0-1.0, "reasoning": "...", "steps": ["..."]}`)
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Incident key: %s\n", ic.Key)
	if ic.Anomaly != nil {
		fmt.Fprintf(&b, "Detected: %s on %s: %s\n", ic.Anomaly.Kind, ic.Anomaly.Service, ic.Anomaly.Summary)
	}

	b.WriteString("\nRecent log records:\n")
	if len(ic.Records) == 0 {
		b.WriteString("- none\n")
	}
	for i, rec := range ic.Records {
		if i == maxPromptRecords {
			break
		}
		fmt.Fprintf(&b, "- %s [%s] %s: %s\n", rec.Timestamp.UTC().Format("2006-01-02T15:04:05Z"), rec.Level, rec.Service, rec.Message)
	}

	b.WriteString("\nSimilar past incidents:\n")
	if len(ic.History) == 0 {
		b.WriteString("- none\n")
	}
	for _, inc := range ic.History {
		fmt.Fprintf(&b, "- %s (%s): %s; root cause: %s; resolution: %s\n", inc.IncidentID, inc.Severity, inc.Description, inc.RootCause, inc.Resolution)
	}

	b.WriteString("\nService health:\n")
	if len(ic.Correlations) == 0 {
		b.WriteString("- none\n")
	}
	for _, row := range ic.Correlations {
		data, err := json.Marshal(row)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "- %s\n", data)
	}
	return b.String()
}
