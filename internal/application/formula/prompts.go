package formula

import (
	"fmt"
	"strings"

	"github.com/formulab/v2/internal/domain/catalog"
	"github.com/formulab/v2/internal/domain/formula"
	"github.com/formulab/v2/internal/ports/inbound"
	"github.com/formulab/v2/internal/ports/outbound"
)

// CreateFormulaTool is the tool the model must call to propose a formula.
const CreateFormulaTool = "create_formula"

// createFormulaToolDef declares the create_formula schema. Ingredient fields
// are constrained to an enum of all current catalog names - the primary
// defense against invented ingredients. The model may still decorate names
// with qualifiers, which normalization handles downstream.
func createFormulaToolDef(cat *catalog.Catalog) outbound.ToolDef {
	names := cat.Names()

	itemSchema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"ingredient": map[string]any{
				"type": "string",
				"enum": names,
			},
			"amount": map[string]any{
				"type":        "integer",
				"description": "Dose in milligrams",
			},
			"unit": map[string]any{
				"type": "string",
				"enum": []string{"mg"},
			},
			"purpose": map[string]any{
				"type":        "string",
				"description": "One sentence on why this ingredient was chosen",
			},
		},
		"required": []string{"ingredient", "amount", "unit"},
	}

	return outbound.ToolDef{
		Name:        CreateFormulaTool,
		Description: "Propose a complete supplement formula from the approved ingredient catalog",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"bases": map[string]any{
					"type":        "array",
					"description": "System support blends forming the foundation of the formula",
					"items":       itemSchema,
				},
				"additions": map[string]any{
					"type":        "array",
					"description": "Individual ingredients targeting specific goals",
					"items":       itemSchema,
				},
				"total_mg": map[string]any{
					"type":        "integer",
					"description": "Sum of all ingredient amounts in milligrams",
				},
				"rationale": map[string]any{
					"type":        "string",
					"description": "Explanation of the formula design for the user",
				},
				"warnings": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Interaction or timing cautions the user should know",
				},
			},
			"required": []string{"bases", "additions", "total_mg", "rationale"},
		},
	}
}

func buildSystemPrompt(cat *catalog.Catalog, capsuleCount, capacityMg int) string {
	var b strings.Builder

	b.WriteString("You are a clinical formulation assistant. Design a personalized daily supplement formula for the user, then submit it with the create_formula tool.\n\n")
	b.WriteString("Rules:\n")
	fmt.Fprintf(&b, "- Use only ingredients from the approved catalog. Use their exact names, with no potency or source qualifiers.\n")
	fmt.Fprintf(&b, "- All amounts are integers in mg.\n")
	fmt.Fprintf(&b, "- The formula fills %d capsules of %dmg each, so target a total close to %dmg.\n",
		capsuleCount, capacityMg, capsuleCount*capacityMg)
	b.WriteString("- Include between 8 and 50 ingredients in total across bases and additions.\n")
	b.WriteString("- System support blends have fixed doses; individual ingredients must stay inside their allowed ranges.\n\n")

	b.WriteString("System support blends (fixed dose):\n")
	for _, e := range cat.SystemSupports() {
		fmt.Fprintf(&b, "- %s (%dmg): %s\n", e.Name, e.DoseMg, e.Description)
	}
	b.WriteString("\nIndividual ingredients:\n")
	for _, e := range cat.Individuals() {
		if e.FixedDose() {
			fmt.Fprintf(&b, "- %s (%dmg): %s\n", e.Name, e.DoseMg, e.Description)
		} else {
			fmt.Fprintf(&b, "- %s (%d-%dmg): %s\n", e.Name, e.DoseRangeMinMg, e.DoseRangeMaxMg, e.Description)
		}
	}

	return b.String()
}

func buildMessages(profile inbound.HealthProfile, history []inbound.ConversationMessage) []outbound.Message {
	messages := make([]outbound.Message, 0, len(history)+1)
	messages = append(messages, outbound.Message{
		Role:    outbound.RoleUser,
		Content: renderProfile(profile),
	})
	for _, m := range history {
		role := outbound.Role(m.Role)
		if role != outbound.RoleAssistant {
			role = outbound.RoleUser
		}
		messages = append(messages, outbound.Message{Role: role, Content: m.Content})
	}
	return messages
}

func renderProfile(p inbound.HealthProfile) string {
	var b strings.Builder
	b.WriteString("Health profile:\n")
	if p.Age > 0 {
		fmt.Fprintf(&b, "- Age: %d\n", p.Age)
	}
	if p.Sex != "" {
		fmt.Fprintf(&b, "- Sex: %s\n", p.Sex)
	}
	if len(p.Conditions) > 0 {
		fmt.Fprintf(&b, "- Conditions: %s\n", strings.Join(p.Conditions, ", "))
	}
	if len(p.Medications) > 0 {
		fmt.Fprintf(&b, "- Medications: %s\n", strings.Join(p.Medications, ", "))
	}
	if len(p.Goals) > 0 {
		fmt.Fprintf(&b, "- Goals: %s\n", strings.Join(p.Goals, ", "))
	}
	return b.String()
}

// correctiveMessage turns a rejection into feedback for the single bounded
// regeneration attempt.
func correctiveMessage(rej *formula.Rejection) outbound.Message {
	return outbound.Message{
		Role: outbound.RoleUser,
		Content: fmt.Sprintf(
			"The previous formula was rejected for these reasons:\n%s\n\nSubmit a corrected formula with the create_formula tool that fixes every violation.",
			rej.Summary()),
	}
}
