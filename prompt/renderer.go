// Package prompt assembles the system prompts that steer the agent
// model through a collection call.
//
// Prompts are plain text templates with {{variable}} placeholders.
// The renderer substitutes call-time variables (debtor name, amount,
// due date) and fails loudly on anything left unresolved, so a typo in
// a template never reaches a live call silently.
package prompt

import (
	"fmt"
	"strings"
)

// maxRenderPasses bounds recursive substitution when a variable's
// value itself contains placeholders.
const maxRenderPasses = 3

// Render substitutes {{key}} placeholders in templateText with vars.
// It returns an error if any placeholder remains unresolved.
func Render(templateText string, vars map[string]string) (string, error) {
	result := templateText

	for pass := 0; pass < maxRenderPasses; pass++ {
		changed := false
		for key, value := range vars {
			placeholder := "{{" + key + "}}"
			if strings.Contains(result, placeholder) {
				result = strings.ReplaceAll(result, placeholder, value)
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	if unresolved := findUnresolved(result); len(unresolved) > 0 {
		return "", fmt.Errorf("unresolved prompt placeholders: %v", unresolved)
	}
	return result, nil
}

// findUnresolved extracts remaining {{variable}} placeholders.
func findUnresolved(text string) []string {
	var placeholders []string
	for i := 0; i+3 < len(text); i++ {
		if text[i:i+2] != "{{" {
			continue
		}
		end := strings.Index(text[i+2:], "}}")
		if end < 0 {
			break
		}
		placeholders = append(placeholders, text[i:i+2+end+2])
		i += 2 + end + 1
	}
	return placeholders
}
