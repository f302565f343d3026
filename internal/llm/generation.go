// Citizen flavor generation via Haiku.
package llm

import (
	"fmt"
	"strings"
)

const citySystem = `You are the chronicler of a living digital city — four districts of autonomous citizens who explore, gather, and hold small rituals. Write in warm, grounded prose. Do not break character or reference the simulation.`

// Backstory generates a short backstory for a citizen from its traits.
func (c *Client) Backstory(traits []string, voiceStyle string) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("LLM client not configured")
	}

	prompt := fmt.Sprintf(
		"Write a 2-3 sentence backstory for a citizen of the city. Traits: %s. Voice: %s. Mention how they came to the city and what draws them through its streets. Plain prose, no name, no quotes.",
		strings.Join(traits, ", "), voiceStyle)

	out, err := c.Complete(citySystem, prompt, 200)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// CitizenName generates a two-word luminous-sounding name.
func (c *Client) CitizenName(traits []string, voiceStyle string) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("LLM client not configured")
	}

	prompt := fmt.Sprintf(
		"Invent a single two-part name for a citizen of the city, in the style of AriaLight or ZephyrEcho. Traits: %s. Voice: %s. Reply with the name only.",
		strings.Join(traits, ", "), voiceStyle)

	out, err := c.Complete(citySystem, prompt, 20)
	if err != nil {
		return "", err
	}

	// The model occasionally adds quotes or trailing commentary.
	name := strings.TrimSpace(out)
	if i := strings.IndexByte(name, '\n'); i >= 0 {
		name = name[:i]
	}
	name = strings.Trim(name, `"'. `)
	if len(name) > 40 {
		return "", fmt.Errorf("implausible name %q", name)
	}
	return name, nil
}
