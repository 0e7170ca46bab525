package prompt

import (
	"encoding/json"
	"fmt"
)

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `You are a plant pathologist. Analyze the plant photo for diseases and health issues and return ONLY one valid JSON object (no markdown, no commentary, no code fences) with this exact structure:

{
  "plant_species": "<plant species>",
  "disease_detected": "<disease name or 'Healthy'>",
  "confidence": "<percentage like '85%'>",
  "severity": "<low|medium|high>",
  "recommendations": ["<action1>", "<action2>"],
  "plant_health": "<excellent|good|fair|poor|critical>",
  "extra_info": "<extra information about the plant, disease, or health>"
}

Order recommendations from most to least urgent. Stay on the topic of plants and plant care.`
}

// GetChatSystemPrompt is the instruction used for the plant-care assistant.
func GetChatSystemPrompt() string {
	return "You are a helpful assistant that can answer questions regarding plant diseases and health issues. You can also help with tasks related to plant care and maintenance. Ensure that you stay on the topic of plants and plant care."
}

// GetUserPrompt embeds the user supplied context as a JSON object.
func GetUserPrompt(plantType, plantSpecies, concerns string) string {
	ctx := map[string]string{
		"plant_type":           orUnknown(plantType),
		"plant_species":        orUnknown(plantSpecies),
		"symptoms_or_concerns": orUnknown(concerns),
	}
	b, _ := json.Marshal(ctx)
	return fmt.Sprintf("Analyze this plant image for diseases and health issues. Additional context provided by the user (as a JSON object): %s", b)
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
