package tools

import (
	"context"
	"fmt"

	"agentgate/internal/domain"
)

func weatherTool() Tool {
	return Tool{
		Definition: domain.ToolDefinition{
			Name:        "get_weather",
			Description: "Get the weather for a given location.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"location": map[string]interface{}{
						"type":        "string",
						"description": "The location to get the weather for.",
					},
				},
				"required": []string{"location"},
			},
		},
		Run: func(_ context.Context, args map[string]interface{}) (string, error) {
			location := stringArg(args, "location")
			return fmt.Sprintf("The weather for %s is 70 degrees.", location), nil
		},
	}
}
