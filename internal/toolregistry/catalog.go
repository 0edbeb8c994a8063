// Package toolregistry implements the Tool Registry (C10): the declarative
// tool catalog offered to the LLM and the dispatch logic the Conversation
// Orchestrator (C7) invokes on a `tool_calls` finish reason.
package toolregistry

import "github.com/auravox/core/pkg/types"

// GenerateStyleSuggestion is the tool name the stylist directive instructs
// the model to invoke on any visual-change intent (§4.7 step 3c).
const GenerateStyleSuggestion = "generate_style_suggestion"

// GetTrendingProducts is the tool name offered when the product-purchase
// feature flag is enabled.
const GetTrendingProducts = "get_trending_products"

var generateStyleSuggestionDef = types.ToolDefinition{
	Name:        GenerateStyleSuggestion,
	Description: "Generate a styled image of the user wearing a suggested outfit or style change.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"suggestion_prompt": map[string]any{
				"type":        "string",
				"description": "Description of the visual change to apply.",
			},
			"use_reference_outfit": map[string]any{
				"type":        "boolean",
				"description": "Whether to use one of the persona's reference outfits instead of free generation.",
			},
			"reference_outfit_index": map[string]any{
				"type":        "integer",
				"description": "Index into the persona's reference outfits, when use_reference_outfit is true.",
			},
		},
		"required": []string{"suggestion_prompt", "use_reference_outfit"},
	},
}

var getTrendingProductsDef = types.ToolDefinition{
	Name:        GetTrendingProducts,
	Description: "Fetch the current list of trending products for the storefront.",
	Parameters: map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	},
}

// Catalog returns the tool definitions to offer for persona and the given
// feature flags (§4.7 step 4).
func Catalog(persona *types.Persona, productPurchaseEnabled bool) []types.ToolDefinition {
	var tools []types.ToolDefinition
	if persona != nil && persona.Category == types.CategoryStylist {
		tools = append(tools, generateStyleSuggestionDef)
	}
	if productPurchaseEnabled {
		tools = append(tools, getTrendingProductsDef)
	}
	return tools
}
