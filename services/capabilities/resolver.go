// Package capabilities merges variant capability overrides and checks
// request requirements against the effective result.
package capabilities

import (
	"github.com/upb/llm-gateway/models"
	"github.com/upb/llm-gateway/services/providers"
)

// Required is the set of capabilities a request needs
type Required map[models.Capability]bool

// Merge applies a variant override on top of the public model's capabilities.
// Supports keys present in the override win; limits are replaced wholesale.
func Merge(base models.ModelCapabilities, override *models.CapabilitiesOverride) models.ModelCapabilities {
	if override == nil {
		return base
	}

	merged := base
	merged.Modality = append([]string(nil), base.Modality...)
	for capability, value := range override.Supports {
		merged.Supports = merged.Supports.With(capability, value)
	}
	merged.Limits = override.Limits

	return merged
}

// DeriveRequired inspects the request for features that need capability support
func DeriveRequired(req *providers.Request) Required {
	required := Required{}

	if len(req.Tools()) > 0 {
		required[models.CapabilityTools] = true
	}
	if req.ResponseFormatType() == providers.ResponseFormatJSONSchema {
		required[models.CapabilityJSONSchema] = true
	}
	if req.Stream {
		required[models.CapabilityStreaming] = true
	}
	if hasImageInput(req) {
		required[models.CapabilityVision] = true
	}

	return required
}

func hasImageInput(req *providers.Request) bool {
	for _, msg := range req.Input.Messages {
		for _, part := range msg.Content {
			if part.Type == providers.ContentTypeImageURL {
				return true
			}
		}
	}
	return false
}

// Supports reports whether every required capability is available
func Supports(effective models.ModelCapabilities, required Required) bool {
	return len(Missing(effective, required)) == 0
}

// Missing lists the required capabilities the effective set lacks, in stable order
func Missing(effective models.ModelCapabilities, required Required) []models.Capability {
	var missing []models.Capability
	for _, capability := range models.AllCapabilities {
		if required[capability] && !effective.Supports.Has(capability) {
			missing = append(missing, capability)
		}
	}
	return missing
}
