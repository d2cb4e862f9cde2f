package capabilities

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/upb/llm-gateway/models"
	"github.com/upb/llm-gateway/services/providers"
)

func baseCapabilities() models.ModelCapabilities {
	return models.ModelCapabilities{
		Modality:        []string{"text"},
		ContextWindow:   128000,
		MaxOutputTokens: 8192,
		QualityTier:     models.QualityTierPremium,
		Supports: models.CapabilitySupports{
			Streaming:  true,
			Tools:      true,
			JSONSchema: true,
			Vision:     true,
		},
		Limits: &models.CapabilityLimits{RPM: 100},
	}
}

func TestMerge(t *testing.T) {
	t.Run("nil override returns base", func(t *testing.T) {
		base := baseCapabilities()
		assert.Equal(t, base, Merge(base, nil))
	})

	t.Run("present keys win, absent keys keep base", func(t *testing.T) {
		base := baseCapabilities()
		merged := Merge(base, &models.CapabilitiesOverride{
			Supports: map[models.Capability]bool{
				models.CapabilityJSONSchema: false,
				models.CapabilityAudioIn:    true,
			},
		})

		assert.True(t, merged.Supports.Streaming)
		assert.True(t, merged.Supports.Tools)
		assert.True(t, merged.Supports.Vision)
		assert.False(t, merged.Supports.JSONSchema)
		assert.True(t, merged.Supports.AudioIn)
		assert.Equal(t, base.ContextWindow, merged.ContextWindow)
		assert.Equal(t, base.QualityTier, merged.QualityTier)
	})

	t.Run("override limits replace base limits", func(t *testing.T) {
		merged := Merge(baseCapabilities(), &models.CapabilitiesOverride{
			Limits: &models.CapabilityLimits{TPM: 5000},
		})
		assert.Equal(t, &models.CapabilityLimits{TPM: 5000}, merged.Limits)
	})

	t.Run("override without limits clears them", func(t *testing.T) {
		merged := Merge(baseCapabilities(), &models.CapabilitiesOverride{})
		assert.Nil(t, merged.Limits)
	})

	t.Run("base is not mutated", func(t *testing.T) {
		base := baseCapabilities()
		_ = Merge(base, &models.CapabilitiesOverride{Supports: map[models.Capability]bool{models.CapabilityTools: false}})
		assert.True(t, base.Supports.Tools)
	})
}

func TestDeriveRequired(t *testing.T) {
	tests := []struct {
		name string
		req  *providers.Request
		want Required
	}{
		{
			name: "plain prompt needs nothing",
			req:  &providers.Request{Model: "m", Input: providers.Input{Prompt: "hi"}},
			want: Required{},
		},
		{
			name: "tools",
			req: &providers.Request{Model: "m", Generation: &providers.Generation{
				Tools: []providers.ToolSpec{{Name: "lookup"}},
			}},
			want: Required{models.CapabilityTools: true},
		},
		{
			name: "json schema response format",
			req: &providers.Request{Model: "m", Generation: &providers.Generation{
				ResponseFormat: &providers.ResponseFormat{Type: providers.ResponseFormatJSONSchema},
			}},
			want: Required{models.CapabilityJSONSchema: true},
		},
		{
			name: "text response format needs nothing",
			req: &providers.Request{Model: "m", Generation: &providers.Generation{
				ResponseFormat: &providers.ResponseFormat{Type: providers.ResponseFormatText},
			}},
			want: Required{},
		},
		{
			name: "stream",
			req:  &providers.Request{Model: "m", Stream: true},
			want: Required{models.CapabilityStreaming: true},
		},
		{
			name: "image part needs vision",
			req: &providers.Request{Model: "m", Input: providers.Input{Messages: []providers.Message{
				{Role: "user", Content: []providers.ContentPart{
					{Type: providers.ContentTypeText, Text: "what is this"},
					{Type: providers.ContentTypeImageURL, ImageURL: &providers.ImageURL{URL: "https://x/y.png"}},
				}},
			}}},
			want: Required{models.CapabilityVision: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveRequired(tt.req))
		})
	}
}

func TestSupports(t *testing.T) {
	effective := models.ModelCapabilities{Supports: models.CapabilitySupports{Streaming: true}}

	assert.True(t, Supports(effective, Required{}))
	assert.True(t, Supports(effective, Required{models.CapabilityStreaming: true}))
	assert.False(t, Supports(effective, Required{models.CapabilityTools: true}))

	// requirements explicitly marked false never block
	assert.True(t, Supports(effective, Required{models.CapabilityTools: false}))
}

func TestMissing(t *testing.T) {
	effective := models.ModelCapabilities{Supports: models.CapabilitySupports{Tools: true}}
	required := Required{
		models.CapabilityVision:    true,
		models.CapabilityTools:     true,
		models.CapabilityStreaming: true,
	}

	assert.Equal(t, []models.Capability{models.CapabilityStreaming, models.CapabilityVision}, Missing(effective, required))
}
