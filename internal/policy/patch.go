package policy

import (
	"fmt"
	"time"

	"github.com/mbd888/trustline/internal/ledger"
)

// Patch is a partial policy edit. Nil fields are left untouched; the two
// nested maps merge key-by-key onto the current policy rather than
// replacing it wholesale.
type Patch struct {
	MinConfidence            *float64                 `json:"minConfidence,omitempty"`
	AllowedSources           *[]string                `json:"allowedSources,omitempty"`
	SourceTypeMultipliers    map[string]float64       `json:"sourceTypeMultipliers,omitempty"`
	EventOverrides           map[string]EventOverride `json:"eventOverrides,omitempty"`
	RequireVerifiedSensitive *bool                    `json:"requireVerifiedSensitive,omitempty"`
	MinSignalQuality         *float64                 `json:"minSignalQuality,omitempty"`
}

// Validate rejects out-of-range values with descriptive errors. These are
// caller configuration mistakes, surfaced synchronously and never stored.
func (patch *Patch) Validate() error {
	if patch.MinConfidence != nil && (*patch.MinConfidence < 0 || *patch.MinConfidence > 1) {
		return fmt.Errorf("minConfidence must be between 0 and 1, got %v", *patch.MinConfidence)
	}
	if patch.MinSignalQuality != nil && (*patch.MinSignalQuality < 0 || *patch.MinSignalQuality > 100) {
		return fmt.Errorf("minSignalQuality must be between 0 and 100, got %v", *patch.MinSignalQuality)
	}
	for sourceType, mult := range patch.SourceTypeMultipliers {
		if mult < 0 || mult > MaxSourceFactor {
			return fmt.Errorf("sourceTypeMultipliers[%q] must be between 0 and %v, got %v", sourceType, MaxSourceFactor, mult)
		}
	}
	for eventType, override := range patch.EventOverrides {
		if eventType == "" {
			return fmt.Errorf("eventOverrides key must not be empty")
		}
		if override.Multiplier != nil && (*override.Multiplier < 0 || *override.Multiplier > MaxEventMultiplier) {
			return fmt.Errorf("eventOverrides[%q].multiplier must be between 0 and %v, got %v", eventType, MaxEventMultiplier, *override.Multiplier)
		}
	}
	if patch.AllowedSources != nil {
		for i, s := range *patch.AllowedSources {
			if s == "" {
				return fmt.Errorf("allowedSources[%d] must not be empty", i)
			}
		}
	}
	return nil
}

// Apply merges the patch onto the current policy and returns the result.
// Top-level fields are replaced when set; SourceTypeMultipliers and
// EventOverrides merge per key. Direct edits clear the preset label since
// the stored policy no longer matches any preset.
func (patch *Patch) Apply(current *Policy, now time.Time) (*Policy, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	next := current.Clone()
	next.Preset = ""
	next.UpdatedAt = now

	if patch.MinConfidence != nil {
		next.MinConfidence = *patch.MinConfidence
	}
	if patch.AllowedSources != nil {
		next.AllowedSources = append([]string(nil), *patch.AllowedSources...)
	}
	if patch.RequireVerifiedSensitive != nil {
		next.RequireVerifiedSensitive = *patch.RequireVerifiedSensitive
	}
	if patch.MinSignalQuality != nil {
		next.MinSignalQuality = *patch.MinSignalQuality
	}

	if len(patch.SourceTypeMultipliers) > 0 {
		if next.SourceTypeMultipliers == nil {
			next.SourceTypeMultipliers = make(map[string]float64, len(patch.SourceTypeMultipliers))
		}
		for sourceType, mult := range patch.SourceTypeMultipliers {
			next.SourceTypeMultipliers[ledger.NormalizeKey(sourceType)] = mult
		}
	}

	if len(patch.EventOverrides) > 0 {
		if next.EventOverrides == nil {
			next.EventOverrides = make(map[string]EventOverride, len(patch.EventOverrides))
		}
		for eventType, override := range patch.EventOverrides {
			key := ledger.NormalizeKey(eventType)
			merged := next.EventOverrides[key]
			if override.Enabled != nil {
				b := *override.Enabled
				merged.Enabled = &b
			}
			if override.Multiplier != nil {
				f := *override.Multiplier
				merged.Multiplier = &f
			}
			next.EventOverrides[key] = merged
		}
	}

	return next, nil
}
