// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package settings

import (
	"fmt"
	"math"
	"time"

	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// DEFAULTS
// =============================================================================

const (
	DefaultTemperature      = 0.7
	DefaultMaxTokens        = 2500
	DefaultTopP             = 1.0
	DefaultFrequencyPenalty = 0.0
	DefaultPresencePenalty  = 0.0
	DefaultTimeoutSeconds   = 30
	DefaultWindowSize       = 10
	DefaultMaxSummaryLength = 200
	DefaultEnableSummary    = true
	DefaultSmartSelection   = true
	DefaultKeywordFiltering = false
)

// Limits applied to every numeric value, whichever layer it came from.
var (
	temperatureRange   = floatRange{0, 2, DefaultTemperature}
	topPRange          = floatRange{0, 1, DefaultTopP}
	penaltyRange       = floatRange{-2, 2, DefaultFrequencyPenalty}
	maxTokensRange     = intRange{1, 32000}
	timeoutRange       = intRange{5, 300}
	windowRange        = intRange{1, 50}
	summaryLengthRange = intRange{50, 1000}
)

// =============================================================================
// TYPES
// =============================================================================

// EffectiveSettings is the fully resolved configuration for one request.
// It is computed on demand and never persisted.
type EffectiveSettings struct {
	Temperature      float64
	MaxTokens        int
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
	TimeoutSeconds   int

	StreamingEnabled bool
	ContextEnabled   bool

	WindowSize       int
	EnableSummary    bool
	SmartSelection   bool
	KeywordFiltering bool
	MaxSummaryLength int
}

// Timeout returns TimeoutSeconds as a duration.
func (e EffectiveSettings) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// ContextSettings returns the context part in its persisted form.
func (e EffectiveSettings) ContextSettings() model.ContextSettings {
	return model.ContextSettings{
		EnableContext:    model.Ptr(e.ContextEnabled),
		WindowSize:       model.Ptr(e.WindowSize),
		EnableSummary:    model.Ptr(e.EnableSummary),
		SmartSelection:   model.Ptr(e.SmartSelection),
		KeywordFiltering: model.Ptr(e.KeywordFiltering),
		MaxSummaryLength: model.Ptr(e.MaxSummaryLength),
	}
}

// Overrides holds the transient user choices for the current session.
// A nil field means the user has not touched that setting.
type Overrides struct {
	Temperature      *float64 `toml:"temperature,omitempty"`
	MaxTokens        *int     `toml:"max_tokens,omitempty"`
	TopP             *float64 `toml:"top_p,omitempty"`
	FrequencyPenalty *float64 `toml:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `toml:"presence_penalty,omitempty"`
	TimeoutSeconds   *int     `toml:"timeout,omitempty"`

	Streaming *bool `toml:"streaming,omitempty"`

	EnableContext    *bool `toml:"enable_context,omitempty"`
	WindowSize       *int  `toml:"window_size,omitempty"`
	EnableSummary    *bool `toml:"enable_summary,omitempty"`
	SmartSelection   *bool `toml:"smart_selection,omitempty"`
	KeywordFiltering *bool `toml:"keyword_filtering,omitempty"`
	MaxSummaryLength *int  `toml:"max_summary_length,omitempty"`
}

// =============================================================================
// RESOLVE
// =============================================================================

// Resolve computes the effective settings. capability may be nil when no
// model is selected, in which case streaming and context are both off.
func Resolve(capability *model.ModelCapability, persisted model.ContextSettings, overrides Overrides) EffectiveSettings {
	var capStreaming, capContext bool
	var modelDefaults model.ModelCapability
	if capability != nil {
		capStreaming = capability.EnableStreaming
		capContext = capability.EnableContext
		modelDefaults = *capability
	}

	eff := EffectiveSettings{
		Temperature:      temperatureRange.clamp(firstFloat(DefaultTemperature, overrides.Temperature, modelDefaults.Temperature)),
		MaxTokens:        maxTokensRange.clamp(firstInt(DefaultMaxTokens, overrides.MaxTokens, modelDefaults.MaxTokens)),
		TopP:             topPRange.clamp(firstFloat(DefaultTopP, overrides.TopP, modelDefaults.TopP)),
		FrequencyPenalty: penaltyRange.clamp(firstFloat(DefaultFrequencyPenalty, overrides.FrequencyPenalty, modelDefaults.FreqPenalty)),
		PresencePenalty:  penaltyRange.clamp(firstFloat(DefaultPresencePenalty, overrides.PresencePenalty, modelDefaults.PresPenalty)),
		TimeoutSeconds:   timeoutRange.clamp(firstInt(DefaultTimeoutSeconds, overrides.TimeoutSeconds)),

		StreamingEnabled: capStreaming && firstBool(true, overrides.Streaming),
		ContextEnabled:   capContext && firstBool(true, overrides.EnableContext, persisted.EnableContext),

		WindowSize:       windowRange.clamp(firstInt(DefaultWindowSize, overrides.WindowSize, persisted.WindowSize)),
		MaxSummaryLength: summaryLengthRange.clamp(firstInt(DefaultMaxSummaryLength, overrides.MaxSummaryLength, persisted.MaxSummaryLength)),
	}

	if eff.ContextEnabled {
		eff.EnableSummary = firstBool(DefaultEnableSummary, overrides.EnableSummary, persisted.EnableSummary)
		eff.SmartSelection = firstBool(DefaultSmartSelection, overrides.SmartSelection, persisted.SmartSelection)
		eff.KeywordFiltering = firstBool(DefaultKeywordFiltering, overrides.KeywordFiltering, persisted.KeywordFiltering)
	}

	return eff
}

// =============================================================================
// HELPERS
// =============================================================================

func firstFloat(def float64, layers ...*float64) float64 {
	for _, v := range layers {
		if v != nil {
			return *v
		}
	}
	return def
}

func firstInt(def int, layers ...*int) int {
	for _, v := range layers {
		if v != nil {
			return *v
		}
	}
	return def
}

func firstBool(def bool, layers ...*bool) bool {
	for _, v := range layers {
		if v != nil {
			return *v
		}
	}
	return def
}

// floatRange bounds a numeric setting. NaN resolves to def.
type floatRange struct{ min, max, def float64 }

func (r floatRange) clamp(v float64) float64 {
	if math.IsNaN(v) {
		return r.def
	}
	if v < r.min {
		return r.min
	}
	if v > r.max {
		return r.max
	}
	return v
}

type intRange struct{ min, max int }

func (r intRange) clamp(v int) int {
	if v < r.min {
		return r.min
	}
	if v > r.max {
		return r.max
	}
	return v
}

func (r floatRange) contains(v float64) bool {
	return !math.IsNaN(v) && v >= r.min && v <= r.max
}

func (r intRange) contains(v int) bool {
	return v >= r.min && v <= r.max
}

// =============================================================================
// VALIDATION
// =============================================================================

// Problem is one standing override outside its allowed range.
type Problem struct {
	Key     string
	Message string
}

// Problems lists the numeric values in o that Resolve would have to clamp
// or replace. Config files use it to refuse such values at load time.
func (o Overrides) Problems() []Problem {
	var out []Problem
	checkFloat := func(key string, v *float64, r floatRange) {
		if v != nil && !r.contains(*v) {
			out = append(out, Problem{Key: key, Message: fmt.Sprintf("must be a number between %g and %g, got %v", r.min, r.max, *v)})
		}
	}
	checkInt := func(key string, v *int, r intRange) {
		if v != nil && !r.contains(*v) {
			out = append(out, Problem{Key: key, Message: fmt.Sprintf("must be between %d and %d, got %d", r.min, r.max, *v)})
		}
	}

	checkFloat("temperature", o.Temperature, temperatureRange)
	checkInt("max_tokens", o.MaxTokens, maxTokensRange)
	checkFloat("top_p", o.TopP, topPRange)
	checkFloat("frequency_penalty", o.FrequencyPenalty, penaltyRange)
	checkFloat("presence_penalty", o.PresencePenalty, penaltyRange)
	checkInt("timeout", o.TimeoutSeconds, timeoutRange)
	checkInt("window_size", o.WindowSize, windowRange)
	checkInt("max_summary_length", o.MaxSummaryLength, summaryLengthRange)
	return out
}
