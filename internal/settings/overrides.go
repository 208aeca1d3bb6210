// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package settings

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/jeranaias/rigchat/internal/model"
)

// ErrUnknownKey is returned by Set for a key that is not a setting.
var ErrUnknownKey = errors.New("unknown setting")

// ErrNotFinite is returned by Set for NaN or an infinity.
var ErrNotFinite = errors.New("value must be a finite number")

// Feature names a boolean setting the user can switch on or off.
type Feature int

const (
	FeatureStreaming Feature = iota
	FeatureContext
	FeatureSummary
	FeatureSmartSelection
	FeatureKeywordFiltering
)

// String returns the setting key of the feature.
func (f Feature) String() string {
	switch f {
	case FeatureStreaming:
		return "streaming"
	case FeatureContext:
		return "enable_context"
	case FeatureSummary:
		return "enable_summary"
	case FeatureSmartSelection:
		return "smart_selection"
	case FeatureKeywordFiltering:
		return "keyword_filtering"
	default:
		return fmt.Sprintf("feature(%d)", int(f))
	}
}

// dependsOnContext reports whether the feature is meaningless without context.
func (f Feature) dependsOnContext() bool {
	return f == FeatureSummary || f == FeatureSmartSelection || f == FeatureKeywordFiltering
}

// Toggle returns o with feature f set to on. The second result is false when
// the capability ceiling forbids the change; o is then returned unchanged.
// A refused toggle is not an error.
func (o Overrides) Toggle(f Feature, on bool, capability *model.ModelCapability, persisted model.ContextSettings) (Overrides, bool) {
	if on {
		switch {
		case f == FeatureStreaming && (capability == nil || !capability.EnableStreaming):
			return o, false
		case f == FeatureContext && (capability == nil || !capability.EnableContext):
			return o, false
		case f.dependsOnContext() && !Resolve(capability, persisted, o).ContextEnabled:
			return o, false
		}
	} else if f.dependsOnContext() && !Resolve(capability, persisted, o).ContextEnabled {
		// Already forced off.
		return o, false
	}

	return o.With(f, on), true
}

// With returns o with feature f set to on, without any capability check.
func (o Overrides) With(f Feature, on bool) Overrides {
	out := o.Clone()
	switch f {
	case FeatureStreaming:
		out.Streaming = model.Ptr(on)
	case FeatureContext:
		out.EnableContext = model.Ptr(on)
	case FeatureSummary:
		out.EnableSummary = model.Ptr(on)
	case FeatureSmartSelection:
		out.SmartSelection = model.Ptr(on)
	case FeatureKeywordFiltering:
		out.KeywordFiltering = model.Ptr(on)
	}
	return out
}

// Clone returns a copy that shares no pointers with o.
func (o Overrides) Clone() Overrides {
	return Overrides{
		Temperature:      clonePtr(o.Temperature),
		MaxTokens:        clonePtr(o.MaxTokens),
		TopP:             clonePtr(o.TopP),
		FrequencyPenalty: clonePtr(o.FrequencyPenalty),
		PresencePenalty:  clonePtr(o.PresencePenalty),
		TimeoutSeconds:   clonePtr(o.TimeoutSeconds),
		Streaming:        clonePtr(o.Streaming),
		EnableContext:    clonePtr(o.EnableContext),
		WindowSize:       clonePtr(o.WindowSize),
		EnableSummary:    clonePtr(o.EnableSummary),
		SmartSelection:   clonePtr(o.SmartSelection),
		KeywordFiltering: clonePtr(o.KeywordFiltering),
		MaxSummaryLength: clonePtr(o.MaxSummaryLength),
	}
}

// Merge returns o with every field set in top replacing the field in o.
func (o Overrides) Merge(top Overrides) Overrides {
	out := o.Clone()
	top = top.Clone()
	if top.Temperature != nil {
		out.Temperature = top.Temperature
	}
	if top.MaxTokens != nil {
		out.MaxTokens = top.MaxTokens
	}
	if top.TopP != nil {
		out.TopP = top.TopP
	}
	if top.FrequencyPenalty != nil {
		out.FrequencyPenalty = top.FrequencyPenalty
	}
	if top.PresencePenalty != nil {
		out.PresencePenalty = top.PresencePenalty
	}
	if top.TimeoutSeconds != nil {
		out.TimeoutSeconds = top.TimeoutSeconds
	}
	if top.Streaming != nil {
		out.Streaming = top.Streaming
	}
	if top.EnableContext != nil {
		out.EnableContext = top.EnableContext
	}
	if top.WindowSize != nil {
		out.WindowSize = top.WindowSize
	}
	if top.EnableSummary != nil {
		out.EnableSummary = top.EnableSummary
	}
	if top.SmartSelection != nil {
		out.SmartSelection = top.SmartSelection
	}
	if top.KeywordFiltering != nil {
		out.KeywordFiltering = top.KeywordFiltering
	}
	if top.MaxSummaryLength != nil {
		out.MaxSummaryLength = top.MaxSummaryLength
	}
	return out
}

// =============================================================================
// KEY/VALUE ACCESS
// =============================================================================

var featureKeys = map[string]Feature{
	"streaming":         FeatureStreaming,
	"enable_context":    FeatureContext,
	"enable_summary":    FeatureSummary,
	"smart_selection":   FeatureSmartSelection,
	"keyword_filtering": FeatureKeywordFiltering,
}

var numericKeys = []string{
	"temperature", "max_tokens", "top_p", "frequency_penalty",
	"presence_penalty", "timeout", "window_size", "max_summary_length",
}

// Keys returns every key accepted by Set, sorted.
func Keys() []string {
	keys := append([]string(nil), numericKeys...)
	for k := range featureKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Change is one parsed key/value setting.
type Change struct {
	// Delta holds the new numeric value; unset for features.
	Delta Overrides

	IsFeature bool
	Feature   Feature
	On        bool
}

// Parse turns a key and a textual value into a Change.
func Parse(key, value string) (Change, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	value = strings.TrimSpace(value)

	if f, ok := featureKeys[key]; ok {
		on, err := parseBool(value)
		if err != nil {
			return Change{}, fmt.Errorf("%s: %w", key, err)
		}
		return Change{IsFeature: true, Feature: f, On: on}, nil
	}

	var d Overrides
	switch key {
	case "temperature", "top_p", "frequency_penalty", "presence_penalty":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return Change{}, fmt.Errorf("%s: %w", key, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Change{}, fmt.Errorf("%s: %w", key, ErrNotFinite)
		}
		switch key {
		case "temperature":
			d.Temperature = &v
		case "top_p":
			d.TopP = &v
		case "frequency_penalty":
			d.FrequencyPenalty = &v
		case "presence_penalty":
			d.PresencePenalty = &v
		}
	case "max_tokens", "timeout", "window_size", "max_summary_length":
		v, err := strconv.Atoi(value)
		if err != nil {
			return Change{}, fmt.Errorf("%s: %w", key, err)
		}
		switch key {
		case "max_tokens":
			d.MaxTokens = &v
		case "timeout":
			d.TimeoutSeconds = &v
		case "window_size":
			d.WindowSize = &v
		case "max_summary_length":
			d.MaxSummaryLength = &v
		}
	default:
		return Change{}, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return Change{Delta: d}, nil
}

// Set parses value and applies it to the setting named key. Boolean features
// go through Toggle, so applied is false when the capability refuses them.
func (o Overrides) Set(key, value string, capability *model.ModelCapability, persisted model.ContextSettings) (out Overrides, applied bool, err error) {
	ch, err := Parse(key, value)
	if err != nil {
		return o, false, err
	}
	if ch.IsFeature {
		out, applied = o.Toggle(ch.Feature, ch.On, capability, persisted)
		return out, applied, nil
	}
	return o.Merge(ch.Delta), true, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "yes", "y", "enable", "enabled":
		return true, nil
	case "off", "no", "n", "disable", "disabled":
		return false, nil
	}
	return strconv.ParseBool(s)
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
