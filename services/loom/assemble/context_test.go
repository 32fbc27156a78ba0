// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assemble

import (
	"math"
	"testing"

	"github.com/AleutianAI/Loom/services/loom/entities"
	"github.com/AleutianAI/Loom/services/loom/intent"
	"github.com/AleutianAI/Loom/services/loom/tokenizer"
)

// =============================================================================
// Helpers
// =============================================================================

func ent(t entities.EntityType, value string, conf float64) entities.Entity {
	return entities.Entity{Type: t, Value: value, Confidence: conf, Source: "test"}
}

func tokensOf(original string, normalized ...string) *tokenizer.Result {
	return &tokenizer.Result{Original: original, Words: normalized, Normalized: normalized}
}

func issueCodes(issues []Issue) []string {
	codes := make([]string, 0, len(issues))
	for _, is := range issues {
		codes = append(codes, is.Code)
	}
	return codes
}

// =============================================================================
// Build and Coverage
// =============================================================================

func TestBuild_PopulatesContext(t *testing.T) {
	toks := tokensOf("a large button", "large", "button")
	in := intent.Intent{Type: intent.CreateComponent, Confidence: 0.9}
	ents := []entities.Entity{
		ent(entities.TypeComponent, "button", 1.0),
		ent(entities.TypeModifier, "lg", 1.0),
	}

	pc := Build("req-1", toks, nil, in, ents, []string{"button", "card"})

	if pc.RequestID != "req-1" {
		t.Errorf("RequestID = %q, want req-1", pc.RequestID)
	}
	if pc.Raw != "a large button" {
		t.Errorf("Raw = %q, want the tokenizer original", pc.Raw)
	}
	if pc.Intent.Type != intent.CreateComponent {
		t.Errorf("Intent.Type = %q, want create_component", pc.Intent.Type)
	}
	if len(pc.Entities) != 2 {
		t.Fatalf("Entities = %d, want 2", len(pc.Entities))
	}
	if pc.Coverage != 1.0 {
		t.Errorf("Coverage = %v, want 1.0 (2 mapped over 2 normalized)", pc.Coverage)
	}
	if len(pc.AvailableComponents) != 2 {
		t.Errorf("AvailableComponents = %v, want two names", pc.AvailableComponents)
	}
}

func TestBuild_CopiesEntitySlice(t *testing.T) {
	ents := []entities.Entity{ent(entities.TypeComponent, "button", 1.0)}
	pc := Build("req-1", tokensOf("button", "button"), nil, intent.Intent{}, ents, nil)

	ents[0].Value = "mutated"
	if pc.Entities[0].Value != "button" {
		t.Error("Build shares the caller's entity slice; it must copy")
	}
}

func TestBuild_NilTokens(t *testing.T) {
	pc := Build("req-1", nil, nil, intent.Intent{Type: intent.Query}, nil, nil)
	if pc == nil {
		t.Fatal("Build returned nil")
	}
	if pc.Raw != "" || pc.Coverage != 0 {
		t.Errorf("nil tokens: Raw=%q Coverage=%v, want empty and 0", pc.Raw, pc.Coverage)
	}
}

func TestCoverage_CountsEntityFamilies(t *testing.T) {
	ents := []entities.Entity{
		ent(entities.TypeComponent, "card", 1.0),
		ent(entities.TypeComponent, "button", 1.0),
		ent(entities.TypeModifier, "primary", 1.0),
		ent(entities.TypeQuantity, "3", 1.0),
		ent(entities.TypeLayout, "grid", 0.9),
		ent(entities.TypeProp, "icon", 0.9),
	}
	// 2 components + 1 modifier + 1 quantity + 1 layout + 1 prop = 6
	got := Coverage(ents, 8)
	if math.Abs(got-0.75) > 1e-12 {
		t.Errorf("Coverage = %v, want 0.75", got)
	}
}

func TestCoverage_QuantityAndLayoutCountOnce(t *testing.T) {
	ents := []entities.Entity{
		ent(entities.TypeQuantity, "2", 1.0),
		ent(entities.TypeLayout, "columns=3", 0.9),
		ent(entities.TypeLayout, "grid", 0.9),
	}
	// Layout maps one token no matter how many layout entities exist.
	got := Coverage(ents, 4)
	if math.Abs(got-0.5) > 1e-12 {
		t.Errorf("Coverage = %v, want 0.5", got)
	}
}

func TestCoverage_ClampsToOne(t *testing.T) {
	ents := []entities.Entity{
		ent(entities.TypeComponent, "button", 1.0),
		ent(entities.TypeModifier, "lg", 1.0),
		ent(entities.TypeModifier, "primary", 1.0),
	}
	if got := Coverage(ents, 2); got != 1.0 {
		t.Errorf("Coverage = %v, want clamped 1.0", got)
	}
}

func TestCoverage_EmptyNormalizedStream(t *testing.T) {
	ents := []entities.Entity{ent(entities.TypeComponent, "button", 1.0)}
	got := Coverage(ents, 0)
	if got != 0 {
		t.Errorf("Coverage = %v, want 0 for an empty stream", got)
	}
	if math.IsNaN(got) {
		t.Error("Coverage produced NaN")
	}
}

// =============================================================================
// Validate
// =============================================================================

func TestValidate_CleanContext(t *testing.T) {
	pc := Build("req-1", tokensOf("button", "button"),
		nil,
		intent.Intent{Type: intent.CreateComponent, Confidence: 0.9},
		[]entities.Entity{ent(entities.TypeComponent, "button", 1.0)},
		nil)
	if issues := Validate(pc); len(issues) != 0 {
		t.Errorf("Validate = %v, want no issues", issueCodes(issues))
	}
}

func TestValidate_NoEntities(t *testing.T) {
	pc := Build("req-1", tokensOf("hmm", "hmm"), nil, intent.Intent{Type: intent.Query}, nil, nil)
	issues := Validate(pc)
	if len(issues) != 1 || issues[0].Code != IssueNoEntities {
		t.Errorf("Validate = %v, want [%s]", issueCodes(issues), IssueNoEntities)
	}
}

func TestValidate_CreateIntentsNeedAComponent(t *testing.T) {
	for _, typ := range []string{intent.CreateComponent, intent.CreateLayout, intent.CreatePage} {
		pc := Build("req-1", tokensOf("x", "x"), nil,
			intent.Intent{Type: typ},
			[]entities.Entity{ent(entities.TypeModifier, "lg", 1.0), ent(entities.TypeLayout, "grid", 0.9)},
			nil)
		found := false
		for _, is := range Validate(pc) {
			if is.Code == IssueMissingComponent {
				found = true
			}
		}
		if !found {
			t.Errorf("intent %s without a component entity reported no %s", typ, IssueMissingComponent)
		}
	}
}

func TestValidate_CreateLayoutNeedsALayoutEntity(t *testing.T) {
	pc := Build("req-1", tokensOf("x", "x"), nil,
		intent.Intent{Type: intent.CreateLayout},
		[]entities.Entity{ent(entities.TypeComponent, "grid", 1.0)},
		nil)
	issues := Validate(pc)
	if len(issues) != 1 || issues[0].Code != IssueMissingLayout {
		t.Errorf("Validate = %v, want [%s]", issueCodes(issues), IssueMissingLayout)
	}
}

func TestValidate_LayoutRuleOnlyForCreateLayout(t *testing.T) {
	pc := Build("req-1", tokensOf("x", "x"), nil,
		intent.Intent{Type: intent.Modify},
		[]entities.Entity{ent(entities.TypeComponent, "button", 1.0)},
		nil)
	if issues := Validate(pc); len(issues) != 0 {
		t.Errorf("modify without layout entity: Validate = %v, want none", issueCodes(issues))
	}
}

func TestValidate_NilContext(t *testing.T) {
	issues := Validate(nil)
	if len(issues) != 1 || issues[0].Code != IssueNilContext {
		t.Errorf("Validate(nil) = %v, want [%s]", issueCodes(issues), IssueNilContext)
	}
}

// =============================================================================
// BlendConfidence
// =============================================================================

func TestBlendConfidence_WeightsAllThreeSignals(t *testing.T) {
	ents := []entities.Entity{
		ent(entities.TypeComponent, "button", 1.0),
		ent(entities.TypeModifier, "lg", 0.8),
	}
	// 0.4*0.9 + 0.4*0.9 + 0.2*0.5 = 0.82
	got := BlendConfidence(0.9, ents, 0.5)
	if math.Abs(got-0.82) > 1e-12 {
		t.Errorf("BlendConfidence = %v, want 0.82", got)
	}
}

func TestBlendConfidence_NoEntitiesUsesFloor(t *testing.T) {
	// 0.4*0.5 + 0.4*0.2 + 0.2*0 = 0.28
	got := BlendConfidence(0.5, nil, 0)
	if math.Abs(got-0.28) > 1e-12 {
		t.Errorf("BlendConfidence = %v, want 0.28", got)
	}
}

func TestBlendConfidence_PerfectSignals(t *testing.T) {
	ents := []entities.Entity{ent(entities.TypeComponent, "button", 1.0)}
	if got := BlendConfidence(1.0, ents, 1.0); math.Abs(got-1.0) > 1e-12 {
		t.Errorf("BlendConfidence = %v, want 1.0", got)
	}
}

// =============================================================================
// Merge and Clone
// =============================================================================

func TestMerge_AppendsNewEntities(t *testing.T) {
	base := Build("req-1", tokensOf("card with button", "card", "button"),
		nil,
		intent.Intent{Type: intent.CreateComponent, Confidence: 0.6},
		[]entities.Entity{ent(entities.TypeComponent, "card", 1.0)},
		nil)
	overlay := &ProcessingContext{
		Entities: []entities.Entity{
			ent(entities.TypeComponent, "card", 0.8), // duplicate, dropped
			ent(entities.TypeComponent, "button", 0.9),
		},
	}

	merged := Merge(base, overlay)
	if len(merged.Entities) != 2 {
		t.Fatalf("merged entities = %d, want 2 (duplicate dropped)", len(merged.Entities))
	}
	if merged.Entities[1].Value != "button" {
		t.Errorf("appended entity = %q, want button", merged.Entities[1].Value)
	}
	// Base duplicate wins: confidence stays 1.0.
	if merged.Entities[0].Confidence != 1.0 {
		t.Errorf("base entity confidence = %v, want 1.0", merged.Entities[0].Confidence)
	}
	if len(base.Entities) != 1 {
		t.Error("Merge mutated the base context")
	}
}

func TestMerge_OverlayIntentReplacesBase(t *testing.T) {
	base := Build("req-1", tokensOf("x", "x"), nil,
		intent.Intent{Type: intent.CreateComponent, Confidence: 0.5}, nil, nil)
	overlay := &ProcessingContext{Intent: intent.Intent{Type: intent.Combine, Confidence: 0.85}}

	merged := Merge(base, overlay)
	if merged.Intent.Type != intent.Combine || merged.Intent.Confidence != 0.85 {
		t.Errorf("merged intent = %+v, want the overlay's", merged.Intent)
	}
	if base.Intent.Type != intent.CreateComponent {
		t.Error("Merge mutated the base intent")
	}
}

func TestMerge_EmptyOverlayIntentKeepsBase(t *testing.T) {
	base := Build("req-1", tokensOf("x", "x"), nil,
		intent.Intent{Type: intent.Query, Confidence: 0.7}, nil, nil)
	merged := Merge(base, &ProcessingContext{})
	if merged.Intent.Type != intent.Query {
		t.Errorf("merged intent = %q, want the base's query", merged.Intent.Type)
	}
}

func TestMerge_RecomputesCoverage(t *testing.T) {
	base := Build("req-1", tokensOf("large card with button", "large", "card", "button"),
		nil,
		intent.Intent{Type: intent.CreateComponent},
		[]entities.Entity{ent(entities.TypeComponent, "card", 1.0)},
		nil)
	if math.Abs(base.Coverage-1.0/3.0) > 1e-12 {
		t.Fatalf("base coverage = %v, want 1/3", base.Coverage)
	}

	overlay := &ProcessingContext{Entities: []entities.Entity{
		ent(entities.TypeComponent, "button", 0.9),
		ent(entities.TypeModifier, "lg", 0.9),
	}}
	merged := Merge(base, overlay)
	if merged.Coverage != 1.0 {
		t.Errorf("merged coverage = %v, want 1.0 after three mapped tokens", merged.Coverage)
	}
}

func TestMerge_NilInputs(t *testing.T) {
	if Merge(nil, &ProcessingContext{}) != nil {
		t.Error("Merge(nil, overlay) should be nil")
	}
	base := Build("req-1", tokensOf("x", "x"), nil, intent.Intent{Type: intent.Query}, nil, nil)
	merged := Merge(base, nil)
	if merged == nil || merged == base {
		t.Error("Merge(base, nil) should clone the base")
	}
}

func TestClone_IsIndependent(t *testing.T) {
	pc := Build("req-1", tokensOf("button", "button"), nil,
		intent.Intent{Type: intent.CreateComponent},
		[]entities.Entity{ent(entities.TypeComponent, "button", 1.0)},
		[]string{"button"})

	cp := pc.Clone()
	cp.Entities[0].Value = "changed"
	cp.AvailableComponents[0] = "changed"
	if pc.Entities[0].Value != "button" || pc.AvailableComponents[0] != "button" {
		t.Error("Clone shares slices with the original")
	}

	var nilCtx *ProcessingContext
	if nilCtx.Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}
