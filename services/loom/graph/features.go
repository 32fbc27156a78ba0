// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// =============================================================================
// Component Feature Vectors
// =============================================================================

// featureWarmConcurrency bounds the parallel vector builds during Build.
// Vector construction is pure CPU work; a small pool keeps warm-up off the
// critical path for large kits without oversubscribing.
const featureWarmConcurrency = 8

// featureSpace defines the deterministic vector layout shared by every
// component of one graph build:
//
//	[ category one-hot | prop-name presence flags | co-occurrence weights ]
//
// Categories, prop names, and component slots are sorted at build time, so
// the same schema always yields the same vectors.
type featureSpace struct {
	categories []string // sorted distinct categories
	propNames  []string // sorted distinct prop names
	components []string // sorted lower-case component names
}

func newFeatureSpace(nodes map[string]*ComponentNode) *featureSpace {
	catSet := make(map[string]struct{})
	propSet := make(map[string]struct{})
	components := make([]string, 0, len(nodes))

	for key, node := range nodes {
		components = append(components, key)
		if node.Category != "" {
			catSet[node.Category] = struct{}{}
		}
		for _, p := range node.Props {
			propSet[strings.ToLower(p.Name)] = struct{}{}
		}
	}

	space := &featureSpace{
		categories: sortedKeys(catSet),
		propNames:  sortedKeys(propSet),
		components: components,
	}
	sort.Strings(space.components)
	return space
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// dim returns the total vector length.
func (s *featureSpace) dim() int {
	return len(s.categories) + len(s.propNames) + len(s.components)
}

// vectorFor builds the unit-normalized feature vector for one component.
func (s *featureSpace) vectorFor(node *ComponentNode, coOccur map[string]float64) []float32 {
	vec := make([]float32, s.dim())

	for i, cat := range s.categories {
		if node.Category == cat {
			vec[i] = 1
			break
		}
	}

	offset := len(s.categories)
	props := make(map[string]struct{}, len(node.Props))
	for _, p := range node.Props {
		props[strings.ToLower(p.Name)] = struct{}{}
	}
	for i, name := range s.propNames {
		if _, ok := props[name]; ok {
			vec[offset+i] = 1
		}
	}

	offset += len(s.propNames)
	for i, name := range s.components {
		if w, ok := coOccur[name]; ok {
			vec[offset+i] = float32(w)
		}
	}

	norm := l2Norm(vec)
	if norm == 0 {
		return vec
	}
	// Unit-normalize so cosine similarity reduces to a dot product.
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// warmFeatureVectors builds the per-component feature vectors in parallel.
//
// # Description
//
// Vectors encode category, declared props, and co-occurrence weights in a
// fixed layout. They only back the advisory Similarity method; resolution
// and classification never read them, so a warm failure degrades Similarity
// to zero rather than failing the build.
//
// # Thread Safety
//
// Called once from Build before the graph is published.
func (g *KnowledgeGraph) warmFeatureVectors(ctx context.Context) error {
	space := newFeatureSpace(g.nodes)

	var mu sync.Mutex
	vectors := make(map[string][]float32, len(g.nodes))

	eg, _ := errgroup.WithContext(ctx)
	eg.SetLimit(featureWarmConcurrency)

	for key, node := range g.nodes {
		key, node := key, node
		eg.Go(func() error {
			vec := space.vectorFor(node, g.coOccur[key])
			mu.Lock()
			vectors[key] = vec
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	g.features = vectors
	return nil
}

// Similarity returns the cosine similarity between two components' feature
// vectors in [0, 1].
//
// # Description
//
// Both terms pass through exact and synonym resolution first. Returns 0 when
// either term is unknown or when feature vectors were not warmed. Advisory
// only: useful for suggestion ranking, never for resolution decisions.
//
// # Thread Safety
//
// Safe for concurrent use.
func (g *KnowledgeGraph) Similarity(a, b string) float64 {
	nodeA, kindA := g.FindComponent(a)
	nodeB, kindB := g.FindComponent(b)
	if kindA == MatchNone || kindB == MatchNone {
		return 0
	}

	g.mu.RLock()
	vecA := g.features[strings.ToLower(nodeA.Name)]
	vecB := g.features[strings.ToLower(nodeB.Name)]
	g.mu.RUnlock()

	if vecA == nil || vecB == nil {
		return 0
	}
	// Vectors are unit-normalized at build time.
	return float64(dotProduct(vecA, vecB))
}

// l2Norm computes the L2 (Euclidean) norm of a float32 vector.
func l2Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// dotProduct computes the dot product of two float32 vectors.
// Mismatched lengths use the shorter.
func dotProduct(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
