// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"strings"

	"github.com/jeranaias/prism/internal/model"
)

// Accumulator turns provider deltas into cumulative chunks.
// strings.Builder avoids quadratic copying on long streams.
type Accumulator struct {
	text    strings.Builder
	sources []model.Source
	seen    map[string]bool
}

// Add appends delta and returns the cumulative chunk. When sources arrive
// with the delta, the chunk carries every distinct source seen so far;
// otherwise its Sources is nil.
func (a *Accumulator) Add(delta string, sources []model.Source) Chunk {
	a.text.WriteString(delta)
	return Chunk{Text: a.text.String(), Sources: a.merge(sources)}
}

// Text returns the text accumulated so far.
func (a *Accumulator) Text() string {
	return a.text.String()
}

// Sources returns every distinct source seen so far.
func (a *Accumulator) Sources() []model.Source {
	return append([]model.Source(nil), a.sources...)
}

func (a *Accumulator) merge(sources []model.Source) []model.Source {
	if len(sources) == 0 {
		return nil
	}
	if a.seen == nil {
		a.seen = make(map[string]bool)
	}
	for _, s := range sources {
		if s.URI == "" || a.seen[s.URI] {
			continue
		}
		a.seen[s.URI] = true
		a.sources = append(a.sources, s)
	}
	if len(a.sources) == 0 {
		return nil
	}
	return a.Sources()
}
