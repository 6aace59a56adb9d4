// Package tracks indexes track settings by key, label, and alias so free-form
// form answers can be mapped to canonical track keys.
package tracks

import (
	"regexp"
	"slices"
	"strings"

	"intake/internal/state"
	"intake/internal/textutil"
)

// Unspecified is the placeholder track for rows whose selection is blank and
// cannot be defaulted. It never resolves, so such jobs block for review.
const Unspecified = "unspecified"

var selectionSeparators = regexp.MustCompile(`\s*(?:,|;|/|&|\+|\n|\band\b)\s*`)

// Registry is an immutable index over a set of track settings.
type Registry struct {
	tracks []state.TrackSettings
	byName map[string]string
}

// New builds a registry. Earlier tracks win name collisions.
func New(settings []state.TrackSettings) *Registry {
	r := &Registry{
		tracks: slices.Clone(settings),
		byName: make(map[string]string, len(settings)*3),
	}
	for _, track := range r.tracks {
		names := append([]string{track.Key, track.Label}, track.Aliases...)
		for _, name := range names {
			key := textutil.Key(name)
			if key == "" {
				continue
			}
			if _, taken := r.byName[key]; !taken {
				r.byName[key] = track.Key
			}
		}
	}
	return r
}

// FromDocument builds a registry over the document's track settings.
func FromDocument(doc *state.Document) *Registry {
	return New(doc.Tracks)
}

// Resolve maps a key, label, or alias to the canonical track key.
func (r *Registry) Resolve(name string) (string, bool) {
	key, ok := r.byName[textutil.Key(name)]
	return key, ok
}

// Get returns the settings for a canonical key or any name resolving to one.
func (r *Registry) Get(name string) (state.TrackSettings, bool) {
	key, ok := r.Resolve(name)
	if !ok {
		return state.TrackSettings{}, false
	}
	for _, track := range r.tracks {
		if track.Key == key {
			return track, true
		}
	}
	return state.TrackSettings{}, false
}

// Label returns the display label for a track, falling back to a title-cased key.
func (r *Registry) Label(name string) string {
	if track, ok := r.Get(name); ok && track.Label != "" && track.Label != track.Key {
		return track.Label
	}
	if name == "" {
		return ""
	}
	return textutil.Title(strings.ReplaceAll(name, "_", " "))
}

// Keys returns canonical keys in configuration order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.tracks))
	for _, track := range r.tracks {
		keys = append(keys, track.Key)
	}
	return keys
}

// Len reports the number of tracks.
func (r *Registry) Len() int {
	return len(r.tracks)
}

// Classify maps a track selection answer such as "Tester, Builder" to track
// keys in answer order. Pieces that match no track are returned as their
// normalized text so they surface as unresolved tracks instead of being
// dropped. A blank answer maps to the only track when exactly one exists.
func (r *Registry) Classify(selection string) []string {
	selection = strings.TrimSpace(selection)
	if selection == "" {
		if len(r.tracks) == 1 {
			return []string{r.tracks[0].Key}
		}
		return []string{Unspecified}
	}
	if key, ok := r.Resolve(selection); ok {
		return []string{key}
	}

	var out []string
	add := func(value string) {
		if value != "" && !slices.Contains(out, value) {
			out = append(out, value)
		}
	}
	for _, piece := range selectionSeparators.Split(selection, -1) {
		normalized := textutil.Key(piece)
		if normalized == "" {
			continue
		}
		if key, ok := r.Resolve(normalized); ok {
			add(key)
			continue
		}
		add(normalized)
	}
	if len(out) == 0 {
		return []string{Unspecified}
	}
	return out
}
