package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	PersonasChanged bool
	PersonaChanges  []PersonaDiff // per-persona diffs
	LogLevelChanged bool
	NewLogLevel     LogLevel
}

// PersonaDiff describes what changed for a single persona between two configs.
type PersonaDiff struct {
	ID                   string
	SystemPromptChanged   bool
	VoiceChanged          bool
	CategoryChanged       bool
	ReferenceOutfitsChanged bool
	Added                 bool
	Removed               bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart: persona
// personality/voice/reference-outfit edits and log level. Provider and
// server address changes require a process restart and are not diffed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldPersonas := make(map[string]*PersonaConfig, len(old.Personas))
	for i := range old.Personas {
		oldPersonas[old.Personas[i].ID] = &old.Personas[i]
	}
	newPersonas := make(map[string]*PersonaConfig, len(new.Personas))
	for i := range new.Personas {
		newPersonas[new.Personas[i].ID] = &new.Personas[i]
	}

	for id, oldP := range oldPersonas {
		newP, exists := newPersonas[id]
		if !exists {
			d.PersonaChanges = append(d.PersonaChanges, PersonaDiff{ID: id, Removed: true})
			d.PersonasChanged = true
			continue
		}
		pd := diffPersona(id, oldP, newP)
		if pd.SystemPromptChanged || pd.VoiceChanged || pd.CategoryChanged || pd.ReferenceOutfitsChanged {
			d.PersonaChanges = append(d.PersonaChanges, pd)
			d.PersonasChanged = true
		}
	}

	for id := range newPersonas {
		if _, exists := oldPersonas[id]; !exists {
			d.PersonaChanges = append(d.PersonaChanges, PersonaDiff{ID: id, Added: true})
			d.PersonasChanged = true
		}
	}

	return d
}

// diffPersona compares two persona configs with the same ID.
func diffPersona(id string, old, new *PersonaConfig) PersonaDiff {
	pd := PersonaDiff{ID: id}

	if old.SystemPrompt != new.SystemPrompt {
		pd.SystemPromptChanged = true
	}
	if old.VoiceID != new.VoiceID {
		pd.VoiceChanged = true
	}
	if old.Category != new.Category {
		pd.CategoryChanged = true
	}
	if !slices.EqualFunc(old.ReferenceOutfits, new.ReferenceOutfits, func(a, b ReferenceOutfitConfig) bool {
		return a.ID == b.ID && a.Name == b.Name && a.ImageURL == b.ImageURL
	}) {
		pd.ReferenceOutfitsChanged = true
	}

	return pd
}
