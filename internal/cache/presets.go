package cache

import "time"

// Preset names a TTL class used by cache consumers.
type Preset string

const (
	PresetRealtime  Preset = "realtime"
	PresetSession   Preset = "session"
	PresetResearch  Preset = "research"
	PresetDocuments Preset = "documents"
	PresetStatic    Preset = "static"
)

var presetTTLs = map[Preset]time.Duration{
	PresetRealtime:  30 * time.Second,
	PresetSession:   15 * time.Minute,
	PresetResearch:  time.Hour,
	PresetDocuments: 24 * time.Hour,
	PresetStatic:    7 * 24 * time.Hour,
}

// TTL returns the preset's time-to-live, or zero for an unknown preset.
func (p Preset) TTL() time.Duration {
	return presetTTLs[p]
}

// Options returns SetOptions with the preset TTL and the given tags.
func (p Preset) Options(tags ...string) SetOptions {
	return SetOptions{TTL: p.TTL(), Tags: tags}
}

// PresetTTL looks up a preset by name.
func PresetTTL(name string) (time.Duration, bool) {
	ttl, ok := presetTTLs[Preset(name)]
	return ttl, ok
}

// DocumentsTag marks any cached list or search over documents.
const DocumentsTag = "documents"

// DocumentTag is the tag carried by every entry derived from one document.
func DocumentTag(id string) string {
	return "document_" + id
}
