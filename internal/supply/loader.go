package supply

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/KevinKickass/CorrectorMux/internal/mux"
	"gopkg.in/yaml.v3"
)

// ChannelEntry is one row of the channel table. A null zero offset means
// the zero is unknown and the channel's group cannot be written. A missing
// limit falls back to the default.
type ChannelEntry struct {
	Index      int    `yaml:"index" json:"index"`
	Name       string `yaml:"name" json:"name"`
	ZeroOffset *int   `yaml:"zero_offset" json:"zero_offset"`
	Limit      *int   `yaml:"limit,omitempty" json:"limit,omitempty"`
}

type channelFile struct {
	Version  int            `yaml:"version" json:"version"`
	Channels []ChannelEntry `yaml:"channels" json:"channels"`
}

// LoadChannelFile reads and validates a YAML channel table.
func LoadChannelFile(path string, validator *Validator) ([]ChannelEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read channel table: %w", err)
	}
	return ParseChannelTable(data, validator)
}

// ParseChannelTable decodes YAML, validates it against the embedded schema
// and returns the entries.
func ParseChannelTable(data []byte, validator *Validator) ([]ChannelEntry, error) {
	// YAML -> generisches Objekt -> JSON, damit das Schema greift
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	asJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("channel table not representable as JSON: %w", err)
	}
	if err := validator.ValidateChannels(asJSON); err != nil {
		return nil, err
	}

	var table channelFile
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to unmarshal channel table: %w", err)
	}
	return table.Channels, nil
}

// Settings converts table entries into driver settings. Channels not in the
// table keep the driver defaults.
func Settings(entries []ChannelEntry) ([]mux.ChannelSettings, error) {
	settings := mux.DefaultSettings()
	seen := make(map[int]bool, len(entries))

	sorted := append([]ChannelEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	for _, e := range sorted {
		if e.Index < 0 || e.Index >= mux.ChannelCount {
			return nil, fmt.Errorf("channel index %d out of range", e.Index)
		}
		if seen[e.Index] {
			return nil, fmt.Errorf("duplicate channel index %d", e.Index)
		}
		seen[e.Index] = true

		s := mux.ChannelSettings{Name: e.Name, Limit: mux.Known(mux.DefaultChannelLimit)}
		if e.ZeroOffset != nil {
			s.ZeroOffset = mux.Known(*e.ZeroOffset)
		}
		if e.Limit != nil {
			s.Limit = mux.Known(*e.Limit)
		}
		settings[e.Index] = s
	}
	return settings, nil
}
