package visibility

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TierRule holds the business constants of a tier.
type TierRule struct {
	Level         int     `yaml:"level" json:"level"`
	Capacity      int     `yaml:"capacity" json:"capacity"`
	AllowedLabels []Label `yaml:"allowed_labels" json:"allowed_labels"`
}

// Table maps each tier to its constants.
type Table map[Tier]TierRule

// DefaultTable returns the built-in tier table.
// Capacity 0 on NO_RELATION means the tier is never capacity checked.
func DefaultTable() Table {
	return Table{
		TierNoRelation:  {Level: 0, Capacity: 0, AllowedLabels: nil},
		TierFriend:      {Level: 1, Capacity: 20, AllowedLabels: []Label{LabelFriends}},
		TierCloseFriend: {Level: 2, Capacity: 5, AllowedLabels: []Label{LabelFriends, LabelCloseFriendsOnly}},
		TierSpecial:     {Level: 3, Capacity: 1, AllowedLabels: []Label{LabelFriends, LabelCloseFriendsOnly, LabelSpecialOnly}},
	}
}

// Validate checks that every tier is present, levels strictly increase
// along ConnectedTiers and each tier sees at least what the tier below sees.
func (t Table) Validate() error {
	noRel, ok := t[TierNoRelation]
	if !ok {
		return fmt.Errorf("tier table: missing %s", TierNoRelation)
	}
	if len(noRel.AllowedLabels) != 0 {
		return fmt.Errorf("tier table: %s must not allow any label", TierNoRelation)
	}

	prev := noRel
	prevTier := TierNoRelation
	for _, tier := range ConnectedTiers {
		rule, ok := t[tier]
		if !ok {
			return fmt.Errorf("tier table: missing %s", tier)
		}
		if rule.Level <= prev.Level {
			return fmt.Errorf("tier table: %s level %d must exceed %s level %d", tier, rule.Level, prevTier, prev.Level)
		}
		if rule.Capacity < 1 {
			return fmt.Errorf("tier table: %s capacity must be positive", tier)
		}
		for _, l := range prev.AllowedLabels {
			if !containsLabel(rule.AllowedLabels, l) {
				return fmt.Errorf("tier table: %s must allow %s allowed by %s", tier, l, prevTier)
			}
		}
		for _, l := range rule.AllowedLabels {
			if _, err := ParseLabel(string(l)); err != nil {
				return fmt.Errorf("tier table: %s: %w", tier, err)
			}
		}
		prev, prevTier = rule, tier
	}
	return nil
}

// tableFile is the on-disk shape of a tier override file:
//
//	tiers:
//	  FRIEND:
//	    capacity: 50
//	  CLOSE_FRIEND:
//	    capacity: 10
type tableFile struct {
	Tiers map[string]struct {
		Capacity *int `yaml:"capacity"`
	} `yaml:"tiers"`
}

// LoadTable returns DefaultTable with capacities overridden from the YAML
// file at path. An empty path returns the defaults.
func LoadTable(path string) (Table, error) {
	table := DefaultTable()
	if path == "" {
		return table, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tier table: %w", err)
	}
	return applyOverrides(table, data)
}

func applyOverrides(table Table, data []byte) (Table, error) {
	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse tier table: %w", err)
	}

	for name, override := range file.Tiers {
		tier, err := ParseTier(name)
		if err != nil {
			return nil, fmt.Errorf("tier table: %w", err)
		}
		if override.Capacity == nil {
			continue
		}
		rule := table[tier]
		rule.Capacity = *override.Capacity
		table[tier] = rule
	}

	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

func containsLabel(labels []Label, l Label) bool {
	for _, x := range labels {
		if x == l {
			return true
		}
	}
	return false
}
