package engine

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RulesFile is the optional operator-tunable overlay for the built-in
// difficulty table and the pairing thresholds.
type RulesFile struct {
	Difficulties map[string]ProfileOverride `yaml:"difficulties"`
	Pairing      PairingOverride            `yaml:"pairing"`
}

type ProfileOverride struct {
	SkillLevel *int `yaml:"skill_level"`
	Depth      *int `yaml:"depth"`
	Threads    *int `yaml:"threads"`
	MoveTimeMS *int `yaml:"move_time_ms"`
}

type PairingOverride struct {
	BaseGap       *int `yaml:"base_gap"`
	WidenPerSec   *int `yaml:"widen_per_sec"`
	ForceAfterSec *int `yaml:"force_after_sec"`
}

// LoadRules reads the YAML overlay at path and applies the difficulty
// overrides onto the built-in table. Unknown difficulty names create
// new entries. An empty path is a no-op.
func LoadRules(path string) (*RulesFile, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	var rf RulesFile
	if err := yaml.Unmarshal(raw, &rf); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	applyOverrides(&rf)
	return &rf, nil
}

func applyOverrides(rf *RulesFile) {
	for name, ov := range rf.Difficulties {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		p := profiles[key]
		if ov.SkillLevel != nil {
			p.SkillLevel = *ov.SkillLevel
		}
		if ov.Depth != nil {
			p.Depth = *ov.Depth
		}
		if ov.Threads != nil {
			p.Threads = *ov.Threads
		}
		if ov.MoveTimeMS != nil {
			p.MoveTime = time.Duration(*ov.MoveTimeMS) * time.Millisecond
		}
		profiles[key] = p
	}
}
