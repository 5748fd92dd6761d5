package config

import (
	"fmt"

	"github.com/vovakirdan/lockstep/internal/core"
)

// SkillPreset is a named skill level accepted in config files and flags.
type SkillPreset string

const (
	SkillBaby      SkillPreset = "baby"
	SkillEasy      SkillPreset = "easy"
	SkillMedium    SkillPreset = "medium"
	SkillHard      SkillPreset = "hard"
	SkillNightmare SkillPreset = "nightmare"
)

var skillPresets = []SkillPreset{SkillBaby, SkillEasy, SkillMedium, SkillHard, SkillNightmare}

// ValidSkillPresets returns all preset names in ascending difficulty.
func ValidSkillPresets() []string {
	out := make([]string, len(skillPresets))
	for i, p := range skillPresets {
		out[i] = string(p)
	}
	return out
}

// ParseSkill converts a preset name or a digit 0-4 into a core.Skill.
func ParseSkill(s string) (core.Skill, error) {
	if s == "" {
		return core.SkillMedium, nil
	}
	for i, p := range skillPresets {
		if string(p) == s {
			return core.Skill(i), nil
		}
	}
	if len(s) == 1 && s[0] >= '0' && s[0] <= '4' {
		return core.Skill(s[0] - '0'), nil
	}
	return 0, fmt.Errorf("config: unknown skill %q (valid: %v)", s, ValidSkillPresets())
}

// SkillName returns the preset name for a skill level.
func SkillName(s core.Skill) string {
	if int(s) >= len(skillPresets) {
		return fmt.Sprintf("skill%d", s)
	}
	return string(skillPresets[s])
}
