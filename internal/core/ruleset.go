package core

import "fmt"

// GameMode selects cooperative or competitive play.
type GameMode uint8

const (
	ModeCoop GameMode = iota
	ModeDeathmatch
	ModeAltDeath
)

// String returns a human-readable name for the mode.
func (m GameMode) String() string {
	switch m {
	case ModeCoop:
		return "coop"
	case ModeDeathmatch:
		return "deathmatch"
	case ModeAltDeath:
		return "altdeath"
	default:
		return "unknown"
	}
}

// ParseGameMode converts a config/CLI string into a GameMode.
func ParseGameMode(s string) (GameMode, error) {
	switch s {
	case "coop", "":
		return ModeCoop, nil
	case "deathmatch", "dm":
		return ModeDeathmatch, nil
	case "altdeath":
		return ModeAltDeath, nil
	}
	return 0, fmt.Errorf("core: unknown game mode %q", s)
}

// Skill is the difficulty level, 0 (baby) through 4 (nightmare).
type Skill uint8

const (
	SkillBaby Skill = iota
	SkillEasy
	SkillMedium
	SkillHard
	SkillNightmare
)

// Ruleset describes what every peer of a session must simulate identically.
type Ruleset struct {
	Mode       GameMode `yaml:"mode" msgpack:"mode"`
	Skill      Skill    `yaml:"skill" msgpack:"skill"`
	Episode    uint8    `yaml:"episode" msgpack:"episode"`
	Map        uint8    `yaml:"map" msgpack:"map"`
	NoMonsters bool     `yaml:"no_monsters" msgpack:"no_monsters"`
	Respawn    bool     `yaml:"respawn" msgpack:"respawn"`
	Fast       bool     `yaml:"fast" msgpack:"fast"`
	TimeLimit  uint16   `yaml:"time_limit" msgpack:"time_limit"` // minutes, 0 = none
}

// Ruleset flag layout used by the discovery advertisement.
const (
	flagModeShift    = 0 // 2 bits
	flagSkillShift   = 2 // 3 bits
	flagEpisodeShift = 5 // 3 bits
	flagNoMonsters   = 1 << 8
	flagRespawn      = 1 << 9
	flagFast         = 1 << 10
)

// PackFlags folds the ruleset (minus map and time limit) into the advertisement bitfield.
func (r Ruleset) PackFlags() uint16 {
	f := uint16(r.Mode&0x3) << flagModeShift
	f |= uint16(r.Skill&0x7) << flagSkillShift
	f |= uint16(r.Episode&0x7) << flagEpisodeShift
	if r.NoMonsters {
		f |= flagNoMonsters
	}
	if r.Respawn {
		f |= flagRespawn
	}
	if r.Fast {
		f |= flagFast
	}
	return f
}

// UnpackRuleset rebuilds a ruleset from advertisement flags and map number.
func UnpackRuleset(flags uint16, mapNum uint8) Ruleset {
	return Ruleset{
		Mode:       GameMode((flags >> flagModeShift) & 0x3),
		Skill:      Skill((flags >> flagSkillShift) & 0x7),
		Episode:    uint8((flags >> flagEpisodeShift) & 0x7),
		Map:        mapNum,
		NoMonsters: flags&flagNoMonsters != 0,
		Respawn:    flags&flagRespawn != 0,
		Fast:       flags&flagFast != 0,
	}
}

// String returns e.g. "coop E1M1 skill 2".
func (r Ruleset) String() string {
	return fmt.Sprintf("%s E%dM%d skill %d", r.Mode, r.Episode, r.Map, r.Skill)
}
