package core

import "testing"

func TestTiccmdWireForm(t *testing.T) {
	tests := []struct {
		name string
		cmd  Ticcmd
		want []byte
	}{
		{
			name: "zero command",
			cmd:  Ticcmd{},
			want: []byte{0, 0, 0, 0, 0},
		},
		{
			name: "negative moves",
			cmd:  Ticcmd{ForwardMove: -50, SideMove: -40, AngleTurn: -1280, Buttons: BTAttack},
			want: []byte{0xce, 0xd8, 0x00, 0xfb, 0x01},
		},
		{
			name: "little endian turn",
			cmd:  Ticcmd{AngleTurn: 0x0102, Buttons: BTUse | BTChange},
			want: []byte{0, 0, 0x02, 0x01, 0x06},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.cmd.Append(nil)
			if len(got) != TiccmdSize {
				t.Fatalf("Append() length = %d, expected %d", len(got), TiccmdSize)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("Append() = %x, expected %x", got, tc.want)
				}
			}
			back, err := DecodeTiccmd(got)
			if err != nil {
				t.Fatalf("DecodeTiccmd() failed: %v", err)
			}
			if back != tc.cmd {
				t.Errorf("DecodeTiccmd() = %v, expected %v", back, tc.cmd)
			}
		})
	}
}

func TestDecodeTiccmdShort(t *testing.T) {
	if _, err := DecodeTiccmd([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for short buffer")
	}
}

func TestTiccmdWeapon(t *testing.T) {
	cmd := Ticcmd{Buttons: BTChange | 3<<BTWeaponShift}
	w, ok := cmd.Weapon()
	if !ok || w != 3 {
		t.Errorf("Weapon() = %d, %v, expected 3, true", w, ok)
	}

	special := Ticcmd{Buttons: BTSpecial | BTChange}
	if _, ok := special.Weapon(); ok {
		t.Error("special commands should not report a weapon change")
	}
}

func TestRulesetFlagsRoundTrip(t *testing.T) {
	r := Ruleset{
		Mode:       ModeDeathmatch,
		Skill:      SkillHard,
		Episode:    3,
		Map:        7,
		NoMonsters: true,
		Fast:       true,
	}
	got := UnpackRuleset(r.PackFlags(), r.Map)
	if got != r {
		t.Errorf("UnpackRuleset() = %+v, expected %+v", got, r)
	}
}

func TestRuntimeConfigTics(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.TicsSince(cfg.TicDuration() * 3); got != 3 {
		t.Errorf("TicsSince(3 tics) = %d, expected 3", got)
	}
	if got := cfg.TicsSince(-1); got != 0 {
		t.Errorf("TicsSince(negative) = %d, expected 0", got)
	}
}
