package input

import "testing"

func TestBotDeterministic(t *testing.T) {
	a := NewBot(7, false)
	b := NewBot(7, false)
	c := NewBot(8, false)

	differs := false
	nonZero := 0
	for i := range 500 {
		ca, cb, cc := a.Sample(), b.Sample(), c.Sample()
		if ca != cb {
			t.Fatalf("tic %d: same seed produced %v and %v", i, ca, cb)
		}
		if ca != cc {
			differs = true
		}
		if !ca.IsZero() {
			nonZero++
		}
	}
	if !differs {
		t.Error("different seeds produced identical streams")
	}
	if nonZero < 100 {
		t.Errorf("only %d of 500 commands carried input", nonZero)
	}
}
