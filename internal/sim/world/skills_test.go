package world

import (
	"testing"
	"time"
)

func TestRequiredExperience(t *testing.T) {
	if got := requiredExperience(1); got != 120 {
		t.Fatalf("required(1)=%d want 120", got)
	}
	if got := requiredExperience(2); got != 288 {
		t.Fatalf("required(2)=%d want 288", got)
	}
	for level := 1; level < 30; level++ {
		if requiredExperience(level+1) <= requiredExperience(level) {
			t.Fatalf("requirement must grow: level %d", level)
		}
	}
}

func TestGainSkill_FirstUseStartsAtLevelOne(t *testing.T) {
	w := newTestWorld()
	join(t, w, "id-1", "alice")

	rec, err := w.GainSkillExperience(at("id-1", time.Minute), "mining", 50)
	if err != nil {
		t.Fatalf("gain: %v", err)
	}
	if rec.Name != "mining" || rec.Level != 1 || rec.Experience != 50 {
		t.Fatalf("skill=%+v", rec)
	}
	if !rec.UpdatedAt.Equal(testEpoch.Add(time.Minute)) {
		t.Fatalf("updated at=%v", rec.UpdatedAt)
	}
}

func TestGainSkill_LevelUpCarriesRemainder(t *testing.T) {
	w := newTestWorld()
	join(t, w, "id-1", "alice")

	rec, err := w.GainSkillExperience(at("id-1", 0), "mining", 125)
	if err != nil {
		t.Fatalf("gain: %v", err)
	}
	if rec.Level != 2 || rec.Experience != 5 {
		t.Fatalf("skill=%+v want level 2 with 5 left over", rec)
	}
}

func TestGainSkill_ExactRequirementLevels(t *testing.T) {
	w := newTestWorld()
	join(t, w, "id-1", "alice")

	rec, err := w.GainSkillExperience(at("id-1", 0), "mining", requiredExperience(1))
	if err != nil {
		t.Fatalf("gain: %v", err)
	}
	if rec.Level != 2 || rec.Experience != 0 {
		t.Fatalf("skill=%+v want level 2 with nothing left", rec)
	}
}

func TestGainSkill_CascadesThroughLevels(t *testing.T) {
	w := newTestWorld()
	join(t, w, "id-1", "alice")

	amount := requiredExperience(1) + requiredExperience(2) + 10
	rec, err := w.GainSkillExperience(at("id-1", 0), "combat", amount)
	if err != nil {
		t.Fatalf("gain: %v", err)
	}
	if rec.Level != 3 || rec.Experience != 10 {
		t.Fatalf("skill=%+v want level 3 with 10 left over", rec)
	}
}

func TestGainSkill_AccumulatesAcrossCalls(t *testing.T) {
	w := newTestWorld()
	join(t, w, "id-1", "alice")

	if _, err := w.GainSkillExperience(at("id-1", 0), "mining", 100); err != nil {
		t.Fatalf("gain: %v", err)
	}
	rec, err := w.GainSkillExperience(at("id-1", time.Second), "mining", 25)
	if err != nil {
		t.Fatalf("gain: %v", err)
	}
	if rec.Level != 2 || rec.Experience != 5 {
		t.Fatalf("skill=%+v want level 2 with 5 left over", rec)
	}
}

func TestGainSkill_Validation(t *testing.T) {
	w := newTestWorld()

	_, err := w.GainSkillExperience(at("id-1", 0), "mining", 10)
	wantErr(t, err, KindNotFound, "Player not found")

	join(t, w, "id-1", "alice")
	_, err = w.GainSkillExperience(at("id-1", 0), "   ", 10)
	wantErr(t, err, KindValidation, "Skill name cannot be empty")
}

func TestSkills_SortedByName(t *testing.T) {
	w := newTestWorld()
	join(t, w, "id-1", "alice")

	for _, name := range []string{"mining", "combat", "fishing"} {
		if _, err := w.GainSkillExperience(at("id-1", 0), name, 10); err != nil {
			t.Fatalf("gain %s: %v", name, err)
		}
	}
	got, err := w.Skills(at("id-1", 0))
	if err != nil {
		t.Fatalf("skills: %v", err)
	}
	want := []string{"combat", "fishing", "mining"}
	if len(got) != len(want) {
		t.Fatalf("skills=%+v", got)
	}
	for i := range want {
		if got[i].Name != want[i] {
			t.Fatalf("skills[%d]=%q want %q", i, got[i].Name, want[i])
		}
	}

	_, err = w.Skills(at("id-9", 0))
	wantErr(t, err, KindNotFound, "Player not found")
}
