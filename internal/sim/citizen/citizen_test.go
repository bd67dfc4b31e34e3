package citizen

import (
	"regexp"
	"testing"

	"github.com/google/uuid"
)

var namePattern = regexp.MustCompile(`^(\S+) ([A-Z])\. (\S+)$`)

func TestNew_GeneratesNameFromGenderTable(t *testing.T) {
	w := newTestWorld()
	contains := func(vals []string, s string) bool {
		for _, v := range vals {
			if v == s {
				return true
			}
		}
		return false
	}

	var females, males int
	for seed := int64(1); seed <= 500; seed++ {
		c := newTestCitizen(t, w, seed)
		m := namePattern.FindStringSubmatch(c.Name())
		if m == nil {
			t.Fatalf("name %q does not match pattern", c.Name())
		}
		first, last := m[1], m[3]
		if c.IsFemale() {
			females++
			if !contains(testNames.FemaleFirst, first) {
				t.Fatalf("female citizen %q: first name not from female table", c.Name())
			}
		} else {
			males++
			if !contains(testNames.MaleFirst, first) {
				t.Fatalf("male citizen %q: first name not from male table", c.Name())
			}
		}
		if !contains(testNames.Last, last) {
			t.Fatalf("citizen %q: last name not from shared table", c.Name())
		}
	}
	if females == 0 || males == 0 {
		t.Fatalf("expected both genders, got females=%d males=%d", females, males)
	}
}

func TestNew_InitializesSkillsInRange(t *testing.T) {
	w := newTestWorld()
	for seed := int64(1); seed <= 200; seed++ {
		c := newTestCitizen(t, w, seed)
		s := c.Skills()
		for _, v := range []int{s.Strength, s.Stamina, s.Wisdom, s.Intelligence, s.Charisma} {
			if v < 1 || v > 10 {
				t.Fatalf("skill out of range: %+v", s)
			}
		}
		if c.Level() != 0 {
			t.Fatalf("level: got %d", c.Level())
		}
	}
}

func TestNew_TakesIdentityFromEntityAndMarksDirty(t *testing.T) {
	w := newTestWorld()
	e := w.spawn(7, 42)
	c, err := New(e, testNames, w.links())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if c.ID() != e.ID() {
		t.Fatalf("id: got %s want %s", c.ID(), e.ID())
	}
	if c.TextureID() != e.TextureID() {
		t.Fatalf("texture: got %d want %d", c.TextureID(), e.TextureID())
	}
	if !c.IsDirty() || w.dirtyHits != 1 {
		t.Fatalf("expected dirty once, dirty=%v hits=%d", c.IsDirty(), w.dirtyHits)
	}
	got, ok := c.Entity()
	if !ok || got.RuntimeID() != 42 {
		t.Fatalf("expected attached entity, got %v %v", got, ok)
	}
}

func TestNew_RejectsEmptyNameTables(t *testing.T) {
	w := newTestWorld()
	names := testNames
	names.FemaleFirst = nil
	if _, err := New(w.spawn(1, 1), names, w.links()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSetSkills_MarksDirtyOnlyOnChange(t *testing.T) {
	w := newTestWorld()
	c := newTestCitizen(t, w, 3)
	c.ClearDirty()
	hits := w.dirtyHits

	c.SetSkills(c.Skills())
	if c.IsDirty() || w.dirtyHits != hits {
		t.Fatalf("unchanged skills marked dirty")
	}
	s := c.Skills()
	s.Wisdom = 0
	c.SetSkills(s)
	if !c.IsDirty() || w.dirtyHits != hits+1 {
		t.Fatalf("changed skills not marked dirty")
	}
}

func TestAttachEntity_RejectsMismatchedIdentity(t *testing.T) {
	w := newTestWorld()
	c := newTestCitizen(t, w, 5)
	other := w.spawn(6, 99)
	c.ClearDirty()

	err := c.AttachEntity(other)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !isErr(err, ErrMismatchedIdentity) {
		t.Fatalf("expected ErrMismatchedIdentity, got %v", err)
	}
	e, ok := c.Entity()
	if !ok || e.ID() != c.ID() {
		t.Fatalf("stored entity changed after mismatch: %v %v", e, ok)
	}
	if c.IsDirty() {
		t.Fatalf("failed attach marked dirty")
	}
}

func TestDetachEntity_DoesNotMarkDirty(t *testing.T) {
	w := newTestWorld()
	c := newTestCitizen(t, w, 8)
	c.ClearDirty()
	hits := w.dirtyHits

	c.DetachEntity()
	if _, ok := c.Entity(); ok {
		t.Fatalf("expected no entity after detach")
	}
	if c.IsDirty() || w.dirtyHits != hits {
		t.Fatalf("detach marked dirty")
	}

	e := w.entities[c.ID()]
	if err := c.AttachEntity(e); err != nil {
		t.Fatalf("reattach: %v", err)
	}
	if !c.IsDirty() {
		t.Fatalf("attach did not mark dirty")
	}
}

func TestEntity_AbsentWhenUnloaded(t *testing.T) {
	w := newTestWorld()
	c := newTestCitizen(t, w, 9)
	delete(w.entities, c.ID())
	if e, ok := c.Entity(); ok || e != nil {
		t.Fatalf("expected absent entity, got %v", e)
	}
}

func TestFromDurable_RoundTrip(t *testing.T) {
	w := newTestWorld()
	c := newTestCitizen(t, w, 11)
	c.SetSkills(Skills{Strength: 0, Stamina: 10, Wisdom: 4, Intelligence: 2, Charisma: 9})

	blob, err := c.WriteDurable()
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	id, err := DurableID(blob)
	if err != nil {
		t.Fatalf("durable id: %v", err)
	}
	got, err := FromDurable(id, Links{}, blob)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got.ID() != c.ID() || got.Name() != c.Name() || got.IsFemale() != c.IsFemale() ||
		got.TextureID() != c.TextureID() || got.Level() != c.Level() || got.Skills() != c.Skills() {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, c)
	}
	if got.IsDirty() {
		t.Fatalf("restored citizen should not be dirty")
	}
	if _, ok := got.HomePos(); ok {
		t.Fatalf("durable form must not carry home")
	}
	if _, ok := got.Entity(); ok {
		t.Fatalf("durable form must not carry entity")
	}

	again, err := got.WriteDurable()
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if string(again) != string(blob) {
		t.Fatalf("durable bytes differ after round trip:\n%s\n%s", again, blob)
	}
}

func TestRestoreDurable_RejectsMalformed(t *testing.T) {
	id := uuid.MustParse("6f1c1f5e-8a57-4a43-9b8e-0a4a3d1c2b10")
	valid := `"id":"6f1c1f5e-8a57-4a43-9b8e-0a4a3d1c2b10","name":"Ada B. Smith","female":true,"texture":1,"level":0`
	cases := map[string]string{
		"missing skills":    `{` + valid + `}`,
		"skills not object": `{` + valid + `,"skills":7}`,
		"incomplete skills": `{` + valid + `,"skills":{"strength":1,"stamina":1,"wisdom":1,"intelligence":1}}`,
		"string skill":      `{` + valid + `,"skills":{"strength":"1","stamina":1,"wisdom":1,"intelligence":1,"charisma":1}}`,
		"missing name":      `{"id":"6f1c1f5e-8a57-4a43-9b8e-0a4a3d1c2b10","female":true,"texture":1,"level":0,"skills":{"strength":1,"stamina":1,"wisdom":1,"intelligence":1,"charisma":1}}`,
		"other id":          `{"id":"00000000-0000-0000-0000-000000000001","name":"x","female":true,"texture":1,"level":0,"skills":{"strength":1,"stamina":1,"wisdom":1,"intelligence":1,"charisma":1}}`,
		"bad id":            `{"id":"nope","name":"x","female":true,"texture":1,"level":0,"skills":{"strength":1,"stamina":1,"wisdom":1,"intelligence":1,"charisma":1}}`,
		"not json":          `{{`,
	}
	for name, doc := range cases {
		if _, err := FromDurable(id, Links{}, []byte(doc)); !isErr(err, ErrMalformedRecord) {
			t.Fatalf("%s: expected ErrMalformedRecord, got %v", name, err)
		}
	}
}

func TestRestoreDurable_LeavesCitizenUnchangedOnError(t *testing.T) {
	w := newTestWorld()
	c := newTestCitizen(t, w, 12)
	before := c.Name()
	skills := c.Skills()

	bad := []byte(`{"id":"` + c.ID().String() + `","name":"Other","female":true,"texture":1,"level":3}`)
	if err := c.RestoreDurable(bad); err == nil {
		t.Fatalf("expected error")
	}
	if c.Name() != before || c.Skills() != skills || c.Level() != 0 {
		t.Fatalf("citizen modified by failed restore")
	}
}
