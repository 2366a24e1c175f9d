package clan

import (
	"errors"
	"fmt"
	"testing"
)

func TestClan_Members(t *testing.T) {
	c := New("RED", "Red", false, t0)
	c.addMember("carol")
	c.addMember("alice")
	c.addMember("bob")
	c.removeMember("bob")

	got := c.Members()
	want := []string{"alice", "carol"}
	if len(got) != len(want) {
		t.Fatalf("Members() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Members()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if !c.IsMember("ALICE") {
		t.Error("IsMember(ALICE) = false, want true")
	}
	if c.Size() != 2 {
		t.Errorf("Size = %d, want 2", c.Size())
	}
}

func TestClan_Clone(t *testing.T) {
	c := New("RED", "Red", false, t0)
	c.addMember("alice")
	c.Allies = []string{"blu"}

	cp := c.Clone()
	cp.addMember("bob")
	cp.Allies[0] = "grn"
	cp.Name = "Changed"

	if c.Size() != 1 {
		t.Errorf("original Size = %d after clone mutation, want 1", c.Size())
	}
	if c.Allies[0] != "blu" {
		t.Errorf("original Allies = %v, want [blu]", c.Allies)
	}
	if c.Name != "Red" {
		t.Errorf("original Name = %q, want %q", c.Name, "Red")
	}
}

func TestClan_Relations(t *testing.T) {
	c := New("RED", "Red", false, t0)

	var added bool
	c.Allies, added = addRelation(c.Allies, "blu")
	if !added {
		t.Error("first addRelation = false, want true")
	}
	c.Allies, added = addRelation(c.Allies, "blu")
	if added {
		t.Error("duplicate addRelation = true, want false")
	}
	if !c.IsAlly("&9BLU") {
		t.Error("IsAlly(&9BLU) = false, want true")
	}

	var removed bool
	c.Allies, removed = removeRelation(c.Allies, "blu")
	if !removed || c.IsAlly("blu") {
		t.Error("removeRelation did not remove blu")
	}
	if _, removed = removeRelation(c.Allies, "blu"); removed {
		t.Error("removeRelation of absent tag = true, want false")
	}
}

func TestPlayer_Clone(t *testing.T) {
	p := NewPlayer("Alice", t0)
	p.PastClans = []PastClan{{Tag: "red"}}

	cp := p.Clone()
	cp.PastClans[0].Tag = "blu"
	cp.PastClans = append(cp.PastClans, PastClan{Tag: "grn"})

	if len(p.PastClans) != 1 || p.PastClans[0].Tag != "red" {
		t.Errorf("original PastClans = %v, want [red]", p.PastClans)
	}
}

func TestPersistenceError(t *testing.T) {
	cause := errors.New("connection reset")
	var err error = &PersistenceError{Op: OpUpdateClan, Key: "red", Err: cause}
	wrapped := fmt.Errorf("add member: %w", err)

	if !errors.Is(wrapped, ErrPersistence) {
		t.Error("errors.Is(ErrPersistence) = false")
	}
	if !errors.Is(wrapped, cause) {
		t.Error("errors.Is(cause) = false")
	}
	var pe *PersistenceError
	if !errors.As(wrapped, &pe) || pe.Op != OpUpdateClan || pe.Key != "red" {
		t.Errorf("errors.As = %+v", pe)
	}
	if errors.Is(wrapped, ErrNotFound) {
		t.Error("PersistenceError should not match ErrNotFound")
	}
}

func TestPolicyError(t *testing.T) {
	plain := policyError(errors.New("no money"))
	if !errors.Is(plain, ErrPolicyRejected) {
		t.Error("plain gate error does not match ErrPolicyRejected")
	}

	already := fmt.Errorf("%w: custom", ErrPolicyRejected)
	if policyError(already) != already {
		t.Error("policyError rewrapped an ErrPolicyRejected error")
	}
}
