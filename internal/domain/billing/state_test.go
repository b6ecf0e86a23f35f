package billing

import "testing"

func TestMemoryStateStore_DiscardsStaleCommit(t *testing.T) {
	s := NewMemoryStateStore()
	older := s.Begin("s1")
	newer := s.Begin("s1")

	if !s.Commit("s1", newer, &State{Plans: []Plan{yearlyPlan}}) {
		t.Fatal("expected newer commit to apply")
	}
	if s.Commit("s1", older, &State{Plans: []Plan{monthlyPlan}}) {
		t.Fatal("expected older commit to be discarded")
	}
	st, ok := s.Get("s1")
	if !ok || st.Plans[0].ID != "pri_year" {
		t.Errorf("expected newer state kept, got %+v", st)
	}
}

func TestMemoryStateStore_InOrderCommits(t *testing.T) {
	s := NewMemoryStateStore()
	first := s.Begin("s1")
	second := s.Begin("s1")
	if !s.Commit("s1", first, &State{}) || !s.Commit("s1", second, &State{}) {
		t.Error("expected in-order commits to apply")
	}
}

func TestMemoryStateStore_ForgetDropsInFlight(t *testing.T) {
	s := NewMemoryStateStore()
	seq := s.Begin("s1")
	s.Forget("s1")
	if s.Commit("s1", seq, &State{}) {
		t.Error("expected commit after forget to be discarded")
	}
	if _, ok := s.Get("s1"); ok {
		t.Error("expected no state after forget")
	}
}

func TestMemoryStateStore_SessionsIsolated(t *testing.T) {
	s := NewMemoryStateStore()
	s.Commit("a", s.Begin("a"), &State{Plans: []Plan{monthlyPlan}})
	if _, ok := s.Get("b"); ok {
		t.Error("expected no state for b")
	}
}
