package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/hazyhaar/docintel/fault"
)

type fakePlugin struct{ id string }

func TestRegisterAndList(t *testing.T) {
	r := New[*fakePlugin]()

	if err := r.Register("x", 10, &fakePlugin{"x"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	names := r.List()
	if len(names) != 1 || names[0] != "x" {
		t.Errorf("List = %v, want [x]", names)
	}
}

func TestRegisterValidation(t *testing.T) {
	r := New[*fakePlugin]()

	if err := r.Register("", 0, &fakePlugin{}); err == nil {
		t.Error("empty name should fail")
	} else if fault.KindOf(err) != fault.KindValidation {
		t.Errorf("kind = %q, want validation", fault.KindOf(err))
	}

	if err := r.Register("nil", 0, nil); err == nil {
		t.Error("nil implementation should fail")
	}
}

func TestExecutionOrder(t *testing.T) {
	r := New[*fakePlugin]()
	r.Register("low", 1, &fakePlugin{"low"})
	r.Register("high", 100, &fakePlugin{"high"})
	r.Register("mid-a", 50, &fakePlugin{"a"})
	r.Register("mid-b", 50, &fakePlugin{"b"})

	got := r.List()
	want := []string{"high", "mid-a", "mid-b", "low"}
	if len(got) != len(want) {
		t.Fatalf("List = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List[%d] = %q, want %q (priority desc, ties by registration order)", i, got[i], want[i])
		}
	}
}

func TestReplaceKeepsRegistrationOrder(t *testing.T) {
	r := New[*fakePlugin]()
	r.Register("a", 5, &fakePlugin{"a1"})
	r.Register("b", 5, &fakePlugin{"b"})
	// Replace "a" — it keeps its original slot among equal priorities.
	r.Register("a", 5, &fakePlugin{"a2"})

	got := r.List()
	if got[0] != "a" || got[1] != "b" {
		t.Errorf("List = %v, want [a b]", got)
	}
	v, ok := r.Get("a")
	if !ok || v.id != "a2" {
		t.Errorf("Get(a) = %+v, want replaced value", v)
	}
}

func TestUnregister(t *testing.T) {
	r := New[*fakePlugin]()
	r.Register("x", 0, &fakePlugin{})

	if err := r.Unregister("nonexistent"); err != nil {
		t.Errorf("unregister of unknown name should be a no-op success, got %v", err)
	}
	if err := r.Unregister(""); err == nil {
		t.Error("empty name should fail")
	}
	if err := r.Unregister("x"); err != nil {
		t.Errorf("unregister: %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestClearDoesNotRepopulate(t *testing.T) {
	r := New[*fakePlugin]()
	r.Register("builtin", 0, &fakePlugin{})
	r.Clear()

	if got := r.List(); len(got) != 0 {
		t.Errorf("List after Clear = %v, want empty", got)
	}
	// A second read must still be empty — List is a pure read.
	if got := r.List(); len(got) != 0 {
		t.Errorf("second List after Clear = %v, want empty", got)
	}
}

func TestConcurrentMutation(t *testing.T) {
	r := New[*fakePlugin]()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				name := fmt.Sprintf("p%d", n)
				r.Register(name, j, &fakePlugin{name})
				r.List()
				r.Get(name)
				if j%3 == 0 {
					r.Unregister(name)
				}
			}
		}(i)
	}
	wg.Wait()

	// Consistent final state: every surviving name appears exactly once.
	seen := map[string]bool{}
	for _, name := range r.List() {
		if seen[name] {
			t.Errorf("duplicate entry %q", name)
		}
		seen[name] = true
	}
	if len(seen) != r.Len() {
		t.Errorf("List len %d != Len %d", len(seen), r.Len())
	}
}
