package proxy

import (
	"fmt"
	"sync"
	"testing"
)

func TestTable_BindReturnsPublicPath(t *testing.T) {
	table := NewTable()

	path := table.Bind("s1", "localhost", 34012)
	if path != "/proxy/s1/" {
		t.Errorf("expected /proxy/s1/, got %q", path)
	}

	binding, ok := table.Lookup("s1")
	if !ok {
		t.Fatal("expected binding for s1")
	}
	if binding.TargetHost != "localhost" || binding.TargetPort != 34012 {
		t.Errorf("unexpected target %s:%d", binding.TargetHost, binding.TargetPort)
	}
	if binding.CreatedAt.IsZero() {
		t.Error("expected creation timestamp")
	}
}

func TestTable_RebindRefreshes(t *testing.T) {
	table := NewTable()

	table.Bind("s1", "localhost", 34012)
	table.Bind("s1", "localhost", 40001)

	binding, ok := table.Lookup("s1")
	if !ok {
		t.Fatal("expected binding for s1")
	}
	if binding.TargetPort != 40001 {
		t.Errorf("expected refreshed port 40001, got %d", binding.TargetPort)
	}
}

func TestTable_UnbindIsIdempotent(t *testing.T) {
	table := NewTable()

	table.Bind("s1", "localhost", 34012)
	table.Unbind("s1")
	table.Unbind("s1") // second unbind must be a no-op
	table.Unbind("never-bound")

	if _, ok := table.Lookup("s1"); ok {
		t.Error("expected s1 to be gone")
	}
}

func TestTable_ConcurrentSessions(t *testing.T) {
	table := NewTable()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i)
			table.Bind(id, "localhost", 30000+i)
			if _, ok := table.Lookup(id); !ok {
				t.Errorf("lost binding for %s", id)
			}
			table.Unbind(id)
		}(i)
	}
	wg.Wait()
}
