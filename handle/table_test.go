package handle

import (
	"sync"
	"testing"
)

type dropCounter struct{ dropped *int }

func (d dropCounter) Drop() { *d.dropped++ }

func TestTable_InsertGetRemove(t *testing.T) {
	tbl := New[string]()

	h1, err := tbl.Insert("a")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if h1 == 0 {
		t.Fatal("handle 0 must never be issued")
	}

	if v, ok := tbl.Get(h1); !ok || v != "a" {
		t.Errorf("Get = %q, %v", v, ok)
	}

	if v, ok := tbl.Remove(h1); !ok || v != "a" {
		t.Errorf("Remove = %q, %v", v, ok)
	}
	if _, ok := tbl.Remove(h1); ok {
		t.Error("second Remove must fail")
	}
	if _, ok := tbl.Get(h1); ok {
		t.Error("Get after Remove must fail")
	}
	if _, ok := tbl.Get(0); ok {
		t.Error("Get(0) must fail")
	}
}

func TestTable_StaleHandleAfterReuse(t *testing.T) {
	tbl := New[int]()

	h1, _ := tbl.Insert(1)
	tbl.Remove(h1)
	h2, _ := tbl.Insert(2)

	if h1.Index() != h2.Index() {
		t.Fatalf("slot not reused: %d vs %d", h1.Index(), h2.Index())
	}
	if h1 == h2 {
		t.Fatal("reused slot must get a new generation")
	}
	if _, ok := tbl.Get(h1); ok {
		t.Error("stale handle resolved to the new occupant")
	}
	if _, ok := tbl.Remove(h1); ok {
		t.Error("stale handle removed the new occupant")
	}
	if v, ok := tbl.Get(h2); !ok || v != 2 {
		t.Errorf("Get(h2) = %d, %v", v, ok)
	}
}

func TestTable_LenEach(t *testing.T) {
	tbl := New[int]()
	for i := 0; i < 5; i++ {
		tbl.Insert(i)
	}
	h, _ := tbl.Insert(99)
	tbl.Remove(h)

	if tbl.Len() != 5 {
		t.Errorf("Len() = %d, want 5", tbl.Len())
	}

	sum := 0
	tbl.Each(func(_ Handle, v int) bool {
		sum += v
		return true
	})
	if sum != 0+1+2+3+4 {
		t.Errorf("Each sum = %d", sum)
	}
}

func TestTable_Close(t *testing.T) {
	tbl := New[dropCounter]()
	dropped := 0
	tbl.Insert(dropCounter{&dropped})
	h, _ := tbl.Insert(dropCounter{&dropped})
	tbl.Remove(h)

	if err := tbl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	if _, err := tbl.Insert(dropCounter{&dropped}); err != ErrClosed {
		t.Errorf("Insert after Close err = %v, want ErrClosed", err)
	}
	if err := tbl.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestTable_ConcurrentRemoveSingleWinner(t *testing.T) {
	tbl := New[int]()
	h, _ := tbl.Insert(1)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := tbl.Remove(h); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("wins = %d, want exactly 1", wins)
	}
}
