package boundary

import (
	"errors"
	"testing"
)

func TestHandle_Encoding(t *testing.T) {
	h := makeHandle(KindCapturer, 7, 41)

	if h.Kind() != KindCapturer {
		t.Errorf("Kind = %v, want %v", h.Kind(), KindCapturer)
	}
	if h.generation() != 7 {
		t.Errorf("generation = %d, want 7", h.generation())
	}
	idx, ok := h.slot()
	if !ok || idx != 41 {
		t.Errorf("slot = %d, %v, want 41, true", idx, ok)
	}
	if h.IsNull() {
		t.Error("encoded handle must not be null")
	}
	if got := h.String(); got != "capturer#41.7" {
		t.Errorf("String = %q, want %q", got, "capturer#41.7")
	}
}

func TestHandle_Null(t *testing.T) {
	var h Handle
	if !h.IsNull() {
		t.Error("zero handle should be null")
	}
	if h.String() != "null" {
		t.Errorf("String = %q, want null", h.String())
	}
	// Slot zero of generation zero is still not the null handle.
	if makeHandle(KindDisplay, 0, 0).IsNull() {
		t.Error("first slot handle must not be null")
	}
}

func TestArena_InsertGetRemove(t *testing.T) {
	a := newArena[string](KindDisplay)

	h := a.insert("primary")
	v, err := a.get(h)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v != "primary" {
		t.Errorf("get = %q, want primary", v)
	}
	if a.len() != 1 {
		t.Errorf("len = %d, want 1", a.len())
	}

	v, err = a.remove(h)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if v != "primary" {
		t.Errorf("remove = %q, want primary", v)
	}
	if a.len() != 0 {
		t.Errorf("len after remove = %d, want 0", a.len())
	}
}

func TestArena_StaleHandle(t *testing.T) {
	a := newArena[int](KindDisplay)

	h := a.insert(1)
	if _, err := a.remove(h); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if _, err := a.get(h); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("get after free: err = %v, want ErrInvalidHandle", err)
	}
	if _, err := a.remove(h); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("double free: err = %v, want ErrInvalidHandle", err)
	}
}

func TestArena_SlotReuseBumpsGeneration(t *testing.T) {
	a := newArena[int](KindDisplay)

	first := a.insert(1)
	if _, err := a.remove(first); err != nil {
		t.Fatalf("remove: %v", err)
	}
	second := a.insert(2)

	i1, _ := first.slot()
	i2, _ := second.slot()
	if i1 != i2 {
		t.Fatalf("expected slot reuse, got %d and %d", i1, i2)
	}
	if first == second {
		t.Fatal("reused slot must yield a distinct handle")
	}

	if _, err := a.get(first); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("old handle: err = %v, want ErrInvalidHandle", err)
	}
	v, err := a.get(second)
	if err != nil || v != 2 {
		t.Errorf("new handle: got %d, %v, want 2, nil", v, err)
	}
}

func TestArena_Consume(t *testing.T) {
	a := newArena[int](KindDisplay)

	h := a.insert(5)
	v, err := a.consume(h)
	if err != nil || v != 5 {
		t.Fatalf("consume = %d, %v, want 5, nil", v, err)
	}

	if _, err := a.get(h); !errors.Is(err, ErrConsumedHandle) {
		t.Errorf("get after consume: err = %v, want ErrConsumedHandle", err)
	}
	if _, err := a.remove(h); !errors.Is(err, ErrConsumedHandle) {
		t.Errorf("free after consume: err = %v, want ErrConsumedHandle", err)
	}
	if a.len() != 0 {
		t.Errorf("len = %d, want 0", a.len())
	}
}

func TestArena_WrongKind(t *testing.T) {
	displays := newArena[int](KindDisplay)
	capturers := newArena[int](KindCapturer)

	h := capturers.insert(1)
	displays.insert(1)

	if _, err := displays.get(h); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("capturer handle on display arena: err = %v, want ErrInvalidHandle", err)
	}
}

func TestArena_NullAndUnknown(t *testing.T) {
	a := newArena[int](KindDisplay)

	if _, err := a.get(0); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("null: err = %v, want ErrInvalidHandle", err)
	}
	if _, err := a.get(makeHandle(KindDisplay, 0, 99)); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("never issued: err = %v, want ErrInvalidHandle", err)
	}
}

func TestArena_Drain(t *testing.T) {
	a := newArena[int](KindCapturer)
	handles := []Handle{a.insert(1), a.insert(2), a.insert(3)}
	if _, err := a.remove(handles[1]); err != nil {
		t.Fatalf("remove: %v", err)
	}

	got := a.drain()
	if len(got) != 2 {
		t.Fatalf("drain returned %d values, want 2", len(got))
	}
	if a.len() != 0 {
		t.Errorf("len after drain = %d, want 0", a.len())
	}
	for _, h := range handles {
		if _, err := a.get(h); err == nil {
			t.Errorf("handle %v still live after drain", h)
		}
	}
}
