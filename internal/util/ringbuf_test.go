package util

import "testing"

func TestRingBuffer(t *testing.T) {
	rb := NewRingBuffer[int](3)

	t.Run("partial fill", func(t *testing.T) {
		rb.Push(1)
		rb.Push(2)
		got := rb.Snapshot()
		if len(got) != 2 || got[0] != 1 || got[1] != 2 {
			t.Fatalf("unexpected snapshot: %v", got)
		}
	})

	t.Run("overwrite oldest", func(t *testing.T) {
		rb.Push(3)
		rb.Push(4) // evicts 1
		got := rb.Snapshot()
		if len(got) != 3 {
			t.Fatalf("expected 3 elements, got %d", len(got))
		}
		want := []int{2, 3, 4}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("expected %v, got %v", want, got)
			}
		}
	})

	t.Run("clear", func(t *testing.T) {
		rb.Clear()
		if rb.Len() != 0 {
			t.Fatalf("expected empty buffer, got %d", rb.Len())
		}
		rb.Push(7)
		got := rb.Snapshot()
		if len(got) != 1 || got[0] != 7 {
			t.Fatalf("unexpected snapshot after clear: %v", got)
		}
	})
}
