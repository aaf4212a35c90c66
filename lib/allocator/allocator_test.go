// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package allocator

import (
	"bytes"
	"testing"

	"github.com/bureau-foundation/omnifs/lib/fserr"
)

func TestAllocateFirstFit(t *testing.T) {
	a := New(4)
	for want := uint32(0); want < 4; want++ {
		got, err := a.Allocate()
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		if got != want {
			t.Fatalf("Allocate = %d, want %d", got, want)
		}
	}

	if _, err := a.Allocate(); !fserr.Is(err, fserr.KindCapacity) {
		t.Fatalf("Allocate on full bitmap = %v, want capacity", err)
	}

	if err := a.Free(1); err != nil {
		t.Fatalf("Free: %v", err)
	}
	got, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if got != 1 {
		t.Errorf("Allocate after Free(1) = %d, want 1", got)
	}
}

func TestAllocateFreeRestoresCount(t *testing.T) {
	const total = 64
	for n := 0; n <= total; n++ {
		a := New(total)
		indices := make([]uint32, 0, n)
		for i := 0; i < n; i++ {
			index, err := a.Allocate()
			if err != nil {
				t.Fatalf("n=%d: Allocate %d: %v", n, i, err)
			}
			indices = append(indices, index)
		}
		if a.UsedCount() != uint32(n) {
			t.Fatalf("n=%d: UsedCount = %d", n, a.UsedCount())
		}
		for _, index := range indices {
			if err := a.Free(index); err != nil {
				t.Fatalf("n=%d: Free(%d): %v", n, index, err)
			}
		}
		if a.FreeCount() != total {
			t.Fatalf("n=%d: FreeCount = %d, want %d", n, a.FreeCount(), total)
		}
	}
}

func TestFreeOutOfRange(t *testing.T) {
	a := New(8)
	if err := a.Free(8); !fserr.Is(err, fserr.KindValidation) {
		t.Errorf("Free(8) = %v, want validation", err)
	}
	if a.IsUsed(100) {
		t.Error("IsUsed(100) = true on an 8-block allocator")
	}
}

func TestReset(t *testing.T) {
	a := New(8)
	for i := 0; i < 5; i++ {
		a.Allocate()
	}
	a.Reset()
	if a.FreeCount() != 8 {
		t.Errorf("FreeCount after Reset = %d, want 8", a.FreeCount())
	}
}

func TestBytesLoadRoundtrip(t *testing.T) {
	a := New(6)
	a.Allocate()
	a.Allocate()
	a.Allocate()
	a.Free(1)

	persisted := a.Bytes()
	if want := []byte{1, 0, 1, 0, 0, 0}; !bytes.Equal(persisted, want) {
		t.Fatalf("Bytes = %v, want %v", persisted, want)
	}

	b := New(6)
	if err := b.Load(persisted); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !b.IsUsed(0) || b.IsUsed(1) || !b.IsUsed(2) {
		t.Errorf("loaded state differs: %v", b.Bytes())
	}
	if b.UsedCount() != 2 {
		t.Errorf("UsedCount = %d, want 2", b.UsedCount())
	}
}

func TestLoadRejectsCorruptBitmap(t *testing.T) {
	a := New(4)
	a.Allocate()

	if err := a.Load([]byte{0, 0, 0}); !fserr.Is(err, fserr.KindCorruption) {
		t.Errorf("Load short bitmap = %v, want corruption", err)
	}
	if err := a.Load([]byte{0, 7, 0, 0}); !fserr.Is(err, fserr.KindCorruption) {
		t.Errorf("Load invalid byte = %v, want corruption", err)
	}
	if !a.IsUsed(0) {
		t.Error("failed Load modified allocator state")
	}
}
