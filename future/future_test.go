package future

import (
	"testing"
	"time"

	"github.com/soypat/corelink"
)

func TestFuturePendingUntilComplete(t *testing.T) {
	h, res := New[int]()
	now := time.Unix(1, 0)
	if h.Done() {
		t.Fatal("want a fresh handle pending")
	}
	if _, _, ok := h.Poll(now); ok {
		t.Fatal("want Poll to report pending before completion")
	}
	res.Complete(42)
	v, errKind, ok := h.Poll(now)
	if !ok || errKind != 0 || v != 42 {
		t.Fatalf("want Ok(42), got v=%v err=%v ok=%v", v, errKind, ok)
	}
	// Idempotent: repeated polls, even at a different now, return the
	// same terminal value.
	v2, _, ok2 := h.Poll(now.Add(time.Hour))
	if !ok2 || v2 != 42 {
		t.Fatalf("want the same terminal value on repeated polls, got %v ok=%v", v2, ok2)
	}
}

func TestFutureFail(t *testing.T) {
	h, res := New[string]()
	res.Fail(corelink.ErrTimeout)
	_, errKind, ok := h.Poll(time.Unix(1, 0))
	if !ok || errKind != corelink.ErrTimeout {
		t.Fatalf("want Err(Timeout), got err=%v ok=%v", errKind, ok)
	}
}

func TestFutureCompleteAfterFailIsNoop(t *testing.T) {
	h, res := New[int]()
	res.Fail(corelink.ErrTimeout)
	res.Complete(7) // must not override the terminal failure.
	_, errKind, ok := h.Poll(time.Unix(1, 0))
	if !ok || errKind != corelink.ErrTimeout {
		t.Fatalf("want the first terminal state (Timeout) to stick, got err=%v ok=%v", errKind, ok)
	}
}

func TestFutureAttachSharesCell(t *testing.T) {
	h1, res := New[int]()
	h2 := h1.Attach()
	res.Complete(9)
	v1, _, ok1 := h1.Poll(time.Unix(1, 0))
	v2, _, ok2 := h2.Poll(time.Unix(1, 0))
	if !ok1 || !ok2 || v1 != v2 || v1 != 9 {
		t.Fatalf("want both handles to observe the same value, got %v,%v ok=%v,%v", v1, v2, ok1, ok2)
	}
}

func TestResolverDone(t *testing.T) {
	_, res := New[int]()
	if res.Done() {
		t.Fatal("want not done before any completion")
	}
	res.Complete(1)
	if !res.Done() {
		t.Fatal("want done after Complete")
	}
}
