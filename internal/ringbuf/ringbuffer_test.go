package ringbuf

import (
	"bytes"
	"math/rand"
	"testing"
	"time"
)

func TestUsedSpaceAccounting(t *testing.T) {
	rb := New(16)
	rb.Lock()
	if rb.Used() != 0 || rb.Space() != 16 {
		t.Fatalf("empty buffer: used=%d space=%d", rb.Used(), rb.Space())
	}
	rb.Unlock()

	if !rb.Write([]byte("hello world")) { // 11 bytes
		t.Fatal("write failed")
	}

	rb.Lock()
	if rb.Used() != 11 || rb.Space() != 5 {
		t.Fatalf("after write: used=%d space=%d", rb.Used(), rb.Space())
	}
	rb.Unlock()
}

func TestFIFORoundTrip(t *testing.T) {
	rb := New(8) // small, forces wraparound
	src := make([]byte, 1000)
	rand.New(rand.NewSource(1)).Read(src)

	var got bytes.Buffer
	out := make([]byte, 3)

	pos := 0
	for got.Len() < len(src) {
		// writer: push a small chunk if it fits
		if pos < len(src) {
			chunk := src[pos:min(pos+2, len(src))]
			if rb.Write(chunk) {
				pos += len(chunk)
			}
		}
		// reader: drain whatever is available
		for {
			n := rb.Read(out)
			if n == 0 {
				break
			}
			got.Write(out[:n])
		}
	}

	if !bytes.Equal(got.Bytes(), src) {
		t.Fatalf("FIFO violated: round trip mismatch")
	}
}

func TestAdjustAlignmentClampsPositions(t *testing.T) {
	rb := New(32)
	rb.Write([]byte{1, 2, 3}) // w=3
	rb.Read(make([]byte, 1))  // r=1

	rb.AdjustAlignment(6)

	rb.Lock()
	if rb.r%6 != 0 || rb.w%6 != 0 {
		t.Fatalf("positions not aligned: r=%d w=%d", rb.r, rb.w)
	}
	rb.Unlock()
}

// S2: open PCM-equivalent alignment on a capacity-10 buffer; after aligning
// to 6, writing 7 bytes only exposes 6 as readable.
func TestAlignmentBoundsReadableBytes(t *testing.T) {
	rb := New(10)
	rb.AdjustAlignment(6)

	if !rb.Write([]byte{1, 2, 3, 4, 5, 6, 7}) {
		t.Fatal("write failed")
	}

	rb.Lock()
	used := rb.Used()
	rb.Unlock()

	if used != 6 {
		t.Fatalf("want 6 alignment-bounded readable bytes, got %d", used)
	}
}

func TestAdvanceReadPastUsedPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic advancing read past used bytes")
		}
	}()
	rb := New(16)
	rb.Lock()
	defer rb.Unlock()
	rb.AdvanceRead(1)
}

func TestAdvanceWritePastSpacePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic advancing write past space")
		}
	}()
	rb := New(4)
	rb.Lock()
	defer rb.Unlock()
	rb.AdvanceWrite(5)
}

func TestWaitTimeoutReturnsWithoutSignal(t *testing.T) {
	rb := New(16)
	rb.Lock()
	defer rb.Unlock()

	start := time.Now()
	rb.WaitTimeout(20 * time.Millisecond)
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Fatalf("returned too early: %v", elapsed)
	}
}

func TestWaitTimeoutWakesOnUnlock(t *testing.T) {
	rb := New(16)

	done := make(chan struct{})
	go func() {
		rb.Lock()
		rb.WaitTimeout(time.Second)
		rb.Unlock()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	rb.Write([]byte{1}) // Unlock() inside Write broadcasts

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitTimeout did not wake on broadcast")
	}
}

func TestResetClearsPositions(t *testing.T) {
	rb := New(16)
	rb.Write([]byte("abc"))
	rb.Reset()

	rb.Lock()
	defer rb.Unlock()
	if rb.Used() != 0 {
		t.Fatalf("want empty after reset, used=%d", rb.Used())
	}
}
