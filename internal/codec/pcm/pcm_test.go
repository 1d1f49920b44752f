package pcm

import (
	"encoding/binary"
	"testing"

	"github.com/drgolem/lanplayer/internal/codec"
	"github.com/drgolem/lanplayer/internal/ringbuf"
)

type fakeNotifier struct {
	calls []uint32
}

func (f *fakeNotifier) NotifyTrackStart(sampleRate uint32) {
	f.calls = append(f.calls, sampleRate)
}

type fakeStatus struct {
	disconnected bool
}

func (f *fakeStatus) Disconnected() bool {
	return f.disconnected
}

func openStereo16(t *testing.T, sb, ob *ringbuf.RingBuffer) *Codec {
	t.Helper()
	n := &fakeNotifier{}
	c := New(n, &fakeStatus{})
	err := c.Open(sb, ob, codec.OpenParams{
		SampleSize: '1', // 2 bytes
		SampleRate: '3', // 44100
		Channels:   '2',
		Endianness: '1', // little-endian
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return c
}

func TestDecodeUpshifts16BitStereo(t *testing.T) {
	sb := ringbuf.New(256)
	ob := ringbuf.New(256)
	c := openStereo16(t, sb, ob)

	// one stereo frame: left=0x1234, right=0x5678, little-endian
	frame := make([]byte, 4)
	binary.LittleEndian.PutUint16(frame[0:2], 0x1234)
	binary.LittleEndian.PutUint16(frame[2:4], 0x5678)
	sb.Write(frame)

	if res := c.Decode(); res != codec.Running {
		t.Fatalf("want RUNNING, got %v", res)
	}

	out := make([]byte, 8)
	if n := ob.Read(out); n != 8 {
		t.Fatalf("want 8 output bytes, got %d", n)
	}

	left := int32(binary.LittleEndian.Uint32(out[0:4]))
	right := int32(binary.LittleEndian.Uint32(out[4:8]))
	if left != 0x1234<<16 {
		t.Fatalf("left mismatch: got %#x want %#x", left, 0x1234<<16)
	}
	if right != 0x5678<<16 {
		t.Fatalf("right mismatch: got %#x want %#x", right, 0x5678<<16)
	}
}

func TestDecodeNotifiesTrackStartOnce(t *testing.T) {
	sb := ringbuf.New(256)
	ob := ringbuf.New(256)
	n := &fakeNotifier{}
	c := New(n, &fakeStatus{})
	c.Open(sb, ob, codec.OpenParams{SampleSize: '1', SampleRate: '3', Channels: '2', Endianness: '1'})

	frame := make([]byte, 4)
	sb.Write(frame)
	c.Decode()
	sb.Write(frame)
	c.Decode()

	if len(n.calls) != 1 {
		t.Fatalf("want exactly one NotifyTrackStart call, got %d", len(n.calls))
	}
	if n.calls[0] != 44100 {
		t.Fatalf("want sample rate 44100, got %d", n.calls[0])
	}
}

func TestOpenAlignsStreamBufToFrameSize(t *testing.T) {
	sb := ringbuf.New(256)
	ob := ringbuf.New(256)
	openStereo16(t, sb, ob)

	sb.Write([]byte{1, 2, 3, 4, 5}) // 5 bytes, not a multiple of 4

	sb.Lock()
	used := sb.Used()
	sb.Unlock()

	if used != 4 {
		t.Fatalf("want alignment to expose only 4 readable bytes, got %d", used)
	}
}

func TestCloseRestoresAlignment(t *testing.T) {
	sb := ringbuf.New(256)
	ob := ringbuf.New(256)
	c := openStereo16(t, sb, ob)
	c.Close()

	sb.Write([]byte{1, 2, 3})
	sb.Lock()
	used := sb.Used()
	sb.Unlock()
	if used != 3 {
		t.Fatalf("want alignment restored to 1, got used=%d", used)
	}
}

// S1-equivalent: once StreamBuf has drained to zero and the upstream has
// disconnected, Decode must report COMPLETE instead of spinning RUNNING.
func TestDecodeCompletesOnDisconnectWithEmptyInput(t *testing.T) {
	sb := ringbuf.New(256)
	ob := ringbuf.New(256)
	n := &fakeNotifier{}
	status := &fakeStatus{}
	c := New(n, status)
	c.Open(sb, ob, codec.OpenParams{SampleSize: '1', SampleRate: '3', Channels: '2', Endianness: '1'})

	if res := c.Decode(); res != codec.Running {
		t.Fatalf("want RUNNING while still connected with no input, got %v", res)
	}

	status.disconnected = true
	if res := c.Decode(); res != codec.Complete {
		t.Fatalf("want COMPLETE once disconnected with StreamBuf drained, got %v", res)
	}
}

func TestDecodeBackpressureWhenOutputFull(t *testing.T) {
	sb := ringbuf.New(256)
	ob := ringbuf.New(8) // room for exactly one canonical frame
	c := openStereo16(t, sb, ob)

	sb.Write(make([]byte, 8)) // two input frames available
	if res := c.Decode(); res != codec.Running {
		t.Fatalf("want RUNNING, got %v", res)
	}

	sb.Lock()
	remaining := sb.Used()
	sb.Unlock()
	if remaining != 4 {
		t.Fatalf("want one input frame left unconsumed due to output backpressure, got %d bytes", remaining)
	}
}
