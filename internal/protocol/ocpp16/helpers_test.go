package ocpp16

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// fakeSender 记录会话写出的帧
type fakeSender struct {
	mu     sync.Mutex
	frames []string
	ch     chan string
	fail   bool
}

func newFakeSender() *fakeSender {
	return &fakeSender{ch: make(chan string, 64)}
}

func (f *fakeSender) SendMessage(message []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("connection reset")
	}
	f.frames = append(f.frames, string(message))
	f.ch <- string(message)
	return nil
}

func (f *fakeSender) next(t *testing.T) string {
	t.Helper()
	select {
	case frame := <-f.ch:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return ""
	}
}

func (f *fakeSender) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case frame := <-f.ch:
		t.Fatalf("unexpected frame %s", frame)
	case <-time.After(wait):
	}
}
