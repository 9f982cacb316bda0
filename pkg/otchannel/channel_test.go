package otchannel

import (
	"errors"
	"testing"
	"time"
)

func TestSendRecvOrder(t *testing.T) {
	ch := New[int](4)
	for i := 0; i < 4; i++ {
		if err := ch.Send(i); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	ch.CloseSend()

	for i := 0; i < 4; i++ {
		v, err := ch.Recv()
		if err != nil {
			t.Fatalf("recv %d: %v", i, err)
		}
		if v != i {
			t.Errorf("recv %d: got %d", i, v)
		}
	}

	if _, err := ch.Recv(); !errors.Is(err, ErrEndOfStream) {
		t.Errorf("expected ErrEndOfStream after drain, got %v", err)
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	ch := New[int](1)
	ch.CloseSend()
	if err := ch.Send(1); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestSendBlocksOnFullBuffer(t *testing.T) {
	ch := New[int](1)
	if err := ch.Send(1); err != nil {
		t.Fatalf("send: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- ch.Send(2)
	}()

	select {
	case <-done:
		t.Fatal("second send should have blocked on a full buffer")
	case <-time.After(50 * time.Millisecond):
	}

	if _, err := ch.Recv(); err != nil {
		t.Fatalf("recv: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unblocked send failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("send never unblocked after a Recv freed capacity")
	}
}

func TestDropWakesBlockedSend(t *testing.T) {
	ch := New[int](1)
	if err := ch.Send(1); err != nil {
		t.Fatalf("send: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- ch.Send(2)
	}()

	time.Sleep(20 * time.Millisecond)
	ch.Drop()

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed after Drop, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Drop did not wake the blocked Send")
	}

	if err := ch.Send(3); !errors.Is(err, ErrClosed) {
		t.Errorf("expected subsequent Send to fail with ErrClosed, got %v", err)
	}
}

func TestCloseSendAndDropAreIdempotent(t *testing.T) {
	ch := New[int](1)
	ch.CloseSend()
	ch.CloseSend()
	ch.Drop()
	ch.Drop()
}

func TestCapacityMustBePositive(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for capacity < 1")
		}
	}()
	New[int](0)
}
