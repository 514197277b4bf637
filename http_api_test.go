package kaiku

import (
	"testing"
	"time"
)

func TestAPIServerStopHaltsBroadcast(t *testing.T) {
	e, _ := testEngine(&fakeStore{})
	s := NewAPIServer(e, []string{"http://localhost:5173"})

	// A canonical change before Stop flows into the broadcast queue.
	msg := Message{ID: "m1", AuthorID: "a", CreatedAt: time.Now()}
	e.Reconciler().Merge(PushEvent{Type: EventInsert, ID: "m1", Message: &msg})

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop did not return")
	}

	// Changes after shutdown must neither panic nor block, even with the
	// broadcast queue saturated.
	for i := 0; i < 200; i++ {
		update := msg
		update.Score = i
		e.Reconciler().Merge(PushEvent{Type: EventUpdate, ID: "m1", Message: &update})
	}
}
