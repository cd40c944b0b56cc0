package pagebus

import (
	"sync"
	"testing"
)

func TestPostSyncReachesAllListeners(t *testing.T) {
	b := New()

	var mu sync.Mutex
	counts := make(map[int]int)
	for i := 0; i < 3; i++ {
		i := i
		b.Listen(func(msg map[string]any) {
			mu.Lock()
			counts[i]++
			mu.Unlock()
		})
	}

	b.PostSync(map[string]any{KeyType: "x"})
	b.PostSync(map[string]any{KeyType: "y"})

	mu.Lock()
	defer mu.Unlock()
	for i := 0; i < 3; i++ {
		if counts[i] != 2 {
			t.Errorf("listener %d saw %d messages, want 2", i, counts[i])
		}
	}
}

func TestPosterHearsItsOwnMessages(t *testing.T) {
	b := New()

	var got map[string]any
	b.Listen(func(msg map[string]any) { got = msg })

	b.PostSync(map[string]any{KeySource: SourceBridge, KeyType: TypeTokenCaptured})

	if got == nil || got[KeyType] != TypeTokenCaptured {
		t.Errorf("poster's own listener missed the message: %+v", got)
	}
}

func TestListenersAddedDuringDispatchDoNotDeadlock(t *testing.T) {
	b := New()
	b.Listen(func(msg map[string]any) {
		b.Listen(func(map[string]any) {})
	})
	b.PostSync(map[string]any{KeyType: "x"})
}
