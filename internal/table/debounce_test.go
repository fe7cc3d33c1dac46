package table

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncerDeliversLastValue(t *testing.T) {
	var mu sync.Mutex
	var got []string
	done := make(chan struct{}, 1)
	d := NewDebouncer(30*time.Millisecond, func(v string) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
		done <- struct{}{}
	})

	for _, v := range []string{"a", "am", "ami", "amin", "amina"} {
		d.Trigger(v)
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("debounced call never fired")
	}
	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"amina"}, got)
}

func TestDebouncerStop(t *testing.T) {
	fired := make(chan string, 1)
	d := NewDebouncer(20*time.Millisecond, func(v string) { fired <- v })

	d.Trigger("x")
	d.Stop()
	d.Trigger("y")

	select {
	case v := <-fired:
		t.Fatalf("unexpected call with %q", v)
	case <-time.After(80 * time.Millisecond):
	}
}
