package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestFanOut_BroadcastsToAll(t *testing.T) {
	fo := New[string](10, zerolog.Nop())
	out1 := fo.Subscribe("journal")
	out2 := fo.Subscribe("hub")

	input := make(chan string, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	input <- "BTCUSDT"

	for name, out := range map[string]<-chan string{"journal": out1, "hub": out2} {
		select {
		case v := <-out:
			if v != "BTCUSDT" {
				t.Errorf("%s: expected BTCUSDT, got %s", name, v)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s: timed out waiting for value", name)
		}
	}
}

func TestFanOut_DropsForSlowSubscriber(t *testing.T) {
	fo := New[int](1, zerolog.Nop())
	var mu sync.Mutex
	drops := map[string]int{}
	fo.OnDrop = func(name string) {
		mu.Lock()
		drops[name]++
		mu.Unlock()
	}
	slow := fo.Subscribe("slow")

	input := make(chan int)
	done := make(chan struct{})
	go func() {
		fo.Run(context.Background(), input)
		close(done)
	}()
	for i := 0; i < 3; i++ {
		input <- i
	}
	close(input)
	<-done

	if v := <-slow; v != 0 {
		t.Errorf("expected first value kept, got %d", v)
	}
	if _, ok := <-slow; ok {
		t.Error("output should be closed after input closes")
	}
	mu.Lock()
	defer mu.Unlock()
	if drops["slow"] != 2 {
		t.Errorf("expected 2 drops, got %d", drops["slow"])
	}
}

func TestFanOut_ChannelStats(t *testing.T) {
	fo := New[int](4, zerolog.Nop())
	fo.Subscribe("a")
	stats := fo.ChannelStats()
	if len(stats) != 1 || stats[0].Name != "a" || stats[0].Cap != 4 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
