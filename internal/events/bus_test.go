package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan SessionStartedEvent, 1)

	unsub := bus.Subscribe(func(e SessionStartedEvent) {
		received <- e
	})
	defer unsub()

	ev := SessionStartedEvent{
		SessionID:    "s-1",
		CameraPath:   "/dev/video0",
		CameraFormat: "640x480 YUYV",
		FPS:          30,
	}
	bus.Publish(ev)

	got := <-received
	if got != ev {
		t.Errorf("got %+v, want %+v", got, ev)
	}
}

func TestBus_MultipleSubscribers(_ *testing.T) {
	bus := New()
	received1 := make(chan SessionFailedEvent, 1)
	received2 := make(chan SessionFailedEvent, 1)

	unsub1 := bus.Subscribe(func(e SessionFailedEvent) { received1 <- e })
	defer unsub1()
	unsub2 := bus.Subscribe(func(e SessionFailedEvent) { received2 <- e })
	defer unsub2()

	bus.Publish(SessionFailedEvent{SessionID: "s-1", Kind: "io"})

	<-received1
	<-received2
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan DeviceHotplugEvent, 1)

	unsub := bus.Subscribe(func(e DeviceHotplugEvent) { received <- e })

	bus.Publish(DeviceHotplugEvent{DevicePath: "/dev/video0"})
	<-received

	unsub()

	bus.Publish(DeviceHotplugEvent{DevicePath: "/dev/video1"})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	started := make(chan bool, 1)
	stopped := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ SessionStartedEvent) { started <- true })
	defer unsub1()
	unsub2 := bus.Subscribe(func(_ SessionStoppedEvent) { stopped <- true })
	defer unsub2()

	bus.Publish(SessionStartedEvent{SessionID: "s-1"})
	<-started

	select {
	case <-stopped:
		t.Fatal("stopped subscriber should not receive SessionStartedEvent")
	case <-time.After(10 * time.Millisecond):
	}

	bus.Publish(SessionStoppedEvent{SessionID: "s-1", Reason: "cancelled"})
	<-stopped

	select {
	case <-started:
		t.Fatal("started subscriber should not receive SessionStoppedEvent")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_UnknownHandler(t *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	if unsub == nil {
		t.Fatal("Subscribe should return a no-op unsubscribe")
	}
	unsub()
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)

	unsub := bus.Subscribe(func(_ DeviceHotplugEvent) { receivedCh <- true })
	defer unsub()

	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range eventsPerGoroutine {
				bus.Publish(DeviceHotplugEvent{
					Action:    "add",
					Timestamp: time.Now().Format(time.RFC3339),
				})
			}
		}()
	}

	wg.Wait()

	for range expected {
		<-receivedCh
	}
}

func TestBus_AllEventTypes(t *testing.T) {
	bus := New()

	tests := []struct {
		name  string
		event Event
	}{
		{"SessionStarted", SessionStartedEvent{SessionID: "s-1"}},
		{"SessionStopped", SessionStoppedEvent{SessionID: "s-1"}},
		{"SessionFailed", SessionFailedEvent{SessionID: "s-1"}},
		{"DeviceHotplug", DeviceHotplugEvent{Action: "add"}},
		{"ConfigReloaded", ConfigReloadedEvent{Path: "config.toml"}},
		{"SessionStats", SessionStatsEvent{SessionID: "s-1", Frames: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(_ *testing.T) {
			received := make(chan Event, 1)

			var unsub func()
			switch tt.event.(type) {
			case SessionStartedEvent:
				unsub = bus.Subscribe(func(e SessionStartedEvent) { received <- e })
			case SessionStoppedEvent:
				unsub = bus.Subscribe(func(e SessionStoppedEvent) { received <- e })
			case SessionFailedEvent:
				unsub = bus.Subscribe(func(e SessionFailedEvent) { received <- e })
			case DeviceHotplugEvent:
				unsub = bus.Subscribe(func(e DeviceHotplugEvent) { received <- e })
			case ConfigReloadedEvent:
				unsub = bus.Subscribe(func(e ConfigReloadedEvent) { received <- e })
			case SessionStatsEvent:
				unsub = bus.Subscribe(func(e SessionStatsEvent) { received <- e })
			}
			defer unsub()

			bus.Publish(tt.event)
			<-received
		})
	}
}

func TestEventTypesDistinct(t *testing.T) {
	seen := map[uint32]string{}
	for name, ev := range map[string]Event{
		"started":  SessionStartedEvent{},
		"stopped":  SessionStoppedEvent{},
		"failed":   SessionFailedEvent{},
		"hotplug":  DeviceHotplugEvent{},
		"reloaded": ConfigReloadedEvent{},
		"stats":    SessionStatsEvent{},
	} {
		if other, ok := seen[ev.Type()]; ok {
			t.Errorf("%s and %s share type %d", name, other, ev.Type())
		}
		seen[ev.Type()] = name
	}
}

func TestEventJSONSerialization(t *testing.T) {
	data, err := json.Marshal(SessionFailedEvent{SessionID: "s-1", Kind: "io", Error: "boom", Restart: true})
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	for _, key := range []string{"session_id", "kind", "error", "restart", "timestamp"} {
		if _, ok := result[key]; !ok {
			t.Errorf("missing key %q in %s", key, data)
		}
	}
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 10)

	unsub := SubscribeToChannel[SessionStoppedEvent](bus, ch, nil)
	defer unsub()

	bus.Publish(SessionStoppedEvent{SessionID: "s-1", Frames: 12})

	received := <-ch
	ev, ok := received.(SessionStoppedEvent)
	if !ok {
		t.Fatalf("Expected SessionStoppedEvent, got %T", received)
	}
	if ev.Frames != 12 {
		t.Errorf("Frames = %d, want 12", ev.Frames)
	}
}

func TestSubscribeToChannel_NonBlocking(t *testing.T) {
	bus := New()
	ch := make(chan any)
	var dropped atomic.Uint64

	unsub := SubscribeToChannel[SessionStartedEvent](bus, ch, &dropped)
	defer unsub()

	done := make(chan bool, 1)
	go func() {
		bus.Publish(SessionStartedEvent{SessionID: "s-1"})
		done <- true
	}()
	<-done

	deadline := time.Now().Add(2 * time.Second)
	for dropped.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("event to a full channel was not counted as dropped")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
