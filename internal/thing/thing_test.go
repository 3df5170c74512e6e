package thing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

// mockSubscriber records every message it is sent.
type mockSubscriber struct {
	mu       sync.Mutex
	id       string
	messages [][]byte
}

func newMockSubscriber(id string) *mockSubscriber {
	return &mockSubscriber{id: id}
}

func (s *mockSubscriber) ID() string { return s.id }

func (s *mockSubscriber) Send(message []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cpy := make([]byte, len(message))
	copy(cpy, message)
	s.messages = append(s.messages, cpy)
}

func (s *mockSubscriber) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// received decodes every recorded message.
func (s *mockSubscriber) received(t *testing.T) []map[string]any {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	decoded := make([]map[string]any, 0, len(s.messages))
	for _, raw := range s.messages {
		var msg map[string]any
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("invalid message %q: %v", raw, err)
		}
		decoded = append(decoded, msg)
	}
	return decoded
}

// messageTypes returns the messageType of every recorded message, in order.
func (s *mockSubscriber) messageTypes(t *testing.T) []string {
	t.Helper()
	var types []string
	for _, msg := range s.received(t) {
		mt, _ := msg["messageType"].(string)
		types = append(types, mt)
	}
	return types
}

// rejectAllValidator fails every validation with a fixed error.
type rejectAllValidator struct{}

func (rejectAllValidator) Validate(map[string]any, any) error {
	return errors.New("value rejected")
}

// mockRecorder captures archive calls; fails when failErr is set.
type mockRecorder struct {
	mu      sync.Mutex
	failErr error
	records []string
}

func (r *mockRecorder) RecordEvent(_ context.Context, _ string, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return r.failErr
	}
	r.records = append(r.records, ev.Name())
	return nil
}

func makeLamp() *Thing {
	return New("urn:dev:ops:lamp-1", "Lamp", []string{"Light"}, "A web connected lamp")
}

func TestAddPropertySameNameReplaces(t *testing.T) {
	lamp := makeLamp()

	p1 := NewBaseProperty(lamp, "on", Metadata{"type": "boolean"}, false)
	p2 := NewBaseProperty(lamp, "on", Metadata{"type": "boolean"}, true)

	lamp.AddProperty(p1)
	lamp.AddProperty(p2)

	got, ok := lamp.FindProperty("on")
	if !ok {
		t.Fatal("expected property to be registered")
	}
	if got != Property(p2) {
		t.Error("expected the later registration to win")
	}
}

func TestSetPropertyRoundTrip(t *testing.T) {
	lamp := makeLamp()
	lamp.AddProperty(NewBaseProperty(lamp, "on", Metadata{"type": "boolean"}, false))
	lamp.AddProperty(NewBaseProperty(lamp, "brightness", Metadata{"type": "integer"}, 50))

	tests := []struct {
		name  string
		value any
	}{
		{"on", true},
		{"brightness", 75},
	}

	for _, tt := range tests {
		if err := lamp.SetProperty(tt.name, tt.value); err != nil {
			t.Fatalf("SetProperty(%s): %v", tt.name, err)
		}
		got, ok := lamp.GetProperty(tt.name)
		if !ok {
			t.Fatalf("GetProperty(%s): missing", tt.name)
		}
		if got != tt.value {
			t.Errorf("GetProperty(%s) = %v, want %v", tt.name, got, tt.value)
		}
	}

	values := lamp.Properties()
	if values["on"] != true {
		t.Errorf("Properties()[on] = %v, want true", values["on"])
	}
}

func TestSetPropertyUnknownName(t *testing.T) {
	lamp := makeLamp()

	if err := lamp.SetProperty("missing", 1); !errors.Is(err, ErrPropertyNotFound) {
		t.Errorf("SetProperty on unknown name: got %v, want ErrPropertyNotFound", err)
	}
	if _, ok := lamp.GetProperty("missing"); ok {
		t.Error("GetProperty on unknown name should report absent")
	}
}

func TestRemovePropertyIsIdempotent(t *testing.T) {
	lamp := makeLamp()
	p := NewBaseProperty(lamp, "on", Metadata{"type": "boolean"}, false)
	lamp.AddProperty(p)

	lamp.RemoveProperty(p)
	if lamp.HasProperty("on") {
		t.Error("property still registered after removal")
	}

	// Removing again must be a silent no-op.
	lamp.RemoveProperty(p)
}

func TestPerformActionUnknownType(t *testing.T) {
	lamp := makeLamp()

	a, err := lamp.PerformAction("reboot", nil)
	if !errors.Is(err, ErrUnknownAction) {
		t.Errorf("got error %v, want ErrUnknownAction", err)
	}
	if a != nil {
		t.Error("no instance should be created for an unknown type")
	}
}

func TestPerformActionValidationGate(t *testing.T) {
	lamp := makeLamp()
	lamp.SetValidator(rejectAllValidator{})
	lamp.AddAvailableAction("fade", Metadata{
		"input": map[string]any{"type": "object"},
	}, func(t *Thing, input any) Action {
		return NewBaseAction(t, "fade", input)
	})

	a, err := lamp.PerformAction("fade", "not an object")
	if !errors.Is(err, ErrInvalidActionInput) {
		t.Errorf("got error %v, want ErrInvalidActionInput", err)
	}
	if a != nil {
		t.Error("no instance should be created for invalid input")
	}
	if got := len(lamp.ActionDescriptions("fade")); got != 0 {
		t.Errorf("instance list changed: %d entries, want 0", got)
	}
}

func TestPerformActionWithoutSchemaSkipsValidation(t *testing.T) {
	lamp := makeLamp()
	lamp.SetValidator(rejectAllValidator{})
	lamp.AddAvailableAction("toggle", Metadata{"title": "Toggle"}, func(t *Thing, input any) Action {
		return NewBaseAction(t, "toggle", input)
	})

	if _, err := lamp.PerformAction("toggle", nil); err != nil {
		t.Fatalf("PerformAction without input schema: %v", err)
	}
}

func TestActionInvocationOrder(t *testing.T) {
	lamp := makeLamp()
	lamp.AddAvailableAction("fade", Metadata{}, func(t *Thing, input any) Action {
		return NewBaseAction(t, "fade", input)
	})

	for i := 0; i < 3; i++ {
		if _, err := lamp.PerformAction("fade", map[string]any{"seq": i}); err != nil {
			t.Fatalf("PerformAction %d: %v", i, err)
		}
	}

	descs := lamp.ActionDescriptions("fade")
	if len(descs) != 3 {
		t.Fatalf("got %d descriptions, want 3", len(descs))
	}
	for i, desc := range descs {
		inner, ok := desc["fade"].(map[string]any)
		if !ok {
			t.Fatalf("description %d not keyed by action name: %v", i, desc)
		}
		input, ok := inner["input"].(map[string]any)
		if !ok {
			t.Fatalf("description %d missing input: %v", i, inner)
		}
		if input["seq"] != i {
			t.Errorf("description %d out of order: seq = %v", i, input["seq"])
		}
	}
}

func TestActionDescriptionsAllTypes(t *testing.T) {
	lamp := makeLamp()
	for _, name := range []string{"fade", "blink"} {
		n := name
		lamp.AddAvailableAction(n, Metadata{}, func(t *Thing, input any) Action {
			return NewBaseAction(t, n, input)
		})
	}

	lamp.PerformAction("blink", nil)
	lamp.PerformAction("fade", nil)
	lamp.PerformAction("blink", nil)

	descs := lamp.ActionDescriptions("")
	if len(descs) != 3 {
		t.Fatalf("got %d descriptions, want 3", len(descs))
	}
	// Registration order: both fade instances... fade registered first, so
	// its single instance comes before the two blink instances.
	if _, ok := descs[0]["fade"]; !ok {
		t.Errorf("expected fade first (registration order), got %v", descs[0])
	}

	if got := lamp.ActionDescriptions("unknown"); len(got) != 0 {
		t.Errorf("unknown type should yield an empty slice, got %v", got)
	}
}

func TestGetAndRemoveAction(t *testing.T) {
	lamp := makeLamp()
	lamp.AddAvailableAction("fade", Metadata{}, func(t *Thing, input any) Action {
		return NewBaseAction(t, "fade", input)
	})

	a, err := lamp.PerformAction("fade", nil)
	if err != nil {
		t.Fatalf("PerformAction: %v", err)
	}

	if _, ok := lamp.GetAction("fade", a.ID()); !ok {
		t.Fatal("GetAction should find the live instance")
	}
	if _, ok := lamp.GetAction("fade", "no-such-id"); ok {
		t.Error("GetAction should miss on an unknown id")
	}
	if _, ok := lamp.GetAction("unknown", a.ID()); ok {
		t.Error("GetAction should miss on an unknown type")
	}

	cancelled := false
	a.(*BaseAction).SetOnCancel(func() { cancelled = true })

	if !lamp.RemoveAction("fade", a.ID()) {
		t.Fatal("RemoveAction should succeed for a live instance")
	}
	if !cancelled {
		t.Error("RemoveAction must cancel the instance before removal")
	}
	if _, ok := lamp.GetAction("fade", a.ID()); ok {
		t.Error("instance still present after removal")
	}
	if lamp.RemoveAction("fade", a.ID()) {
		t.Error("RemoveAction should fail for an already-removed instance")
	}
}

func TestEventScoping(t *testing.T) {
	lamp := makeLamp()
	lamp.AddProperty(NewBaseProperty(lamp, "on", Metadata{"type": "boolean"}, false))
	lamp.AddAvailableAction("fade", Metadata{}, func(t *Thing, input any) Action {
		return NewBaseAction(t, "fade", input)
	})
	lamp.AddAvailableEvent("alarm", Metadata{"description": "Something alarming"})

	global := newMockSubscriber("global")
	alarmOnly := newMockSubscriber("alarm-only")

	lamp.AddSubscriber(global)
	lamp.AddEventSubscriber("alarm", alarmOnly)

	if err := lamp.SetProperty("on", true); err != nil {
		t.Fatalf("SetProperty: %v", err)
	}
	if _, err := lamp.PerformAction("fade", nil); err != nil {
		t.Fatalf("PerformAction: %v", err)
	}
	lamp.AddEvent(NewBaseEvent(lamp, "alarm", "overheat"))

	// Global subscriber: property + action messages, no event messages.
	for _, mt := range global.messageTypes(t) {
		if mt == MessageTypeEvent {
			t.Error("global subscriber must not receive event messages")
		}
	}
	gotTypes := global.messageTypes(t)
	if len(gotTypes) != 2 || gotTypes[0] != MessageTypePropertyStatus || gotTypes[1] != MessageTypeActionStatus {
		t.Errorf("global subscriber messages = %v, want [propertyStatus actionStatus]", gotTypes)
	}

	// Event-only subscriber: exactly one event message, nothing else.
	msgs := alarmOnly.received(t)
	if len(msgs) != 1 {
		t.Fatalf("event subscriber got %d messages, want 1", len(msgs))
	}
	if msgs[0]["messageType"] != MessageTypeEvent {
		t.Errorf("messageType = %v, want event", msgs[0]["messageType"])
	}
	data, _ := msgs[0]["data"].(map[string]any)
	if _, ok := data["alarm"]; !ok {
		t.Errorf("event payload not keyed by event name: %v", data)
	}
}

func TestUnregisteredEventLoggedNotDelivered(t *testing.T) {
	lamp := makeLamp()
	sub := newMockSubscriber("s1")
	lamp.AddSubscriber(sub)

	lamp.AddEvent(NewBaseEvent(lamp, "mystery", nil))

	if sub.count() != 0 {
		t.Error("unregistered event names must never be delivered")
	}
	if got := len(lamp.EventDescriptions("")); got != 1 {
		t.Errorf("event log has %d entries, want 1 (logged even when unregistered)", got)
	}
}

func TestRemoveSubscriberCascades(t *testing.T) {
	lamp := makeLamp()
	lamp.AddProperty(NewBaseProperty(lamp, "on", Metadata{"type": "boolean"}, false))
	lamp.AddAvailableEvent("alarm", Metadata{})

	sub := newMockSubscriber("s1")
	lamp.AddSubscriber(sub)
	lamp.AddEventSubscriber("alarm", sub)

	lamp.RemoveSubscriber(sub)

	lamp.SetProperty("on", true)
	lamp.AddEvent(NewBaseEvent(lamp, "alarm", nil))

	if sub.count() != 0 {
		t.Errorf("removed subscriber still received %d messages", sub.count())
	}
	if lamp.SubscriberCount() != 0 {
		t.Errorf("global set size = %d, want 0", lamp.SubscriberCount())
	}
}

func TestRemoveEventSubscriberKeepsGlobalMembership(t *testing.T) {
	lamp := makeLamp()
	lamp.AddProperty(NewBaseProperty(lamp, "on", Metadata{"type": "boolean"}, false))
	lamp.AddAvailableEvent("alarm", Metadata{})

	sub := newMockSubscriber("s1")
	lamp.AddSubscriber(sub)
	lamp.AddEventSubscriber("alarm", sub)
	lamp.RemoveEventSubscriber("alarm", sub)

	lamp.AddEvent(NewBaseEvent(lamp, "alarm", nil))
	if sub.count() != 0 {
		t.Error("subscriber removed from the alarm subset must not receive alarm events")
	}

	lamp.SetProperty("on", true)
	if sub.count() != 1 {
		t.Error("global membership must survive event-subset removal")
	}
}

func TestAddAvailableEventResetsSubscribers(t *testing.T) {
	lamp := makeLamp()
	lamp.AddAvailableEvent("alarm", Metadata{})

	sub := newMockSubscriber("s1")
	lamp.AddEventSubscriber("alarm", sub)

	// Re-registration drops the prior subset.
	lamp.AddAvailableEvent("alarm", Metadata{"description": "updated"})
	lamp.AddEvent(NewBaseEvent(lamp, "alarm", nil))

	if sub.count() != 0 {
		t.Error("re-registering an event type must drop its prior subscribers")
	}
}

func TestEventDescriptionsFilterAndOrder(t *testing.T) {
	lamp := makeLamp()
	lamp.AddAvailableEvent("alarm", Metadata{})

	lamp.AddEvent(NewBaseEvent(lamp, "alarm", 1))
	lamp.AddEvent(NewBaseEvent(lamp, "other", 2))
	lamp.AddEvent(NewBaseEvent(lamp, "alarm", 3))

	all := lamp.EventDescriptions("")
	if len(all) != 3 {
		t.Fatalf("got %d events, want 3", len(all))
	}

	alarms := lamp.EventDescriptions("alarm")
	if len(alarms) != 2 {
		t.Fatalf("got %d alarm events, want 2", len(alarms))
	}
	first, _ := alarms[0]["alarm"].(map[string]any)
	second, _ := alarms[1]["alarm"].(map[string]any)
	if first["data"] != float64(1) && first["data"] != 1 {
		t.Errorf("alarm events out of emission order: first data = %v", first["data"])
	}
	if second["data"] != float64(3) && second["data"] != 3 {
		t.Errorf("alarm events out of emission order: second data = %v", second["data"])
	}
}

func TestEventRecorderBestEffort(t *testing.T) {
	lamp := makeLamp()
	lamp.AddAvailableEvent("alarm", Metadata{})

	rec := &mockRecorder{}
	lamp.SetEventRecorder(rec)
	lamp.AddEvent(NewBaseEvent(lamp, "alarm", nil))

	rec.mu.Lock()
	recorded := len(rec.records)
	rec.mu.Unlock()
	if recorded != 1 {
		t.Errorf("recorder saw %d events, want 1", recorded)
	}

	// A failing recorder must not block the log or the notification path.
	failing := &mockRecorder{failErr: errors.New("disk full")}
	lamp.SetEventRecorder(failing)
	lamp.AddEvent(NewBaseEvent(lamp, "alarm", nil))

	if got := len(lamp.EventDescriptions("alarm")); got != 2 {
		t.Errorf("event log has %d alarm entries, want 2", got)
	}
}

func TestSetHrefPrefixCascades(t *testing.T) {
	lamp := makeLamp()
	lamp.AddProperty(NewBaseProperty(lamp, "on", Metadata{"type": "boolean"}, false))
	lamp.AddAvailableAction("fade", Metadata{}, func(t *Thing, input any) Action {
		return NewBaseAction(t, "fade", input)
	})

	a, err := lamp.PerformAction("fade", nil)
	if err != nil {
		t.Fatalf("PerformAction: %v", err)
	}

	lamp.SetHrefPrefix("/things/lamp1")

	td := lamp.AsThingDescription()
	links, _ := td["links"].([]map[string]any)
	if len(links) == 0 {
		t.Fatal("description has no links")
	}
	for _, link := range links {
		href, _ := link["href"].(string)
		if !strings.HasPrefix(href, "/things/lamp1/") {
			t.Errorf("link %v not rooted at the new prefix", link)
		}
	}

	desc := a.Description()
	inner, _ := desc["fade"].(map[string]any)
	href, _ := inner["href"].(string)
	if !strings.HasPrefix(href, "/things/lamp1/actions/fade/") {
		t.Errorf("pre-existing action href = %q, want new prefix", href)
	}

	// Instances created after the cascade pick up the current prefix.
	b, _ := lamp.PerformAction("fade", nil)
	inner, _ = b.Description()["fade"].(map[string]any)
	href, _ = inner["href"].(string)
	if !strings.HasPrefix(href, "/things/lamp1/actions/fade/") {
		t.Errorf("new action href = %q, want new prefix", href)
	}
}

func TestAsThingDescription(t *testing.T) {
	lamp := makeLamp()
	lamp.AddProperty(NewBaseProperty(lamp, "on", Metadata{
		"@type": "OnOffProperty",
		"type":  "boolean",
		"title": "On/Off",
	}, false))
	lamp.AddAvailableAction("fade", Metadata{"title": "Fade"}, func(t *Thing, input any) Action {
		return NewBaseAction(t, "fade", input)
	})
	lamp.AddAvailableEvent("overheated", Metadata{"type": "number"})

	td := lamp.AsThingDescription()

	if td["id"] != "urn:dev:ops:lamp-1" || td["title"] != "Lamp" {
		t.Errorf("identity fields wrong: id=%v title=%v", td["id"], td["title"])
	}
	if td["@context"] != DefaultContext {
		t.Errorf("@context = %v", td["@context"])
	}
	if td["description"] != "A web connected lamp" {
		t.Errorf("description = %v", td["description"])
	}

	props, _ := td["properties"].(map[string]any)
	on, _ := props["on"].(map[string]any)
	if on["type"] != "boolean" || on["@type"] != "OnOffProperty" {
		t.Errorf("property fragment altered: %v", on)
	}

	actions, _ := td["actions"].(map[string]any)
	fade, _ := actions["fade"].(Metadata)
	if fade == nil {
		m, _ := actions["fade"].(map[string]any)
		fade = Metadata(m)
	}
	if fade["title"] != "Fade" {
		t.Errorf("action metadata altered: %v", fade)
	}
	fadeLinks, _ := fade["links"].([]map[string]any)
	if len(fadeLinks) != 1 || fadeLinks[0]["rel"] != "action" || fadeLinks[0]["href"] != "/actions/fade" {
		t.Errorf("action links wrong: %v", fadeLinks)
	}

	events, _ := td["events"].(map[string]any)
	if _, ok := events["overheated"]; !ok {
		t.Errorf("events missing overheated: %v", events)
	}

	types, _ := td["@type"].([]string)
	if len(types) != 1 || types[0] != "Light" {
		t.Errorf("@type = %v", td["@type"])
	}
}

func TestAsThingDescriptionOptionalKeys(t *testing.T) {
	bare := New("urn:dev:ops:bare-1", "Bare", nil, "")
	td := bare.AsThingDescription()

	if _, ok := td["description"]; ok {
		t.Error("empty description must be omitted")
	}
	if _, ok := td["@type"]; ok {
		t.Error("empty @type must be omitted")
	}

	links, _ := td["links"].([]map[string]any)
	if len(links) != 3 {
		t.Fatalf("got %d links, want 3 (no alternate)", len(links))
	}

	bare.SetUIHref("/ui")
	links, _ = bare.AsThingDescription()["links"].([]map[string]any)
	if len(links) != 4 {
		t.Fatalf("got %d links, want 4 with alternate", len(links))
	}
	alt := links[3]
	if alt["rel"] != "alternate" || alt["mediaType"] != "text/html" || alt["href"] != "/ui" {
		t.Errorf("alternate link wrong: %v", alt)
	}
}

func TestDescriptionNotCached(t *testing.T) {
	lamp := makeLamp()

	before := lamp.AsThingDescription()
	if props, _ := before["properties"].(map[string]any); len(props) != 0 {
		t.Fatalf("unexpected properties: %v", props)
	}

	lamp.AddProperty(NewBaseProperty(lamp, "on", Metadata{"type": "boolean"}, false))

	after := lamp.AsThingDescription()
	props, _ := after["properties"].(map[string]any)
	if _, ok := props["on"]; !ok {
		t.Error("description must reflect current registry state on every call")
	}
}

func TestConcurrentMutation(t *testing.T) {
	lamp := makeLamp()
	lamp.AddProperty(NewBaseProperty(lamp, "on", Metadata{"type": "boolean"}, false))
	lamp.AddAvailableAction("fade", Metadata{}, func(t *Thing, input any) Action {
		return NewBaseAction(t, "fade", input)
	})
	lamp.AddAvailableEvent("alarm", Metadata{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sub := newMockSubscriber(fmt.Sprintf("sub-%d", n))
			lamp.AddSubscriber(sub)
			for j := 0; j < 25; j++ {
				lamp.SetProperty("on", j%2 == 0)
				lamp.PerformAction("fade", nil)
				lamp.AddEvent(NewBaseEvent(lamp, "alarm", j))
				lamp.AsThingDescription()
			}
			lamp.RemoveSubscriber(sub)
		}(i)
	}
	wg.Wait()

	if got := len(lamp.ActionDescriptions("fade")); got != 8*25 {
		t.Errorf("instance list has %d entries, want %d", got, 8*25)
	}
}
