package bus

import "testing"

func TestPublishPrefixMatch(t *testing.T) {
	b := NewMessageBus()
	thread := b.Subscribe("ws", "thread.t1")
	all := b.Subscribe("metrics", "*")
	other := b.Subscribe("other", "thread.t2")

	b.Publish(Message{Topic: ThreadTopic("t1", "timeline"), ThreadID: "t1", Type: MsgTimelineUpdate})

	if len(thread.Ch) != 1 {
		t.Fatalf("thread subscriber got %d messages, want 1", len(thread.Ch))
	}
	if len(all.Ch) != 1 {
		t.Fatalf("wildcard subscriber got %d messages, want 1", len(all.Ch))
	}
	if len(other.Ch) != 0 {
		t.Fatalf("unrelated subscriber got %d messages, want 0", len(other.Ch))
	}

	msg := <-thread.Ch
	if msg.Seq != 1 || msg.Type != MsgTimelineUpdate {
		t.Fatalf("msg = %+v, want seq 1 type %s", msg, MsgTimelineUpdate)
	}
	if msg.Timestamp.IsZero() {
		t.Fatal("timestamp not stamped")
	}
}

func TestMatchTopic(t *testing.T) {
	cases := []struct {
		filter, topic string
		want          bool
	}{
		{"*", "thread.t1.timeline", true},
		{"thread.t1", "thread.t1", true},
		{"thread.t1", "thread.t1.timeline", true},
		{"thread.t1", "thread.t10.timeline", false},
		{"system", "system.health", true},
		{"thread.t1.timeline", "thread.t1", false},
	}
	for _, c := range cases {
		if got := matchTopic(c.filter, c.topic); got != c.want {
			t.Fatalf("matchTopic(%q, %q) = %v, want %v", c.filter, c.topic, got, c.want)
		}
	}
}

func TestSlowSubscriberDrops(t *testing.T) {
	b := NewMessageBus()
	sub := b.Subscribe("slow", "*")
	for i := 0; i < 100; i++ {
		b.Publish(Message{Topic: TopicSystem, Type: MsgEventsEvicted})
	}
	if len(sub.Ch) != cap(sub.Ch) {
		t.Fatalf("channel holds %d, want full at %d with overflow dropped", len(sub.Ch), cap(sub.Ch))
	}
	if b.Seq() != 100 {
		t.Fatalf("seq = %d, want 100", b.Seq())
	}
}

func TestUnsubscribeCloses(t *testing.T) {
	b := NewMessageBus()
	sub := b.Subscribe("tmp", "*")
	b.Unsubscribe("tmp")
	if _, open := <-sub.Ch; open {
		t.Fatal("channel still open after unsubscribe")
	}
	if b.SubscriberCount() != 0 {
		t.Fatalf("subscribers = %d, want 0", b.SubscriberCount())
	}
}
