package main

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEnsureWelcomeInsertsOnce(t *testing.T) {
	cs := NewConversationStore(newTestKVStore(t), nil)

	inserted, err := cs.EnsureWelcome("2024-05-01", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if !inserted {
		t.Fatal("first EnsureWelcome did not insert")
	}
	inserted, err = cs.EnsureWelcome("2024-05-01", "hello again")
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Fatal("second EnsureWelcome inserted a duplicate")
	}

	got, err := cs.Get("2024-05-01")
	if err != nil {
		t.Fatal(err)
	}
	want := []Message{{ID: "2024-05-01-initial", Text: "hello", Sender: SenderAI}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestEnsureWelcomeSkipsNonEmptyDay(t *testing.T) {
	cs := NewConversationStore(newTestKVStore(t), nil)
	user := Message{ID: "1", Text: "hi", Sender: SenderUser}
	if err := cs.Append("2024-05-02", user); err != nil {
		t.Fatal(err)
	}

	inserted, err := cs.EnsureWelcome("2024-05-02", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Fatal("welcome inserted into a non-empty day")
	}
	got, _ := cs.Get("2024-05-02")
	if diff := cmp.Diff([]Message{user}, got); diff != "" {
		t.Fatalf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendPreservesOrderAndIsolatesDates(t *testing.T) {
	cs := NewConversationStore(newTestKVStore(t), nil)
	msgs := []Message{
		{ID: "1", Text: "one", Sender: SenderUser},
		{ID: "2", Text: "two", Sender: SenderAI, Sources: []GroundingSource{{URI: "https://a", Title: "A"}}},
		{ID: "3", Text: "three", Sender: SenderUser, Image: &ImageData{Data: "AAAA", MIMEType: "image/png"}},
	}
	for _, m := range msgs {
		if err := cs.Append("2024-05-03", m); err != nil {
			t.Fatal(err)
		}
	}
	if err := cs.Append("2024-05-04", Message{ID: "4", Text: "other", Sender: SenderUser}); err != nil {
		t.Fatal(err)
	}

	got, _ := cs.Get("2024-05-03")
	if diff := cmp.Diff(msgs, got); diff != "" {
		t.Fatalf("messages mismatch (-want +got):\n%s", diff)
	}
	dates, _ := cs.Dates()
	if diff := cmp.Diff([]string{"2024-05-03", "2024-05-04"}, dates); diff != "" {
		t.Fatalf("dates mismatch (-want +got):\n%s", diff)
	}

	if err := cs.Append("2024-05-03", Message{Text: "no id"}); err == nil {
		t.Fatal("Append accepted a message without id")
	}
}

func TestGetUnknownDateIsEmpty(t *testing.T) {
	cs := NewConversationStore(newTestKVStore(t), nil)
	got, err := cs.Get("2000-01-01")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("Get = %v, want empty", got)
	}
}
