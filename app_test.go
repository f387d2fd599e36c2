package main

import (
	"context"
	"testing"
	"time"
)

type testApp struct {
	*App
	remote *fakeRemote
	clock  *fakeClock
	out    *fakeOutput
	voice  *fakeVoiceService
}

func newTestAppWith(t *testing.T, store *KVStore, language string) *testApp {
	t.Helper()
	cfg := &Config{
		DataDir:  t.TempDir(),
		Language: language,
		Gemini:   GeminiConfig{LiveModel: DefaultLiveModel, LiveVoice: DefaultLiveVoice},
		Audio:    AudioConfig{CaptureBlockSize: 4, OutputBufferMS: 100},
	}
	ta := &testApp{
		remote: &fakeRemote{chatReply: &ChatReply{Text: "reply"}},
		clock:  &fakeClock{now: testNow},
		out:    &fakeOutput{},
		voice:  &fakeVoiceService{conn: newFakeLiveConn()},
	}
	app, err := newApp(cfg, appDeps{
		store:   store,
		remote:  ta.remote,
		voice:   ta.voice,
		mic:     &fakeMicrophone{capture: &fakeCapture{}},
		speaker: &fakeSpeaker{out: ta.out},
		now:     ta.clock.Now,
		loc:     time.UTC,
	}, nil)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(func() { app.Close() })
	ta.App = app
	return ta
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	return newTestAppWith(t, newTestKVStore(t), "en-US")
}

func TestAppSeedsLanguageOnFirstRun(t *testing.T) {
	store := newTestKVStore(t)
	app := newTestAppWith(t, store, "tr_TR.UTF-8")
	if app.state.Language() != Turkish {
		t.Fatalf("language = %q, want tr", app.state.Language())
	}
	msgs, _ := app.conversations.Get("2024-05-10")
	if len(msgs) != 1 || msgs[0].Text != "Ben Monsmatics, size nasıl yardımcı olabilirim?" {
		t.Fatalf("welcome = %+v", msgs)
	}

	// Later runs keep the stored choice.
	again := newTestAppWith(t, store, "en-US")
	if again.state.Language() != Turkish {
		t.Fatalf("language after restart = %q", again.state.Language())
	}
}

func TestAppNotify(t *testing.T) {
	app := newTestApp(t)
	app.Notify(Notice{Kind: NoticeWeather, Text: "logged only"})

	var got []Notice
	app.OnNotice(func(n Notice) { got = append(got, n) })
	app.Notify(Notice{Kind: NoticeReminder, Text: "call"})
	if len(got) != 1 || got[0].Text != "call" {
		t.Fatalf("notices = %+v", got)
	}
}

func TestAppLiveSessionMirrorsState(t *testing.T) {
	app := newTestApp(t)
	session := app.NewLiveSession()
	if err := session.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if app.voice.cfg.Model != DefaultLiveModel {
		t.Fatalf("connect model = %q", app.voice.cfg.Model)
	}
	app.voice.conn.in <- &ServerMessage{InputText: "hello"}
	waitFor(t, "transcript mirrored", func() bool {
		user, _ := app.state.LiveTranscripts()
		return user == "hello"
	})
	if err := session.Stop(); err != nil {
		t.Fatal(err)
	}
	if app.state.LiveState() != StateClosed {
		t.Fatalf("state = %v", app.state.LiveState())
	}
}

func TestAppStartWithRecall(t *testing.T) {
	app := newTestApp(t)
	recall, err := NewMemoryRecallIndex(&letterEmbedder{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	app.recall = recall

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := app.Start(ctx); err != nil {
		t.Fatal(err)
	}
	// The welcome message is backfilled.
	if recall.Count() != 1 {
		t.Fatalf("Count = %d after backfill", recall.Count())
	}
	if _, err := app.chat.Send(ctx, SendRequest{Text: "hi there"}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "new messages indexed", func() bool { return recall.Count() == 3 })
}
