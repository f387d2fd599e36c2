package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func runREPL(t *testing.T, app *testApp, input string) string {
	t.Helper()
	var out bytes.Buffer
	if err := NewREPL(app.App, strings.NewReader(input), &out).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return out.String()
}

func assertContains(t *testing.T, out string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestREPLChat(t *testing.T) {
	app := newTestApp(t)
	app.remote.chatReply = &ChatReply{Text: "Hi, human."}

	out := runREPL(t, app, "hello there\nsay again\nexit\n")
	assertContains(t, out,
		"--- Today ---",
		"Monsmatics: I am Monsmatics, how can I help you?",
		"Monsmatics: Hi, human.",
	)
	if n := len(app.remote.calls()); n != 2 {
		t.Fatalf("chat calls = %d, want 2", n)
	}
	if got := app.remote.calls()[1].prompt; got != "again" {
		t.Fatalf("say prompt = %q", got)
	}
}

func TestREPLDaysAndReminders(t *testing.T) {
	app := newTestApp(t)
	out := runREPL(t, app, strings.Join([]string{
		"remind 2024-05-12T10:00 pick up parcel",
		"remind tomorrow",
		"day 2024-05-12",
		"reminders",
		"days",
		"day 12/05",
	}, "\n"))

	assertContains(t, out,
		"10:00 pick up parcel (",
		"Usage: remind <time> <title>",
		"--- Sunday, May 12, 2024 ---",
		"Events (Sunday, May 12, 2024)",
		"* 2024-05-12  Sunday, May 12, 2024",
		"  2024-05-10  Today",
		"Error: invalid date",
	)

	events, _ := app.reminders.ForDate("2024-05-12")
	runREPL(t, app, "unremind 2024-05-12 "+events[0].ID+"\n")
	if left, _ := app.reminders.ForDate("2024-05-12"); len(left) != 0 {
		t.Fatalf("reminders after unremind = %+v", left)
	}
}

func TestREPLSettings(t *testing.T) {
	app := newTestApp(t)
	out := runREPL(t, app, "set theme neon\nset language tr\nset unit F\nsettings\n")
	assertContains(t, out,
		`Error: invalid theme "neon"`,
		"Ayarlar",
		"  Sıcaklık Birimi: F",
		"  Dil: tr",
	)
}

func TestREPLSpeak(t *testing.T) {
	app := newTestApp(t)
	app.remote.speech = pcmPayload(24)

	out := runREPL(t, app, "speak\nspeak 5\nspeak x\n")
	assertContains(t, out, "No such message.", "Usage: speak [n]")
	if scheduled, _, _ := app.out.snapshot(); len(scheduled) != 1 {
		t.Fatalf("scheduled = %+v, want the welcome read once", scheduled)
	}

	app.remote.speechErr = ErrNoAudioInResponse
	out = runREPL(t, app, "speak 1\n")
	assertContains(t, out, "Could not play speech.")
}

func TestREPLLiveEndsOnEnter(t *testing.T) {
	app := newTestApp(t)
	out := runREPL(t, app, "live\n\nexit\n")
	assertContains(t, out, "Listening...")
	if app.voice.conn.closeCount() != 1 {
		t.Fatalf("live connection closed %d times", app.voice.conn.closeCount())
	}
	if app.state.LiveState() != StateClosed {
		t.Fatalf("live state = %v", app.state.LiveState())
	}
}

func TestREPLSearchAndWeatherWithoutSetup(t *testing.T) {
	app := newTestApp(t)
	out := runREPL(t, app, "search cats\nweather\n/bogus\nsearch\n")
	assertContains(t, out,
		"History recall is disabled",
		"Location unknown",
		UnknownCmdMsg,
		"Usage: search <query>",
	)
}
