package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestBackupRoundTrip(t *testing.T) {
	src := newTestApp(t)
	if _, err := src.chat.Send(context.Background(), SendRequest{Text: "remember the milk"}); err != nil {
		t.Fatal(err)
	}
	if _, err := src.reminders.Add("dentist", "2024-05-11T09:00"); err != nil {
		t.Fatal(err)
	}
	settings := src.state.Settings()
	settings.Theme = ThemeLight
	if err := src.state.SaveSettings(settings); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := src.WriteBackup(&buf); err != nil {
		t.Fatal(err)
	}
	data := buf.String()

	dst := newTestApp(t)
	res, err := dst.ReadBackup(strings.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	// The welcome message already exists on the destination.
	want := ImportResult{Messages: 2, Reminders: 1, Settings: true}
	if res != want {
		t.Fatalf("import = %+v, want %+v", res, want)
	}
	msgs, _ := dst.conversations.Get("2024-05-10")
	if len(msgs) != 3 || msgs[1].Text != "remember the milk" {
		t.Fatalf("messages = %+v", msgs)
	}
	if dst.state.Settings().Theme != ThemeLight {
		t.Fatalf("theme = %q", dst.state.Settings().Theme)
	}

	again, err := dst.ReadBackup(strings.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if again.Messages != 0 || again.Reminders != 0 {
		t.Fatalf("second import = %+v, want nothing added", again)
	}
}

func TestImportRejectsBadBackups(t *testing.T) {
	app := newTestApp(t)
	for name, data := range map[string]string{
		"garbage":      "not json",
		"version":      `{"version":"9"}`,
		"date":         `{"version":"1","conversations":{"May 1":[{"id":"a","text":"x","sender":"user"}]}}`,
		"reminderTime": `{"version":"1","reminders":{"2024-05-11":[{"id":"r","title":"x","time":"soon"}]}}`,
	} {
		if _, err := app.ReadBackup(strings.NewReader(data)); err == nil {
			t.Errorf("%s: import succeeded", name)
		}
	}
	if left, _ := app.reminders.ListAll(); len(left) != 0 {
		t.Fatalf("reminders after failed imports = %+v", left)
	}
}

func TestExportImportTools(t *testing.T) {
	app := newTestApp(t)
	exported, isErr := callTool(t, app.exportDataHandler, nil)
	if isErr || !strings.Contains(exported, `"version": "1"`) {
		t.Fatalf("export_data = %q", exported)
	}
	if _, isErr := callTool(t, app.importDataHandler, map[string]any{}); !isErr {
		t.Fatal("import_data without data succeeded")
	}
	text, isErr := callTool(t, app.importDataHandler, map[string]any{"json_data": exported})
	if isErr || text != "Imported 0 messages and 0 reminders." {
		t.Fatalf("import_data = %q", text)
	}
}
