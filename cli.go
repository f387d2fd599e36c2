package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// REPL is the interactive terminal surface.
type REPL struct {
	app *App
	in  io.Reader

	mu  sync.Mutex
	out io.Writer
}

// NewREPL creates a REPL reading commands from in and writing to out.
func NewREPL(app *App, in io.Reader, out io.Writer) *REPL {
	return &REPL{app: app, in: in, out: out}
}

func (r *REPL) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

func (r *REPL) println(s string) {
	r.printf("%s\n", s)
}

func (r *REPL) t(key string) string {
	return r.app.state.Translate(key)
}

// Run reads commands until exit, end of input or ctx is done.
func (r *REPL) Run(ctx context.Context) error {
	r.app.OnNotice(func(n Notice) {
		r.printf("\n* %s\n", n.Text)
	})
	defer r.app.OnNotice(nil)

	lines := scanLines(ctx, r.in)
	r.println(WelcomeBanner)
	r.println(HelpMsg)
	r.showDay()
	for {
		r.printf("\n%s", PromptStr)
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if r.Execute(ctx, line, lines) {
				return nil
			}
		}
	}
}

// scanLines feeds the lines of in to a channel that closes at end of input.
func scanLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// RunLive runs a single voice session ended by Enter.
func (r *REPL) RunLive(ctx context.Context) {
	r.cliLive(ctx, scanLines(ctx, r.in))
}

// Execute runs one command line. It returns true on exit. lines supplies the keypress that ends
// a live session.
func (r *REPL) Execute(ctx context.Context, line string, lines <-chan string) (quit bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(cmd) {
	case "exit", "quit":
		return true

	case "help":
		r.println(HelpMsg)

	case "say":
		if rest == "" {
			r.println("Usage: say <text>")
			return false
		}
		r.send(ctx, SendRequest{Text: rest})

	case "image":
		r.cliImage(ctx, rest)

	case "day":
		if rest != "" {
			if err := r.app.state.SelectDate(rest); err != nil {
				r.printf("Error: %v\n", err)
				return false
			}
		}
		r.showDay()

	case "days":
		r.cliDays()

	case "remind":
		when, title, _ := strings.Cut(rest, " ")
		if when == "" || strings.TrimSpace(title) == "" {
			r.println("Usage: remind <time> <title>")
			return false
		}
		event, err := r.app.reminders.Add(title, when)
		if err != nil {
			r.printf("Error: %v\n", err)
			return false
		}
		r.println(FormatReminder(event, r.app.reminders.loc))

	case "reminders":
		r.cliReminders()

	case "unremind":
		parts := strings.Fields(rest)
		if len(parts) != 2 {
			r.println("Usage: unremind <date> <id>")
			return false
		}
		if err := r.app.reminders.Delete(parts[0], parts[1]); err != nil {
			r.printf("Error: %v\n", err)
		}

	case "settings":
		r.cliSettings()

	case "set":
		key, value, _ := strings.Cut(rest, " ")
		settings, err := ApplySetting(r.app.state.Settings(), key, strings.TrimSpace(value))
		if err == nil {
			err = r.app.state.SaveSettings(settings)
		}
		if err != nil {
			r.printf("Error: %v\n", err)
			return false
		}
		r.cliSettings()

	case "speak":
		r.cliSpeak(ctx, rest)

	case "weather":
		if r.app.state.Location() == nil {
			r.println("Location unknown; set MONSMATICS_LOCATION=<lat>,<lon>")
			return false
		}
		if data := r.app.weather.Refresh(ctx); data != nil {
			r.println(r.app.weather.Describe(data))
		} else {
			r.println("Weather unavailable.")
		}

	case "live":
		r.cliLive(ctx, lines)

	case "search":
		r.cliSearch(ctx, rest)

	case "export":
		r.cliExport(rest)

	case "import":
		r.cliImport(rest)

	default:
		if strings.HasPrefix(cmd, "/") {
			r.println(UnknownCmdMsg)
			return false
		}
		r.send(ctx, SendRequest{Text: line})
	}
	return false
}

func (r *REPL) send(ctx context.Context, req SendRequest) {
	reply, err := r.app.chat.Send(ctx, req)
	if err != nil {
		r.printf("Error: %v\n", err)
		return
	}
	r.println(FormatMessage(r.app.state.Language(), *reply))
	if reply.Image != nil {
		path, err := SaveImage(filepath.Join(r.app.cfg.DataDir, "images"), reply.ID, reply.Image)
		if err != nil {
			r.printf("Error: %v\n", err)
			return
		}
		r.printf("  %s\n", path)
	}
}

// cliImage parses "<path> [--edit] <text>".
func (r *REPL) cliImage(ctx context.Context, args string) {
	path, rest, _ := strings.Cut(args, " ")
	if path == "" {
		r.println("Usage: image <path> [--edit] <text>")
		return
	}
	rest = strings.TrimSpace(rest)
	edit := false
	if after, ok := strings.CutPrefix(rest, "--edit"); ok {
		edit = true
		rest = strings.TrimSpace(after)
	}
	img, err := LoadImage(path)
	if err != nil {
		r.printf("Error: %v\n", err)
		return
	}
	r.send(ctx, SendRequest{Text: rest, Image: img, Edit: edit})
}

func (r *REPL) showDay() {
	state := r.app.state
	date := state.SelectedDate()
	msgs, err := r.app.conversations.Get(date)
	if err != nil {
		r.printf("Error: %v\n", err)
		return
	}
	r.printf("--- %s ---\n", state.FormatDate(date))
	lang := state.Language()
	for _, m := range msgs {
		r.println(FormatMessage(lang, m))
	}
}

func (r *REPL) cliDays() {
	dates, err := r.app.state.CalendarDates()
	if err != nil {
		r.printf("Error: %v\n", err)
		return
	}
	selected := r.app.state.SelectedDate()
	for _, d := range dates {
		marker := " "
		if d == selected {
			marker = "*"
		}
		r.printf("%s %s  %s\n", marker, d, r.app.state.FormatDate(d))
	}
}

func (r *REPL) cliReminders() {
	date := r.app.state.SelectedDate()
	events, err := r.app.reminders.ForDate(date)
	if err != nil {
		r.printf("Error: %v\n", err)
		return
	}
	r.printf("%s (%s)\n", r.t("events"), r.app.state.FormatDate(date))
	if len(events) == 0 {
		r.println(r.t("noEvents"))
		return
	}
	for _, e := range events {
		r.println("  " + FormatReminder(e, r.app.reminders.loc))
	}
}

func (r *REPL) cliSettings() {
	s := r.app.state.Settings()
	r.println(r.t("settings"))
	r.printf("  %s: %s\n", r.t("notificationTime"), s.NotificationTime)
	r.printf("  %s: %s\n", r.t("temperatureUnit"), s.TempUnit)
	r.printf("  %s: %s\n", r.t("theme"), s.Theme)
	r.printf("  %s: %s\n", r.t("language"), s.Language)
}

// cliSpeak reads the n-th AI message of the selected day, counting from 1; the last by default.
func (r *REPL) cliSpeak(ctx context.Context, arg string) {
	msgs, err := r.app.conversations.Get(r.app.state.SelectedDate())
	if err != nil {
		r.printf("Error: %v\n", err)
		return
	}
	var texts []string
	for _, m := range msgs {
		if m.Sender == SenderAI && m.Text != "" {
			texts = append(texts, m.Text)
		}
	}
	n := len(texts)
	if arg != "" {
		if n, err = strconv.Atoi(arg); err != nil {
			r.println("Usage: speak [n]")
			return
		}
	}
	if n < 1 || n > len(texts) {
		r.println("No such message.")
		return
	}
	if err := r.app.speech.Speak(ctx, texts[n-1]); err != nil {
		r.println(r.t("speechFailed"))
	}
}

// cliLive runs a voice session until the next input line or the session ends.
func (r *REPL) cliLive(ctx context.Context, lines <-chan string) {
	session := r.app.NewLiveSession()
	if err := session.Start(ctx); err != nil {
		r.printf("Error: %v\n", err)
		return
	}
	r.println(r.t("listening"))

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	var lastUser, lastAI string
	for {
		select {
		case <-lines:
		case <-session.Done():
		case <-ctx.Done():
		case <-ticker.C:
			user, ai := r.app.state.LiveTranscripts()
			if user != lastUser && user != "" {
				r.printf("%s %s\n", r.t("you"), user)
			}
			if ai != lastAI && ai != "" {
				r.printf("%s %s\n", r.t("monsmatics"), ai)
			}
			lastUser, lastAI = user, ai
			continue
		}
		break
	}
	if err := session.Stop(); err != nil {
		r.app.logger.Warn("live session teardown failed", zap.Error(err))
	}
}

func (r *REPL) cliSearch(ctx context.Context, query string) {
	if query == "" {
		r.println("Usage: search <query>")
		return
	}
	if r.app.recall == nil {
		r.println("History recall is disabled; set MONSMATICS_RECALL=1")
		return
	}
	hits, err := r.app.recall.Search(ctx, query, DefaultRecallResults)
	if err != nil {
		r.printf("Error: %v\n", err)
		return
	}
	if len(hits) == 0 {
		r.println("No matching messages.")
		return
	}
	lang := r.app.state.Language()
	for _, h := range hits {
		r.printf("[%s] %s\n", h.Date, FormatMessage(lang, Message{Sender: h.Sender, Text: h.Text}))
	}
}

func (r *REPL) cliExport(path string) {
	if path == "" {
		r.println("Usage: export <file>")
		return
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		r.printf("Error: %v\n", err)
		return
	}
	err = r.app.WriteBackup(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		r.printf("Error: %v\n", err)
		return
	}
	r.printf("Exported to %s\n", path)
}

func (r *REPL) cliImport(path string) {
	if path == "" {
		r.println("Usage: import <file>")
		return
	}
	f, err := os.Open(path)
	if err != nil {
		r.printf("Error: %v\n", err)
		return
	}
	defer f.Close()
	res, err := r.app.ReadBackup(f)
	if err != nil {
		r.printf("Error: %v\n", err)
		return
	}
	r.printf("Imported %d messages and %d reminders.\n", res.Messages, res.Reminders)
}
