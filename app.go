package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// App wires the stores, remote services and devices behind every surface.
type App struct {
	cfg    *Config
	logger *zap.Logger

	store         *KVStore
	conversations *ConversationStore
	reminders     *ReminderStore
	settings      *SettingsStore
	state         *AppState
	remote        RemoteService
	voice         VoiceService
	chat          *ChatOrchestrator
	weather       *WeatherReporter
	speech        *SpeechPlayer
	scheduler     *Scheduler
	recall        *RecallIndex // nil when recall is disabled
	mic           Microphone
	speaker       Speaker

	noticeMu sync.Mutex
	onNotice func(Notice)
	closers  []func() error
}

// appDeps are the external collaborators of an App.
type appDeps struct {
	store   *KVStore
	remote  RemoteService
	voice   VoiceService
	mic     Microphone
	speaker Speaker
	recall  *RecallIndex
	now     func() time.Time
	loc     *time.Location
}

// NewApp opens the local store and connects the Gemini-backed services described by cfg.
func NewApp(ctx context.Context, cfg *Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := OpenKVStore(filepath.Join(cfg.DataDir, StoreDirName), logger.Named("store"))
	if err != nil {
		return nil, err
	}
	gemini, err := NewGeminiService(ctx, cfg.Gemini, logger.Named("gemini"))
	if err != nil {
		return nil, multierr.Append(err, store.Close())
	}

	deps := appDeps{
		store:   store,
		remote:  gemini,
		voice:   gemini,
		mic:     NewMalgoMicrophone(InputSampleRate, logger.Named("mic")),
		speaker: NewOtoSpeaker(time.Duration(cfg.Audio.OutputBufferMS)*time.Millisecond, logger.Named("speaker")),
	}
	if cfg.Recall.Enabled {
		recall, err := OpenRecallIndex(filepath.Join(cfg.DataDir, RecallDirName), cfg.Recall.Compress, gemini, logger.Named("recall"))
		if err != nil {
			return nil, multierr.Append(err, store.Close())
		}
		deps.recall = recall
	}

	app, err := newApp(cfg, deps, logger)
	if err != nil {
		return nil, multierr.Append(err, store.Close())
	}
	app.closers = append(app.closers, store.Close)
	return app, nil
}

func newApp(cfg *Config, deps appDeps, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:           cfg,
		logger:        logger,
		store:         deps.store,
		conversations: NewConversationStore(deps.store, logger.Named("conversations")),
		reminders:     NewReminderStore(deps.store, deps.loc, logger.Named("reminders")),
		settings:      NewSettingsStore(deps.store, logger.Named("settings")),
		remote:        deps.remote,
		voice:         deps.voice,
		recall:        deps.recall,
		mic:           deps.mic,
		speaker:       deps.speaker,
	}

	if err := a.seedLanguage(); err != nil {
		return nil, err
	}
	state, err := NewAppState(a.conversations, a.reminders, a.settings, deps.now, logger.Named("state"))
	if err != nil {
		return nil, err
	}
	a.state = state
	if cfg.Location != nil {
		state.SetLocation(cfg.Location)
	}

	a.chat = NewChatOrchestrator(state, a.conversations, a.remote, deps.now, logger.Named("chat"))
	a.weather = NewWeatherReporter(a.remote, state, logger.Named("weather"))
	a.speech = NewSpeechPlayer(a.remote, a.speaker, logger.Named("speech"))
	a.scheduler = NewScheduler(state, a.reminders, a.weather, a, deps.now, logger.Named("scheduler"))
	return a, nil
}

// seedLanguage stores the configured or environment language on first run.
func (a *App) seedLanguage() error {
	saved, err := a.settings.Saved()
	if err != nil || saved {
		return err
	}
	pref := a.cfg.Language
	if pref == "" {
		pref = os.Getenv("LANG")
	}
	settings := DefaultSettings
	settings.Language = MatchLanguage(pref)
	a.logger.Debug("first run", zap.String("language", string(settings.Language)))
	return a.settings.Save(settings)
}

// Start runs the background jobs until ctx is done.
func (a *App) Start(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}
	if a.recall != nil {
		if err := a.recall.Backfill(ctx, a.conversations); err != nil {
			a.logger.Warn("recall backfill failed", zap.Error(err))
		}
		unfollow := a.recall.Follow(a.conversations)
		a.closers = append(a.closers, func() error {
			unfollow()
			return nil
		})
		go a.recall.Run(ctx)
	}
	go a.weather.Refresh(ctx)
	return nil
}

// Notify implements Notifier by forwarding to the handler set with OnNotice.
func (a *App) Notify(n Notice) {
	a.noticeMu.Lock()
	fn := a.onNotice
	a.noticeMu.Unlock()
	if fn == nil {
		a.logger.Info("notice", zap.String("kind", string(n.Kind)), zap.String("text", n.Text))
		return
	}
	fn(n)
}

// OnNotice sets the handler for scheduler notices.
func (a *App) OnNotice(fn func(Notice)) {
	a.noticeMu.Lock()
	defer a.noticeMu.Unlock()
	a.onNotice = fn
}

// NewLiveSession creates a voice session mirrored into the app state.
func (a *App) NewLiveSession() *LiveSession {
	cfg := LiveConfig{Model: a.cfg.Gemini.LiveModel, Voice: a.cfg.Gemini.LiveVoice}
	return NewLiveSession(a.mic, a.speaker, a.voice, cfg, a.cfg.Audio.CaptureBlockSize, a.state, a.logger.Named("live"))
}

// Close stops the background jobs and releases the store.
func (a *App) Close() error {
	a.scheduler.Stop()
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i]())
	}
	a.closers = nil
	return err
}
