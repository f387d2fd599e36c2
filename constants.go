package main

// Model configuration constants
const (
	// Model used for chat, image analysis and weather estimation
	DefaultChatModel = "gemini-2.5-flash"
	// Model used for image editing
	DefaultImageModel = "gemini-2.5-flash-image"
	// Model used for one-shot speech synthesis
	DefaultTTSModel = "gemini-2.5-flash-preview-tts"
	// Model used for the duplex voice session
	DefaultLiveModel = "gemini-2.5-flash-native-audio-preview-09-2025"
	// Embedding model for the history recall index
	DefaultEmbeddingModel = "gemini-embedding-001"
	// Output dimensionality for recall embeddings
	EmbeddingDimension = 768
)

// Voice configuration constants
const (
	// Prebuilt voice for the live session
	DefaultLiveVoice = "Zephyr"
	// Prebuilt voice for speech synthesis
	DefaultTTSVoice = "Kore"
	// Prefix prepended to text sent for speech synthesis
	TTSPromptPrefix = "Say cheerfully: "
)

// Audio pipeline constants
const (
	// Capture sample rate sent to the live endpoint
	InputSampleRate = 16000
	// Sample rate of audio returned by the live and TTS endpoints
	OutputSampleRate = 24000
	// Samples per capture block
	CaptureBlockSize = 4096
	// Channel count for capture and playback
	AudioChannels = 1
)

// Storage constants
const (
	// Key prefix for the conversation log buckets
	MessagesPrefix = "messages/"
	// Key prefix for the reminder buckets
	EventsPrefix = "events/"
	// Key of the settings record
	SettingsKey = "settings"
	// Directory under the data dir holding the badger files
	StoreDirName = "store"
	// Directory under the data dir holding the recall index
	RecallDirName = "recall"
	// Collection name in the recall index
	RecallCollection = "messages"
	// Marks query text passed through the embedding function
	QueryTaskPrefix = "query: "
)

// Date formats
const (
	// Layout of a date bucket key
	DateLayout = "2006-01-02"
	// Layout accepted for local reminder times without an offset
	LocalTimeLayout = "2006-01-02T15:04"
	// Layout of the daily notification time
	NotificationLayout = "15:04"
)

// Chat constants
const (
	// Suffix of the synthesized welcome message id
	WelcomeIDSuffix = "-initial"
	// MIME type of edited images returned by the service
	EditedImageMIME = "image/png"
	// Prompt used when an edit request carries no text
	DefaultEditPrompt = "edit the image"
	// Title used for a cited source without one
	DefaultSourceTitle = "Source"
	// Default number of recall search results
	DefaultRecallResults = 5
)

// GroundingKeywords enable retrieval augmentation when found in a prompt.
var GroundingKeywords = []string{"latest", "current", "nearby"}

// Application constants
const (
	// Application name used for the config dir and MCP server
	AppName = "monsmatics"
	// Version following semantic versioning
	AppVersion = "0.4.0"
)

// UI/CLI messages
const (
	PromptStr     = "monsmatics> "
	WelcomeBanner = "=== Monsmatics ==="
	HelpMsg       = `Commands:
  say <text>                    send a message (bare text works too)
  image <path> [--edit] <text>  analyze or edit an image
  day [YYYY-MM-DD]              show or switch the selected day
  days                          list days with history or reminders
  remind <time> <title>         add a reminder (RFC 3339 or YYYY-MM-DDTHH:MM)
  reminders                     list reminders
  unremind <date> <id>          delete a reminder
  settings                      show settings
  set <key> <value>             change a setting (language, theme, unit, notify)
  speak [n]                     read the last (or n-th) AI message aloud
  weather                       show the local weather
  live                          start a voice conversation (Enter ends it)
  search <query>                search past conversations
  export <file>                 write all data to a JSON file
  import <file>                 merge a JSON export into the stored data
  exit`
	UnknownCmdMsg = "Unknown command. Type 'help' for a list of commands."
)
