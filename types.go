package main

import (
	"fmt"
	"strconv"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// ImageData is an inline image carried by a message.
type ImageData struct {
	Data     string `json:"data"`     // Base64 encoded image bytes
	MIMEType string `json:"mimeType"` // e.g. image/png
}

// GroundingSource is a cited source attached to a grounded reply.
type GroundingSource struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// Message is one entry of a day's conversation. Messages are never edited once appended.
type Message struct {
	ID      string            `json:"id"`
	Text    string            `json:"text"`
	Sender  Sender            `json:"sender"`
	Image   *ImageData        `json:"image,omitempty"`
	Sources []GroundingSource `json:"sources,omitempty"`
}

// MessagesByDate maps a date key to the ordered messages of that day.
type MessagesByDate map[string][]Message

// CalendarEvent is a scheduled reminder.
type CalendarEvent struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Time  string `json:"time"` // RFC 3339 instant
}

// EventsByDate maps a date key to the reminders of that day.
type EventsByDate map[string][]CalendarEvent

// TempUnit is the temperature display unit.
type TempUnit string

const (
	Celsius    TempUnit = "C"
	Fahrenheit TempUnit = "F"
)

// Theme is the display theme.
type Theme string

const (
	ThemeLight        Theme = "light"
	ThemeDark         Theme = "dark"
	ThemeHighContrast Theme = "high-contrast"
)

// Language is a supported UI language.
type Language string

const (
	English Language = "en"
	Turkish Language = "tr"
)

// Settings is the singleton user preferences record.
type Settings struct {
	NotificationTime string   `json:"notificationTime"` // HH:MM local time
	TempUnit         TempUnit `json:"tempUnit"`
	Theme            Theme    `json:"theme"`
	Language         Language `json:"language"`
}

// WeatherData is the current weather at the user's location.
type WeatherData struct {
	Condition   string  `json:"condition"`
	Temperature float64 `json:"temperature"` // Celsius
}

// Location is a latitude/longitude pair.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// String formats the location as "lat,lon".
func (l Location) String() string {
	return strconv.FormatFloat(l.Latitude, 'f', -1, 64) + "," + strconv.FormatFloat(l.Longitude, 'f', -1, 64)
}

// ParseLocation parses a "lat,lon" pair.
func ParseLocation(s string) (*Location, error) {
	var loc Location
	if _, err := fmt.Sscanf(s, "%g,%g", &loc.Latitude, &loc.Longitude); err != nil {
		return nil, fmt.Errorf("invalid location %q: %w", s, err)
	}
	if loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
		return nil, fmt.Errorf("location %q out of range", s)
	}
	return &loc, nil
}

// ChatTurn is one turn of the history sent to the chat model.
type ChatTurn struct {
	Role  string // "user" or "model"
	Parts []ChatPart
}

// ChatPart is either inline image data or text.
type ChatPart struct {
	Image *ImageData
	Text  string
}

// ChatReply is the result of a chat request.
type ChatReply struct {
	Text    string
	Sources []GroundingSource
}
