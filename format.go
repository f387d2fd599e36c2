package main

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MaxImageBytes bounds images loaded from disk.
const MaxImageBytes = 20 << 20

// FormatMessage renders one message as "<speaker>: <text>" followed by its image and sources.
func FormatMessage(lang Language, m Message) string {
	var sb strings.Builder
	speaker := Translate(lang, "monsmatics")
	if m.Sender == SenderUser {
		speaker = Translate(lang, "you")
	}
	sb.WriteString(speaker)
	if m.Text != "" {
		sb.WriteString(" " + m.Text)
	}
	if m.Image != nil {
		fmt.Fprintf(&sb, "\n  [%s, %d bytes]", m.Image.MIMEType, len(m.Image.Data)*3/4)
	}
	if len(m.Sources) > 0 {
		sb.WriteString("\n  " + Translate(lang, "sources"))
		for i, src := range m.Sources {
			fmt.Fprintf(&sb, "\n  %d. %s <%s>", i+1, src.Title, src.URI)
		}
	}
	return sb.String()
}

// FormatReminder renders a reminder as "HH:MM title (id)" in loc.
func FormatReminder(e CalendarEvent, loc *time.Location) string {
	at := e.Time
	if t, err := time.Parse(time.RFC3339, e.Time); err == nil {
		at = t.In(loc).Format(NotificationLayout)
	}
	return fmt.Sprintf("%s %s (%s)", at, e.Title, e.ID)
}

// LoadImage reads an image file and sniffs its MIME type.
func LoadImage(path string) (*ImageData, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if info.Size() > MaxImageBytes {
		return nil, fmt.Errorf("image %s is larger than %d bytes", path, MaxImageBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, fmt.Errorf("%s is not an image (%s)", path, mimeType)
	}
	return &ImageData{Data: Base64Encode(data), MIMEType: mimeType}, nil
}

// SaveImage writes img to dir/<name>.<ext> and returns the path.
func SaveImage(dir, name string, img *ImageData) (string, error) {
	data, err := Base64Decode(img.Data)
	if err != nil {
		return "", err
	}
	ext := ".img"
	if exts, _ := mime.ExtensionsByType(img.MIMEType); len(exts) > 0 {
		ext = exts[0]
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create image directory: %w", err)
	}
	path := filepath.Join(dir, name+ext)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	return path, nil
}
