package main

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
)

var translations = map[Language]map[string]string{
	English: {
		"today":            "Today",
		"yesterday":        "Yesterday",
		"events":           "Events",
		"noEvents":         "No events for this day.",
		"listening":        "Listening...",
		"you":              "You:",
		"monsmatics":       "Monsmatics:",
		"welcomeMessage":   "I am Monsmatics, how can I help you?",
		"errorMessage":     "Sorry, I encountered an error. Please try again.",
		"editedImageText":  "Here is the edited image:",
		"sources":          "Sources:",
		"settings":         "Settings",
		"notificationTime": "Notification Time",
		"temperatureUnit":  "Temperature Unit",
		"theme":            "Theme",
		"language":         "Language",
		"weatherNotice":    "Weather now: %s, %s",
		"reminderNotice":   "Reminder: %s at %s",
		"speechFailed":     "Could not play speech.",
	},
	Turkish: {
		"today":            "Bugün",
		"yesterday":        "Dün",
		"events":           "Etkinlikler",
		"noEvents":         "Bu gün için etkinlik yok.",
		"listening":        "Dinleniyor...",
		"you":              "Siz:",
		"monsmatics":       "Monsmatics:",
		"welcomeMessage":   "Ben Monsmatics, size nasıl yardımcı olabilirim?",
		"errorMessage":     "Üzgünüm, bir hatayla karşılaştım. Lütfen tekrar deneyin.",
		"editedImageText":  "İşte düzenlenmiş resim:",
		"sources":          "Kaynaklar:",
		"settings":         "Ayarlar",
		"notificationTime": "Bildirim Saati",
		"temperatureUnit":  "Sıcaklık Birimi",
		"theme":            "Tema",
		"language":         "Dil",
		"weatherNotice":    "Şu an hava: %s, %s",
		"reminderNotice":   "Hatırlatma: %s, saat %s",
		"speechFailed":     "Ses oynatılamadı.",
	},
}

var languageMatcher = language.NewMatcher([]language.Tag{language.English, language.Turkish})

// MatchLanguage resolves a BCP 47 tag or POSIX locale (e.g. "tr_TR.UTF-8") to a supported language.
func MatchLanguage(pref string) Language {
	if pref == "" {
		return English
	}
	// POSIX locales carry an encoding suffix and use underscores.
	if i := strings.IndexAny(pref, ".@"); i >= 0 {
		pref = pref[:i]
	}
	pref = strings.ReplaceAll(pref, "_", "-")
	tags, _, err := language.ParseAcceptLanguage(pref)
	if err != nil || len(tags) == 0 {
		tag, perr := language.Parse(pref)
		if perr != nil {
			return English
		}
		tags = []language.Tag{tag}
	}
	_, idx, _ := languageMatcher.Match(tags...)
	if idx == 1 {
		return Turkish
	}
	return English
}

// Translate looks key up in lang's table, falling back to English and then the key itself.
func Translate(lang Language, key string) string {
	if v, ok := translations[lang][key]; ok {
		return v
	}
	if v, ok := translations[English][key]; ok {
		return v
	}
	return key
}

var monthNames = map[Language][12]string{
	English: {"January", "February", "March", "April", "May", "June", "July", "August", "September", "October", "November", "December"},
	Turkish: {"Ocak", "Şubat", "Mart", "Nisan", "Mayıs", "Haziran", "Temmuz", "Ağustos", "Eylül", "Ekim", "Kasım", "Aralık"},
}

var weekdayNames = map[Language][7]string{
	English: {"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"},
	Turkish: {"Pazar", "Pazartesi", "Salı", "Çarşamba", "Perşembe", "Cuma", "Cumartesi"},
}

// FormatLongDate renders t as a long weekday/month/day/year date in lang.
func FormatLongDate(lang Language, t time.Time) string {
	months, ok := monthNames[lang]
	if !ok {
		lang, months = English, monthNames[English]
	}
	weekday := weekdayNames[lang][t.Weekday()]
	month := months[t.Month()-1]
	if lang == Turkish {
		return fmt.Sprintf("%d %s %d %s", t.Day(), month, t.Year(), weekday)
	}
	return fmt.Sprintf("%s, %s %d, %d", weekday, month, t.Day(), t.Year())
}
