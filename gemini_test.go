package main

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/genai"
)

func TestParseWeather(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want *WeatherData
	}{
		{"plain", `{"condition": "sunny", "temperature": 25}`, &WeatherData{"sunny", 25}},
		{"fenced", "```json\n{\"condition\": \"rain\", \"temperature\": -3.5}\n```", &WeatherData{"rain", -3.5}},
		{"string temperature", `{"condition": "sunny", "temperature": "25"}`, nil},
		{"missing condition", `{"temperature": 25}`, nil},
		{"empty condition", `{"condition": "", "temperature": 25}`, nil},
		{"not json", `It is sunny.`, nil},
		{"array", `[1,2]`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ParseWeather(tt.in)); diff != "" {
				t.Fatalf("ParseWeather mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeSources(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			GroundingMetadata: &genai.GroundingMetadata{
				GroundingChunks: []*genai.GroundingChunk{
					{Web: &genai.GroundingChunkWeb{URI: "https://a.example", Title: "A"}},
					{Maps: &genai.GroundingChunkMaps{URI: "https://maps.example/p"}},
					{Web: &genai.GroundingChunkWeb{Title: "no uri"}},
					{},
					nil,
				},
			},
		}},
	}
	want := []GroundingSource{
		{URI: "https://a.example", Title: "A"},
		{URI: "https://maps.example/p", Title: "Source"},
	}
	if diff := cmp.Diff(want, DecodeSources(resp)); diff != "" {
		t.Fatalf("DecodeSources mismatch (-want +got):\n%s", diff)
	}

	for name, r := range map[string]*genai.GenerateContentResponse{
		"nil":           nil,
		"no candidates": {},
		"nil candidate": {Candidates: []*genai.Candidate{nil}},
		"no metadata":   {Candidates: []*genai.Candidate{{}}},
	} {
		if got := DecodeSources(r); got != nil {
			t.Errorf("%s: DecodeSources = %v, want nil", name, got)
		}
	}
}

func TestToContents(t *testing.T) {
	img := ImageData{Data: Base64Encode([]byte{1, 2, 3}), MIMEType: "image/jpeg"}
	history := []ChatTurn{
		{Role: "model", Parts: []ChatPart{{Text: "welcome"}}},
		{Role: "user", Parts: []ChatPart{{Image: &img}, {Text: "what is this"}}},
		{Role: "user"},
	}
	contents, err := toContents(history)
	if err != nil {
		t.Fatal(err)
	}
	if len(contents) != 2 {
		t.Fatalf("got %d contents, want 2 (empty turn dropped)", len(contents))
	}
	if contents[0].Role != genai.RoleModel || contents[0].Parts[0].Text != "welcome" {
		t.Fatalf("first content = %+v", contents[0])
	}
	parts := contents[1].Parts
	if parts[0].InlineData == nil || string(parts[0].InlineData.Data) != "\x01\x02\x03" || parts[0].InlineData.MIMEType != "image/jpeg" {
		t.Fatalf("image part = %+v", parts[0])
	}
	if parts[1].Text != "what is this" {
		t.Fatalf("text part = %+v", parts[1])
	}

	bad := []ChatTurn{{Role: "user", Parts: []ChatPart{{Image: &ImageData{Data: "%%%"}}}}}
	if _, err := toContents(bad); err == nil {
		t.Fatal("expected error for invalid image data")
	}
}

func TestChatConfig(t *testing.T) {
	if cfg := chatConfig(false, &Location{1, 2}); cfg != nil {
		t.Fatalf("ungrounded config = %+v, want nil", cfg)
	}

	cfg := chatConfig(true, nil)
	if len(cfg.Tools) != 1 || cfg.Tools[0].GoogleSearch == nil || cfg.ToolConfig != nil {
		t.Fatalf("search-only config = %+v", cfg)
	}

	cfg = chatConfig(true, &Location{Latitude: 41, Longitude: 29})
	if len(cfg.Tools) != 2 || cfg.Tools[1].GoogleMaps == nil {
		t.Fatalf("tools = %+v", cfg.Tools)
	}
	latLng := cfg.ToolConfig.RetrievalConfig.LatLng
	if *latLng.Latitude != 41 || *latLng.Longitude != 29 {
		t.Fatalf("latLng = %v,%v", *latLng.Latitude, *latLng.Longitude)
	}
}

func TestConvertLiveMessage(t *testing.T) {
	msg := &genai.LiveServerMessage{
		ServerContent: &genai.LiveServerContent{
			InputTranscription:  &genai.Transcription{Text: "hi"},
			OutputTranscription: &genai.Transcription{Text: "hello"},
			TurnComplete:        true,
			Interrupted:         true,
			ModelTurn: &genai.Content{Parts: []*genai.Part{
				{InlineData: &genai.Blob{Data: []byte{0, 1}, MIMEType: "audio/pcm;rate=24000"}},
				{Text: "ignored"},
				{InlineData: &genai.Blob{}},
			}},
		},
	}
	want := &ServerMessage{
		InputText:    "hi",
		OutputText:   "hello",
		TurnComplete: true,
		Interrupted:  true,
		Audio:        []string{Base64Encode([]byte{0, 1})},
	}
	if diff := cmp.Diff(want, ConvertLiveMessage(msg)); diff != "" {
		t.Fatalf("ConvertLiveMessage mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff(&ServerMessage{}, ConvertLiveMessage(&genai.LiveServerMessage{})); diff != "" {
		t.Fatalf("setup message mismatch (-want +got):\n%s", diff)
	}
}

func TestFirstInlineData(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []*genai.Part{
			{Text: "caption"},
			{InlineData: &genai.Blob{Data: []byte("png"), MIMEType: "image/png"}},
		}},
	}}}
	if blob := firstInlineData(resp); blob == nil || string(blob.Data) != "png" {
		t.Fatalf("firstInlineData = %+v", blob)
	}
	if blob := firstInlineData(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}); blob != nil {
		t.Fatalf("firstInlineData on empty candidate = %+v", blob)
	}
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	normalize(v)
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Fatalf("normalize = %v", v)
	}
	zero := []float32{0, 0}
	normalize(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Fatalf("zero vector changed: %v", zero)
	}
}
