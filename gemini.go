package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

var (
	// ErrNoImageInResponse is returned when an edit reply carries no inline image.
	ErrNoImageInResponse = errors.New("no image data in response")
	// ErrNoAudioInResponse is returned when a speech reply carries no inline audio.
	ErrNoAudioInResponse = errors.New("no audio data in response")
)

// Embedding task types
const (
	TaskTypeDocument = "RETRIEVAL_DOCUMENT"
	TaskTypeQuery    = "RETRIEVAL_QUERY"
)

// RemoteService is the request/response side of the generative AI backend.
type RemoteService interface {
	Weather(ctx context.Context, lat, lon float64) (*WeatherData, error)
	AnalyzeImage(ctx context.Context, prompt string, image ImageData) (string, error)
	EditImage(ctx context.Context, prompt string, image ImageData) (*ImageData, error)
	// Chat sends the conversation; history already ends with the user turn for prompt.
	Chat(ctx context.Context, history []ChatTurn, prompt string, useGrounding bool, loc *Location) (*ChatReply, error)
	// SynthesizeSpeech returns base64 PCM16 at 24 kHz mono.
	SynthesizeSpeech(ctx context.Context, text string) (string, error)
}

// GeminiService implements RemoteService and VoiceService on the Gemini API.
type GeminiService struct {
	client *genai.Client
	cfg    GeminiConfig
	logger *zap.Logger
}

// NewGeminiService creates a Gemini client for cfg.
func NewGeminiService(ctx context.Context, cfg GeminiConfig, logger *zap.Logger) (*GeminiService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIKey == "" {
		return nil, errors.New("GEMINI_API_KEY is not set")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiService{client: client, cfg: cfg, logger: logger}, nil
}

// Weather asks the chat model for the current weather in JSON mode. A reply that does not hold
// a condition and a numeric temperature yields nil data and no error.
func (g *GeminiService) Weather(ctx context.Context, lat, lon float64) (*WeatherData, error) {
	prompt := fmt.Sprintf("What is the current weather condition and temperature at latitude %g and longitude %g? "+
		"Provide a short description for condition and just the number for temperature in Celsius. "+
		`Respond in JSON format like {"condition": "sunny", "temperature": 25}.`, lat, lon)

	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.ChatModel, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("weather request failed: %w", err)
	}
	data := ParseWeather(resp.Text())
	if data == nil {
		g.logger.Debug("unusable weather reply", zap.String("text", resp.Text()))
	}
	return data, nil
}

// ParseWeather decodes a JSON weather reply, tolerating a fenced code block around it.
func ParseWeather(text string) *WeatherData {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var raw map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &raw); err != nil {
		return nil
	}
	condition, _ := raw["condition"].(string)
	temperature, ok := raw["temperature"].(float64)
	if condition == "" || !ok || math.IsNaN(temperature) {
		return nil
	}
	return &WeatherData{Condition: condition, Temperature: temperature}
}

func imagePart(image ImageData) (*genai.Part, error) {
	data, err := Base64Decode(image.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid image data: %w", err)
	}
	return genai.NewPartFromBytes(data, image.MIMEType), nil
}

// AnalyzeImage answers prompt about image.
func (g *GeminiService) AnalyzeImage(ctx context.Context, prompt string, image ImageData) (string, error) {
	img, err := imagePart(image)
	if err != nil {
		return "", err
	}
	contents := []*genai.Content{genai.NewContentFromParts([]*genai.Part{img, genai.NewPartFromText(prompt)}, genai.RoleUser)}

	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.ChatModel, contents, nil)
	if err != nil {
		return "", fmt.Errorf("image analysis failed: %w", err)
	}
	return resp.Text(), nil
}

// EditImage returns image edited according to prompt.
func (g *GeminiService) EditImage(ctx context.Context, prompt string, image ImageData) (*ImageData, error) {
	img, err := imagePart(image)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultEditPrompt
	}
	contents := []*genai.Content{genai.NewContentFromParts([]*genai.Part{img, genai.NewPartFromText(prompt)}, genai.RoleUser)}

	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.ImageModel, contents, &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityImage)},
	})
	if err != nil {
		return nil, fmt.Errorf("image edit failed: %w", err)
	}
	blob := firstInlineData(resp)
	if blob == nil {
		return nil, ErrNoImageInResponse
	}
	mime := blob.MIMEType
	if mime == "" {
		mime = EditedImageMIME
	}
	return &ImageData{Data: Base64Encode(blob.Data), MIMEType: mime}, nil
}

// Chat sends the conversation history, optionally grounded on search and maps.
func (g *GeminiService) Chat(ctx context.Context, history []ChatTurn, prompt string, useGrounding bool, loc *Location) (*ChatReply, error) {
	contents, err := toContents(history)
	if err != nil {
		return nil, err
	}
	if len(contents) == 0 {
		contents = genai.Text(prompt)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.ChatModel, contents, chatConfig(useGrounding, loc))
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	return &ChatReply{Text: resp.Text(), Sources: DecodeSources(resp)}, nil
}

func chatConfig(useGrounding bool, loc *Location) *genai.GenerateContentConfig {
	if !useGrounding {
		return nil
	}
	cfg := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	}
	if loc != nil {
		lat, lon := loc.Latitude, loc.Longitude
		cfg.Tools = append(cfg.Tools, &genai.Tool{GoogleMaps: &genai.GoogleMaps{}})
		cfg.ToolConfig = &genai.ToolConfig{
			RetrievalConfig: &genai.RetrievalConfig{
				LatLng: &genai.LatLng{Latitude: &lat, Longitude: &lon},
			},
		}
	}
	return cfg
}

func toContents(history []ChatTurn) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		parts := make([]*genai.Part, 0, len(turn.Parts))
		for _, p := range turn.Parts {
			if p.Image != nil {
				img, err := imagePart(*p.Image)
				if err != nil {
					return nil, err
				}
				parts = append(parts, img)
				continue
			}
			parts = append(parts, genai.NewPartFromText(p.Text))
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, genai.NewContentFromParts(parts, genai.Role(turn.Role)))
	}
	return contents, nil
}

// DecodeSources extracts cited web or maps sources from the first candidate. Missing or
// malformed metadata yields no sources.
func DecodeSources(resp *genai.GenerateContentResponse) []GroundingSource {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil
	}
	meta := resp.Candidates[0].GroundingMetadata
	if meta == nil {
		return nil
	}

	var sources []GroundingSource
	for _, chunk := range meta.GroundingChunks {
		if chunk == nil {
			continue
		}
		var uri, title string
		if chunk.Web != nil {
			uri, title = chunk.Web.URI, chunk.Web.Title
		}
		if chunk.Maps != nil {
			if uri == "" {
				uri = chunk.Maps.URI
			}
			if title == "" {
				title = chunk.Maps.Title
			}
		}
		if uri == "" {
			continue
		}
		if title == "" {
			title = DefaultSourceTitle
		}
		sources = append(sources, GroundingSource{URI: uri, Title: title})
	}
	return sources
}

// SynthesizeSpeech reads text aloud and returns base64 PCM16 at 24 kHz.
func (g *GeminiService) SynthesizeSpeech(ctx context.Context, text string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.TTSModel, genai.Text(TTSPromptPrefix+text), &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityAudio)},
		SpeechConfig:       speechConfig(g.cfg.TTSVoice),
	})
	if err != nil {
		return "", fmt.Errorf("speech synthesis failed: %w", err)
	}
	blob := firstInlineData(resp)
	if blob == nil || len(blob.Data) == 0 {
		return "", ErrNoAudioInResponse
	}
	return Base64Encode(blob.Data), nil
}

func speechConfig(voice string) *genai.SpeechConfig {
	return &genai.SpeechConfig{
		VoiceConfig: &genai.VoiceConfig{
			PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
		},
	}
}

func firstInlineData(resp *genai.GenerateContentResponse) *genai.Blob {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return nil
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.InlineData != nil {
			return part.InlineData
		}
	}
	return nil
}

// Embed returns the L2-normalized embedding of text for taskType.
func (g *GeminiService) Embed(ctx context.Context, text, taskType string) ([]float32, error) {
	dim := int32(EmbeddingDimension)
	res, err := g.client.Models.EmbedContent(ctx, g.cfg.EmbeddingModel, genai.Text(text), &genai.EmbedContentConfig{
		TaskType:             taskType,
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if len(res.Embeddings) == 0 || res.Embeddings[0] == nil {
		return nil, errors.New("no embeddings returned")
	}
	values := res.Embeddings[0].Values
	normalize(values)
	return values, nil
}

// normalize performs L2 normalization on a vector of float32 values.
func normalize(v []float32) {
	var sum float64
	for _, val := range v {
		sum += float64(val * val)
	}
	magnitude := float32(math.Sqrt(sum))
	if magnitude <= 0 {
		return
	}
	for i := range v {
		v[i] /= magnitude
	}
}

// Connect opens a duplex audio session with transcription in both directions.
func (g *GeminiService) Connect(ctx context.Context, cfg LiveConfig) (LiveConn, error) {
	model := cfg.Model
	if model == "" {
		model = g.cfg.LiveModel
	}
	voice := cfg.Voice
	if voice == "" {
		voice = g.cfg.LiveVoice
	}

	connectCfg := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SpeechConfig:       speechConfig(voice),
	}
	if cfg.InputTranscription {
		connectCfg.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if cfg.OutputTranscription {
		connectCfg.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}

	session, err := g.client.Live.Connect(ctx, model, connectCfg)
	if err != nil {
		return nil, fmt.Errorf("live connect failed: %w", err)
	}
	g.logger.Info("live session opened", zap.String("model", model), zap.String("voice", voice))
	return &geminiLiveConn{session: session}, nil
}

type geminiLiveConn struct {
	session *genai.Session
}

func (c *geminiLiveConn) SendAudio(chunk AudioChunk) error {
	data, err := Base64Decode(chunk.Data)
	if err != nil {
		return err
	}
	return c.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: data, MIMEType: chunk.MIMEType},
	})
}

func (c *geminiLiveConn) Receive() (*ServerMessage, error) {
	msg, err := c.session.Receive()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || errors.Is(err, net.ErrClosed) {
			return nil, io.EOF
		}
		return nil, err
	}
	return ConvertLiveMessage(msg), nil
}

func (c *geminiLiveConn) Close() error {
	return c.session.Close()
}

// ConvertLiveMessage maps a Gemini live message onto ServerMessage. Inline audio is re-encoded
// as base64.
func ConvertLiveMessage(msg *genai.LiveServerMessage) *ServerMessage {
	out := &ServerMessage{}
	if msg == nil || msg.ServerContent == nil {
		return out
	}
	sc := msg.ServerContent
	if sc.InputTranscription != nil {
		out.InputText = sc.InputTranscription.Text
	}
	if sc.OutputTranscription != nil {
		out.OutputText = sc.OutputTranscription.Text
	}
	out.TurnComplete = sc.TurnComplete
	out.Interrupted = sc.Interrupted
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				out.Audio = append(out.Audio, Base64Encode(part.InlineData.Data))
			}
		}
	}
	return out
}
