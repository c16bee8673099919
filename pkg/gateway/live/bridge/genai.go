package bridge

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiBackend opens Live API sessions against Google's GenAI service.
// One instance is constructed at process start and shared by every
// dispatcher.
type GeminiBackend struct {
	client *genai.Client
	model  string
}

func NewGeminiBackend(ctx context.Context, apiKey, model string) (*GeminiBackend, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("live model is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiBackend{client: client, model: model}, nil
}

func (g *GeminiBackend) Connect(ctx context.Context, cfg SessionConfig) (Stream, error) {
	session, err := g.client.Live.Connect(ctx, g.model, liveConnectConfig(cfg))
	if err != nil {
		return nil, err
	}
	return &geminiStream{session: session}, nil
}

func liveConnectConfig(cfg SessionConfig) *genai.LiveConnectConfig {
	out := &genai.LiveConnectConfig{
		ResponseModalities:       []genai.Modality{genai.ModalityAudio},
		SystemInstruction:        genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser),
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if cfg.Temperature > 0 {
		out.Temperature = genai.Ptr(float32(cfg.Temperature))
	}
	if cfg.TopP > 0 {
		out.TopP = genai.Ptr(float32(cfg.TopP))
	}
	if cfg.TopK > 0 {
		out.TopK = genai.Ptr(float32(cfg.TopK))
	}
	if cfg.MaxOutputTokens > 0 {
		out.MaxOutputTokens = int32(cfg.MaxOutputTokens)
	}

	speech := &genai.SpeechConfig{}
	if cfg.Voice != "" {
		speech.VoiceConfig = &genai.VoiceConfig{
			PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
		}
	}
	if cfg.Language != "" {
		speech.LanguageCode = cfg.Language
	}
	if speech.VoiceConfig != nil || speech.LanguageCode != "" {
		out.SpeechConfig = speech
	}

	if cfg.EnableAffectiveDialog {
		out.EnableAffectiveDialog = genai.Ptr(true)
	}
	if cfg.EnableProactiveAudio {
		out.Proactivity = &genai.ProactivityConfig{ProactiveAudio: genai.Ptr(true)}
	}
	if cfg.ThinkingBudget > 0 {
		out.ThinkingConfig = &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr(int32(cfg.ThinkingBudget)),
		}
	}

	// Only low/high override the backend's own activity detection; any
	// other sensitivity keeps the service default.
	switch cfg.VADSensitivity {
	case "low":
		out.RealtimeInputConfig = &genai.RealtimeInputConfig{
			AutomaticActivityDetection: &genai.AutomaticActivityDetection{
				StartOfSpeechSensitivity: genai.StartSensitivityLow,
				EndOfSpeechSensitivity:   genai.EndSensitivityLow,
			},
		}
	case "high":
		out.RealtimeInputConfig = &genai.RealtimeInputConfig{
			AutomaticActivityDetection: &genai.AutomaticActivityDetection{
				StartOfSpeechSensitivity: genai.StartSensitivityHigh,
				EndOfSpeechSensitivity:   genai.EndSensitivityHigh,
			},
		}
	}

	return out
}

type geminiStream struct {
	session *genai.Session
}

func (s *geminiStream) SendAudio(data []byte, mimeType string) error {
	return s.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{Data: data, MIMEType: mimeType},
	})
}

func (s *geminiStream) SendText(text string, turnComplete bool) error {
	return s.session.SendClientContent(genai.LiveClientContentInput{
		Turns:        []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		TurnComplete: genai.Ptr(turnComplete),
	})
}

// Receive performs the one tagged-variant decode of a raw server message.
func (s *geminiStream) Receive() (*ServerMessage, error) {
	msg, err := s.session.Receive()
	if err != nil {
		return nil, err
	}
	out := &ServerMessage{}
	if sc := msg.ServerContent; sc != nil {
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
					out.Audio = append(out.Audio, part.InlineData.Data)
				}
			}
		}
		out.Interrupted = sc.Interrupted
		out.TurnComplete = sc.TurnComplete
		if sc.InputTranscription != nil {
			out.InputTranscript = sc.InputTranscription.Text
		}
		if sc.OutputTranscription != nil {
			out.OutputTranscript = sc.OutputTranscription.Text
		}
	}
	if msg.GoAway != nil {
		out.ErrorMessage = "backend requested disconnect"
	}
	return out, nil
}

func (s *geminiStream) Close() error {
	return s.session.Close()
}
