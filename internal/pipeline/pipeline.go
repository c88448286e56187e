// Package pipeline orchestrates the question-answering flows: voice
// input runs transcription and translation before the answer engine,
// text input goes to the engine directly.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/kalambet/vaani/internal/asr"
	"github.com/kalambet/vaani/internal/chat"
)

// Transcriber converts uploaded audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (asr.Transcript, error)
}

// Translator brings source-language text into English.
type Translator interface {
	ToEnglish(ctx context.Context, text, sourceLanguage string) (string, error)
}

// Answerer resolves a question within a session.
type Answerer interface {
	Answer(ctx context.Context, sessionID, question string, userMeta map[string]any) (chat.Result, error)
}

// Pipeline ties speech recognition, translation, and the answer engine
// together.
type Pipeline struct {
	transcriber Transcriber
	translator  Translator
	answerer    Answerer
	logger      *slog.Logger
}

// New creates a Pipeline.
func New(transcriber Transcriber, translator Translator, answerer Answerer, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		transcriber: transcriber,
		translator:  translator,
		answerer:    answerer,
		logger:      logger,
	}
}

// VoiceResult is the outcome of a voice interaction, carrying the
// intermediate transcription and translation alongside the answer.
type VoiceResult struct {
	Transcription string
	Translation   string
	chat.Result
}

// RunVoice transcribes the audio, translates it to English, and answers
// the resulting question. The raw transcription and source language are
// stored as metadata on the user turn.
func (p *Pipeline) RunVoice(ctx context.Context, sessionID, filename string, audio io.Reader, sourceLanguage string) (VoiceResult, error) {
	transcript, err := p.transcriber.Transcribe(ctx, filename, audio)
	if err != nil {
		return VoiceResult{}, fmt.Errorf("transcribing audio: %w", err)
	}
	p.logger.Info("transcribed audio", "session", sessionID, "language", sourceLanguage, "chars", len(transcript.Text))

	translation, err := p.translator.ToEnglish(ctx, transcript.Text, sourceLanguage)
	if err != nil {
		return VoiceResult{}, fmt.Errorf("translating transcription: %w", err)
	}

	res, err := p.answerer.Answer(ctx, sessionID, translation, map[string]any{
		"transcription":   transcript.Text,
		"source_language": sourceLanguage,
	})
	if err != nil {
		return VoiceResult{}, err
	}

	return VoiceResult{
		Transcription: transcript.Text,
		Translation:   translation,
		Result:        res,
	}, nil
}

// RunText answers a typed English question.
func (p *Pipeline) RunText(ctx context.Context, sessionID, message string) (chat.Result, error) {
	return p.answerer.Answer(ctx, sessionID, message, map[string]any{
		"input_type": "text",
	})
}
