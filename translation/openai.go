package translation

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const (
	defaultChatModel   = "gpt-4o-mini"
	defaultSpeechModel = "tts-1"
	defaultSpeechVoice = "alloy"

	normalSpeed = 1.0
	slowSpeed   = 0.75
)

//OpenAIClient translates with chat completions and speaks with the speech
//endpoint of any OpenAI compatible API.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	speechModel string
	voice       string
}

func NewOpenAI(apiKey, baseURL, model, speechModel, voice string) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if model == "" {
		model = defaultChatModel
	}
	if speechModel == "" {
		speechModel = defaultSpeechModel
	}
	if voice == "" {
		voice = defaultSpeechVoice
	}
	return &OpenAIClient{
		client:      openai.NewClientWithConfig(config),
		model:       model,
		speechModel: speechModel,
		voice:       voice,
	}
}

func (c *OpenAIClient) Translate(ctx context.Context, text, source, target string) (string, error) {
	out, err := c.complete(ctx, translatePrompt(source, target), text)
	if err != nil {
		return "", &CollaboratorError{Service: "translation", Err: err}
	}
	return out, nil
}

func (c *OpenAIClient) Detect(ctx context.Context, text string) (string, error) {
	out, err := c.complete(ctx, detectPrompt, text)
	if err != nil {
		return "", &CollaboratorError{Service: "language detection", Err: err}
	}
	code := normalizeCode(out)
	if code == "" {
		return "", &CollaboratorError{Service: "language detection", Err: fmt.Errorf("empty reply")}
	}
	return code, nil
}

func (c *OpenAIClient) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

//Synthesize returns mp3 audio. The speech model infers the language from the
//text, lang is only used for logging by callers.
func (c *OpenAIClient) Synthesize(ctx context.Context, text, lang string, slow bool) (io.ReadCloser, error) {
	speed := normalSpeed
	if slow {
		speed = slowSpeed
	}
	resp, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(c.speechModel),
		Input:          text,
		Voice:          openai.SpeechVoice(c.voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          speed,
	})
	if err != nil {
		return nil, &CollaboratorError{Service: "speech synthesis", Err: fmt.Errorf("failed to create speech: %w", err)}
	}
	return resp, nil
}
