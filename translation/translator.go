package translation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	ProviderOpenAI = "openai"
	ProviderYandex = "yandex"

	//AutoSource asks the translator to detect the source language itself.
	AutoSource = "auto"
)

//ErrEmptyText is returned when there is nothing to translate.
var ErrEmptyText = errors.New("please enter text to translate")

//Translator turns text into another language. Source may be AutoSource.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
	Detect(ctx context.Context, text string) (string, error)
}

//Synthesizer turns text into spoken audio (mp3).
type Synthesizer interface {
	Synthesize(ctx context.Context, text, lang string, slow bool) (io.ReadCloser, error)
}

//CollaboratorError wraps a failure of an external translation or speech service.
type CollaboratorError struct {
	Service string
	Err     error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Service, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

//Config carries the credentials of every supported provider.
type Config struct {
	Provider         string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIModel      string
	SpeechModel      string
	SpeechVoice      string
	YandexOAuthToken string
	YandexFolderID   string
}

//NewTranslator creates the translator for the configured provider.
func NewTranslator(cfg Config) (Translator, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI, "":
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.SpeechModel, cfg.SpeechVoice), nil
	case ProviderYandex:
		return NewYandex(cfg.YandexOAuthToken, cfg.YandexFolderID)
	default:
		return nil, fmt.Errorf("unknown translation provider: %s", cfg.Provider)
	}
}

func translatePrompt(source, target string) string {
	from := "Detect the source language yourself."
	if source != "" && source != AutoSource {
		from = fmt.Sprintf("The source language is %s.", describe(source))
	}
	return fmt.Sprintf("You are a translation engine. Translate the user's text into %s. %s "+
		"Reply with the translation only, without quotes, notes or commentary.", describe(target), from)
}

const detectPrompt = "Identify the language of the user's text. " +
	"Reply with its ISO 639-1 language code only, for example en or fr."

//normalizeCode keeps the first word of a model reply and strips punctuation.
func normalizeCode(reply string) string {
	fields := strings.Fields(reply)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(strings.ToLower(fields[0]), ".,;:'\"`")
}
