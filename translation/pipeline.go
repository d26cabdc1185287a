package translation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/scott-ace-newton/translator-chat/languages"
)

//ErrSpeechUnavailable is the audio error when no synthesizer is configured.
var ErrSpeechUnavailable = errors.New("speech synthesis is not configured")

//UnknownLanguage is the source language reported when detection fails.
const UnknownLanguage = languages.Unknown

type Request struct {
	Text       string  `json:"text"`
	Target     string  `json:"target"`
	AudioSpeed float64 `json:"audioSpeed"`
}

//Result of one translation. Audio is empty and AudioErr set when speech
//synthesis failed; the translation itself is still valid.
type Result struct {
	Original   string `json:"original"`
	Translated string `json:"translated"`
	Source     string `json:"source"`
	SourceName string `json:"sourceName"`
	Target     string `json:"target"`
	TargetName string `json:"targetName"`
	Audio      []byte `json:"audio,omitempty"`
	AudioErr   error  `json:"-"`
}

//Pipeline runs translate, detect and speak the way the translate button does.
type Pipeline struct {
	translator  Translator
	synthesizer Synthesizer
	catalogue   *languages.Catalogue
	timeout     time.Duration
}

//NewPipeline builds a pipeline. synthesizer may be nil, results are then text only.
func NewPipeline(t Translator, s Synthesizer, catalogue *languages.Catalogue, timeout time.Duration) *Pipeline {
	if catalogue == nil {
		catalogue = languages.Default()
	}
	return &Pipeline{translator: t, synthesizer: s, catalogue: catalogue, timeout: timeout}
}

//Languages returns the catalogue targets are validated against.
func (p *Pipeline) Languages() *languages.Catalogue {
	return p.catalogue
}

func (p *Pipeline) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

//Run translates req.Text. A translation failure aborts with an error, a
//detection failure leaves the source Unknown and a speech failure only sets
//Result.AudioErr.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return Result{}, ErrEmptyText
	}
	target := req.Target
	if target == "" {
		target = languages.DefaultTarget
	}
	lang, ok := p.catalogue.Lookup(target)
	if !ok {
		return Result{}, fmt.Errorf("unsupported target language: %s", target)
	}

	res := Result{
		Original:   req.Text,
		Target:     lang.Code,
		TargetName: lang.Name,
		Source:     UnknownLanguage,
		SourceName: UnknownLanguage,
	}
	logger := log.WithField("target", lang.Code)

	tctx, cancel := p.withTimeout(ctx)
	translated, err := p.translator.Translate(tctx, req.Text, AutoSource, lang.Code)
	cancel()
	if err != nil {
		logger.WithError(err).Error("translation failed")
		return Result{}, asCollaboratorErr("translation", err)
	}
	res.Translated = translated

	dctx, cancel := p.withTimeout(ctx)
	detected, err := p.translator.Detect(dctx, req.Text)
	cancel()
	if err != nil {
		logger.WithError(err).Warn("language detection failed")
	} else if src, ok := p.catalogue.Lookup(detected); ok {
		res.Source, res.SourceName = src.Code, src.Name
	} else {
		logger.WithField("detected", detected).Warn("detected language is not in the catalogue")
	}

	res.Audio, res.AudioErr = p.speak(ctx, translated, lang.Code, slowSpeech(req.AudioSpeed))
	if res.AudioErr != nil {
		logger.WithError(res.AudioErr).Warn("audio generation failed, but translation was successful")
	}
	return res, nil
}

//Speak synthesizes text on its own, for the audio download.
func (p *Pipeline) Speak(ctx context.Context, text, lang string, speed float64) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	return p.speak(ctx, text, lang, slowSpeech(speed))
}

func (p *Pipeline) speak(ctx context.Context, text, lang string, slow bool) ([]byte, error) {
	if p.synthesizer == nil {
		return nil, ErrSpeechUnavailable
	}
	sctx, cancel := p.withTimeout(ctx)
	defer cancel()
	audio, err := p.synthesizer.Synthesize(sctx, text, lang, slow)
	if err != nil {
		return nil, asCollaboratorErr("speech synthesis", err)
	}
	defer audio.Close()
	data, err := io.ReadAll(audio)
	if err != nil {
		return nil, &CollaboratorError{Service: "speech synthesis", Err: fmt.Errorf("read audio: %w", err)}
	}
	return data, nil
}

//TranslateBack translates a translation back into the detected source language.
func (p *Pipeline) TranslateBack(ctx context.Context, translated, source string) (string, error) {
	if strings.TrimSpace(translated) == "" {
		return "", ErrEmptyText
	}
	lang, ok := p.catalogue.Lookup(source)
	if !ok {
		return "", fmt.Errorf("cannot translate back: source language %q is unknown", source)
	}
	tctx, cancel := p.withTimeout(ctx)
	defer cancel()
	out, err := p.translator.Translate(tctx, translated, AutoSource, lang.Code)
	if err != nil {
		log.WithError(err).WithField("target", lang.Code).Error("reverse translation failed")
		return "", asCollaboratorErr("translation", err)
	}
	return out, nil
}

//slowSpeech maps the audio speed slider onto the slow flag of the speech service.
func slowSpeech(speed float64) bool {
	return speed > 0 && speed < 1.0
}

func asCollaboratorErr(service string, err error) error {
	var ce *CollaboratorError
	if errors.As(err, &ce) {
		return err
	}
	return &CollaboratorError{Service: service, Err: err}
}

//AudioFileName is the download name of the spoken translation.
func (r Result) AudioFileName() string {
	return fmt.Sprintf("translation_%s.mp3", r.Target)
}

//TextFileName is the download name of the text transcript.
func (r Result) TextFileName() string {
	return fmt.Sprintf("translation_%s.txt", r.Target)
}

//TextDownload renders the original and translated text as a plain text file.
func (r Result) TextDownload() string {
	title := cases.Title(language.English)
	return fmt.Sprintf("Original (%s): %s\n\nTranslated (%s): %s",
		title.String(r.SourceName), r.Original, title.String(r.TargetName), r.Translated)
}

func describe(code string) string {
	if l, ok := languages.Default().Lookup(code); ok {
		return fmt.Sprintf("%s (%s)", l.Name, l.Code)
	}
	return code
}
