package translation

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

const msgTemplate = "{\"message\": %q}"

type TranslateHandler struct {
	pipeline *Pipeline
}

func NewTranslateHandler(pipeline *Pipeline) TranslateHandler {
	return TranslateHandler{pipeline: pipeline}
}

func (h *TranslateHandler) RegisterHandlers(router *mux.Router) {
	log.Info("registering translation handlers")
	router.Handle("/languages", handlers.MethodHandler{
		"GET": http.HandlerFunc(h.ListLanguages),
	})
	router.Handle("/translate", handlers.MethodHandler{
		"POST": http.HandlerFunc(h.Translate),
	})
	router.Handle("/translate/back", handlers.MethodHandler{
		"POST": http.HandlerFunc(h.TranslateBack),
	})
	router.Handle("/translate/audio", handlers.MethodHandler{
		"POST": http.HandlerFunc(h.DownloadAudio),
	})
	router.Handle("/translate/text", handlers.MethodHandler{
		"POST": http.HandlerFunc(h.DownloadText),
	})
}

type translateResponse struct {
	Result
	AudioError string `json:"audioError,omitempty"`
}

type backRequest struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

type textRequest struct {
	Original   string `json:"original"`
	Translated string `json:"translated"`
	Source     string `json:"source"`
	Target     string `json:"target"`
}

func (h *TranslateHandler) ListLanguages(writer http.ResponseWriter, request *http.Request) {
	writer.Header().Add("Content-Type", "application/json")
	enc := json.NewEncoder(writer)
	if err := enc.Encode(h.pipeline.Languages().Sorted()); err != nil {
		log.WithError(err).Error("could not encode languages")
	}
}

func (h *TranslateHandler) Translate(writer http.ResponseWriter, request *http.Request) {
	writer.Header().Add("Content-Type", "application/json")
	var req Request
	if err := json.NewDecoder(request.Body).Decode(&req); err != nil {
		log.WithError(err).Error("could not decode request body")
		writeMessage(writer, http.StatusBadRequest, "could not decode request body")
		return
	}

	res, err := h.pipeline.Run(request.Context(), req)
	if err != nil {
		writeError(writer, err)
		return
	}

	out := translateResponse{Result: res}
	if res.AudioErr != nil {
		out.AudioError = "audio generation failed, but translation was successful: " + res.AudioErr.Error()
	}
	writer.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(writer).Encode(out); err != nil {
		log.WithError(err).Error("could not encode returned payload")
	}
}

func (h *TranslateHandler) TranslateBack(writer http.ResponseWriter, request *http.Request) {
	writer.Header().Add("Content-Type", "application/json")
	var req backRequest
	if err := json.NewDecoder(request.Body).Decode(&req); err != nil {
		log.WithError(err).Error("could not decode request body")
		writeMessage(writer, http.StatusBadRequest, "could not decode request body")
		return
	}

	out, err := h.pipeline.TranslateBack(request.Context(), req.Text, req.Source)
	if err != nil {
		writeError(writer, err)
		return
	}
	writer.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(writer).Encode(map[string]string{"translated": out}); err != nil {
		log.WithError(err).Error("could not encode returned payload")
	}
}

func (h *TranslateHandler) DownloadAudio(writer http.ResponseWriter, request *http.Request) {
	var req Request
	if err := json.NewDecoder(request.Body).Decode(&req); err != nil {
		log.WithError(err).Error("could not decode request body")
		writer.Header().Add("Content-Type", "application/json")
		writeMessage(writer, http.StatusBadRequest, "could not decode request body")
		return
	}
	lang, ok := h.pipeline.Languages().Lookup(req.Target)
	if !ok {
		writer.Header().Add("Content-Type", "application/json")
		writeMessage(writer, http.StatusBadRequest, "unsupported target language: "+req.Target)
		return
	}

	audio, err := h.pipeline.Speak(request.Context(), req.Text, lang.Code, req.AudioSpeed)
	if err != nil {
		writer.Header().Add("Content-Type", "application/json")
		writeError(writer, err)
		return
	}
	res := Result{Target: lang.Code}
	writer.Header().Set("Content-Type", "audio/mpeg")
	writer.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": res.AudioFileName()}))
	writer.WriteHeader(http.StatusOK)
	if _, err := writer.Write(audio); err != nil {
		log.WithError(err).Error("could not write audio")
	}
}

func (h *TranslateHandler) DownloadText(writer http.ResponseWriter, request *http.Request) {
	var req textRequest
	if err := json.NewDecoder(request.Body).Decode(&req); err != nil {
		log.WithError(err).Error("could not decode request body")
		writer.Header().Add("Content-Type", "application/json")
		writeMessage(writer, http.StatusBadRequest, "could not decode request body")
		return
	}
	catalogue := h.pipeline.Languages()
	target, ok := catalogue.Lookup(req.Target)
	if !ok {
		writer.Header().Add("Content-Type", "application/json")
		writeMessage(writer, http.StatusBadRequest, "unsupported target language: "+req.Target)
		return
	}
	res := Result{
		Original:   req.Original,
		Translated: req.Translated,
		Source:     req.Source,
		SourceName: catalogue.Name(req.Source),
		Target:     target.Code,
		TargetName: target.Name,
	}
	writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
	writer.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": res.TextFileName()}))
	writer.WriteHeader(http.StatusOK)
	fmt.Fprint(writer, res.TextDownload())
}

func writeError(writer http.ResponseWriter, err error) {
	var ce *CollaboratorError
	switch {
	case errors.Is(err, ErrEmptyText):
		writeMessage(writer, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrSpeechUnavailable):
		writeMessage(writer, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &ce):
		writeMessage(writer, http.StatusBadGateway, ce.Service+" failed, please try again: "+ce.Err.Error())
	default:
		writeMessage(writer, http.StatusBadRequest, err.Error())
	}
}

func writeMessage(writer http.ResponseWriter, status int, msg string) {
	writer.WriteHeader(status)
	fmt.Fprintln(writer, fmt.Sprintf(msgTemplate, msg))
}
