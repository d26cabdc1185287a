package translation

import (
	"bytes"
	"context"
	"io"
	"strings"
)

type fakeTranslator struct {
	translated   string
	detected     string
	translateErr error
	detectErr    error
	targets      []string
}

func (f *fakeTranslator) Translate(_ context.Context, text, _, target string) (string, error) {
	f.targets = append(f.targets, target)
	if f.translateErr != nil {
		return "", f.translateErr
	}
	if f.translated != "" {
		return f.translated, nil
	}
	return strings.ToUpper(text), nil
}

func (f *fakeTranslator) Detect(context.Context, string) (string, error) {
	return f.detected, f.detectErr
}

type fakeSynthesizer struct {
	audio []byte
	err   error
	slow  []bool
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, _, _ string, slow bool) (io.ReadCloser, error) {
	f.slow = append(f.slow, slow)
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(bytes.NewReader(f.audio)), nil
}
