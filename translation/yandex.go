package translation

import (
	"context"
	"fmt"
	"strings"

	"github.com/Morwran/yagpt"
)

//YandexClient translates through Yandex GPT completions. It has no speech
//endpoint, so it only implements Translator.
type YandexClient struct {
	ya       yagpt.YaGPTFace
	iamToken string
}

func NewYandex(oauthToken, folderID string) (*YandexClient, error) {
	iam, err := yagpt.NewYaIam(oauthToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init yandex iam: %w", err)
	}
	resp, err := iam.Create()
	if err != nil {
		return nil, fmt.Errorf("failed to create iam token: %w", err)
	}

	ya, err := yagpt.NewYagpt(folderID)
	if err != nil {
		return nil, fmt.Errorf("failed to init yagpt: %w", err)
	}

	return &YandexClient{
		ya:       ya,
		iamToken: resp.IamToken,
	}, nil
}

func (c *YandexClient) Translate(ctx context.Context, text, source, target string) (string, error) {
	out, err := c.complete(ctx, translatePrompt(source, target), text)
	if err != nil {
		return "", &CollaboratorError{Service: "translation", Err: err}
	}
	return out, nil
}

func (c *YandexClient) Detect(ctx context.Context, text string) (string, error) {
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

func (c *YandexClient) complete(ctx context.Context, system, user string) (string, error) {
	messages := []yagpt.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
	resp, err := c.ya.CompletionWithCtx(ctx, c.iamToken, messages)
	if err != nil {
		return "", fmt.Errorf("yagpt completion failed: %w", err)
	}
	if resp == nil || len(resp.Alternatives) == 0 {
		return "", fmt.Errorf("yagpt returned empty response")
	}
	return strings.TrimSpace(resp.Alternatives[0].Message.Content), nil
}
