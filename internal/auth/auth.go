// Package auth строит аутентифицированный HTTP-клиент для Remote Config API.
//
// Источник токена — JSON-ключ сервисного аккаунта либо готовый access token
// (например, из `gcloud auth print-access-token`).
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Scope — OAuth2 scope Firebase Remote Config.
const Scope = "https://www.googleapis.com/auth/firebase.remoteconfig"

// ErrAuthentication — учётные данные отсутствуют или некорректны.
// Повтор не поможет: ключ нужно перевыпустить.
var ErrAuthentication = errors.New("authentication failed")

// Options — параметры HTTP-клиента.
type Options struct {
	// CredentialsFile — путь к JSON-ключу сервисного аккаунта.
	CredentialsFile string

	// AccessToken — готовый токен; если задан, CredentialsFile не читается.
	AccessToken string

	// Timeout — общий таймаут HTTP-запроса (0 — без таймаута).
	Timeout time.Duration

	// Transport — базовый транспорт (по умолчанию http.DefaultTransport).
	// Сюда подключается инструментирование метриками.
	Transport http.RoundTripper
}

// NewHTTPClient возвращает клиент, подписывающий запросы Bearer-токеном.
func NewHTTPClient(ctx context.Context, opts Options) (*http.Client, error) {
	ts, err := TokenSource(ctx, opts)
	if err != nil {
		return nil, err
	}

	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	return &http.Client{
		Timeout: opts.Timeout,
		Transport: &oauth2.Transport{
			Source: ts,
			Base:   base,
		},
	}, nil
}

// TokenSource возвращает источник токенов по параметрам.
func TokenSource(ctx context.Context, opts Options) (oauth2.TokenSource, error) {
	if opts.AccessToken != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: opts.AccessToken,
			TokenType:   "Bearer",
		}), nil
	}

	if opts.CredentialsFile == "" {
		return nil, fmt.Errorf("%w: no credentials file or access token configured", ErrAuthentication)
	}

	data, err := os.ReadFile(opts.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("%w: read credentials %s: %v", ErrAuthentication, opts.CredentialsFile, err)
	}

	conf, err := google.JWTConfigFromJSON(data, Scope)
	if err != nil {
		return nil, fmt.Errorf("%w: parse credentials %s: %v", ErrAuthentication, opts.CredentialsFile, err)
	}

	return oauth2.ReuseTokenSource(nil, conf.TokenSource(ctx)), nil
}
