package remoteconfig

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/oauth2"

	"github.com/shaiso/rcctl/internal/domain"
)

const (
	// DefaultBaseURL — адрес Firebase Remote Config REST API.
	DefaultBaseURL = "https://firebaseremoteconfig.googleapis.com"

	// DefaultPageSize — сколько версий возвращает ListVersions по умолчанию.
	DefaultPageSize = 5

	// MaxPageSize — максимальный размер страницы, который принимает сервер.
	MaxPageSize = 300

	contentTypeJSON = "application/json; UTF-8"
)

// Имена операций (используются в ошибках и как label метрик).
const (
	OpGet          = "get"
	OpPublish      = "publish"
	OpListVersions = "list_versions"
	OpRollback     = "rollback"
)

// Options — параметры клиента.
type Options struct {
	// BaseURL — адрес API. По умолчанию DefaultBaseURL.
	BaseURL string

	// ProjectID — идентификатор Firebase-проекта (обязательно).
	ProjectID string

	// UserAgent — значение заголовка User-Agent.
	UserAgent string
}

// PublishOptions — параметры публикации.
type PublishOptions struct {
	// ValidateOnly — сервер только проверяет шаблон, не публикуя его.
	ValidateOnly bool
}

// ListOptions — параметры выборки истории версий.
type ListOptions struct {
	// PageSize — максимальное число версий (0 — DefaultPageSize).
	PageSize int

	// PageToken — токен страницы из предыдущего ответа.
	PageToken string

	// EndVersionNumber — вернуть версии с номером не больше указанного.
	EndVersionNumber int64

	// StartTime, EndTime — ограничение по времени публикации.
	StartTime time.Time
	EndTime   time.Time
}

// Client — клиент Remote Config API для одного проекта.
//
// HTTP-клиент должен быть уже аутентифицирован (см. пакет auth).
// Клиент не повторяет запросы и не разрешает конфликты: ETag от сервера
// передаётся вызывающему как есть.
type Client struct {
	baseURL    string
	projectID  string
	userAgent  string
	httpClient *http.Client
}

// New создаёт клиент.
func New(httpClient *http.Client, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.ProjectID) == "" {
		return nil, fmt.Errorf("%w: project id is required", ErrInvalidArgument)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("%w: base url: %v", ErrInvalidArgument, err)
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		projectID:  opts.ProjectID,
		userAgent:  opts.UserAgent,
		httpClient: httpClient,
	}, nil
}

// ProjectID возвращает идентификатор проекта.
func (c *Client) ProjectID() string {
	return c.projectID
}

// Get возвращает активный шаблон и его ETag.
func (c *Client) Get(ctx context.Context) (*domain.Template, error) {
	return c.getTemplate(ctx, nil)
}

// GetVersion возвращает шаблон в состоянии указанной версии.
func (c *Client) GetVersion(ctx context.Context, versionNumber int64) (*domain.Template, error) {
	if versionNumber <= 0 {
		return nil, fmt.Errorf("%s: %w: version number must be positive, got %d", OpGet, ErrInvalidArgument, versionNumber)
	}
	params := url.Values{}
	params.Set("versionNumber", strconv.FormatInt(versionNumber, 10))
	return c.getTemplate(ctx, params)
}

func (c *Client) getTemplate(ctx context.Context, params url.Values) (*domain.Template, error) {
	ctx = withOperation(ctx, OpGet)

	req, err := c.newRequest(ctx, http.MethodGet, c.templateURL(""), params, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(OpGet, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkResponse(OpGet, resp); err != nil {
		return nil, err
	}

	return readTemplate(OpGet, resp, true)
}

// Publish публикует документ как новый шаблон при условии etag.
//
// etag должен быть токеном последнего чтения либо domain.WildcardETag для
// безусловной перезаписи. Несовпадение возвращается как ErrConflict.
func (c *Client) Publish(ctx context.Context, doc domain.Document, etag string, opts PublishOptions) (*domain.Template, error) {
	if etag == "" {
		return nil, fmt.Errorf("%s: %w: etag is required (use %q to force)", OpPublish, ErrInvalidArgument, domain.WildcardETag)
	}
	if doc == nil {
		return nil, fmt.Errorf("%s: %w: template is empty", OpPublish, ErrInvalidArgument)
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: marshal template: %v", OpPublish, ErrInvalidArgument, err)
	}

	var params url.Values
	if opts.ValidateOnly {
		params = url.Values{}
		params.Set("validateOnly", "true")
	}

	ctx = withOperation(ctx, OpPublish)
	req, err := c.newRequest(ctx, http.MethodPut, c.templateURL(""), params, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("If-Match", etag)

	resp, err := c.do(OpPublish, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkResponse(OpPublish, resp); err != nil {
		return nil, err
	}

	return readTemplate(OpPublish, resp, !opts.ValidateOnly)
}

// ListVersions возвращает не более PageSize последних версий
// в порядке убывания номера.
func (c *Client) ListVersions(ctx context.Context, opts ListOptions) (*domain.VersionList, error) {
	pageSize := opts.PageSize
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if pageSize < 0 || pageSize > MaxPageSize {
		return nil, fmt.Errorf("%s: %w: page size must be between 1 and %d, got %d", OpListVersions, ErrInvalidArgument, MaxPageSize, pageSize)
	}

	params := url.Values{}
	params.Set("pageSize", strconv.Itoa(pageSize))
	if opts.PageToken != "" {
		params.Set("pageToken", opts.PageToken)
	}
	if opts.EndVersionNumber > 0 {
		params.Set("endVersionNumber", strconv.FormatInt(opts.EndVersionNumber, 10))
	}
	if !opts.StartTime.IsZero() {
		params.Set("startTime", opts.StartTime.UTC().Format(time.RFC3339Nano))
	}
	if !opts.EndTime.IsZero() {
		params.Set("endTime", opts.EndTime.UTC().Format(time.RFC3339Nano))
	}

	ctx = withOperation(ctx, OpListVersions)
	req, err := c.newRequest(ctx, http.MethodGet, c.templateURL(":listVersions"), params, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(OpListVersions, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkResponse(OpListVersions, resp); err != nil {
		return nil, err
	}

	var list domain.VersionList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("%s: failed to decode response: %w", OpListVersions, err)
	}

	slices.SortStableFunc(list.Versions, func(a, b domain.Version) int {
		return cmp.Compare(b.VersionNumber, a.VersionNumber)
	})
	if len(list.Versions) > pageSize {
		list.Versions = list.Versions[:pageSize]
	}

	return &list, nil
}

// Rollback активирует шаблон указанной версии.
// Сервер создаёт новую версию с типом ROLLBACK и выдаёт новый ETag.
func (c *Client) Rollback(ctx context.Context, versionNumber int64) (*domain.Template, error) {
	if versionNumber <= 0 {
		return nil, fmt.Errorf("%s: %w: version number must be positive, got %d", OpRollback, ErrInvalidArgument, versionNumber)
	}

	body, err := json.Marshal(map[string]string{
		"versionNumber": strconv.FormatInt(versionNumber, 10),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to marshal request: %w", OpRollback, err)
	}

	ctx = withOperation(ctx, OpRollback)
	req, err := c.newRequest(ctx, http.MethodPost, c.templateURL(":rollback"), nil, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentTypeJSON)

	resp, err := c.do(OpRollback, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkResponse(OpRollback, resp); err != nil {
		return nil, err
	}

	return readTemplate(OpRollback, resp, true)
}

// --- HTTP helpers ---

func (c *Client) templateURL(method string) string {
	return c.baseURL + "/v1/projects/" + url.PathEscape(c.projectID) + "/remoteConfig" + method
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, params url.Values, body io.Reader) (*http.Request, error) {
	if len(params) > 0 {
		rawURL = rawURL + "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Без gzip сервер не возвращает ETag.
	req.Header.Set("Accept-Encoding", "gzip")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	return req, nil
}

// do выполняет запрос и распаковывает gzip-ответ.
// Заголовок Accept-Encoding выставлен вручную, поэтому net/http
// не распаковывает тело сам.
func (c *Client) do(op string, req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, fmt.Errorf("%s: %w: %v", op, ErrUnauthenticated, err)
		}
		return nil, fmt.Errorf("%s: %w: %v", op, ErrTransport, err)
	}

	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(resp.Body)
		switch {
		case errors.Is(err, io.EOF):
			// Пустое тело с Content-Encoding: gzip, обычно у ответов об ошибке.
			resp.Body.Close()
			resp.Body = http.NoBody
			resp.ContentLength = 0
		case err != nil:
			resp.Body.Close()
			return nil, fmt.Errorf("%s: %w: gzip response: %v", op, ErrTransport, err)
		default:
			resp.Body = &gzipBody{Reader: zr, body: resp.Body}
			resp.ContentLength = -1
		}
		resp.Header.Del("Content-Encoding")
		resp.Header.Del("Content-Length")
	}

	return resp, nil
}

// readTemplate читает тело шаблона и ETag из успешного ответа.
func readTemplate(op string, resp *http.Response, requireETag bool) (*domain.Template, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: read response: %v", op, ErrTransport, err)
	}

	doc, err := domain.DecodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to decode response: %w", op, err)
	}

	etag := resp.Header.Get("ETag")
	if etag == "" && requireETag {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingETag)
	}

	return &domain.Template{Document: doc, ETag: etag}, nil
}

// gzipBody закрывает и распаковщик, и исходное тело ответа.
type gzipBody struct {
	*gzip.Reader
	body io.ReadCloser
}

func (b *gzipBody) Close() error {
	zerr := b.Reader.Close()
	if err := b.body.Close(); err != nil {
		return err
	}
	return zerr
}

// --- operation context ---

type ctxKey string

const ctxOperation ctxKey = "operation"

func withOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, ctxOperation, op)
}

// OperationFromContext возвращает имя операции клиента, выполняющей запрос.
// Используется инструментированным транспортом для label метрик.
func OperationFromContext(ctx context.Context) string {
	if op, ok := ctx.Value(ctxOperation).(string); ok {
		return op
	}
	return "unknown"
}
