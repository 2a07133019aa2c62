package remoteconfig

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/shaiso/rcctl/internal/domain"
	"github.com/shaiso/rcctl/internal/remoteconfig/remoteconfigtest"
)

const testProject = "fir-config-sample"

// newTestClient создаёт клиент с отдельным транспортом и статическим токеном.
func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	tr := &http.Transport{}
	t.Cleanup(tr.CloseIdleConnections)

	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"}),
			Base:   tr,
		},
	}

	client, err := New(httpClient, Options{BaseURL: baseURL, ProjectID: testProject, UserAgent: "rcctl-test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func mustDoc(t *testing.T, s string) domain.Document {
	t.Helper()
	doc, err := domain.DecodeDocument([]byte(s))
	if err != nil {
		t.Fatalf("decode %s: %v", s, err)
	}
	return doc
}

// withoutVersion убирает служебное поле version для сравнения тел.
func withoutVersion(doc domain.Document) domain.Document {
	clone := doc.Clone()
	delete(clone, "version")
	return clone
}

func newServer(t *testing.T) *remoteconfigtest.Server {
	t.Helper()
	srv := remoteconfigtest.NewServer(testProject, domain.Document{
		"parameters": map[string]any{
			"a": map[string]any{"defaultValue": map[string]any{"value": "1"}},
		},
	})
	t.Cleanup(srv.Close)
	return srv
}

// --- New ---

func TestNew_RequiresProjectID(t *testing.T) {
	_, err := New(nil, Options{})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestNew_DefaultBaseURL(t *testing.T) {
	client, err := New(nil, Options{ProjectID: "p"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := DefaultBaseURL + "/v1/projects/p/remoteConfig"
	if got := client.templateURL(""); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

// --- Get ---

func TestGet_ReturnsDocumentAndETag(t *testing.T) {
	srv := newServer(t)
	client := newTestClient(t, srv.URL)

	tmpl, err := client.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if tmpl.ETag == "" {
		t.Fatal("expected non-empty ETag")
	}
	if tmpl.ETag != remoteconfigtest.ETagFor(1) {
		t.Errorf("expected %s, got %s", remoteconfigtest.ETagFor(1), tmpl.ETag)
	}
	if tmpl.VersionNumber() != 1 {
		t.Errorf("expected version 1, got %d", tmpl.VersionNumber())
	}
	if _, ok := tmpl.Document.Parameters()["a"]; !ok {
		t.Errorf("expected parameter a, got %v", tmpl.Document)
	}

	req := srv.LastRequest()
	if req.Header.Get("Accept-Encoding") != "gzip" {
		t.Errorf("expected Accept-Encoding gzip, got %q", req.Header.Get("Accept-Encoding"))
	}
	if req.Header.Get("Authorization") != "Bearer test-token" {
		t.Errorf("expected bearer token, got %q", req.Header.Get("Authorization"))
	}
	if req.Header.Get("User-Agent") != "rcctl-test" {
		t.Errorf("expected user agent, got %q", req.Header.Get("User-Agent"))
	}
}

func TestGet_MissingETag(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"parameters":{}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Get(context.Background())
	if !errors.Is(err, ErrMissingETag) {
		t.Fatalf("expected ErrMissingETag, got %v", err)
	}
}

func TestGet_UncompressedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("ETag", "etag-plain")
		w.Write([]byte(`{"parameters":{"x":{"defaultValue":{"value":"1"}}}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	tmpl, err := client.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tmpl.ETag != "etag-plain" {
		t.Errorf("expected etag-plain, got %s", tmpl.ETag)
	}
}

func TestGetVersion(t *testing.T) {
	srv := newServer(t)
	client := newTestClient(t, srv.URL)
	ctx := context.Background()

	if _, err := client.Publish(ctx, mustDoc(t, `{"parameters":{"b":{}}}`), domain.WildcardETag, PublishOptions{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	tmpl, err := client.GetVersion(ctx, 1)
	if err != nil {
		t.Fatalf("GetVersion: %v", err)
	}
	if tmpl.VersionNumber() != 1 {
		t.Errorf("expected version 1, got %d", tmpl.VersionNumber())
	}
	if _, ok := tmpl.Document.Parameters()["a"]; !ok {
		t.Errorf("expected version 1 body, got %v", tmpl.Document)
	}

	if _, err := client.GetVersion(ctx, 0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for version 0, got %v", err)
	}
	if _, err := client.GetVersion(ctx, 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for version 42, got %v", err)
	}
}

// --- Publish ---

func TestPublish_WithCurrentETag(t *testing.T) {
	srv := newServer(t)
	client := newTestClient(t, srv.URL)
	ctx := context.Background()

	tmpl, err := client.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	edited := mustDoc(t, `{"parameters":{"a":{"defaultValue":{"value":"2"}}}}`)
	published, err := client.Publish(ctx, edited, tmpl.ETag, PublishOptions{})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if published.ETag == "" || published.ETag == tmpl.ETag {
		t.Errorf("expected new ETag, got %q (old %q)", published.ETag, tmpl.ETag)
	}

	req := srv.LastRequest()
	if req.Header.Get("If-Match") != tmpl.ETag {
		t.Errorf("expected If-Match %s, got %s", tmpl.ETag, req.Header.Get("If-Match"))
	}
	if req.Header.Get("Content-Type") != "application/json; UTF-8" {
		t.Errorf("unexpected Content-Type %q", req.Header.Get("Content-Type"))
	}

	again, err := client.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !reflect.DeepEqual(withoutVersion(again.Document), edited) {
		t.Errorf("expected published body %v, got %v", edited, again.Document)
	}
	if again.ETag != published.ETag {
		t.Errorf("expected ETag %s, got %s", published.ETag, again.ETag)
	}
}

func TestPublish_StaleETagConflict(t *testing.T) {
	srv := newServer(t)
	client := newTestClient(t, srv.URL)
	ctx := context.Background()

	tmpl, err := client.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	// Кто-то другой опубликовал изменения
	if _, err := client.Publish(ctx, mustDoc(t, `{"parameters":{}}`), tmpl.ETag, PublishOptions{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	before, beforeETag := srv.Current()
	count := srv.VersionCount()

	_, err = client.Publish(ctx, mustDoc(t, `{"parameters":{"z":{}}}`), tmpl.ETag, PublishOptions{})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Status != "ABORTED" {
		t.Errorf("unexpected api error: %+v", apiErr)
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		t.Errorf("expected *googleapi.Error in chain")
	}

	after, afterETag := srv.Current()
	if !reflect.DeepEqual(before, after) || beforeETag != afterETag {
		t.Error("remote template must stay unchanged after conflict")
	}
	if srv.VersionCount() != count {
		t.Errorf("expected no new version, got %d -> %d", count, srv.VersionCount())
	}
}

func TestPublish_WildcardAlwaysCreatesVersion(t *testing.T) {
	srv := newServer(t)
	client := newTestClient(t, srv.URL)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		before := srv.CurrentVersion()
		tmpl, err := client.Publish(ctx, mustDoc(t, `{"parameters":{}}`), domain.WildcardETag, PublishOptions{})
		if err != nil {
			t.Fatalf("Publish #%d: %v", i, err)
		}
		if tmpl.VersionNumber() != before+1 {
			t.Errorf("expected version %d, got %d", before+1, tmpl.VersionNumber())
		}
	}
}

func TestPublish_ValidateOnly(t *testing.T) {
	srv := newServer(t)
	client := newTestClient(t, srv.URL)

	_, err := client.Publish(context.Background(), mustDoc(t, `{"parameters":{}}`), domain.WildcardETag, PublishOptions{ValidateOnly: true})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if srv.VersionCount() != 1 {
		t.Errorf("validate-only must not create versions, got %d", srv.VersionCount())
	}
	if q := srv.LastRequest().URL.Query().Get("validateOnly"); q != "true" {
		t.Errorf("expected validateOnly=true, got %q", q)
	}
}

func TestPublish_RequiresETag(t *testing.T) {
	srv := newServer(t)
	client := newTestClient(t, srv.URL)

	_, err := client.Publish(context.Background(), mustDoc(t, `{}`), "", PublishOptions{})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if len(srv.Requests()) != 0 {
		t.Error("no request must be sent without etag")
	}
}

// --- ListVersions ---

func TestListVersions_DefaultLimitAndOrder(t *testing.T) {
	srv := newServer(t)
	client := newTestClient(t, srv.URL)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		if _, err := client.Publish(ctx, mustDoc(t, `{"parameters":{}}`), domain.WildcardETag, PublishOptions{}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	list, err := client.ListVersions(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(list.Versions) != DefaultPageSize {
		t.Fatalf("expected %d versions, got %d", DefaultPageSize, len(list.Versions))
	}
	for i := 1; i < len(list.Versions); i++ {
		if list.Versions[i].VersionNumber >= list.Versions[i-1].VersionNumber {
			t.Errorf("versions must be strictly descending: %d then %d",
				list.Versions[i-1].VersionNumber, list.Versions[i].VersionNumber)
		}
		if !list.Versions[i].UpdateTime.Before(list.Versions[i-1].UpdateTime) {
			t.Errorf("timestamps must be descending")
		}
	}
	if list.Versions[0].VersionNumber != 8 {
		t.Errorf("expected newest version 8, got %d", list.Versions[0].VersionNumber)
	}
	if list.NextPageToken == "" {
		t.Error("expected next page token")
	}
	if q := srv.LastRequest().URL.Query().Get("pageSize"); q != "5" {
		t.Errorf("expected pageSize=5, got %q", q)
	}
}

func TestListVersions_TruncatesAndSortsServerResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"versions": []map[string]any{
				{"versionNumber": "2", "updateTime": "2024-01-01T02:00:00Z"},
				{"versionNumber": "4", "updateTime": "2024-01-01T04:00:00Z"},
				{"versionNumber": "1", "updateTime": "2024-01-01T01:00:00Z"},
				{"versionNumber": "3", "updateTime": "2024-01-01T03:00:00Z"},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	list, err := client.ListVersions(context.Background(), ListOptions{PageSize: 2})
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(list.Versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(list.Versions))
	}
	if list.Versions[0].VersionNumber != 4 || list.Versions[1].VersionNumber != 3 {
		t.Errorf("expected [4 3], got [%d %d]", list.Versions[0].VersionNumber, list.Versions[1].VersionNumber)
	}
}

func TestListVersions_InvalidPageSize(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1")

	for _, size := range []int{-1, MaxPageSize + 1} {
		if _, err := client.ListVersions(context.Background(), ListOptions{PageSize: size}); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("page size %d: expected ErrInvalidArgument, got %v", size, err)
		}
	}
}

// --- Rollback ---

func TestRollback_RestoresBody(t *testing.T) {
	srv := newServer(t)
	client := newTestClient(t, srv.URL)
	ctx := context.Background()

	original, err := client.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := client.Publish(ctx, mustDoc(t, `{"parameters":{"b":{}}}`), original.ETag, PublishOptions{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	rolled, err := client.Rollback(ctx, 1)
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if rolled.VersionNumber() == 1 {
		t.Error("rollback must create a new version distinct from the source")
	}
	if rolled.ETag == "" {
		t.Error("expected ETag after rollback")
	}

	current, err := client.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !reflect.DeepEqual(withoutVersion(current.Document), withoutVersion(original.Document)) {
		t.Errorf("expected body of version 1, got %v", current.Document)
	}
	if current.ETag != rolled.ETag {
		t.Errorf("expected ETag %s after rollback, got %s", rolled.ETag, current.ETag)
	}
}

func TestRollback_SendsVersionAsString(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/remoteConfig:rollback") || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("ETag", "etag-9")
		w.Write([]byte(`{"version":{"versionNumber":"9"}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	tmpl, err := client.Rollback(context.Background(), 6)
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if body["versionNumber"] != "6" {
		t.Errorf("expected versionNumber \"6\", got %#v", body["versionNumber"])
	}
	if tmpl.VersionNumber() != 9 || tmpl.ETag != "etag-9" {
		t.Errorf("unexpected result %+v", tmpl)
	}
}

func TestRollback_ExpiredVersion(t *testing.T) {
	srv := newServer(t)
	client := newTestClient(t, srv.URL)
	ctx := context.Background()

	if _, err := client.Publish(ctx, mustDoc(t, `{"parameters":{"b":{}}}`), domain.WildcardETag, PublishOptions{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	srv.Expire(1)
	before, beforeETag := srv.Current()

	_, err := client.Rollback(ctx, 1)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	after, afterETag := srv.Current()
	if !reflect.DeepEqual(before, after) || beforeETag != afterETag {
		t.Error("template must stay unchanged after failed rollback")
	}
}

func TestRollback_InvalidVersion(t *testing.T) {
	srv := newServer(t)
	client := newTestClient(t, srv.URL)

	for _, v := range []int64{0, -3} {
		if _, err := client.Rollback(context.Background(), v); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("version %d: expected ErrInvalidArgument, got %v", v, err)
		}
	}
	if len(srv.Requests()) != 0 {
		t.Error("invalid versions must be rejected before sending")
	}
}

// --- Errors ---

func TestErrors_Classification(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		status string
		want   error
	}{
		{"unauthenticated", http.StatusUnauthorized, "UNAUTHENTICATED", ErrUnauthenticated},
		{"permission denied", http.StatusForbidden, "PERMISSION_DENIED", ErrPermissionDenied},
		{"precondition failed", http.StatusPreconditionFailed, "", ErrConflict},
		{"unavailable", http.StatusServiceUnavailable, "UNAVAILABLE", ErrTransport},
		{"invalid", http.StatusBadRequest, "INVALID_ARGUMENT", ErrInvalidArgument},
		{"teapot", http.StatusTeapot, "", ErrRequestFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t)
			client := newTestClient(t, srv.URL)
			srv.FailNext(tt.code, tt.status, "boom")

			_, err := client.Get(context.Background())
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if !strings.Contains(err.Error(), "boom") {
				t.Errorf("expected server message in %q", err.Error())
			}
		})
	}
}

func TestErrors_EmptyGzipBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Publish(context.Background(), mustDoc(t, `{"parameters":{}}`), "etag-1", PublishOptions{})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict {
		t.Errorf("expected APIError with status 409, got %v", err)
	}
}

func TestErrors_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := newTestClient(t, url)
	_, err := client.Get(context.Background())
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestErrors_TokenFailure(t *testing.T) {
	tr := &http.Transport{}
	t.Cleanup(tr.CloseIdleConnections)

	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Source: failingTokenSource{},
			Base:   tr,
		},
	}
	client, err := New(httpClient, Options{BaseURL: "http://127.0.0.1:1", ProjectID: testProject})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = client.Get(context.Background())
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

type failingTokenSource struct{}

func (failingTokenSource) Token() (*oauth2.Token, error) {
	return nil, &oauth2.RetrieveError{ErrorCode: "invalid_grant"}
}

func TestOperationFromContext(t *testing.T) {
	if got := OperationFromContext(context.Background()); got != "unknown" {
		t.Errorf("expected unknown, got %s", got)
	}
	if got := OperationFromContext(withOperation(context.Background(), OpRollback)); got != OpRollback {
		t.Errorf("expected %s, got %s", OpRollback, got)
	}
}
