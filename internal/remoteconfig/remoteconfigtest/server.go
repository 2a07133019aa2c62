// Package remoteconfigtest предоставляет in-memory сервер Remote Config
// для тестов: ETag, история версий, wildcard-публикация и откат.
package remoteconfigtest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/shaiso/rcctl/internal/domain"
)

type entry struct {
	version domain.Version
	doc     domain.Document
	expired bool
}

// Server — фейковый Remote Config API для одного проекта.
type Server struct {
	*httptest.Server

	projectID string

	mu       sync.Mutex
	versions []entry // по возрастанию номера; последняя — активная
	requests []*http.Request
	failNext *failure
}

type failure struct {
	code    int
	status  string
	message string
}

// NewServer запускает сервер с начальным шаблоном (версия 1).
func NewServer(projectID string, initial domain.Document) *Server {
	s := &Server{projectID: projectID}
	if initial == nil {
		initial = domain.Document{}
	}
	s.appendVersion(initial, "CONSOLE", "INCREMENTAL_UPDATE", 0)

	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// ETagFor возвращает ETag, который сервер выдаёт для версии.
func ETagFor(versionNumber int64) string {
	return fmt.Sprintf("etag-%d", versionNumber)
}

// Current возвращает копию активного шаблона и его ETag.
func (s *Server) Current() (domain.Document, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.versions[len(s.versions)-1]
	return cur.doc.Clone(), ETagFor(cur.version.VersionNumber)
}

// CurrentVersion возвращает номер активной версии.
func (s *Server) CurrentVersion() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versions[len(s.versions)-1].version.VersionNumber
}

// VersionCount возвращает число созданных версий (включая удалённые).
func (s *Server) VersionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.versions)
}

// Expire помечает версию удалённой, как это делает сервер по истечении срока.
func (s *Server) Expire(versionNumber int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.versions {
		if s.versions[i].version.VersionNumber == versionNumber {
			s.versions[i].expired = true
		}
	}
}

// FailNext заставляет следующий запрос вернуть ошибку в формате Google API.
func (s *Server) FailNext(code int, status, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = &failure{code: code, status: status, message: message}
}

// Requests возвращает полученные запросы (тела не сохраняются).
func (s *Server) Requests() []*http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

// LastRequest возвращает последний запрос или nil.
func (s *Server) LastRequest() *http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return nil
	}
	return s.requests[len(s.requests)-1]
}

func (s *Server) appendVersion(doc domain.Document, origin, updateType string, rollbackSource int64) entry {
	doc = doc.Clone()
	delete(doc, "version")

	e := entry{
		version: domain.Version{
			VersionNumber:  int64(len(s.versions) + 1),
			UpdateTime:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(len(s.versions)) * time.Hour),
			UpdateUser:     &domain.User{Email: "firebase-adminsdk@example.iam.gserviceaccount.com"},
			UpdateOrigin:   origin,
			UpdateType:     updateType,
			RollbackSource: rollbackSource,
		},
		doc: doc,
	}
	s.versions = append(s.versions, e)
	return e
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, r.Clone(r.Context()))

	if f := s.failNext; f != nil {
		s.failNext = nil
		writeError(w, r, f.code, f.status, f.message)
		return
	}

	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		writeError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "Request is missing required authentication credential.")
		return
	}

	base := "/v1/projects/" + s.projectID + "/remoteConfig"
	switch {
	case r.URL.Path == base && r.Method == http.MethodGet:
		s.handleGet(w, r)
	case r.URL.Path == base && r.Method == http.MethodPut:
		s.handlePublish(w, r)
	case r.URL.Path == base+":listVersions" && r.Method == http.MethodGet:
		s.handleListVersions(w, r)
	case r.URL.Path == base+":rollback" && r.Method == http.MethodPost:
		s.handleRollback(w, r)
	default:
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "Requested entity was not found.")
	}
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	target := s.versions[len(s.versions)-1]

	if v := r.URL.Query().Get("versionNumber"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "Invalid version number.")
			return
		}
		e, ok := s.lookup(n)
		if !ok {
			writeError(w, r, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("Version %d not found.", n))
			return
		}
		target = e
	}

	writeTemplate(w, r, target)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	ifMatch := r.Header.Get("If-Match")
	if ifMatch == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "If-Match header is required.")
		return
	}

	current := s.versions[len(s.versions)-1]
	if ifMatch != domain.WildcardETag && ifMatch != ETagFor(current.version.VersionNumber) {
		writeError(w, r, http.StatusConflict, "ABORTED", "ETag does not match the current template.")
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}
	doc, err := domain.DecodeDocument(data)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}

	if r.URL.Query().Get("validateOnly") == "true" {
		writeTemplate(w, r, entry{version: current.version, doc: doc})
		return
	}

	updateType := "INCREMENTAL_UPDATE"
	if ifMatch == domain.WildcardETag {
		updateType = "FORCED_UPDATE"
	}
	writeTemplate(w, r, s.appendVersion(doc, "REST_API", updateType, 0))
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	pageSize := len(s.versions)
	if v := q.Get("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 300 {
			writeError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "pageSize must be between 1 and 300.")
			return
		}
		pageSize = n
	}

	var end int64
	if v := q.Get("endVersionNumber"); v != "" {
		end, _ = strconv.ParseInt(v, 10, 64)
	}
	offset := 0
	if v := q.Get("pageToken"); v != "" {
		offset, _ = strconv.Atoi(v)
	}

	var visible []domain.Version
	for i := len(s.versions) - 1; i >= 0; i-- {
		e := s.versions[i]
		if e.expired || (end > 0 && e.version.VersionNumber > end) {
			continue
		}
		visible = append(visible, e.version)
	}

	list := domain.VersionList{Versions: []domain.Version{}}
	if offset < len(visible) {
		stop := min(offset+pageSize, len(visible))
		list.Versions = visible[offset:stop]
		if stop < len(visible) {
			list.NextPageToken = strconv.Itoa(stop)
		}
	}

	writeJSON(w, r, http.StatusOK, list)
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VersionNumber string `json:"versionNumber"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}
	n, err := strconv.ParseInt(req.VersionNumber, 10, 64)
	if err != nil || n <= 0 {
		writeError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "Invalid version number.")
		return
	}

	e, ok := s.lookup(n)
	if !ok {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("Version %d not found.", n))
		return
	}

	writeTemplate(w, r, s.appendVersion(e.doc, "REST_API", "ROLLBACK", n))
}

func (s *Server) lookup(n int64) (entry, bool) {
	for _, e := range s.versions {
		if e.version.VersionNumber == n && !e.expired {
			return e, true
		}
	}
	return entry{}, false
}

// writeTemplate отдаёт шаблон с полем version. ETag выдаётся только
// при Accept-Encoding: gzip, как у настоящего сервера.
func writeTemplate(w http.ResponseWriter, r *http.Request, e entry) {
	body := e.doc.Clone()
	body["version"] = e.version

	if acceptsGzip(r) {
		w.Header().Set("ETag", ETagFor(e.version.VersionNumber))
	}
	writeJSON(w, r, http.StatusOK, body)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, status, message string) {
	var env struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	env.Error.Code = code
	env.Error.Message = message
	env.Error.Status = status

	writeJSON(w, r, code, env)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(v)

	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	if acceptsGzip(r) {
		w.Header().Set("Content-Encoding", "gzip")
		w.WriteHeader(status)
		zw := gzip.NewWriter(w)
		_, _ = zw.Write(buf.Bytes())
		_ = zw.Close()
		return
	}

	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func acceptsGzip(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
}
