package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"clarity/api/internal/auth"
	"clarity/api/internal/store"
)

func issueTestToken(t *testing.T, svc *Service, userID, userName string) string {
	t.Helper()
	token, err := auth.IssueToken([]byte(svc.cfg.TokenSecret), auth.Claims{
		Sub:  userID,
		Name: userName,
		JTI:  "jti-test",
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func TestHealthEndpoint(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}), "*")

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if ok, exists := response["ok"]; !exists || ok != true {
		t.Fatalf("expected ok=true, got %v", ok)
	}
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("ready when database pings", func(t *testing.T) {
		server := NewHTTPServer(newTestService(&fakeStore{}), "*")
		req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
		rr := httptest.NewRecorder()
		server.Handler().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("not ready when database is down", func(t *testing.T) {
		fs := &fakeStore{pingFn: func(context.Context) error { return errors.New("connection refused") }}
		server := NewHTTPServer(newTestService(fs), "*")
		req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
		rr := httptest.NewRecorder()
		server.Handler().ServeHTTP(rr, req)

		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected status 503, got %d", rr.Code)
		}
		var response map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if response["status"] != "not_ready" {
			t.Fatalf("expected not_ready, got %v", response["status"])
		}
	})
}

func TestSessionEndpointSoftAuth(t *testing.T) {
	fs := &fakeStore{
		getUserByIDFn: func(_ context.Context, userID string) (store.User, error) {
			return store.User{ID: userID, DisplayName: "Avery"}, nil
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	t.Run("no token reports unauthenticated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
		rr := httptest.NewRecorder()
		server.Handler().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var payload map[string]any
		_ = json.Unmarshal(rr.Body.Bytes(), &payload)
		if payload["authenticated"] != false {
			t.Fatalf("expected authenticated=false, got %v", payload["authenticated"])
		}
	})

	t.Run("valid token reports identity", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
		req.Header.Set("Authorization", "Bearer "+issueTestToken(t, svc, "user-1", "Avery"))
		rr := httptest.NewRecorder()
		server.Handler().ServeHTTP(rr, req)

		var payload map[string]any
		_ = json.Unmarshal(rr.Body.Bytes(), &payload)
		if payload["authenticated"] != true || payload["userName"] != "Avery" {
			t.Fatalf("unexpected payload %v", payload)
		}
	})

	t.Run("garbage token reports unauthenticated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rr := httptest.NewRecorder()
		server.Handler().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var payload map[string]any
		_ = json.Unmarshal(rr.Body.Bytes(), &payload)
		if payload["authenticated"] != false {
			t.Fatalf("expected authenticated=false, got %v", payload["authenticated"])
		}
	})
}

func TestWriteRoutesRequireSession(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}), "*")

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/folders"},
		{http.MethodPost, "/api/notes"},
		{http.MethodPut, "/api/notes/note_1"},
		{http.MethodPost, "/api/notes/note_1/attachment"},
		{http.MethodGet, "/api/notes/note_1/export"},
	}
	for _, route := range routes {
		req := httptest.NewRequest(route.method, route.path, bytes.NewBufferString(`{}`))
		rr := httptest.NewRecorder()
		server.Handler().ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected status 401, got %d", route.method, route.path, rr.Code)
		}
	}
}

func TestAnonymousPublicReads(t *testing.T) {
	publicNote := store.Note{ID: "note_pub", FolderID: "fld_1", UserID: "owner", Title: "Mitosis", IsPublic: true}
	privateNote := store.Note{ID: "note_priv", FolderID: "fld_1", UserID: "owner", IsPublic: false}
	fs := &fakeStore{
		listFoldersFn: func(_ context.Context, q store.FolderQuery) ([]store.Folder, error) {
			if q.Scope != store.ScopePublic {
				return nil, nil
			}
			return []store.Folder{{ID: "fld_1", Name: "Biology", UserID: "owner", IsPublic: true}}, nil
		},
		getFolderFn: func(context.Context, string) (store.Folder, error) {
			return store.Folder{ID: "fld_1", UserID: "owner", IsPublic: true}, nil
		},
		listNotesFn: func(_ context.Context, _ string, includePrivate bool) ([]store.Note, error) {
			if includePrivate {
				return []store.Note{publicNote, privateNote}, nil
			}
			return []store.Note{publicNote}, nil
		},
		getNoteFn: func(_ context.Context, noteID string) (store.Note, error) {
			switch noteID {
			case "note_pub":
				return publicNote, nil
			case "note_priv":
				return privateNote, nil
			}
			return store.Note{}, sql.ErrNoRows
		},
	}
	server := NewHTTPServer(newTestService(fs), "*")

	t.Run("public folder listing without a token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/folders?scope=public", nil)
		rr := httptest.NewRecorder()
		server.Handler().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
		}
		var payload struct {
			Folders []map[string]any `json:"folders"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
			t.Fatalf("parse response: %v", err)
		}
		if len(payload.Folders) != 1 || payload.Folders[0]["name"] != "Biology" {
			t.Fatalf("unexpected folders %+v", payload.Folders)
		}
	})

	t.Run("public folder notes without a token hide private notes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/notes?folder_id=fld_1", nil)
		rr := httptest.NewRecorder()
		server.Handler().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
		}
		var payload struct {
			Notes []map[string]any `json:"notes"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
			t.Fatalf("parse response: %v", err)
		}
		if len(payload.Notes) != 1 || payload.Notes[0]["id"] != "note_pub" {
			t.Fatalf("unexpected notes %+v", payload.Notes)
		}
	})

	t.Run("public note readable without a token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/notes/note_pub", nil)
		rr := httptest.NewRecorder()
		server.Handler().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
		}
	})

	t.Run("private note stays hidden without a token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/notes/note_priv", nil)
		rr := httptest.NewRecorder()
		server.Handler().ServeHTTP(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d body=%s", rr.Code, rr.Body.String())
		}
	})

	t.Run("garbage token degrades to anonymous", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/notes/note_pub", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rr := httptest.NewRecorder()
		server.Handler().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
		}
	})
}

func TestFoldersEndpoint(t *testing.T) {
	fs := &fakeStore{
		getUserByIDFn: func(_ context.Context, userID string) (store.User, error) {
			return store.User{ID: userID, DisplayName: "Avery"}, nil
		},
		listFoldersFn: func(_ context.Context, q store.FolderQuery) ([]store.Folder, error) {
			return []store.Folder{{ID: "fld_1", Name: "Biology", UserID: q.OwnerID}}, nil
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	token := issueTestToken(t, svc, "user-1", "Avery")

	req := httptest.NewRequest(http.MethodGet, "/api/folders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload struct {
		Folders []map[string]any `json:"folders"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(payload.Folders) != 1 || payload.Folders[0]["name"] != "Biology" {
		t.Fatalf("unexpected folders %+v", payload.Folders)
	}
}

func TestCreateFolderEndpoint(t *testing.T) {
	fs := &fakeStore{
		getUserByIDFn: func(_ context.Context, userID string) (store.User, error) {
			return store.User{ID: userID}, nil
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	token := issueTestToken(t, svc, "user-1", "Avery")

	req := httptest.NewRequest(http.MethodPost, "/api/folders", bytes.NewBufferString(`{"name":"Biology","is_public":true}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var folder map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &folder); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if folder["name"] != "Biology" || folder["is_public"] != true {
		t.Fatalf("unexpected folder %+v", folder)
	}
}

func TestNotesEndpointRequiresFolderID(t *testing.T) {
	fs := &fakeStore{
		getUserByIDFn: func(_ context.Context, userID string) (store.User, error) {
			return store.User{ID: userID}, nil
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	token := issueTestToken(t, svc, "user-1", "Avery")

	req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	var payload map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &payload)
	if payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("unexpected code %v", payload["code"])
	}
}

func TestNoteNotFoundHidesDenial(t *testing.T) {
	privateNote := store.Note{ID: "note_1", FolderID: "fld_1", UserID: "owner", IsPublic: false}
	fs := &fakeStore{
		getUserByIDFn: func(_ context.Context, userID string) (store.User, error) {
			return store.User{ID: userID}, nil
		},
		getNoteFn: func(_ context.Context, noteID string) (store.Note, error) {
			if noteID == "note_1" {
				return privateNote, nil
			}
			return store.Note{}, sql.ErrNoRows
		},
		getFolderFn: func(context.Context, string) (store.Folder, error) {
			return store.Folder{ID: "fld_1", UserID: "owner"}, nil
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	token := issueTestToken(t, svc, "stranger", "Sam")

	// A denied note and a missing note produce identical responses.
	bodies := make([]string, 0, 2)
	for _, noteID := range []string{"note_1", "note_nope"} {
		req := httptest.NewRequest(http.MethodGet, "/api/notes/"+noteID, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		server.Handler().ServeHTTP(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Fatalf("%s: expected status 404, got %d", noteID, rr.Code)
		}
		bodies = append(bodies, rr.Body.String())
	}
	if bodies[0] != bodies[1] {
		t.Fatalf("denied and missing notes must be indistinguishable: %q vs %q", bodies[0], bodies[1])
	}
}

func TestAIEndpoint(t *testing.T) {
	fs := &fakeStore{
		getUserByIDFn: func(_ context.Context, userID string) (store.User, error) {
			return store.User{ID: userID}, nil
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	token := issueTestToken(t, svc, "user-1", "Avery")

	t.Run("answers a prompt", func(t *testing.T) {
		svc.ai = &fakeAI{answerFn: func(_ context.Context, prompt, fileURL string) (string, error) {
			return "Cells divide in two.", nil
		}}
		req := httptest.NewRequest(http.MethodPost, "/api/ai", bytes.NewBufferString(`{"prompt":"what is mitosis?"}`))
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		server.Handler().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
		}
		var payload map[string]any
		_ = json.Unmarshal(rr.Body.Bytes(), &payload)
		if payload["text"] != "Cells divide in two." {
			t.Fatalf("unexpected payload %v", payload)
		}
	})

	t.Run("empty body is a 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/ai", bytes.NewBufferString(`{}`))
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		server.Handler().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d body=%s", rr.Code, rr.Body.String())
		}
	})
}

func TestAIEndpointWithoutSession(t *testing.T) {
	svc := newTestService(&fakeStore{})
	server := NewHTTPServer(svc, "*")

	t.Run("empty body validates before anything else", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/ai", bytes.NewBufferString(`{}`))
		rr := httptest.NewRecorder()
		server.Handler().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d body=%s", rr.Code, rr.Body.String())
		}
		var payload map[string]any
		_ = json.Unmarshal(rr.Body.Bytes(), &payload)
		if payload["code"] != "VALIDATION_ERROR" {
			t.Fatalf("unexpected code %v", payload["code"])
		}
	})

	t.Run("anonymous prompt is answered", func(t *testing.T) {
		svc.ai = &fakeAI{answerFn: func(context.Context, string, string) (string, error) {
			return "Plants make food from light.", nil
		}}
		req := httptest.NewRequest(http.MethodPost, "/api/ai", bytes.NewBufferString(`{"prompt":"what is photosynthesis?"}`))
		rr := httptest.NewRecorder()
		server.Handler().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
		}
	})
}

func TestAttachmentEndpoint(t *testing.T) {
	note := store.Note{ID: "note_1", FolderID: "fld_1", UserID: "user-1"}
	var savedURL string
	fs := &fakeStore{
		getUserByIDFn: func(_ context.Context, userID string) (store.User, error) {
			return store.User{ID: userID}, nil
		},
		getNoteFn: func(context.Context, string) (store.Note, error) { return note, nil },
		getFolderFn: func(context.Context, string) (store.Folder, error) {
			return store.Folder{ID: "fld_1", UserID: "user-1", IsPublic: true}, nil
		},
		setNoteFileURLFn: func(_ context.Context, _, fileURL string) error {
			savedURL = fileURL
			return nil
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	token := issueTestToken(t, svc, "user-1", "Avery")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "syllabus.pdf")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write([]byte("%PDF-1.4"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/notes/note_1/attachment", &buf)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if savedURL == "" {
		t.Fatalf("expected file URL to be saved")
	}

	t.Run("missing file field is a 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/notes/note_1/attachment", bytes.NewBufferString("not multipart"))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "text/plain")
		rr := httptest.NewRecorder()
		server.Handler().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestExportEndpoint(t *testing.T) {
	note := store.Note{ID: "note_1", FolderID: "fld_1", UserID: "user-1", Title: "Mitosis"}
	fs := &fakeStore{
		getUserByIDFn: func(_ context.Context, userID string) (store.User, error) {
			return store.User{ID: userID, DisplayName: "Avery"}, nil
		},
		getNoteFn: func(context.Context, string) (store.Note, error) { return note, nil },
		getFolderFn: func(context.Context, string) (store.Folder, error) {
			return store.Folder{ID: "fld_1", UserID: "user-1", Name: "Biology"}, nil
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	token := issueTestToken(t, svc, "user-1", "Avery")

	req := httptest.NewRequest(http.MethodGet, "/api/notes/note_1/export", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("unexpected content type %q", got)
	}
	if got := rr.Header().Get("Content-Disposition"); got == "" {
		t.Fatalf("expected Content-Disposition header")
	}
	if !bytes.HasPrefix(rr.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("expected PDF payload")
	}
}

func TestCORSAndRequestID(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}), "http://localhost:3000")

	req := httptest.NewRequest(http.MethodOptions, "/api/folders", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204 for preflight, got %d", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Fatalf("204 must not carry a body, got %q", rr.Body.String())
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("unexpected CORS origin %q", got)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected generated request id")
	}

	t.Run("provided request id is echoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set("X-Request-ID", "req-42")
		rr := httptest.NewRecorder()
		server.Handler().ServeHTTP(rr, req)

		if got := rr.Header().Get("X-Request-ID"); got != "req-42" {
			t.Fatalf("expected req-42, got %q", got)
		}
	})
}
