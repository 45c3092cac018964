package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/haasonsaas/nexus/internal/config"
	"github.com/haasonsaas/nexus/internal/coordinator"
	"github.com/haasonsaas/nexus/internal/domain"
	"github.com/haasonsaas/nexus/internal/eventbus"
	"github.com/haasonsaas/nexus/internal/eventstore"
	"github.com/haasonsaas/nexus/internal/missions"
	"github.com/haasonsaas/nexus/internal/queue"
	"github.com/haasonsaas/nexus/internal/runtime"
	"github.com/haasonsaas/nexus/internal/scheduler"
)

type providerStub struct{}

func (providerStub) Complete(ctx context.Context, req *runtime.CompletionRequest) (<-chan *runtime.CompletionChunk, error) {
	return nil, domain.NewError(domain.ErrProtocol, "unused in this test")
}
func (providerStub) Name() string            { return "stub" }
func (providerStub) Models() []runtime.Model { return nil }
func (providerStub) SupportsTools() bool     { return false }

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	store := eventstore.NewMemoryStore()
	bus := eventbus.New(16, nil)
	registry := missions.New(store, bus, nil, nil)
	q := queue.New(nil)
	coord := coordinator.New(nil, nil)
	sched := scheduler.New(3, nil, nil)
	rt := runtime.New(store, bus, registry, q, coord, sched, nil, providerStub{}, runtime.Config{}, nil, nil, nil)
	return New(config.Default(), store, bus, registry, q, rt, nil, nil)
}

func TestCreateAndFetchMission(t *testing.T) {
	h := newTestServer(t)

	body, _ := json.Marshal(domain.CreateMissionParams{Title: "demo", WorkspaceID: "w1"})
	req := httptest.NewRequest(http.MethodPost, "/v1/missions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var m domain.Mission
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode created mission: %v", err)
	}
	if m.ID == "" {
		t.Fatal("expected a generated mission id")
	}

	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/v1/missions/"+m.ID, nil))
	if rec2.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200: %s", rec2.Code, rec2.Body.String())
	}
}

func TestGetUnknownMissionIsNotFound(t *testing.T) {
	h := newTestServer(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/missions/does-not-exist", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestQueuePostListClear(t *testing.T) {
	h := newTestServer(t)

	body, _ := json.Marshal(domain.CreateMissionParams{Title: "demo"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/missions", bytes.NewReader(body)))
	var m domain.Mission
	json.Unmarshal(rec.Body.Bytes(), &m)

	msgBody, _ := json.Marshal(map[string]string{"content": "hello"})
	recMsg := httptest.NewRecorder()
	h.ServeHTTP(recMsg, httptest.NewRequest(http.MethodPost, "/v1/missions/"+m.ID+"/messages", bytes.NewReader(msgBody)))
	if recMsg.Code != http.StatusAccepted {
		t.Fatalf("post message status = %d, want 202: %s", recMsg.Code, recMsg.Body.String())
	}
	var queued domain.QueuedMessage
	json.Unmarshal(recMsg.Body.Bytes(), &queued)

	recList := httptest.NewRecorder()
	h.ServeHTTP(recList, httptest.NewRequest(http.MethodGet, "/v1/queue?mission_id="+m.ID, nil))
	if recList.Code != http.StatusOK {
		t.Fatalf("list queue status = %d, want 200", recList.Code)
	}

	recClear := httptest.NewRecorder()
	h.ServeHTTP(recClear, httptest.NewRequest(http.MethodPost, "/v1/missions/"+m.ID+"/queue/clear", nil))
	if recClear.Code != http.StatusOK {
		t.Fatalf("clear queue status = %d, want 200: %s", recClear.Code, recClear.Body.String())
	}
}

func TestToolResultWithoutWaiterIsNotFound(t *testing.T) {
	h := newTestServer(t)
	body, _ := json.Marshal(map[string]string{"tool_call_id": "missing", "name": "read_file", "result": "x"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/tool-results", bytes.NewReader(body)))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", rec.Code, rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
