//go:build e2e

package e2e

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type item struct {
	ID     string  `json:"id,omitempty"`
	Type   string  `json:"type"`
	Name   string  `json:"name"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

type configurationList struct {
	ActiveID       string `json:"activeConfigurationId"`
	Configurations []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"configurations"`
}

func TestServer_ProjectSurvivesRestart(t *testing.T) {
	dataDir := t.TempDir()
	s := startTraderack(t, dataDir)

	var added item
	s.do(t, http.MethodPost, "/api/v1/mep", item{Type: "duct", Name: "Supply", Width: 24, Height: 12}, &added, http.StatusCreated)
	s.do(t, http.MethodPost, "/api/v1/configurations", map[string]string{"name": "Level 1"}, nil, http.StatusCreated)

	s = s.restart(t)

	var items []item
	s.do(t, http.MethodGet, "/api/v1/mep", nil, &items, http.StatusOK)
	if len(items) != 1 || items[0].ID != added.ID {
		t.Errorf("items after restart = %+v, want %s", items, added.ID)
	}

	var list configurationList
	s.do(t, http.MethodGet, "/api/v1/configurations", nil, &list, http.StatusOK)
	if len(list.Configurations) != 1 || list.Configurations[0].Name != "Level 1" {
		t.Errorf("configurations after restart = %+v", list)
	}
	if list.ActiveID != list.Configurations[0].ID {
		t.Errorf("active = %q, want the saved configuration", list.ActiveID)
	}
}

func TestServer_EventStream(t *testing.T) {
	s := startTraderack(t, t.TempDir())

	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL("/api/v1/events"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello struct {
		Type string `json:"type"`
	}
	if err := conn.ReadJSON(&hello); err != nil || hello.Type != "hello" {
		t.Fatalf("hello = %+v, err %v", hello, err)
	}

	var added item
	s.do(t, http.MethodPost, "/api/v1/mep", item{Type: "duct", Name: "Return", Width: 18, Height: 10}, &added, http.StatusCreated)

	for {
		var msg struct {
			Type  string `json:"type"`
			Event struct {
				Name   string          `json:"type"`
				Detail json.RawMessage `json:"detail"`
			} `json:"event"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for mepItemsUpdated: %v", err)
		}
		if msg.Event.Name != "mepItemsUpdated" {
			continue
		}
		if !strings.Contains(string(msg.Event.Detail), added.ID) {
			t.Errorf("detail = %s, want %s", msg.Event.Detail, added.ID)
		}
		return
	}
}

func TestServer_ShutdownClosesEventStreams(t *testing.T) {
	s := startTraderack(t, t.TempDir())

	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL("/api/v1/events"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read hello: %v", err)
	}

	done := make(chan struct{})
	go func() {
		s.stop()
		close(done)
	}()

	_, _, err = conn.ReadMessage()
	var ce *websocket.CloseError
	if !errors.As(err, &ce) || ce.Code != websocket.CloseGoingAway {
		t.Errorf("read after shutdown = %v, want going-away close", err)
	}

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("server did not exit")
	}
}

func TestCLI_ReadsServerDatabase(t *testing.T) {
	dataDir := t.TempDir()
	s := startTraderack(t, dataDir)
	s.do(t, http.MethodPost, "/api/v1/mep", item{Type: "duct", Name: "Exhaust", Width: 12, Height: 8}, nil, http.StatusCreated)
	s.do(t, http.MethodPost, "/api/v1/configurations", map[string]string{"name": "CLI"}, nil, http.StatusCreated)
	s.stop()

	var list struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal([]byte(runCLI(t, dataDir, "configs", "list", "--json")), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 1 {
		t.Errorf("total = %d, want 1", list.Total)
	}

	if out := runCLI(t, dataDir, "history", "--limit", "5"); !strings.Contains(out, "SEQ") {
		t.Errorf("history output = %s", out)
	}

	exportFile := filepath.Join(dataDir, "export.json")
	runCLI(t, dataDir, "configs", "export", "-o", exportFile)
	if _, err := os.Stat(exportFile); err != nil {
		t.Errorf("export file: %v", err)
	}
}
