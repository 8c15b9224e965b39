package main

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/position-monitor/internal/model"
)

func TestFormatEvent(t *testing.T) {
	upd := model.NewUpdate("1", model.FieldPnlDtd, -8432.5)
	if got, want := formatEvent(upd, false), "[UPDATE] id=1 field=pnlDtd value=-8432.50"; got != want {
		t.Errorf("formatEvent = %q, want %q", got, want)
	}

	ins := model.NewInsert(model.Record{
		ID:      "new-1",
		Numbers: map[string]float64{model.FieldPnlYtd: 1, model.FieldExposure: 2},
		Labels:  map[string]string{model.FieldInstrument: "META US Equity"},
	})
	want := `[INSERT] id=new-1 instrument="META US Equity" fields=[exposure pnlYtd]`
	if got := formatEvent(ins, false); got != want {
		t.Errorf("formatEvent = %q, want %q", got, want)
	}

	if got := formatEvent(upd, true); !strings.Contains(got, `"Field": "pnlDtd"`) {
		t.Errorf("verbose output missing field: %s", got)
	}
}

func TestLoadStreamConfig(t *testing.T) {
	if _, err := loadStreamConfig("", ""); err == nil {
		t.Error("expected error without a stream URL")
	}

	sc, err := loadStreamConfig("", "ws://localhost:9000/ws")
	if err != nil {
		t.Fatalf("loadStreamConfig failed: %v", err)
	}
	if sc.URL != "ws://localhost:9000/ws" {
		t.Errorf("URL = %q, want the override", sc.URL)
	}
	if sc.PingInterval == 0 || sc.ReconnectBaseDelay == 0 {
		t.Error("stream defaults not applied")
	}

	if _, err := loadStreamConfig("does-not-exist.yaml", ""); err == nil {
		t.Error("expected error for missing config file")
	}
}

// syncBuffer is a bytes.Buffer safe for one writer and a polling reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRun_PrintsEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"position_update","seq":1,"msg":{"id":"2","field":"pnlDtd","value":"-12.5"}}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	sc, err := loadStreamConfig("", "ws"+strings.TrimPrefix(server.URL, "http"))
	if err != nil {
		t.Fatalf("loadStreamConfig failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, sc, out, options{}, slog.New(slog.DiscardHandler))
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(out.String(), "[UPDATE] id=2 field=pnlDtd value=-12.50") {
		if time.Now().After(deadline) {
			t.Fatalf("output = %q, want the update line", out.String())
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
