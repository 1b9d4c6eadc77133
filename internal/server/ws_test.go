package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/clinscribe/clinscribe/internal/broker"
	"github.com/clinscribe/clinscribe/internal/enhance"
	"github.com/clinscribe/clinscribe/internal/orchestrator"
	"github.com/clinscribe/clinscribe/internal/quality"
	"github.com/clinscribe/clinscribe/internal/recognizer"
	"github.com/clinscribe/clinscribe/internal/session"
	"github.com/clinscribe/clinscribe/internal/vocabulary"
	"github.com/clinscribe/clinscribe/pkg/provider/stt"
	"github.com/clinscribe/clinscribe/pkg/provider/stt/mock"
)

type wsFixture struct {
	ts  *httptest.Server
	brk *broker.Broker

	mu      sync.Mutex
	streams []*mock.Stream
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()

	f := &wsFixture{}
	prov := &mock.Provider{StreamFactory: func() stt.StreamHandle {
		s := &mock.Stream{
			InterimsCh:           make(chan stt.Transcript, 16),
			FinalsCh:             make(chan stt.Transcript, 16),
			CloseChannelsOnClose: true,
		}
		f.mu.Lock()
		f.streams = append(f.streams, s)
		f.mu.Unlock()
		return s
	}}
	f.brk = broker.New()
	orch := orchestrator.New(
		session.NewRegistry(),
		recognizer.New(prov, stt.StreamConfig{SampleRate: 16000, Channels: 1}),
		enhance.New(vocabulary.New()),
		quality.New(quality.SourceConfidence),
		f.brk,
	)
	f.ts = httptest.NewServer(New(orch, f.brk).Handler())
	t.Cleanup(f.ts.Close)
	return f
}

func (f *wsFixture) stream(i int) *mock.Stream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[i]
}

func (f *wsFixture) createSession(t *testing.T, id string) {
	t.Helper()
	resp, err := http.Post(f.ts.URL+"/v1/sessions", "application/json",
		strings.NewReader(`{"id":"`+id+`","owner_id":"dr-lee"}`))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session: status = %d", resp.StatusCode)
	}
}

func (f *wsFixture) dial(t *testing.T, ctx context.Context, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/v1/sessions/" + id + "/stream"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestStream_AudioInEventsOut(t *testing.T) {
	t.Parallel()

	f := newWSFixture(t)
	f.createSession(t, "s1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := f.dial(t, ctx, "s1")
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Binary frames reach the engine stream.
	if err := conn.Write(ctx, websocket.MessageBinary, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		if f.stream(0).SendAudioCount() == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("audio chunk never reached the engine stream")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// A final from the engine comes back as a JSON event.
	f.stream(0).FinalsCh <- stt.Transcript{Text: "patient reports chest pain", IsFinal: true, Confidence: 0.97}

	var ev broker.Event
	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type != broker.EventFinalResult {
		t.Fatalf("event type = %q, want final_result", ev.Type)
	}
	if ev.Result == nil || ev.Result.RawText != "patient reports chest pain" {
		t.Errorf("event result = %+v, want the final transcript", ev.Result)
	}
}

func TestStream_UnknownSessionRejected(t *testing.T) {
	t.Parallel()

	f := newWSFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/v1/sessions/ghost/stream"
	_, resp, err := websocket.Dial(ctx, url, nil)
	if err == nil {
		t.Fatal("dial succeeded for unknown session")
	}
	if resp != nil && resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestStream_DisconnectKeepsSession(t *testing.T) {
	t.Parallel()

	f := newWSFixture(t)
	f.createSession(t, "s1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := f.dial(t, ctx, "s1")
	conn.Close(websocket.StatusNormalClosure, "")

	// The session survives the disconnect and a new socket can attach.
	resp, err := http.Get(f.ts.URL + "/v1/sessions/s1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 after disconnect", resp.StatusCode)
	}

	conn2 := f.dial(t, ctx, "s1")
	conn2.Close(websocket.StatusNormalClosure, "")
}
