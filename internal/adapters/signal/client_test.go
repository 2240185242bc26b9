package signal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/dkeye/VoiceClient/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/livekit/protocol/livekit"
	"github.com/pion/webrtc/v4"
)

// relayStub is an in-process signal server.
type relayStub struct {
	t     *testing.T
	srv   *httptest.Server
	codec protocol.Codec

	// onConnect runs for every accepted socket; n counts from 1.
	onConnect func(n int, sc *stubConn)

	rejectStatus   int
	validateStatus int
	validateBody   string

	mu      sync.Mutex
	count   int
	queries []url.Values
	conns   chan *stubConn
}

type stubConn struct {
	ws    *websocket.Conn
	codec protocol.Codec
	query url.Values
}

func (sc *stubConn) send(t *testing.T, resp *livekit.SignalResponse) {
	t.Helper()
	f, err := sc.codec.EncodeResponse(resp)
	if err != nil {
		t.Errorf("encode: %v", err)
		return
	}
	if err := sc.ws.WriteMessage(f.Type, f.Data); err != nil {
		t.Errorf("write: %v", err)
	}
}

func (sc *stubConn) read(t *testing.T) *livekit.SignalRequest {
	t.Helper()
	_ = sc.ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, data, err := sc.ws.ReadMessage()
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	req, err := protocol.DecodeRequest(protocol.Frame{Type: mt, Data: data})
	if err != nil {
		t.Fatalf("server decode: %v", err)
	}
	return req
}

var stubUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func newRelayStub(t *testing.T, enc protocol.Encoding) *relayStub {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rs := &relayStub{
		t:              t,
		codec:          protocol.NewCodec(enc),
		validateStatus: http.StatusOK,
		conns:          make(chan *stubConn, 8),
	}

	r := gin.New()
	r.GET("/rtc", func(c *gin.Context) {
		rs.mu.Lock()
		rs.count++
		n := rs.count
		rs.queries = append(rs.queries, c.Request.URL.Query())
		reject := rs.rejectStatus
		rs.mu.Unlock()

		if reject != 0 {
			c.String(reject, "rejected")
			return
		}
		ws, err := stubUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		sc := &stubConn{ws: ws, codec: rs.codec, query: c.Request.URL.Query()}
		rs.conns <- sc
		if rs.onConnect != nil {
			rs.onConnect(n, sc)
		}
	})
	r.GET("/rtc/validate", func(c *gin.Context) {
		c.String(rs.validateStatus, rs.validateBody)
	})

	rs.srv = httptest.NewServer(r)
	t.Cleanup(rs.srv.Close)
	return rs
}

func (rs *relayStub) url() string {
	return "ws" + strings.TrimPrefix(rs.srv.URL, "http")
}

func (rs *relayStub) nextConn(t *testing.T) *stubConn {
	t.Helper()
	select {
	case sc := <-rs.conns:
		return sc
	case <-time.After(2 * time.Second):
		t.Fatal("no server connection")
		return nil
	}
}

func joinResponse(identity string) *livekit.SignalResponse {
	return &livekit.SignalResponse{Message: &livekit.SignalResponse_Join{Join: &livekit.JoinResponse{
		Room:        &livekit.Room{Sid: "RM_1", Name: "lobby"},
		Participant: &livekit.ParticipantInfo{Sid: "PA_1", Identity: identity},
	}}}
}

func sendJoin(t *testing.T) func(int, *stubConn) {
	return func(_ int, sc *stubConn) { sc.send(t, joinResponse("alice")) }
}

type event struct {
	name string
	args []any
}

type recordingHandler struct {
	events chan event
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{events: make(chan event, 32)}
}

func (h *recordingHandler) push(name string, args ...any) { h.events <- event{name: name, args: args} }

func (h *recordingHandler) OnAnswer(sd webrtc.SessionDescription) { h.push("answer", sd) }
func (h *recordingHandler) OnOffer(sd webrtc.SessionDescription) { h.push("offer", sd) }
func (h *recordingHandler) OnTrickle(ci webrtc.ICECandidateInit, target livekit.SignalTarget) {
	h.push("trickle", ci, target)
}
func (h *recordingHandler) OnParticipantUpdate(p []*livekit.ParticipantInfo) { h.push("update", p) }
func (h *recordingHandler) OnLocalTrackPublished(r *livekit.TrackPublishedResponse) {
	h.push("published", r)
}
func (h *recordingHandler) OnSpeakersChanged(s []*livekit.SpeakerInfo) { h.push("speakers", s) }
func (h *recordingHandler) OnRemoteMuteChanged(sid string, muted bool) {
	h.push("mute", sid, muted)
}
func (h *recordingHandler) OnRoomUpdate(r *livekit.Room) { h.push("room", r) }
func (h *recordingHandler) OnLeave() { h.push("leave") }
func (h *recordingHandler) OnClose(reason string, code int) { h.push("close", reason, code) }
func (h *recordingHandler) OnError(err error) { h.push("error", err) }

func (h *recordingHandler) next(t *testing.T) event {
	t.Helper()
	select {
	case ev := <-h.events:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("no handler event")
		return event{}
	}
}

func testOptions(enc protocol.Encoding) Options {
	return Options{
		Encoding:        enc,
		ConnectTimeout:  2 * time.Second,
		JoinTimeout:     2 * time.Second,
		ValidateTimeout: time.Second,
	}
}

func TestConnectReturnsJoin(t *testing.T) {
	rs := newRelayStub(t, protocol.JSON)
	rs.onConnect = sendJoin(t)

	c := NewClient(testOptions(protocol.JSON))
	defer c.Close()

	join, err := c.Connect(context.Background(), rs.url(), "tok", &core.ConnectOptions{AutoSubscribe: true})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if join.GetParticipant().GetIdentity() != "alice" {
		t.Fatalf("join %v", join)
	}
	if c.State() != domain.Connected {
		t.Fatalf("state %s", c.State())
	}

	q := rs.nextConn(t).query
	for k, want := range map[string]string{
		"protocol": "2", "access_token": "tok", "sdk": "go", "version": SDKVersion, "auto_subscribe": "1",
	} {
		if got := q.Get(k); got != want {
			t.Fatalf("query %s=%q, want %q", k, got, want)
		}
	}
	if q.Has("reconnect") {
		t.Fatal("fresh connect must not carry reconnect")
	}
}

func TestConnectIgnoresMessagesBeforeJoin(t *testing.T) {
	rs := newRelayStub(t, protocol.JSON)
	rs.onConnect = func(_ int, sc *stubConn) {
		sc.send(t, &livekit.SignalResponse{Message: &livekit.SignalResponse_Update{Update: &livekit.ParticipantUpdate{}}})
		sc.send(t, joinResponse("alice"))
	}
	h := newRecordingHandler()
	c := NewClient(testOptions(protocol.JSON))
	c.SetHandler(h)
	defer c.Close()

	if _, err := c.Connect(context.Background(), rs.url(), "tok", nil); err != nil {
		t.Fatalf("connect: %v", err)
	}
	select {
	case ev := <-h.events:
		t.Fatalf("unexpected event %s before join", ev.name)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConnectJoinTimeout(t *testing.T) {
	rs := newRelayStub(t, protocol.JSON)
	opts := testOptions(protocol.JSON)
	opts.JoinTimeout = 150 * time.Millisecond
	c := NewClient(opts)
	defer c.Close()

	_, err := c.Connect(context.Background(), rs.url(), "tok", nil)
	var ce *ConnectionError
	if !errors.As(err, &ce) || !errors.Is(err, ErrJoinTimeout) {
		t.Fatalf("err %v, want join timeout ConnectionError", err)
	}
	if c.State() != domain.Disconnected {
		t.Fatalf("state %s", c.State())
	}
}

func TestSecondConnectCancelsFirst(t *testing.T) {
	rs := newRelayStub(t, protocol.JSON)
	rs.onConnect = func(n int, sc *stubConn) {
		if n == 2 {
			sc.send(t, joinResponse("second"))
		}
	}
	c := NewClient(testOptions(protocol.JSON))
	defer c.Close()

	first := make(chan error, 1)
	go func() {
		_, err := c.Connect(context.Background(), rs.url(), "tok", nil)
		first <- err
	}()
	rs.nextConn(t)

	join, err := c.Connect(context.Background(), rs.url(), "tok", nil)
	if err != nil {
		t.Fatalf("second connect: %v", err)
	}
	if join.GetParticipant().GetIdentity() != "second" {
		t.Fatalf("join %v", join)
	}
	select {
	case err := <-first:
		if !errors.Is(err, ErrConnectCanceled) {
			t.Fatalf("first connect err %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first connect never resolved")
	}
}

func TestReconnectResolvesOnOpen(t *testing.T) {
	rs := newRelayStub(t, protocol.JSON)
	rs.onConnect = func(n int, sc *stubConn) {
		if n == 1 {
			sc.send(t, joinResponse("alice"))
		}
	}
	c := NewClient(testOptions(protocol.JSON))
	defer c.Close()

	if _, err := c.Connect(context.Background(), rs.url(), "tok", &core.ConnectOptions{AutoSubscribe: false}); err != nil {
		t.Fatal(err)
	}
	rs.nextConn(t)

	if err := c.Reconnect(context.Background(), rs.url(), "tok"); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if c.State() != domain.Connected {
		t.Fatalf("state %s", c.State())
	}
	q := rs.nextConn(t).query
	if q.Get("reconnect") != "1" || q.Get("auto_subscribe") != "0" {
		t.Fatalf("reconnect query %v", q)
	}
}

func TestSendWhileDisconnectedIsDropped(t *testing.T) {
	rs := newRelayStub(t, protocol.Protobuf)
	rs.onConnect = sendJoin(t)
	c := NewClient(testOptions(protocol.Protobuf))
	defer c.Close()

	if err := c.SendOffer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\n"}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("send before connect: %v", err)
	}
	if _, err := c.Connect(context.Background(), rs.url(), "tok", nil); err != nil {
		t.Fatal(err)
	}
	sc := rs.nextConn(t)

	if err := c.SendMuteTrack("TR_1", true); err != nil {
		t.Fatalf("send: %v", err)
	}
	req := sc.read(t)
	if protocol.RequestKind(req) != protocol.KindMute {
		t.Fatalf("first request after connect is %s, the dropped offer leaked", protocol.RequestKind(req))
	}
	if req.GetMute().GetSid() != "TR_1" || !req.GetMute().GetMuted() {
		t.Fatalf("mute %v", req.GetMute())
	}
}

func TestRequestsReachServer(t *testing.T) {
	rs := newRelayStub(t, protocol.JSON)
	rs.onConnect = sendJoin(t)
	c := NewClient(testOptions(protocol.JSON))
	defer c.Close()
	if _, err := c.Connect(context.Background(), rs.url(), "tok", nil); err != nil {
		t.Fatal(err)
	}
	sc := rs.nextConn(t)

	mid := "0"
	if err := c.SendCandidate(webrtc.ICECandidateInit{Candidate: "candidate:1", SDPMid: &mid}, livekit.SignalTarget_SUBSCRIBER); err != nil {
		t.Fatal(err)
	}
	req := sc.read(t)
	ci, err := protocol.UnmarshalCandidate(req.GetTrickle().GetCandidateInit())
	if err != nil || ci.Candidate != "candidate:1" || req.GetTrickle().GetTarget() != livekit.SignalTarget_SUBSCRIBER {
		t.Fatalf("trickle %v (%v)", req.GetTrickle(), err)
	}

	if err := c.SendAddTrack("cid-1", "cam", livekit.TrackType_VIDEO, &core.TrackDimensions{Width: 640, Height: 360}); err != nil {
		t.Fatal(err)
	}
	add := sc.read(t).GetAddTrack()
	if add.GetCid() != "cid-1" || add.GetWidth() != 640 || add.GetHeight() != 360 || add.GetType() != livekit.TrackType_VIDEO {
		t.Fatalf("add track %v", add)
	}

	if err := c.SendUpdateSubscription("TR_9", false); err != nil {
		t.Fatal(err)
	}
	sub := sc.read(t).GetSubscription()
	if len(sub.GetTrackSids()) != 1 || sub.GetTrackSids()[0] != "TR_9" || sub.GetSubscribe() {
		t.Fatalf("subscription %v", sub)
	}
}

func TestDispatchRoutesByKind(t *testing.T) {
	rs := newRelayStub(t, protocol.JSON)
	ready := make(chan *stubConn, 1)
	rs.onConnect = func(_ int, sc *stubConn) {
		sc.send(t, joinResponse("alice"))
		ready <- sc
	}
	h := newRecordingHandler()
	c := NewClient(testOptions(protocol.JSON))
	c.SetHandler(h)
	defer c.Close()
	if _, err := c.Connect(context.Background(), rs.url(), "tok", nil); err != nil {
		t.Fatal(err)
	}
	sc := <-ready

	sc.send(t, &livekit.SignalResponse{Message: &livekit.SignalResponse_Answer{Answer: &livekit.SessionDescription{Type: "answer", Sdp: "v=0\r\n"}}})
	sc.send(t, joinResponse("again"))
	sc.send(t, &livekit.SignalResponse{Message: &livekit.SignalResponse_Trickle{Trickle: &livekit.TrickleRequest{
		CandidateInit: `{"candidate":"candidate:7"}`, Target: livekit.SignalTarget_PUBLISHER,
	}}})
	sc.send(t, &livekit.SignalResponse{Message: &livekit.SignalResponse_TrackPublished{TrackPublished: &livekit.TrackPublishedResponse{
		Cid: "cid-1", Track: &livekit.TrackInfo{Sid: "TR_1"},
	}}})
	sc.send(t, &livekit.SignalResponse{Message: &livekit.SignalResponse_Mute{Mute: &livekit.MuteTrackRequest{Sid: "TR_2", Muted: true}}})
	sc.send(t, &livekit.SignalResponse{})
	sc.send(t, &livekit.SignalResponse{Message: &livekit.SignalResponse_Leave{Leave: &livekit.LeaveRequest{}}})

	want := []string{"answer", "trickle", "published", "mute", "leave"}
	for _, name := range want {
		ev := h.next(t)
		if ev.name != name {
			t.Fatalf("event %s, want %s", ev.name, name)
		}
		switch name {
		case "answer":
			if ev.args[0].(webrtc.SessionDescription).Type != webrtc.SDPTypeAnswer {
				t.Fatalf("answer %v", ev.args[0])
			}
		case "trickle":
			if ev.args[0].(webrtc.ICECandidateInit).Candidate != "candidate:7" || ev.args[1] != livekit.SignalTarget_PUBLISHER {
				t.Fatalf("trickle %v", ev.args)
			}
		case "published":
			if ev.args[0].(*livekit.TrackPublishedResponse).GetCid() != "cid-1" {
				t.Fatalf("published %v", ev.args[0])
			}
		case "mute":
			if ev.args[0] != "TR_2" || ev.args[1] != true {
				t.Fatalf("mute %v", ev.args)
			}
		}
	}
}

func TestCleanCloseCallsOnClose(t *testing.T) {
	rs := newRelayStub(t, protocol.JSON)
	ready := make(chan *stubConn, 1)
	rs.onConnect = func(_ int, sc *stubConn) {
		sc.send(t, joinResponse("alice"))
		ready <- sc
	}
	h := newRecordingHandler()
	c := NewClient(testOptions(protocol.JSON))
	c.SetHandler(h)
	defer c.Close()
	if _, err := c.Connect(context.Background(), rs.url(), "tok", nil); err != nil {
		t.Fatal(err)
	}
	sc := <-ready
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "room deleted")
	if err := sc.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		t.Fatal(err)
	}

	ev := h.next(t)
	if ev.name != "close" || ev.args[0] != "room deleted" || ev.args[1] != websocket.CloseNormalClosure {
		t.Fatalf("event %v", ev)
	}
}

func TestAbnormalCloseReportsValidateReason(t *testing.T) {
	rs := newRelayStub(t, protocol.JSON)
	rs.validateStatus = http.StatusNotFound
	rs.validateBody = "participant not found"
	ready := make(chan *stubConn, 1)
	rs.onConnect = func(_ int, sc *stubConn) {
		sc.send(t, joinResponse("alice"))
		ready <- sc
	}
	h := newRecordingHandler()
	c := NewClient(testOptions(protocol.JSON))
	c.SetHandler(h)
	defer c.Close()
	if _, err := c.Connect(context.Background(), rs.url(), "tok", nil); err != nil {
		t.Fatal(err)
	}
	sc := <-ready
	_ = sc.ws.UnderlyingConn().Close()

	ev := h.next(t)
	if ev.name != "error" {
		t.Fatalf("event %s, want error", ev.name)
	}
	var ce *ConnectionError
	if !errors.As(ev.args[0].(error), &ce) || ce.Reason != "participant not found" {
		t.Fatalf("error %v", ev.args[0])
	}
	if c.State() != domain.Disconnected {
		t.Fatalf("state %s", c.State())
	}
}

func TestDialFailureCarriesValidateReason(t *testing.T) {
	rs := newRelayStub(t, protocol.JSON)
	rs.rejectStatus = http.StatusUnauthorized
	rs.validateStatus = http.StatusUnauthorized
	rs.validateBody = "invalid token"

	c := NewClient(testOptions(protocol.JSON))
	defer c.Close()
	_, err := c.Connect(context.Background(), rs.url(), "bad", nil)
	var ce *ConnectionError
	if !errors.As(err, &ce) || ce.Reason != "invalid token" {
		t.Fatalf("err %v", err)
	}
	if c.State() != domain.Disconnected {
		t.Fatalf("state %s", c.State())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	rs := newRelayStub(t, protocol.JSON)
	rs.onConnect = sendJoin(t)
	c := NewClient(testOptions(protocol.JSON))
	if _, err := c.Connect(context.Background(), rs.url(), "tok", nil); err != nil {
		t.Fatal(err)
	}
	c.Close()
	c.Close()
	if c.State() != domain.Closed {
		t.Fatalf("state %s", c.State())
	}
	if _, err := c.Connect(context.Background(), rs.url(), "tok", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("connect after close: %v", err)
	}
	if err := c.SendLeave(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("send after close: %v", err)
	}
}

func TestCloseCancelsPendingConnect(t *testing.T) {
	rs := newRelayStub(t, protocol.JSON)
	c := NewClient(testOptions(protocol.JSON))

	done := make(chan error, 1)
	go func() {
		_, err := c.Connect(context.Background(), rs.url(), "tok", nil)
		done <- err
	}()
	rs.nextConn(t)
	c.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("err %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("connect did not return")
	}
}
