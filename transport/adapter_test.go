package transport

import (
	"sync"
	"testing"
	"time"

	"landkeeper/ids"
	"landkeeper/keeper"
	"landkeeper/wire"
)

type counterState struct {
	Count int `json:"count"`
}

func incrementDef() keeper.Definition[counterState] {
	return keeper.Definition[counterState]{
		Events: map[string][]keeper.Rule[counterState]{
			"Increment": {
				func(s *counterState, event keeper.Event, ctx *keeper.Context) error {
					s.Count++
					return nil
				},
			},
		},
	}
}

type sentFrame struct {
	target SendTarget
	data   []byte
}

type fakeTransport struct {
	mu         sync.Mutex
	sent       []sentFrame
	onSendHook func()
	closed     []ids.SessionID
}

func (f *fakeTransport) Start() error { return nil }
func (f *fakeTransport) Stop() error  { return nil }
func (f *fakeTransport) Close(sessionID ids.SessionID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, sessionID)
	return nil
}
func (f *fakeTransport) Send(data []byte, target SendTarget) error {
	f.mu.Lock()
	f.sent = append(f.sent, sentFrame{target: target, data: append([]byte(nil), data...)})
	hook := f.onSendHook
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (f *fakeTransport) framesTo(sessionID ids.SessionID) []wire.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	codec := wire.NewJSONCodec()
	var out []wire.Message
	for _, sf := range f.sent {
		if sf.target.Kind == SendSession && sf.target.SessionID == sessionID {
			msg, err := codec.DecodeMessage(sf.data)
			if err == nil {
				out = append(out, msg)
			}
		}
	}
	return out
}

func newTestAdapter(ft *fakeTransport, enableLegacy bool) *Adapter[counterState] {
	return newTestAdapterWithLimit(ft, enableLegacy, 0)
}

func newTestAdapterWithLimit(ft *fakeTransport, enableLegacy bool, maxPlayers int) *Adapter[counterState] {
	k := keeper.New(ids.LandID{LandType: "test-land"}, incrementDef(), counterState{})
	codec := wire.NewJSONCodec()
	return NewAdapter(ids.LandID{LandType: "test-land"}, k, ft, codec, codec, 5*time.Second, enableLegacy, maxPlayers, nil)
}

func TestIncrementScenarioEndToEnd(t *testing.T) {
	ft := &fakeTransport{}
	a := newTestAdapter(ft, false)

	sess := ids.SessionID("sess-1")
	a.OnConnect(sess, ids.ClientID("cli-1"), nil, "json")

	joinMsg := wire.JoinMessage(wire.JoinBody{RequestID: "r1", LandType: "test-land"})
	data, _ := wire.NewJSONCodec().EncodeMessage(joinMsg)
	a.OnMessage(data, sess)

	frames := ft.framesTo(sess)
	if len(frames) != 2 {
		t.Fatalf("expected joinResponse+firstSync, got %d frames: %+v", len(frames), frames)
	}
	if frames[0].Kind != wire.KindJoinResponse || !frames[0].JoinResponse.Success {
		t.Fatalf("expected successful joinResponse first, got %+v", frames[0])
	}
	if frames[1].Kind != wire.KindStateUpdate || frames[1].StateUpdate.Variant != wire.VariantFirstSync {
		t.Fatalf("expected firstSync second, got %+v", frames[1])
	}
	if frames[1].StateUpdate.Snapshot.Object["count"].Int != 0 {
		t.Fatalf("expected count 0 in firstSync, got %+v", frames[1].StateUpdate.Snapshot)
	}

	evtMsg := wire.EventMessage(wire.EventBody{Direction: wire.FromClient, Type: "Increment"})
	evtData, _ := wire.NewJSONCodec().EncodeMessage(evtMsg)
	a.OnMessage(evtData, sess)

	a.SyncNow()

	frames = ft.framesTo(sess)
	if len(frames) != 3 {
		t.Fatalf("expected a third diff frame, got %d: %+v", len(frames), frames)
	}
	diffFrame := frames[2]
	if diffFrame.Kind != wire.KindStateUpdate || diffFrame.StateUpdate.Variant != wire.VariantDiff {
		t.Fatalf("expected diff frame, got %+v", diffFrame)
	}
	if len(diffFrame.StateUpdate.Patches) != 1 || diffFrame.StateUpdate.Patches[0].Path != "/count" {
		t.Fatalf("unexpected patches: %+v", diffFrame.StateUpdate.Patches)
	}
}

func TestJoinResponsePrecedesFirstSyncUnderConcurrentSyncNow(t *testing.T) {
	ft := &fakeTransport{}
	a := newTestAdapter(ft, true)

	ft.onSendHook = func() {
		// Fires after every Send. Send runs under the adapter lock, so the
		// concurrent SyncNow is started on its own goroutine; it must not
		// get a diff in between joinResponse and firstSync.
		go a.SyncNow()
	}

	sess := ids.SessionID("sess-1")
	a.OnConnect(sess, ids.ClientID("cli-1"), nil, "json")

	frames := ft.framesTo(sess)
	if len(frames) != 2 {
		t.Fatalf("expected exactly [joinResponse, firstSync], got %d: %+v", len(frames), frames)
	}
	if frames[0].Kind != wire.KindJoinResponse {
		t.Fatalf("expected joinResponse first, got %+v", frames[0])
	}
	if frames[1].Kind != wire.KindStateUpdate || frames[1].StateUpdate.Variant != wire.VariantFirstSync {
		t.Fatalf("expected firstSync second, got %+v", frames[1])
	}
}

func TestRejoinAfterDisconnect(t *testing.T) {
	ft := &fakeTransport{}
	a := newTestAdapter(ft, false)

	sess1 := ids.SessionID("sess-1")
	a.OnConnect(sess1, ids.ClientID("cli-1"), nil, "json")
	joinData, _ := wire.NewJSONCodec().EncodeMessage(wire.JoinMessage(wire.JoinBody{RequestID: "r1", LandType: "test-land"}))
	a.OnMessage(joinData, sess1)
	a.OnDisconnect(sess1, ids.ClientID("cli-1"))

	sess2 := ids.SessionID("sess-2")
	a.OnConnect(sess2, ids.ClientID("cli-2"), nil, "json")
	joinData2, _ := wire.NewJSONCodec().EncodeMessage(wire.JoinMessage(wire.JoinBody{RequestID: "r2", LandType: "test-land", PlayerID: "player-1"}))
	a.OnMessage(joinData2, sess2)

	frames := ft.framesTo(sess2)
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames to sess2, got %d: %+v", len(frames), frames)
	}
	if frames[0].Kind != wire.KindJoinResponse || frames[1].Kind != wire.KindStateUpdate {
		t.Fatalf("expected [joinResponse, firstSync] to sess2, got %+v", frames)
	}
}

func TestMismatchedLand(t *testing.T) {
	ft := &fakeTransport{}
	a := newTestAdapter(ft, false)

	sess := ids.SessionID("sess-1")
	a.OnConnect(sess, ids.ClientID("cli-1"), nil, "json")
	data, _ := wire.NewJSONCodec().EncodeMessage(wire.JoinMessage(wire.JoinBody{RequestID: "r1", LandType: "wrong"}))
	a.OnMessage(data, sess)

	frames := ft.framesTo(sess)
	if len(frames) != 1 || frames[0].JoinResponse.Success {
		t.Fatalf("expected a single failed joinResponse, got %+v", frames)
	}
	if frames[0].JoinResponse.Reason != "mismatched-land" {
		t.Fatalf("expected mismatched-land reason, got %q", frames[0].JoinResponse.Reason)
	}
	if a.IsJoined(sess) {
		t.Fatalf("expected session not joined")
	}
	if a.PlayerCount() != 0 {
		t.Fatalf("expected 0 players, got %d", a.PlayerCount())
	}
}

func TestDuplicateJoin(t *testing.T) {
	ft := &fakeTransport{}
	a := newTestAdapter(ft, false)

	sess := ids.SessionID("sess-1")
	a.OnConnect(sess, ids.ClientID("cli-1"), nil, "json")
	joinData, _ := wire.NewJSONCodec().EncodeMessage(wire.JoinMessage(wire.JoinBody{RequestID: "r1", LandType: "test-land"}))
	a.OnMessage(joinData, sess)
	a.OnMessage(joinData, sess)

	if a.PlayerCount() != 1 {
		t.Fatalf("expected exactly 1 player, got %d", a.PlayerCount())
	}
	frames := ft.framesTo(sess)
	last := frames[len(frames)-1]
	if last.Kind != wire.KindJoinResponse || last.JoinResponse.Success {
		t.Fatalf("expected second join to fail, got %+v", last)
	}
	if last.JoinResponse.Reason != "duplicate" {
		t.Fatalf("expected duplicate reason, got %q", last.JoinResponse.Reason)
	}
}

func TestOpcodeBundlingScenario(t *testing.T) {
	ft := &fakeTransport{}
	k := keeper.New(ids.LandID{LandType: "test-land"}, incrementDef(), counterState{})
	msgCodec := wire.NewMessagePackCodec()
	stateCodec := wire.NewOpcodeMessagePackCodec()
	a := NewAdapter(ids.LandID{LandType: "test-land"}, k, ft, msgCodec, stateCodec, 5*time.Second, false, 0, nil)

	sess := ids.SessionID("sess-1")
	a.OnConnect(sess, ids.ClientID("c1"), nil, "messagepack")
	joinData, _ := msgCodec.EncodeMessage(wire.JoinMessage(wire.JoinBody{RequestID: "r1", LandType: "test-land"}))
	a.OnMessage(joinData, sess)

	ft.mu.Lock()
	ft.sent = nil
	ft.mu.Unlock()

	evtData, _ := msgCodec.EncodeMessage(wire.EventMessage(wire.EventBody{Direction: wire.FromClient, Type: "Increment"}))
	a.OnMessage(evtData, sess)

	a.SendEvent(keeper.Event{Type: "ack"}, keeper.ToSession(sess))
	a.SyncNow()

	ft.mu.Lock()
	numSent := len(ft.sent)
	ft.mu.Unlock()
	if numSent != 2 {
		t.Fatalf("expected exactly 2 frames (bundled update + standalone targeted event), got %d", numSent)
	}
}

func TestJoinRejectedWhenLandFull(t *testing.T) {
	ft := &fakeTransport{}
	a := newTestAdapterWithLimit(ft, false, 1)

	sess1 := ids.SessionID("sess-1")
	a.OnConnect(sess1, ids.ClientID("cli-1"), nil, "json")
	joinData1, _ := wire.NewJSONCodec().EncodeMessage(wire.JoinMessage(wire.JoinBody{RequestID: "r1", LandType: "test-land"}))
	a.OnMessage(joinData1, sess1)

	if !a.IsJoined(sess1) {
		t.Fatalf("expected first session to join successfully")
	}

	sess2 := ids.SessionID("sess-2")
	a.OnConnect(sess2, ids.ClientID("cli-2"), nil, "json")
	joinData2, _ := wire.NewJSONCodec().EncodeMessage(wire.JoinMessage(wire.JoinBody{RequestID: "r2", LandType: "test-land"}))
	a.OnMessage(joinData2, sess2)

	frames := ft.framesTo(sess2)
	if len(frames) != 1 || frames[0].Kind != wire.KindJoinResponse || frames[0].JoinResponse.Success {
		t.Fatalf("expected a single failed joinResponse for sess2, got %+v", frames)
	}
	if frames[0].JoinResponse.Reason != "land-full" {
		t.Fatalf("expected land-full reason, got %q", frames[0].JoinResponse.Reason)
	}
	if a.PlayerCount() != 1 {
		t.Fatalf("expected player count to stay at 1, got %d", a.PlayerCount())
	}

	ft.mu.Lock()
	closed := append([]ids.SessionID(nil), ft.closed...)
	ft.mu.Unlock()
	if len(closed) != 1 || closed[0] != sess2 {
		t.Fatalf("expected sess2 closed, got %v", closed)
	}
}

func TestLegacyJoinRejectedWhenLandFull(t *testing.T) {
	ft := &fakeTransport{}
	a := newTestAdapterWithLimit(ft, true, 1)

	sess1 := ids.SessionID("sess-1")
	a.OnConnect(sess1, ids.ClientID("cli-1"), nil, "json")
	if !a.IsJoined(sess1) {
		t.Fatalf("expected first legacy-joined session to succeed")
	}

	sess2 := ids.SessionID("sess-2")
	a.OnConnect(sess2, ids.ClientID("cli-2"), nil, "json")

	frames := ft.framesTo(sess2)
	if len(frames) != 1 || frames[0].JoinResponse.Success {
		t.Fatalf("expected a single failed legacy joinResponse for sess2, got %+v", frames)
	}
	if frames[0].JoinResponse.Reason != "land-full" {
		t.Fatalf("expected land-full reason, got %q", frames[0].JoinResponse.Reason)
	}
}
