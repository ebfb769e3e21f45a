package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/canvasflow/agent"
	"github.com/BaSui01/canvasflow/internal/ctxkeys"
	"github.com/BaSui01/canvasflow/types"
)

// Agent is the execution surface the hub drives. *agent.BrowserAgent
// satisfies it. The hub runs the full lifecycle: Initialize, Execute,
// then Cleanup once the execution reaches a terminal snapshot.
type Agent interface {
	Initialize(ctx context.Context) error
	Execute(ctx context.Context, instruction string) agent.Response
	Cleanup(ctx context.Context) error
}

// Resolver turns a build request into a runnable agent.
type Resolver func(ctx context.Context, req agent.BuildRequest) (Agent, error)

// ChannelMetrics observes session and message counts. May be nil.
type ChannelMetrics interface {
	SessionOpened()
	SessionClosed()
	RecordChannelMessage(msgType, direction string)
}

// Hub accepts execution channel connections. Each connection is bound to
// one execution id; the latest state snapshot is persisted so a client
// reconnecting mid-flight sees where the execution stands.
type Hub struct {
	resolve Resolver
	store   SnapshotStore
	metrics ChannelMetrics
	logger  *zap.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// NewHub creates a hub. metrics may be nil.
func NewHub(resolve Resolver, store SnapshotStore, metrics ChannelMetrics, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		resolve: resolve,
		store:   store,
		metrics: metrics,
		logger:  logger.With(zap.String("component", "channel")),
		active:  make(map[string]context.CancelFunc),
	}
}

// session wraps one accepted connection. Writes are serialized: snapshot
// pushes come from the execution goroutine while error replies come from
// the read loop.
type session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (s *session) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.Write(ctx, websocket.MessageText, data)
}

// HandleWS upgrades the request and runs the session read loop until the
// client disconnects.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}

	executionID := r.URL.Query().Get("executionId")
	if executionID == "" {
		_ = conn.Close(websocket.StatusProtocolError, "Missing executionId")
		return
	}

	if h.metrics != nil {
		h.metrics.SessionOpened()
		defer h.metrics.SessionClosed()
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	sess := &session{conn: conn}
	ctx := r.Context()

	h.logger.Info("channel session opened", zap.String("execution_id", executionID))

	// A reconnecting client catches up from the stored snapshot before any
	// new frames arrive.
	if snap, ok, err := h.store.Get(ctx, executionID); err != nil {
		h.logger.Warn("snapshot replay failed",
			zap.String("execution_id", executionID),
			zap.Error(err))
	} else if ok {
		if err := sess.writeJSON(ctx, snap); err != nil {
			return
		}
		if h.metrics != nil {
			h.metrics.RecordChannelMessage("snapshot", "out")
		}
	}

	h.readLoop(ctx, sess, executionID)
	h.logger.Info("channel session closed", zap.String("execution_id", executionID))
}

func (h *Hub) readLoop(ctx context.Context, sess *session, executionID string) {
	for {
		_, data, err := sess.conn.Read(ctx)
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.replyError(ctx, sess, "invalid message format")
			continue
		}

		if h.metrics != nil {
			h.metrics.RecordChannelMessage(env.Type, "in")
		}

		switch env.Type {
		case TypeStartExecution:
			var payload StartPayload
			if err := json.Unmarshal(env.Data, &payload); err != nil {
				h.replyError(ctx, sess, "invalid START_EXECUTION payload")
				continue
			}
			if payload.Instruction == "" {
				h.replyError(ctx, sess, "instruction is required")
				continue
			}
			h.startExecution(sess, executionID, payload)
		case TypeCancelExecution:
			h.cancelExecution(ctx, sess, executionID)
		default:
			h.replyError(ctx, sess, fmt.Sprintf("unknown message type: %s", env.Type))
		}
	}
}

func (h *Hub) replyError(ctx context.Context, sess *session, msg string) {
	if h.metrics != nil {
		h.metrics.RecordChannelMessage(TypeError, "out")
	}
	_ = sess.writeJSON(ctx, ErrorEnvelope{Type: TypeError, Error: msg})
}

// startExecution launches the plan-execute loop in the background and
// streams phase snapshots back over the session. A second start for the
// same execution id is rejected while the first is in flight.
func (h *Hub) startExecution(sess *session, executionID string, payload StartPayload) {
	execCtx, cancel := context.WithCancel(ctxkeys.WithExecutionID(context.Background(), executionID))

	h.mu.Lock()
	if _, running := h.active[executionID]; running {
		h.mu.Unlock()
		cancel()
		replyCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		h.replyError(replyCtx, sess, "execution is already running")
		return
	}
	h.active[executionID] = cancel
	h.mu.Unlock()

	go h.runExecution(execCtx, sess, executionID, payload)
}

// cancelExecution cancels an in-flight run. A cancel with nothing in
// flight still stamps the stored snapshot, so a reconnecting observer sees
// the execution as cancelled.
func (h *Hub) cancelExecution(ctx context.Context, sess *session, executionID string) {
	h.mu.Lock()
	cancel, running := h.active[executionID]
	h.mu.Unlock()

	if running {
		cancel()
		return
	}

	snap, ok, err := h.store.Get(ctx, executionID)
	if err != nil || !ok {
		snap = &Snapshot{ExecutionID: executionID}
	}
	snap.Status = StatusError
	snap.Error = cancelMessage
	h.push(sess, snap)
}

func (h *Hub) runExecution(ctx context.Context, sess *session, executionID string, payload StartPayload) {
	defer func() {
		h.mu.Lock()
		if cancel, ok := h.active[executionID]; ok {
			cancel()
			delete(h.active, executionID)
		}
		h.mu.Unlock()
	}()

	start := time.Now()
	snap := Snapshot{
		ExecutionID: executionID,
		Status:      StatusInitializing,
		Metrics:     Metrics{StartTime: start},
	}
	h.push(sess, &snap)

	inst, err := h.resolve(ctx, agent.BuildRequest{
		AgentID:      payload.AgentID,
		AgentType:    payload.AgentType,
		ProviderType: payload.ProviderType,
		Config:       payload.Config,
	})
	if err == nil && inst != nil {
		// Fresh context: the session must close even when the execution
		// context was cancelled.
		defer func() {
			cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if cerr := inst.Cleanup(cctx); cerr != nil {
				h.logger.Warn("agent cleanup failed",
					zap.String("execution_id", executionID),
					zap.Error(cerr))
			}
		}()
	}
	if err == nil && inst == nil {
		err = types.NewError(types.ErrInternalError, "agent resolver returned no instance")
	}
	if err == nil {
		err = inst.Initialize(ctx)
	}
	if err != nil {
		h.finish(sess, &snap, "", h.failureMessage(ctx, err), start)
		return
	}

	snap.Status = StatusRunning
	h.push(sess, &snap)

	resp := inst.Execute(ctx, payload.Instruction)

	if resp.Success {
		h.finish(sess, &snap, resp.Result, "", start)
		return
	}
	errMsg := resp.Metrics.Error
	if errMsg == "" {
		errMsg = resp.Result
	}
	if ctx.Err() != nil {
		errMsg = cancelMessage
	}
	h.finish(sess, &snap, "", errMsg, start)
}

// failureMessage maps a setup failure, keeping the cancel message when the
// client cancelled during initialization.
func (h *Hub) failureMessage(ctx context.Context, err error) string {
	if ctx.Err() != nil {
		return cancelMessage
	}
	return err.Error()
}

// finish records and pushes the terminal snapshot.
func (h *Hub) finish(sess *session, snap *Snapshot, result, errMsg string, start time.Time) {
	end := time.Now()
	snap.Result = result
	snap.Error = errMsg
	snap.Metrics.EndTime = end
	snap.Metrics.ElapsedMS = end.Sub(start).Milliseconds()
	if errMsg != "" {
		snap.Status = StatusError
	} else {
		snap.Status = StatusCompleted
	}
	h.push(sess, snap)
}

// push stores the snapshot and streams it to the session. Both use fresh
// contexts so a cancelled execution still persists and reports its final
// state.
func (h *Hub) push(sess *session, snap *Snapshot) {
	storeCtx, cancelStore := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelStore()
	if err := h.store.Put(storeCtx, snap.ExecutionID, snap); err != nil {
		h.logger.Warn("snapshot store failed",
			zap.String("execution_id", snap.ExecutionID),
			zap.Error(err))
	}

	writeCtx, cancelWrite := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelWrite()
	if err := sess.writeJSON(writeCtx, snap); err != nil {
		h.logger.Debug("snapshot write failed",
			zap.String("execution_id", snap.ExecutionID),
			zap.Error(err))
		return
	}
	if h.metrics != nil {
		h.metrics.RecordChannelMessage("snapshot", "out")
	}
}
