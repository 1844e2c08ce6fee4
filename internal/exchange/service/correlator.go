package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	apperrors "github.com/allisson/credx/internal/errors"
	exchangeDomain "github.com/allisson/credx/internal/exchange/domain"
)

// StepFunc produces the wire message for one step. It receives a copy of the
// flow with the step's message id recorded and the state not yet advanced.
type StepFunc func(ctx context.Context, flow *exchangeDomain.ExchangeFlow) (*exchangeDomain.Response, error)

type flowEntry struct {
	// lock serializes transitions of this flow. It is ctx aware so a caller
	// waiting behind a slow step can give up at its deadline.
	lock *semaphore.Weighted

	// flow and results are replaced, never mutated, and only under Correlator.mu.
	flow    *exchangeDomain.ExchangeFlow
	results map[string]*exchangeDomain.Result
}

// Correlator is the per-flow state machine linking offers, requests and
// issuances (and proof requests and presentations) by correlation id.
//
// The flow table is guarded by one RWMutex; transitions of a single flow are
// serialized by that flow's own lock so independent flows never contend.
// Replaying a step with an already applied message id returns the recorded
// result without running the step again.
type Correlator struct {
	mu        sync.RWMutex
	flows     map[string]*flowEntry
	byMessage map[string]string
	byThread  map[string][]string
	byParent  map[string][]string
	flowLog   FlowLog
	logger    *slog.Logger
	now       func() time.Time
}

// NewCorrelator creates an empty Correlator. flowLog and logger may be nil.
func NewCorrelator(flowLog FlowLog, logger *slog.Logger) *Correlator {
	return &Correlator{
		flows:     make(map[string]*flowEntry),
		byMessage: make(map[string]string),
		byThread:  make(map[string][]string),
		byParent:  make(map[string][]string),
		flowLog:   flowLog,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Begin opens a flow with an offer or a proof request identified by messageID.
func (c *Correlator) Begin(
	ctx context.Context,
	op exchangeDomain.Operation,
	seed *exchangeDomain.ExchangeFlow,
	messageID string,
	step StepFunc,
) (*exchangeDomain.Result, error) {
	if !op.Starts() {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "%s does not start a flow", op)
	}
	if result, err := c.replay(op, messageID); result != nil || err != nil {
		return result, err
	}

	now := c.now()
	flow := seed.Clone()
	flow.FlowID = uuid.Must(uuid.NewV7()).String()
	flow.Kind = op.Kind()
	flow.State = ""
	flow.Record(op, messageID)
	flow.CreatedAt = now
	flow.LastTransitionAt = now
	if flow.ThreadID == "" {
		flow.ThreadID = messageID
	}

	resp, err := step(ctx, flow.Clone())
	if err != nil {
		return nil, err
	}
	flow.State = op.Kind().InitialState()

	c.mu.Lock()
	if _, ok := c.byMessage[messageID]; ok {
		c.mu.Unlock()
		return c.replay(op, messageID)
	}
	entry := &flowEntry{lock: semaphore.NewWeighted(1), flow: flow, results: make(map[string]*exchangeDomain.Result)}
	result := resultFor(op, flow, messageID, resp)
	entry.results[messageID] = result
	c.flows[flow.FlowID] = entry
	c.byMessage[messageID] = flow.FlowID
	c.byThread[flow.ThreadID] = append(c.byThread[flow.ThreadID], flow.FlowID)
	if flow.ParentThreadID != "" {
		c.byParent[flow.ParentThreadID] = append(c.byParent[flow.ParentThreadID], flow.FlowID)
	}
	c.mu.Unlock()

	c.recordTransition(ctx, op, flow, "", messageID)
	return result.Clone(), nil
}

// Advance applies a request, issuance or presentation to the flow whose
// correlation id matches referenceID.
func (c *Correlator) Advance(
	ctx context.Context,
	op exchangeDomain.Operation,
	referenceID, messageID string,
	step StepFunc,
) (*exchangeDomain.Result, error) {
	if op.Starts() {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "%s starts a flow", op)
	}

	entry, err := c.lookup(op, referenceID)
	if err != nil {
		return nil, err
	}

	if err := entry.lock.Acquire(ctx, 1); err != nil {
		return nil, apperrors.FromContext(err, "correlate")
	}
	defer entry.lock.Release(1)

	if result, err := c.replay(op, messageID); result != nil || err != nil {
		return result, err
	}

	c.mu.RLock()
	current := entry.flow
	c.mu.RUnlock()

	if current.Expired(c.now()) {
		c.expire(ctx, entry)
		return nil, &exchangeDomain.FlowTerminalError{FlowID: current.FlowID, State: exchangeDomain.StateExpired}
	}
	target := exchangeDomain.TargetState(op)
	if current.State.Terminal() {
		return nil, &exchangeDomain.FlowTerminalError{FlowID: current.FlowID, State: current.State}
	}
	if !current.State.CanTransitionTo(target) {
		return nil, &exchangeDomain.InvalidFlowTransitionError{FlowID: current.FlowID, From: current.State, To: target}
	}

	next := current.Clone()
	next.Record(op, messageID)

	resp, err := step(ctx, next.Clone())
	if err != nil {
		return nil, err
	}

	next.State = target
	next.LastTransitionAt = c.now()
	result := resultFor(op, next, messageID, resp)

	c.mu.Lock()
	entry.flow = next
	entry.results[messageID] = result
	c.byMessage[messageID] = next.FlowID
	c.mu.Unlock()

	c.recordTransition(ctx, op, next, current.State, messageID)
	return result.Clone(), nil
}

// Flow returns a copy of the flow with flowID.
func (c *Correlator) Flow(flowID string) (*exchangeDomain.ExchangeFlow, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.flows[flowID]
	if !ok {
		return nil, apperrors.Wrapf(exchangeDomain.ErrFlowNotFound, "%s", flowID)
	}
	return entry.flow.Clone(), nil
}

// FlowsByThread returns the flows of a thread ordered by creation.
func (c *Correlator) FlowsByThread(threadID string) []*exchangeDomain.ExchangeFlow {
	return c.collect(func() []string { return c.byThread[threadID] })
}

// ChildFlows returns the flows whose parent thread is parentThreadID.
func (c *Correlator) ChildFlows(parentThreadID string) []*exchangeDomain.ExchangeFlow {
	return c.collect(func() []string { return c.byParent[parentThreadID] })
}

// Len returns the number of tracked flows.
func (c *Correlator) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.flows)
}

// ExpireStale moves every live flow past its expiry to EXPIRED and returns their ids.
// Flows with a transition in progress are skipped and picked up by the next sweep.
func (c *Correlator) ExpireStale(ctx context.Context, now time.Time) []string {
	c.mu.RLock()
	var due []*flowEntry
	for _, entry := range c.flows {
		if entry.flow.Expired(now) {
			due = append(due, entry)
		}
	}
	c.mu.RUnlock()

	var expired []string
	for _, entry := range due {
		if !entry.lock.TryAcquire(1) {
			continue
		}
		c.mu.RLock()
		stillDue := entry.flow.Expired(now)
		flowID := entry.flow.FlowID
		c.mu.RUnlock()

		if stillDue {
			c.expire(ctx, entry)
			expired = append(expired, flowID)
		}
		entry.lock.Release(1)
	}
	sort.Strings(expired)
	return expired
}

// expire must be called with entry.lock held.
func (c *Correlator) expire(ctx context.Context, entry *flowEntry) {
	c.mu.Lock()
	previous := entry.flow
	next := previous.Clone()
	next.State = exchangeDomain.StateExpired
	next.LastTransitionAt = c.now()
	entry.flow = next
	c.mu.Unlock()

	c.recordTransition(ctx, "", next, previous.State, "")
}

func (c *Correlator) lookup(op exchangeDomain.Operation, referenceID string) (*flowEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	flowID, ok := c.byMessage[referenceID]
	if !ok {
		return nil, exchangeDomain.NotFoundForOperation(op, referenceID)
	}
	entry := c.flows[flowID]
	if entry.flow.Kind != op.Kind() || entry.flow.ReferenceFor(op) != referenceID {
		return nil, exchangeDomain.NotFoundForOperation(op, referenceID)
	}
	return entry, nil
}

// replay returns the recorded result of messageID, if any.
func (c *Correlator) replay(op exchangeDomain.Operation, messageID string) (*exchangeDomain.Result, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	flowID, ok := c.byMessage[messageID]
	if !ok {
		return nil, nil
	}
	result, ok := c.flows[flowID].results[messageID]
	if !ok || result.Operation != op {
		return nil, apperrors.Wrapf(apperrors.ErrConflict, "message id %s already used", messageID)
	}
	if c.logger != nil {
		c.logger.Debug("replayed exchange step",
			slog.String("flow_id", flowID),
			slog.String("message_id", messageID),
		)
	}
	return result.Clone(), nil
}

func (c *Correlator) collect(ids func() []string) []*exchangeDomain.ExchangeFlow {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*exchangeDomain.ExchangeFlow
	for _, id := range ids() {
		out = append(out, c.flows[id].flow.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (c *Correlator) recordTransition(
	ctx context.Context,
	op exchangeDomain.Operation,
	flow *exchangeDomain.ExchangeFlow,
	from exchangeDomain.FlowState,
	messageID string,
) {
	if c.logger != nil {
		c.logger.Info("flow transition",
			slog.String("flow_id", flow.FlowID),
			slog.String("protocol", flow.Protocol),
			slog.String("from", string(from)),
			slog.String("to", string(flow.State)),
		)
	}
	if c.flowLog == nil {
		return
	}

	sender, recipient := flow.IssuerOrVerifier.ID, flow.HolderOrProver.ID
	if op == exchangeDomain.RequestCredential || op == exchangeDomain.PresentProof {
		sender, recipient = recipient, sender
	}
	record := &exchangeDomain.FlowRecord{
		ID:        uuid.Must(uuid.NewV7()),
		FlowID:    flow.FlowID,
		ThreadID:  flow.ThreadID,
		Protocol:  flow.Protocol,
		Operation: op,
		MessageID: messageID,
		State:     flow.State,
		From:      sender,
		To:        recipient,
		CreatedAt: flow.LastTransitionAt,
	}
	if err := c.flowLog.AppendRecord(context.WithoutCancel(ctx), record); err != nil && c.logger != nil {
		c.logger.Warn("failed to append flow record",
			slog.String("flow_id", flow.FlowID),
			slog.Any("error", err),
		)
	}
}

func resultFor(
	op exchangeDomain.Operation,
	flow *exchangeDomain.ExchangeFlow,
	messageID string,
	resp *exchangeDomain.Response,
) *exchangeDomain.Result {
	result := &exchangeDomain.Result{
		Operation: op,
		Protocol:  flow.Protocol,
		FlowID:    flow.FlowID,
		MessageID: messageID,
		ThreadID:  flow.ThreadID,
		State:     flow.State,
	}
	if resp != nil {
		result.Response = *resp
	}
	return result.Clone()
}
