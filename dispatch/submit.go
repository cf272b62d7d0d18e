package dispatch

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/subscript/codec"
	"github.com/wippyai/subscript/errors"
	"github.com/wippyai/subscript/hashing"
	"github.com/wippyai/subscript/metadata"
	"github.com/wippyai/subscript/transport"
)

// WaitMode selects when Submit returns.
type WaitMode uint8

const (
	// WaitInBlock returns once the extrinsic is in a block. Inclusion does
	// not mean the call succeeded.
	WaitInBlock WaitMode = iota
	// WaitOutcome also requires the ExtrinsicSuccess or ExtrinsicFailed
	// event of the extrinsic in the including block.
	WaitOutcome
	// WaitFinalized returns once the including block is finalized.
	WaitFinalized
)

func (m WaitMode) String() string {
	switch m {
	case WaitInBlock:
		return "in-block"
	case WaitOutcome:
		return "outcome"
	case WaitFinalized:
		return "finalized"
	}
	return "unknown"
}

// Lifecycle is the state of a submission.
type Lifecycle uint8

const (
	Pending Lifecycle = iota
	InBlock
	Finalized
	Dropped
)

func (l Lifecycle) String() string {
	switch l {
	case Pending:
		return "pending"
	case InBlock:
		return "in-block"
	case Finalized:
		return "finalized"
	case Dropped:
		return "dropped"
	}
	return "unknown"
}

// Outcome is the terminal result of a submission. Only Included carries
// events; the others are expected results rather than errors.
type Outcome uint8

const (
	OutcomeIncluded Outcome = iota
	// OutcomeRejected means the node refused the extrinsic (invalid or
	// usurped).
	OutcomeRejected
	// OutcomeDropped means the pool discarded the extrinsic.
	OutcomeDropped
	// OutcomeTimeout means the caller's deadline passed before inclusion.
	OutcomeTimeout
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIncluded:
		return "included"
	case OutcomeRejected:
		return "rejected"
	case OutcomeDropped:
		return "dropped"
	case OutcomeTimeout:
		return "timeout"
	}
	return "unknown"
}

// SubmissionResult describes how a submission ended.
type SubmissionResult struct {
	Outcome Outcome
	State   Lifecycle
	// Hash is the extrinsic hash.
	Hash []byte
	// BlockHash is the including block for Included results.
	BlockHash []byte
	// ExtrinsicIndex is the position in the block, or -1 when the
	// transport cannot read block bodies.
	ExtrinsicIndex int
	Finalized      bool
	// Reason explains a rejection.
	Reason string
	// Events are the events of this extrinsic, or of the whole block when
	// ExtrinsicIndex is unknown.
	Events []EventRecord
	// History lists every status the node reported.
	History []transport.Status

	md *metadata.Metadata
}

func (r *SubmissionResult) String() string {
	switch r.Outcome {
	case OutcomeIncluded:
		return fmt.Sprintf("included in 0x%s at %d", hex.EncodeToString(r.BlockHash), r.ExtrinsicIndex)
	case OutcomeRejected:
		return "rejected: " + r.Reason
	}
	return r.Outcome.String()
}

type submitConfig struct {
	wait WaitMode
}

// SubmitOption configures Submit.
type SubmitOption func(*submitConfig)

// WithWait selects the wait mode. The default is WaitInBlock.
func WithWait(m WaitMode) SubmitOption {
	return func(c *submitConfig) { c.wait = m }
}

// Submit sends xt and follows its lifecycle until the wait mode is
// satisfied or a terminal status arrives. Cancelling ctx abandons the
// watch without affecting the node; before inclusion it yields
// OutcomeTimeout. An error is returned only for transport failures and
// for events that cannot be read or decoded.
func (s *Session) Submit(ctx context.Context, xt *Extrinsic, opts ...SubmitOption) (*SubmissionResult, error) {
	var cfg submitConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	res := &SubmissionResult{
		Hash:           xt.Hash,
		ExtrinsicIndex: -1,
		md:             s.current().md,
	}
	log := s.logger.With(zap.String("extrinsic", hex.EncodeToString(xt.Hash)), zap.Stringer("wait", cfg.wait))

	sub, err := s.t.SubmitExtrinsic(ctx, xt.Bytes)
	if err != nil {
		s.releaseNonce(xt, false)
		return nil, transportErr("submit extrinsic", err)
	}
	defer sub.Close()
	log.Debug("submitted")

	for {
		select {
		case <-ctx.Done():
			if res.State == InBlock && res.Events != nil {
				res.Outcome = OutcomeIncluded
				log.Debug("abandoned before finality")
				return res, nil
			}
			res.Outcome = OutcomeTimeout
			log.Debug("timed out", zap.Error(ctx.Err()))
			return res, nil

		case st, ok := <-sub.Updates():
			if !ok {
				if res.State == InBlock {
					return s.included(ctx, res, xt, cfg.wait, log)
				}
				res.State, res.Outcome = Dropped, OutcomeDropped
				log.Debug("watch ended before inclusion")
				return res, nil
			}
			res.History = append(res.History, st)

			switch st.State {
			case transport.StateFuture, transport.StateReady, transport.StateBroadcast:
				continue

			case transport.StateInBlock:
				s.transition(log, res, InBlock)
				res.BlockHash = st.BlockHash
				if cfg.wait != WaitFinalized {
					return s.included(ctx, res, xt, cfg.wait, log)
				}
				// Read events now so an abandoned wait for finality still
				// reports them.
				if err := s.locate(ctx, res, xt); err != nil {
					return res, err
				}

			case transport.StateRetracted:
				s.transition(log, res, Pending)
				res.BlockHash, res.Events, res.ExtrinsicIndex = nil, nil, -1

			case transport.StateFinalized:
				s.transition(log, res, Finalized)
				res.Finalized = true
				if !bytes.Equal(res.BlockHash, st.BlockHash) {
					res.BlockHash, res.Events = st.BlockHash, nil
				}
				return s.included(ctx, res, xt, cfg.wait, log)

			case transport.StateFinalityTimeout:
				if res.State == InBlock {
					return s.included(ctx, res, xt, cfg.wait, log)
				}
				s.transition(log, res, Dropped)
				res.Outcome = OutcomeDropped
				return res, nil

			case transport.StateUsurped, transport.StateInvalid:
				s.transition(log, res, Dropped)
				res.Outcome, res.Reason = OutcomeRejected, st.State.String()
				if st.Detail != "" {
					res.Reason += " " + st.Detail
				}
				s.releaseNonce(xt, false)
				return res, nil

			case transport.StateDropped:
				s.transition(log, res, Dropped)
				res.Outcome = OutcomeDropped
				s.releaseNonce(xt, false)
				return res, nil
			}
		}
	}
}

func (s *Session) transition(log *zap.Logger, res *SubmissionResult, to Lifecycle) {
	if res.State != to {
		log.Debug("lifecycle", zap.Stringer("from", res.State), zap.Stringer("to", to))
	}
	res.State = to
}

func (s *Session) releaseNonce(xt *Extrinsic, used bool) {
	if xt.reserved {
		s.nonces.Release(xt.Account, xt.Nonce, used)
	}
}

// included completes an Included result.
func (s *Session) included(ctx context.Context, res *SubmissionResult, xt *Extrinsic, wait WaitMode, log *zap.Logger) (*SubmissionResult, error) {
	res.Outcome = OutcomeIncluded
	log.Debug("included",
		zap.String("block", hex.EncodeToString(res.BlockHash)),
		zap.Bool("finalized", res.Finalized))

	if res.Events == nil {
		if err := s.locate(ctx, res, xt); err != nil {
			return res, err
		}
	}

	if wait == WaitOutcome {
		if res.ExtrinsicIndex < 0 {
			return res, errors.Unsupported(errors.PhaseDispatch, "extrinsic outcome without a chain reader")
		}
		if _, ok := res.ExtrinsicResult(); !ok {
			return res, errors.NotFound(errors.PhaseDispatch, "outcome event of extrinsic", hex.EncodeToString(xt.Hash))
		}
	}
	return res, nil
}

// locate finds the extrinsic in its block and attaches its events. Events
// is non-nil afterwards.
func (s *Session) locate(ctx context.Context, res *SubmissionResult, xt *Extrinsic) error {
	res.ExtrinsicIndex = -1
	if cr, ok := s.t.(transport.ChainReader); ok {
		xts, err := cr.BlockExtrinsics(ctx, res.BlockHash)
		if err != nil {
			return transportErr("block extrinsics", err)
		}
		for i, b := range xts {
			if bytes.Equal(hashing.Blake2b256(b), xt.Hash) {
				res.ExtrinsicIndex = i
				break
			}
		}
	}

	events, err := s.BlockEvents(ctx, res.BlockHash)
	if err != nil {
		return err
	}
	res.Events = []EventRecord{}
	if res.ExtrinsicIndex < 0 {
		res.Events = append(res.Events, events...)
		return nil
	}
	for _, e := range events {
		if e.ExtrinsicIndex != nil && int(*e.ExtrinsicIndex) == res.ExtrinsicIndex {
			res.Events = append(res.Events, e)
		}
	}
	return nil
}

// ExtrinsicResult returns the System.ExtrinsicSuccess or
// System.ExtrinsicFailed event among the result's events.
func (r *SubmissionResult) ExtrinsicResult() (EventRecord, bool) {
	for _, e := range r.Events {
		if e.Module == "System" && (e.Name == "ExtrinsicSuccess" || e.Name == "ExtrinsicFailed") {
			return e, true
		}
	}
	return EventRecord{}, false
}

// IsSuccess reports whether the extrinsic was included and dispatched
// without error.
func (r *SubmissionResult) IsSuccess() bool {
	if r.Outcome != OutcomeIncluded {
		return false
	}
	e, ok := r.ExtrinsicResult()
	return ok && e.Name == "ExtrinsicSuccess"
}

// DispatchError is a decoded System.ExtrinsicFailed error.
type DispatchError struct {
	// Kind is the DispatchError variant, e.g. Module or BadOrigin.
	Kind string
	// Module is set for module errors found in metadata.
	Module *metadata.ModuleError
	Value  codec.Value
}

func (e *DispatchError) Error() string {
	if e.Module != nil {
		if t := e.Module.Title(); t != "" {
			return e.Module.String() + ": " + t
		}
		return e.Module.String()
	}
	if e.Value.Payload != nil && !e.Value.Payload.IsUnit() {
		return e.Kind + ": " + e.Value.Payload.String()
	}
	return e.Kind
}

// DispatchError returns the decoded failure of an included extrinsic, or
// nil if it succeeded or was not included.
func (r *SubmissionResult) DispatchError() *DispatchError {
	e, ok := r.ExtrinsicResult()
	if !ok || e.Name != "ExtrinsicFailed" || len(e.Args) == 0 {
		return nil
	}
	return decodeDispatchError(r.md, e.Args[0])
}

func decodeDispatchError(md *metadata.Metadata, v codec.Value) *DispatchError {
	de := &DispatchError{Kind: v.Name, Value: v}
	if v.Name != "Module" || v.Payload == nil || md == nil {
		return de
	}
	p := *v.Payload
	modIdx, ok := p.Get("index").Uint64()
	if !ok {
		return de
	}
	errIdx, ok := moduleErrorIndex(p.Get("error"))
	if !ok {
		return de
	}
	if me, found := md.FindError(uint8(modIdx), errIdx); found {
		de.Module = me
	}
	return de
}

// moduleErrorIndex reads the error index, a u8 in older runtimes and a
// four-byte array whose first byte is the index in newer ones.
func moduleErrorIndex(v codec.Value) (uint8, bool) {
	switch v.Kind {
	case codec.KindInt:
		n, ok := v.Uint64()
		return uint8(n), ok && n < 256
	case codec.KindBytes:
		if len(v.Bytes) > 0 {
			return v.Bytes[0], true
		}
	case codec.KindSequence:
		if len(v.Items) > 0 {
			n, ok := v.Items[0].Uint64()
			return uint8(n), ok && n < 256
		}
	}
	return 0, false
}

// SignAndSubmit builds, signs and submits a call in one step. A reserved
// nonce is returned to the registry when the extrinsic never reaches a
// block.
func (s *Session) SignAndSubmit(ctx context.Context, signer Signer, module, function string, args []codec.Value, sign SignOptions, opts ...SubmitOption) (*SubmissionResult, error) {
	call, err := s.BuildCall(module, function, args...)
	if err != nil {
		return nil, err
	}
	xt, err := s.SignedExtrinsic(ctx, signer, call, sign)
	if err != nil {
		return nil, err
	}
	return s.Submit(ctx, xt, opts...)
}
