package dispatch

import (
	"context"
	"encoding/hex"
	"fmt"
	"iter"
	"strings"

	"github.com/wippyai/subscript/codec"
	"github.com/wippyai/subscript/errors"
	"github.com/wippyai/subscript/metadata"
)

// Phases of block execution an event can be emitted in.
const (
	PhaseApplyExtrinsic = "ApplyExtrinsic"
	PhaseFinalization   = "Finalization"
	PhaseInitialization = "Initialization"
)

// EventRecord is one decoded event from System.Events.
type EventRecord struct {
	Phase string
	// ExtrinsicIndex is set for events emitted while applying an
	// extrinsic.
	ExtrinsicIndex *uint32

	Module      string
	Name        string
	ModuleIndex uint8
	Index       uint8
	// Args holds the event arguments in declared order.
	Args   []codec.Value
	Topics [][]byte

	Meta *metadata.Event
}

// FullName returns Module.Name.
func (e EventRecord) FullName() string { return e.Module + "." + e.Name }

// Arg returns the named argument, or the zero Value when absent or
// unnamed.
func (e EventRecord) Arg(name string) codec.Value {
	if e.Meta == nil {
		return codec.Value{}
	}
	for i, a := range e.Meta.Args {
		if a.Name == name && i < len(e.Args) {
			return e.Args[i]
		}
	}
	return codec.Value{}
}

func (e EventRecord) String() string {
	var b strings.Builder
	b.WriteString(e.FullName())
	b.WriteByte('(')
	for i, a := range e.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(a.String())
	}
	b.WriteByte(')')
	return b.String()
}

// Matches reports whether the record matches a filter of the form
// "Module" or "Module.Event". An empty filter matches everything.
func (e EventRecord) Matches(filter string) bool {
	if filter == "" {
		return true
	}
	mod, name, ok := strings.Cut(filter, ".")
	if !ok {
		return e.Module == filter
	}
	return e.Module == mod && e.Name == name
}

// DecodeEvents decodes a raw System.Events value with the current
// metadata.
func (s *Session) DecodeEvents(raw []byte) ([]EventRecord, error) {
	snap := s.current()
	v, err := snap.res.DecodeStorage("System", "Events", raw)
	if err != nil {
		return nil, err
	}
	return eventRecords(snap.md, v)
}

// BlockEvents returns the decoded events of a block, from the cache when
// possible.
func (s *Session) BlockEvents(ctx context.Context, blockHash []byte) ([]EventRecord, error) {
	key := hex.EncodeToString(blockHash)
	if recs, ok := s.events.Get(key); ok {
		return recs, nil
	}

	snap := s.current()
	entry, err := snap.res.FetchAt(ctx, s.t, blockHash, "System", "Events")
	if err != nil {
		return nil, err
	}
	recs, err := eventRecords(snap.md, entry.Value)
	if err != nil {
		return nil, err
	}
	s.events.Add(key, recs)
	return recs, nil
}

func eventRecords(md *metadata.Metadata, v codec.Value) ([]EventRecord, error) {
	if v.Kind != codec.KindSequence {
		return nil, errors.TypeMismatch(errors.PhaseDispatch, nil, "EventRecords", v.Kind.String())
	}
	out := make([]EventRecord, len(v.Items))
	for i, item := range v.Items {
		rec, err := eventRecord(md, item)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseDispatch, errors.KindInvalidData, err, fmt.Sprintf("event record %d", i))
		}
		out[i] = rec
	}
	return out, nil
}

func eventRecord(md *metadata.Metadata, v codec.Value) (EventRecord, error) {
	var rec EventRecord

	phase := v.Get("phase")
	rec.Phase = phase.Name
	if phase.Name == PhaseApplyExtrinsic && phase.Payload != nil {
		if idx, ok := phase.Payload.Uint64(); ok {
			i := uint32(idx)
			rec.ExtrinsicIndex = &i
		}
	}

	outer := v.Get("event")
	if outer.Kind != codec.KindEnum || outer.Payload == nil || outer.Payload.Kind != codec.KindEnum {
		return rec, errors.TypeMismatch(errors.PhaseDispatch, []string{"event"}, "Event", outer.Kind.String())
	}
	inner := *outer.Payload
	ev, ok := md.EventByIndex(uint8(outer.Index), uint8(inner.Index))
	if !ok {
		return rec, errors.NotFound(errors.PhaseDispatch, "event", fmt.Sprintf("%d.%d", outer.Index, inner.Index))
	}
	rec.Module, rec.Name = ev.Module, ev.Name
	rec.ModuleIndex, rec.Index = ev.ModuleIndex, ev.Index
	rec.Meta = ev
	rec.Args = eventArgs(ev, inner.Payload)

	for _, t := range v.Get("topics").Items {
		rec.Topics = append(rec.Topics, t.Bytes)
	}
	return rec, nil
}

// eventArgs flattens an event payload to its declared arguments: a single
// argument is the payload itself, several are a tuple or a struct.
func eventArgs(ev *metadata.Event, payload *codec.Value) []codec.Value {
	if payload == nil || len(ev.Args) == 0 {
		return nil
	}
	p := *payload
	if len(ev.Args) == 1 {
		if p.Kind == codec.KindStruct && len(p.Fields) == 1 && p.Fields[0].Name == ev.Args[0].Name {
			return []codec.Value{p.Fields[0].Value}
		}
		return []codec.Value{p}
	}
	switch p.Kind {
	case codec.KindSequence:
		return p.Items
	case codec.KindStruct:
		args := make([]codec.Value, len(p.Fields))
		for i, f := range p.Fields {
			args[i] = f.Value
		}
		return args
	}
	return []codec.Value{p}
}

// FilterRecords yields the records matching filter ("Module" or
// "Module.Event") in order. The sequence may be ranged over repeatedly.
func FilterRecords(records []EventRecord, filter string) iter.Seq[EventRecord] {
	return func(yield func(EventRecord) bool) {
		for _, r := range records {
			if r.Matches(filter) && !yield(r) {
				return
			}
		}
	}
}

// FilterEvents yields the events of an included submission matching
// filter. It never performs I/O.
func FilterEvents(res *SubmissionResult, filter string) iter.Seq[EventRecord] {
	if res == nil {
		return FilterRecords(nil, filter)
	}
	return FilterRecords(res.Events, filter)
}
