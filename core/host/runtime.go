// Package host runs native module operations the way the ledger does: one
// call at a time, in a total order, with every call either committed whole or
// discarded whole.
//
// Modules are constructed over Runtime.State and emit into Runtime.Emitter.
// Inside Call both are bound to a fresh storage journal and event recorder.
// When the call function returns nil the journal is committed and the
// recorded events are flushed to the sink; otherwise both are dropped.
package host

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	coreerrors "ledgerguard/core/errors"
	"ledgerguard/core/events"
	"ledgerguard/core/state"
	"ledgerguard/core/types"
	"ledgerguard/native/common"
	"ledgerguard/observability"
	"ledgerguard/storage"
)

var errNoActiveCall = errors.New("host: state accessed outside a call")

// Call carries the per-call context handed to the call function.
type Call struct {
	ID     uuid.UUID
	Module string
	Method string
	Sender types.Account
	Now    uint64
}

// Receipt describes a committed call.
type Receipt struct {
	ID     uuid.UUID
	Events []events.Event
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithClock sets the ledger clock. It is sampled once at the start of every
// call.
func WithClock(now func() uint64) Option {
	return func(rt *Runtime) {
		if now != nil {
			rt.clock = now
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(rt *Runtime) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

// WithSink receives committed events in emission order.
func WithSink(sink events.Emitter) Option {
	return func(rt *Runtime) {
		if sink != nil {
			rt.sink = sink
		}
	}
}

// WithPauses rejects calls into paused modules.
func WithPauses(p common.PauseView) Option {
	return func(rt *Runtime) { rt.pauses = p }
}

// WithAllowMigrate tolerates a stored schema version other than the current
// one.
func WithAllowMigrate(allow bool) Option {
	return func(rt *Runtime) { rt.allowMigrate = allow }
}

// Runtime serialises calls over a database.
type Runtime struct {
	mu sync.Mutex

	db       storage.Database
	journal  *storage.Journal
	state    *state.Manager
	recorder *events.Recorder
	now      uint64
	inCall   bool

	clock        func() uint64
	logger       *slog.Logger
	sink         events.Emitter
	pauses       common.PauseView
	allowMigrate bool
}

// New opens a runtime over db and checks the stored schema version, stamping
// a fresh database.
func New(db storage.Database, opts ...Option) (*Runtime, error) {
	if db == nil {
		return nil, fmt.Errorf("host: database must not be nil")
	}
	rt := &Runtime{
		db:       db,
		recorder: &events.Recorder{},
		clock:    func() uint64 { return uint64(time.Now().Unix()) },
		logger:   slog.Default(),
		sink:     events.NoopEmitter{},
	}
	for _, opt := range opts {
		opt(rt)
	}
	rt.state = state.NewManager(callKV{rt: rt})

	_, err := rt.Call("host", "EnsureStateVersion", types.Account{}, func(*Call) error {
		return state.EnsureStateVersion(rt.state, rt.allowMigrate)
	})
	if err != nil {
		return nil, err
	}
	return rt, nil
}

// State returns the state manager modules should be built over. It is only
// usable from inside Call.
func (rt *Runtime) State() *state.Manager { return rt.state }

// Emitter returns the per-call event recorder modules should emit into.
func (rt *Runtime) Emitter() events.Emitter { return rt.recorder }

// Now returns the timestamp of the running call, or the clock outside a call.
// Modules take it as their SetNowFunc so every read within a call observes
// the same time.
func (rt *Runtime) Now() uint64 {
	if rt.inCall {
		return rt.now
	}
	return rt.clock()
}

// Call runs fn as one atomic call on behalf of sender. The returned receipt
// lists the committed events.
func (rt *Runtime) Call(module, method string, sender types.Account, fn func(*Call) error) (receipt *Receipt, err error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if err := common.Guard(rt.pauses, module); err != nil {
		rt.finish(module, method, nil, nil, err)
		return nil, err
	}

	call := &Call{
		ID:     uuid.New(),
		Module: module,
		Method: method,
		Sender: sender,
		Now:    rt.clock(),
	}
	rt.journal = storage.NewJournal(rt.db)
	rt.recorder.Reset()
	rt.now = call.Now
	rt.inCall = true

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("host: call panicked: %v", r)
		}
		if err != nil {
			rt.journal.Discard()
			rt.recorder.Reset()
			receipt = nil
		}
		rt.journal = nil
		rt.inCall = false
		var emitted []events.Event
		if receipt != nil {
			emitted = receipt.Events
		}
		rt.finish(module, method, call, emitted, err)
		for _, e := range emitted {
			rt.sink.Emit(e)
		}
	}()

	if err = fn(call); err != nil {
		return nil, err
	}
	if err = rt.journal.Commit(); err != nil {
		return nil, fmt.Errorf("host: commit: %w", err)
	}
	return &Receipt{ID: call.ID, Events: rt.recorder.Drain()}, nil
}

func (rt *Runtime) finish(module, method string, call *Call, emitted []events.Event, err error) {
	attrs := []any{
		slog.String("module", module),
		slog.String("method", method),
	}
	if call != nil {
		attrs = append(attrs, slog.String("callId", call.ID.String()), slog.Uint64("now", call.Now))
	}
	if err != nil {
		category := coreerrors.Category(err)
		observability.CallMetrics().Observe(module, method, category, 0)
		rt.logger.Warn("call failed", append(attrs, slog.String("category", category), slog.Any("error", err))...)
		return
	}
	for _, e := range emitted {
		observability.Events().RecordEvent(e.EventType())
	}
	observability.CallMetrics().Observe(module, method, "", len(emitted))
	rt.logger.Debug("call committed", append(attrs, slog.Int("events", len(emitted)))...)
}

// Close releases the database.
func (rt *Runtime) Close() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.db.Close()
}

// callKV forwards to the journal of the running call.
type callKV struct {
	rt *Runtime
}

func (kv callKV) active() (*storage.Journal, error) {
	if kv.rt.journal == nil {
		return nil, errNoActiveCall
	}
	return kv.rt.journal, nil
}

func (kv callKV) Get(key []byte) ([]byte, error) {
	j, err := kv.active()
	if err != nil {
		return nil, err
	}
	return j.Get(key)
}

func (kv callKV) Put(key, value []byte) error {
	j, err := kv.active()
	if err != nil {
		return err
	}
	return j.Put(key, value)
}

func (kv callKV) Delete(key []byte) error {
	j, err := kv.active()
	if err != nil {
		return err
	}
	return j.Delete(key)
}

func (kv callKV) Has(key []byte) (bool, error) {
	j, err := kv.active()
	if err != nil {
		return false, err
	}
	return j.Has(key)
}
