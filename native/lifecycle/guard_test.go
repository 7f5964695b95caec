package lifecycle

import (
	"errors"
	"testing"

	"ledgerguard/core/events"
	"ledgerguard/core/state"
	"ledgerguard/core/types"
	"ledgerguard/storage"
)

func newTestGuard(t *testing.T) (*Guard, *events.Recorder) {
	t.Helper()
	guard := NewGuard(state.NewManager(storage.NewMemDB()))
	rec := &events.Recorder{}
	guard.SetEmitter(rec)
	return guard, rec
}

func TestGuardStartsUninitialised(t *testing.T) {
	guard, _ := newTestGuard(t)
	done, err := guard.IsInitialised()
	if err != nil || done {
		t.Fatalf("expected uninitialised, got %v err=%v", done, err)
	}
	if err := guard.RequireInitialised(); !errors.Is(err, ErrNotInitialised) {
		t.Fatalf("expected ErrNotInitialised, got %v", err)
	}
}

func TestGuardInitialiseOnce(t *testing.T) {
	guard, rec := newTestGuard(t)
	if err := guard.Initialise(); err != nil {
		t.Fatalf("initialise: %v", err)
	}
	if err := guard.RequireInitialised(); err != nil {
		t.Fatalf("require initialised: %v", err)
	}
	if err := guard.Initialise(); !errors.Is(err, ErrAlreadyInitialised) {
		t.Fatalf("expected ErrAlreadyInitialised, got %v", err)
	}
	if rec.Len() != 1 {
		t.Fatalf("expected a single initialised event, got %d", rec.Len())
	}
}

func TestGuardResetAllowsReinitialisation(t *testing.T) {
	guard, _ := newTestGuard(t)
	if err := guard.Initialise(); err != nil {
		t.Fatalf("initialise: %v", err)
	}
	if err := guard.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := guard.RequireInitialised(); !errors.Is(err, ErrNotInitialised) {
		t.Fatalf("expected ErrNotInitialised after reset, got %v", err)
	}
	if err := guard.Initialise(); err != nil {
		t.Fatalf("re-initialise: %v", err)
	}
}

func TestCreatorGuard(t *testing.T) {
	guard, _ := newTestGuard(t)
	creator := types.Account{0x01}
	cg := NewCreatorGuard(guard, creator)

	if err := cg.InitialiseFrom(types.Account{0x02}); !errors.Is(err, ErrNotCreator) {
		t.Fatalf("expected ErrNotCreator, got %v", err)
	}
	if err := cg.InitialiseFrom(creator); err != nil {
		t.Fatalf("creator initialise: %v", err)
	}
	if err := cg.InitialiseFrom(creator); !errors.Is(err, ErrAlreadyInitialised) {
		t.Fatalf("expected ErrAlreadyInitialised, got %v", err)
	}
	var _ Initialiser = guard
}

func TestCreatorGuardCheckCreatorLeavesFlag(t *testing.T) {
	guard, _ := newTestGuard(t)
	creator := types.Account{0xC0}
	cg := NewCreatorGuard(guard, creator)

	if err := cg.CheckCreator(types.Account{0x01}); !errors.Is(err, ErrNotCreator) {
		t.Fatalf("expected ErrNotCreator, got %v", err)
	}
	if err := cg.CheckCreator(creator); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if done, _ := cg.IsInitialised(); done {
		t.Fatalf("CheckCreator must not initialise")
	}
}
