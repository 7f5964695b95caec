package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"ledgerguard/config"
	"ledgerguard/contracts/guarded"
	"ledgerguard/core/events"
	"ledgerguard/core/host"
	"ledgerguard/core/types"
	"ledgerguard/crypto"
	"ledgerguard/native/access"
	"ledgerguard/native/common"
	"ledgerguard/observability/logging"
	"ledgerguard/storage"
)

// env is an opened data directory with the contract wired to the runtime.
type env struct {
	cfg      *config.Config
	rt       *host.Runtime
	contract *guarded.Contract
	sender   types.Account
	out      io.Writer
}

type commonFlags struct {
	configPath *string
	sender     *string
	now        *uint64
}

func registerCommon(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		configPath: fs.String("config", defaultConfig, "Path to the guardctl config file (.toml or .yaml)"),
		sender:     fs.String("sender", "", "Bech32 account submitting the call (defaults to the configured creator)"),
		now:        fs.Uint64("now", 0, "Ledger timestamp override in unix seconds (0 uses the wall clock)"),
	}
}

func openEnv(flags commonFlags, out io.Writer) (*env, error) {
	cfg, err := config.Load(*flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.SetupWithOptions(logging.Options{
		Service:    "guardctl",
		Env:        cfg.Logging.Env,
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	sender, err := resolveSender(cfg, *flags.sender)
	if err != nil {
		return nil, err
	}
	hasher, err := cfg.Hasher()
	if err != nil {
		return nil, err
	}
	creator, err := cfg.CreatorAccount()
	if err != nil {
		return nil, err
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open data dir: %w", err)
	}
	opts := []host.Option{
		host.WithLogger(logger),
		host.WithPauses(common.NewPauseSet(cfg.Pauses...)),
		host.WithAllowMigrate(cfg.AllowMigrate),
	}
	if *flags.now != 0 {
		fixed := *flags.now
		opts = append(opts, host.WithClock(func() uint64 { return fixed }))
	}
	rt, err := host.New(db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}

	contract := guarded.New(rt.State(), creator)
	contract.SetEmitter(rt.Emitter())
	contract.SetNowFunc(rt.Now)
	contract.SetHasher(hasher)
	contract.SetPolicy(cfg.AccessPolicy())
	slog.Debug("data dir opened", "dataDir", cfg.DataDir, "hash", hasher.Name())

	return &env{cfg: cfg, rt: rt, contract: contract, sender: sender, out: out}, nil
}

func resolveSender(cfg *config.Config, value string) (types.Account, error) {
	if strings.TrimSpace(value) == "" {
		return cfg.CreatorAccount()
	}
	return crypto.DecodeAccount(strings.TrimSpace(value))
}

func (e *env) Close() { e.rt.Close() }

// call runs fn as one host call and prints the committed events.
func (e *env) call(module, method string, fn func(sender types.Account) error) error {
	receipt, err := e.rt.Call(module, method, e.sender, func(call *host.Call) error {
		return fn(call.Sender)
	})
	if err != nil {
		return err
	}
	return e.printEvents(receipt.Events)
}

func (e *env) printEvents(evts []events.Event) error {
	enc := json.NewEncoder(e.out)
	for _, rendered := range events.Render(evts) {
		if err := enc.Encode(rendered); err != nil {
			return err
		}
	}
	return nil
}

func (e *env) printValue(key string, value any) error {
	return json.NewEncoder(e.out).Encode(map[string]any{key: value})
}

func parseRole(value string) (types.Role, error) {
	value = strings.TrimSpace(value)
	switch {
	case value == "" || strings.EqualFold(value, "DEFAULT_ADMIN"):
		return access.DefaultAdminRole, nil
	case strings.HasPrefix(value, "0x"):
		return types.ParseRole(value)
	default:
		return crypto.RoleFromName(value), nil
	}
}

func parseBucket(value string) (types.BucketID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return types.BucketID{}, fmt.Errorf("bucket name required")
	}
	if strings.HasPrefix(value, "0x") {
		return types.ParseBucketID(value)
	}
	return crypto.BucketFromName(value), nil
}

func readPages(list string) ([][]byte, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}
	var pages [][]byte
	for _, path := range strings.Split(list, ",") {
		data, err := os.ReadFile(strings.TrimSpace(path))
		if err != nil {
			return nil, fmt.Errorf("read program page: %w", err)
		}
		pages = append(pages, data)
	}
	return pages, nil
}

func readProgram(approval, clearList string) (crypto.Program, error) {
	approvalPages, err := readPages(approval)
	if err != nil {
		return crypto.Program{}, err
	}
	clearPages, err := readPages(clearList)
	if err != nil {
		return crypto.Program{}, err
	}
	return crypto.Program{ApprovalPages: approvalPages, ClearPages: clearPages}, nil
}
