package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/holiman/uint256"

	"ledgerguard/core/types"
	"ledgerguard/crypto"
)

type command struct {
	help string
	run  func(args []string, out io.Writer) error
}

var commandOrder = []string{
	"create", "init",
	"grant", "revoke", "renounce", "has-role",
	"add-bucket", "remove-bucket", "consume", "fill", "capacity", "set-limit", "set-duration",
	"set-min-delay", "schedule", "cancel", "complete", "upgrade-status",
	"program-hash", "address",
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"create":         {"Record the configured minimum upgrade delay", runCreate},
		"init":           {"Initialise the contract and create configured buckets", runInit},
		"grant":          {"Grant a role to an account", roleCommand("grant")},
		"revoke":         {"Revoke a role from an account", roleCommand("revoke")},
		"renounce":       {"Renounce a role held by the sender", roleCommand("renounce")},
		"has-role":       {"Report whether an account holds a role", runHasRole},
		"add-bucket":     {"Create a rate limit bucket", runAddBucket},
		"remove-bucket":  {"Delete a rate limit bucket", bucketCommand("remove")},
		"consume":        {"Consume an amount from a bucket", amountCommand("consume")},
		"fill":           {"Return an amount to a bucket", amountCommand("fill")},
		"capacity":       {"Print a bucket's current capacity", bucketCommand("capacity")},
		"set-limit":      {"Change a bucket's limit", amountCommand("set-limit")},
		"set-duration":   {"Change a bucket's replenish duration", runSetDuration},
		"set-min-delay":  {"Stage a new minimum upgrade delay", runSetMinDelay},
		"schedule":       {"Schedule a contract upgrade", runSchedule},
		"cancel":         {"Cancel the scheduled upgrade", runCancel},
		"complete":       {"Complete the scheduled upgrade", runComplete},
		"upgrade-status": {"Print delay, schedule and version", runUpgradeStatus},
		"program-hash":   {"Hash program pages", runProgramHash},
		"address":        {"Encode a 32-byte hex account as bech32", runAddress},
	}
}

func withEnv(name string, args []string, out io.Writer, define func(fs *flag.FlagSet), fn func(e *env) error) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	flags := registerCommon(fs)
	if define != nil {
		define(fs)
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := openEnv(flags, out)
	if err != nil {
		return err
	}
	defer e.Close()
	return fn(e)
}

func runCreate(args []string, out io.Writer) error {
	return withEnv("create", args, out, nil, func(e *env) error {
		return e.call("upgrade", "Create", func(types.Account) error {
			return e.contract.Create(e.cfg.MinUpgradeDelay)
		})
	})
}

func runInit(args []string, out io.Writer) error {
	var admin *string
	return withEnv("init", args, out, func(fs *flag.FlagSet) {
		admin = fs.String("admin", "", "Bech32 account receiving the admin roles")
	}, func(e *env) error {
		adminAcc, err := crypto.DecodeAccount(*admin)
		if err != nil {
			return fmt.Errorf("admin: %w", err)
		}
		specs, err := e.cfg.BucketSpecs()
		if err != nil {
			return err
		}
		return e.call("guarded", "Initialise", func(sender types.Account) error {
			if err := e.contract.Initialise(sender, adminAcc); err != nil {
				return err
			}
			for _, spec := range specs {
				if err := e.contract.AddBucket(adminAcc, spec.ID, spec.Limit, spec.Duration); err != nil {
					return fmt.Errorf("bucket %s: %w", spec.Name, err)
				}
			}
			return nil
		})
	})
}

func roleCommand(action string) func([]string, io.Writer) error {
	return func(args []string, out io.Writer) error {
		var role, account *string
		return withEnv(action, args, out, func(fs *flag.FlagSet) {
			role = fs.String("role", "", "Role name, 0x-prefixed id or DEFAULT_ADMIN")
			account = fs.String("account", "", "Bech32 account")
		}, func(e *env) error {
			r, err := parseRole(*role)
			if err != nil {
				return err
			}
			if action == "renounce" {
				return e.call("access", "RenounceRole", func(sender types.Account) error {
					_, err := e.contract.Access().RenounceRole(sender, r)
					return err
				})
			}
			acc, err := crypto.DecodeAccount(*account)
			if err != nil {
				return fmt.Errorf("account: %w", err)
			}
			if action == "grant" {
				return e.call("access", "GrantRole", func(sender types.Account) error {
					_, err := e.contract.Access().GrantRole(sender, r, acc)
					return err
				})
			}
			return e.call("access", "RevokeRole", func(sender types.Account) error {
				_, err := e.contract.Access().RevokeRole(sender, r, acc)
				return err
			})
		})
	}
}

func runHasRole(args []string, out io.Writer) error {
	var role, account *string
	return withEnv("has-role", args, out, func(fs *flag.FlagSet) {
		role = fs.String("role", "", "Role name, 0x-prefixed id or DEFAULT_ADMIN")
		account = fs.String("account", "", "Bech32 account")
	}, func(e *env) error {
		r, err := parseRole(*role)
		if err != nil {
			return err
		}
		acc, err := crypto.DecodeAccount(*account)
		if err != nil {
			return fmt.Errorf("account: %w", err)
		}
		var has bool
		if err := e.call("access", "HasRole", func(types.Account) error {
			has, err = e.contract.Access().HasRole(r, acc)
			return err
		}); err != nil {
			return err
		}
		return e.printValue("hasRole", has)
	})
}

func runAddBucket(args []string, out io.Writer) error {
	var name, limit *string
	var duration *uint64
	return withEnv("add-bucket", args, out, func(fs *flag.FlagSet) {
		name = fs.String("name", "", "Bucket name or 0x-prefixed id")
		limit = fs.String("limit", "", "Bucket limit (base 10)")
		duration = fs.Uint64("duration", 0, "Replenish duration in seconds (0 is unlimited)")
	}, func(e *env) error {
		id, err := parseBucket(*name)
		if err != nil {
			return err
		}
		l, err := uint256.FromDecimal(strings.TrimSpace(*limit))
		if err != nil {
			return fmt.Errorf("limit: %w", err)
		}
		return e.call("ratelimit", "AddBucket", func(sender types.Account) error {
			return e.contract.AddBucket(sender, id, l, *duration)
		})
	})
}

func bucketCommand(action string) func([]string, io.Writer) error {
	return func(args []string, out io.Writer) error {
		var name *string
		return withEnv(action, args, out, func(fs *flag.FlagSet) {
			name = fs.String("name", "", "Bucket name or 0x-prefixed id")
		}, func(e *env) error {
			id, err := parseBucket(*name)
			if err != nil {
				return err
			}
			if action == "remove" {
				return e.call("ratelimit", "RemoveBucket", func(sender types.Account) error {
					return e.contract.RemoveBucket(sender, id)
				})
			}
			var capacity *uint256.Int
			if err := e.call("ratelimit", "GetCurrentCapacity", func(types.Account) error {
				capacity, err = e.contract.Limiter().GetCurrentCapacity(id)
				return err
			}); err != nil {
				return err
			}
			return e.printValue("capacity", capacity.Dec())
		})
	}
}

func amountCommand(action string) func([]string, io.Writer) error {
	return func(args []string, out io.Writer) error {
		var name, amount *string
		return withEnv(action, args, out, func(fs *flag.FlagSet) {
			name = fs.String("name", "", "Bucket name or 0x-prefixed id")
			amount = fs.String("amount", "", "Amount (base 10)")
		}, func(e *env) error {
			id, err := parseBucket(*name)
			if err != nil {
				return err
			}
			amt, err := uint256.FromDecimal(strings.TrimSpace(*amount))
			if err != nil {
				return fmt.Errorf("amount: %w", err)
			}
			switch action {
			case "consume":
				return e.call("ratelimit", "ConsumeAmount", func(sender types.Account) error {
					return e.contract.ConsumeAmount(sender, id, amt)
				})
			case "fill":
				return e.call("ratelimit", "FillAmount", func(sender types.Account) error {
					return e.contract.FillAmount(sender, id, amt)
				})
			default:
				return e.call("ratelimit", "UpdateRateLimit", func(sender types.Account) error {
					return e.contract.UpdateRateLimit(sender, id, amt)
				})
			}
		})
	}
}

func runSetDuration(args []string, out io.Writer) error {
	var name *string
	var duration *uint64
	return withEnv("set-duration", args, out, func(fs *flag.FlagSet) {
		name = fs.String("name", "", "Bucket name or 0x-prefixed id")
		duration = fs.Uint64("duration", 0, "Replenish duration in seconds (0 is unlimited)")
	}, func(e *env) error {
		id, err := parseBucket(*name)
		if err != nil {
			return err
		}
		return e.call("ratelimit", "UpdateRateDuration", func(sender types.Account) error {
			return e.contract.UpdateRateDuration(sender, id, *duration)
		})
	})
}

func runSetMinDelay(args []string, out io.Writer) error {
	var delay, at *uint64
	return withEnv("set-min-delay", args, out, func(fs *flag.FlagSet) {
		delay = fs.Uint64("delay", 0, "New minimum upgrade delay in seconds")
		at = fs.Uint64("at", 0, "Unix timestamp at which the new delay becomes binding")
	}, func(e *env) error {
		return e.call("upgrade", "UpdateMinUpgradeDelay", func(sender types.Account) error {
			return e.contract.Governor().UpdateMinUpgradeDelay(sender, *delay, *at)
		})
	})
}

func runSchedule(args []string, out io.Writer) error {
	var hash *string
	var at *uint64
	return withEnv("schedule", args, out, func(fs *flag.FlagSet) {
		hash = fs.String("hash", "", "0x-prefixed program hash")
		at = fs.Uint64("at", 0, "Unix timestamp from which the upgrade may complete")
	}, func(e *env) error {
		h, err := types.ParseCodeHash(*hash)
		if err != nil {
			return fmt.Errorf("hash: %w", err)
		}
		return e.call("upgrade", "ScheduleContractUpgrade", func(sender types.Account) error {
			return e.contract.Governor().ScheduleContractUpgrade(sender, h, *at)
		})
	})
}

func runCancel(args []string, out io.Writer) error {
	return withEnv("cancel", args, out, nil, func(e *env) error {
		return e.call("upgrade", "CancelContractUpgrade", func(sender types.Account) error {
			return e.contract.Governor().CancelContractUpgrade(sender)
		})
	})
}

func runComplete(args []string, out io.Writer) error {
	var approval, clearList *string
	return withEnv("complete", args, out, func(fs *flag.FlagSet) {
		approval = fs.String("approval", "", "Comma separated approval program page files")
		clearList = fs.String("clear", "", "Comma separated clear program page files")
	}, func(e *env) error {
		program, err := readProgram(*approval, *clearList)
		if err != nil {
			return err
		}
		return e.call("upgrade", "CompleteContractUpgrade", func(types.Account) error {
			_, err := e.contract.Governor().CompleteContractUpgrade(program)
			return err
		})
	})
}

type upgradeStatus struct {
	ActiveMinDelay uint64 `json:"activeMinDelay"`
	Delay0         uint64 `json:"delay0"`
	Delay1         uint64 `json:"delay1"`
	DelayTimestamp uint64 `json:"delayTimestamp"`
	ScheduledHash  string `json:"scheduledHash,omitempty"`
	ScheduledAt    uint64 `json:"scheduledAt,omitempty"`
	Version        uint64 `json:"version"`
	Initialised    bool   `json:"initialised"`
}

func runUpgradeStatus(args []string, out io.Writer) error {
	return withEnv("upgrade-status", args, out, nil, func(e *env) error {
		var status upgradeStatus
		err := e.call("upgrade", "Status", func(types.Account) error {
			gov := e.contract.Governor()
			delay, err := gov.MinUpgradeDelay()
			if err != nil {
				return err
			}
			status.Delay0, status.Delay1, status.DelayTimestamp = delay.Delay0, delay.Delay1, delay.Timestamp
			if status.ActiveMinDelay, err = gov.GetActiveMinUpgradeDelay(); err != nil {
				return err
			}
			scheduled, ok, err := gov.ScheduledUpgrade()
			if err != nil {
				return err
			}
			if ok {
				status.ScheduledHash = scheduled.ProgramHash.String()
				status.ScheduledAt = scheduled.Timestamp
			}
			if status.Version, err = gov.Version(); err != nil {
				return err
			}
			status.Initialised, err = e.contract.Lifecycle().IsInitialised()
			return err
		})
		if err != nil {
			return err
		}
		return e.printValue("upgrade", status)
	})
}

func runProgramHash(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("program-hash", flag.ContinueOnError)
	fs.SetOutput(out)
	approval := fs.String("approval", "", "Comma separated approval program page files")
	clearList := fs.String("clear", "", "Comma separated clear program page files")
	algo := fs.String("hash", "sha256", "Hash algorithm (sha256 or blake3)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	hasher, err := crypto.HasherByName(*algo)
	if err != nil {
		return err
	}
	program, err := readProgram(*approval, *clearList)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, crypto.ProgramHash(hasher, program).String())
	return err
}

func runAddress(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	fs.SetOutput(out)
	hexAccount := fs.String("hex", "", "0x-prefixed 32-byte account")
	if err := fs.Parse(args); err != nil {
		return err
	}
	acc, err := types.ParseAccount(*hexAccount)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, crypto.AccountAddress(acc))
	return err
}
