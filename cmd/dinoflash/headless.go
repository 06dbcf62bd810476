package main

import (
	"fmt"
	"os"

	"github.com/juju/errors"

	"github.com/buckleypaul/dinoflash/internal/alert"
	"github.com/buckleypaul/dinoflash/internal/config"
	"github.com/buckleypaul/dinoflash/internal/provision"
	"github.com/buckleypaul/dinoflash/internal/session"
	"github.com/buckleypaul/dinoflash/internal/store"
)

// printEvents writes each event the way it appears in the session log.
// Flash progress is collapsed to one line per tenth.
func printEvents() provision.Emitter {
	last := -1
	return provision.EmitFunc(func(e provision.Event) {
		switch e.Kind {
		case provision.KindProgress:
			if e.Percent/10 == last/10 && e.Percent != 100 {
				return
			}
			last = e.Percent
		case provision.KindProgressShown, provision.KindProgressHidden:
			last = -1
			return
		}
		fmt.Fprintln(os.Stdout, e.String())
	})
}

func runHeadless(cfg *config.Config, root string, st *store.Store, mode provision.Mode, f flags) error {
	if mode == provision.Testing && !f.yes {
		return &exitError{
			code: 2,
			err:  errors.New("testing mode burns the hardware version permanently; pass --yes to confirm"),
		}
	}

	built, err := buildStation(cfg, root, st, alert.NewBell(os.Stderr), nil)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	sess := session.New(built.deps, sessionOptions(cfg, f.port)(mode), printEvents())
	defer sess.Close()

	out := sess.Provision(ctx)
	if !out.Success() {
		return &exitError{code: provision.ExitCode(out.Err), err: out.Err}
	}
	if !cfg.AutoQC {
		return nil
	}

	report, err := sess.RunQC(ctx)
	if err != nil {
		return &exitError{code: provision.ExitCode(err), err: err}
	}
	fmt.Fprintln(os.Stdout, report.Summary())
	return nil
}
