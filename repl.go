package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"askweb/internal/auth"
	"askweb/internal/terminal"

	"go.uber.org/zap"
)

// runREPL reads commands until /exit or end of input. Searches run in the
// background so a new question or /cancel can interrupt a slow one.
func runREPL(ctx context.Context, a *app, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	checkBackend(ctx, a)
	a.display.PrintWelcome(a.cfg.BackendURL, a.auth.CurrentUser())

	unsubscribe := a.auth.OnAuthChange(func(user *auth.User) {
		if user == nil {
			a.logger.Info("signed out")
			return
		}
		a.logger.Info("signed in", zap.String("user_id", user.ID))
	})
	defer unsubscribe()

	// Ctrl-C stops a running search; with nothing running it quits.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for {
			select {
			case sig := <-sigChan:
				if sig == os.Interrupt && a.orch.Cancel() {
					a.display.PrintInfo("Search cancelled")
					continue
				}
				a.display.PrintGoodbye()
				cancel()
				os.Exit(0)
			case <-ctx.Done():
				return
			}
		}
	}()

	var inflight sync.WaitGroup
	submit := func(query string, followup bool, target string) {
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			runSearch(ctx, a, query, followup, target)
		}()
	}

	reader := terminal.NewReader(in)
	for {
		a.display.PrintPrompt()
		line, err := reader.ReadLine()
		if err != nil {
			// end of piped input: let running searches finish
			inflight.Wait()
			break
		}

		cmd, err := terminal.ParseCommand(line)
		if err != nil {
			a.display.PrintWarning(err.Error())
			continue
		}

		switch cmd.Kind {
		case terminal.KindEmpty:
		case terminal.KindExit:
			a.orch.Cancel()
			inflight.Wait()
			a.display.PrintGoodbye()
			return nil
		case terminal.KindHelp:
			a.display.PrintHelp(terminal.Usage)
		case terminal.KindSearch:
			submit(cmd.Query, false, "")
		case terminal.KindFollowup:
			target := ""
			if cmd.Target != "" {
				id, err := a.orch.ResolveID(cmd.Target)
				if err != nil {
					a.display.PrintError(err)
					continue
				}
				target = id
			}
			submit(cmd.Query, true, target)
		case terminal.KindView:
			viewRecord(a, cmd.Target)
		case terminal.KindHistory:
			state := a.orch.CurrentSession()
			a.display.PrintHistory(state.Records, state.ActiveID)
		case terminal.KindClear:
			a.orch.ClearHistory(ctx)
			a.display.PrintSuccess("Search history cleared")
		case terminal.KindLogin:
			login(ctx, a, cmd.Target)
		case terminal.KindLogout:
			logout(ctx, a)
		case terminal.KindCredits:
			showCredits(ctx, a)
		case terminal.KindCancel:
			if a.orch.Cancel() {
				a.display.PrintInfo("Search cancelled")
			} else {
				a.display.PrintInfo("No search is running")
			}
		}
	}

	a.display.PrintGoodbye()
	return nil
}
