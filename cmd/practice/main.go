// Command practice runs an interview session in the terminal against the
// questions of a running server.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/victornm/mockinterview/internal/authclient"
	"github.com/victornm/mockinterview/internal/domain"
	"github.com/victornm/mockinterview/internal/guard"
	"github.com/victornm/mockinterview/internal/interview"
	"github.com/victornm/mockinterview/internal/question"
	"github.com/victornm/mockinterview/internal/speech"
)

func main() {
	var (
		addr         = flag.String("addr", "http://localhost:5000", "server base URL")
		email        = flag.String("email", "", "account email")
		password     = flag.String("password", "", "account password")
		register     = flag.Bool("register", false, "register the account before logging in")
		role         = flag.String("role", string(domain.RoleCandidate), "role used with -register")
		questionTime = flag.Duration("time", interview.DefaultQuestionTime, "time per question")
	)
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, options{
		addr:         *addr,
		email:        *email,
		password:     *password,
		register:     *register,
		role:         *role,
		questionTime: *questionTime,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "practice:", err)
		os.Exit(1)
	}
}

type options struct {
	addr         string
	email        string
	password     string
	register     bool
	role         string
	questionTime time.Duration
}

func run(ctx context.Context, o options) error {
	c := authclient.New(o.addr)

	if o.register {
		if _, err := c.Register(ctx, o.email, o.password, o.role); err != nil {
			return fmt.Errorf("register: %w", err)
		}
	}

	var id *domain.Identity
	if s, err := c.Login(ctx, o.email, o.password); err == nil {
		id = &s.Identity
	} else {
		fmt.Fprintln(os.Stderr, "login failed:", err)
	}

	if d := guard.Evaluate(id, domain.RoleCandidate); !d.Allowed {
		return fmt.Errorf("interview is for candidates, go to %s (%s)", d.Redirect, d.Reason)
	}

	prompts, err := c.Questions(ctx)
	if err != nil {
		return fmt.Errorf("questions: %w", err)
	}

	bank, err := question.NewBank(prompts)
	if err != nil {
		return err
	}

	t := newTerminal(os.Stdout, bank.Len())
	done := make(chan interview.State, 1)

	ctl := interview.NewController(interview.Config{
		Machine: interview.NewMachine(interview.MachineConfig{
			Bank:         bank,
			QuestionTime: o.questionTime,
		}),
		Speaker:  speech.Unavailable{},
		Cues:     t,
		OnChange: t.render,
		OnComplete: func(st interview.State) {
			done <- st
		},
	})
	defer ctl.Close()

	fmt.Fprintf(os.Stdout, "Welcome %s. Type your answer and press enter, %q to skip, %q to stop.\n", id.Email, cmdSkip, cmdQuit)

	if err := ctl.Start(); err != nil {
		return err
	}

	lines := make(chan string)
	go readLines(lines)

	for {
		select {
		case <-ctx.Done():
			return nil

		case st := <-done:
			sum, err := ctl.Summary()
			if err != nil {
				return err
			}
			t.summary(st, sum)
			return nil

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handle(ctl, line); quit {
				return nil
			}
		}
	}
}

const (
	cmdSkip = ":skip"
	cmdQuit = ":quit"
)

func handle(ctl *interview.Controller, line string) (quit bool) {
	var err error

	switch strings.TrimSpace(line) {
	case cmdQuit:
		return true
	case cmdSkip:
		err = ctl.Skip()
	default:
		if err = ctl.UpdateDraft(line); err == nil {
			err = ctl.Submit()
		}
	}

	if err != nil {
		slog.Warn("practice: action failed", "error", err)
	}
	return false
}

func readLines(out chan<- string) {
	defer close(out)

	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		out <- sc.Text()
	}
}
