package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"moment-mint/internal/model"
	"moment-mint/internal/session"
	"moment-mint/internal/util"
	"moment-mint/internal/verification"
)

const maxListedCountries = 20

// terminal prints toasts and screens. It is the Notifier and Navigator of
// the verification flow.
type terminal struct {
	mu     sync.Mutex
	out    io.Writer
	authed atomic.Bool
}

func newTerminal(out io.Writer) *terminal {
	return &terminal{out: out}
}

func (t *terminal) printf(format string, args ...interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

func (t *terminal) Notify(n verification.Notice) {
	if n.Kind == verification.NoticeError {
		t.printf("  ✖ %s\n", n.Message)
		return
	}
	t.printf("  ✔ %s\n", n.Message)
}

func (t *terminal) ReplaceWithAuthenticatedRoot() {
	t.authed.Store(true)
	t.printf("\nWelcome to Moment Mint! Type 'profile', 'logout' or 'quit'.\n")
}

func (t *terminal) cooldownTick(remaining int) {
	if remaining == 0 {
		t.printf("  You can request a new code now (type 'r').\n")
	}
}

type sessionAPI interface {
	Get(ctx context.Context, path string) (*model.APIResponse, error)
	Logout(ctx context.Context) (*model.APIResponse, error)
}

// app routes terminal commands to the verification controller.
type app struct {
	term    *terminal
	gate    *session.Gate
	api     sessionAPI
	ctrl    *verification.Controller
	newCtrl func() (*verification.Controller, error)
}

// handle runs one input line and reports whether the user asked to quit.
func (a *app) handle(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		a.render()
		return false
	}
	cmd := strings.ToLower(fields[0])
	arg := strings.Join(fields[1:], " ")

	switch cmd {
	case "quit", "exit", "q":
		return true
	case "help", "?":
		a.help()
		return false
	case "status":
		a.render()
		return false
	}

	if a.term.authed.Load() {
		a.handleAuthenticated(ctx, cmd)
		return false
	}

	switch a.ctrl.Snapshot().State {
	case verification.StateEnteringPhone:
		a.handlePhone(ctx, cmd, arg)
	case verification.StateAwaitingOTP:
		a.handleOTP(ctx, cmd)
	}
	if !a.term.authed.Load() {
		a.render()
	}
	return false
}

func (a *app) handlePhone(ctx context.Context, cmd, arg string) {
	switch cmd {
	case "countries", "c":
		a.ctrl.OpenCountryPicker()
		a.listCountries(a.ctrl.SearchCountries(arg))
	case "country":
		if arg == "" {
			a.ctrl.CloseCountryPicker()
			return
		}
		_ = a.ctrl.SelectCountry(arg)
	case "phone", "p":
		_, _, _ = a.ctrl.SetPhoneInput(arg)
	case "terms", "t":
		_ = a.ctrl.SetTermsAccepted(arg != "off" && arg != "no")
	case "send":
		_ = a.ctrl.RequestOTP(ctx)
	case "save":
		_ = a.ctrl.SaveNumber(ctx)
	default:
		if util.DigitsOnly(cmd, 0) != "" && strings.Trim(cmd, "0123456789-() ") == "" {
			_, _, _ = a.ctrl.SetPhoneInput(cmd + arg)
			return
		}
		a.term.printf("  Unknown command %q. Type 'help'.\n", cmd)
	}
}

func (a *app) handleOTP(ctx context.Context, cmd string) {
	switch cmd {
	case "-", "back":
		a.backspace(ctx)
	case "v", "verify":
		_ = a.ctrl.SubmitOTP(ctx)
	case "r", "resend":
		_ = a.ctrl.ResendOTP(ctx)
	case "e", "edit":
		_ = a.ctrl.EditNumber()
	default:
		if util.DigitsOnly(cmd, 0) != cmd {
			a.term.printf("  Unknown command %q. Type 'help'.\n", cmd)
			return
		}
		for _, r := range cmd {
			snap := a.ctrl.Snapshot()
			if snap.State != verification.StateAwaitingOTP {
				return
			}
			slot := nextSlot(snap)
			if slot < 0 {
				return
			}
			if err := a.ctrl.EditOTPSlot(ctx, slot, string(r)); err != nil {
				return
			}
		}
	}
}

// backspace clears the focused slot, or the one before it when it is empty.
func (a *app) backspace(ctx context.Context) {
	snap := a.ctrl.Snapshot()
	idx := snap.Focus
	if idx == verification.NoFocus {
		idx = verification.OTPLength - 1
	}
	if snap.OTP[idx] != "" {
		_ = a.ctrl.EditOTPSlot(ctx, idx, "")
		return
	}
	_ = a.ctrl.Backspace(ctx, idx)
}

func (a *app) handleAuthenticated(ctx context.Context, cmd string) {
	switch cmd {
	case "profile":
		resp, err := a.api.Get(ctx, "/profile/me")
		if err != nil {
			a.term.printf("  ✖ %v\n", err)
			return
		}
		var p model.Profile
		if err := json.Unmarshal(resp.Data, &p); err != nil {
			a.term.printf("  ✖ unexpected profile payload\n")
			return
		}
		a.term.printf("  Mobile: %s  verified %s\n", p.MobileNumber, p.VerifiedAt.Local().Format("2006-01-02 15:04"))
	case "logout":
		// the bearer token is read from the store, so the backend goes first
		if _, err := a.api.Logout(ctx); err != nil {
			a.term.printf("  ✖ Could not end the session on the server: %v\n", err)
		}
		if err := a.gate.Logout(ctx); err != nil {
			a.term.printf("  ✖ %v\n", err)
			return
		}
		ctrl, err := a.newCtrl()
		if err != nil {
			a.term.printf("  ✖ %v\n", err)
			return
		}
		a.ctrl.Close()
		a.ctrl = ctrl
		_ = a.ctrl.Start(ctx)
		a.term.authed.Store(false)
		a.term.printf("  Logged out.\n")
		a.render()
	default:
		a.term.printf("  Unknown command %q. Type 'help'.\n", cmd)
	}
}

func (a *app) listCountries(list []model.Country) {
	for i, c := range list {
		if i == maxListedCountries {
			a.term.printf("  … %d more, narrow the search\n", len(list)-maxListedCountries)
			break
		}
		a.term.printf("  %-3s %s (%s)\n", c.Code, c.Name, c.DialCode)
	}
	if len(list) == 0 {
		a.term.printf("  No countries match.\n")
	}
}

func (a *app) render() {
	if a.term.authed.Load() {
		a.term.printf("Signed in. Commands: profile, logout, quit\n")
		return
	}
	s := a.ctrl.Snapshot()
	switch s.State {
	case verification.StateEnteringPhone:
		country := "none"
		if s.SelectedCountry != nil {
			country = fmt.Sprintf("%s (%s)", s.SelectedCountry.Name, s.SelectedCountry.DialCode)
		}
		terms := "[ ]"
		if s.TermsAccepted {
			terms = "[x]"
		}
		a.term.printf("Country: %s  Phone: %s  Terms: %s\n", country, s.FormattedPhone, terms)
		if s.Editing {
			a.term.printf("Editing number, type 'save' when done.\n")
		}
	case verification.StateAwaitingOTP:
		var b strings.Builder
		for i, d := range s.OTP {
			switch {
			case d != "":
				b.WriteString("[" + d + "]")
			case i == s.Focus:
				b.WriteString("[>]")
			default:
				b.WriteString("[ ]")
			}
		}
		resend := "type 'r' to resend"
		if s.Cooldown > 0 {
			resend = "resend in " + formatTime(s.Cooldown)
		}
		a.term.printf("Code sent to %s  %s  (%s)\n", s.MobileNumber, b.String(), resend)
	case verification.StateVerified:
		a.term.printf("Verified.\n")
	}
}

func (a *app) help() {
	a.term.printf(`Phone entry:
  countries [search]   list countries     country [code]   select a country
  phone <number>       set the number     terms [off]      accept the terms
  send                 request a code     save             request a code for an edited number
Code entry:
  <digits>             fill slots         -                backspace
  v                    verify             r                resend
  e                    change number
Always: status, help, quit
`)
}

// nextSlot is the focused slot, else the first empty one, else -1.
func nextSlot(s verification.Snapshot) int {
	if s.Focus != verification.NoFocus {
		return s.Focus
	}
	for i, d := range s.OTP {
		if d == "" {
			return i
		}
	}
	return -1
}

// formatTime renders seconds as mm:ss.
func formatTime(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
