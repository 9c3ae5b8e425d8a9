package verification

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"moment-mint/internal/model"
	"moment-mint/internal/storage"
)

type harness struct {
	ctrl      *Controller
	api       *fakeAPI
	dir       *fakeDirectory
	store     storage.Store
	clock     *fakeClock
	notifier  *recordingNotifier
	navigator *recordingNavigator
	logs      *observer.ObservedLogs
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	return newHarnessWith(t, &fakeDirectory{countries: testCountries}, storage.NewMemoryStore(), opts)
}

func newHarnessWith(t *testing.T, dir *fakeDirectory, store storage.Store, opts Options) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	h := &harness{
		api:       &fakeAPI{},
		dir:       dir,
		store:     store,
		clock:     &fakeClock{},
		notifier:  &recordingNotifier{},
		navigator: &recordingNavigator{},
		logs:      logs,
	}
	ctrl, err := NewController(Dependencies{
		Directory: h.dir,
		API:       h.api,
		Store:     h.store,
		Notifier:  h.notifier,
		Navigator: h.navigator,
		Clock:     h.clock,
		Logger:    zap.New(core),
	}, opts)
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	t.Cleanup(ctrl.Close)
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	h.ctrl = ctrl
	return h
}

// awaitOTP drives the flow to AwaitingOtp with 9876543210 in India.
func (h *harness) awaitOTP(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if _, _, err := h.ctrl.SetPhoneInput("9876543210"); err != nil {
		t.Fatalf("SetPhoneInput() error = %v", err)
	}
	if err := h.ctrl.SetTermsAccepted(true); err != nil {
		t.Fatalf("SetTermsAccepted() error = %v", err)
	}
	if err := h.ctrl.RequestOTP(ctx); err != nil {
		t.Fatalf("RequestOTP() error = %v", err)
	}
}

func (h *harness) fillOTP(t *testing.T, code string) error {
	t.Helper()
	var err error
	for i, r := range code {
		err = h.ctrl.EditOTPSlot(context.Background(), i, string(r))
	}
	return err
}

func TestNewController_RequiresCollaborators(t *testing.T) {
	_, err := NewController(Dependencies{API: &fakeAPI{}, Store: storage.NewMemoryStore()}, Options{})
	if err == nil {
		t.Fatal("NewController() without directory succeeded, want error")
	}
	_, err = NewController(Dependencies{
		Directory: &fakeDirectory{},
		API:       &fakeAPI{},
		Store:     storage.NewMemoryStore(),
	}, Options{ResendCooldown: -1})
	if err == nil {
		t.Fatal("NewController() with negative cooldown succeeded, want error")
	}
}

func TestStart_SelectsPreferredCountry(t *testing.T) {
	h := newHarness(t, Options{})
	snap := h.ctrl.Snapshot()
	if snap.SelectedCountry == nil || snap.SelectedCountry.Code != "IN" {
		t.Fatalf("SelectedCountry = %+v, want IN", snap.SelectedCountry)
	}
	if !snap.CountriesLoaded {
		t.Error("CountriesLoaded = false, want true")
	}
	if snap.State != StateEnteringPhone {
		t.Errorf("State = %v, want %v", snap.State, StateEnteringPhone)
	}
	if snap.Focus != NoFocus {
		t.Errorf("Focus = %d, want %d", snap.Focus, NoFocus)
	}

	// a second Start does not reload
	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if h.dir.calls != 1 {
		t.Errorf("directory calls = %d, want 1", h.dir.calls)
	}
}

func TestStart_FallsBackToFirstCountry(t *testing.T) {
	dir := &fakeDirectory{countries: []model.Country{
		{Name: "Canada", DialCode: "+1", Code: "CA"},
		{Name: "France", DialCode: "+33", Code: "FR"},
	}}
	h := newHarnessWith(t, dir, storage.NewMemoryStore(), Options{})
	if got := h.ctrl.Snapshot().SelectedCountry; got == nil || got.Code != "CA" {
		t.Fatalf("SelectedCountry = %+v, want CA", got)
	}

	h2 := newHarnessWith(t, &fakeDirectory{countries: testCountries}, storage.NewMemoryStore(), Options{PreferredCountry: "us"})
	if got := h2.ctrl.Snapshot().SelectedCountry; got == nil || got.Code != "US" {
		t.Fatalf("SelectedCountry = %+v, want US", got)
	}
}

func TestStart_DirectoryFailureLeavesNoSelection(t *testing.T) {
	h := newHarnessWith(t, &fakeDirectory{err: errors.New("offline")}, storage.NewMemoryStore(), Options{})
	if got := h.ctrl.Snapshot().SelectedCountry; got != nil {
		t.Fatalf("SelectedCountry = %+v, want nil", got)
	}
	if len(h.ctrl.Countries()) != 0 {
		t.Errorf("Countries() = %v, want empty", h.ctrl.Countries())
	}

	h.ctrl.SetPhoneInput("9876543210")
	h.ctrl.SetTermsAccepted(true)
	err := h.ctrl.RequestOTP(context.Background())
	if !errors.Is(err, ErrNoCountry) {
		t.Fatalf("RequestOTP() error = %v, want ErrNoCountry", err)
	}
	if len(h.api.checks()) != 0 {
		t.Errorf("backend called %d times, want 0", len(h.api.checks()))
	}
}

func TestSetPhoneInput_SanitisesAndFormats(t *testing.T) {
	h := newHarness(t, Options{})
	tests := []struct {
		raw       string
		digits    string
		formatted string
	}{
		{"98765-43210", "9876543210", "987-654-3210"},
		{"(987) 654 3210 99", "9876543210", "987-654-3210"},
		{"98765", "98765", "98765"},
		{"abc", "", ""},
	}
	for _, tt := range tests {
		digits, formatted, err := h.ctrl.SetPhoneInput(tt.raw)
		if err != nil {
			t.Fatalf("SetPhoneInput(%q) error = %v", tt.raw, err)
		}
		if digits != tt.digits || formatted != tt.formatted {
			t.Errorf("SetPhoneInput(%q) = %q, %q, want %q, %q", tt.raw, digits, formatted, tt.digits, tt.formatted)
		}
	}
}

func TestRequestOTP_Success(t *testing.T) {
	h := newHarness(t, Options{})
	h.api.checkResp = &model.APIResponse{Status: true, Message: "OTP sent"}
	h.awaitOTP(t)

	if got := h.api.checks(); len(got) != 1 || got[0] != "+919876543210" {
		t.Fatalf("checkMobileNumber calls = %v, want [+919876543210]", got)
	}
	snap := h.ctrl.Snapshot()
	if snap.State != StateAwaitingOTP {
		t.Fatalf("State = %v, want %v", snap.State, StateAwaitingOTP)
	}
	if snap.Cooldown != 60 {
		t.Errorf("Cooldown = %d, want 60", snap.Cooldown)
	}
	if snap.Focus != 0 {
		t.Errorf("Focus = %d, want 0", snap.Focus)
	}
	if snap.OTP != [OTPLength]string{} {
		t.Errorf("OTP = %v, want empty", snap.OTP)
	}
	if snap.LastNotice != (Notice{Kind: NoticeSuccess, Message: "OTP sent"}) {
		t.Errorf("LastNotice = %+v", snap.LastNotice)
	}

	h.clock.Tick(t)
	waitFor(t, "cooldown 59", func() bool { return h.ctrl.Snapshot().Cooldown == 59 })
}

func TestRequestOTP_FallbackSuccessMessage(t *testing.T) {
	h := newHarness(t, Options{})
	h.awaitOTP(t)
	if got := h.ctrl.Snapshot().LastNotice.Message; got != "OTP sent on WhatsApp" {
		t.Errorf("LastNotice.Message = %q, want %q", got, "OTP sent on WhatsApp")
	}
}

func TestRequestOTP_Validation(t *testing.T) {
	tests := []struct {
		name    string
		phone   string
		terms   bool
		wantErr error
		wantMsg string
	}{
		{"short number", "98765", true, ErrInvalidPhone, "Please enter a valid 10-digit phone number."},
		{"empty number", "", true, ErrInvalidPhone, "Please enter a valid 10-digit phone number."},
		{"terms not accepted", "9876543210", false, ErrTermsNotAccepted, "Please accept the Terms of Use & Privacy Policy."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Options{})
			h.ctrl.SetPhoneInput(tt.phone)
			h.ctrl.SetTermsAccepted(tt.terms)

			err := h.ctrl.RequestOTP(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("RequestOTP() error = %v, want %v", err, tt.wantErr)
			}
			if KindOf(err) != KindValidation {
				t.Errorf("KindOf() = %v, want %v", KindOf(err), KindValidation)
			}
			if len(h.api.checks()) != 0 {
				t.Errorf("backend called %d times, want 0", len(h.api.checks()))
			}
			snap := h.ctrl.Snapshot()
			if snap.State != StateEnteringPhone {
				t.Errorf("State = %v, want %v", snap.State, StateEnteringPhone)
			}
			if snap.LastNotice != (Notice{Kind: NoticeError, Message: tt.wantMsg}) {
				t.Errorf("LastNotice = %+v, want error %q", snap.LastNotice, tt.wantMsg)
			}
		})
	}
}

func TestRequestOTP_BackendRejection(t *testing.T) {
	h := newHarness(t, Options{})
	h.api.checkResp = &model.APIResponse{Status: false, Message: "Number is blocked"}
	h.ctrl.SetPhoneInput("9876543210")
	h.ctrl.SetTermsAccepted(true)

	err := h.ctrl.RequestOTP(context.Background())
	if KindOf(err) != KindBackendRejection {
		t.Fatalf("RequestOTP() error = %v, want backend rejection", err)
	}
	snap := h.ctrl.Snapshot()
	if snap.State != StateEnteringPhone || snap.Busy {
		t.Errorf("State = %v Busy = %v, want entering_phone and idle", snap.State, snap.Busy)
	}
	if snap.LastNotice.Message != "Number is blocked" {
		t.Errorf("LastNotice.Message = %q, want %q", snap.LastNotice.Message, "Number is blocked")
	}
	if snap.Cooldown != 0 {
		t.Errorf("Cooldown = %d, want 0", snap.Cooldown)
	}
}

func TestRequestOTP_NetworkFailure(t *testing.T) {
	h := newHarness(t, Options{})
	h.api.checkErr = errors.New("connection refused")
	h.ctrl.SetPhoneInput("9876543210")
	h.ctrl.SetTermsAccepted(true)

	err := h.ctrl.RequestOTP(context.Background())
	if KindOf(err) != KindNetworkFailure {
		t.Fatalf("RequestOTP() error = %v, want network failure", err)
	}
	if got := h.ctrl.Snapshot().LastNotice.Message; got != "An error occurred. Please try again." {
		t.Errorf("LastNotice.Message = %q", got)
	}
}

func TestRequestOTP_NotAllowedWhileAwaiting(t *testing.T) {
	h := newHarness(t, Options{})
	h.awaitOTP(t)
	if err := h.ctrl.RequestOTP(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("RequestOTP() error = %v, want ErrInvalidState", err)
	}
	if _, _, err := h.ctrl.SetPhoneInput("1234567890"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("SetPhoneInput() error = %v, want ErrInvalidState", err)
	}
}

func TestVerify_SuccessPersistsToken(t *testing.T) {
	h := newHarness(t, Options{})
	h.awaitOTP(t)
	h.api.verifyResp = &model.APIResponse{Status: true, Message: "Verified", Token: "abc123"}

	if err := h.fillOTP(t, "123456"); err != nil {
		t.Fatalf("filling OTP error = %v", err)
	}

	if got := h.api.verifies(); len(got) != 1 || got[0] != "+919876543210/123456" {
		t.Fatalf("verifyOtp calls = %v", got)
	}
	token, ok, err := h.store.Get(context.Background(), "token")
	if err != nil || !ok || token != "abc123" {
		t.Fatalf("stored token = %q, %v, %v, want abc123", token, ok, err)
	}
	snap := h.ctrl.Snapshot()
	if snap.State != StateVerified {
		t.Errorf("State = %v, want %v", snap.State, StateVerified)
	}
	if snap.Cooldown != 0 {
		t.Errorf("Cooldown = %d, want 0", snap.Cooldown)
	}
	if h.navigator.count() != 1 {
		t.Errorf("navigator calls = %d, want 1", h.navigator.count())
	}

	// terminal: no further edits
	if err := h.ctrl.EditOTPSlot(context.Background(), 0, "1"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("EditOTPSlot() after verify error = %v, want ErrInvalidState", err)
	}
}

func TestVerify_CustomTokenKey(t *testing.T) {
	h := newHarness(t, Options{TokenKey: "session"})
	h.awaitOTP(t)
	h.api.verifyResp = &model.APIResponse{Status: true, Token: "xyz"}
	h.fillOTP(t, "654321")

	if v, ok, _ := h.store.Get(context.Background(), "session"); !ok || v != "xyz" {
		t.Errorf("stored session = %q, %v, want xyz", v, ok)
	}
}

func TestVerify_RejectionResetsSlots(t *testing.T) {
	h := newHarness(t, Options{})
	h.awaitOTP(t)
	h.api.verifyResp = &model.APIResponse{Status: false, Message: "Invalid code"}

	err := h.fillOTP(t, "000000")
	if KindOf(err) != KindBackendRejection {
		t.Fatalf("auto-submit error = %v, want backend rejection", err)
	}
	snap := h.ctrl.Snapshot()
	if snap.OTP != [OTPLength]string{} {
		t.Errorf("OTP = %v, want all empty", snap.OTP)
	}
	if snap.Focus != 0 {
		t.Errorf("Focus = %d, want 0", snap.Focus)
	}
	if snap.State != StateAwaitingOTP {
		t.Errorf("State = %v, want %v", snap.State, StateAwaitingOTP)
	}
	if snap.LastNotice != (Notice{Kind: NoticeError, Message: "Invalid code"}) {
		t.Errorf("LastNotice = %+v", snap.LastNotice)
	}
	if _, ok, _ := h.store.Get(context.Background(), "token"); ok {
		t.Error("token stored after rejection")
	}
	if h.navigator.count() != 0 {
		t.Errorf("navigator calls = %d, want 0", h.navigator.count())
	}
}

func TestVerify_NetworkFailure(t *testing.T) {
	h := newHarness(t, Options{})
	h.awaitOTP(t)
	h.api.verifyErr = errors.New("timeout")

	err := h.fillOTP(t, "111111")
	if KindOf(err) != KindNetworkFailure {
		t.Fatalf("auto-submit error = %v, want network failure", err)
	}
	if got := h.ctrl.Snapshot().LastNotice.Message; got != "An error occurred while verifying OTP. Please try again." {
		t.Errorf("LastNotice.Message = %q", got)
	}
	if h.ctrl.Snapshot().OTP != [OTPLength]string{} {
		t.Error("slots not cleared after failure")
	}
}

func TestVerify_MissingTokenIsLoggedNotFatal(t *testing.T) {
	h := newHarness(t, Options{})
	h.awaitOTP(t)
	h.api.verifyResp = &model.APIResponse{Status: true, Message: "ok"}

	if err := h.fillOTP(t, "123456"); err != nil {
		t.Fatalf("auto-submit error = %v", err)
	}
	if h.ctrl.Snapshot().State != StateVerified {
		t.Fatalf("State = %v, want verified", h.ctrl.Snapshot().State)
	}
	if _, ok, _ := h.store.Get(context.Background(), "token"); ok {
		t.Error("empty token was stored")
	}
	if n := h.logs.FilterMessage("Verified without session token").Len(); n != 1 {
		t.Errorf("inconsistency log entries = %d, want 1", n)
	}
}

func TestVerify_StoreFailureIsLoggedNotFatal(t *testing.T) {
	h := newHarnessWith(t, &fakeDirectory{countries: testCountries}, failingStore{}, Options{})
	h.awaitOTP(t)
	h.api.verifyResp = &model.APIResponse{Status: true, Token: "abc123"}

	if err := h.fillOTP(t, "123456"); err != nil {
		t.Fatalf("auto-submit error = %v", err)
	}
	if h.ctrl.Snapshot().State != StateVerified {
		t.Errorf("State = %v, want verified", h.ctrl.Snapshot().State)
	}
	if n := h.logs.FilterMessage("Failed to persist session token").Len(); n != 1 {
		t.Errorf("persist failure log entries = %d, want 1", n)
	}
}

func TestSubmitOTP_RequiresSixDigits(t *testing.T) {
	h := newHarness(t, Options{})
	h.awaitOTP(t)
	h.fillOTP(t, "123")

	err := h.ctrl.SubmitOTP(context.Background())
	if !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("SubmitOTP() error = %v, want ErrInvalidOTP", err)
	}
	if got := h.ctrl.Snapshot().LastNotice.Message; got != "Please enter a valid 6-digit OTP." {
		t.Errorf("LastNotice.Message = %q", got)
	}
	if len(h.api.verifies()) != 0 {
		t.Errorf("verify calls = %d, want 0", len(h.api.verifies()))
	}
}

func TestSubmitOTP_NotAwaiting(t *testing.T) {
	h := newHarness(t, Options{})
	if err := h.ctrl.SubmitOTP(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("SubmitOTP() error = %v, want ErrInvalidState", err)
	}
}

func TestEditOTPSlot_FocusAndValidation(t *testing.T) {
	h := newHarness(t, Options{})
	h.awaitOTP(t)
	ctx := context.Background()

	if err := h.ctrl.EditOTPSlot(ctx, 0, "4"); err != nil {
		t.Fatalf("EditOTPSlot() error = %v", err)
	}
	if got := h.ctrl.Snapshot().Focus; got != 1 {
		t.Errorf("Focus after slot 0 = %d, want 1", got)
	}
	if err := h.ctrl.EditOTPSlot(ctx, 5, "9"); err != nil {
		t.Fatalf("EditOTPSlot() error = %v", err)
	}
	if got := h.ctrl.Snapshot().Focus; got != NoFocus {
		t.Errorf("Focus after slot 5 = %d, want %d", got, NoFocus)
	}
	if err := h.ctrl.EditOTPSlot(ctx, 0, ""); err != nil {
		t.Fatalf("EditOTPSlot() clear error = %v", err)
	}
	if snap := h.ctrl.Snapshot(); snap.OTP[0] != "" || snap.Focus != 0 {
		t.Errorf("after clear OTP[0] = %q Focus = %d", snap.OTP[0], snap.Focus)
	}

	for _, bad := range []string{"a", "12", " ", "٣"} {
		err := h.ctrl.EditOTPSlot(ctx, 1, bad)
		if !errors.Is(err, ErrInvalidDigit) {
			t.Errorf("EditOTPSlot(1, %q) error = %v, want ErrInvalidDigit", bad, err)
		}
	}
	if got := h.ctrl.Snapshot().OTP[1]; got != "" {
		t.Errorf("OTP[1] = %q after invalid input, want empty", got)
	}
	for _, idx := range []int{-1, OTPLength} {
		if err := h.ctrl.EditOTPSlot(ctx, idx, "1"); !errors.Is(err, ErrSlotIndex) {
			t.Errorf("EditOTPSlot(%d) error = %v, want ErrSlotIndex", idx, err)
		}
	}
	if len(h.api.verifies()) != 0 {
		t.Errorf("verify calls = %d, want 0", len(h.api.verifies()))
	}
}

func TestBackspace(t *testing.T) {
	h := newHarness(t, Options{})
	h.awaitOTP(t)
	ctx := context.Background()
	h.ctrl.EditOTPSlot(ctx, 0, "1")
	h.ctrl.EditOTPSlot(ctx, 1, "2")

	// filled slot: no-op
	if err := h.ctrl.Backspace(ctx, 1); err != nil {
		t.Fatalf("Backspace() error = %v", err)
	}
	if got := h.ctrl.Snapshot().OTP[1]; got != "2" {
		t.Errorf("OTP[1] = %q, want 2", got)
	}

	// empty slot 2 clears slot 1 and focuses it
	h.ctrl.Backspace(ctx, 2)
	snap := h.ctrl.Snapshot()
	if snap.OTP[1] != "" || snap.Focus != 1 {
		t.Errorf("after backspace OTP[1] = %q Focus = %d, want empty and 1", snap.OTP[1], snap.Focus)
	}
	if snap.OTP[0] != "1" {
		t.Errorf("OTP[0] = %q, want 1", snap.OTP[0])
	}

	// empty slot 0: no-op
	h.ctrl.EditOTPSlot(ctx, 0, "")
	h.ctrl.Backspace(ctx, 0)
	if snap := h.ctrl.Snapshot(); snap.Focus != 0 {
		t.Errorf("Focus = %d, want 0", snap.Focus)
	}

	if err := h.ctrl.Backspace(ctx, 7); !errors.Is(err, ErrSlotIndex) {
		t.Errorf("Backspace(7) error = %v, want ErrSlotIndex", err)
	}
}

func TestAutoSubmit_ExactlyOnce(t *testing.T) {
	h := newHarness(t, Options{})
	h.awaitOTP(t)
	ctx := context.Background()
	for i := 0; i < OTPLength-1; i++ {
		h.ctrl.EditOTPSlot(ctx, i, "7")
	}

	gate := make(chan struct{})
	h.api.setGate(gate)
	done := make(chan error, 1)
	go func() { done <- h.ctrl.EditOTPSlot(ctx, OTPLength-1, "7") }()
	waitFor(t, "verify in flight", func() bool { return len(h.api.verifies()) == 1 })

	// edits while in flight do not submit again
	if err := h.ctrl.EditOTPSlot(ctx, 0, "8"); err != nil {
		t.Errorf("EditOTPSlot() during flight error = %v", err)
	}
	if err := h.ctrl.SubmitOTP(ctx); !errors.Is(err, ErrRequestInFlight) {
		t.Errorf("SubmitOTP() during flight error = %v, want ErrRequestInFlight", err)
	}
	if !h.ctrl.Snapshot().Busy {
		t.Error("Busy = false during flight")
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("auto-submit error = %v", err)
	}
	if got := h.api.verifies(); len(got) != 1 || got[0] != "+919876543210/777777" {
		t.Errorf("verify calls = %v, want one with 777777", got)
	}
}

func TestResendOTP_BlockedDuringCooldown(t *testing.T) {
	h := newHarness(t, Options{})
	h.awaitOTP(t)

	err := h.ctrl.ResendOTP(context.Background())
	if !errors.Is(err, ErrCooldownActive) {
		t.Fatalf("ResendOTP() error = %v, want ErrCooldownActive", err)
	}
	if len(h.api.checks()) != 1 {
		t.Errorf("checkMobileNumber calls = %d, want 1", len(h.api.checks()))
	}
}

func TestResendOTP_DefaultCooldownBlocksImmediateResend(t *testing.T) {
	h := newHarness(t, Options{})
	h.awaitOTP(t)
	if got := h.ctrl.Snapshot().Cooldown; got != DefaultResendCooldown {
		t.Fatalf("Cooldown = %d, want %d", got, DefaultResendCooldown)
	}
	if err := h.ctrl.ResendOTP(context.Background()); !errors.Is(err, ErrCooldownActive) {
		t.Errorf("ResendOTP() error = %v, want ErrCooldownActive", err)
	}
	if got := h.api.checks(); len(got) != 1 {
		t.Errorf("checkMobileNumber calls = %v, want 1", got)
	}
}

func TestResendOTP_AfterCooldown(t *testing.T) {
	h := newHarness(t, Options{ResendCooldown: 2})
	h.awaitOTP(t)
	ctx := context.Background()
	h.ctrl.EditOTPSlot(ctx, 0, "5")

	h.clock.Tick(t)
	h.clock.Tick(t)
	waitFor(t, "cooldown 0", func() bool { return h.ctrl.Snapshot().Cooldown == 0 })

	if err := h.ctrl.ResendOTP(ctx); err != nil {
		t.Fatalf("ResendOTP() error = %v", err)
	}
	if got := h.api.checks(); len(got) != 2 || got[1] != "+919876543210" {
		t.Fatalf("checkMobileNumber calls = %v", got)
	}
	snap := h.ctrl.Snapshot()
	if snap.Cooldown != 2 {
		t.Errorf("Cooldown = %d, want 2", snap.Cooldown)
	}
	if snap.OTP != [OTPLength]string{} || snap.Focus != 0 {
		t.Errorf("OTP = %v Focus = %d, want cleared and 0", snap.OTP, snap.Focus)
	}
	if snap.LastNotice != (Notice{Kind: NoticeSuccess, Message: "OTP resent successfully"}) {
		t.Errorf("LastNotice = %+v", snap.LastNotice)
	}
}

func TestResendOTP_FailureKeepsCooldown(t *testing.T) {
	h := newHarness(t, Options{ResendCooldown: 1})
	h.awaitOTP(t)
	h.clock.Tick(t)
	waitFor(t, "cooldown 0", func() bool { return h.ctrl.Snapshot().Cooldown == 0 })

	h.api.checkErr = errors.New("connection reset")
	err := h.ctrl.ResendOTP(context.Background())
	if KindOf(err) != KindNetworkFailure {
		t.Fatalf("ResendOTP() error = %v, want network failure", err)
	}
	snap := h.ctrl.Snapshot()
	if snap.Cooldown != 0 {
		t.Errorf("Cooldown = %d, want 0", snap.Cooldown)
	}
	if snap.LastNotice.Message != "Failed to resend OTP. Please try again." {
		t.Errorf("LastNotice.Message = %q", snap.LastNotice.Message)
	}

	h.api.checkErr = nil
	h.api.checkResp = &model.APIResponse{Status: false}
	h.ctrl.ResendOTP(context.Background())
	if got := h.ctrl.Snapshot().LastNotice.Message; got != "Failed to resend OTP." {
		t.Errorf("LastNotice.Message = %q, want fallback rejection", got)
	}
}

func TestEditNumberAndSave(t *testing.T) {
	h := newHarness(t, Options{})
	h.awaitOTP(t)
	ctx := context.Background()
	h.ctrl.EditOTPSlot(ctx, 0, "3")

	if err := h.ctrl.SaveNumber(ctx); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("SaveNumber() before edit error = %v, want ErrInvalidState", err)
	}
	if err := h.ctrl.EditNumber(); err != nil {
		t.Fatalf("EditNumber() error = %v", err)
	}
	snap := h.ctrl.Snapshot()
	if snap.State != StateEnteringPhone || !snap.Editing {
		t.Fatalf("State = %v Editing = %v, want entering_phone editing", snap.State, snap.Editing)
	}
	if snap.Cooldown != 0 || snap.OTP != [OTPLength]string{} || snap.Focus != NoFocus {
		t.Errorf("Cooldown = %d OTP = %v Focus = %d, want cleared", snap.Cooldown, snap.OTP, snap.Focus)
	}
	if snap.PhoneDigits != "9876543210" {
		t.Errorf("PhoneDigits = %q, want kept", snap.PhoneDigits)
	}

	h.ctrl.SetPhoneInput("9123456780")
	if err := h.ctrl.SaveNumber(ctx); err != nil {
		t.Fatalf("SaveNumber() error = %v", err)
	}
	if got := h.api.checks(); len(got) != 2 || got[1] != "+919123456780" {
		t.Errorf("checkMobileNumber calls = %v", got)
	}
	snap = h.ctrl.Snapshot()
	if snap.State != StateAwaitingOTP || snap.Editing || snap.Cooldown != 60 {
		t.Errorf("State = %v Editing = %v Cooldown = %d", snap.State, snap.Editing, snap.Cooldown)
	}
	if snap.MobileNumber != "+919123456780" {
		t.Errorf("MobileNumber = %q", snap.MobileNumber)
	}
}

func TestCountryPicker(t *testing.T) {
	h := newHarness(t, Options{})
	h.ctrl.OpenCountryPicker()
	if !h.ctrl.Snapshot().PickerOpen {
		t.Fatal("PickerOpen = false after open")
	}

	got := h.ctrl.SearchCountries("ind")
	if len(got) != 2 || got[0].Code != "IN" || got[1].Code != "ID" {
		t.Errorf("SearchCountries(ind) = %v, want India and Indonesia", got)
	}
	if h.ctrl.Snapshot().PickerQuery != "ind" {
		t.Errorf("PickerQuery = %q", h.ctrl.Snapshot().PickerQuery)
	}
	h.ctrl.CloseCountryPicker()
	if snap := h.ctrl.Snapshot(); snap.PickerOpen || snap.SelectedCountry == nil || snap.SelectedCountry.Code != "IN" {
		t.Errorf("after close PickerOpen = %v SelectedCountry = %+v", snap.PickerOpen, snap.SelectedCountry)
	}
	h.ctrl.OpenCountryPicker()
	if got := h.ctrl.SearchCountries(""); len(got) != len(testCountries) {
		t.Errorf("SearchCountries(\"\") len = %d, want %d", len(got), len(testCountries))
	}

	if err := h.ctrl.SelectCountry("id"); err != nil {
		t.Fatalf("SelectCountry() error = %v", err)
	}
	snap := h.ctrl.Snapshot()
	if snap.SelectedCountry == nil || snap.SelectedCountry.DialCode != "+62" {
		t.Errorf("SelectedCountry = %+v, want Indonesia", snap.SelectedCountry)
	}
	if snap.PickerOpen || snap.PickerQuery != "" {
		t.Errorf("picker still open: %v %q", snap.PickerOpen, snap.PickerQuery)
	}

	if err := h.ctrl.SelectCountry("ZZ"); !errors.Is(err, ErrUnknownCountry) {
		t.Errorf("SelectCountry(ZZ) error = %v, want ErrUnknownCountry", err)
	}
	if got := h.ctrl.Snapshot().SelectedCountry; got == nil || got.Code != "ID" {
		t.Errorf("selection changed after unknown code: %+v", got)
	}

	h.ctrl.SetPhoneInput("8123456789")
	h.ctrl.SetTermsAccepted(true)
	h.ctrl.RequestOTP(context.Background())
	if got := h.api.checks(); len(got) != 1 || got[0] != "+628123456789" {
		t.Errorf("checkMobileNumber calls = %v", got)
	}
}

func TestClose_DiscardsInFlightResult(t *testing.T) {
	h := newHarness(t, Options{})
	h.ctrl.SetPhoneInput("9876543210")
	h.ctrl.SetTermsAccepted(true)

	gate := make(chan struct{})
	h.api.setGate(gate)
	done := make(chan error, 1)
	go func() { done <- h.ctrl.RequestOTP(context.Background()) }()
	waitFor(t, "request in flight", func() bool { return len(h.api.checks()) == 1 })

	h.ctrl.Close()
	close(gate)
	if err := <-done; !errors.Is(err, ErrFlowClosed) {
		t.Fatalf("RequestOTP() error = %v, want ErrFlowClosed", err)
	}
	snap := h.ctrl.Snapshot()
	if snap.State != StateEnteringPhone || snap.Cooldown != 0 {
		t.Errorf("State = %v Cooldown = %d after discarded result", snap.State, snap.Cooldown)
	}
	if len(h.notifier.all()) != 0 {
		t.Errorf("notices = %v, want none", h.notifier.all())
	}
}

func TestClose_DuringTokenWriteDiscardsVerification(t *testing.T) {
	store := newBlockingStore()
	h := newHarnessWith(t, &fakeDirectory{countries: testCountries}, store, Options{})
	h.awaitOTP(t)
	before := len(h.notifier.all())

	done := make(chan error, 1)
	go func() { done <- h.fillOTP(t, "123456") }()
	<-store.entered

	h.ctrl.Close()
	close(store.release)
	if err := <-done; !errors.Is(err, ErrFlowClosed) {
		t.Fatalf("verify error = %v, want ErrFlowClosed", err)
	}
	if got := h.ctrl.Snapshot().State; got == StateVerified {
		t.Errorf("State = %v after close during token write", got)
	}
	if got := h.notifier.all(); len(got) != before {
		t.Errorf("notices = %v, want no new notice", got)
	}
	if h.navigator.count() != 0 {
		t.Errorf("navigator called %d times, want 0", h.navigator.count())
	}
}

func TestClose_StopsCooldown(t *testing.T) {
	h := newHarness(t, Options{})
	h.awaitOTP(t)
	h.ctrl.Close()
	if got := h.ctrl.Snapshot().Cooldown; got != 0 {
		t.Errorf("Cooldown = %d after Close, want 0", got)
	}
	if err := h.ctrl.EditOTPSlot(context.Background(), 0, "1"); !errors.Is(err, ErrFlowClosed) {
		t.Errorf("EditOTPSlot() after Close error = %v, want ErrFlowClosed", err)
	}
}
