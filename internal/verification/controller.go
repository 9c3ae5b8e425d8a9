package verification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"moment-mint/internal/model"
	"moment-mint/internal/storage"
	"moment-mint/internal/util"
)

// State is the position of the flow in its state machine.
type State int

const (
	StateEnteringPhone State = iota
	StateAwaitingOTP
	StateVerified
)

func (s State) String() string {
	switch s {
	case StateEnteringPhone:
		return "entering_phone"
	case StateAwaitingOTP:
		return "awaiting_otp"
	case StateVerified:
		return "verified"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// NoticeKind distinguishes success from error notifications.
type NoticeKind int

const (
	NoticeSuccess NoticeKind = iota + 1
	NoticeError
)

// Notice is one user-facing message.
type Notice struct {
	Kind    NoticeKind
	Message string
}

// CountryDirectory lists the countries offered in the picker.
type CountryDirectory interface {
	ListCountries(ctx context.Context) ([]model.Country, error)
}

// AuthAPI is the backend used to request and verify codes.
type AuthAPI interface {
	CheckMobileNumber(ctx context.Context, mobileNumber string) (*model.APIResponse, error)
	VerifyOTP(ctx context.Context, mobileNumber, otp string) (*model.APIResponse, error)
}

// Notifier shows transient messages to the user.
type Notifier interface {
	Notify(n Notice)
}

// Navigator replaces the current screen once verification succeeds.
type Navigator interface {
	ReplaceWithAuthenticatedRoot()
}

// Dependencies are the collaborators of a Controller. Notifier, Navigator,
// Clock and Logger are optional.
type Dependencies struct {
	Directory CountryDirectory
	API       AuthAPI
	Store     storage.Store
	Notifier  Notifier
	Navigator Navigator
	Clock     Clock
	Logger    *zap.Logger
}

// DefaultResendCooldown is the resend cooldown, in seconds, used when
// Options.ResendCooldown is zero.
const DefaultResendCooldown = 60

// Options tune the flow.
type Options struct {
	PreferredCountry string
	ResendCooldown   int // seconds; zero means DefaultResendCooldown
	TokenKey         string
	// OnCooldownTick is called from the cooldown goroutine after each second.
	OnCooldownTick func(remaining int)
}

// Snapshot is a copy of the controller state for rendering.
type Snapshot struct {
	State           State
	Editing         bool
	PhoneDigits     string
	FormattedPhone  string
	TermsAccepted   bool
	MobileNumber    string
	OTP             [OTPLength]string
	Focus           int
	Cooldown        int
	SelectedCountry *model.Country
	PickerOpen      bool
	PickerQuery     string
	Busy            bool
	CountriesLoaded bool
	LastNotice      Notice
}

// Controller owns the mobile verification flow. All methods are safe for
// concurrent use; network and storage calls run without holding the lock.
type Controller struct {
	directory CountryDirectory
	api       AuthAPI
	store     storage.Store
	notifier  Notifier
	navigator Navigator
	logger    *zap.Logger
	opts      Options
	cooldown  *Cooldown

	mu              sync.Mutex
	state           State
	editing         bool
	digits          string
	terms           bool
	mobile          string
	otp             otpEntry
	countries       []model.Country
	selected        int
	countriesLoaded bool
	pickerOpen      bool
	pickerQuery     string
	busy            bool
	closed          bool
	lastNotice      Notice
}

// NewController validates deps and returns a controller in EnteringPhone.
func NewController(deps Dependencies, opts Options) (*Controller, error) {
	if deps.Directory == nil {
		return nil, errors.New("country directory is required")
	}
	if deps.API == nil {
		return nil, errors.New("auth api is required")
	}
	if deps.Store == nil {
		return nil, errors.New("store is required")
	}
	if opts.ResendCooldown < 0 {
		return nil, fmt.Errorf("resend cooldown must not be negative, got %d", opts.ResendCooldown)
	}
	if opts.ResendCooldown == 0 {
		opts.ResendCooldown = DefaultResendCooldown
	}
	if opts.TokenKey == "" {
		opts.TokenKey = "token"
	}
	if opts.PreferredCountry == "" {
		opts.PreferredCountry = "IN"
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Controller{
		directory: deps.Directory,
		api:       deps.API,
		store:     deps.Store,
		notifier:  deps.Notifier,
		navigator: deps.Navigator,
		logger:    logger,
		opts:      opts,
		cooldown:  NewCooldown(deps.Clock, opts.OnCooldownTick),
		state:     StateEnteringPhone,
		otp:       newOTPEntry(),
		selected:  -1,
	}, nil
}

// Start loads the country list once and selects the preferred country.
// A directory failure leaves the list empty with nothing selected.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrFlowClosed
	}
	if c.countriesLoaded {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	countries, err := c.directory.ListCountries(ctx)
	if err != nil {
		c.logger.Warn("Failed to load countries", zap.Error(err))
		countries = nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.countries = countries
	c.selected = pickDefault(countries, c.opts.PreferredCountry)
	c.countriesLoaded = true
	c.logger.Debug("Countries loaded", zap.Int("count", len(countries)))
	return nil
}

// SetPhoneInput keeps at most ten digits of raw and returns the stored
// digits and their display form.
func (c *Controller) SetPhoneInput(raw string) (string, string, error) {
	c.mu.Lock()
	if err := c.checkLocked(StateEnteringPhone); err != nil {
		c.mu.Unlock()
		return "", "", c.report(err)
	}
	c.digits = util.DigitsOnly(raw, 10)
	digits := c.digits
	c.mu.Unlock()
	return digits, util.FormatPhone(digits), nil
}

// SetTermsAccepted records the terms checkbox.
func (c *Controller) SetTermsAccepted(accepted bool) error {
	c.mu.Lock()
	if err := c.checkLocked(StateEnteringPhone); err != nil {
		c.mu.Unlock()
		return c.report(err)
	}
	c.terms = accepted
	c.mu.Unlock()
	return nil
}

// RequestOTP validates the phone form and asks the backend to send a code.
func (c *Controller) RequestOTP(ctx context.Context) error {
	c.mu.Lock()
	if err := c.checkLocked(StateEnteringPhone); err != nil {
		c.mu.Unlock()
		return c.report(err)
	}
	var invalid error
	switch {
	case !util.IsPhoneDigits(c.digits):
		invalid = ErrInvalidPhone
	case !c.terms:
		invalid = ErrTermsNotAccepted
	case c.selected < 0:
		invalid = ErrNoCountry
	}
	if invalid != nil {
		c.mu.Unlock()
		return c.report(validationError(invalid))
	}
	mobile := c.countries[c.selected].DialCode + c.digits
	c.busy = true
	c.mu.Unlock()

	return c.sendCode(ctx, mobile, false)
}

// EditNumber returns from AwaitingOtp to the phone form, keeping the digits.
func (c *Controller) EditNumber() error {
	c.mu.Lock()
	if err := c.checkLocked(StateAwaitingOTP); err != nil {
		c.mu.Unlock()
		return c.report(err)
	}
	c.state = StateEnteringPhone
	c.editing = true
	c.otp.clear()
	c.cooldown.Stop()
	c.mu.Unlock()
	return nil
}

// SaveNumber requests a code for the number changed through EditNumber.
func (c *Controller) SaveNumber(ctx context.Context) error {
	c.mu.Lock()
	editing := c.editing
	c.mu.Unlock()
	if !editing {
		return c.report(validationError(ErrInvalidState))
	}
	return c.RequestOTP(ctx)
}

// EditOTPSlot sets slot index to value, which must be empty or one digit.
// Filling the last empty slot submits the code.
func (c *Controller) EditOTPSlot(ctx context.Context, index int, value string) error {
	c.mu.Lock()
	if err := c.slotCheckLocked(index); err != nil {
		c.mu.Unlock()
		return c.report(err)
	}
	if value != "" && !util.IsDigit(value) {
		c.mu.Unlock()
		return c.report(validationError(ErrInvalidDigit))
	}
	c.otp.set(index, value)
	if !c.otp.complete() || c.busy {
		c.mu.Unlock()
		return nil
	}
	mobile, code := c.mobile, c.otp.code()
	c.busy = true
	c.mu.Unlock()

	return c.verify(ctx, mobile, code)
}

// Backspace on an empty slot clears and focuses the previous one.
func (c *Controller) Backspace(_ context.Context, index int) error {
	c.mu.Lock()
	if err := c.slotCheckLocked(index); err != nil {
		c.mu.Unlock()
		return c.report(err)
	}
	c.otp.backspace(index)
	c.mu.Unlock()
	return nil
}

// SubmitOTP verifies the entered code.
func (c *Controller) SubmitOTP(ctx context.Context) error {
	c.mu.Lock()
	if err := c.checkLocked(StateAwaitingOTP); err != nil {
		c.mu.Unlock()
		return c.report(err)
	}
	code := c.otp.code()
	if !util.IsOTPCode(code) {
		c.mu.Unlock()
		return c.report(validationError(ErrInvalidOTP))
	}
	mobile := c.mobile
	c.busy = true
	c.mu.Unlock()

	return c.verify(ctx, mobile, code)
}

// ResendOTP requests a new code for the current number once the cooldown
// has run out.
func (c *Controller) ResendOTP(ctx context.Context) error {
	c.mu.Lock()
	if err := c.checkLocked(StateAwaitingOTP); err != nil {
		c.mu.Unlock()
		return c.report(err)
	}
	if c.cooldown.Remaining() > 0 {
		c.mu.Unlock()
		return c.report(validationError(ErrCooldownActive))
	}
	mobile := c.mobile
	c.busy = true
	c.mu.Unlock()

	return c.sendCode(ctx, mobile, true)
}

// Countries returns the loaded directory.
func (c *Controller) Countries() []model.Country {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Country(nil), c.countries...)
}

// OpenCountryPicker opens the picker with an empty search.
func (c *Controller) OpenCountryPicker() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pickerOpen = true
	c.pickerQuery = ""
}

// CloseCountryPicker dismisses the picker without changing the selection.
func (c *Controller) CloseCountryPicker() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pickerOpen = false
	c.pickerQuery = ""
}

// SearchCountries filters the directory by name and remembers the query.
func (c *Controller) SearchCountries(query string) []model.Country {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pickerQuery = query
	return FilterCountries(c.countries, query)
}

// SelectCountry selects the country with the given ISO code and closes the
// picker.
func (c *Controller) SelectCountry(code string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrFlowClosed
	}
	i := indexOfCountry(c.countries, code)
	if i < 0 {
		c.mu.Unlock()
		return c.report(validationError(ErrUnknownCountry))
	}
	c.selected = i
	c.pickerOpen = false
	c.pickerQuery = ""
	c.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		State:           c.state,
		Editing:         c.editing,
		PhoneDigits:     c.digits,
		FormattedPhone:  util.FormatPhone(c.digits),
		TermsAccepted:   c.terms,
		MobileNumber:    c.mobile,
		OTP:             c.otp.slots,
		Focus:           c.otp.focus,
		Cooldown:        c.cooldown.Remaining(),
		PickerOpen:      c.pickerOpen,
		PickerQuery:     c.pickerQuery,
		Busy:            c.busy,
		CountriesLoaded: c.countriesLoaded,
		LastNotice:      c.lastNotice,
	}
	if c.selected >= 0 {
		country := c.countries[c.selected]
		s.SelectedCountry = &country
	}
	return s
}

// Close stops the cooldown. Requests still in flight complete but their
// results are discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cooldown.Stop()
}

func (c *Controller) sendCode(ctx context.Context, mobile string, resend bool) error {
	rejectedMsg, failedMsg, okMsg := msgRequestFailed, msgRequestFailed, msgOTPSent
	if resend {
		rejectedMsg, failedMsg, okMsg = msgResendRejected, msgResendFailed, msgResent
	}

	resp, err := c.api.CheckMobileNumber(ctx, mobile)

	c.mu.Lock()
	c.busy = false
	if c.closed {
		c.mu.Unlock()
		c.logger.Debug("Discarding OTP request result after close", zap.String("mobile", util.MaskPhone(mobile)))
		return ErrFlowClosed
	}
	if err != nil {
		c.mu.Unlock()
		c.logger.Warn("OTP request failed", zap.String("mobile", util.MaskPhone(mobile)), zap.Bool("resend", resend), zap.Error(err))
		return c.report(networkFailure(failedMsg, err))
	}
	if !resp.Status {
		c.mu.Unlock()
		c.logger.Info("OTP request rejected", zap.String("mobile", util.MaskPhone(mobile)), zap.String("message", resp.Message))
		return c.report(rejection(resp.Message, rejectedMsg))
	}

	c.state = StateAwaitingOTP
	c.editing = false
	c.mobile = mobile
	c.otp.reset()
	c.cooldown.Start(c.opts.ResendCooldown)
	c.mu.Unlock()

	message := okMsg
	if !resend && resp.Message != "" {
		message = resp.Message
	}
	c.logger.Info("OTP requested", zap.String("mobile", util.MaskPhone(mobile)), zap.Bool("resend", resend))
	c.notify(Notice{Kind: NoticeSuccess, Message: message})
	return nil
}

func (c *Controller) verify(ctx context.Context, mobile, code string) error {
	resp, err := c.api.VerifyOTP(ctx, mobile, code)

	c.mu.Lock()
	if c.closed {
		c.busy = false
		c.mu.Unlock()
		c.logger.Debug("Discarding OTP verification result after close", zap.String("mobile", util.MaskPhone(mobile)))
		return ErrFlowClosed
	}
	if err != nil || !resp.Status {
		c.busy = false
		c.otp.reset()
		c.mu.Unlock()
		if err != nil {
			c.logger.Warn("OTP verification failed", zap.String("mobile", util.MaskPhone(mobile)), zap.Error(err))
			return c.report(networkFailure(msgVerifyFailed, err))
		}
		c.logger.Info("OTP rejected", zap.String("mobile", util.MaskPhone(mobile)), zap.String("message", resp.Message))
		return c.report(rejection(resp.Message, msgVerifyRejected))
	}
	c.mu.Unlock()

	c.persistToken(ctx, resp.Token)

	c.mu.Lock()
	c.busy = false
	if c.closed {
		c.mu.Unlock()
		c.logger.Debug("Discarding OTP verification result after close", zap.String("mobile", util.MaskPhone(mobile)))
		return ErrFlowClosed
	}
	c.state = StateVerified
	c.cooldown.Stop()
	c.mu.Unlock()

	c.logger.Info("Mobile number verified", zap.String("mobile", util.MaskPhone(mobile)))
	message := resp.Message
	if message == "" {
		message = msgVerified
	}
	c.notify(Notice{Kind: NoticeSuccess, Message: message})
	if c.navigator != nil {
		c.navigator.ReplaceWithAuthenticatedRoot()
	}
	return nil
}

// persistToken stores the session token. Failures are logged as storage
// inconsistencies and do not undo the verification.
func (c *Controller) persistToken(ctx context.Context, token string) {
	token = strings.TrimSpace(token)
	if token == "" {
		fe := &FlowError{Kind: KindStorageInconsistency, Message: msgStorageFailed, Err: ErrMissingToken}
		c.logger.Error("Verified without session token", zap.Error(fe))
		return
	}
	if err := c.store.Set(ctx, c.opts.TokenKey, token); err != nil {
		fe := &FlowError{Kind: KindStorageInconsistency, Message: msgStorageFailed, Err: err}
		c.logger.Error("Failed to persist session token", zap.String("key", c.opts.TokenKey), zap.Error(fe))
	}
}

// checkLocked applies the guards shared by every mutating operation.
func (c *Controller) checkLocked(want State) *FlowError {
	if c.closed {
		return &FlowError{Kind: KindValidation, Message: msgInvalidState, Err: ErrFlowClosed}
	}
	if c.busy {
		return validationError(ErrRequestInFlight)
	}
	if c.state != want {
		return validationError(ErrInvalidState)
	}
	return nil
}

// slotCheckLocked guards slot edits. Edits are allowed while a request is
// in flight; auto-submit is not.
func (c *Controller) slotCheckLocked(index int) *FlowError {
	if c.closed {
		return &FlowError{Kind: KindValidation, Message: msgInvalidState, Err: ErrFlowClosed}
	}
	if c.state != StateAwaitingOTP {
		return validationError(ErrInvalidState)
	}
	if index < 0 || index >= OTPLength {
		return validationError(ErrSlotIndex)
	}
	return nil
}

// report records and shows fe. It must be called without c.mu held.
func (c *Controller) report(fe *FlowError) error {
	n := Notice{Kind: NoticeError, Message: fe.Message}
	c.mu.Lock()
	c.lastNotice = n
	c.mu.Unlock()
	if c.notifier != nil {
		c.notifier.Notify(n)
	}
	return fe
}

func (c *Controller) notify(n Notice) {
	c.mu.Lock()
	c.lastNotice = n
	c.mu.Unlock()
	if c.notifier != nil {
		c.notifier.Notify(n)
	}
}
