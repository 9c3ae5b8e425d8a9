package verification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"moment-mint/internal/model"
	"moment-mint/internal/storage"
)

var testCountries = []model.Country{
	{Name: "India", DialCode: "+91", Code: "IN"},
	{Name: "Indonesia", DialCode: "+62", Code: "ID"},
	{Name: "United States", DialCode: "+1", Code: "US"},
}

type fakeDirectory struct {
	countries []model.Country
	err       error
	calls     int
}

func (d *fakeDirectory) ListCountries(ctx context.Context) ([]model.Country, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return append([]model.Country(nil), d.countries...), nil
}

type fakeAPI struct {
	mu          sync.Mutex
	checkCalls  []string
	verifyCalls []string
	checkResp   *model.APIResponse
	checkErr    error
	verifyResp  *model.APIResponse
	verifyErr   error
	// gate, when set, holds every call until it is closed.
	gate chan struct{}
}

func (a *fakeAPI) CheckMobileNumber(ctx context.Context, mobileNumber string) (*model.APIResponse, error) {
	a.mu.Lock()
	a.checkCalls = append(a.checkCalls, mobileNumber)
	gate, resp, err := a.gate, a.checkResp, a.checkErr
	a.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		resp = &model.APIResponse{Status: true}
	}
	return resp, nil
}

func (a *fakeAPI) VerifyOTP(ctx context.Context, mobileNumber, otp string) (*model.APIResponse, error) {
	a.mu.Lock()
	a.verifyCalls = append(a.verifyCalls, mobileNumber+"/"+otp)
	gate, resp, err := a.gate, a.verifyResp, a.verifyErr
	a.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		resp = &model.APIResponse{Status: true, Token: "token-1"}
	}
	return resp, nil
}

func (a *fakeAPI) setGate(g chan struct{}) {
	a.mu.Lock()
	a.gate = g
	a.mu.Unlock()
}

func (a *fakeAPI) checks() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.checkCalls...)
}

func (a *fakeAPI) verifies() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.verifyCalls...)
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (n *recordingNotifier) Notify(notice Notice) {
	n.mu.Lock()
	n.notices = append(n.notices, notice)
	n.mu.Unlock()
}

func (n *recordingNotifier) all() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notice(nil), n.notices...)
}

type recordingNavigator struct {
	mu    sync.Mutex
	calls int
}

func (n *recordingNavigator) ReplaceWithAuthenticatedRoot() {
	n.mu.Lock()
	n.calls++
	n.mu.Unlock()
}

func (n *recordingNavigator) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

type failingStore struct{}

func (failingStore) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, errors.New("disk unavailable")
}
func (failingStore) Set(ctx context.Context, key, value string) error {
	return errors.New("disk unavailable")
}
func (failingStore) Delete(ctx context.Context, key string) error {
	return errors.New("disk unavailable")
}

// blockingStore holds Set until release is closed.
type blockingStore struct {
	storage.Store
	entered chan struct{}
	release chan struct{}
}

func newBlockingStore() *blockingStore {
	return &blockingStore{Store: storage.NewMemoryStore(), entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (s *blockingStore) Set(ctx context.Context, key, value string) error {
	s.entered <- struct{}{}
	<-s.release
	return s.Store.Set(ctx, key, value)
}

type fakeTicker struct {
	ch      chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.once.Do(func() { close(t.stopped) })
}

// fakeClock hands out tickers that only fire when Tick is called.
type fakeClock struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	t := &fakeTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
	c.mu.Lock()
	c.tickers = append(c.tickers, t)
	c.mu.Unlock()
	return t
}

func (c *fakeClock) latest() *fakeTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tickers) == 0 {
		return nil
	}
	return c.tickers[len(c.tickers)-1]
}

// Tick delivers one second to the most recent ticker.
func (c *fakeClock) Tick(t *testing.T) {
	t.Helper()
	tk := c.latest()
	if tk == nil {
		t.Fatal("no ticker started")
	}
	select {
	case tk.ch <- time.Now():
	case <-tk.stopped:
		t.Fatal("ticker already stopped")
	case <-time.After(2 * time.Second):
		t.Fatal("tick not consumed")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
