package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fundledger/src/model"
)

type fakeRemediator struct {
	calls  int
	accept bool
	err    error
}

func (f *fakeRemediator) TriggerRemediation(_ context.Context, _, _ string) (bool, error) {
	f.calls++
	return f.accept, f.err
}

type fakeClock struct {
	at time.Time
}

func (c *fakeClock) Now() time.Time          { return c.at }
func (c *fakeClock) Advance(d time.Duration) { c.at = c.at.Add(d) }

func testConfig() Config {
	return Config{
		FailureThreshold:    3,
		RollingWindow:       10 * time.Minute,
		RemediationCooldown: 5 * time.Minute,
		VerificationDelay:   time.Minute,
	}
}

func newTestMonitor(remediator Remediator) (*Monitor, *fakeClock) {
	clock := &fakeClock{at: time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC)}
	m := NewMonitor("t1", testConfig(), remediator).WithClock(clock.Now)
	return m, clock
}

func TestWatchdogTriggersExactlyOnce(t *testing.T) {
	remediator := &fakeRemediator{accept: true}
	m, clock := newTestMonitor(remediator)
	ctx := context.Background()
	pollErr := errors.New("dial timeout")

	m.ObserveFailure(ctx, pollErr)
	if got := m.State().Status; got != model.HealthDegraded {
		t.Fatalf("expected degraded after first failure, got %s", got)
	}

	clock.Advance(30 * time.Second)
	m.ObserveFailure(ctx, pollErr)
	if remediator.calls != 0 {
		t.Fatalf("expected no trigger before threshold, got %d calls", remediator.calls)
	}

	clock.Advance(30 * time.Second)
	m.ObserveFailure(ctx, pollErr)
	if remediator.calls != 1 {
		t.Fatalf("expected exactly one trigger after third failure, got %d", remediator.calls)
	}
	if got := m.State().Status; got != model.HealthRemediating {
		t.Fatalf("expected remediating, got %s", got)
	}

	// A fourth failure during the verification wait triggers nothing.
	clock.Advance(10 * time.Second)
	m.ObserveFailure(ctx, pollErr)
	if remediator.calls != 1 {
		t.Fatalf("expected no additional trigger before cooldown, got %d calls", remediator.calls)
	}
}

func TestWatchdogSuccessResetsCounter(t *testing.T) {
	remediator := &fakeRemediator{accept: true}
	m, clock := newTestMonitor(remediator)
	ctx := context.Background()
	pollErr := errors.New("dial timeout")

	m.ObserveFailure(ctx, pollErr)
	m.ObserveFailure(ctx, pollErr)

	clock.Advance(time.Second)
	m.ObserveSuccess(ctx)

	state := m.State()
	if state.Status != model.HealthHealthy {
		t.Fatalf("expected healthy after success, got %s", state.Status)
	}
	if state.ConsecutiveFailures != 0 {
		t.Fatalf("expected failure counter reset, got %d", state.ConsecutiveFailures)
	}

	// The streak starts over: two more failures must not trigger.
	m.ObserveFailure(ctx, pollErr)
	m.ObserveFailure(ctx, pollErr)
	if remediator.calls != 0 {
		t.Fatalf("expected no trigger after reset streak, got %d calls", remediator.calls)
	}
}

func TestRemediationSuccessPathReturnsHealthy(t *testing.T) {
	remediator := &fakeRemediator{accept: true}
	m, clock := newTestMonitor(remediator)
	ctx := context.Background()
	pollErr := errors.New("dial timeout")

	for i := 0; i < 3; i++ {
		m.ObserveFailure(ctx, pollErr)
		clock.Advance(10 * time.Second)
	}
	if got := m.State().Status; got != model.HealthRemediating {
		t.Fatalf("expected remediating, got %s", got)
	}

	clock.Advance(2 * time.Minute)
	m.ObserveSuccess(ctx)
	if got := m.State().Status; got != model.HealthHealthy {
		t.Fatalf("expected healthy after verified recovery, got %s", got)
	}
}

func TestRemediationFailurePathEscalates(t *testing.T) {
	remediator := &fakeRemediator{accept: true}
	m, clock := newTestMonitor(remediator)
	ctx := context.Background()
	pollErr := errors.New("auth rejected")

	for i := 0; i < 3; i++ {
		m.ObserveFailure(ctx, pollErr)
	}

	// Failure before the verification delay elapses does not escalate.
	clock.Advance(30 * time.Second)
	m.ObserveFailure(ctx, pollErr)
	if got := m.State().Status; got != model.HealthRemediating {
		t.Fatalf("expected still remediating inside verification delay, got %s", got)
	}

	// Once the delay is up, a failing verification poll escalates.
	clock.Advance(time.Minute)
	m.ObserveFailure(ctx, pollErr)
	if got := m.State().Status; got != model.HealthEscalated {
		t.Fatalf("expected escalated, got %s", got)
	}

	// Escalated halts automatic remediation entirely.
	clock.Advance(time.Hour)
	for i := 0; i < 5; i++ {
		m.ObserveFailure(ctx, pollErr)
	}
	if remediator.calls != 1 {
		t.Fatalf("expected no further remediation while escalated, got %d calls", remediator.calls)
	}

	// Even a successful poll does not leave escalation on its own.
	m.ObserveSuccess(ctx)
	if got := m.State().Status; got != model.HealthEscalated {
		t.Fatalf("expected escalated to stick until manual reset, got %s", got)
	}

	m.Reset()
	if got := m.State().Status; got != model.HealthHealthy {
		t.Fatalf("expected healthy after manual reset, got %s", got)
	}
}

func TestRejectedTriggerKeepsDegraded(t *testing.T) {
	remediator := &fakeRemediator{accept: false}
	m, _ := newTestMonitor(remediator)
	ctx := context.Background()
	pollErr := errors.New("dial timeout")

	for i := 0; i < 3; i++ {
		m.ObserveFailure(ctx, pollErr)
	}

	if got := m.State().Status; got != model.HealthDegraded {
		t.Fatalf("expected degraded after rejected trigger, got %s", got)
	}
	if remediator.calls != 1 {
		t.Fatalf("expected one attempted trigger, got %d", remediator.calls)
	}
}

func TestSetKeepsGroupsIndependent(t *testing.T) {
	set := NewSet(testConfig(), &fakeRemediator{accept: true})
	ctx := context.Background()

	set.Monitor("t1").ObserveFailure(ctx, errors.New("down"))
	set.Monitor("t2").ObserveSuccess(ctx)

	states := set.States()
	if len(states) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(states))
	}
	if states[0].Group != "t1" || states[0].Status != model.HealthDegraded {
		t.Fatalf("unexpected t1 state: %+v", states[0])
	}
	if states[1].Group != "t2" || states[1].Status != model.HealthHealthy {
		t.Fatalf("unexpected t2 state: %+v", states[1])
	}

	if err := set.Reset("nope"); err == nil {
		t.Fatal("expected error resetting unknown group")
	}
}

func TestHTTPRemediatorStatusMapping(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	remediator := NewHTTPRemediator(server.URL)
	accepted, err := remediator.TriggerRemediation(context.Background(), "t1", "poll failure streak")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !accepted {
		t.Fatal("expected accepted for 202")
	}
	if gotPath != "/remediations" {
		t.Fatalf("expected POST /remediations, got %s", gotPath)
	}

	conflict := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer conflict.Close()

	remediator = NewHTTPRemediator(conflict.URL)
	accepted, err = remediator.TriggerRemediation(context.Background(), "t1", "poll failure streak")
	if err != nil {
		t.Fatalf("expected no error for 409, got %v", err)
	}
	if accepted {
		t.Fatal("expected rejected for 409")
	}
}
