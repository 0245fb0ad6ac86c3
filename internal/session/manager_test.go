package session

import (
	"errors"
	"io"
	"log"
	"testing"

	"github.com/mt5tools/copier/internal/broker"
	"github.com/mt5tools/copier/internal/config"
)

// fakeClient counts terminal calls and can fail logins on demand.
type fakeClient struct {
	initCalls  int
	loginCalls int
	logins     []uint64
	loginErr   error
	shutdowns  int
}

func (f *fakeClient) Initialize() error { f.initCalls++; return nil }
func (f *fakeClient) Shutdown() error { f.shutdowns++; return nil }
func (f *fakeClient) Login(login uint64, _, _ string) error {
	f.loginCalls++
	if f.loginErr != nil {
		return f.loginErr
	}
	f.logins = append(f.logins, login)
	return nil
}
func (f *fakeClient) Positions() ([]broker.Position, error) { return nil, nil }
func (f *fakeClient) PositionByTicket(uint64) (*broker.Position, error) {
	return nil, broker.ErrPositionNotFound
}
func (f *fakeClient) SymbolInfo(string) (*broker.SymbolInfo, error) { return nil, nil }
func (f *fakeClient) SymbolTick(string) (*broker.Tick, error) { return nil, nil }
func (f *fakeClient) SymbolSelect(string, bool) error         { return nil }
func (f *fakeClient) OrderSend(*broker.OrderRequest) (*broker.OrderResult, error) {
	return nil, nil
}

var _ broker.Client = (*fakeClient)(nil)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

var (
	master = config.Account{Login: 111, Password: "mp", Server: "ms"}
	slave  = config.Account{Login: 222, Password: "sp", Server: "ss"}
)

func TestSwitchTo_InitializesOnce(t *testing.T) {
	client := &fakeClient{}
	m := NewManager(client, testLogger())

	if err := m.SwitchTo(master); err != nil {
		t.Fatal(err)
	}
	if err := m.SwitchTo(slave); err != nil {
		t.Fatal(err)
	}

	if client.initCalls != 1 {
		t.Errorf("Initialize called %d times, want 1", client.initCalls)
	}
}

func TestSwitchTo_NoOpWhenCurrent(t *testing.T) {
	client := &fakeClient{}
	m := NewManager(client, testLogger())

	for i := 0; i < 5; i++ {
		if err := m.SwitchTo(master); err != nil {
			t.Fatal(err)
		}
	}

	if client.loginCalls != 1 {
		t.Errorf("Login called %d times for repeated switches, want 1", client.loginCalls)
	}
	if m.CurrentLogin() != master.Login {
		t.Errorf("CurrentLogin = %d, want %d", m.CurrentLogin(), master.Login)
	}
}

func TestSwitchTo_AlternatingAccounts(t *testing.T) {
	client := &fakeClient{}
	m := NewManager(client, testLogger())

	sequence := []config.Account{master, slave, slave, master, master, slave}
	for _, acct := range sequence {
		if err := m.SwitchTo(acct); err != nil {
			t.Fatal(err)
		}
	}

	want := []uint64{111, 222, 111, 222}
	if len(client.logins) != len(want) {
		t.Fatalf("logins = %v, want %v", client.logins, want)
	}
	for i := range want {
		if client.logins[i] != want[i] {
			t.Fatalf("logins = %v, want %v", client.logins, want)
		}
	}
}

func TestSwitchTo_LoginFailurePreservesCurrent(t *testing.T) {
	client := &fakeClient{}
	m := NewManager(client, testLogger())

	if err := m.SwitchTo(master); err != nil {
		t.Fatal(err)
	}

	client.loginErr = errors.New("invalid account")
	if err := m.SwitchTo(slave); err == nil {
		t.Fatal("expected login error")
	}

	// The terminal still holds the master; the manager must agree, so a
	// retry actually issues the login.
	if m.CurrentLogin() != master.Login {
		t.Errorf("CurrentLogin = %d after failed switch, want %d", m.CurrentLogin(), master.Login)
	}

	client.loginErr = nil
	if err := m.SwitchTo(slave); err != nil {
		t.Fatal(err)
	}
	if m.CurrentLogin() != slave.Login {
		t.Errorf("CurrentLogin = %d after retry, want %d", m.CurrentLogin(), slave.Login)
	}
}

func TestShutdown(t *testing.T) {
	client := &fakeClient{}
	m := NewManager(client, testLogger())

	// Safe before first use.
	m.Shutdown()
	if client.shutdowns != 0 {
		t.Error("Shutdown should be a no-op before initialisation")
	}

	if err := m.SwitchTo(master); err != nil {
		t.Fatal(err)
	}
	m.Shutdown()
	if client.shutdowns != 1 {
		t.Errorf("Shutdown called %d times, want 1", client.shutdowns)
	}
	if m.CurrentLogin() != 0 {
		t.Errorf("CurrentLogin = %d after shutdown, want 0", m.CurrentLogin())
	}
}
