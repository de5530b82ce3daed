package modem_test

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	gomock "go.uber.org/mock/gomock"

	"i4.energy/across/simgw/modem"
)

// reply frames lines the way the SIM5320 does: each one surrounded by CRLF.
func reply(lines ...string) string {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString("\r\n" + l + "\r\n")
	}
	return b.String()
}

func repeat(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}

// ScriptBuilder scripts the bring-up exchanges on a FakeModem.
type ScriptBuilder struct {
	fake *modem.FakeModem
}

func NewScript(fake *modem.FakeModem) *ScriptBuilder {
	return &ScriptBuilder{fake: fake}
}

func (b *ScriptBuilder) AT() *ScriptBuilder {
	b.fake.On("AT", reply("OK"))
	return b
}

func (b *ScriptBuilder) EchoOff() *ScriptBuilder {
	b.fake.On("ATE0", reply("OK"))
	return b
}

func (b *ScriptBuilder) Model(model string) *ScriptBuilder {
	b.fake.On("AT+CGMM", reply(model, "OK"))
	return b
}

func (b *ScriptBuilder) LowPower() *ScriptBuilder {
	b.fake.On("AT+CFUN=0", reply("OK"))
	return b
}

// GPSConfigure accepts the GPS configuration for the default settings.
func (b *ScriptBuilder) GPSConfigure() *ScriptBuilder {
	for _, cmd := range gpsConfigureCommands {
		b.fake.On(cmd, reply("OK"))
	}
	return b
}

func (b *ScriptBuilder) Build() *modem.FakeModem {
	return b.fake
}

var gpsConfigureCommands = []string{
	"AT+CGPS=0",
	`AT+CGPSURL="supl.google.com:7276"`,
	"AT+CGPSSSL=0",
	"AT+CGPSAUTO=0",
	"AT+CGPSPMD=127",
	"AT+CGPSMSB=1",
}

// testConfig returns a builder dialing fake with policies short enough for
// tests.
func testConfig(fake *modem.FakeModem) *modem.ConfigBuilder {
	return modem.NewConfigBuilder().
		WithDialer(modem.DialerFunc(func(context.Context) (modem.Transport, error) {
			return fake, nil
		})).
		WithATTimeout(time.Second).
		WithResetPolicy(modem.PollConfig{Interval: 50 * time.Millisecond, MaxRetries: 10}).
		WithAttachPolicy(
			modem.PollConfig{Interval: time.Millisecond, MaxRetries: 10},
			modem.PollConfig{Interval: time.Millisecond, MaxRetries: 30},
		)
}

func newTestModem(t *testing.T, builder *modem.ConfigBuilder) *modem.Modem {
	t.Helper()

	config, err := builder.Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}
	m, err := modem.New(context.Background(), config)
	if err != nil {
		t.Fatalf("unexpected error from New(): %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func newTestEngine(t *testing.T, fake *modem.FakeModem, builder *modem.ConfigBuilder) *modem.Engine {
	t.Helper()

	config, err := builder.Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}
	e, err := modem.NewEngine(fake, config)
	if err != nil {
		t.Fatalf("unexpected error from NewEngine(): %v", err)
	}
	t.Cleanup(func() {
		e.Close()
		fake.Close()
	})
	return e
}

// blockingTransport returns a mock whose reads block until release is
// called, as an idle serial port would.
func blockingTransport(t *testing.T, ctrl *gomock.Controller) (*modem.MockTransport, func()) {
	mockTransport := modem.NewMockTransport(ctrl)

	done := make(chan struct{})
	var once sync.Once
	release := func() { once.Do(func() { close(done) }) }
	t.Cleanup(release)

	mockTransport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
		<-done
		return 0, io.EOF
	}).AnyTimes()

	return mockTransport, release
}
