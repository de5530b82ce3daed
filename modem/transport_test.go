package modem

import (
	"context"
	"errors"
	"testing"

	"go.bug.st/serial"
	"go.uber.org/mock/gomock"
)

func TestSerialDialer_Dial_EmptyPortName(t *testing.T) {
	dialer := SerialDialer{}

	transport, err := dialer.Dial(context.Background())

	if err == nil {
		t.Fatal("expected error for empty port name")
	}
	if transport != nil {
		t.Error("expected nil transport for empty port name")
	}
	if err.Error() != "modem: serial port name is required" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestSerialDialer_Dial_NilContext(t *testing.T) {
	dialer := SerialDialer{
		PortName: "/dev/ttyUSB2",
	}

	transport, err := dialer.Dial(nil)

	if err == nil {
		t.Fatal("expected error for nil context")
	}
	if transport != nil {
		t.Error("expected nil transport for nil context")
	}
	if err.Error() != "modem: context is nil" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestSerialDialer_Dial_ContextCanceled(t *testing.T) {
	dialer := SerialDialer{
		PortName: "/dev/nonexistent",
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	transport, err := dialer.Dial(ctx)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
	if transport != nil {
		t.Error("expected nil transport for canceled context")
	}
}

func TestSerialDialer_Dial_NonexistentPort(t *testing.T) {
	tests := []struct {
		name   string
		dialer SerialDialer
	}{
		{"Default mode", SerialDialer{PortName: "/dev/nonexistent"}},
		{"Custom baud rate", SerialDialer{PortName: "/dev/nonexistent", BaudRate: 9600}},
		{"Explicit mode", SerialDialer{
			PortName: "/dev/nonexistent",
			Mode: &serial.Mode{
				BaudRate: 115200,
				Parity:   serial.NoParity,
				DataBits: 8,
				StopBits: serial.OneStopBit,
			},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport, err := tt.dialer.Dial(context.Background())

			if err == nil {
				t.Fatal("expected error for non-existent port")
			}
			if transport != nil {
				t.Error("expected nil transport for non-existent port")
			}
		})
	}
}

func TestDialerFunc(t *testing.T) {
	ctrl := gomock.NewController(t)

	mockTransport := NewMockTransport(ctrl)
	dialError := errors.New("dial failed")

	var calls int
	dialer := DialerFunc(func(ctx context.Context) (Transport, error) {
		calls++
		if calls > 1 {
			return nil, dialError
		}
		return mockTransport, nil
	})

	transport, err := dialer.Dial(context.Background())
	if err != nil {
		t.Errorf("unexpected dial error: %v", err)
	}
	if transport != mockTransport {
		t.Error("expected mock transport to be returned")
	}

	transport, err = dialer.Dial(context.Background())
	if !errors.Is(err, dialError) {
		t.Errorf("expected dial error, got: %v", err)
	}
	if transport != nil {
		t.Error("expected nil transport on error")
	}
}

func TestTransportInterface(t *testing.T) {
	ctrl := gomock.NewController(t)

	mockTransport := NewMockTransport(ctrl)
	var _ Transport = mockTransport

	data := []byte("AT\r")
	mockTransport.EXPECT().Write(data).Return(len(data), nil)
	mockTransport.EXPECT().Read(gomock.Any()).Return(4, nil)
	mockTransport.EXPECT().Close().Return(nil)

	n, err := mockTransport.Write(data)
	if err != nil {
		t.Errorf("unexpected write error: %v", err)
	}
	if n != len(data) {
		t.Errorf("expected %d bytes written, got %d", len(data), n)
	}

	buf := make([]byte, 10)
	if n, err = mockTransport.Read(buf); err != nil || n != 4 {
		t.Errorf("expected 4 bytes read, got %d (%v)", n, err)
	}

	if err := mockTransport.Close(); err != nil {
		t.Errorf("unexpected close error: %v", err)
	}
}

func TestFlowControllerInterface(t *testing.T) {
	ctrl := gomock.NewController(t)

	mockFC := NewMockFlowController(ctrl)
	var _ FlowController = mockFC
	var _ FlowController = (*serialTransport)(nil)

	mockFC.EXPECT().SetFlowControl(FlowControl{RTS: true, CTS: true}).Return(nil)

	if err := mockFC.SetFlowControl(FlowControl{RTS: true, CTS: true}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
