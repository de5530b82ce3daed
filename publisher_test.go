package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/mock/gomock"

	"i4.energy/across/simgw/modem"
)

// doneToken is an mqtt.Token that has already completed.
type doneToken struct {
	err     error
	pending bool
}

func (t *doneToken) Wait() bool                     { return !t.pending }
func (t *doneToken) WaitTimeout(time.Duration) bool { return !t.pending }
func (t *doneToken) Error() error                   { return t.err }

func (t *doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !t.pending {
		close(ch)
	}
	return ch
}

func newTestPublisher(ctrl *gomock.Controller) (*Publisher, *MockFixSource, *MockBroker) {
	source := NewMockFixSource(ctrl)
	broker := NewMockBroker(ctrl)
	return &Publisher{
		Logger:   slog.New(slog.DiscardHandler),
		Source:   source,
		Broker:   broker,
		Topic:    "simgw/fix",
		Interval: time.Millisecond,
	}, source, broker
}

func TestPublisherPublishOnce(t *testing.T) {
	ctx := context.Background()
	fix := modem.Coord{
		Latitude:  31.222388,
		Longitude: 121.353901,
		Altitude:  44.1,
		Time:      time.Date(2011, time.March, 25, 7, 28, 9, 300_000_000, time.UTC),
	}

	t.Run("Fix is published as JSON", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		publisher, source, broker := newTestPublisher(ctrl)

		source.EXPECT().Coord(gomock.Any()).Return(fix, true, nil)
		broker.EXPECT().Publish("simgw/fix", byte(0), false, gomock.Any()).
			DoAndReturn(func(_ string, _ byte, _ bool, payload any) mqtt.Token {
				var got modem.Coord
				if err := json.Unmarshal(payload.([]byte), &got); err != nil {
					t.Errorf("payload is not JSON: %v", err)
				}
				if !got.Time.Equal(fix.Time) || got.Latitude != fix.Latitude {
					t.Errorf("expected %+v, got %+v", fix, got)
				}
				return &doneToken{}
			})

		published, err := publisher.PublishOnce(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !published {
			t.Error("expected the fix to be published")
		}
	})

	t.Run("Configured QoS is used", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		publisher, source, broker := newTestPublisher(ctrl)
		publisher.QoS = 1

		source.EXPECT().Coord(gomock.Any()).Return(fix, true, nil)
		broker.EXPECT().Publish("simgw/fix", byte(1), false, gomock.Any()).Return(&doneToken{})

		if _, err := publisher.PublishOnce(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("No fix publishes nothing", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		publisher, source, _ := newTestPublisher(ctrl)

		source.EXPECT().Coord(gomock.Any()).Return(modem.Coord{}, false, nil)

		published, err := publisher.PublishOnce(ctx)
		if err != nil || published {
			t.Errorf("expected nothing published without error, got %v (%v)", published, err)
		}
	})

	t.Run("Modem failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		publisher, source, _ := newTestPublisher(ctrl)

		source.EXPECT().Coord(gomock.Any()).Return(modem.Coord{}, false, modem.ErrTransport)

		if _, err := publisher.PublishOnce(ctx); !errors.Is(err, modem.ErrTransport) {
			t.Errorf("expected ErrTransport, got: %v", err)
		}
	})

	t.Run("Broker failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		publisher, source, broker := newTestPublisher(ctrl)
		brokerErr := errors.New("not connected")

		source.EXPECT().Coord(gomock.Any()).Return(fix, true, nil)
		broker.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(&doneToken{err: brokerErr})

		if _, err := publisher.PublishOnce(ctx); !errors.Is(err, brokerErr) {
			t.Errorf("expected broker error, got: %v", err)
		}
	})

	t.Run("Broker does not acknowledge", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		publisher, source, broker := newTestPublisher(ctrl)

		source.EXPECT().Coord(gomock.Any()).Return(fix, true, nil)
		broker.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(&doneToken{pending: true})

		if _, err := publisher.PublishOnce(ctx); err == nil {
			t.Error("expected an error for an unacknowledged publish")
		}
	})
}

func TestPublisherRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	publisher, source, broker := newTestPublisher(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	polls := 0
	source.EXPECT().Coord(gomock.Any()).DoAndReturn(func(context.Context) (modem.Coord, bool, error) {
		polls++
		switch polls {
		case 1:
			return modem.Coord{}, false, modem.ErrMismatch
		case 2:
			return modem.Coord{}, false, nil
		default:
			cancel()
			return modem.Coord{Latitude: 1}, true, nil
		}
	}).MinTimes(3)
	broker.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&doneToken{}).MinTimes(1)

	done := make(chan error, 1)
	go func() { done <- publisher.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean stop, got: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("publisher did not stop")
	}
}
