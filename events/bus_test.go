package events

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"matchwire/domain"
)

func Test_Emit_InvokesHandlersInRegistrationOrder(t *testing.T) {
	req := require.New(t)
	bus := NewBus(slog.Default())

	var order []string
	bus.Subscribe(func(domain.NotificationEvent) { order = append(order, "first") })
	bus.Subscribe(func(domain.NotificationEvent) { order = append(order, "second") })
	bus.Subscribe(func(domain.NotificationEvent) { order = append(order, "third") })

	bus.Emit(domain.NotificationEvent{AccountID: "acc-1", Type: domain.EventNewMessage})

	req.Equal([]string{"first", "second", "third"}, order)
}

func Test_Emit_WithoutSubscribersIsANoOp(t *testing.T) {
	bus := NewBus(slog.Default())
	bus.Emit(domain.NotificationEvent{AccountID: "acc-1", Type: domain.EventProfileView})
}

func Test_Emit_EverySubscriberSeesEveryEvent(t *testing.T) {
	req := require.New(t)
	bus := NewBus(slog.Default())

	countA, countB := 0, 0
	bus.Subscribe(func(domain.NotificationEvent) { countA++ })
	bus.Subscribe(func(domain.NotificationEvent) { countB++ })

	for i := 0; i < 4; i++ {
		bus.Emit(domain.NotificationEvent{AccountID: "acc-1", Type: domain.EventNewMessage})
	}

	req.Equal(4, countA)
	req.Equal(4, countB)
}
