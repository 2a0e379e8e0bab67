package comm

import "strings"

const (
	SuffixStatus  = "/card/status"
	SuffixBalance = "/card/balance"
	SuffixTopup   = "/card/topup"
)

// Handler receives one raw hardware message.
type Handler func(topic string, payload []byte)

// Channel is the hardware-facing publish/subscribe link. Topics are always
// expressed in slash form (rfid/<team>/card/status); transports translate.
type Channel interface {
	Subscribe(topic string, handler Handler) error
	Publish(topic string, payload []byte) error
	Close()
}

type Topics struct {
	Status  string
	Balance string
	Topup   string
}

func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	return Topics{
		Status:  prefix + SuffixStatus,
		Balance: prefix + SuffixBalance,
		Topup:   prefix + SuffixTopup,
	}
}
