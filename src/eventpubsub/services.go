package eventpubsub

import (
	"fmt"
	"sync"

	"github.com/asaskevich/EventBus"
	log "github.com/sirupsen/logrus"
)

var (
	bus  EventBus.Bus
	once sync.Once
)

// Init creates the process-wide bus. Calling it more than once is a no-op.
func Init() {
	once.Do(func() {
		bus = EventBus.New()
	})
}

func Publish(publisherName string, topic EventName, event interface{}) {
	if bus == nil {
		log.Warnf("[%v] event bus not initialised, dropping %s", publisherName, topic)
		return
	}

	log.Debugf("[%v] Published to topic %s", publisherName, topic)
	bus.Publish(string(topic), event)
}

// Subscribe registers callbackFn to run asynchronously for every event on topic.
func Subscribe(subscriberName string, topic EventName, callbackFn interface{}) error {
	if bus == nil {
		return fmt.Errorf("[%v] event bus not initialised", subscriberName)
	}

	if err := bus.SubscribeAsync(string(topic), callbackFn, false); err != nil {
		return fmt.Errorf("[%v] failed to subscribe to %s: %w", subscriberName, topic, err)
	}

	log.Infof("[%v] Subscribed to topic %s", subscriberName, topic)
	return nil
}

func Unsubscribe(topic EventName, callbackFn interface{}) error {
	if bus == nil {
		return nil
	}

	return bus.Unsubscribe(string(topic), callbackFn)
}

// Wait blocks until every asynchronous callback has returned.
func Wait() {
	if bus == nil {
		return
	}

	bus.WaitAsync()
}
