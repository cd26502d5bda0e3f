package notifications

import (
	"encoding/json"
	"log"
	"time"

	"storefront/pkg/rabbitmq"

	amqp "github.com/streadway/amqp"
)

// Notifier delivers a message to a user. Implementations are fire-and-forget
// collaborators: callers log failures but never propagate them.
type Notifier interface {
	Send(toAddress, subject, body string) error
}

// Message is the payload queued for the notification worker.
type Message struct {
	To       string    `json:"to"`
	Subject  string    `json:"subject"`
	Body     string    `json:"body"`
	QueuedAt time.Time `json:"queued_at"`
}

// MQNotifier queues notifications on RabbitMQ so a slow mail provider can
// never block the request path.
type MQNotifier struct {
	mq *rabbitmq.Client
}

// NewMQNotifier creates a notifier backed by the given RabbitMQ client.
func NewMQNotifier(mq *rabbitmq.Client) *MQNotifier {
	return &MQNotifier{mq: mq}
}

// Send enqueues the message on the notifications queue.
func (n *MQNotifier) Send(toAddress, subject, body string) error {
	return n.mq.PublishJSON(rabbitmq.NotificationsQueue, Message{
		To:       toAddress,
		Subject:  subject,
		Body:     body,
		QueuedAt: time.Now(),
	})
}

// LogNotifier writes notifications to the process log. Used when no broker is
// configured (local runs and tests).
type LogNotifier struct{}

// Send logs the message.
func (n *LogNotifier) Send(toAddress, subject, body string) error {
	log.Printf("notification to=%s subject=%q body=%q", toAddress, subject, body)
	return nil
}

// RunWorker consumes the notifications queue and delivers each message. The
// actual mail/SMS provider integration lives behind this handler; for now
// delivery is a log line, which is enough for the worker's ack/nack flow.
func RunWorker(mq *rabbitmq.Client) error {
	return mq.Consume(rabbitmq.NotificationsQueue, func(msg amqp.Delivery) error {
		var m Message
		if err := json.Unmarshal(msg.Body, &m); err != nil {
			log.Printf("Dropping malformed notification %d: %v", msg.DeliveryTag, err)
			return nil // malformed payloads are acked, not requeued forever
		}
		log.Printf("delivering notification to=%s subject=%q", m.To, m.Subject)
		return nil
	})
}
