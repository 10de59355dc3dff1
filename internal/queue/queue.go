package queue

import (
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
)

// JobQueue is the durable queue that carries job ids from the API
// server to dispatch consumers.
const JobQueue = "reminder_jobs"

// JobMessage is the wire payload: just the job id, everything else is
// read back from the job store by the consumer.
type JobMessage struct {
	JobID int64 `json:"job_id"`
}

// AMQPDispatcher publishes created jobs to RabbitMQ so a separate
// worker process can run their dispatch. Implements
// service.Dispatcher.
type AMQPDispatcher struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	log  zerolog.Logger
}

func NewAMQPDispatcher(url string, log zerolog.Logger) (*AMQPDispatcher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	_, err = ch.QueueDeclare(
		JobQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &AMQPDispatcher{conn: conn, ch: ch, log: log}, nil
}

func (d *AMQPDispatcher) Dispatch(jobID int64) error {
	body, err := json.Marshal(JobMessage{JobID: jobID})
	if err != nil {
		return err
	}
	err = d.ch.Publish(
		"",
		JobQueue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return err
	}
	d.log.Debug().Int64("job_id", jobID).Msg("job published to dispatch queue")
	return nil
}

func (d *AMQPDispatcher) Close() {
	d.ch.Close()
	d.conn.Close()
}

// Consume delivers job ids from the queue to handler until the channel
// closes. A handler error leaves the message requeued once; dispatch
// itself is restart-safe, so a second consumer attempt resumes the job
// rather than re-sending.
func Consume(url string, log zerolog.Logger, handler func(jobID int64) error) error {
	conn, err := amqp.Dial(url)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(JobQueue, true, false, false, false, nil)
	if err != nil {
		return err
	}

	msgs, err := ch.Consume(
		q.Name,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	for d := range msgs {
		var msg JobMessage
		if err := json.Unmarshal(d.Body, &msg); err != nil {
			log.Error().Err(err).Msg("invalid job message, dropping")
			d.Ack(false)
			continue
		}

		if err := handler(msg.JobID); err != nil {
			log.Error().Int64("job_id", msg.JobID).Err(err).Msg("dispatch failed")
			if !d.Redelivered {
				d.Nack(false, true) // requeue once
				continue
			}
		}
		d.Ack(false)
	}
	return nil
}
