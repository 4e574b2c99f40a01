package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"medichat/internal/model"
	"medichat/internal/repository"
)

// SessionEventWorker drains the session event queue into the session_events
// table. Losing an event only loses audit data; transcripts are written
// synchronously elsewhere.
type SessionEventWorker struct {
	conn      *amqp.Connection
	repo      *repository.EventRepository
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSessionEventWorker(conn *amqp.Connection, repo *repository.EventRepository, queueName string) *SessionEventWorker {
	return &SessionEventWorker{
		conn:      conn,
		repo:      repo,
		queueName: queueName,
	}
}

func (w *SessionEventWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}

				var event model.SessionEvent
				if err := json.Unmarshal(d.Body, &event); err != nil {
					log.Printf("worker decode event failed: %v", err)
					_ = d.Nack(false, false)
					continue
				}

				if err := w.repo.Create(&event); err != nil {
					log.Printf("worker persist event failed: %v", err)
					_ = d.Nack(false, false)
					continue
				}

				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

func (w *SessionEventWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
