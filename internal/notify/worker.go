package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
)

// Worker consumes notification tasks and POSTs them to the platform's push
// webhook.
type Worker struct {
	server     *asynq.Server
	mux        *asynq.ServeMux
	webhookURL string
	httpClient *http.Client
}

func NewWorker(redisAddr, webhookURL string) *Worker {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{
			Concurrency: 5,
			Queues:      map[string]int{Queue: 1, "default": 1},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("notify: task %s failed: %v", task.Type(), err)
			}),
		},
	)

	w := &Worker{
		server:     srv,
		mux:        asynq.NewServeMux(),
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	w.mux.HandleFunc(TaskNewMessage, w.handleNewMessage)
	return w
}

func (w *Worker) handleNewMessage(ctx context.Context, t *asynq.Task) error {
	var p Payload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		// Malformed payload will never succeed; drop instead of retrying.
		log.Printf("notify: drop malformed payload: %v", err)
		return nil
	}

	if w.webhookURL == "" {
		log.Printf("notify: no webhook configured, dropping notification for %s", p.RecipientID)
		return nil
	}

	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook returned %s", resp.Status)
	}
	return nil
}

// Run starts the worker and blocks until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	<-ctx.Done()
	w.server.Shutdown()
	return nil
}
