package captions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSAPI is the subset of *sqs.Client used by the dispatcher and worker.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type message struct {
	AssetID string `json:"assetId"`
}

type Dispatcher interface {
	Dispatch(assetID string)
}

// SQSDispatcher enqueues jobs for cmd/worker. Sends happen off the
// caller's goroutine; if one fails the job runs on the fallback dispatcher.
type SQSDispatcher struct {
	client   SQSAPI
	queueURL string
	fallback Dispatcher
	timeout  time.Duration
	logger   *slog.Logger

	inflight sync.WaitGroup
}

var _ Dispatcher = (*SQSDispatcher)(nil)
var _ Dispatcher = (*Pool)(nil)

func NewSQSDispatcher(client SQSAPI, queueURL string, fallback Dispatcher) *SQSDispatcher {
	return &SQSDispatcher{
		client:   client,
		queueURL: queueURL,
		fallback: fallback,
		timeout:  5 * time.Second,
		logger:   slog.With("component", "caption-dispatch"),
	}
}

func (d *SQSDispatcher) Dispatch(assetID string) {
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		d.send(assetID)
	}()
}

// Close waits for in-flight sends (and their fallbacks) to finish.
func (d *SQSDispatcher) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *SQSDispatcher) send(assetID string) {
	body, err := json.Marshal(message{AssetID: assetID})
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		_, err = d.client.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(d.queueURL),
			MessageBody: aws.String(string(body)),
		})
		if err == nil {
			d.logger.Info("caption job enqueued", "asset_id", assetID)
			return
		}
	}

	d.logger.Error("failed to send SQS message, running in process", "asset_id", assetID, "error", err)
	d.fallback.Dispatch(assetID)
}

// Worker consumes caption jobs from SQS. Messages are deleted after every
// outcome since the job is best-effort; malformed messages are deleted too.
type Worker struct {
	client      SQSAPI
	queueURL    string
	runner      Runner
	jobTimeout  time.Duration
	waitSeconds int32
	logger      *slog.Logger
}

func NewWorker(client SQSAPI, queueURL string, runner Runner, jobTimeout time.Duration) *Worker {
	return &Worker{
		client:      client,
		queueURL:    queueURL,
		runner:      runner,
		jobTimeout:  jobTimeout,
		waitSeconds: 20,
		logger:      slog.With("component", "caption-worker"),
	}
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		n, err := w.Poll(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			w.logger.Error("receive message error", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(5 * time.Second):
			}
			continue
		}
		if n > 0 {
			w.logger.Debug("processed batch", "messages", n)
		}
	}
}

// Poll receives one batch, runs each job and returns how many messages were handled.
func (w *Worker) Poll(ctx context.Context) (int, error) {
	out, err := w.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(w.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     w.waitSeconds,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to receive messages: %w", err)
	}

	for _, m := range out.Messages {
		w.handle(ctx, m)
	}
	return len(out.Messages), nil
}

func (w *Worker) handle(ctx context.Context, m types.Message) {
	defer w.delete(m)

	var payload message
	if err := json.Unmarshal([]byte(aws.ToString(m.Body)), &payload); err != nil || payload.AssetID == "" {
		w.logger.Error("invalid message body", "message_id", aws.ToString(m.MessageId), "error", err)
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	outcome := w.runner.Run(jobCtx, payload.AssetID)
	w.logger.Info("caption job finished", "asset_id", payload.AssetID, "outcome", outcome)
}

func (w *Worker) delete(m types.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := w.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(w.queueURL),
		ReceiptHandle: m.ReceiptHandle,
	}); err != nil {
		w.logger.Error("failed to delete message", "message_id", aws.ToString(m.MessageId), "error", err)
	}
}
