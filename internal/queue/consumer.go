package queue

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"
)

const (
	defaultWaitSeconds = 20
	defaultMaxMessages = 10
	defaultBackoff     = 5 * time.Second
)

// Handler processes one message body. A nil error deletes the message; any
// error leaves it for redelivery once its visibility timeout expires.
type Handler func(ctx context.Context, body string) error

type Consumer struct {
	api         API
	queueURL    string
	log         *zap.SugaredLogger
	waitSeconds int32
	maxMessages int32
	backoff     time.Duration
}

type ConsumerOpts func(c *Consumer)

func WithWaitSeconds(s int32) ConsumerOpts {
	return func(c *Consumer) { c.waitSeconds = s }
}

func WithBackoff(d time.Duration) ConsumerOpts {
	return func(c *Consumer) { c.backoff = d }
}

func NewConsumer(api API, queueURL string, log *zap.SugaredLogger, opts ...ConsumerOpts) *Consumer {
	c := &Consumer{
		api:         api,
		queueURL:    queueURL,
		log:         log.Named("consumer"),
		waitSeconds: defaultWaitSeconds,
		maxMessages: defaultMaxMessages,
		backoff:     defaultBackoff,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run polls until ctx is done. Receive failures are retried after a jittered
// backoff.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	backoff := jitterbug.New(c.backoff, &jitterbug.Norm{Stdev: c.backoff / 10})
	defer backoff.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := c.Poll(ctx, handle); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Errorw("failed to receive messages", "queue", c.queueURL, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-backoff.C:
			}
		}
	}
}

// Poll receives one batch and handles its messages in order.
func (c *Consumer) Poll(ctx context.Context, handle Handler) error {
	out, err := c.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: c.maxMessages,
		WaitTimeSeconds:     c.waitSeconds,
	})
	if err != nil {
		return err
	}

	for _, m := range out.Messages {
		id := aws.ToString(m.MessageId)
		if err := handle(ctx, aws.ToString(m.Body)); err != nil {
			c.log.Errorw("failed to handle message, leaving it for redelivery", "message_id", id, "error", err)
			continue
		}
		if _, err := c.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(c.queueURL),
			ReceiptHandle: m.ReceiptHandle,
		}); err != nil {
			c.log.Warnw("failed to delete handled message", "message_id", id, "error", err)
		}
	}
	return nil
}
