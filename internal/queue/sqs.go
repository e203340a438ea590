package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"

	"user-notifier/internal/model"
)

// SQSAPI is the subset of the SQS client used by SQSQueue.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

var ErrQueueURLRequired = errors.New("sqs queue url is required")

const (
	// maxSQSWait is the longest long-poll SQS accepts.
	maxSQSWait = 20
	// maxSQSVisibility is the longest visibility timeout SQS accepts, 12 hours.
	maxSQSVisibility = 43200
)

// SQSQueue uses the native SQS visibility timeout. Redrive to a dead-letter
// queue is configured on the SQS queue itself.
type SQSQueue struct {
	client   SQSAPI
	url      string
	opts     *options
	waitSecs int32
	visSecs  int32
}

func NewSQSQueue(client SQSAPI, queueURL string, opts ...Option) (*SQSQueue, error) {
	if queueURL == "" {
		return nil, ErrQueueURLRequired
	}
	o := newOptions(opts)
	return &SQSQueue{
		client:   client,
		url:      queueURL,
		opts:     o,
		waitSecs: int32(min(max(o.pollTimeout.Seconds(), 0), maxSQSWait)),
		visSecs:  visibilitySeconds(o.visibility),
	}, nil
}

// visibilitySeconds rounds d up to whole seconds and keeps it at least 1:
// SQS reads a visibility timeout of 0 as "visible again at once".
func visibilitySeconds(d time.Duration) int32 {
	secs := int32(min(math.Ceil(d.Seconds()), maxSQSVisibility))
	return max(secs, 1)
}

// NewSQSQueueFromConfig builds the SDK client from a loaded AWS config.
func NewSQSQueueFromConfig(cfg aws.Config, queueURL string, opts ...Option) (*SQSQueue, error) {
	return NewSQSQueue(sqs.NewFromConfig(cfg), queueURL, opts...)
}

func (q *SQSQueue) Enqueue(ctx context.Context, task model.DeliveryTask) error {
	data, err := marshalTask(task)
	if err != nil {
		return err
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.url),
		MessageBody: aws.String(string(data)),
	})
	if err != nil {
		return fmt.Errorf("sqs send: %w", err)
	}
	return nil
}

func (q *SQSQueue) Receive(ctx context.Context) (*Message, error) {
	for {
		out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(q.url),
			MaxNumberOfMessages: 1,
			WaitTimeSeconds:     q.waitSecs,
			VisibilityTimeout:   q.visSecs,
			MessageSystemAttributeNames: []types.MessageSystemAttributeName{
				types.MessageSystemAttributeNameApproximateReceiveCount,
			},
		})
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			return nil, fmt.Errorf("sqs receive: %w", describe(err))
		}
		if len(out.Messages) == 0 {
			continue
		}

		m := out.Messages[0]
		count, _ := strconv.Atoi(m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)])
		return &Message{
			ID:           aws.ToString(m.MessageId),
			Body:         []byte(aws.ToString(m.Body)),
			ReceiveCount: count,
			receipt:      aws.ToString(m.ReceiptHandle),
		}, nil
	}
}

func (q *SQSQueue) Ack(ctx context.Context, msg *Message) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.url),
		ReceiptHandle: aws.String(msg.receipt),
	})
	if err != nil {
		return fmt.Errorf("sqs delete %s: %w", msg.ID, describe(err))
	}
	return nil
}

// Nack zeroes the visibility timeout so the message is redelivered at once.
func (q *SQSQueue) Nack(ctx context.Context, msg *Message) error {
	_, err := q.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(q.url),
		ReceiptHandle:     aws.String(msg.receipt),
		VisibilityTimeout: 0,
	})
	if err != nil {
		q.opts.logger.WarnContext(ctx, "sqs release failed, message reappears after visibility timeout",
			slog.String("message_id", msg.ID),
			slog.String("error", err.Error()))
		return fmt.Errorf("sqs change visibility %s: %w", msg.ID, describe(err))
	}
	return nil
}

// describe keeps the AWS error code in the message.
func describe(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", apiErr.ErrorCode(), err)
	}
	return err
}
