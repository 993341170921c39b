package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog"
)

// SQSAPI to podzbiór klienta SQS (podmieniany w testach).
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type SQSDispatcher struct {
	client   SQSAPI
	queueURL string
}

func NewSQSDispatcher(client SQSAPI, queueURL string) *SQSDispatcher {
	return &SQSDispatcher{client: client, queueURL: queueURL}
}

func (d *SQSDispatcher) Dispatch(ctx context.Context, m Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = d.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(d.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// SQSConsumer odpytuje kolejkę long-pollingiem i usuwa wiadomości po udanym przetworzeniu.
type SQSConsumer struct {
	client   SQSAPI
	queueURL string
	wait     int32
	log      zerolog.Logger
}

func NewSQSConsumer(client SQSAPI, queueURL string, waitSeconds int32, log zerolog.Logger) *SQSConsumer {
	if waitSeconds <= 0 || waitSeconds > 20 {
		waitSeconds = 20
	}
	return &SQSConsumer{
		client:   client,
		queueURL: queueURL,
		wait:     waitSeconds,
		log:      log.With().Str("component", "queue.sqs").Logger(),
	}
}

func (c *SQSConsumer) Consume(ctx context.Context, h Handler) error {
	c.log.Info().Str("queue", c.queueURL).Msg("polling started")
	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("polling stopped")
			return ctx.Err()
		default:
			if err := c.PollOnce(ctx, h); err != nil && ctx.Err() == nil {
				c.log.Error().Err(err).Msg("poll failed")
			}
		}
	}
}

// PollOnce odbiera jedną wiadomość naraz, żeby zlecenie nie czekało w buforze
// dłużej niż jego VisibilityTimeout. Nieparsowalna wiadomość jest usuwana
// (nie da się jej nigdy przetworzyć), błąd handlera zostawia ją do ponowienia.
func (c *SQSConsumer) PollOnce(ctx context.Context, h Handler) error {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     c.wait,
		VisibilityTimeout:   300,
	})
	if err != nil {
		return fmt.Errorf("failed to receive messages: %w", err)
	}

	for _, msg := range out.Messages {
		if msg.Body == nil {
			continue
		}
		var m Message
		if err := json.Unmarshal([]byte(*msg.Body), &m); err != nil || m.Validate() != nil {
			c.log.Warn().Str("message_id", aws.ToString(msg.MessageId)).Msg("dropping malformed message")
			c.delete(ctx, msg.ReceiptHandle)
			continue
		}
		if err := h(ctx, m); err != nil {
			c.log.Error().Err(err).Str("batch_id", m.BatchID).Msg("job failed, message left for redelivery")
			continue
		}
		c.delete(ctx, msg.ReceiptHandle)
	}
	return nil
}

func (c *SQSConsumer) delete(ctx context.Context, handle *string) {
	if _, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: handle,
	}); err != nil {
		c.log.Error().Err(err).Msg("failed to delete message")
	}
}
