// Package mq provides end-to-end tests for the RabbitMQ client.
package mq

import (
	"context"
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	amqp "github.com/rabbitmq/amqp091-go"

	clientmq "procodus.dev/nettest/pkg/mq"
	"procodus.dev/nettest/pkg/result"
)

var _ = Describe("MQ Client E2E", func() {
	var (
		client    *clientmq.Client
		queueName string
		ctx       context.Context
		cancel    context.CancelFunc
	)

	BeforeEach(func() {
		queueName = "results-" + time.Now().Format("20060102-150405.000")
		ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	})

	AfterEach(func() {
		if client != nil {
			_ = client.Close()
			client = nil
		}
		cancel()
	})

	connect := func(opts ...clientmq.Option) *clientmq.Client {
		c := clientmq.New(queueName, broker.URL, testLogger, opts...)
		Expect(c.WaitReady(ctx)).To(Succeed())
		return c
	}

	receive := func(deliveries <-chan amqp.Delivery) amqp.Delivery {
		var delivery amqp.Delivery
		Eventually(deliveries, 5*time.Second).Should(Receive(&delivery))
		return delivery
	}

	Describe("Connection", func() {
		It("should become ready against a running broker", func() {
			client = connect()
			Expect(client.QueueName()).To(Equal(queueName))
		})

		It("should time out waiting for an unreachable broker", func() {
			unreachable := clientmq.New(queueName, "amqp://invalid:5672", testLogger)
			defer func() { _ = unreachable.Close() }()

			waitCtx, waitCancel := context.WithTimeout(ctx, 500*time.Millisecond)
			defer waitCancel()
			Expect(unreachable.WaitReady(waitCtx)).To(MatchError(context.DeadlineExceeded))
		})
	})

	Describe("Publish and Consume", func() {
		BeforeEach(func() {
			client = connect()
		})

		It("should deliver a persistent JSON envelope", func() {
			deliveries, err := client.Consume()
			Expect(err).NotTo(HaveOccurred())

			env := &result.Envelope{
				SourceIP: "203.0.113.7",
				Result:   &result.Request{TestToken: "8f14e45f-ceea-467a-9575-6c5f1ab2e1b1_n", ClientName: "RMBT"},
			}
			Expect(clientmq.PushJSON(ctx, client, env)).To(Succeed())

			delivery := receive(deliveries)
			Expect(delivery.ContentType).To(Equal("application/json"))
			Expect(delivery.DeliveryMode).To(Equal(amqp.Persistent))

			var got result.Envelope
			Expect(json.Unmarshal(delivery.Body, &got)).To(Succeed())
			Expect(got.SourceIP).To(Equal("203.0.113.7"))
			Expect(got.Result.TestToken).To(Equal(env.Result.TestToken))
			Expect(delivery.Ack(false)).To(Succeed())
		})

		It("should consume messages in order", func() {
			deliveries, err := client.Consume()
			Expect(err).NotTo(HaveOccurred())

			for _, msg := range []string{"first", "second", "third"} {
				Expect(client.Push(ctx, []byte(msg))).To(Succeed())
			}

			received := make([]string, 0, 3)
			for range 3 {
				delivery := receive(deliveries)
				received = append(received, string(delivery.Body))
				Expect(delivery.Ack(false)).To(Succeed())
			}
			Expect(received).To(Equal([]string{"first", "second", "third"}))
		})

		It("should redeliver a requeued message", func() {
			deliveries, err := client.Consume()
			Expect(err).NotTo(HaveOccurred())

			Expect(client.Push(ctx, []byte("retry me"))).To(Succeed())

			first := receive(deliveries)
			Expect(first.Redelivered).To(BeFalse())
			Expect(first.Nack(false, true)).To(Succeed())

			second := receive(deliveries)
			Expect(second.Redelivered).To(BeTrue())
			Expect(string(second.Body)).To(Equal("retry me"))
			Expect(second.Ack(false)).To(Succeed())
		})

		It("should publish without waiting for a confirmation", func() {
			deliveries, err := client.Consume()
			Expect(err).NotTo(HaveOccurred())

			Expect(client.UnsafePush(ctx, []byte("unconfirmed"))).To(Succeed())
			Expect(string(receive(deliveries).Body)).To(Equal("unconfirmed"))
		})
	})

	Describe("Prefetch", func() {
		It("should hold back deliveries beyond the prefetch window", func() {
			client = connect(clientmq.WithPrefetch(1))
			deliveries, err := client.Consume()
			Expect(err).NotTo(HaveOccurred())

			Expect(client.Push(ctx, []byte("one"))).To(Succeed())
			Expect(client.Push(ctx, []byte("two"))).To(Succeed())

			first := receive(deliveries)
			Consistently(deliveries, 500*time.Millisecond).ShouldNot(Receive())
			Expect(first.Ack(false)).To(Succeed())
			Expect(string(receive(deliveries).Body)).To(Equal("two"))
		})
	})

	Describe("Resource Cleanup", func() {
		It("should close client cleanly and reject a second close", func() {
			c := connect()
			Expect(c.Close()).To(Succeed())
			Expect(c.Close()).To(HaveOccurred())
		})

		It("should fail pushes after close", func() {
			c := connect()
			Expect(c.Close()).To(Succeed())
			Expect(c.Push(ctx, []byte("late"))).To(HaveOccurred())
		})
	})
})
