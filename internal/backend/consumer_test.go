package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"procodus.dev/nettest/internal/backend"
	"procodus.dev/nettest/internal/ingest"
	"procodus.dev/nettest/pkg/logger"
	"procodus.dev/nettest/pkg/metrics"
	"procodus.dev/nettest/pkg/mq/mock"
	"procodus.dev/nettest/pkg/result"
)

const queue = "results"

var _ = Describe("ResultConsumer", func() {
	var (
		ingestor *fakeIngestor
		client   *mock.MockClient
		acks     *ackRecorder
		m        *metrics.MQMetrics
	)

	BeforeEach(func() {
		ingestor = &fakeIngestor{}
		client = mock.NewMockClient()
		acks = &ackRecorder{}
		m = metrics.NewMQMetrics("test")
	})

	config := func() *backend.ConsumerConfig {
		return &backend.ConsumerConfig{
			Logger:    logger.Discard(),
			Ingestor:  ingestor,
			Client:    client,
			QueueName: queue,
			Metrics:   m,

			ResubscribeDelay: 10 * time.Millisecond,
		}
	}

	const token = "8f14e45f-ceea-467a-9575-6c5f1ab2e1b1_nonce"

	envelope := func(token string) []byte {
		body, err := json.Marshal(&result.Envelope{
			SourceIP: "203.0.113.7",
			Result:   &result.Request{TestToken: token, ClientName: "RMBT", ClientVersion: "1.2.0"},
		})
		Expect(err).NotTo(HaveOccurred())
		return body
	}

	Describe("NewResultConsumer", func() {
		It("should create a consumer", func() {
			consumer, err := backend.NewResultConsumer(config())
			Expect(err).NotTo(HaveOccurred())
			Expect(consumer).NotTo(BeNil())
		})

		It("should return error when config is nil", func() {
			consumer, err := backend.NewResultConsumer(nil)
			Expect(err).To(MatchError(ContainSubstring("config cannot be nil")))
			Expect(consumer).To(BeNil())
		})

		DescribeTable("should reject incomplete configuration",
			func(mutate func(*backend.ConsumerConfig), want string) {
				cfg := config()
				mutate(cfg)
				consumer, err := backend.NewResultConsumer(cfg)
				Expect(err).To(MatchError(ContainSubstring(want)))
				Expect(consumer).To(BeNil())
			},
			Entry("nil logger", func(c *backend.ConsumerConfig) { c.Logger = nil }, "logger"),
			Entry("nil ingestor", func(c *backend.ConsumerConfig) { c.Ingestor = nil }, "ingestor"),
			Entry("nil client", func(c *backend.ConsumerConfig) { c.Client = nil }, "mq client"),
			Entry("empty queue", func(c *backend.ConsumerConfig) { c.QueueName = "" }, "queue name"),
		)
	})

	Describe("Start", func() {
		It("should fail when the connection never becomes ready", func() {
			client.WaitReadyError = context.DeadlineExceeded
			consumer, err := backend.NewResultConsumer(config())
			Expect(err).NotTo(HaveOccurred())

			err = consumer.Start(context.Background())
			Expect(err).To(MatchError(context.DeadlineExceeded))
			Expect(client.ConsumeCalls).To(BeZero())
		})

		It("should fail when consuming cannot start", func() {
			client.ConsumeError = errors.New("channel closed")
			consumer, err := backend.NewResultConsumer(config())
			Expect(err).NotTo(HaveOccurred())

			Expect(consumer.Start(context.Background())).To(MatchError(ContainSubstring("channel closed")))
		})
	})

	Describe("message handling", func() {
		var (
			consumer *backend.ResultConsumer
			cancel   context.CancelFunc
		)

		BeforeEach(func() {
			var err error
			consumer, err = backend.NewResultConsumer(config())
			Expect(err).NotTo(HaveOccurred())

			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			Expect(consumer.Start(ctx)).To(Succeed())
		})

		AfterEach(func() {
			cancel()
			Expect(consumer.Stop()).To(Succeed())
			Expect(client.Closes()).To(Equal(1))
		})

		acked := func() int { a, _, _ := acks.counts(); return a }
		requeued := func() int { _, _, r := acks.counts(); return r }

		It("should ingest and ack a valid result", func() {
			client.Deliveries <- acks.delivery(envelope("8f14e45f-ceea-467a-9575-6c5f1ab2e1b1_nonce"))

			Eventually(acked).Should(Equal(1))
			Expect(ingestor.Calls()).To(HaveLen(1))
			Expect(ingestor.Calls()[0].Result.TestToken).To(HavePrefix("8f14e45f"))
			Expect(ingestor.Calls()[0].SourceIP).To(Equal("203.0.113.7"))
			Expect(testutil.ToFloat64(m.MessagesConsumed.WithLabelValues(queue))).To(Equal(1.0))
		})

		It("should ack and drop an undecodable message", func() {
			client.Deliveries <- acks.delivery([]byte("{not json"))

			Eventually(acked).Should(Equal(1))
			Expect(ingestor.Calls()).To(BeEmpty())
			Expect(testutil.ToFloat64(m.MessagesRejected.WithLabelValues(queue, "decode_error"))).To(Equal(1.0))
		})

		It("should ack a rejected result without retrying it", func() {
			ingestor.err = fmt.Errorf("%w: 8f14e45f", ingest.ErrTestNotFound)
			client.Deliveries <- acks.delivery(envelope("8f14e45f-ceea-467a-9575-6c5f1ab2e1b1_nonce"))

			Eventually(acked).Should(Equal(1))
			Expect(requeued()).To(BeZero())
			Expect(testutil.ToFloat64(m.MessagesRejected.WithLabelValues(queue, "test_not_found"))).To(Equal(1.0))
			Expect(testutil.ToFloat64(m.MessagesConsumed.WithLabelValues(queue))).To(BeZero())
		})

		It("should requeue a result that failed for an internal reason", func() {
			ingestor.err = errors.New("connection reset by peer")
			client.Deliveries <- acks.delivery(envelope("8f14e45f-ceea-467a-9575-6c5f1ab2e1b1_nonce"))

			Eventually(requeued).Should(Equal(1))
			Expect(acked()).To(BeZero())
			Expect(testutil.ToFloat64(m.MessagesRequeued.WithLabelValues(queue))).To(Equal(1.0))
		})

		It("should hand an envelope without a result to the ingestor", func() {
			client.Deliveries <- acks.delivery([]byte(`{"source_ip":"203.0.113.7"}`))

			Eventually(func() int { return len(ingestor.Calls()) }).Should(Equal(1))
			Expect(ingestor.Calls()[0].Result).To(BeNil())
		})
	})

	Describe("broker reconnects", func() {
		It("should resume consuming after the deliveries channel closes", func() {
			consumer, err := backend.NewResultConsumer(config())
			Expect(err).NotTo(HaveOccurred())
			Expect(consumer.Start(context.Background())).To(Succeed())

			fresh := client.Reconnect()
			Eventually(client.Consumes).Should(Equal(2))

			fresh <- acks.delivery(envelope(token))
			Eventually(func() int { a, _, _ := acks.counts(); return a }).Should(Equal(1))
			Expect(ingestor.Calls()).To(HaveLen(1))

			Expect(consumer.Stop()).To(Succeed())
		})

		It("should report not consuming until it has resubscribed", func() {
			cfg := config()
			cfg.ResubscribeDelay = time.Hour
			consumer, err := backend.NewResultConsumer(cfg)
			Expect(err).NotTo(HaveOccurred())

			ctx := context.Background()
			Expect(consumer.Check(ctx)).To(MatchError(ContainSubstring("not consuming")))

			Expect(consumer.Start(ctx)).To(Succeed())
			Expect(consumer.Check(ctx)).To(Succeed())

			client.Reconnect()
			Eventually(func() error { return consumer.Check(ctx) }).Should(MatchError(ContainSubstring("not consuming")))

			Expect(consumer.Stop()).To(Succeed())
			Expect(client.Consumes()).To(Equal(1))
		})

		It("should stop when its context ends while resubscribing", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cfg := config()
			cfg.ResubscribeDelay = time.Hour
			consumer, err := backend.NewResultConsumer(cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(consumer.Start(ctx)).To(Succeed())

			client.Reconnect()
			cancel()

			Expect(consumer.Stop()).To(Succeed())
			Expect(consumer.Check(ctx)).To(HaveOccurred())
		})
	})

	Describe("Stop", func() {
		It("should wait for an in-flight result even when closing the client fails", func() {
			client.CloseError = errors.New("close failed")
			ingestor.block = make(chan struct{})

			consumer, err := backend.NewResultConsumer(config())
			Expect(err).NotTo(HaveOccurred())
			Expect(consumer.Start(context.Background())).To(Succeed())

			client.Deliveries <- acks.delivery(envelope(token))
			Eventually(func() int { return len(ingestor.Calls()) }).Should(Equal(1))

			stopped := make(chan error, 1)
			go func() { stopped <- consumer.Stop() }()
			Consistently(stopped, 100*time.Millisecond).ShouldNot(Receive())

			close(ingestor.block)
			Eventually(stopped).Should(Receive(MatchError(ContainSubstring("close failed"))))
			Expect(func() int { a, _, _ := acks.counts(); return a }()).To(Equal(1))
		})
	})
})
