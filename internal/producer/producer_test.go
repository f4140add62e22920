package producer_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"procodus.dev/nettest/internal/ingest"
	"procodus.dev/nettest/internal/producer"
	"procodus.dev/nettest/pkg/generator"
	"procodus.dev/nettest/pkg/metrics"
	"procodus.dev/nettest/pkg/mq/mock"
	"procodus.dev/nettest/pkg/result"
)

var _ = Describe("Producer", func() {
	var (
		client    *mock.MockClient
		registrar *fakeRegistrar
		clock     *clockwork.FakeClock
		m         *metrics.ProducerMetrics
		prod      *producer.Producer
	)

	BeforeEach(func() {
		client = mock.NewMockClient()
		registrar = &fakeRegistrar{}
		clock = clockwork.NewFakeClockAt(time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC))
		m = metrics.NewProducerMetrics("test")

		var err error
		prod, err = producer.NewProducer(&producer.Config{
			Client:    client,
			Registrar: registrar,
			Generator: generator.New(generator.Options{Seed: 3}),
			Clock:     clock,
			Metrics:   m,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewProducer", func() {
		It("should return error when config is nil", func() {
			p, err := producer.NewProducer(nil)
			Expect(err).To(MatchError(ContainSubstring("config cannot be nil")))
			Expect(p).To(BeNil())
		})

		It("should return error when client is nil", func() {
			_, err := producer.NewProducer(&producer.Config{Registrar: registrar})
			Expect(err).To(MatchError(ContainSubstring("mq client cannot be nil")))
		})

		It("should return error when registrar is nil", func() {
			_, err := producer.NewProducer(&producer.Config{Client: client})
			Expect(err).To(MatchError(ContainSubstring("registrar cannot be nil")))
		})
	})

	Describe("Submit", func() {
		It("should register the test and publish its result", func() {
			reg, err := prod.Submit(context.Background())
			Expect(err).NotTo(HaveOccurred())

			Expect(registrar.count()).To(Equal(1))
			Expect(registrar.regs[0].test.UUID).To(Equal(reg.Test.UUID))
			Expect(registrar.regs[0].codes).To(Equal(reg.NetworkTypes))

			Expect(client.Pushed()).To(HaveLen(1))
			var env result.Envelope
			Expect(json.Unmarshal(client.Pushed()[0], &env)).To(Succeed())
			Expect(env.ReceivedAt).To(Equal(clock.Now()))
			Expect(env.SourceIP).To(Equal(*reg.Test.ClientPublicIP))

			id, err := ingest.ParseToken(env.Result.TestToken)
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal(reg.Test.UUID))

			Expect(testutil.ToFloat64(m.TestsRegistered)).To(Equal(1.0))
			Expect(testutil.ToFloat64(m.ResultsPublished)).To(Equal(1.0))
		})

		It("should pass the context to the client", func() {
			ctx := context.WithValue(context.Background(), struct{}{}, "marker")
			_, err := prod.Submit(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(client.PushCalls[0].Ctx).To(Equal(ctx))
		})

		It("should not publish when registration fails", func() {
			registrar.err = errors.New("duplicate key")

			_, err := prod.Submit(context.Background())
			Expect(err).To(MatchError(ContainSubstring("failed to register test")))
			Expect(client.Pushed()).To(BeEmpty())
			Expect(testutil.ToFloat64(m.GenerationFailures.WithLabelValues("register", "store_error"))).To(Equal(1.0))
		})

		It("should report publish failures", func() {
			client.PushError = errors.New("maximum retry attempts exceeded")

			_, err := prod.Submit(context.Background())
			Expect(err).To(MatchError(ContainSubstring("failed to publish result")))
			Expect(registrar.count()).To(Equal(1))
			Expect(testutil.ToFloat64(m.GenerationFailures.WithLabelValues("publish", "push_error"))).To(Equal(1.0))
		})
	})
})
