package generator_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/nettest/internal/ingest"
	"procodus.dev/nettest/internal/model"
	"procodus.dev/nettest/pkg/generator"
)

var _ = Describe("Generator", func() {
	var (
		gen *generator.Generator
		now time.Time
	)

	BeforeEach(func() {
		gen = generator.New(generator.Options{Seed: 11})
		now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	})

	Describe("Registration", func() {
		It("should create a started test with observed technologies", func() {
			reg, err := gen.Registration(now)
			Expect(err).NotTo(HaveOccurred())

			Expect(reg.Test.Status).To(Equal(model.StatusStarted))
			Expect(reg.Test.UUID).NotTo(Equal(reg.Test.OpenTestUUID))
			Expect(reg.Test.Time).To(Equal(now))
			Expect(reg.Test.ClientPublicIP).NotTo(BeNil())
			Expect(reg.NetworkTypes).NotTo(BeEmpty())
			for _, code := range reg.NetworkTypes {
				_, ok := model.LookupTechnology(code)
				Expect(ok).To(BeTrue(), "unknown technology %d", code)
			}
		})

		It("should be reproducible for a fixed seed", func() {
			a, err := generator.New(generator.Options{Seed: 5}).NewDevice()
			Expect(err).NotTo(HaveOccurred())
			b, err := generator.New(generator.Options{Seed: 5}).NewDevice()
			Expect(err).NotTo(HaveOccurred())
			Expect(a).To(Equal(b))
		})
	})

	Describe("Result", func() {
		It("should produce results the validators accept", func() {
			cfg := ingest.DefaultConfig()
			gate, err := ingest.NewClientVersionGate(cfg.MinClientVersion, cfg.ClientNames)
			Expect(err).NotTo(HaveOccurred())
			samples, err := ingest.NewSpeedPingValidator(cfg.Limits)
			Expect(err).NotTo(HaveOccurred())
			operators, err := ingest.NewOperatorCodeValidator(cfg.OperatorPattern)
			Expect(err).NotTo(HaveOccurred())
			ips, err := ingest.NewIPClassifier(cfg.IPv4Prefix, cfg.IPv6Prefix)
			Expect(err).NotTo(HaveOccurred())

			for range 25 {
				reg, err := gen.Registration(now)
				Expect(err).NotTo(HaveOccurred())
				env := gen.Result(reg, now.Add(30*time.Second))
				req := env.Result

				id, err := ingest.ParseToken(req.TestToken)
				Expect(err).NotTo(HaveOccurred())
				Expect(id).To(Equal(reg.Test.UUID))

				Expect(gate.Check(req.ClientVersion, req.ClientName)).To(Succeed())
				_, err = samples.Validate(req.DownloadSpeed, req.UploadSpeed, req.PingShortest)
				Expect(err).NotTo(HaveOccurred())

				_, state := operators.Check(req.TelephonyNetworkOperator)
				Expect(state).NotTo(Equal(ingest.FieldInvalid))

				_, err = ips.Parse(env.SourceIP)
				Expect(err).NotTo(HaveOccurred())
				_, err = ips.Parse(*req.TestIPLocal)
				Expect(err).NotTo(HaveOccurred())

				Expect(req.Signals).To(HaveLen(len(reg.NetworkTypes)))
				Expect(req.Pings).To(HaveLen(10))
				Expect(req.SpeedDetails).To(HaveLen(2 * 4 * 7))
			}
		})

		It("should use the configured client identity", func() {
			gen = generator.New(generator.Options{ClientName: "HW-PROBE", ClientVersion: "2.0.0"})
			reg, err := gen.Registration(now)
			Expect(err).NotTo(HaveOccurred())

			req := gen.Result(reg, now).Result
			Expect(req.ClientName).To(Equal("HW-PROBE"))
			Expect(req.ClientVersion).To(Equal("2.0.0"))
		})
	})
})
