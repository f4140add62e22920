package ingest_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"procodus.dev/nettest/internal/ingest"
	"procodus.dev/nettest/internal/model"
	"procodus.dev/nettest/pkg/metrics"
	"procodus.dev/nettest/pkg/result"
)

var _ = Describe("Ingestor", func() {
	var (
		ctx      context.Context
		logger   *slog.Logger
		db       *memDB
		clock    *clockwork.FakeClock
		m        *metrics.IngestMetrics
		ingestor *ingest.Ingestor
		test     model.Test
	)

	BeforeEach(func() {
		ctx = context.Background()
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
		db = newMemDB()
		clock = clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC))
		m = metrics.NewIngestMetrics("test")

		var err error
		ingestor, err = ingest.NewIngestor(&ingest.IngestorConfig{
			Logger:     logger,
			Transactor: db,
			Clock:      clock,
			Metrics:    m,
		})
		Expect(err).NotTo(HaveOccurred())

		test = model.Test{
			UID:          1,
			UUID:         uuid.New(),
			OpenTestUUID: uuid.New(),
			Time:         clock.Now().Add(-time.Minute),
			Status:       model.StatusStarted,
		}
	})

	envelope := func(token string) *result.Envelope {
		return &result.Envelope{
			ReceivedAt: time.Now(),
			SourceIP:   "203.0.113.77",
			Result: &result.Request{
				TestToken:     token + "_1700000000_sig",
				ClientName:    "RMBT",
				ClientVersion: "0.3.5",
				ClientTime:    ptr[int64](1_700_000_000_000),
				Platform:      "Android",
				DownloadSpeed: ptr[int64](85_000),
				UploadSpeed:   ptr[int64](21_000),
				PingShortest:  ptr[int64](14_500_000),
				Pings: []result.Ping{
					{Value: 15_000_000, ValueServer: 14_500_000, TimeNs: 1_000},
					{Value: 16_000_000, ValueServer: 15_500_000, TimeNs: 2_000},
				},
				SpeedDetails: []result.SpeedDetail{
					{Direction: "download", Thread: 0, TimeNs: 1_000, Bytes: 4096},
				},
				Signals: []result.Signal{
					{NetworkTypeID: model.CodeLTE, LteRSRP: ptr(-95), TimeNs: 500},
				},
			},
		}
	}

	Describe("NewIngestor", func() {
		It("should return error when config is nil", func() {
			i, err := ingest.NewIngestor(nil)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("config cannot be nil"))
			Expect(i).To(BeNil())
		})

		It("should return error when logger is nil", func() {
			_, err := ingest.NewIngestor(&ingest.IngestorConfig{Transactor: db})
			Expect(err).To(MatchError(ContainSubstring("logger cannot be nil")))
		})

		It("should return error when transactor is nil", func() {
			_, err := ingest.NewIngestor(&ingest.IngestorConfig{Logger: logger})
			Expect(err).To(MatchError(ContainSubstring("transactor cannot be nil")))
		})

		It("should reject an invalid configuration", func() {
			cfg := ingest.DefaultConfig()
			cfg.ClientNames = nil
			_, err := ingest.NewIngestor(&ingest.IngestorConfig{Logger: logger, Transactor: db, Config: cfg})
			Expect(err).To(MatchError(ContainSubstring("invalid ingest config")))
		})

		It("should work without metrics or clock", func() {
			i, err := ingest.NewIngestor(&ingest.IngestorConfig{Logger: logger, Transactor: db})
			Expect(err).NotTo(HaveOccurred())
			Expect(i).NotTo(BeNil())
		})
	})

	Describe("Ingest", func() {
		BeforeEach(func() {
			db.seed(test)
		})

		Context("with a valid result", func() {
			It("should finalize the test", func() {
				Expect(ingestor.Ingest(ctx, envelope(test.UUID.String()))).To(Succeed())

				saved := db.test(test.UUID)
				Expect(saved.Status).To(Equal(model.StatusFinished))
				Expect(saved.FinishedAt).NotTo(BeNil())
				Expect(*saved.FinishedAt).To(Equal(clock.Now()))
				Expect(saved.ClientName).To(Equal("RMBT"))
				Expect(saved.Platform).To(Equal("Android"))
				Expect(*saved.ClientTime).To(Equal(time.UnixMilli(1_700_000_000_000).UTC()))
				Expect(*saved.DownloadSpeed).To(Equal(int64(85_000)))
				Expect(*saved.ShortestPing).To(Equal(int64(14_500_000)))
				Expect(saved.NetworkType).To(Equal(model.CodeLTE))
				Expect(saved.SourceIP).To(Equal("203.0.113.77"))
				Expect(saved.SourceIPAnonymized).To(Equal("203.0.113.0"))

				Expect(db.rows("ping")).To(Equal(2))
				Expect(db.rows("speed")).To(Equal(1))
				Expect(db.rows("signal")).To(Equal(1))
				Expect(db.rows("geolocation")).To(BeZero())
				Expect(db.commitCount()).To(Equal(1))

				Expect(testutil.ToFloat64(m.ResultsTotal.WithLabelValues("success"))).To(Equal(1.0))
				Expect(testutil.ToFloat64(m.NetworkTypeSource.WithLabelValues(ingest.SourceBaseline))).To(Equal(1.0))
				Expect(testutil.ToFloat64(m.ResultsInFlight)).To(BeZero())
			})

			It("should resolve the test by its open test uuid", func() {
				Expect(ingestor.Ingest(ctx, envelope(test.OpenTestUUID.String()))).To(Succeed())
				Expect(db.test(test.UUID).Status).To(Equal(model.StatusFinished))
			})

			It("should accept absent speed and ping samples", func() {
				env := envelope(test.UUID.String())
				env.Result.DownloadSpeed = nil
				env.Result.UploadSpeed = nil
				env.Result.PingShortest = nil

				Expect(ingestor.Ingest(ctx, env)).To(Succeed())
				saved := db.test(test.UUID)
				Expect(saved.DownloadSpeed).To(BeNil())
				Expect(saved.UploadSpeed).To(BeNil())
				Expect(saved.ShortestPing).To(BeNil())
			})

			It("should apply the submitted status", func() {
				env := envelope(test.UUID.String())
				env.Result.TestStatus = ptr("ABORTED")

				Expect(ingestor.Ingest(ctx, env)).To(Succeed())
				Expect(db.test(test.UUID).Status).To(Equal(model.StatusAborted))
			})

			It("should keep valid and drop malformed operator codes", func() {
				env := envelope(test.UUID.String())
				env.Result.TelephonyNetworkOperator = ptr("234-5")
				env.Result.TelephonyNetworkSimOperator = ptr("abc")

				Expect(ingestor.Ingest(ctx, env)).To(Succeed())
				saved := db.test(test.UUID)
				Expect(saved.NetworkOperator).To(HaveValue(Equal("234-5")))
				Expect(saved.NetworkSimOperator).To(BeNil())
				Expect(testutil.ToFloat64(m.DroppedOperatorCodes.WithLabelValues("network_sim_operator"))).To(Equal(1.0))
			})

			It("should encode android permissions", func() {
				env := envelope(test.UUID.String())
				env.Result.AndroidPermissionStatuses = []result.AndroidPermission{
					{Permission: "android.permission.ACCESS_FINE_LOCATION", Status: true},
				}

				Expect(ingestor.Ingest(ctx, env)).To(Succeed())
				Expect(db.test(test.UUID).AndroidPermissions).To(HaveValue(MatchJSON(
					`[{"permission":"android.permission.ACCESS_FINE_LOCATION","status":true}]`,
				)))
			})

			It("should let an aggregate observation override the baseline", func() {
				db.observe(test.OpenTestUUID, 3, 7)
				env := envelope(test.UUID.String())
				env.Result.Signals = nil

				Expect(ingestor.Ingest(ctx, env)).To(Succeed())
				Expect(db.test(test.UUID).NetworkType).To(Equal(3))

				other := model.Test{UID: 2, UUID: uuid.New(), OpenTestUUID: uuid.New(), Status: model.StatusStarted}
				db.seed(other)
				db.observe(other.OpenTestUUID, 3, model.CodeAggr2G3G)
				env = envelope(other.UUID.String())
				env.Result.Signals = nil

				Expect(ingestor.Ingest(ctx, env)).To(Succeed())
				Expect(db.test(other.UUID).NetworkType).To(Equal(model.CodeAggr2G3G))
				Expect(testutil.ToFloat64(m.NetworkTypeSource.WithLabelValues(ingest.SourceAggregate))).To(Equal(1.0))
			})
		})

		Context("with client addresses", func() {
			It("should classify the local address and its translation", func() {
				test.ClientPublicIP = ptr("198.51.100.20")
				db = newMemDB()
				db.seed(test)
				i, err := ingest.NewIngestor(&ingest.IngestorConfig{Logger: logger, Transactor: db, Clock: clock})
				Expect(err).NotTo(HaveOccurred())

				env := envelope(test.UUID.String())
				env.Result.TestIPLocal = ptr("192.168.1.10")
				env.Result.TestIPServer = ptr("2001:db8::443")

				Expect(i.Ingest(ctx, env)).To(Succeed())
				saved := db.test(test.UUID)
				Expect(saved.ClientIPLocal).To(HaveValue(Equal("192.168.1.10")))
				Expect(saved.ClientIPLocalAnonymized).To(HaveValue(Equal("192.168.1.0")))
				Expect(saved.ClientIPLocalType).To(HaveValue(Equal(string(ingest.AddressPrivate))))
				Expect(saved.NatType).To(HaveValue(Equal(string(ingest.NatLocalToPublicIPv4))))
				Expect(saved.ServerIP).To(HaveValue(Equal("2001:db8::443")))
			})

			It("should leave the nat type unset without a public address", func() {
				env := envelope(test.UUID.String())
				env.Result.TestIPLocal = ptr("10.0.0.2")

				Expect(ingestor.Ingest(ctx, env)).To(Succeed())
				Expect(db.test(test.UUID).NatType).To(BeNil())
			})

			It("should reject an unparsable source address", func() {
				env := envelope(test.UUID.String())
				env.SourceIP = "not-an-ip"

				Expect(ingestor.Ingest(ctx, env)).To(MatchError(ingest.ErrInvalidIPAddress))
				Expect(db.test(test.UUID).Status).To(Equal(model.StatusStarted))
			})

			It("should reject an unparsable local address", func() {
				env := envelope(test.UUID.String())
				env.Result.TestIPLocal = ptr("192.168.1.300")

				Expect(ingestor.Ingest(ctx, env)).To(MatchError(ingest.ErrInvalidIPAddress))
			})
		})

		Context("with a rejected result", func() {
			It("should reject a malformed token", func() {
				Expect(ingestor.Ingest(ctx, envelope("garbage"))).To(MatchError(ingest.ErrMalformedToken))
				Expect(db.commitCount()).To(BeZero())
			})

			It("should reject an empty envelope", func() {
				Expect(ingestor.Ingest(ctx, nil)).To(MatchError(ingest.ErrMalformedToken))
				Expect(ingestor.Ingest(ctx, &result.Envelope{})).To(MatchError(ingest.ErrMalformedToken))
			})

			It("should report an unknown test", func() {
				err := ingestor.Ingest(ctx, envelope(uuid.NewString()))
				Expect(err).To(MatchError(ingest.ErrTestNotFound))
				Expect(db.commitCount()).To(BeZero())
				Expect(testutil.ToFloat64(m.ResultsTotal.WithLabelValues("test_not_found"))).To(Equal(1.0))
			})

			It("should reject an outdated client", func() {
				env := envelope(test.UUID.String())
				env.Result.ClientVersion = "0.2.0"

				Expect(ingestor.Ingest(ctx, env)).To(MatchError(ingest.ErrUnsupportedClientVersion))
				Expect(db.test(test.UUID).Status).To(Equal(model.StatusStarted))
			})

			It("should reject an insane value without writing anything", func() {
				env := envelope(test.UUID.String())
				env.Result.DownloadSpeed = ptr[int64](10_000_000_000)

				Expect(ingestor.Ingest(ctx, env)).To(MatchError(ingest.ErrInsaneValue))

				saved := db.test(test.UUID)
				Expect(saved.Status).To(Equal(model.StatusStarted))
				Expect(saved.FinishedAt).To(BeNil())
				Expect(saved.ClientName).To(BeEmpty())
				Expect(db.rows("ping")).To(BeZero())
				Expect(db.rows("signal")).To(BeZero())
				Expect(testutil.ToFloat64(m.InsaneValues.WithLabelValues("download"))).To(Equal(1.0))
			})

			It("should reject a result without network type observations", func() {
				env := envelope(test.UUID.String())
				env.Result.Signals = nil

				Expect(ingestor.Ingest(ctx, env)).To(MatchError(ingest.ErrInvalidNetworkType))
				Expect(testutil.ToFloat64(m.NetworkTypeSource.WithLabelValues(ingest.SourceNone))).To(Equal(1.0))
			})

			It("should roll back when a processor fails", func() {
				db.failOn = "signal"

				err := ingestor.Ingest(ctx, envelope(test.UUID.String()))
				Expect(err).To(MatchError(ContainSubstring("disk full")))
				Expect(ingest.IsPermanent(err)).To(BeFalse())
				Expect(ingest.Kind(err)).To(Equal("internal"))
				Expect(db.rows("ping")).To(BeZero())
				Expect(db.test(test.UUID).Status).To(Equal(model.StatusStarted))
			})
		})

		Context("when the test is already finalized", func() {
			It("should refuse a second result", func() {
				Expect(ingestor.Ingest(ctx, envelope(test.UUID.String()))).To(Succeed())
				first := db.test(test.UUID)

				clock.Advance(time.Hour)
				env := envelope(test.UUID.String())
				env.Result.TestStatus = ptr("ERROR")

				Expect(ingestor.Ingest(ctx, env)).To(MatchError(ingest.ErrAlreadyFinalized))
				Expect(db.test(test.UUID)).To(Equal(first))
				Expect(db.rows("ping")).To(Equal(2))
			})

			It("should finalize at most once under concurrent submissions", func() {
				const submissions = 8
				errs := make(chan error, submissions)

				var wg sync.WaitGroup
				for n := range submissions {
					wg.Add(1)
					go func() {
						defer GinkgoRecover()
						defer wg.Done()
						token := test.UUID.String()
						if n%2 == 1 {
							token = test.OpenTestUUID.String()
						}
						errs <- ingestor.Ingest(ctx, envelope(token))
					}()
				}
				wg.Wait()
				close(errs)

				succeeded := 0
				for err := range errs {
					if err == nil {
						succeeded++
						continue
					}
					Expect(err).To(MatchError(ingest.ErrAlreadyFinalized))
				}
				Expect(succeeded).To(Equal(1))
				Expect(db.commitCount()).To(Equal(1))
				Expect(db.rows("ping")).To(Equal(2))
			})
		})
	})
})
