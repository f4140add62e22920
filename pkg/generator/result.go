// Package generator produces synthetic test registrations and results.
package generator

import (
	"fmt"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"procodus.dev/nettest/internal/model"
	"procodus.dev/nettest/pkg/result"
)

// Device is a synthetic client device.
type Device struct {
	Model     string  `fake:"{randomstring:[Pixel8,SM-S911B,iPhone15,XQ-DC54,CPH2449]}"`
	Product   string  `fake:"{randomstring:[shiba,dm1q,iphone,pdx234,op5913]}"`
	OSVersion string  `fake:"{randomstring:[14,13,12,17.4]}"`
	APILevel  string  `fake:"{randomstring:[34,33,32]}"`
	Platform  string  `fake:"{randomstring:[Android,iOS]}"`
	Language  string  `fake:"{languageabbreviation}"`
	PublicIP  string  `fake:"{ipv4address}"`
	Latitude  float64 `fake:"{latitude}"`
	Longitude float64 `fake:"{longitude}"`
}

// Options configures a Generator.
type Options struct {
	// Seed makes the output reproducible. Zero picks a random seed.
	Seed          uint64
	ClientName    string
	ClientVersion string
}

// DefaultOptions returns options producing results a default ingestor accepts.
func DefaultOptions() Options {
	return Options{ClientName: "RMBT", ClientVersion: "1.2.0"}
}

// Generator builds registrations and matching results. It is not safe for
// concurrent use.
type Generator struct {
	faker         *gofakeit.Faker
	clientName    string
	clientVersion string
}

// New creates a Generator.
func New(opts Options) *Generator {
	if opts.ClientName == "" {
		opts.ClientName = DefaultOptions().ClientName
	}
	if opts.ClientVersion == "" {
		opts.ClientVersion = DefaultOptions().ClientVersion
	}
	return &Generator{
		faker:         gofakeit.New(opts.Seed),
		clientName:    opts.ClientName,
		clientVersion: opts.ClientVersion,
	}
}

// Registration is a test awaiting its result, together with the
// technologies seen while it was set up.
type Registration struct {
	Test         *model.Test
	Device       Device
	NetworkTypes []int
}

// Token returns a test token addressing the registered test.
func (r Registration) Token(nonce string) string {
	return r.Test.UUID.String() + "_" + nonce
}

var cellular = []int{1, 2, 3, 8, 10, 13, 15, 16, 19, 20}

// NewDevice returns a random device.
func (g *Generator) NewDevice() (Device, error) {
	var device Device
	if err := g.faker.Struct(&device); err != nil {
		return Device{}, fmt.Errorf("failed to generate device: %w", err)
	}
	return device, nil
}

// Registration creates a test registered at now. One in five runs is on
// WLAN; the rest use one or two cellular technologies.
func (g *Generator) Registration(now time.Time) (Registration, error) {
	device, err := g.NewDevice()
	if err != nil {
		return Registration{}, err
	}

	var codes []int
	if g.faker.IntRange(1, 5) == 1 {
		codes = []int{model.CodeWLAN}
	} else {
		codes = []int{cellular[g.faker.IntRange(0, len(cellular)-1)]}
		if g.faker.Bool() {
			codes = append(codes, cellular[g.faker.IntRange(0, len(cellular)-1)])
		}
	}

	publicIP := device.PublicIP
	return Registration{
		Test: &model.Test{
			UUID:           uuid.New(),
			OpenTestUUID:   uuid.New(),
			Time:           now.UTC(),
			ClientName:     g.clientName,
			ClientVersion:  g.clientVersion,
			ClientPublicIP: &publicIP,
			Status:         model.StatusStarted,
		},
		Device:       device,
		NetworkTypes: codes,
	}, nil
}

// Result builds the envelope a client would submit for reg at now.
func (g *Generator) Result(reg Registration, now time.Time) *result.Envelope {
	f := g.faker
	device := reg.Device

	download := int64(f.IntRange(2_000, 900_000))
	upload := int64(f.IntRange(500, int(download)/2+500))
	ping := int64(f.IntRange(4_000_000, 90_000_000))
	clientTime := now.UnixMilli()

	req := &result.Request{
		TestToken:             reg.Token(strconv.FormatInt(now.Unix(), 10) + "_" + f.LetterN(16)),
		ClientName:            g.clientName,
		ClientVersion:         g.clientVersion,
		ClientSoftwareVersion: f.AppVersion(),
		ClientLanguage:        device.Language,
		ClientTime:            &clientTime,
		Model:                 device.Model,
		Device:                device.Model,
		Product:               device.Product,
		OSVersion:             device.OSVersion,
		APILevel:              device.APILevel,
		Platform:              device.Platform,
		Timezone:              "Europe/Vienna",
		Encryption:            "TLSv1.3 (TLS_AES_128_GCM_SHA256)",
		NumThreads:            4,
		NumThreadsUl:          4,
		DownloadSpeed:         &download,
		UploadSpeed:           &upload,
		PingShortest:          &ping,
		TestStatus:            ptr("0"),
		TestIPLocal:           ptr(fmt.Sprintf("192.168.%d.%d", f.IntRange(0, 254), f.IntRange(2, 254))),
		TestIPServer:          ptr(f.IPv4Address()),
	}

	if reg.NetworkTypes[0] == model.CodeWLAN {
		req.WifiSSID = f.Word()
		req.WifiBSSID = f.MacAddress()
	} else {
		operator := fmt.Sprintf("%03d-%02d", f.IntRange(200, 799), f.IntRange(1, 99))
		req.TelephonyNetworkOperator = &operator
		req.TelephonyNetworkSimOperator = &operator
		req.TelephonyNetworkOperatorName = f.Company()
		req.TelephonyNetworkCountry = f.CountryAbr()
		req.TelephonyNetworkSimCountry = req.TelephonyNetworkCountry
		req.TelephonyNetworkIsRoaming = ptr(false)
	}

	durationNs := int64(7 * time.Second)
	req.BytesDownload = download * 1000 / 8 * 7
	req.BytesUpload = upload * 1000 / 8 * 7
	req.NSecDownload = durationNs
	req.NSecUpload = durationNs
	req.TotalBytesDownload = req.BytesDownload + int64(f.IntRange(0, 65536))
	req.TotalBytesUpload = req.BytesUpload + int64(f.IntRange(0, 65536))

	for i := range 10 {
		value := ping + int64(f.IntRange(0, 5_000_000))
		req.Pings = append(req.Pings, result.Ping{
			Value:       value,
			ValueServer: value - int64(f.IntRange(0, 500_000)),
			TimeNs:      int64(i) * 100_000_000,
		})
	}

	for _, direction := range []string{"download", "upload"} {
		for thread := range req.NumThreads {
			for step := int64(1); step <= 7; step++ {
				req.SpeedDetails = append(req.SpeedDetails, result.SpeedDetail{
					Direction: direction,
					Thread:    thread,
					TimeNs:    step * int64(time.Second),
					Bytes:     step * int64(f.IntRange(10_000, 2_000_000)),
				})
			}
		}
	}

	req.GeoLocations = []result.GeoLocation{{
		Provider:  "gps",
		Latitude:  device.Latitude,
		Longitude: device.Longitude,
		Accuracy:  f.Float64Range(3, 50),
		Altitude:  f.Float64Range(100, 800),
		Tstamp:    clientTime,
	}}

	for i, code := range reg.NetworkTypes {
		signal := result.Signal{
			NetworkTypeID: code,
			Time:          clientTime,
			TimeNs:        int64(i) * int64(time.Second),
		}
		if code == model.CodeWLAN {
			signal.WifiRSSI = ptr(f.IntRange(-90, -30))
			signal.WifiLinkSpeed = ptr(f.IntRange(54, 1200))
		} else {
			signal.SignalStrength = ptr(f.IntRange(-110, -60))
			signal.LteRSRP = ptr(f.IntRange(-120, -80))
			signal.LteRSRQ = ptr(f.IntRange(-20, -3))
		}
		req.Signals = append(req.Signals, signal)
	}

	return &result.Envelope{
		ReceivedAt: now.UTC(),
		Result:     req,
		SourceIP:   *reg.Test.ClientPublicIP,
	}
}

func ptr[T any](v T) *T {
	return &v
}
