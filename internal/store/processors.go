package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"procodus.dev/nettest/internal/model"
	"procodus.dev/nettest/pkg/result"
)

// processor converts submitted items into rows and inserts them in batches.
// When observe is set, the network type of every item is recorded as an
// observation of the run.
type processor[T, R any] struct {
	tx        *gorm.DB
	batchSize int
	convert   func(T, *model.Test) R
	observe   func(T) int
}

func newProcessor[T, R any](tx *gorm.DB, batchSize int, convert func(T, *model.Test) R, observe func(T) int) *processor[T, R] {
	return &processor[T, R]{tx: tx, batchSize: batchSize, convert: convert, observe: observe}
}

func (p *processor[T, R]) Process(ctx context.Context, batch []T, test *model.Test) error {
	if len(batch) == 0 {
		return nil
	}

	rows := make([]R, 0, len(batch))
	for _, item := range batch {
		rows = append(rows, p.convert(item, test))
	}
	if err := p.tx.WithContext(ctx).CreateInBatches(rows, p.batchSize).Error; err != nil {
		return fmt.Errorf("failed to insert %d rows: %w", len(rows), err)
	}

	if p.observe == nil {
		return nil
	}
	codes := make([]int, 0, len(batch))
	for _, item := range batch {
		codes = append(codes, p.observe(item))
	}
	return recordObservations(ctx, p.tx, test, codes)
}

func speedRow(s result.SpeedDetail, test *model.Test) model.Speed {
	return model.Speed{
		OpenTestUUID: test.OpenTestUUID,
		TestUID:      test.UID,
		Upload:       s.Direction == "upload",
		Thread:       s.Thread,
		TimeNs:       s.TimeNs,
		Bytes:        s.Bytes,
	}
}

func pingRow(p result.Ping, test *model.Test) model.Ping {
	return model.Ping{
		OpenTestUUID: test.OpenTestUUID,
		TestUID:      test.UID,
		ValueServer:  p.ValueServer,
		Value:        p.Value,
		TimeNs:       p.TimeNs,
	}
}

func geoLocationRow(g result.GeoLocation, test *model.Test) model.GeoLocation {
	return model.GeoLocation{
		OpenTestUUID: test.OpenTestUUID,
		TestUID:      test.UID,
		Time:         time.UnixMilli(g.Tstamp).UTC(),
		Provider:     g.Provider,
		Latitude:     g.Latitude,
		Longitude:    g.Longitude,
		Accuracy:     g.Accuracy,
		Altitude:     g.Altitude,
		Bearing:      g.Bearing,
		Speed:        g.Speed,
		TimeNs:       g.TimeNs,
	}
}

func radioCellRow(c result.RadioCell, test *model.Test) model.RadioCell {
	return model.RadioCell{
		OpenTestUUID:          test.OpenTestUUID,
		TestUID:               test.UID,
		CellUUID:              c.UUID,
		Technology:            c.Technology,
		Registered:            c.Registered,
		MCC:                   c.MCC,
		MNC:                   c.MNC,
		AreaCode:              c.AreaCode,
		LocationID:            c.LocationID,
		PrimaryScramblingCode: c.PrimaryScramblingCode,
		ChannelNumber:         c.ChannelNumber,
	}
}

func radioSignalRow(s result.RadioSignal, test *model.Test) model.RadioSignal {
	return model.RadioSignal{
		OpenTestUUID:  test.OpenTestUUID,
		TestUID:       test.UID,
		CellUUID:      s.CellUUID,
		NetworkTypeID: s.NetworkTypeID,
		Signal:        s.Signal,
		LteRSRP:       s.LteRSRP,
		LteRSRQ:       s.LteRSRQ,
		LteRSSNR:      s.LteRSSNR,
		TimingAdvance: s.TimingAdvance,
		TimeNs:        s.TimeNs,
	}
}

func cellLocationRow(c result.CellLocation, test *model.Test) model.CellLocation {
	return model.CellLocation{
		OpenTestUUID:          test.OpenTestUUID,
		TestUID:               test.UID,
		Time:                  time.UnixMilli(c.Time).UTC(),
		LocationID:            c.LocationID,
		AreaCode:              c.AreaCode,
		PrimaryScramblingCode: c.PrimaryScramblingCode,
		TimeNs:                c.TimeNs,
	}
}

func signalRow(s result.Signal, test *model.Test) model.Signal {
	return model.Signal{
		OpenTestUUID:    test.OpenTestUUID,
		TestUID:         test.UID,
		Time:            time.UnixMilli(s.Time).UTC(),
		NetworkTypeID:   s.NetworkTypeID,
		SignalStrength:  s.SignalStrength,
		GsmBitErrorRate: s.GsmBitErrorRate,
		WifiLinkSpeed:   s.WifiLinkSpeed,
		WifiRSSI:        s.WifiRSSI,
		LteRSRP:         s.LteRSRP,
		LteRSRQ:         s.LteRSRQ,
		LteRSSNR:        s.LteRSSNR,
		LteCQI:          s.LteCQI,
		TimeNs:          s.TimeNs,
	}
}
