// Package model holds the database models of a speed test and the
// sub-measurements recorded for it.
package model

import (
	"time"

	"github.com/google/uuid"
)

// TestStatus is the lifecycle state of a Test.
type TestStatus string

const (
	// StatusStarted marks a test that was registered but has no result yet.
	StatusStarted  TestStatus = "STARTED"
	StatusFinished TestStatus = "FINISHED"
	StatusError    TestStatus = "ERROR"
	StatusAborted  TestStatus = "ABORTED"
)

// IsTerminal reports whether no further result may be applied to a test in
// this state.
func (s TestStatus) IsTerminal() bool {
	switch s {
	case StatusFinished, StatusError, StatusAborted:
		return true
	default:
		return false
	}
}

// Test is the canonical measurement record. It is created by the registration
// step and finalized exactly once when the client submits its result.
type Test struct {
	Time       time.Time  `gorm:"not null"`
	FinishedAt *time.Time `gorm:"index:idx_tests_finished_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime"`
	ClientTime *time.Time

	UUID         uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	OpenTestUUID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`

	ClientName            string
	ClientVersion         string
	ClientSoftwareVersion string
	ClientLanguage        string
	Model                 string
	Device                string
	Product               string
	OSVersion             string
	APILevel              string
	Platform              string
	Timezone              string

	NetworkOperator        *string
	NetworkSimOperator     *string
	NetworkOperatorName    string
	NetworkSimOperatorName string
	NetworkCountry         string
	NetworkSimCountry      string
	NetworkIsRoaming       *bool
	WifiSSID               string
	WifiBSSID              string
	WifiNetworkID          string

	SourceIP                string
	SourceIPAnonymized      string
	ClientIPLocal           *string
	ClientIPLocalAnonymized *string
	ClientIPLocalType       *string
	ClientPublicIP          *string
	ServerIP                *string
	NatType                 *string
	Encryption              string

	// DownloadSpeed and UploadSpeed are in kbit/s, ShortestPing in ns.
	DownloadSpeed *int64
	UploadSpeed   *int64
	ShortestPing  *int64

	BytesDownload      int64
	BytesUpload        int64
	NSecDownload       int64
	NSecUpload         int64
	TotalBytesDownload int64
	TotalBytesUpload   int64

	// AndroidPermissions is the JSON-encoded permission set, if submitted.
	AndroidPermissions *string `gorm:"type:jsonb"`

	Status TestStatus `gorm:"type:varchar(16);index:idx_tests_status;not null;default:STARTED"`

	NetworkType  int `gorm:"not null;default:0"`
	NumThreads   int
	NumThreadsUl int
	UID          uint `gorm:"primaryKey"`
}

// TableName specifies the table name for Test model.
func (Test) TableName() string {
	return "tests"
}

// NetworkTypeObservation records an access technology seen during a test run.
// Aggregate rows mark that more than one technology was used.
type NetworkTypeObservation struct {
	CreatedAt       time.Time `gorm:"autoCreateTime"`
	OpenTestUUID    uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_observation_group_type;index:idx_observation_group_order;not null"`
	Name            string    `gorm:"not null"`
	TypeUID         int       `gorm:"uniqueIndex:idx_observation_group_type;not null"`
	TechnologyOrder int       `gorm:"index:idx_observation_group_order;not null"`
	ID              uint      `gorm:"primaryKey"`
	Aggregate       bool      `gorm:"not null;default:false"`
}

// TableName specifies the table name for NetworkTypeObservation model.
func (NetworkTypeObservation) TableName() string {
	return "network_type_observations"
}

// Ping is a single round trip recorded for a test.
type Ping struct {
	OpenTestUUID uuid.UUID `gorm:"type:uuid;index:idx_pings_group;not null"`
	ValueServer  int64
	Value        int64
	TimeNs       int64
	TestUID      uint `gorm:"index:idx_pings_test;not null"`
	ID           uint `gorm:"primaryKey"`
}

// TableName specifies the table name for Ping model.
func (Ping) TableName() string {
	return "pings"
}

// Speed is a per-thread throughput sample.
type Speed struct {
	OpenTestUUID uuid.UUID `gorm:"type:uuid;index:idx_speeds_group;not null"`
	Upload       bool      `gorm:"not null"`
	Thread       int
	TimeNs       int64
	Bytes        int64
	TestUID      uint `gorm:"index:idx_speeds_test;not null"`
	ID           uint `gorm:"primaryKey"`
}

// TableName specifies the table name for Speed model.
func (Speed) TableName() string {
	return "speeds"
}

// GeoLocation is a location fix recorded during a test.
type GeoLocation struct {
	Time         time.Time
	OpenTestUUID uuid.UUID `gorm:"type:uuid;index:idx_geo_locations_group;not null"`
	Provider     string
	Latitude     float64
	Longitude    float64
	Accuracy     float64
	Altitude     float64
	Bearing      float64
	Speed        float64
	TimeNs       int64
	TestUID      uint `gorm:"index:idx_geo_locations_test;not null"`
	ID           uint `gorm:"primaryKey"`
}

// TableName specifies the table name for GeoLocation model.
func (GeoLocation) TableName() string {
	return "geo_locations"
}

// RadioCell is a radio cell seen during a test.
type RadioCell struct {
	OpenTestUUID          uuid.UUID `gorm:"type:uuid;index:idx_radio_cells_group;not null"`
	CellUUID              string    `gorm:"index:idx_radio_cells_cell"`
	Technology            string
	MCC                   *int
	MNC                   *int
	AreaCode              *int
	LocationID            *int
	PrimaryScramblingCode *int
	ChannelNumber         *int
	TestUID               uint `gorm:"index:idx_radio_cells_test;not null"`
	ID                    uint `gorm:"primaryKey"`
	Registered            bool
}

// TableName specifies the table name for RadioCell model.
func (RadioCell) TableName() string {
	return "radio_cells"
}

// RadioSignal is a signal sample bound to a radio cell.
type RadioSignal struct {
	OpenTestUUID  uuid.UUID `gorm:"type:uuid;index:idx_radio_signals_group;not null"`
	CellUUID      string
	Signal        *int
	LteRSRP       *int
	LteRSRQ       *int
	LteRSSNR      *int
	TimingAdvance *int
	TimeNs        int64
	NetworkTypeID int
	TestUID       uint `gorm:"index:idx_radio_signals_test;not null"`
	ID            uint `gorm:"primaryKey"`
}

// TableName specifies the table name for RadioSignal model.
func (RadioSignal) TableName() string {
	return "radio_signals"
}

// CellLocation is a legacy cell fix recorded during a test.
type CellLocation struct {
	Time                  time.Time
	OpenTestUUID          uuid.UUID `gorm:"type:uuid;index:idx_cell_locations_group;not null"`
	LocationID            int
	AreaCode              int
	PrimaryScramblingCode int
	TimeNs                int64
	TestUID               uint `gorm:"index:idx_cell_locations_test;not null"`
	ID                    uint `gorm:"primaryKey"`
}

// TableName specifies the table name for CellLocation model.
func (CellLocation) TableName() string {
	return "cell_locations"
}

// Signal is a legacy signal sample recorded during a test.
type Signal struct {
	Time            time.Time
	OpenTestUUID    uuid.UUID `gorm:"type:uuid;index:idx_signals_group;not null"`
	SignalStrength  *int
	GsmBitErrorRate *int
	WifiLinkSpeed   *int
	WifiRSSI        *int
	LteRSRP         *int
	LteRSRQ         *int
	LteRSSNR        *int
	LteCQI          *int
	TimeNs          int64
	NetworkTypeID   int
	TestUID         uint `gorm:"index:idx_signals_test;not null"`
	ID              uint `gorm:"primaryKey"`
}

// TableName specifies the table name for Signal model.
func (Signal) TableName() string {
	return "signals"
}

// All returns every model that has to be migrated.
func All() []any {
	return []any{
		&Test{},
		&NetworkTypeObservation{},
		&Ping{},
		&Speed{},
		&GeoLocation{},
		&RadioCell{},
		&RadioSignal{},
		&CellLocation{},
		&Signal{},
	}
}
