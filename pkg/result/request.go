// Package result defines the payload a client submits once a speed test has
// completed, together with the envelope the transport wraps it in.
package result

import "time"

// Envelope is the message placed on the result queue. SourceIP is the remote
// address the transport observed for the submitting client.
type Envelope struct {
	ReceivedAt time.Time `json:"received_at"`
	Result     *Request  `json:"result"`
	SourceIP   string    `json:"source_ip"`
}

// Request is a completed test result as submitted by a client device.
// Pointer fields are optional; a nil value means the client did not send it.
type Request struct {
	// TestToken has the form "<uuid>_<nonce>".
	TestToken string `json:"test_token"`

	ClientName            string `json:"client_name"`
	ClientVersion         string `json:"client_version"`
	ClientSoftwareVersion string `json:"client_software_version,omitempty"`
	ClientLanguage        string `json:"client_language,omitempty"`
	ClientTime            *int64 `json:"client_time,omitempty"`

	Model     string `json:"model,omitempty"`
	Device    string `json:"device,omitempty"`
	Product   string `json:"product,omitempty"`
	OSVersion string `json:"os_version,omitempty"`
	APILevel  string `json:"api_level,omitempty"`
	Platform  string `json:"plattform,omitempty"`
	Timezone  string `json:"timezone,omitempty"`

	TelephonyNetworkOperator        *string `json:"telephony_network_operator,omitempty"`
	TelephonyNetworkSimOperator     *string `json:"telephony_network_sim_operator,omitempty"`
	TelephonyNetworkOperatorName    string  `json:"telephony_network_operator_name,omitempty"`
	TelephonyNetworkSimOperatorName string  `json:"telephony_network_sim_operator_name,omitempty"`
	TelephonyNetworkCountry         string  `json:"telephony_network_country,omitempty"`
	TelephonyNetworkSimCountry      string  `json:"telephony_network_sim_country,omitempty"`
	TelephonyNetworkIsRoaming       *bool   `json:"telephony_network_is_roaming,omitempty"`

	WifiSSID      string `json:"wifi_ssid,omitempty"`
	WifiBSSID     string `json:"wifi_bssid,omitempty"`
	WifiNetworkID string `json:"wifi_network_id,omitempty"`

	TestIPLocal  *string `json:"test_ip_local,omitempty"`
	TestIPServer *string `json:"test_ip_server,omitempty"`
	Encryption   string  `json:"test_encryption,omitempty"`

	BytesDownload      int64 `json:"test_bytes_download,omitempty"`
	BytesUpload        int64 `json:"test_bytes_upload,omitempty"`
	NSecDownload       int64 `json:"test_nsec_download,omitempty"`
	NSecUpload         int64 `json:"test_nsec_upload,omitempty"`
	TotalBytesDownload int64 `json:"test_total_bytes_download,omitempty"`
	TotalBytesUpload   int64 `json:"test_total_bytes_upload,omitempty"`
	NumThreads         int   `json:"test_num_threads,omitempty"`
	NumThreadsUl       int   `json:"num_threads_ul,omitempty"`

	// DownloadSpeed and UploadSpeed are in kbit/s.
	DownloadSpeed *int64 `json:"test_speed_download,omitempty"`
	UploadSpeed   *int64 `json:"test_speed_upload,omitempty"`
	// PingShortest is in nanoseconds.
	PingShortest *int64 `json:"test_ping_shortest,omitempty"`

	TestStatus *string `json:"test_status,omitempty"`

	AndroidPermissionStatuses []AndroidPermission `json:"android_permission_status,omitempty"`

	SpeedDetails  []SpeedDetail  `json:"speed_detail,omitempty"`
	Pings         []Ping         `json:"pings,omitempty"`
	GeoLocations  []GeoLocation  `json:"geoLocations,omitempty"`
	RadioInfo     *RadioInfo     `json:"radioInfo,omitempty"`
	CellLocations []CellLocation `json:"cellLocations,omitempty"`
	Signals       []Signal       `json:"signals,omitempty"`
}

// AndroidPermission reports whether a single Android permission was granted.
type AndroidPermission struct {
	Permission string `json:"permission"`
	Status     bool   `json:"status"`
}

// SpeedDetail is one throughput sample of a single transfer thread.
type SpeedDetail struct {
	Direction string `json:"direction"`
	Thread    int    `json:"thread"`
	TimeNs    int64  `json:"time"`
	Bytes     int64  `json:"bytes"`
}

// Ping is one round trip measured during the ping phase.
type Ping struct {
	ValueServer int64 `json:"value_server"`
	Value       int64 `json:"value"`
	TimeNs      int64 `json:"time_ns"`
}

// GeoLocation is a location fix reported by the device.
type GeoLocation struct {
	Provider  string  `json:"provider"`
	Latitude  float64 `json:"geo_lat"`
	Longitude float64 `json:"geo_long"`
	Accuracy  float64 `json:"accuracy"`
	Altitude  float64 `json:"altitude"`
	Bearing   float64 `json:"bearing"`
	Speed     float64 `json:"speed"`
	Tstamp    int64   `json:"tstamp"`
	TimeNs    int64   `json:"time_ns"`
}

// RadioInfo groups the radio cells seen during a test with the signal samples
// measured against them.
type RadioInfo struct {
	Cells   []RadioCell   `json:"cells,omitempty"`
	Signals []RadioSignal `json:"signals,omitempty"`
}

// RadioCell describes a cell the device was attached to or could see.
type RadioCell struct {
	UUID                  string `json:"uuid"`
	Technology            string `json:"technology"`
	Registered            bool   `json:"registered"`
	MCC                   *int   `json:"mcc,omitempty"`
	MNC                   *int   `json:"mnc,omitempty"`
	AreaCode              *int   `json:"area_code,omitempty"`
	LocationID            *int   `json:"location_id,omitempty"`
	PrimaryScramblingCode *int   `json:"primary_scrambling_code,omitempty"`
	ChannelNumber         *int   `json:"channel_number,omitempty"`
}

// RadioSignal is a signal sample bound to a radio cell.
type RadioSignal struct {
	CellUUID      string `json:"cell_uuid"`
	NetworkTypeID int    `json:"network_type_id"`
	Signal        *int   `json:"signal,omitempty"`
	LteRSRP       *int   `json:"lte_rsrp,omitempty"`
	LteRSRQ       *int   `json:"lte_rsrq,omitempty"`
	LteRSSNR      *int   `json:"lte_rssnr,omitempty"`
	TimingAdvance *int   `json:"timing_advance,omitempty"`
	TimeNs        int64  `json:"time_ns"`
}

// CellLocation is a legacy cell fix (area code plus cell id).
type CellLocation struct {
	LocationID            int   `json:"location_id"`
	AreaCode              int   `json:"area_code"`
	PrimaryScramblingCode int   `json:"primary_scrambling_code"`
	Time                  int64 `json:"time"`
	TimeNs                int64 `json:"time_ns"`
}

// Signal is a legacy signal sample not bound to a specific cell.
type Signal struct {
	NetworkTypeID   int   `json:"network_type_id"`
	SignalStrength  *int  `json:"signal_strength,omitempty"`
	GsmBitErrorRate *int  `json:"gsm_bit_error_rate,omitempty"`
	WifiLinkSpeed   *int  `json:"wifi_link_speed,omitempty"`
	WifiRSSI        *int  `json:"wifi_rssi,omitempty"`
	LteRSRP         *int  `json:"lte_rsrp,omitempty"`
	LteRSRQ         *int  `json:"lte_rsrq,omitempty"`
	LteRSSNR        *int  `json:"lte_rssnr,omitempty"`
	LteCQI          *int  `json:"lte_cqi,omitempty"`
	Time            int64 `json:"time"`
	TimeNs          int64 `json:"time_ns"`
}
