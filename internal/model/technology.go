package model

import (
	"slices"
	"strings"
)

// Technology describes an access technology code as reported by clients.
type Technology struct {
	Name      string
	Group     string
	Code      int
	Order     int
	Aggregate bool
}

// Technology groups.
const (
	Group2G      = "2G"
	Group3G      = "3G"
	Group4G      = "4G"
	Group5G      = "5G"
	GroupWLAN    = "WLAN"
	GroupLAN     = "LAN"
	GroupCLI     = "CLI"
	GroupBrowser = "BROWSER"
	GroupBT      = "BLUETOOTH"
	GroupMixed   = "MOBILE"
)

// Well-known technology codes.
const (
	CodeUnknown   = 0
	CodeLTE       = 13
	CodeWLAN      = 99
	CodeAggr2G3G  = 101
	CodeAggr3G4G  = 102
	CodeAggr2G4G  = 103
	CodeAggrAll   = 104
	CodeAggrMixed = 105
)

var technologies = map[int]Technology{
	1:  {Code: 1, Name: "GPRS", Group: Group2G, Order: 10},
	2:  {Code: 2, Name: "EDGE", Group: Group2G, Order: 11},
	3:  {Code: 3, Name: "UMTS", Group: Group3G, Order: 20},
	4:  {Code: 4, Name: "CDMA", Group: Group2G, Order: 12},
	5:  {Code: 5, Name: "EVDO_0", Group: Group3G, Order: 21},
	6:  {Code: 6, Name: "EVDO_A", Group: Group3G, Order: 22},
	7:  {Code: 7, Name: "1xRTT", Group: Group2G, Order: 13},
	8:  {Code: 8, Name: "HSDPA", Group: Group3G, Order: 23},
	9:  {Code: 9, Name: "HSUPA", Group: Group3G, Order: 24},
	10: {Code: 10, Name: "HSPA", Group: Group3G, Order: 25},
	11: {Code: 11, Name: "IDEN", Group: Group2G, Order: 14},
	12: {Code: 12, Name: "EVDO_B", Group: Group3G, Order: 26},
	13: {Code: CodeLTE, Name: "LTE", Group: Group4G, Order: 30},
	14: {Code: 14, Name: "EHRPD", Group: Group3G, Order: 27},
	15: {Code: 15, Name: "HSPA+", Group: Group3G, Order: 28},
	16: {Code: 16, Name: "GSM", Group: Group2G, Order: 15},
	17: {Code: 17, Name: "TD_SCDMA", Group: Group3G, Order: 29},
	19: {Code: 19, Name: "LTE CA", Group: Group4G, Order: 31},
	20: {Code: 20, Name: "NR", Group: Group5G, Order: 40},
	41: {Code: 41, Name: "NR NSA", Group: Group5G, Order: 41},

	97:       {Code: 97, Name: "CLI", Group: GroupCLI, Order: 1},
	98:       {Code: 98, Name: "BROWSER", Group: GroupBrowser, Order: 2},
	CodeWLAN: {Code: CodeWLAN, Name: "WLAN", Group: GroupWLAN, Order: 5},
	106:      {Code: 106, Name: "ETHERNET", Group: GroupLAN, Order: 6},
	107:      {Code: 107, Name: "BLUETOOTH", Group: GroupBT, Order: 3},

	CodeAggr2G3G:  {Code: CodeAggr2G3G, Name: "2G/3G", Group: GroupMixed, Order: 50, Aggregate: true},
	CodeAggr3G4G:  {Code: CodeAggr3G4G, Name: "3G/4G", Group: GroupMixed, Order: 51, Aggregate: true},
	CodeAggr2G4G:  {Code: CodeAggr2G4G, Name: "2G/4G", Group: GroupMixed, Order: 52, Aggregate: true},
	CodeAggrAll:   {Code: CodeAggrAll, Name: "2G/3G/4G", Group: GroupMixed, Order: 53, Aggregate: true},
	CodeAggrMixed: {Code: CodeAggrMixed, Name: "MOBILE", Group: GroupMixed, Order: 54, Aggregate: true},
}

// LookupTechnology returns the catalog entry for code.
func LookupTechnology(code int) (Technology, bool) {
	t, ok := technologies[code]
	return t, ok
}

// AggregateTechnology returns the aggregate technology that stands for a test
// run that used all the given cellular groups. It returns false when fewer
// than two cellular groups were seen.
func AggregateTechnology(groups []string) (Technology, bool) {
	var cellular []string
	for _, g := range groups {
		switch g {
		case Group2G, Group3G, Group4G, Group5G:
			if !slices.Contains(cellular, g) {
				cellular = append(cellular, g)
			}
		}
	}
	if len(cellular) < 2 {
		return Technology{}, false
	}
	slices.Sort(cellular)

	switch strings.Join(cellular, "/") {
	case "2G/3G":
		return technologies[CodeAggr2G3G], true
	case "3G/4G":
		return technologies[CodeAggr3G4G], true
	case "2G/4G":
		return technologies[CodeAggr2G4G], true
	case "2G/3G/4G":
		return technologies[CodeAggrAll], true
	default:
		return technologies[CodeAggrMixed], true
	}
}

// Observation builds the observation row recording technology t for a test run.
func (t Technology) Observation(test *Test) NetworkTypeObservation {
	return NetworkTypeObservation{
		OpenTestUUID:    test.OpenTestUUID,
		TypeUID:         t.Code,
		Name:            t.Name,
		TechnologyOrder: t.Order,
		Aggregate:       t.Aggregate,
	}
}
