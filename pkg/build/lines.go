package build

import "sort"

// Transport modes as the provider names them.
const (
	ModeTube       = "tube"
	ModeDLR        = "dlr"
	ModeElizabeth  = "elizabeth-line"
	ModeOverground = "overground"
)

// lineModes fixes the line set the graph is built from and the mode each
// line belongs to. The overground entries are the named lines introduced in
// 2024.
var lineModes = map[string]string{
	"bakerloo":         ModeTube,
	"central":          ModeTube,
	"circle":           ModeTube,
	"district":         ModeTube,
	"hammersmith-city": ModeTube,
	"jubilee":          ModeTube,
	"metropolitan":     ModeTube,
	"northern":         ModeTube,
	"piccadilly":       ModeTube,
	"victoria":         ModeTube,
	"waterloo-city":    ModeTube,
	"dlr":              ModeDLR,
	"elizabeth":        ModeElizabeth,
	"liberty":          ModeOverground,
	"lioness":          ModeOverground,
	"mildmay":          ModeOverground,
	"suffragette":      ModeOverground,
	"weaver":           ModeOverground,
	"windrush":         ModeOverground,
}

var lineNames = map[string]string{
	"bakerloo":         "Bakerloo",
	"central":          "Central",
	"circle":           "Circle",
	"district":         "District",
	"hammersmith-city": "Hammersmith & City",
	"jubilee":          "Jubilee",
	"metropolitan":     "Metropolitan",
	"northern":         "Northern",
	"piccadilly":       "Piccadilly",
	"victoria":         "Victoria",
	"waterloo-city":    "Waterloo & City",
	"dlr":              "DLR",
	"elizabeth":        "Elizabeth line",
	"liberty":          "Liberty",
	"lioness":          "Lioness",
	"mildmay":          "Mildmay",
	"suffragette":      "Suffragette",
	"weaver":           "Weaver",
	"windrush":         "Windrush",
}

func lineDisplayName(id string) string {
	if n, ok := lineNames[id]; ok {
		return n
	}
	return id
}

// knownLines returns the line IDs in deterministic order.
func knownLines() []string {
	out := make([]string, 0, len(lineModes))
	for id := range lineModes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// overgroundLines returns the lines weighted through the journey planner
// (stage 6), in deterministic order.
func overgroundLines() []string {
	var out []string
	for id, mode := range lineModes {
		if mode == ModeOverground || mode == ModeElizabeth {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// timetabledLines returns the lines weighted from timetables (stages 4-5),
// in deterministic order.
func timetabledLines() []string {
	var out []string
	for id, mode := range lineModes {
		if mode == ModeTube || mode == ModeDLR {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// modeRank orders modes by how representative their station coordinates
// are for a hub. Higher wins.
func modeRank(mode string) int {
	switch mode {
	case ModeTube:
		return 4
	case ModeDLR:
		return 3
	case ModeOverground:
		return 2
	case ModeElizabeth:
		return 1
	default:
		return 0
	}
}
