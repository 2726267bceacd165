package build

// terminalStations maps each timetabled line to the station IDs its
// timetables are fetched from. Terminals give full end-to-end interval
// coverage; mid-line departure points would truncate branches.
var terminalStations = map[string][]string{
	"bakerloo":         {"940GZZLUHAW", "940GZZLUEAC"},
	"central":          {"940GZZLUWRP", "940GZZLUEBY", "940GZZLUEPG", "940GZZLUHLT"},
	"circle":           {"940GZZLUHSC", "940GZZLUERC"},
	"district":         {"940GZZLUUPM", "940GZZLUEBY", "940GZZLURMD", "940GZZLUWIM", "940GZZLUKOY"},
	"hammersmith-city": {"940GZZLUHSC", "940GZZLUBKG"},
	"jubilee":          {"940GZZLUSTM", "940GZZLUSTD"},
	"metropolitan":     {"940GZZLUALD", "940GZZLUAMS", "940GZZLUCSM", "940GZZLUUXB", "940GZZLUWAF"},
	"northern":         {"940GZZLUEGW", "940GZZLUHBT", "940GZZLUMDN", "940GZZLUMHL", "940GZZBPSUST"},
	"piccadilly":       {"940GZZLUCKS", "940GZZLUHR5", "940GZZLUUXB"},
	"victoria":         {"940GZZLUWWL", "940GZZLUBXN"},
	"waterloo-city":    {"940GZZLUWLO", "940GZZLUBNK"},
	"dlr":              {"940GZZDLBNK", "940GZZDLTWG", "940GZZDLLEW", "940GZZDLSTD", "940GZZDLWLA", "940GZZDLBEC", "940GZZDLSIT"},
}

// pointToPointFetches lists segments absent from every terminal-rooted
// timetable; stage 4 fetches these with the point-to-point endpoint.
var pointToPointFetches = map[string][][2]string{
	"dlr":      {{"940GZZDLSTD", "940GZZDLCAN"}},
	"district": {{"940GZZLUECT", "940GZZLUKOY"}},
	"central":  {{"940GZZLUGGH", "940GZZLUHLT"}},
}

// fallbackPair identifies a graph edge whose weight cannot be derived from
// timetables and is resolved through the journey planner instead.
type fallbackPair struct {
	Line     string
	FromStop string
	ToStop   string
}

// journeyFallbacks are the known timetable coverage gaps (branch
// crossovers and one-way service quirks).
var journeyFallbacks = []fallbackPair{
	{Line: "dlr", FromStop: "940GZZDLSTD", ToStop: "940GZZDLCAN"},
	{Line: "district", FromStop: "940GZZLUECT", ToStop: "940GZZLUKOY"},
	{Line: "central", FromStop: "940GZZLUGGH", ToStop: "940GZZLUHLT"},
}
