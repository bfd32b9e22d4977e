package bench

import (
	"encoding/xml"
	"fmt"
	"io"
)

type xmlReport struct {
	XMLName  xml.Name   `xml:"bench"`
	Querymix xmlMix     `xml:"querymix"`
	Queries  []xmlQuery `xml:"queries>query"`
}

type xmlMix struct {
	ScaleFactor   int    `xml:"scalefactor"`
	Warmups       int    `xml:"warmups"`
	Clients       int    `xml:"nrthreads,omitempty"`
	Seed          int64  `xml:"seed"`
	Runs          int    `xml:"querymixruns"`
	MinRuntime    string `xml:"minquerymixruntime"`
	MaxRuntime    string `xml:"maxquerymixruntime"`
	TotalRuntime  string `xml:"totalruntime"`
	ActualRuntime string `xml:"actualtotalruntime,omitempty"`
	QMpH          string `xml:"qmph"`
	CQET          string `xml:"cqet"`
	CQETGeo       string `xml:"cqetg"`
	FailedClients int    `xml:"failedclients,omitempty"`
	LostRuns      int    `xml:"lostruns,omitempty"`
}

type xmlQuery struct {
	Nr         int    `xml:"nr,attr"`
	Count      int    `xml:"executecount"`
	AQET       string `xml:"aqet"`
	AQETGeo    string `xml:"aqetg,omitempty"`
	QPS        string `xml:"qps,omitempty"`
	MinQET     string `xml:"minqet,omitempty"`
	MaxQET     string `xml:"maxqet,omitempty"`
	AvgResults string `xml:"avgresults,omitempty"`
	MinResults string `xml:"minresults,omitempty"`
	MaxResults string `xml:"maxresults,omitempty"`
	Timeouts   string `xml:"timeoutcount,omitempty"`
	Errors     int    `xml:"errorcount,omitempty"`
}

// WriteXML writes the structured report. Every global query slot appears;
// slots that never executed carry a zero count.
func WriteXML(w io.Writer, s BenchStats) error {
	rep := xmlReport{Querymix: xmlMix{
		ScaleFactor:   s.ScaleFactor,
		Warmups:       s.Warmups,
		Clients:       s.Clients,
		Seed:          s.Seed,
		Runs:          s.Runs,
		MinRuntime:    fmt.Sprintf("%.4f", s.MinMix),
		MaxRuntime:    fmt.Sprintf("%.4f", s.MaxMix),
		TotalRuntime:  fmt.Sprintf("%.3f", s.TotalRun),
		QMpH:          fmt.Sprintf("%.2f", s.QMpH),
		CQET:          fmt.Sprintf("%.5f", s.CQET),
		CQETGeo:       fmt.Sprintf("%.5f", s.CQETGeo),
		FailedClients: len(s.FailedClients),
		LostRuns:      s.LostRuns,
	}}
	if s.MultiClient() {
		rep.Querymix.ActualRuntime = fmt.Sprintf("%.3f", s.WallRun)
	}

	byIndex := make(map[int]QueryReport, len(s.Queries))
	for _, q := range s.Queries {
		byIndex[q.Index] = q
	}
	for i := 1; i <= s.Size; i++ {
		q, ok := byIndex[i]
		if !ok || q.Count == 0 {
			rep.Queries = append(rep.Queries, xmlQuery{Nr: i, AQET: "0.0", Errors: q.Errors})
			continue
		}
		rep.Queries = append(rep.Queries, xmlQuery{
			Nr:         i,
			Count:      q.Count,
			AQET:       fmt.Sprintf("%.6f", q.AQET),
			AQETGeo:    fmt.Sprintf("%.6f", q.AQETGeo),
			QPS:        fmt.Sprintf("%.2f", q.QPS),
			MinQET:     fmt.Sprintf("%.8f", q.MinQET),
			MaxQET:     fmt.Sprintf("%.8f", q.MaxQET),
			AvgResults: fmt.Sprintf("%.2f", q.AvgResult),
			MinResults: fmt.Sprintf("%d", q.MinResult),
			MaxResults: fmt.Sprintf("%d", q.MaxResult),
			Timeouts:   fmt.Sprintf("%d", q.Timeouts),
			Errors:     q.Errors,
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

type jsonFailure struct {
	Client        int    `json:"client"`
	Phase         string `json:"phase"`
	Error         string `json:"error"`
	CompletedRuns int    `json:"completed_runs"`
	PlannedRuns   int    `json:"planned_runs"`
}

type jsonQuery struct {
	Index     int     `json:"nr"`
	Type      string  `json:"type"`
	Count     int     `json:"count"`
	AQET      float64 `json:"aqet"`
	AQETGeo   float64 `json:"aqet_geo"`
	QPS       float64 `json:"qps"`
	MinQET    float64 `json:"min_qet"`
	MaxQET    float64 `json:"max_qet"`
	AvgResult float64 `json:"avg_result"`
	MinResult int     `json:"min_result"`
	MaxResult int     `json:"max_result"`
	Timeouts  int     `json:"timeouts"`
	Errors    int     `json:"errors"`
}

type jsonReport struct {
	Label       string        `json:"label"`
	ScaleFactor int           `json:"scale_factor"`
	Warmups     int           `json:"warmups"`
	Clients     int           `json:"clients,omitempty"`
	Seed        int64         `json:"seed"`
	Runs        int           `json:"runs"`
	MinMix      float64       `json:"min_mix_runtime"`
	MaxMix      float64       `json:"max_mix_runtime"`
	TotalRun    float64       `json:"total_runtime"`
	WallRun     float64       `json:"wall_runtime,omitempty"`
	QMpH        float64       `json:"qmph"`
	CQET        float64       `json:"cqet"`
	CQETGeo     float64       `json:"cqet_geo"`
	Incomplete  bool          `json:"incomplete"`
	LostRuns    int           `json:"lost_runs,omitempty"`
	Failures    []jsonFailure `json:"failures,omitempty"`
	Queries     []jsonQuery   `json:"queries"`
}

func WriteJSON(w io.Writer, s BenchStats) error {
	rep := jsonReport{
		Label:       s.Label,
		ScaleFactor: s.ScaleFactor,
		Warmups:     s.Warmups,
		Clients:     s.Clients,
		Seed:        s.Seed,
		Runs:        s.Runs,
		MinMix:      s.MinMix,
		MaxMix:      s.MaxMix,
		TotalRun:    s.TotalRun,
		WallRun:     s.WallRun,
		QMpH:        s.QMpH,
		CQET:        s.CQET,
		CQETGeo:     s.CQETGeo,
		Incomplete:  len(s.FailedClients) > 0 || s.LostRuns > 0,
		LostRuns:    s.LostRuns,
		Queries:     make([]jsonQuery, 0, len(s.Queries)),
	}
	for _, f := range s.FailedClients {
		jf := jsonFailure{Client: f.Client, Phase: f.Phase, CompletedRuns: f.CompletedRuns, PlannedRuns: f.PlannedRuns}
		if f.Err != nil {
			jf.Error = f.Err.Error()
		}
		rep.Failures = append(rep.Failures, jf)
	}
	for _, q := range s.Queries {
		rep.Queries = append(rep.Queries, jsonQuery{
			Index:     q.Index,
			Type:      q.Type.String(),
			Count:     q.Count,
			AQET:      q.AQET,
			AQETGeo:   q.AQETGeo,
			QPS:       q.QPS,
			MinQET:    q.MinQET,
			MaxQET:    q.MaxQET,
			AvgResult: q.AvgResult,
			MinResult: q.MinResult,
			MaxResult: q.MaxResult,
			Timeouts:  q.Timeouts,
			Errors:    q.Errors,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
