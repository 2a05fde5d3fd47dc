package measure

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/linkcomfort/linkcomfort/pkg/types"
)

// bitsPerByte and bitsPerMegabit convert Ookla's bandwidth (bytes/s) to Mbps.
const (
	bitsPerByte    = 8
	bitsPerMegabit = 1e6
)

// ooklaResult is the subset of the Ookla CLI --format=json document we read.
// Pointers distinguish a missing field from a zero value.
type ooklaResult struct {
	Ping *struct {
		Jitter  *float64 `json:"jitter"`
		Latency *float64 `json:"latency"`
	} `json:"ping"`
	Download *struct {
		Bandwidth *float64 `json:"bandwidth"`
	} `json:"download"`
	Upload *struct {
		Bandwidth *float64 `json:"bandwidth"`
	} `json:"upload"`
	ISP    string `json:"isp"`
	Server *struct {
		ID   json.RawMessage `json:"id"`
		Name string          `json:"name"`
	} `json:"server"`
	Result *struct {
		URL string `json:"url"`
	} `json:"result"`
}

// parsed is a successfully decoded result, ready to become an ok Sample.
type parsed struct {
	metrics    types.Metrics
	provider   string
	serverID   string
	serverName string
	resultURL  string
}

// parseResult decodes one Ookla JSON document. Every required field must be
// present and every metric finite and non-negative.
func parseResult(out []byte) (parsed, error) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return parsed{}, errors.New("empty output")
	}

	var r ooklaResult
	if err := json.Unmarshal(out, &r); err != nil {
		return parsed{}, fmt.Errorf("invalid json: %w", err)
	}

	switch {
	case r.Download == nil || r.Download.Bandwidth == nil:
		return parsed{}, errors.New("missing download.bandwidth")
	case r.Upload == nil || r.Upload.Bandwidth == nil:
		return parsed{}, errors.New("missing upload.bandwidth")
	case r.Ping == nil || r.Ping.Latency == nil:
		return parsed{}, errors.New("missing ping.latency")
	case r.Ping.Jitter == nil:
		return parsed{}, errors.New("missing ping.jitter")
	case strings.TrimSpace(r.ISP) == "":
		return parsed{}, errors.New("missing isp")
	case r.Server == nil:
		return parsed{}, errors.New("missing server.id")
	}

	serverID, err := rawID(r.Server.ID)
	if err != nil {
		return parsed{}, fmt.Errorf("server.id: %w", err)
	}

	m := types.Metrics{
		DownloadMbps: *r.Download.Bandwidth * bitsPerByte / bitsPerMegabit,
		UploadMbps:   *r.Upload.Bandwidth * bitsPerByte / bitsPerMegabit,
		PingMs:       *r.Ping.Latency,
		JitterMs:     *r.Ping.Jitter,
	}
	for name, v := range map[string]float64{
		"download": m.DownloadMbps,
		"upload":   m.UploadMbps,
		"ping":     m.PingMs,
		"jitter":   m.JitterMs,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return parsed{}, fmt.Errorf("%s value %v is not a finite non-negative number", name, v)
		}
	}

	p := parsed{
		metrics:    m,
		provider:   strings.TrimSpace(r.ISP),
		serverID:   serverID,
		serverName: r.Server.Name,
	}
	if r.Result != nil {
		p.resultURL = r.Result.URL
	}
	return p, nil
}

// rawID accepts a server id encoded as either a JSON number or string.
func rawID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", errors.New("missing")
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil && n.String() != "" {
		return n.String(), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("unexpected value %s", raw)
	}
	if s = strings.TrimSpace(s); s == "" {
		return "", errors.New("missing")
	}
	return s, nil
}
