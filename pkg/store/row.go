package store

import (
	"database/sql"
	"time"

	"github.com/linkcomfort/linkcomfort/pkg/types"
)

// insertArgs flattens a sample into the column order of insertSQL.
// Absent values become SQL NULL, never sentinel numbers.
func insertArgs(s types.Sample, createdAt time.Time) []any {
	_, offset := s.Timestamp.Zone()

	var dl, ul, ping, jitter sql.NullFloat64
	if s.Metrics != nil {
		dl = sql.NullFloat64{Float64: s.Metrics.DownloadMbps, Valid: true}
		ul = sql.NullFloat64{Float64: s.Metrics.UploadMbps, Valid: true}
		ping = sql.NullFloat64{Float64: s.Metrics.PingMs, Valid: true}
		jitter = sql.NullFloat64{Float64: s.Metrics.JitterMs, Valid: true}
	}

	return []any{
		s.RunID,
		s.Timestamp.UnixNano(),
		offset,
		string(s.Status),
		dl, ul, ping, jitter,
		nullString(s.Provider),
		nullString(s.ServerID),
		nullString(s.ServerName),
		nullString(s.ResultURL),
		nullString(s.ErrorMessage),
		s.RawPayload,
		createdAt.UnixNano(),
	}
}

// scanSample reads one row produced by querySQL.
func scanSample(rows *sql.Rows) (types.Sample, error) {
	var (
		s                              types.Sample
		measuredAt                     int64
		offset                         int
		status                         string
		dl, ul, ping, jitter           sql.NullFloat64
		provider, serverID, serverName sql.NullString
		resultURL, errorMessage        sql.NullString
	)
	if err := rows.Scan(
		&s.RunID, &measuredAt, &offset, &status,
		&dl, &ul, &ping, &jitter,
		&provider, &serverID, &serverName, &resultURL,
		&errorMessage, &s.RawPayload,
	); err != nil {
		return types.Sample{}, err
	}

	s.Timestamp = time.Unix(0, measuredAt).In(zoneFor(offset))
	s.Status = types.Status(status)
	if dl.Valid && ul.Valid && ping.Valid && jitter.Valid {
		s.Metrics = &types.Metrics{
			DownloadMbps: dl.Float64,
			UploadMbps:   ul.Float64,
			PingMs:       ping.Float64,
			JitterMs:     jitter.Float64,
		}
	}
	s.Provider = provider.String
	s.ServerID = serverID.String
	s.ServerName = serverName.String
	s.ResultURL = resultURL.String
	s.ErrorMessage = errorMessage.String
	return s, nil
}

// zoneFor rebuilds the location a timestamp was recorded in. Only the
// offset survives storage; the zone name does not.
func zoneFor(offset int) *time.Location {
	if offset == 0 {
		return time.UTC
	}
	return time.FixedZone("", offset)
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
