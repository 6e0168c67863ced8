package farcaster

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/BTreeMap/CastPipe/internal/models"
)

// epochMsFloor separates epoch-second from epoch-millisecond values: any
// numeric timestamp at or above it is already in milliseconds. (1e12 ms is
// 2001; 1e12 s is the year 33658.)
const epochMsFloor = 1_000_000_000_000

// NormalizeMention maps any of the inbound payload shapes onto the canonical
// Mention record. Webhook deliveries wrap the cast in a "data" or "cast"
// envelope; the polling feed returns bare cast objects. All "guess the shape"
// logic lives here so dedup and backlog logic only ever see canonical
// records. Missing fields degrade to zero values rather than errors.
func NormalizeMention(raw json.RawMessage) models.Mention {
	var envelope map[string]interface{}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return models.Mention{}
	}
	cast := envelope
	if inner, ok := envelope["data"].(map[string]interface{}); ok {
		cast = inner
	} else if inner, ok := envelope["cast"].(map[string]interface{}); ok {
		cast = inner
	}

	m := models.Mention{}
	if hash, ok := cast["hash"].(string); ok {
		m.ID = hash
	}
	if text, ok := cast["text"].(string); ok {
		m.Text = text
	}
	if author, ok := cast["author"].(map[string]interface{}); ok {
		if fid, ok := author["fid"].(float64); ok {
			m.AuthorFID = int64(fid)
		}
	}
	m.TimestampMs = normalizeTimestamp(cast["timestamp"])
	return m
}

// normalizeTimestamp derives epoch milliseconds from whatever the payload
// carried: RFC 3339 strings (the feed API), numeric strings, or bare numbers
// in either seconds or milliseconds (auto-detected by magnitude). Returns 0
// when absent or unparseable.
func normalizeTimestamp(v interface{}) int64 {
	switch t := v.(type) {
	case string:
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts.UnixMilli()
		}
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return scaleEpoch(n)
		}
		return 0
	case float64:
		return scaleEpoch(int64(t))
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return scaleEpoch(n)
		}
		return 0
	default:
		return 0
	}
}

func scaleEpoch(n int64) int64 {
	if n <= 0 {
		return 0
	}
	if n < epochMsFloor {
		return n * 1000
	}
	return n
}

// MentionsFID reports whether the payload mentions the given FID, looking at
// both webhook shapes: "mentioned_profiles" (objects with a fid field) and
// "mentions" (bare fid numbers).
func MentionsFID(raw json.RawMessage, fid int64) bool {
	var envelope map[string]interface{}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return false
	}
	cast := envelope
	if inner, ok := envelope["data"].(map[string]interface{}); ok {
		cast = inner
	} else if inner, ok := envelope["cast"].(map[string]interface{}); ok {
		cast = inner
	}

	if profiles, ok := cast["mentioned_profiles"].([]interface{}); ok {
		for _, p := range profiles {
			if obj, ok := p.(map[string]interface{}); ok {
				if f, ok := obj["fid"].(float64); ok && int64(f) == fid {
					return true
				}
			}
		}
	}
	if mentions, ok := cast["mentions"].([]interface{}); ok {
		for _, p := range mentions {
			if f, ok := p.(float64); ok && int64(f) == fid {
				return true
			}
		}
	}
	return false
}
