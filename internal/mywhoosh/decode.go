package mywhoosh

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/marcelorodrigo/mywhoosh-to-garmin/internal/domain"
)

// rawActivity is one loosely-typed record as the API returns it. It never
// escapes this package: decodeActivityList converts to domain.Activity.
type rawActivity map[string]any

// listDecoder recognizes one response envelope shape. Decoders run in
// priority order; one that does not recognize the envelope reports
// ok=false and the next takes over.
type listDecoder struct {
	name   string
	decode func([]byte) ([]rawActivity, bool)
}

var listDecoders = []listDecoder{
	{"flat-list", decodeFlatList},
	{"data-results", decodeDataResults},
	{"data-list", decodeDataList},
	{"keyed-list", decodeKeyedList},
}

func decodeActivityList(body []byte) ([]domain.Activity, error) {
	for _, decoder := range listDecoders {
		raws, ok := decoder.decode(body)
		if !ok {
			continue
		}
		activities := make([]domain.Activity, 0, len(raws))
		for _, raw := range raws {
			activities = append(activities, activityFromRaw(raw))
		}
		return activities, nil
	}
	return nil, fmt.Errorf("unrecognized activity list envelope")
}

// decodeFlatList handles a bare JSON array of records.
func decodeFlatList(body []byte) ([]rawActivity, bool) {
	var list []rawActivity
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, false
	}
	return list, true
}

// decodeDataResults handles {"data": {"results": [...]}}. A data object
// without results claims the envelope with zero records, matching the
// service's paginated shape.
func decodeDataResults(body []byte) ([]rawActivity, bool) {
	var envelope struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Data == nil {
		return nil, false
	}

	results, found := envelope.Data["results"]
	if !found {
		return []rawActivity{}, true
	}
	var list []rawActivity
	if err := json.Unmarshal(results, &list); err != nil {
		return nil, false
	}
	return list, true
}

// decodeDataList handles {"data": [...]}.
func decodeDataList(body []byte) ([]rawActivity, bool) {
	var envelope struct {
		Data []rawActivity `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Data == nil {
		return nil, false
	}
	return envelope.Data, true
}

// keyedListKeys are probed in order on legacy envelopes.
var keyedListKeys = []string{"activities", "results", "rides", "rideHistory"}

// decodeKeyedList handles legacy envelopes keyed by one of several list
// names. An empty list under one key does not stop the probe: a later key
// may carry the records.
func decodeKeyedList(body []byte) ([]rawActivity, bool) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, false
	}

	sawList := false
	for _, key := range keyedListKeys {
		raw, found := envelope[key]
		if !found {
			continue
		}
		var list []rawActivity
		if err := json.Unmarshal(raw, &list); err != nil {
			continue
		}
		sawList = true
		if len(list) > 0 {
			return list, true
		}
	}
	if sawList {
		return []rawActivity{}, true
	}
	return nil, false
}

func activityFromRaw(raw rawActivity) domain.Activity {
	return domain.Activity{
		ID:        stringField(raw, "id", "_id"),
		Name:      stringField(raw, "name", "title"),
		StartTime: stringField(raw, "date", "startTime", "createdAt", "timestamp"),
		FileID:    stringField(raw, "activityFileId"),
	}
}

// stringField probes candidate keys in order, accepting string and numeric
// values. Numbers render without an exponent so epoch values survive.
func stringField(raw rawActivity, keys ...string) string {
	for _, key := range keys {
		value, found := raw[key]
		if !found || value == nil {
			continue
		}
		switch v := value.(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}
