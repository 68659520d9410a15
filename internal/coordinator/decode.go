package coordinator

import (
	"encoding/json"
	"errors"
)

var errNoData = errors.New("message has no data")

func decodeJSON(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errNoData
	}
	return json.Unmarshal(raw, v)
}
