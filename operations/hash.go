package operations

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"reflect"
	"sync"

	"github.com/smartcontractkit/access-control-sync/pkg/logger"
)

// IsSerializable returns true if v survives a JSON round trip without losing type information
// that the reporter needs to return a typed previous result.
func IsSerializable(lggr logger.Logger, v any) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		lggr.Errorw("value is not serializable", "type", rv.Type().String())
		return false
	default:
	}

	if _, err := json.Marshal(v); err != nil {
		lggr.Errorw("failed to marshal value", "type", rv.Type().String(), "error", err)
		return false
	}

	return true
}

// constructUniqueHashFrom returns the sha256 of the definition ID, version and JSON encoded input.
// The input is normalized first so a typed input and the same input loaded back from disk as
// map[string]any hash identically. Results are cached by the JSON encoding.
func constructUniqueHashFrom(cache *sync.Map, def Definition, input any) (string, error) {
	normalized, err := normalizeJSON(input)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(struct {
		ID      string `json:"id"`
		Version string `json:"version"`
		Input   any    `json:"input"`
	}{
		ID:      def.ID,
		Version: versionString(def),
		Input:   normalized,
	})
	if err != nil {
		return "", err
	}

	key := string(payload)
	if cache != nil {
		if h, ok := cache.Load(key); ok {
			return h.(string), nil
		}
	}

	sum := sha256.Sum256(payload)
	h := hex.EncodeToString(sum[:])
	if cache != nil {
		cache.Store(key, h)
	}

	return h, nil
}

// normalizeJSON round trips v through JSON keeping numbers exact, which sorts object keys.
func normalizeJSON(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}

	return out, nil
}

func versionString(def Definition) string {
	if def.Version == nil {
		return ""
	}

	return def.Version.String()
}
