package modules

import "encoding/json"

// decodeArgs unmarshals a module's bound json.RawMessage args (or a nil Args,
// for modules invoked with no "with" block) into dst, leaving dst at its zero
// value when no args were bound.
func decodeArgs(args any, dst any) error {
	raw, ok := args.(json.RawMessage)
	if !ok || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
