package patch

import (
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
)

// mergeParams recursively merges src into dst under layer, recording the
// layer that last wrote each leaf path in attribution. Reset semantics:
// when a non-object value replaces an existing object subtree, every
// attribution entry under that subtree is discarded before the new
// attribution is written.
func mergeParams(dst map[string]any, src map[string]any, layer string, prefix string, attribution map[string]string) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for k, v := range src {
		path := joinPath(prefix, k)
		if srcObj, isObj := v.(map[string]any); isObj {
			existing, existingIsObj := dst[k].(map[string]any)
			if !existingIsObj {
				existing = map[string]any{}
			}
			dst[k] = mergeParams(existing, srcObj, layer, path, attribution)
			delete(attribution, path)
			continue
		}
		removeAttributionSubtree(attribution, path)
		dst[k] = v
		attribution[path] = layer
	}
	return dst
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func removeAttributionSubtree(attribution map[string]string, path string) {
	delete(attribution, path)
	childPrefix := path + "."
	for k := range attribution {
		if strings.HasPrefix(k, childPrefix) {
			delete(attribution, k)
		}
	}
}

// paramsHash computes a stable 64-bit FNV-1a fingerprint of params, sorting
// object keys lexicographically at every level and writing slices in their
// existing order, so the hash is independent of the source JSON's key order.
func paramsHash(params map[string]any) uint64 {
	h := fnv.New64a()
	writeCanonical(h, params)
	return h.Sum64()
}

type byteWriter interface {
	Write(p []byte) (int, error)
}

func writeCanonical(h byteWriter, v any) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		h.Write([]byte{'{'})
		for _, k := range keys {
			h.Write([]byte(k))
			h.Write([]byte{':'})
			writeCanonical(h, t[k])
			h.Write([]byte{','})
		}
		h.Write([]byte{'}'})
	case []any:
		h.Write([]byte{'['})
		for _, e := range t {
			writeCanonical(h, e)
			h.Write([]byte{','})
		}
		h.Write([]byte{']'})
	case string:
		h.Write([]byte{'"'})
		h.Write([]byte(t))
		h.Write([]byte{'"'})
	case bool:
		h.Write([]byte(strconv.FormatBool(t)))
	case nil:
		h.Write([]byte("null"))
	case float64:
		h.Write([]byte(strconv.FormatFloat(t, 'g', -1, 64)))
	default:
		h.Write([]byte{'?'})
	}
}
