package chat

import "encoding/json"

// Clone returns a structural copy of the part. Tool-invocation args and
// results are deep-copied per variant rather than reflected or JSON
// round-tripped wholesale.
func (p Part) Clone() Part {
	c := p
	if p.ToolInvocation != nil {
		ti := *p.ToolInvocation
		if p.ToolInvocation.Args != nil {
			ti.Args = cloneMap(p.ToolInvocation.Args)
		}
		ti.Result = cloneValue(p.ToolInvocation.Result)
		c.ToolInvocation = &ti
	}
	return c
}

// Clone returns a structural copy of the attachment.
func (a Attachment) Clone() Attachment {
	c := a
	if a.Metadata != nil {
		c.Metadata = cloneMap(a.Metadata)
	}
	return c
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue deep-copies anything JSON decoding can produce: maps, slices and
// scalars. Other kinds fall back to a JSON round trip, which drops values the
// codec cannot represent; if even that fails the original reference is kept
// rather than corrupting the part list.
func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil, bool, string, float64, int, int64, json.Number:
		return val
	case map[string]interface{}:
		return cloneMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return val
		}
		var clone interface{}
		if err := json.Unmarshal(data, &clone); err != nil {
			return val
		}
		return clone
	}
}
