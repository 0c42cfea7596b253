package compiler

// deepClone copies the nested map/slice structure of a resource property
// bag so the canonical snapshot can be pruned without touching the live
// resource. Scalar leaves are shared, container nodes are copied.
func deepClone(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = deepClone(item)
		}
		return out
	case map[string]string:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = item
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = deepClone(item)
		}
		return out
	case []string:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = item
		}
		return out
	default:
		return v
	}
}

func cloneProperties(props map[string]interface{}) map[string]interface{} {
	return deepClone(props).(map[string]interface{})
}
