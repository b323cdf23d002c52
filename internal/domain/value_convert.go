package domain

import (
	"github.com/eleven-am/flowgraph/internal/xjson"
)

// FromInterface converts a plain Go value (typically the result of a
// JSON decode or a script engine export) into a Value. Unknown types are
// carried as Json payloads when they serialize, Null otherwise.
func FromInterface(v interface{}) Value {
	switch t := v.(type) {
	case nil:
		return NullValue()
	case bool:
		return BoolValue(t)
	case float64:
		return NumberValue(t)
	case float32:
		return NumberValue(float64(t))
	case int:
		return IntValue(int64(t))
	case int32:
		return IntValue(int64(t))
	case int64:
		return IntValue(t)
	case string:
		return StringValue(t)
	case []byte:
		return BytesValue(t)
	case Value:
		return t
	case []interface{}:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = FromInterface(item)
		}
		return ArrayValue(items...)
	case map[string]interface{}:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			fields[k] = FromInterface(item)
		}
		return ObjectValue(fields)
	default:
		raw, err := xjson.Marshal(v)
		if err != nil {
			return NullValue()
		}
		return JsonValue(raw)
	}
}

// Interface converts a Value back into plain Go data.
func (v Value) Interface() interface{} {
	switch v.Kind() {
	case ValueKindNull:
		return nil
	case ValueKindBool:
		return v.boolV
	case ValueKindNumber:
		return v.numV
	case ValueKindString:
		return v.strV
	case ValueKindBytes:
		return v.bytsV
	case ValueKindJson:
		var out interface{}
		if err := xjson.Unmarshal(v.jsonV, &out); err != nil {
			return string(v.jsonV)
		}
		return out
	case ValueKindArray:
		items := make([]interface{}, len(v.arrV))
		for i, item := range v.arrV {
			items[i] = item.Interface()
		}
		return items
	case ValueKindObject:
		fields := make(map[string]interface{}, len(v.objV))
		for k, item := range v.objV {
			fields[k] = item.Interface()
		}
		return fields
	}
	return nil
}
