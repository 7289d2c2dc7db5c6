package triagev1

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// ToStruct converts a JSON-serialisable value into a Struct. Values that do
// not encode to a JSON object are rejected.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode struct: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decode struct: %w", err)
	}
	return structpb.NewStruct(fields)
}

// FromStruct decodes s into out using the same JSON field names.
func FromStruct(s *structpb.Struct, out any) error {
	if s == nil {
		return fmt.Errorf("struct is nil")
	}
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("encode struct: %w", err)
	}
	return json.Unmarshal(data, out)
}

// StringField returns the string value at key, or "".
func StringField(s *structpb.Struct, key string) string {
	if s == nil {
		return ""
	}
	v, ok := s.GetFields()[key]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

// IntField returns the numeric value at key truncated to int, or 0.
func IntField(s *structpb.Struct, key string) int {
	if s == nil {
		return 0
	}
	v, ok := s.GetFields()[key]
	if !ok {
		return 0
	}
	return int(v.GetNumberValue())
}
