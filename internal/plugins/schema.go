package plugins

import "time"

// Property describes one field of a plugin config document.
type Property struct {
	Name        string
	Type        string // JSON schema type: string, integer, array, object
	Description string
	Default     any
	Enum        []string
	Required    bool
	// Items is the element type of an array or the value type of an object.
	Items string
}

// Schema renders properties as a JSON schema object.
func Schema(props ...Property) map[string]any {
	properties := make(map[string]any, len(props))
	var required []string

	for _, p := range props {
		field := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Default != nil {
			field["default"] = p.Default
		}
		if len(p.Enum) > 0 {
			field["enum"] = p.Enum
		}
		switch {
		case p.Items == "":
		case p.Type == "array":
			field["items"] = map[string]any{"type": p.Items}
		case p.Type == "object":
			field["additionalProperties"] = map[string]any{"type": p.Items}
		}
		properties[p.Name] = field

		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Batch is the batching section shared by buffered writer configs.
type Batch struct {
	BatchSize int `json:"batchSize,omitempty" validate:"gte=0"`
	// FlushInterval is in seconds.
	FlushInterval int `json:"flushInterval,omitempty" validate:"gte=0"`
}

// Interval returns FlushInterval as a duration.
func (b Batch) Interval() time.Duration {
	return time.Duration(b.FlushInterval) * time.Second
}

// BatchProperties describes Batch for Schema.
func BatchProperties() []Property {
	return []Property{
		{Name: "batchSize", Type: "integer", Description: "Transactions buffered before a write", Default: 10},
		{Name: "flushInterval", Type: "integer", Description: "Seconds between automatic flushes", Default: 30},
	}
}

// FileProperty is the required filePath field of file based plugins.
func FileProperty(description string) Property {
	return Property{Name: "filePath", Type: "string", Description: description, Required: true}
}
