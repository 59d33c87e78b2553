package gemini

// Keywords outside the OpenAPI 3.0 subset accepted by responseSchema.
var unsupportedKeywords = map[string]bool{
	"$schema":               true,
	"$id":                   true,
	"$ref":                  true,
	"$defs":                 true,
	"definitions":           true,
	"$comment":              true,
	"additionalProperties":  true,
	"default":               true,
	"examples":              true,
	"const":                 true,
	"oneOf":                 true,
	"allOf":                 true,
	"not":                   true,
	"if":                    true,
	"then":                  true,
	"else":                  true,
	"patternProperties":     true,
	"unevaluatedProperties": true,
	"dependentRequired":     true,
	"dependentSchemas":      true,
	"contentEncoding":       true,
	"contentMediaType":      true,
}

// responseSchema returns a copy of a JSON Schema reduced to what Gemini
// accepts. A type union with "null" becomes the single type plus nullable.
func responseSchema(schema map[string]any) map[string]any {
	if schema == nil {
		return nil
	}
	out := make(map[string]any, len(schema))
	for key, value := range schema {
		if unsupportedKeywords[key] {
			continue
		}
		switch key {
		case "type":
			typ, nullable := collapseType(value)
			out["type"] = typ
			if nullable {
				out["nullable"] = true
			}
		case "properties":
			props, ok := value.(map[string]any)
			if !ok {
				continue
			}
			converted := make(map[string]any, len(props))
			for name, prop := range props {
				if node, ok := prop.(map[string]any); ok {
					converted[name] = responseSchema(node)
				}
			}
			out[key] = converted
		case "items":
			if node, ok := value.(map[string]any); ok {
				out[key] = responseSchema(node)
			}
		case "anyOf":
			list, ok := value.([]any)
			if !ok {
				continue
			}
			converted := make([]any, 0, len(list))
			for _, item := range list {
				if node, ok := item.(map[string]any); ok {
					converted = append(converted, responseSchema(node))
				}
			}
			out[key] = converted
		default:
			out[key] = value
		}
	}
	return out
}

func collapseType(value any) (any, bool) {
	list, ok := value.([]any)
	if !ok {
		return value, false
	}
	var types []any
	nullable := false
	for _, t := range list {
		if t == "null" {
			nullable = true
			continue
		}
		types = append(types, t)
	}
	if len(types) == 1 {
		return types[0], nullable
	}
	return types, nullable
}

// usesReferences reports whether a schema relies on $ref anywhere.
func usesReferences(v any) bool {
	switch node := v.(type) {
	case map[string]any:
		if _, ok := node["$ref"]; ok {
			return true
		}
		for _, child := range node {
			if usesReferences(child) {
				return true
			}
		}
	case []any:
		for _, child := range node {
			if usesReferences(child) {
				return true
			}
		}
	}
	return false
}
