package tool

// Kind is the JSON schema type of a parameter.
type Kind string

const (
	KindString  Kind = "string"
	KindInteger Kind = "integer"
	KindFloat   Kind = "number"
	KindBoolean Kind = "boolean"
	KindList    Kind = "array"
	KindObject  Kind = "object"
)

// ParameterType describes the shape of a parameter value.
type ParameterType struct {
	Kind Kind
	// Enum restricts a string parameter to a fixed set of values.
	Enum []string
	// Items is the element type of a list.
	Items *ParameterType
	// Properties are the fields of an object; all of them are optional.
	Properties []Parameter
}

var (
	TypeString  = ParameterType{Kind: KindString}
	TypeInteger = ParameterType{Kind: KindInteger}
	TypeFloat   = ParameterType{Kind: KindFloat}
	TypeBoolean = ParameterType{Kind: KindBoolean}
)

// TypeEnum is a string restricted to values.
func TypeEnum(values ...string) ParameterType {
	return ParameterType{Kind: KindString, Enum: values}
}

// TypeList is a homogeneous list of items.
func TypeList(items ParameterType) ParameterType {
	return ParameterType{Kind: KindList, Items: &items}
}

// TypeObject is a nested object with the given fields.
func TypeObject(props ...Parameter) ParameterType {
	return ParameterType{Kind: KindObject, Properties: props}
}

// Parameter is a named, typed tool argument.
type Parameter struct {
	Name        string
	Description string
	Type        ParameterType
}

// Descriptor is the model facing description of a tool. Identity is Name.
type Descriptor struct {
	Name        string
	Description string
	Required    []Parameter
	Optional    []Parameter
}

// Schema renders the descriptor parameters as a JSON schema object.
func (d Descriptor) Schema() map[string]any {
	props := make(map[string]any, len(d.Required)+len(d.Optional))
	required := make([]any, 0, len(d.Required))
	for _, p := range d.Required {
		props[p.Name] = p.schema()
		required = append(required, p.Name)
	}
	for _, p := range d.Optional {
		props[p.Name] = p.schema()
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// RequiredNames returns the names of the required parameters.
func (d Descriptor) RequiredNames() []string {
	names := make([]string, len(d.Required))
	for i, p := range d.Required {
		names[i] = p.Name
	}
	return names
}

func (p Parameter) schema() map[string]any {
	s := p.Type.schema()
	if p.Description != "" {
		s["description"] = p.Description
	}
	return s
}

func (t ParameterType) schema() map[string]any {
	s := map[string]any{"type": string(t.Kind)}
	switch t.Kind {
	case KindString:
		if len(t.Enum) > 0 {
			enum := make([]any, len(t.Enum))
			for i, v := range t.Enum {
				enum[i] = v
			}
			s["enum"] = enum
		}
	case KindList:
		if t.Items != nil {
			s["items"] = t.Items.schema()
		}
	case KindObject:
		props := make(map[string]any, len(t.Properties))
		for _, p := range t.Properties {
			props[p.Name] = p.schema()
		}
		s["properties"] = props
	}
	return s
}
