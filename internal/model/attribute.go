package model

import "time"

// Source is the provenance of a form-field answer.
type Source string

const (
	// SourceAuto marks a value last written by a provider pipeline run.
	SourceAuto Source = "auto"
	// SourceManual marks a genuinely user-entered value.
	SourceManual Source = "manual"
	// SourceManualAfterAPIFailure marks a field whose automatic source failed
	// and now requires human input.
	SourceManualAfterAPIFailure Source = "manual_after_api_failure"
)

// Attribute is a form-field definition. APIName and APIKey identify which
// provider and which resource field supply it automatically; manual-only
// fields leave both empty.
type Attribute struct {
	Key      string `json:"key" yaml:"key"`
	Label    string `json:"label" yaml:"label"`
	Type     string `json:"type" yaml:"type"` // text, number, boolean, choice, document
	APIName  string `json:"api_name,omitempty" yaml:"api_name,omitempty"`
	APIKey   string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Required bool   `json:"required" yaml:"required"`
}

// AutoFilled reports whether a provider is responsible for this attribute.
func (a Attribute) AutoFilled() bool { return a.APIName != "" && a.APIKey != "" }

// AttributeRegistry is an indexed collection of attribute definitions.
type AttributeRegistry struct {
	Attributes []Attribute
	byKey      map[string]*Attribute
	byAPIName  map[string][]*Attribute
}

// NewAttributeRegistry indexes attributes by key and by supplying provider.
func NewAttributeRegistry(attrs []Attribute) *AttributeRegistry {
	r := &AttributeRegistry{
		Attributes: attrs,
		byKey:      make(map[string]*Attribute, len(attrs)),
		byAPIName:  make(map[string][]*Attribute),
	}
	for i := range r.Attributes {
		a := &r.Attributes[i]
		r.byKey[a.Key] = a
		if a.AutoFilled() {
			r.byAPIName[a.APIName] = append(r.byAPIName[a.APIName], a)
		}
	}
	return r
}

// ByKey returns the attribute for the given key, or nil.
func (r *AttributeRegistry) ByKey(key string) *Attribute { return r.byKey[key] }

// ByProvider returns the attributes a provider is responsible for.
func (r *AttributeRegistry) ByProvider(apiName string) []*Attribute {
	return r.byAPIName[apiName]
}

// KeysByProvider returns the attribute keys a provider is responsible for.
func (r *AttributeRegistry) KeysByProvider(apiName string) []string {
	attrs := r.byAPIName[apiName]
	keys := make([]string, 0, len(attrs))
	for _, a := range attrs {
		keys = append(keys, a.Key)
	}
	return keys
}

// AttributeResponse is one persisted answer for one field on one application.
// Rows are created lazily on first pipeline write or first user edit and are
// never hard-deleted, only value-cleared.
type AttributeResponse struct {
	ID            int64      `json:"id,omitempty"`
	ApplicationID string     `json:"application_id"`
	AttributeKey  string     `json:"attribute_key"`
	Value         any        `json:"value,omitempty"`
	Documents     []Document `json:"documents,omitempty"`
	Source        Source     `json:"source"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
