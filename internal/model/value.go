package model

// ValueKind discriminates the shapes a provider can report for a field.
type ValueKind string

const (
	KindScalar       ValueKind = "scalar"
	KindChoice       ValueKind = "choice"
	KindChoiceList   ValueKind = "choice_list"
	KindDocumentRef  ValueKind = "document_ref"
	KindDocumentRefs ValueKind = "document_refs"
	KindDocument     ValueKind = "document"
	KindDocuments    ValueKind = "documents"
)

// Choice is a radio-choice answer with an optional free-text justification.
type Choice struct {
	RadioChoice string `json:"radio_choice"`
	Text        string `json:"text,omitempty"`
}

// DocumentRef points at a document a provider published but we have not
// downloaded yet. Name, when set, is the human-readable certificate name
// used for the generated filename.
type DocumentRef struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
}

// Document is a downloaded, validated binary payload ready to attach to a
// field response.
type Document struct {
	Bytes       []byte            `json:"-"`
	Filename    string            `json:"filename"`
	ContentType string            `json:"content_type"`
	Provider    string            `json:"provider"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Value is one typed field value extracted from a provider response. Exactly
// one of the shape fields is populated, indicated by Kind. The zero Value
// (Kind == "") means the provider reported nothing for the field.
type Value struct {
	Kind    ValueKind
	Scalar  any
	Choice  *Choice
	Choices []Choice
	Ref     *DocumentRef
	Refs    []DocumentRef
	Doc     *Document
	Docs    []Document
}

// ScalarValue wraps a plain scalar (string, number, bool).
func ScalarValue(v any) Value { return Value{Kind: KindScalar, Scalar: v} }

// ChoiceValue wraps a radio-choice-with-justification shape.
func ChoiceValue(c Choice) Value { return Value{Kind: KindChoice, Choice: &c} }

// ChoiceListValue wraps an array of choice shapes.
func ChoiceListValue(cs []Choice) Value { return Value{Kind: KindChoiceList, Choices: cs} }

// RefValue wraps a single document reference.
func RefValue(r DocumentRef) Value { return Value{Kind: KindDocumentRef, Ref: &r} }

// RefsValue wraps a list of document references.
func RefsValue(rs []DocumentRef) Value { return Value{Kind: KindDocumentRefs, Refs: rs} }

// DocValue wraps a single downloaded document.
func DocValue(d Document) Value { return Value{Kind: KindDocument, Doc: &d} }

// DocsValue wraps a list of downloaded documents.
func DocsValue(ds []Document) Value { return Value{Kind: KindDocuments, Docs: ds} }

// IsZero reports whether the value carries nothing.
func (v Value) IsZero() bool { return v.Kind == "" }

// FormValue returns the JSON-shaped value written into a form-field response,
// or nil when the value has no form representation (document-only values and
// zero values).
func (v Value) FormValue() any {
	switch v.Kind {
	case KindScalar:
		return v.Scalar
	case KindChoice:
		return v.Choice
	case KindChoiceList:
		return v.Choices
	default:
		return nil
	}
}

// Documents returns any downloaded documents the value carries.
func (v Value) Documents() []Document {
	switch v.Kind {
	case KindDocument:
		if v.Doc == nil {
			return nil
		}
		return []Document{*v.Doc}
	case KindDocuments:
		return v.Docs
	default:
		return nil
	}
}

// References returns any pending document references the value carries.
func (v Value) References() []DocumentRef {
	switch v.Kind {
	case KindDocumentRef:
		if v.Ref == nil {
			return nil
		}
		return []DocumentRef{*v.Ref}
	case KindDocumentRefs:
		return v.Refs
	default:
		return nil
	}
}

// Resource is the normalized result of one provider response: a mapping from
// field name to typed value. It is built once per pipeline run and only
// mutated by the document fetcher replacing references with payloads.
type Resource map[string]Value

// Get returns the value for a field, or the zero Value when absent.
func (r Resource) Get(key string) Value { return r[key] }

// BundledData wraps a Resource with pipeline-level context facts (merge
// status, detected legal-risk flags) that drive downstream decisions but are
// not form fields themselves.
type BundledData struct {
	Resource Resource
	Context  map[string]any
}

// ContextFlag reads a boolean context fact.
func (b BundledData) ContextFlag(key string) bool {
	v, ok := b.Context[key].(bool)
	return ok && v
}
