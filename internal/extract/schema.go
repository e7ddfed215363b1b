package extract

import (
	"google.golang.org/genai"
)

// ToolName is the forced tool the Anthropic backend records facts through.
const ToolName = "record_practice_facts"

// fieldKind is the JSON type of one extraction field.
type fieldKind int

const (
	kindString fieldKind = iota
	kindInteger
	kindBoolean
	kindStringList
	kindPerson
)

// field describes one property of the extraction schema.
type field struct {
	Name        string
	Kind        fieldKind
	Description string
	Enum        []string
	Required    bool
}

// fields mirrors the JSON tags of model.ExtractionResult.
var fields = []field{
	{Name: "vet_count_total", Kind: kindInteger, Description: "Number of veterinarians (DVM/VMD) currently practicing at this location. Omit if not stated."},
	{Name: "vet_count_confidence", Kind: kindString, Enum: []string{"high", "medium", "low"},
		Description: "high: vets listed by name; medium: count stated in text; low: inferred."},
	{Name: "decision_maker", Kind: kindPerson, Description: "Owner, medical director, or practice manager."},
	{Name: "emergency_24_7", Kind: kindBoolean, Required: true, Description: "True only if 24/7 emergency care is offered."},
	{Name: "online_booking", Kind: kindBoolean, Required: true, Description: "True if appointments can be booked online."},
	{Name: "patient_portal", Kind: kindBoolean, Required: true, Description: "True if a client or patient portal is offered."},
	{Name: "telemedicine_virtual_care", Kind: kindBoolean, Required: true, Description: "True if telemedicine or virtual visits are offered."},
	{Name: "specialty_services", Kind: kindStringList, Description: "Specialty services beyond general practice, at most 10."},
	{Name: "personalization_context", Kind: kindStringList, Description: "Up to 3 specific facts useful to open a sales conversation."},
	{Name: "awards_accreditations", Kind: kindStringList, Description: "Awards and accreditations such as AAHA, at most 5."},
	{Name: "recent_news_updates", Kind: kindStringList, Description: "Up to 3 recent announcements."},
	{Name: "community_involvement", Kind: kindStringList, Description: "Up to 3 community activities."},
	{Name: "practice_philosophy", Kind: kindString, Description: "Mission or philosophy statement, under 500 characters."},
}

var personFields = []string{"name", "role", "email", "phone"}

// jsonSchemaProperties renders fields as a JSON schema "properties" object.
func jsonSchemaProperties() (map[string]any, []string) {
	props := make(map[string]any, len(fields))
	var required []string
	for _, f := range fields {
		var p map[string]any
		switch f.Kind {
		case kindString:
			p = map[string]any{"type": "string"}
		case kindInteger:
			p = map[string]any{"type": "integer", "minimum": 1, "maximum": 50}
		case kindBoolean:
			p = map[string]any{"type": "boolean"}
		case kindStringList:
			p = map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
		case kindPerson:
			person := make(map[string]any, len(personFields))
			for _, name := range personFields {
				person[name] = map[string]any{"type": "string"}
			}
			p = map[string]any{"type": "object", "properties": person}
		}
		p["description"] = f.Description
		if len(f.Enum) > 0 {
			p["enum"] = f.Enum
		}
		props[f.Name] = p
		if f.Required {
			required = append(required, f.Name)
		}
	}
	return props, required
}

// genaiSchema renders fields as a Gemini response schema.
func genaiSchema() *genai.Schema {
	s := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(fields)),
	}
	for _, f := range fields {
		var p *genai.Schema
		switch f.Kind {
		case kindString:
			p = &genai.Schema{Type: genai.TypeString}
		case kindInteger:
			p = &genai.Schema{Type: genai.TypeInteger}
		case kindBoolean:
			p = &genai.Schema{Type: genai.TypeBoolean}
		case kindStringList:
			p = &genai.Schema{Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}}
		case kindPerson:
			p = &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{}}
			for _, name := range personFields {
				p.Properties[name] = &genai.Schema{Type: genai.TypeString}
			}
		}
		p.Description = f.Description
		if len(f.Enum) > 0 {
			p.Format = "enum"
			p.Enum = f.Enum
		}
		s.Properties[f.Name] = p
		if f.Required {
			s.Required = append(s.Required, f.Name)
		}
	}
	return s
}
