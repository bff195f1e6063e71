package model

// DefaultAttributes is the built-in prequalification form catalogue. The
// admin side may extend it; the pipeline only cares about key and the
// api_name/api_key mapping.
func DefaultAttributes() []Attribute {
	return []Attribute{
		// Company master data (manual).
		{Key: "company_name", Label: "Company name", Type: "text", Required: true},
		{Key: "contact_email", Label: "Contact e-mail", Type: "text", Required: true},
		{Key: "contact_phone", Label: "Contact phone", Type: "text"},

		// Tax registry.
		{Key: "tax_clearance_status", Label: "Tax clearance status", Type: "text", APIName: "tax_registry", APIKey: "clearance_status", Required: true},
		{Key: "tax_clearance_valid_until", Label: "Tax clearance valid until", Type: "text", APIName: "tax_registry", APIKey: "valid_until"},
		{Key: "tax_clearance_certificate", Label: "Tax clearance certificate", Type: "document", APIName: "tax_registry", APIKey: "certificate", Required: true},

		// Trade register.
		{Key: "legal_name", Label: "Registered legal name", Type: "text", APIName: "trade_register", APIKey: "legal_name", Required: true},
		{Key: "registration_number", Label: "Registration number", Type: "text", APIName: "trade_register", APIKey: "registration_number", Required: true},
		{Key: "legal_form", Label: "Legal form", Type: "text", APIName: "trade_register", APIKey: "legal_form"},
		{Key: "registered_office", Label: "Registered office", Type: "text", APIName: "trade_register", APIKey: "registered_office"},
		{Key: "register_excerpt", Label: "Trade register excerpt", Type: "document", APIName: "trade_register", APIKey: "excerpt"},

		// Social insurance fund.
		{Key: "social_contributions", Label: "Social contribution declaration", Type: "choice", APIName: "social_insurance", APIKey: "contributions_declaration", Required: true},
		{Key: "social_certificate", Label: "Social insurance certificate", Type: "document", APIName: "social_insurance", APIKey: "certificate"},

		// Statutory accident insurance.
		{Key: "accident_membership", Label: "Accident insurance membership", Type: "text", APIName: "accident_insurance", APIKey: "membership_status"},
		{Key: "accident_certificate", Label: "Accident insurance certificate", Type: "document", APIName: "accident_insurance", APIKey: "certificate"},

		// Retirement contribution proof, merged from two pension registries.
		{Key: "retirement_contribution_proof", Label: "Retirement contribution certificates", Type: "document", APIName: "pension_funds", APIKey: "certificates", Required: true},
		{Key: "retirement_contribution_status", Label: "Retirement contribution status", Type: "text", APIName: "pension_funds", APIKey: "merge_status"},

		// Chamber of crafts.
		{Key: "craft_certificates", Label: "Craft chamber certificates", Type: "document", APIName: "craft_chamber", APIKey: "certificates"},
		{Key: "craft_trades", Label: "Registered craft trades", Type: "text", APIName: "craft_chamber", APIKey: "trades"},

		// Professional certification body.
		{Key: "professional_certifications", Label: "Professional certifications", Type: "choice", APIName: "certification_body", APIKey: "certifications"},
		{Key: "certification_documents", Label: "Certification documents", Type: "document", APIName: "certification_body", APIKey: "documents"},

		// Insolvency register.
		{Key: "insolvency_status", Label: "Insolvency proceedings", Type: "text", APIName: "insolvency_register", APIKey: "status", Required: true},

		// Minimum wage registry.
		{Key: "minimum_wage_declaration", Label: "Minimum wage declaration", Type: "choice", APIName: "minimum_wage_registry", APIKey: "declaration"},
		{Key: "minimum_wage_certificate", Label: "Minimum wage certificate", Type: "document", APIName: "minimum_wage_registry", APIKey: "certificate"},

		// Legacy clearance archive (FTP).
		{Key: "archived_clearances", Label: "Archived clearance documents", Type: "document", APIName: "clearance_archive", APIKey: "files"},

		// Manual-only declarations.
		{Key: "subcontractor_policy", Label: "Subcontractor policy", Type: "choice"},
		{Key: "reference_projects", Label: "Reference projects", Type: "text"},
	}
}
