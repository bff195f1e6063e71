package pipeline

import (
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prequal-cli/internal/model"
)

// Canonical provider names. The organizer name doubles as the identifier
// used in fetch status maps and logs.
const (
	ProviderTaxRegistry         = "tax_registry"
	ProviderTradeRegister       = "trade_register"
	ProviderSocialInsurance     = "social_insurance"
	ProviderAccidentInsurance   = "accident_insurance"
	ProviderPensionFundA        = "pension_fund_a"
	ProviderPensionFundB        = "pension_fund_b"
	ProviderPensionFunds        = "pension_funds" // merged organizer
	ProviderCraftChamber        = "craft_chamber"
	ProviderCertificationBody   = "certification_body"
	ProviderInsolvencyRegister  = "insolvency_register"
	ProviderMinimumWageRegistry = "minimum_wage_registry"
	ProviderClearanceArchive    = "clearance_archive"
)

// Context keys carried in BundledData.Context.
const (
	ContextLegalRisk        = "legal_risk"
	ContextMergeStatus      = "merge_status"
	ContextRegistrySnapshot = "registry_snapshot"
)

// DefaultRegistry returns the registry of all supported providers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Descriptor{
		Name:         ProviderTaxRegistry,
		Path:         "/api/v1/companies/%s/clearance",
		ResponseKey:  "data",
		RequiresAuth: true,
		Policy:       PolicyAllOrNothing,
		Build:        buildTaxRegistry,
	})
	r.Register(Descriptor{
		Name:         ProviderTradeRegister,
		Path:         "/api/v2/entries/%s",
		ResponseKey:  "register_entry",
		RequiresAuth: true,
		Policy:       PolicyAllOrNothing,
		Build:        buildTradeRegister,
	})
	r.Register(Descriptor{
		Name:         ProviderSocialInsurance,
		Path:         "/employers/%s/contributions",
		ResponseKey:  "employer",
		RequiresAuth: true,
		Policy:       PolicyAllOrNothing,
		Build:        buildSocialInsurance,
	})
	r.Register(Descriptor{
		Name:         ProviderAccidentInsurance,
		Path:         "/api/memberships/%s",
		ResponseKey:  "membership",
		RequiresAuth: true,
		Policy:       PolicyAllOrNothing,
		Build:        buildAccidentInsurance,
	})
	r.Register(Descriptor{
		Name:         ProviderPensionFundA,
		Path:         "/v1/certificates/%s",
		ResponseKey:  "certificate",
		RequiresAuth: true,
		Policy:       PolicyAllOrNothing,
		Build:        pensionBuilder(ProviderPensionFundA),
	})
	r.Register(Descriptor{
		Name:         ProviderPensionFundB,
		Path:         "/api/v3/members/%s/contribution-proof",
		ResponseKey:  "certificate",
		RequiresAuth: true,
		Policy:       PolicyAllOrNothing,
		// The slowest upstream: generates certificates on demand.
		ConnectTimeout: 30 * time.Second,
		ReadTimeout:    60 * time.Second,
		Build:          pensionBuilder(ProviderPensionFundB),
	})
	r.Register(Descriptor{
		Name:         ProviderCraftChamber,
		Path:         "/registry/companies/%s/certificates",
		ResponseKey:  "certificates",
		RequiresAuth: true,
		Policy:       PolicyBestEffort,
		Accepts:      []string{"pdf", "jpeg", "png"},
		Build:        buildCraftChamber,
	})
	r.Register(Descriptor{
		Name:         ProviderCertificationBody,
		Path:         "/api/v1/holders/%s/certifications",
		ResponseKey:  "certifications",
		RequiresAuth: true,
		Policy:       PolicyBestEffort,
		UseHeaders:   true,
		Build:        buildCertificationBody,
	})
	r.Register(Descriptor{
		Name:        ProviderInsolvencyRegister,
		Path:        "/public/v1/proceedings/%s",
		ResponseKey: "proceedings",
		// Public register, no credentials.
		RequiresAuth: false,
		Policy:       PolicyAllOrNothing,
		Build:        buildInsolvencyRegister,
	})
	r.Register(Descriptor{
		Name:         ProviderMinimumWageRegistry,
		Path:         "/api/declarations/%s",
		ResponseKey:  "declaration",
		RequiresAuth: true,
		Policy:       PolicyAllOrNothing,
		Build:        buildMinimumWage,
	})
	r.Register(Descriptor{
		Name:         ProviderClearanceArchive,
		Path:         "/archive/v1/companies/%s",
		ResponseKey:  "archive",
		RequiresAuth: true,
		Policy:       PolicyBestEffort,
		Build:        buildClearanceArchive,
	})
	return r
}

func buildTaxRegistry(body []byte, _ http.Header) (model.BundledData, error) {
	data, err := topObject(body, "data")
	if err != nil {
		return model.BundledData{}, err
	}
	res := model.Resource{}
	if data != nil {
		if s := strField(data, "clearance_status"); s != "" {
			res["clearance_status"] = model.ScalarValue(s)
		}
		if s := strField(data, "valid_until"); s != "" {
			res["valid_until"] = model.ScalarValue(s)
		}
		if u := strField(data, "document_url"); u != "" {
			res["certificate"] = model.RefValue(model.DocumentRef{URL: u, Name: "tax-clearance"})
		}
	}
	return model.BundledData{Resource: res, Context: map[string]any{}}, nil
}

func buildTradeRegister(body []byte, _ http.Header) (model.BundledData, error) {
	entry, err := topObject(body, "register_entry")
	if err != nil {
		return model.BundledData{}, err
	}
	if entry == nil {
		return model.BundledData{}, eris.New("resource: register_entry is null")
	}
	res := model.Resource{}
	for _, key := range []string{"legal_name", "registration_number", "legal_form", "registered_office"} {
		if s := strField(entry, key); s != "" {
			res[key] = model.ScalarValue(s)
		}
	}
	if u := strField(entry, "excerpt_url"); u != "" {
		res["excerpt"] = model.RefValue(model.DocumentRef{URL: u, Name: "register-excerpt"})
	}
	ctx := map[string]any{}
	if insolvent, ok := boolField(entry, "insolvency_proceedings"); ok && insolvent {
		ctx[ContextLegalRisk] = true
	}
	return model.BundledData{Resource: res, Context: ctx}, nil
}

func buildSocialInsurance(body []byte, _ http.Header) (model.BundledData, error) {
	employer, err := topObject(body, "employer")
	if err != nil {
		return model.BundledData{}, err
	}
	if employer == nil {
		return model.BundledData{}, eris.New("resource: employer is null")
	}
	res := model.Resource{}
	current, ok := boolField(employer, "contributions_current")
	if !ok {
		return model.BundledData{}, eris.New("resource: employer missing contributions_current")
	}
	choice := model.Choice{RadioChoice: "compliant"}
	if !current {
		choice.RadioChoice = "in_arrears"
		choice.Text = strField(employer, "remark")
	}
	res["contributions_declaration"] = model.ChoiceValue(choice)
	if u := strField(employer, "certificate_url"); u != "" {
		res["certificate"] = model.RefValue(model.DocumentRef{URL: u, Name: "social-insurance"})
	}
	return model.BundledData{Resource: res, Context: map[string]any{}}, nil
}

func buildAccidentInsurance(body []byte, _ http.Header) (model.BundledData, error) {
	membership, err := topObject(body, "membership")
	if err != nil {
		return model.BundledData{}, err
	}
	res := model.Resource{}
	// A null membership is a valid empty result: the company is simply not a
	// member of this fund.
	if membership != nil {
		if s := strField(membership, "status"); s != "" {
			res["membership_status"] = model.ScalarValue(s)
		}
		if u := strField(membership, "certificate_url"); u != "" {
			res["certificate"] = model.RefValue(model.DocumentRef{URL: u, Name: "accident-insurance"})
		}
	}
	return model.BundledData{Resource: res, Context: map[string]any{}}, nil
}

// pensionBuilder returns the builder for one of the two pension registries.
// Both answer the same logical question with the same shape but are
// independently versioned upstreams.
func pensionBuilder(provider string) BuildFunc {
	return func(body []byte, _ http.Header) (model.BundledData, error) {
		cert, err := topObject(body, "certificate")
		if err != nil {
			return model.BundledData{}, err
		}
		res := model.Resource{}
		// A null certificate is a valid empty result: no contribution proof
		// on file at this fund.
		if cert != nil {
			u := strField(cert, "url")
			if u == "" {
				return model.BundledData{}, eris.New("resource: certificate missing url")
			}
			res["certificate"] = model.RefValue(model.DocumentRef{URL: u, Name: provider})
			if s := strField(cert, "issued_at"); s != "" {
				res["issued_at"] = model.ScalarValue(s)
			}
		}
		return model.BundledData{Resource: res, Context: map[string]any{}}, nil
	}
}

func buildCraftChamber(body []byte, _ http.Header) (model.BundledData, error) {
	certs, err := topArray(body, "certificates")
	if err != nil {
		return model.BundledData{}, err
	}
	res := model.Resource{}
	var refs []model.DocumentRef
	var trades []string
	for _, raw := range certs {
		obj, ok := raw.(map[string]any)
		if !ok {
			return model.BundledData{}, eris.New("resource: certificates entry is not an object")
		}
		if u := strField(obj, "download_url"); u != "" {
			refs = append(refs, model.DocumentRef{URL: u, Name: strField(obj, "name")})
		}
		if t := strField(obj, "trade"); t != "" {
			trades = append(trades, t)
		}
	}
	// An empty certificate list is a valid empty result for the chamber.
	if len(refs) > 0 {
		res["certificates"] = model.RefsValue(refs)
	}
	if len(trades) > 0 {
		res["trades"] = model.ScalarValue(strings.Join(trades, ", "))
	}
	return model.BundledData{Resource: res, Context: map[string]any{}}, nil
}

func buildCertificationBody(body []byte, header http.Header) (model.BundledData, error) {
	certs, err := topArray(body, "certifications")
	if err != nil {
		return model.BundledData{}, err
	}
	res := model.Resource{}
	var choices []model.Choice
	var refs []model.DocumentRef
	for _, raw := range certs {
		obj, ok := raw.(map[string]any)
		if !ok {
			return model.BundledData{}, eris.New("resource: certifications entry is not an object")
		}
		scheme := strField(obj, "scheme")
		if scheme == "" {
			return model.BundledData{}, eris.New("resource: certification missing scheme")
		}
		choices = append(choices, model.Choice{RadioChoice: scheme, Text: strField(obj, "status")})
		if u := strField(obj, "document_url"); u != "" {
			refs = append(refs, model.DocumentRef{URL: u, Name: scheme})
		}
	}
	if len(choices) > 0 {
		res["certifications"] = model.ChoiceListValue(choices)
	}
	if len(refs) > 0 {
		res["documents"] = model.RefsValue(refs)
	}
	ctx := map[string]any{}
	if snap := header.Get("X-Registry-Snapshot"); snap != "" {
		ctx[ContextRegistrySnapshot] = snap
	}
	return model.BundledData{Resource: res, Context: ctx}, nil
}

func buildInsolvencyRegister(body []byte, _ http.Header) (model.BundledData, error) {
	proceedings, err := topArray(body, "proceedings")
	if err != nil {
		return model.BundledData{}, err
	}
	res := model.Resource{}
	ctx := map[string]any{}
	// The register answering with an empty array is the normal, healthy
	// case, not an error.
	if len(proceedings) == 0 {
		res["status"] = model.ScalarValue("none")
	} else {
		res["status"] = model.ScalarValue("open_proceedings")
		ctx[ContextLegalRisk] = true
	}
	return model.BundledData{Resource: res, Context: ctx}, nil
}

func buildMinimumWage(body []byte, _ http.Header) (model.BundledData, error) {
	decl, err := topObject(body, "declaration")
	if err != nil {
		return model.BundledData{}, err
	}
	if decl == nil {
		return model.BundledData{}, eris.New("resource: declaration is null")
	}
	res := model.Resource{}
	compliant, ok := boolField(decl, "compliant")
	if !ok {
		return model.BundledData{}, eris.New("resource: declaration missing compliant")
	}
	choice := model.Choice{RadioChoice: "compliant"}
	if !compliant {
		choice.RadioChoice = "non_compliant"
		choice.Text = strField(decl, "note")
	}
	res["declaration"] = model.ChoiceValue(choice)
	if u := strField(decl, "certificate_url"); u != "" {
		res["certificate"] = model.RefValue(model.DocumentRef{URL: u, Name: "minimum-wage"})
	}
	return model.BundledData{Resource: res, Context: map[string]any{}}, nil
}

func buildClearanceArchive(body []byte, _ http.Header) (model.BundledData, error) {
	archive, err := topObject(body, "archive")
	if err != nil {
		return model.BundledData{}, err
	}
	res := model.Resource{}
	if archive != nil {
		files, _ := archive["files"].([]any)
		var refs []model.DocumentRef
		for _, f := range files {
			if u, ok := f.(string); ok && u != "" {
				refs = append(refs, model.DocumentRef{URL: u})
			}
		}
		if len(refs) > 0 {
			res["files"] = model.RefsValue(refs)
		}
	}
	return model.BundledData{Resource: res, Context: map[string]any{}}, nil
}
