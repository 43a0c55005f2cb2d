package record

// CodeListElement is one enumerated entry of a codelist.
type CodeListElement struct {
	Code int    `yaml:"code" json:"code"`
	Name string `yaml:"name" json:"name"`
}

// CodeList is an enumerated-value class. Values typed by a numeric codelist
// store the element code; values typed by a locale codelist store the
// literal text.
type CodeList struct {
	Name     string            `yaml:"name" json:"name"`
	Locale   bool              `yaml:"locale" json:"locale"`
	Elements []CodeListElement `yaml:"elements" json:"elements"`
}

// Element returns the element with the given code.
func (c *CodeList) Element(code int) (CodeListElement, bool) {
	for _, e := range c.Elements {
		if e.Code == code {
			return e, true
		}
	}
	return CodeListElement{}, false
}

// CodeLists maps a class name to its codelist.
type CodeLists map[string]*CodeList

// Merge returns a copy of c with other's entries added or replaced.
func (c CodeLists) Merge(other CodeLists) CodeLists {
	out := make(CodeLists, len(c)+len(other))
	for k, v := range c {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

func enumerate(name string, names ...string) *CodeList {
	cl := &CodeList{Name: name, Elements: make([]CodeListElement, len(names))}
	for i, n := range names {
		cl.Elements[i] = CodeListElement{Code: i + 1, Name: n}
	}
	return cl
}

// DefaultCodeLists returns the ISO 19115 codelists used by the built-in
// queryable maps.
func DefaultCodeLists() CodeLists {
	lists := []*CodeList{
		enumerate("CI_DateTypeCode", "creation", "publication", "revision"),
		enumerate("MD_KeywordTypeCode", "discipline", "place", "stratum", "temporal", "theme"),
		enumerate("MD_TopicCategoryCode",
			"farming", "biota", "boundaries", "climatologyMeteorologyAtmosphere", "economy",
			"elevation", "environment", "geoscientificInformation", "health",
			"imageryBaseMapsEarthCover", "intelligenceMilitary", "inlandWaters", "location",
			"oceans", "planningCadastre", "society", "structure", "transportation",
			"utilitiesCommunication"),
		enumerate("MD_ScopeCode",
			"attribute", "attributeType", "collectionHardware", "collectionSession", "dataset",
			"series", "nonGeographicDataset", "dimensionGroup", "feature", "featureType",
			"propertyType", "fieldSession", "software", "service", "model", "tile"),
		enumerate("CI_RoleCode",
			"resourceProvider", "custodian", "owner", "user", "distributor", "originator",
			"pointOfContact", "principalInvestigator", "processor", "publisher", "author"),
		enumerate("MD_ClassificationCode", "unclassified", "restricted", "confidential", "secret", "topSecret"),
		enumerate("MD_RestrictionCode",
			"copyright", "patent", "patentPending", "trademark", "license",
			"intellectualPropertyRights", "restricted", "otherRestrictions"),
		{Name: "LanguageCode", Locale: true},
		{Name: "MD_CharacterSetCode", Locale: true},
	}

	out := make(CodeLists, len(lists))
	for _, cl := range lists {
		out[cl.Name] = cl
	}
	return out
}
