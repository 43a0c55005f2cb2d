package record

// Standard names as they prefix value paths.
const (
	StandardISO19115 = "ISO 19115"
	StandardEbrimV3  = "Ebrim v3.0"
	StandardEbrimV25 = "Ebrim v2.5"
	StandardCSW      = "Catalog Web Service"
)

// Kind is the metadata profile of a record, computed once from the class of
// its top value.
type Kind int

const (
	// KindUnknown is any classification no profile recognizes.
	KindUnknown Kind = iota
	// KindISO19115 is an ISO 19115 MD_Metadata document.
	KindISO19115
	// KindEbrimV3 is any subclass of the ebRIM 3.0 Identifiable class.
	KindEbrimV3
	// KindEbrimV25 is any subclass of the ebRIM 2.5 RegistryObject class.
	KindEbrimV25
	// KindCSWRecord is a native CSW (Dublin Core) Record.
	KindCSWRecord
)

// String returns the human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindISO19115:
		return "iso19115"
	case KindEbrimV3:
		return "ebrim-v3"
	case KindEbrimV25:
		return "ebrim-v2.5"
	case KindCSWRecord:
		return "csw-record"
	default:
		return "unknown"
	}
}

// Class identifies a metadata class within its standard.
type Class struct {
	Standard string `yaml:"standard" json:"standard"`
	Name     string `yaml:"name" json:"name"`
}

// String returns "standard:name".
func (c Class) String() string {
	return c.Standard + ":" + c.Name
}

// Hierarchy maps a class to its direct superclass.
type Hierarchy map[Class]Class

// IsSubClassOf reports whether c is ancestor, or inherits from a class named
// ancestor in the same standard.
func (h Hierarchy) IsSubClassOf(c Class, ancestor string) bool {
	seen := make(map[Class]bool)
	for cur := c; ; {
		if cur.Name == ancestor {
			return true
		}
		if seen[cur] {
			return false
		}
		seen[cur] = true

		parent, ok := h[cur]
		if !ok {
			return false
		}
		cur = parent
	}
}

// Classify computes the profile of a top-level class. The order of the
// checks matters: ebRIM 3.0 registry objects are also Identifiable.
func (h Hierarchy) Classify(c Class) Kind {
	switch {
	case c.Name == "MD_Metadata":
		return KindISO19115
	case h.IsSubClassOf(c, "Identifiable"):
		return KindEbrimV3
	case h.IsSubClassOf(c, "RegistryObject"):
		return KindEbrimV25
	case c.Name == "Record":
		return KindCSWRecord
	default:
		return KindUnknown
	}
}

// DefaultHierarchy holds the ebRIM class trees the classifier walks.
var DefaultHierarchy = buildDefaultHierarchy()

func buildDefaultHierarchy() Hierarchy {
	h := make(Hierarchy)

	v3 := func(name, parent string) {
		h[Class{StandardEbrimV3, name}] = Class{StandardEbrimV3, parent}
	}
	v3("RegistryObject", "Identifiable")
	v3("ObjectRef", "Identifiable")
	for _, name := range []string{
		"ExtrinsicObject", "RegistryPackage", "Service", "ServiceBinding",
		"SpecificationLink", "Organization", "Person", "User", "Association",
		"Classification", "ClassificationNode", "ClassificationScheme",
		"ExternalIdentifier", "ExternalLink", "AuditableEvent", "Federation",
		"Registry", "Subscription", "AdhocQuery", "Notification",
	} {
		v3(name, "RegistryObject")
	}
	v3("WRSExtrinsicObject", "ExtrinsicObject")

	v25 := func(name, parent string) {
		h[Class{StandardEbrimV25, name}] = Class{StandardEbrimV25, parent}
	}
	for _, name := range []string{
		"RegistryEntry", "Association", "Classification", "ExternalIdentifier",
		"ExternalLink", "Organization", "User", "AuditableEvent", "ServiceBinding",
		"SpecificationLink", "ClassificationNode",
	} {
		v25(name, "RegistryObject")
	}
	for _, name := range []string{"ExtrinsicObject", "RegistryPackage", "Service", "ClassificationScheme"} {
		v25(name, "RegistryEntry")
	}

	return h
}
