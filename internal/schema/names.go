package schema

// Node types.
const (
	NTRoot           = "rep:root"
	NTUnstructured   = "nt:unstructured"
	NTFolder         = "hippo:folder"
	NTDocument       = "hippo:document"
	NTHandle         = "hippo:handle"
	NTRequest        = "hippo:request"
	NTMirror         = "hippo:mirror"
	NTFacetSelect    = "hippo:facetselect"
	NTBootstrap      = "hippo:bootstrap"
	NTFacetSearch    = "hippo:facetsearch"
	NTFacetSubSearch = "hippo:facetsubsearch"
	NTFacetResult    = "hippo:facetresult"
)

// Mixin types.
const (
	MixReferenceable = "mix:referenceable"
	MixHardDocument  = "hippo:harddocument"
	MixSoftDocument  = "hippo:softdocument"
)

// Property and child names.
const (
	PropUUID      = "jcr:uuid"
	PropAliasUUID = "hippo:uuid"
	PropDocbase   = "hippo:docbase"
	PropQueryName = "hippo:queryname"
	PropFacets    = "hippo:facets"
	PropValues    = "hippo:values"
	PropModes     = "hippo:modes"
	PropSearch    = "hippo:search"
	PropCount     = "hippo:count"

	NameResultSet = "hippo:resultset"

	// ModeSingle in hippo:modes limits a handle to one visible variant.
	ModeSingle = "single"
)
