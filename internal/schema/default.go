package schema

import "fmt"

// Default returns a registry with the built-in namespaces and node types.
// Extra namespace prefixes are registered with an empty uri.
func Default(extraNamespaces ...string) *MemoryRegistry {
	r := NewRegistry()
	r.RegisterNamespace("jcr", "http://www.jcp.org/jcr/1.0")
	r.RegisterNamespace("nt", "http://www.jcp.org/jcr/nt/1.0")
	r.RegisterNamespace("mix", "http://www.jcp.org/jcr/mix/1.0")
	r.RegisterNamespace("rep", "internal")
	r.RegisterNamespace("hippo", "http://www.onehippo.org/jcr/hippo/nt/2.0")
	for _, p := range extraNamespaces {
		r.RegisterNamespace(p, "")
	}

	residualProps := []PropertyDef{{Name: Residual, Type: String, Multiple: true}}
	anyChild := []NodeDef{{Name: Residual}}
	for _, t := range []NodeType{
		{Name: "nt:base"},
		{Name: NTRoot, Supertypes: []string{"nt:base"}, Properties: residualProps, Children: anyChild, Container: true},
		{Name: NTUnstructured, Supertypes: []string{"nt:base"}, Properties: residualProps, Children: anyChild},
		{Name: MixReferenceable, Mixin: true, Properties: []PropertyDef{{Name: PropUUID, Type: String}}},
		{Name: MixHardDocument, Mixin: true, Supertypes: []string{MixReferenceable}},
		{Name: MixSoftDocument, Mixin: true, Properties: []PropertyDef{{Name: PropAliasUUID, Type: String}}},
		{Name: NTDocument, Supertypes: []string{"nt:base"}, Properties: residualProps, Children: anyChild},
		{Name: NTRequest, Supertypes: []string{"nt:base"}, Properties: residualProps, Container: true},
		{Name: NTFolder, Supertypes: []string{"nt:base"}, Properties: residualProps, Children: anyChild, Container: true},
		{Name: NTHandle, Supertypes: []string{"nt:base"}, Properties: residualProps,
			Children: []NodeDef{{Name: Residual, RequiredType: NTDocument}}, Container: true},
		{Name: NTMirror, Supertypes: []string{"nt:base"}, Container: true,
			Properties: []PropertyDef{{Name: PropDocbase, Type: String}},
			Children:   anyChild},
		{Name: NTFacetSelect, Supertypes: []string{NTMirror},
			Properties: []PropertyDef{
				{Name: PropFacets, Type: String, Multiple: true},
				{Name: PropValues, Type: String, Multiple: true},
				{Name: PropModes, Type: String, Multiple: true},
			}},
		{Name: NTBootstrap, Supertypes: []string{NTMirror}},
		{Name: NTFacetSearch, Supertypes: []string{"nt:base"}, Container: true,
			Properties: []PropertyDef{
				{Name: PropQueryName, Type: String},
				{Name: PropDocbase, Type: String},
				{Name: PropFacets, Type: String, Multiple: true},
				{Name: PropSearch, Type: String, Multiple: true},
				{Name: PropCount, Type: Long},
			},
			Children: []NodeDef{
				{Name: NameResultSet, RequiredType: NTFacetResult},
				{Name: Residual, RequiredType: NTFacetSubSearch},
			}},
		{Name: NTFacetSubSearch, Supertypes: []string{NTFacetSearch}},
		{Name: NTFacetResult, Supertypes: []string{"nt:base"}, Container: true,
			Properties: []PropertyDef{
				{Name: PropQueryName, Type: String},
				{Name: PropDocbase, Type: String},
				{Name: PropSearch, Type: String, Multiple: true},
				{Name: PropCount, Type: Long},
			},
			Children: anyChild},
	} {
		if err := r.Define(t); err != nil {
			panic(fmt.Sprintf("schema: built-in type %s: %v", t.Name, err))
		}
	}
	return r
}
