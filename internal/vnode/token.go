package vnode

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/agentic-research/facetfs/internal/content"
)

// tokenPrefix marks an encoded virtual identity. Physical identities are
// plain uuids and never start with it.
const tokenPrefix = "v."

// tokenRecord is the wire form of an identity. Parent is nil when the
// parent is a physical node, in which case PhysParent holds its id.
type tokenRecord struct {
	Kind       Kind              `msgpack:"k"`
	Parent     *tokenRecord      `msgpack:"p,omitempty"`
	PhysParent string            `msgpack:"pp,omitempty"`
	Name       string            `msgpack:"n"`
	Index      int               `msgpack:"i"`
	Upstream   string            `msgpack:"u,omitempty"`
	View       map[string]string `msgpack:"v,omitempty"`
	Single     bool              `msgpack:"s,omitempty"`
	QueryName  string            `msgpack:"q,omitempty"`
	Docbase    string            `msgpack:"d,omitempty"`
	Facets     []string          `msgpack:"f,omitempty"`
	Search     []string          `msgpack:"x,omitempty"`
	Count      int64             `msgpack:"c,omitempty"`
}

// Token renders any node identity as an opaque string that ParseToken
// turns back into an equivalent identity.
func Token(id content.NodeID) (string, error) {
	switch v := id.(type) {
	case content.ID:
		return string(v), nil
	case ID:
		rec, err := toRecord(v)
		if err != nil {
			return "", err
		}
		b, err := msgpack.Marshal(rec)
		if err != nil {
			return "", fmt.Errorf("encode token: %w", err)
		}
		return tokenPrefix + base64.RawURLEncoding.EncodeToString(b), nil
	default:
		return "", fmt.Errorf("encode token: unsupported identity %T", id)
	}
}

// ParseToken is the inverse of Token. Identities sharing a view map before
// encoding get separate but equal maps after.
func ParseToken(s string) (content.NodeID, error) {
	if !strings.HasPrefix(s, tokenPrefix) {
		return content.ParseID(s)
	}
	b, err := base64.RawURLEncoding.DecodeString(s[len(tokenPrefix):])
	if err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	var rec tokenRecord
	if err := msgpack.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return fromRecord(&rec)
}

func toRecord(id ID) (*tokenRecord, error) {
	rec := &tokenRecord{Kind: id.Kind(), Name: id.Name()}
	switch p := id.Parent().(type) {
	case content.ID:
		rec.PhysParent = string(p)
	case ID:
		parent, err := toRecord(p)
		if err != nil {
			return nil, err
		}
		rec.Parent = parent
	default:
		return nil, fmt.Errorf("encode token: unsupported parent %T", p)
	}
	switch v := id.(type) {
	case MirrorID:
		rec.Index, rec.Upstream = v.index, string(v.Upstream)
	case ViewID:
		rec.Index, rec.Upstream, rec.Single = v.index, string(v.Upstream), v.Single
		if v.View.Len() > 0 {
			rec.View = v.View.m
		}
	case BootstrapID:
		rec.Index, rec.Upstream = v.index, string(v.Upstream)
	case FacetSearchID:
		rec.Index = v.index
		rec.QueryName, rec.Docbase, rec.Count = v.QueryName, v.Docbase, v.Count
		rec.Facets, rec.Search = v.Facets, v.Search.Slice()
	case ResultSetID:
		rec.Index = v.index
		rec.QueryName, rec.Docbase, rec.Count = v.QueryName, v.Docbase, v.Count
		rec.Search = v.Search.Slice()
	default:
		return nil, fmt.Errorf("encode token: unsupported identity %T", id)
	}
	return rec, nil
}

var errBadToken = errors.New("malformed identity token")

func fromRecord(rec *tokenRecord) (ID, error) {
	pos := position{name: rec.Name, index: rec.Index}
	switch {
	case rec.Parent != nil:
		parent, err := fromRecord(rec.Parent)
		if err != nil {
			return nil, err
		}
		pos.parent = parent
	case rec.PhysParent != "":
		parent, err := content.ParseID(rec.PhysParent)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errBadToken, err)
		}
		pos.parent = parent
	default:
		return nil, fmt.Errorf("%w: no parent", errBadToken)
	}
	if pos.index < 1 {
		return nil, fmt.Errorf("%w: index %d", errBadToken, pos.index)
	}

	switch rec.Kind {
	case KindMirror:
		return MirrorID{position: pos, Upstream: content.ID(rec.Upstream)}, nil
	case KindView:
		return ViewID{position: pos, Upstream: content.ID(rec.Upstream), View: NewView(rec.View), Single: rec.Single}, nil
	case KindBootstrap:
		return BootstrapID{position: pos, Upstream: content.ID(rec.Upstream)}, nil
	case KindFacetSearch:
		return FacetSearchID{
			position:  pos,
			QueryName: rec.QueryName,
			Docbase:   rec.Docbase,
			Facets:    rec.Facets,
			Search:    SeqOf(rec.Search...),
			Count:     rec.Count,
		}, nil
	case KindResultSet:
		return ResultSetID{
			position:  pos,
			QueryName: rec.QueryName,
			Docbase:   rec.Docbase,
			Search:    SeqOf(rec.Search...),
			Count:     rec.Count,
		}, nil
	default:
		return nil, fmt.Errorf("%w: kind %d", errBadToken, rec.Kind)
	}
}
