package content

import (
	"context"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"

	"github.com/agentic-research/facetfs/internal/schema"
)

var nodesBucket = []byte("nodes")

// nodeRecord is the msgpack form of a stored node.
type nodeRecord struct {
	Parent      string           `msgpack:"p,omitempty"`
	PrimaryType string           `msgpack:"t"`
	Mixins      []string         `msgpack:"m,omitempty"`
	Properties  []propertyRecord `msgpack:"props,omitempty"`
	Children    []childRecord    `msgpack:"ch,omitempty"`
}

type propertyRecord struct {
	Name     string   `msgpack:"n"`
	Type     uint8    `msgpack:"t"`
	Multiple bool     `msgpack:"m,omitempty"`
	Values   []string `msgpack:"v"`
}

type childRecord struct {
	Name string `msgpack:"n"`
	ID   string `msgpack:"id"`
}

// BoltStore persists the content tree in a bbolt file, one msgpack record
// per node keyed by node id.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBolt opens (creating if needed) the bbolt file at path and makes sure
// a root node exists.
func OpenBolt(path string) (*BoltStore, error) {
	bopt := *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	db, err := bbolt.Open(path, 0o666, &bopt)
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(nodesBucket)
		if err != nil {
			return err
		}
		if b.Get([]byte(RootID)) != nil {
			return nil
		}
		raw, err := msgpack.Marshal(&nodeRecord{PrimaryType: schema.NTRoot})
		if err != nil {
			return err
		}
		return b.Put([]byte(RootID), raw)
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init bolt %s: %w", path, err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) GetNodeState(_ context.Context, id ID) (*NodeState, error) {
	var rec nodeRecord
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(nodesBucket).Get([]byte(id))
		if raw == nil {
			return nil
		}
		found = true
		// raw is only valid inside the transaction; Unmarshal copies.
		return msgpack.Unmarshal(raw, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("read node %s: %w", id, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	st := NewNodeState(id, nil, rec.PrimaryType)
	if rec.Parent != "" {
		st.ParentID = ID(rec.Parent)
	}
	st.Mixins = rec.Mixins
	sortMixins(st)
	for _, p := range rec.Properties {
		st.Properties = append(st.Properties, Property{
			Name:     p.Name,
			Type:     schema.PropertyType(p.Type),
			Multiple: p.Multiple,
			Values:   p.Values,
		})
	}
	sb := NewSiblings(st)
	for _, c := range rec.Children {
		sb.Add(c.Name, ID(c.ID))
	}
	return st, nil
}

func (s *BoltStore) PutNode(_ context.Context, st *NodeState) error {
	id, ok := st.ID.(ID)
	if !ok {
		return fmt.Errorf("put node: %s is not a physical id", st.ID.Key())
	}
	if err := checkPhysicalChildren(st); err != nil {
		return err
	}

	rec := nodeRecord{PrimaryType: st.PrimaryType, Mixins: st.Mixins}
	if p, ok := st.ParentID.(ID); ok {
		rec.Parent = string(p)
	}
	for _, p := range st.Properties {
		rec.Properties = append(rec.Properties, propertyRecord{
			Name: p.Name, Type: uint8(p.Type), Multiple: p.Multiple, Values: p.Values,
		})
	}
	for _, c := range st.Children {
		rec.Children = append(rec.Children, childRecord{Name: c.Name, ID: c.ID.Key()})
	}
	raw, err := msgpack.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("encode node %s: %w", id, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(nodesBucket).Put([]byte(id), raw)
	})
}

var _ ReadWriter = (*BoltStore)(nil)
