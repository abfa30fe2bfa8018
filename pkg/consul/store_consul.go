//go:build consul

package consul

import (
	"encoding/json"
	"fmt"
	"time"

	consulapi "github.com/hashicorp/consul/api"

	"mcp-relay/pkg/model"
)

// Directory is a Consul-backed node directory and audit trail.
type Directory struct {
	cli *consulapi.Client
}

const (
	nodePrefix  = "mcp-relay/nodes/"
	auditPrefix = "mcp-relay/audit/"
)

func NewDirectory(addr string) (*Directory, error) {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	cli, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}
	return &Directory{cli: cli}, nil
}

func (d *Directory) UpsertNode(n model.Node) (model.Node, error) {
	b, err := json.Marshal(n)
	if err != nil {
		return n, err
	}
	_, err = d.cli.KV().Put(&consulapi.KVPair{Key: nodePrefix + n.ID, Value: b}, nil)
	return n, err
}

func (d *Directory) GetNode(id string) (model.Node, bool, error) {
	kv, _, err := d.cli.KV().Get(nodePrefix+id, nil)
	if err != nil || kv == nil {
		return model.Node{}, false, err
	}
	var n model.Node
	if err := json.Unmarshal(kv.Value, &n); err != nil {
		return model.Node{}, false, err
	}
	return n, true, nil
}

func (d *Directory) ListNodes() ([]model.Node, error) {
	pairs, _, err := d.cli.KV().List(nodePrefix, nil)
	if err != nil {
		return nil, err
	}
	var out []model.Node
	for _, p := range pairs {
		var n model.Node
		if err := json.Unmarshal(p.Value, &n); err == nil {
			out = append(out, n)
		}
	}
	return out, nil
}

func (d *Directory) AppendAudit(e model.AuditEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s%d-%s", auditPrefix, e.Timestamp.UnixNano(), e.NodeID)
	_, err = d.cli.KV().Put(&consulapi.KVPair{Key: key, Value: b}, nil)
	return err
}

func (d *Directory) ListAudit(limit int) ([]model.AuditEntry, error) {
	pairs, _, err := d.cli.KV().List(auditPrefix, nil)
	if err != nil {
		return nil, err
	}
	var out []model.AuditEntry
	for _, p := range pairs {
		var e model.AuditEntry
		if err := json.Unmarshal(p.Value, &e); err == nil {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
