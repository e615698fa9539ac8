package decision

import (
	"fmt"
	"sync/atomic"

	"github.com/dep2p/go-natt/internal/util/logger"
	"github.com/dep2p/go-natt/pkg/interfaces"
	"github.com/dep2p/go-natt/pkg/types"
)

var log = logger.Logger("natt.decision")

// snapshot 注册表的一个不可变版本
type snapshot struct {
	techniques []interfaces.Technique
	byID       map[types.TechniqueID]interfaces.Technique
	selector   *Selector
}

// Registry 技术注册表
//
// 持有技术集合、按标识的索引和决策表。重建时整体替换快照，
// 读者始终看到某个完整版本。
type Registry struct {
	current atomic.Pointer[snapshot]
}

// NewRegistry 由显式注入的技术列表创建注册表
func NewRegistry(techniques ...interfaces.Technique) (*Registry, error) {
	r := &Registry{}
	if err := r.Rebuild(techniques...); err != nil {
		return nil, err
	}
	return r, nil
}

// Rebuild 丢弃当前决策表并原子替换为新构建的版本
func (r *Registry) Rebuild(techniques ...interfaces.Technique) error {
	snap, err := newSnapshot(techniques)
	if err != nil {
		return err
	}
	r.current.Store(snap)

	log.Debug("决策表已构建", "techniques", len(snap.techniques), "rules", snap.selector.table.Len())
	return nil
}

func newSnapshot(techniques []interfaces.Technique) (*snapshot, error) {
	byID := make(map[types.TechniqueID]interfaces.Technique, len(techniques))
	names := make(map[string]struct{}, len(techniques))
	list := make([]interfaces.Technique, 0, len(techniques))

	for _, tech := range techniques {
		if tech == nil {
			continue
		}
		meta := tech.Metadata()
		if meta.Name == "" {
			return nil, fmt.Errorf("%w: technique %s has no name", ErrInvalidTechnique, meta.ID)
		}
		if _, dup := names[meta.Name]; dup {
			return nil, fmt.Errorf("%w: name %q", ErrDuplicateTechnique, meta.Name)
		}
		if _, dup := byID[meta.ID]; dup {
			return nil, fmt.Errorf("%w: id %s", ErrDuplicateTechnique, meta.ID)
		}
		names[meta.Name] = struct{}{}
		byID[meta.ID] = tech
		list = append(list, tech)
	}

	return &snapshot{
		techniques: list,
		byID:       byID,
		selector:   NewSelector(BuildTable(list)),
	}, nil
}

// Lookup 按协议标识解析技术
func (r *Registry) Lookup(id types.TechniqueID) (interfaces.Technique, bool) {
	tech, ok := r.current.Load().byID[id]
	return tech, ok
}

// Techniques 返回注册顺序的技术列表副本
func (r *Registry) Techniques() []interfaces.Technique {
	return append([]interfaces.Technique(nil), r.current.Load().techniques...)
}

// Supported 返回所有技术的标识，按注册顺序
func (r *Registry) Supported() []types.TechniqueID {
	snap := r.current.Load()
	ids := make([]types.TechniqueID, len(snap.techniques))
	for i, tech := range snap.techniques {
		ids[i] = tech.Metadata().ID
	}
	return ids
}

// Selector 返回当前版本的选择器
func (r *Registry) Selector() *Selector {
	return r.current.Load().selector
}

// Table 返回当前版本的决策表
func (r *Registry) Table() *Table {
	return r.current.Load().selector.table
}

// Rank 使用当前版本的选择器排序
func (r *Registry) Rank(s types.NATSituation) []interfaces.Technique {
	return r.Selector().Rank(s)
}
