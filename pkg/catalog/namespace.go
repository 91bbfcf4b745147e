package catalog

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/vanguarddb/vanguard/pkg/storage"
	"github.com/vanguarddb/vanguard/pkg/types"
)

// CreateNamespace creates a new namespace, rejecting a name collision
// with any namespace not already deleted.
func (m *Manager) CreateNamespace(name string, nsType types.NamespaceType) (*types.Namespace, error) {
	if !m.IsLeader() {
		return nil, ErrNotLeader
	}
	if _, ok := m.registry.findNamespaceByName(name, nsType); ok {
		return nil, fmt.Errorf("%w: namespace %q of type %s", ErrAlreadyPresent, name, nsType)
	}

	ns := &types.Namespace{
		ID:    uuid.New().String(),
		Name:  name,
		Type:  nsType,
		State: types.NamespaceCreated,
	}

	txn, err := beginTxn[types.Namespace](m, storage.KindNamespace, ns.ID, types.Namespace{})
	if err != nil {
		return nil, err
	}
	*txn.Dirty() = *ns
	if err := txn.Commit(); err != nil {
		return nil, err
	}
	return ns, nil
}

// GetNamespace returns the namespace with the given id.
func (m *Manager) GetNamespace(id string) (*types.Namespace, error) {
	ns, ok := m.registry.getNamespace(id)
	if !ok {
		return nil, fmt.Errorf("%w: namespace %q", ErrNotFound, id)
	}
	return ns, nil
}

// ListNamespaces returns every known namespace.
func (m *Manager) ListNamespaces() []*types.Namespace {
	return m.registry.listNamespaces()
}

// DeleteNamespace marks a namespace DELETING then DELETED. It refuses to
// delete a namespace that still owns tables.
func (m *Manager) DeleteNamespace(id string) error {
	if !m.IsLeader() {
		return ErrNotLeader
	}
	ns, ok := m.registry.getNamespace(id)
	if !ok {
		return fmt.Errorf("%w: namespace %q", ErrNotFound, id)
	}
	for _, t := range m.registry.listTables() {
		if t.NamespaceID == id && t.State != types.TableDeleted {
			return fmt.Errorf("catalog: namespace %q still has table %q", id, t.ID)
		}
	}

	txn, err := beginTxn[types.Namespace](m, storage.KindNamespace, id, *ns)
	if err != nil {
		return err
	}
	txn.Dirty().State = types.NamespaceDeleting
	if err := txn.Commit(); err != nil {
		return err
	}

	ns, ok = m.registry.getNamespace(id)
	if !ok {
		return fmt.Errorf("%w: namespace %q", ErrNotFound, id)
	}
	txn, err = beginTxn[types.Namespace](m, storage.KindNamespace, id, *ns)
	if err != nil {
		return err
	}
	txn.Dirty().State = types.NamespaceDeleted
	return txn.Commit()
}
