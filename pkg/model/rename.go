package model

import "fmt"

// RenameComponent moves component from to the reference to and rewrites
// every net entry that named it.
func (d *Document) RenameComponent(from, to string) error {
	if from == to {
		return nil
	}
	c, ok := d.Components[from]
	if !ok {
		return fmt.Errorf("rename %s: no such component", from)
	}
	if _, exists := d.Components[to]; exists {
		return &ReferenceConflictError{Ref: to, First: "component " + to, Second: "rename of " + from}
	}

	delete(d.Components, from)
	d.Components[to] = c

	for name, members := range d.Nets {
		for i, entry := range members {
			m, err := ParseMember(entry)
			if err == nil && m.Ref == from {
				members[i] = Member{Ref: to, Pin: m.Pin}.String()
			}
		}
		d.Nets[name] = members
	}
	return nil
}

// FindByUUID returns the reference of the component with the given UUID.
func (d *Document) FindByUUID(id string) (string, bool) {
	if id == "" {
		return "", false
	}
	for _, ref := range d.Refs() {
		if d.Components[ref].UUID == id {
			return ref, true
		}
	}
	return "", false
}
