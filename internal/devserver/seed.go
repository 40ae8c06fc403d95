package devserver

import "context"

type demoNode struct {
	title    string
	children []demoNode
}

var demoTree = []demoNode{
	{title: "Products", children: []demoNode{
		{title: "Keyboards", children: []demoNode{{title: "Mechanical"}, {title: "Low profile"}}},
		{title: "Mice"},
		{title: "Monitors"},
	}},
	{title: "Services", children: []demoNode{{title: "Repairs"}, {title: "Rentals"}}},
	{title: "About us"},
	{title: "Contact"},
}

// SeedDemo fills an empty store with a small product tree. It reports whether anything was added.
func SeedDemo(ctx context.Context, st *Store) (bool, error) {
	existing, err := st.Flatten(ctx, nil)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}
	var add func(parent *string, nodes []demoNode) error
	add = func(parent *string, nodes []demoNode) error {
		for _, dn := range nodes {
			n, err := st.Add(ctx, parent, dn.title)
			if err != nil {
				return err
			}
			id := n.ID
			if err := add(&id, dn.children); err != nil {
				return err
			}
		}
		return nil
	}
	if err := add(nil, demoTree); err != nil {
		return false, err
	}
	return true, nil
}
