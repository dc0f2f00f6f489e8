package routing

import "fmt"

// ExecutionOrder returns route ids with every route's dependencies placed
// before the route itself. Unknown or cyclic dependencies yield an error;
// the router validates closure before calling this.
func ExecutionOrder(routes []Route) ([]string, error) {
	byID := make(map[string]*Route, len(routes))
	for i := range routes {
		byID[routes[i].ID] = &routes[i]
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(routes))
	order := make([]string, 0, len(routes))

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("dependency cycle through route %s", id)
		}
		r, ok := byID[id]
		if !ok {
			return fmt.Errorf("route %s references unknown dependency", id)
		}
		state[id] = visiting
		for _, dep := range r.DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = done
		order = append(order, id)
		return nil
	}

	for i := range routes {
		if err := visit(routes[i].ID); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// ValidateClosure checks that every dependency references a route in the
// same plan.
func ValidateClosure(routes []Route) error {
	ids := make(map[string]bool, len(routes))
	for i := range routes {
		ids[routes[i].ID] = true
	}
	for i := range routes {
		for _, dep := range routes[i].DependsOn {
			if !ids[dep] {
				return fmt.Errorf("route %s depends on %s, which is not in the plan", routes[i].ID, dep)
			}
		}
	}
	return nil
}
