package dom

import "errors"

// Queryer runs a single locator against a page
type Queryer interface {
	QueryAll(loc Locator, scope *Element) ([]*Element, error)
}

// ResolveOne returns the first element of the earliest locator in set that
// matches anything inside scope. It returns (nil, nil) when nothing matches.
// Errors other than ErrNoSuchElement are returned to the caller.
func ResolveOne(q Queryer, scope *Element, set LocatorSet) (*Element, error) {
	for _, loc := range set {
		elements, err := q.QueryAll(loc, scope)
		if err != nil {
			if errors.Is(err, ErrNoSuchElement) {
				continue
			}
			return nil, err
		}
		if len(elements) > 0 {
			return elements[0], nil
		}
	}
	return nil, nil
}

// ResolveMany returns all matches of the earliest locator in set that
// matches anything inside scope. Later locators are never consulted once
// one matches, and results are not merged across locators.
func ResolveMany(q Queryer, scope *Element, set LocatorSet) ([]*Element, error) {
	for _, loc := range set {
		elements, err := q.QueryAll(loc, scope)
		if err != nil {
			if errors.Is(err, ErrNoSuchElement) {
				continue
			}
			return nil, err
		}
		if len(elements) > 0 {
			return elements, nil
		}
	}
	return nil, nil
}
