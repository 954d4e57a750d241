// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

const entityMarker = "entity$"

// Entity is the default rich form of a payload tagged with "entity$".
type Entity map[string]any

// Canon returns the entity's canonical name, the value of its marker.
func (e Entity) Canon() string {
	return argString(e[entityMarker])
}

// EntityMaker turns a marked payload into the representation the dispatch
// engine understands.
type EntityMaker func(raw map[string]any) any

func makeEntity(raw map[string]any) any {
	return Entity(raw)
}

func asEntity(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	switch mark := m[entityMarker].(type) {
	case nil:
		return nil, false
	case bool:
		return m, mark
	case string:
		return m, mark != ""
	default:
		return m, true
	}
}

// rehydrate converts raw, or each of its direct fields, when marked as an
// entity. Deeper values are left alone.
func rehydrate(mk EntityMaker, raw any) any {
	if mk == nil {
		mk = makeEntity
	}
	if m, ok := asEntity(raw); ok {
		return mk(m)
	}
	if m, ok := raw.(map[string]any); ok {
		rehydrateFields(mk, m)
	}
	return raw
}

func rehydrateFields(mk EntityMaker, m map[string]any) {
	if mk == nil {
		mk = makeEntity
	}
	for k, v := range m {
		if e, ok := asEntity(v); ok {
			m[k] = mk(e)
		}
	}
}
