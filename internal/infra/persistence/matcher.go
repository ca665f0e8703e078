package persistence

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/spounge-ai/persistor/internal/domain"
)

// matches evaluates a query document against doc the way a document
// database does: plain values compare for equality (an array field matches
// when any element equals the value) and operator mappings apply the
// supported comparison operators.
func matches(doc map[string]any, m map[string]any) (bool, error) {
	for key, cond := range m {
		switch key {
		case "$and", "$or", "$nor":
			clauses, ok := cond.([]any)
			if !ok || len(clauses) == 0 {
				return false, fmt.Errorf("%s needs a non-empty array", key)
			}
			ok, err := logical(key, doc, clauses)
			if err != nil || !ok {
				return false, err
			}
			continue
		}
		if strings.HasPrefix(key, "$") {
			return false, fmt.Errorf("unknown top level operator: %s", key)
		}

		val, found := lookup(doc, key)
		if ops, isOps := operatorMap(cond); isOps {
			ok, err := applyOperators(val, found, ops)
			if err != nil || !ok {
				return false, err
			}
			continue
		}
		if !found {
			if cond == nil {
				continue
			}
			return false, nil
		}
		if !equalOrContains(val, cond) {
			return false, nil
		}
	}
	return true, nil
}

func logical(op string, doc map[string]any, clauses []any) (bool, error) {
	for _, c := range clauses {
		sub, ok := asMap(c)
		if !ok {
			return false, fmt.Errorf("%s entries must be objects", op)
		}
		ok, err := matches(doc, sub)
		if err != nil {
			return false, err
		}
		switch {
		case op == "$and" && !ok:
			return false, nil
		case op == "$or" && ok:
			return true, nil
		case op == "$nor" && ok:
			return false, nil
		}
	}
	return op != "$or", nil
}

// operatorMap reports whether cond is a mapping made only of $-operators.
func operatorMap(cond any) (map[string]any, bool) {
	m, ok := asMap(cond)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func applyOperators(val any, found bool, ops map[string]any) (bool, error) {
	for op, arg := range ops {
		var ok bool
		switch op {
		case "$eq":
			ok = found && equalOrContains(val, arg)
		case "$ne":
			ok = !found || !equalOrContains(val, arg)
		case "$gt", "$gte", "$lt", "$lte":
			ok = found && compareOp(op, val, arg)
		case "$in", "$nin":
			list, isList := arg.([]any)
			if !isList {
				return false, fmt.Errorf("%s needs an array", op)
			}
			in := false
			for _, candidate := range list {
				if found && equalOrContains(val, candidate) {
					in = true
					break
				}
			}
			ok = in == (op == "$in")
		case "$exists":
			want, isBool := arg.(bool)
			if !isBool {
				n, isNum := domain.ToFloat(arg)
				want = isNum && n != 0
			}
			ok = found == want
		case "$regex":
			pattern, isStr := arg.(string)
			if !isStr {
				return false, fmt.Errorf("$regex needs a string")
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return false, fmt.Errorf("$regex: %w", err)
			}
			s, isStr := val.(string)
			ok = found && isStr && re.MatchString(s)
		case "$not":
			inner, isOps := operatorMap(arg)
			if !isOps {
				return false, fmt.Errorf("$not needs an operator object")
			}
			res, err := applyOperators(val, found, inner)
			if err != nil {
				return false, err
			}
			ok = !res
		default:
			return false, fmt.Errorf("unknown operator: %s", op)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func compareOp(op string, val, arg any) bool {
	check := func(v any) bool {
		c, comparable := compare(v, arg)
		if !comparable {
			return false
		}
		switch op {
		case "$gt":
			return c > 0
		case "$gte":
			return c >= 0
		case "$lt":
			return c < 0
		default:
			return c <= 0
		}
	}
	if arr, ok := val.([]any); ok {
		for _, e := range arr {
			if check(e) {
				return true
			}
		}
		return false
	}
	return check(val)
}

func equalOrContains(val, want any) bool {
	if equal(val, want) {
		return true
	}
	if arr, ok := val.([]any); ok {
		for _, e := range arr {
			if equal(e, want) {
				return true
			}
		}
	}
	return false
}

func equal(a, b any) bool {
	if x, ok := domain.ToFloat(a); ok {
		y, ok := domain.ToFloat(b)
		return ok && x == y
	}
	if am, ok := asMap(a); ok {
		bm, ok := asMap(b)
		if !ok || len(am) != len(bm) {
			return false
		}
		for k, v := range am {
			w, present := bm[k]
			if !present || !equal(v, w) {
				return false
			}
		}
		return true
	}
	if as, ok := a.([]any); ok {
		bs, ok := b.([]any)
		if !ok || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !equal(as[i], bs[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// typeRank orders values of different types for sorting.
func typeRank(v any) int {
	if v == nil {
		return 0
	}
	if _, ok := domain.ToFloat(v); ok {
		return 1
	}
	switch v.(type) {
	case string:
		return 2
	case map[string]any, domain.Document, domain.Matcher:
		return 3
	case []any:
		return 4
	case bool:
		return 5
	default:
		return 6
	}
}

// compare orders two values. The second result is false when they have
// different types and so are not comparable by query operators.
func compare(a, b any) (int, bool) {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return ra - rb, false
	}
	switch ra {
	case 0:
		return 0, true
	case 1:
		x, _ := domain.ToFloat(a)
		y, _ := domain.ToFloat(b)
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case 2:
		return strings.Compare(a.(string), b.(string)), true
	case 5:
		x, y := a.(bool), b.(bool)
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	default:
		if equal(a, b) {
			return 0, true
		}
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b)), true
	}
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case domain.Document:
		return m, true
	case domain.Matcher:
		return m, true
	default:
		return nil, false
	}
}

// lookup resolves a dotted path such as "owner.name".
func lookup(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func setPath(doc map[string]any, path string, val any) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := asMap(cur[part])
		if !ok {
			next = map[string]any{}
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = val
}

func unsetPath(doc map[string]any, path string) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := asMap(cur[part])
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, parts[len(parts)-1])
}

// project applies an inclusion or exclusion projection. _id is kept unless
// explicitly excluded.
func project(doc domain.Document, keys map[string]any) (domain.Document, error) {
	if len(keys) == 0 {
		return doc, nil
	}

	include := -1
	for k, v := range keys {
		if k == domain.IDField {
			continue
		}
		on := truthy(v)
		if include == -1 {
			include = boolInt(on)
		} else if include != boolInt(on) {
			return nil, fmt.Errorf("projection cannot mix inclusion and exclusion")
		}
	}
	keepID := true
	if v, ok := keys[domain.IDField]; ok {
		keepID = truthy(v)
	}

	if include == 1 {
		out := domain.Document{}
		for k, v := range keys {
			if k == domain.IDField || !truthy(v) {
				continue
			}
			if val, ok := lookup(doc, k); ok {
				setPath(out, k, val)
			}
		}
		if id, ok := doc[domain.IDField]; ok && keepID {
			out[domain.IDField] = id
		}
		return out, nil
	}

	out := doc.Clone()
	for k := range keys {
		if k != domain.IDField {
			unsetPath(out, k)
		}
	}
	if !keepID {
		delete(out, domain.IDField)
	}
	return out, nil
}

func truthy(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	n, ok := domain.ToFloat(v)
	return ok && n != 0
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// applyUpdate returns the result of applying objNew to doc. objNew is either
// a replacement document or a mapping of update operators. $setOnInsert only
// applies when inserting is set.
func applyUpdate(doc domain.Document, objNew domain.Document, inserting bool) (domain.Document, error) {
	if _, isOps := operatorMap(map[string]any(objNew)); !isOps {
		out := objNew.Clone()
		if id, ok := doc[domain.IDField]; ok {
			out[domain.IDField] = id
		}
		return out, nil
	}

	out := doc.Clone()
	for op, arg := range objNew {
		fields, ok := asMap(arg)
		if !ok {
			return nil, fmt.Errorf("%s needs an object", op)
		}
		for path, v := range fields {
			if path == domain.IDField && op != "$setOnInsert" {
				return nil, fmt.Errorf("cannot modify the immutable field %s", domain.IDField)
			}
			switch op {
			case "$set":
				setPath(out, path, cloneAny(v))
			case "$setOnInsert":
				if inserting {
					setPath(out, path, cloneAny(v))
				}
			case "$unset":
				unsetPath(out, path)
			case "$inc":
				delta, isNum := domain.ToFloat(v)
				if !isNum {
					return nil, fmt.Errorf("$inc needs a number for %s", path)
				}
				cur, found := lookup(out, path)
				base := 0.0
				if found {
					n, isNum := domain.ToFloat(cur)
					if !isNum {
						return nil, fmt.Errorf("cannot $inc non-numeric field %s", path)
					}
					base = n
				}
				setPath(out, path, base+delta)
			case "$push":
				cur, found := lookup(out, path)
				arr, isArr := cur.([]any)
				if found && !isArr {
					return nil, fmt.Errorf("cannot $push to non-array field %s", path)
				}
				setPath(out, path, append(append([]any{}, arr...), cloneAny(v)))
			default:
				return nil, fmt.Errorf("unknown update operator: %s", op)
			}
		}
	}
	return out, nil
}

// upsertSeed starts an upserted document from the plain equality fields of criteria.
func upsertSeed(criteria map[string]any) domain.Document {
	seed := domain.Document{}
	for k, v := range criteria {
		if _, isOps := operatorMap(v); !isOps && len(k) > 0 && k[0] != '$' {
			setPath(seed, k, cloneAny(v))
		}
	}
	return seed
}

func cloneAny(v any) any {
	return domain.Document{"v": v}.Clone()["v"]
}
