package history

import (
	"bytes"
	"reflect"
	"sort"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/spec-kit/doc-history/internal/domain"
)

var (
	// ErrCyclicStructure is returned when a snapshot references itself.
	ErrCyclicStructure = errors.New("cyclic structure")
	// ErrIncomparable is returned for values that have no structural meaning, such as funcs or channels.
	ErrIncomparable = errors.New("incomparable value")
)

// RawDiff is one difference reported by Diff, before filtering.
type RawDiff struct {
	Kind domain.ChangeType
	Path domain.Path
	LHS  any
	RHS  any
	// Item is set for ArrayChanged diffs and describes the differing element.
	Item *domain.ArrayItem
}

// Diff compares two snapshots and returns their differences in a deterministic
// order. A nil before reports every field of after as created.
func Diff(before, after map[string]any) ([]RawDiff, error) {
	d := newDiffer()
	if before == nil {
		before = map[string]any{}
	}
	if after == nil {
		after = map[string]any{}
	}
	if err := d.compareMaps(nil, reflect.ValueOf(before), reflect.ValueOf(after)); err != nil {
		return nil, err
	}
	return d.out, nil
}

type shape int

const (
	shapeScalar shape = iota
	shapeMap
	shapeSeq
)

// stack holds the containers currently being walked on one side of a diff.
type stack map[uintptr]struct{}

type differ struct {
	out   []RawDiff
	left  stack
	right stack
}

func newDiffer() *differ {
	return &differ{left: stack{}, right: stack{}}
}

// Validate reports whether v can be diffed: it must be acyclic and built only
// from mappings with string keys, sequences, and scalars.
func Validate(v any) error {
	return newDiffer().validate(reflect.ValueOf(v))
}

func (d *differ) emit(kind domain.ChangeType, path domain.Path, lhs, rhs any, item *domain.ArrayItem) {
	d.out = append(d.out, RawDiff{Kind: kind, Path: path.Clone(), LHS: lhs, RHS: rhs, Item: item})
}

func (d *differ) compare(path domain.Path, lhs, rhs reflect.Value) error {
	lhs, rhs = unwrap(lhs), unwrap(rhs)
	ls, err := classify(lhs)
	if err != nil {
		return errors.Wrapf(err, "at %q", path.String())
	}
	rs, err := classify(rhs)
	if err != nil {
		return errors.Wrapf(err, "at %q", path.String())
	}

	if ls != rs {
		if err := d.validate(rhs); err != nil {
			return errors.Wrapf(err, "at %q", path.String())
		}
		d.emit(domain.ChangeEdited, path, valueOf(lhs), valueOf(rhs), nil)
		return nil
	}

	switch ls {
	case shapeMap:
		return d.compareMaps(path, lhs, rhs)
	case shapeSeq:
		return d.compareSeqs(path, lhs, rhs)
	default:
		if !scalarEqual(lhs, rhs) {
			d.emit(domain.ChangeEdited, path, valueOf(lhs), valueOf(rhs), nil)
		}
		return nil
	}
}

func (d *differ) compareMaps(path domain.Path, lhs, rhs reflect.Value) error {
	release, err := d.enterPair(lhs, rhs)
	if err != nil {
		return errors.Wrapf(err, "at %q", path.String())
	}
	defer release()

	keys := map[string]struct{}{}
	for _, k := range lhs.MapKeys() {
		keys[k.String()] = struct{}{}
	}
	for _, k := range rhs.MapKeys() {
		keys[k.String()] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	for _, key := range sorted {
		child := childPath(path, key)
		lv := mapIndex(lhs, key)
		rv := mapIndex(rhs, key)
		switch {
		case !lv.IsValid():
			if err := d.validate(rv); err != nil {
				return errors.Wrapf(err, "at %q", child.String())
			}
			d.emit(domain.ChangeCreated, child, nil, valueOf(rv), nil)
		case !rv.IsValid():
			d.emit(domain.ChangeDeleted, child, valueOf(lv), nil, nil)
		default:
			if err := d.compare(child, lv, rv); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *differ) compareSeqs(path domain.Path, lhs, rhs reflect.Value) error {
	release, err := d.enterPair(lhs, rhs)
	if err != nil {
		return errors.Wrapf(err, "at %q", path.String())
	}
	defer release()

	n := lhs.Len()
	if rhs.Len() > n {
		n = rhs.Len()
	}
	for i := 0; i < n; i++ {
		switch {
		case i >= lhs.Len():
			rv := rhs.Index(i)
			if err := d.validate(rv); err != nil {
				return errors.Wrapf(err, "at %q[%d]", path.String(), i)
			}
			d.emit(domain.ChangeArrayChanged, path, nil, nil, &domain.ArrayItem{
				Index: i, Kind: domain.ChangeCreated, After: valueOf(rv),
			})
		case i >= rhs.Len():
			d.emit(domain.ChangeArrayChanged, path, nil, nil, &domain.ArrayItem{
				Index: i, Kind: domain.ChangeDeleted, Before: valueOf(lhs.Index(i)),
			})
		default:
			equal, err := d.equal(lhs.Index(i), rhs.Index(i))
			if err != nil {
				return errors.Wrapf(err, "at %q[%d]", path.String(), i)
			}
			if !equal {
				if err := d.validate(rhs.Index(i)); err != nil {
					return errors.Wrapf(err, "at %q[%d]", path.String(), i)
				}
				d.emit(domain.ChangeArrayChanged, path, nil, nil, &domain.ArrayItem{
					Index: i, Kind: domain.ChangeEdited, Before: valueOf(lhs.Index(i)), After: valueOf(rhs.Index(i)),
				})
			}
		}
	}
	return nil
}

// equal compares two array elements structurally without emitting diffs.
func (d *differ) equal(lhs, rhs reflect.Value) (bool, error) {
	lhs, rhs = unwrap(lhs), unwrap(rhs)
	ls, err := classify(lhs)
	if err != nil {
		return false, err
	}
	rs, err := classify(rhs)
	if err != nil {
		return false, err
	}
	if ls != rs {
		return false, d.validate(rhs)
	}

	switch ls {
	case shapeMap:
		release, err := d.enterPair(lhs, rhs)
		if err != nil {
			return false, err
		}
		defer release()
		if lhs.Len() != rhs.Len() {
			return false, nil
		}
		for _, k := range lhs.MapKeys() {
			rv := mapIndex(rhs, k.String())
			if !rv.IsValid() {
				return false, nil
			}
			eq, err := d.equal(lhs.MapIndex(k), rv)
			if err != nil || !eq {
				return false, err
			}
		}
		return true, nil
	case shapeSeq:
		release, err := d.enterPair(lhs, rhs)
		if err != nil {
			return false, err
		}
		defer release()
		if lhs.Len() != rhs.Len() {
			return false, nil
		}
		for i := 0; i < lhs.Len(); i++ {
			eq, err := d.equal(lhs.Index(i), rhs.Index(i))
			if err != nil || !eq {
				return false, err
			}
		}
		return true, nil
	default:
		return scalarEqual(lhs, rhs), nil
	}
}

// validate walks a value that is reported wholesale (created, or replacing a
// value of another shape) so cycles and unsupported kinds still surface.
func (d *differ) validate(v reflect.Value) error {
	v = unwrap(v)
	s, err := classify(v)
	if err != nil {
		return err
	}
	switch s {
	case shapeMap:
		release, err := d.right.enter(v)
		if err != nil {
			return err
		}
		defer release()
		for _, k := range v.MapKeys() {
			if err := d.validate(v.MapIndex(k)); err != nil {
				return err
			}
		}
	case shapeSeq:
		release, err := d.right.enter(v)
		if err != nil {
			return err
		}
		defer release()
		for i := 0; i < v.Len(); i++ {
			if err := d.validate(v.Index(i)); err != nil {
				return err
			}
		}
	}
	return nil
}

// enter marks v as being walked and fails if it is already on the stack.
func (s stack) enter(v reflect.Value) (func(), error) {
	ptr, ok := identity(v)
	if !ok {
		return func() {}, nil
	}
	if _, seen := s[ptr]; seen {
		return nil, ErrCyclicStructure
	}
	s[ptr] = struct{}{}
	return func() { delete(s, ptr) }, nil
}

func (d *differ) enterPair(lhs, rhs reflect.Value) (func(), error) {
	releaseLeft, err := d.left.enter(lhs)
	if err != nil {
		return nil, err
	}
	releaseRight, err := d.right.enter(rhs)
	if err != nil {
		releaseLeft()
		return nil, err
	}
	return func() {
		releaseRight()
		releaseLeft()
	}, nil
}

func childPath(path domain.Path, key string) domain.Path {
	out := make(domain.Path, len(path), len(path)+1)
	copy(out, path)
	return append(out, key)
}

func identity(v reflect.Value) (uintptr, bool) {
	switch v.Kind() {
	case reflect.Map:
		if v.IsNil() || v.Len() == 0 {
			return 0, false
		}
		return v.Pointer(), true
	case reflect.Slice:
		if v.IsNil() || v.Len() == 0 {
			return 0, false
		}
		return v.Pointer(), true
	default:
		return 0, false
	}
}

func unwrap(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

var timeType = reflect.TypeOf(time.Time{})

func classify(v reflect.Value) (shape, error) {
	if !v.IsValid() {
		return shapeScalar, nil
	}
	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return 0, errors.Wrapf(ErrIncomparable, "map key type %s", v.Type().Key())
		}
		return shapeMap, nil
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return shapeScalar, nil
		}
		return shapeSeq, nil
	case reflect.Array:
		return shapeSeq, nil
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return 0, errors.Wrapf(ErrIncomparable, "kind %s", v.Kind())
	case reflect.Struct:
		if v.Type() == timeType {
			return shapeScalar, nil
		}
		return 0, errors.Wrapf(ErrIncomparable, "struct %s", v.Type())
	default:
		return shapeScalar, nil
	}
}

func mapIndex(m reflect.Value, key string) reflect.Value {
	return m.MapIndex(reflect.ValueOf(key).Convert(m.Type().Key()))
}

func valueOf(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	return v.Interface()
}

func scalarEqual(lhs, rhs reflect.Value) bool {
	if !lhs.IsValid() || !rhs.IsValid() {
		return lhs.IsValid() == rhs.IsValid()
	}
	if isNumber(lhs) || isNumber(rhs) {
		return isNumber(lhs) && isNumber(rhs) && numberEqual(lhs, rhs)
	}
	if lhs.Type() == timeType || rhs.Type() == timeType {
		return lhs.Type() == rhs.Type() && lhs.Interface().(time.Time).Equal(rhs.Interface().(time.Time))
	}
	if lhs.Kind() != rhs.Kind() {
		return false
	}
	switch lhs.Kind() {
	case reflect.String:
		return lhs.String() == rhs.String()
	case reflect.Bool:
		return lhs.Bool() == rhs.Bool()
	case reflect.Slice:
		return bytes.Equal(lhs.Bytes(), rhs.Bytes())
	default:
		return reflect.DeepEqual(lhs.Interface(), rhs.Interface())
	}
}

func isNumber(v reflect.Value) bool {
	return isSigned(v) || isUnsigned(v) || v.Kind() == reflect.Float32 || v.Kind() == reflect.Float64
}

func isSigned(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	default:
		return false
	}
}

func isUnsigned(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	default:
		return false
	}
}

// numberEqual compares numbers by value; integers are compared exactly.
func numberEqual(lhs, rhs reflect.Value) bool {
	switch {
	case isSigned(lhs) && isSigned(rhs):
		return lhs.Int() == rhs.Int()
	case isUnsigned(lhs) && isUnsigned(rhs):
		return lhs.Uint() == rhs.Uint()
	case isSigned(lhs) && isUnsigned(rhs):
		return lhs.Int() >= 0 && uint64(lhs.Int()) == rhs.Uint()
	case isUnsigned(lhs) && isSigned(rhs):
		return rhs.Int() >= 0 && lhs.Uint() == uint64(rhs.Int())
	default:
		return toFloat(lhs) == toFloat(rhs)
	}
}

func toFloat(v reflect.Value) float64 {
	switch {
	case isSigned(v):
		return float64(v.Int())
	case isUnsigned(v):
		return float64(v.Uint())
	default:
		return v.Float()
	}
}
