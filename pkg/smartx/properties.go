package smartx

// Value is a tagged-union property value (spec §3 "Properties"). Producers
// and consumers agree on keys per module type; the core never interprets
// the bag — it only stores and forwards it.
type Value struct {
	kind ValueKind

	i32  int32
	i64  int64
	f32  float32
	f64  float64
	str  string
	i32v []int32
	i64v []int64
	f32v []float32
	f64v []float64
	strv []string
}

type ValueKind int

const (
	KindInt32 ValueKind = iota
	KindInt64
	KindFloat32
	KindFloat64
	KindString
	KindInt32Vector
	KindInt64Vector
	KindFloat32Vector
	KindFloat64Vector
	KindStringVector
)

func Int32(v int32) Value    { return Value{kind: KindInt32, i32: v} }
func Int64(v int64) Value    { return Value{kind: KindInt64, i64: v} }
func Float32(v float32) Value { return Value{kind: KindFloat32, f32: v} }
func Float64(v float64) Value { return Value{kind: KindFloat64, f64: v} }
func String(v string) Value  { return Value{kind: KindString, str: v} }

func Int32Vector(v []int32) Value     { return Value{kind: KindInt32Vector, i32v: v} }
func Int64Vector(v []int64) Value     { return Value{kind: KindInt64Vector, i64v: v} }
func Float32Vector(v []float32) Value { return Value{kind: KindFloat32Vector, f32v: v} }
func Float64Vector(v []float64) Value { return Value{kind: KindFloat64Vector, f64v: v} }
func StringVector(v []string) Value   { return Value{kind: KindStringVector, strv: v} }

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) Int32() (int32, bool)    { return v.i32, v.kind == KindInt32 }
func (v Value) Int64() (int64, bool)    { return v.i64, v.kind == KindInt64 }
func (v Value) Float32() (float32, bool) { return v.f32, v.kind == KindFloat32 }
func (v Value) Float64() (float64, bool) { return v.f64, v.kind == KindFloat64 }
func (v Value) String() (string, bool)  { return v.str, v.kind == KindString }

func (v Value) Int32Vector() ([]int32, bool)     { return v.i32v, v.kind == KindInt32Vector }
func (v Value) Int64Vector() ([]int64, bool)     { return v.i64v, v.kind == KindInt64Vector }
func (v Value) Float32Vector() ([]float32, bool) { return v.f32v, v.kind == KindFloat32Vector }
func (v Value) Float64Vector() ([]float64, bool) { return v.f64v, v.kind == KindFloat64Vector }
func (v Value) StringVector() ([]string, bool)   { return v.strv, v.kind == KindStringVector }

// Properties is the key/value map carried by module configuration, module
// commands, and module event payloads (spec §3 "Properties").
type Properties map[string]Value

// Clone returns a shallow copy, enough to let a façade call hand out a
// Properties map without the caller being able to mutate engine-held state
// afterwards (vectors inside Value are still shared, matching the teacher's
// "reuse the slice, don't reallocate per period" idiom elsewhere).
func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
