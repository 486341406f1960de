package bytecode

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/larklang/lark/value"
)

// WireVersion is the current artifact format version. Increment on
// incompatible changes.
const WireVersion uint16 = 1

// WireMagic prefixes every serialized artifact: "LKBC" (Lark ByteCode).
var WireMagic = []byte{'L', 'K', 'B', 'C'}

// cborEncMode uses canonical mode for deterministic encoding, so the same
// artifact always serializes to the same bytes (cache keys depend on this).
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

type wireEnvelope struct {
	Version uint16  `cbor:"v"`
	Fn      *wireFn `cbor:"fn"`
}

type wireFn struct {
	Module      string        `cbor:"m,omitempty"`
	Name        string        `cbor:"n,omitempty"`
	Arity       int           `cbor:"a,omitempty"`
	MaxSlots    int           `cbor:"s"`
	NumUpvalues int           `cbor:"u,omitempty"`
	Code        []byte        `cbor:"c"`
	Lines       []int         `cbor:"ln"`
	Upvalues    []wireUpvalue `cbor:"uv,omitempty"`
	Constants   []wireValue   `cbor:"k,omitempty"`
}

type wireUpvalue struct {
	IsLocal bool `cbor:"l"`
	Index   int  `cbor:"i"`
}

type wireValue struct {
	Kind  string      `cbor:"t"`
	Bool  bool        `cbor:"b,omitempty"`
	Num   float64     `cbor:"n,omitempty"`
	Str   string      `cbor:"s,omitempty"`
	Elems []wireValue `cbor:"e,omitempty"`
	Keys  []wireValue `cbor:"mk,omitempty"`
	Vals  []wireValue `cbor:"mv,omitempty"`
	Fn    *wireFn     `cbor:"f,omitempty"`
}

// MarshalFn serializes a function artifact, nested function constants
// included.
func MarshalFn(fn *Fn) ([]byte, error) {
	wf, err := toWireFn(fn)
	if err != nil {
		return nil, err
	}
	payload, err := cborEncMode.Marshal(wireEnvelope{Version: WireVersion, Fn: wf})
	if err != nil {
		return nil, fmt.Errorf("bytecode: marshal fn: %w", err)
	}
	out := make([]byte, 0, len(WireMagic)+len(payload))
	out = append(out, WireMagic...)
	out = append(out, payload...)
	return out, nil
}

// UnmarshalFn deserializes a function artifact.
func UnmarshalFn(data []byte) (*Fn, error) {
	if len(data) < len(WireMagic) || !bytes.Equal(data[:len(WireMagic)], WireMagic) {
		return nil, fmt.Errorf("bytecode: invalid artifact magic")
	}
	var env wireEnvelope
	if err := cbor.Unmarshal(data[len(WireMagic):], &env); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal fn: %w", err)
	}
	if env.Version > WireVersion {
		return nil, fmt.Errorf("bytecode: artifact version %d is newer than supported version %d",
			env.Version, WireVersion)
	}
	if env.Fn == nil {
		return nil, fmt.Errorf("bytecode: artifact has no function")
	}
	return fromWireFn(env.Fn), nil
}

func toWireFn(fn *Fn) (*wireFn, error) {
	wf := &wireFn{
		Module:      fn.Module,
		Name:        fn.Name,
		Arity:       fn.Arity,
		MaxSlots:    fn.MaxSlots,
		NumUpvalues: fn.NumUpvalues,
		Code:        fn.Code,
		Lines:       fn.Lines,
	}
	for _, uv := range fn.Upvalues {
		wf.Upvalues = append(wf.Upvalues, wireUpvalue{IsLocal: uv.IsLocal, Index: uv.Index})
	}
	for _, c := range fn.Constants {
		wv, err := toWireValue(c)
		if err != nil {
			return nil, err
		}
		wf.Constants = append(wf.Constants, wv)
	}
	return wf, nil
}

func fromWireFn(wf *wireFn) *Fn {
	fn := &Fn{
		Module:      wf.Module,
		Name:        wf.Name,
		Arity:       wf.Arity,
		MaxSlots:    wf.MaxSlots,
		NumUpvalues: wf.NumUpvalues,
		Code:        wf.Code,
		Lines:       wf.Lines,
	}
	for _, uv := range wf.Upvalues {
		fn.Upvalues = append(fn.Upvalues, UpvalueDesc{IsLocal: uv.IsLocal, Index: uv.Index})
	}
	for _, wv := range wf.Constants {
		fn.Constants = append(fn.Constants, fromWireValue(wv))
	}
	return fn
}

func toWireValue(v value.Value) (wireValue, error) {
	switch v.Kind() {
	case value.KindNull:
		return wireValue{Kind: "null"}, nil
	case value.KindBool:
		return wireValue{Kind: "bool", Bool: v.AsBool()}, nil
	case value.KindNum:
		return wireValue{Kind: "num", Num: v.AsNum()}, nil
	case value.KindString:
		return wireValue{Kind: "str", Str: v.AsString()}, nil
	case value.KindList:
		wv := wireValue{Kind: "list"}
		for _, e := range v.AsList().Elems {
			we, err := toWireValue(e)
			if err != nil {
				return wireValue{}, err
			}
			wv.Elems = append(wv.Elems, we)
		}
		return wv, nil
	case value.KindMap:
		wv := wireValue{Kind: "map"}
		var mapErr error
		v.AsMap().Each(func(key, val value.Value) {
			wk, err := toWireValue(key)
			if err != nil {
				mapErr = err
				return
			}
			wval, err := toWireValue(val)
			if err != nil {
				mapErr = err
				return
			}
			wv.Keys = append(wv.Keys, wk)
			wv.Vals = append(wv.Vals, wval)
		})
		if mapErr != nil {
			return wireValue{}, mapErr
		}
		return wv, nil
	case value.KindObj:
		if fn, ok := v.AsObj().(*Fn); ok {
			wf, err := toWireFn(fn)
			if err != nil {
				return wireValue{}, err
			}
			return wireValue{Kind: "fn", Fn: wf}, nil
		}
	}
	return wireValue{}, fmt.Errorf("bytecode: cannot serialize %s constant", v.Kind())
}

func fromWireValue(wv wireValue) value.Value {
	switch wv.Kind {
	case "bool":
		return value.Bool(wv.Bool)
	case "num":
		return value.Num(wv.Num)
	case "str":
		return value.Str(wv.Str)
	case "list":
		l := &value.List{}
		for _, e := range wv.Elems {
			l.Add(fromWireValue(e))
		}
		return value.NewList(l)
	case "map":
		m := &value.Map{}
		for i, k := range wv.Keys {
			m.Set(fromWireValue(k), fromWireValue(wv.Vals[i]))
		}
		return value.NewMap(m)
	case "fn":
		return value.Obj(fromWireFn(wv.Fn))
	default:
		return value.Null()
	}
}
