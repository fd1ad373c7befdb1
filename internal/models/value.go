package models

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var indented = jsoniter.Config{IndentionStep: 2, EscapeHTML: true}.Froze()

// Kind identifies the variant held by a Value.
type Kind int

const (
	// Invalid is the zero Value: no value was observed.
	Invalid Kind = iota
	KindNull
	KindString
	KindInt
	KindNumber
	KindBool
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "integer"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "invalid"
	}
}

// Member is one key of an object Value.
type Member struct {
	Key   string
	Value Value
}

// Value is a JSON-shaped tagged variant. Object members keep their source order.
type Value struct {
	kind    Kind
	str     string
	num     int64
	flt     float64
	boolean bool
	items   []Value
	members []Member
}

// Constructors for each variant.
func Null() Value                    { return Value{kind: KindNull} }
func String(s string) Value          { return Value{kind: KindString, str: s} }
func Int(i int64) Value              { return Value{kind: KindInt, num: i} }
func Number(f float64) Value         { return Value{kind: KindNumber, flt: f} }
func Bool(b bool) Value              { return Value{kind: KindBool, boolean: b} }
func Array(items ...Value) Value     { return Value{kind: KindArray, items: items} }
func Object(members ...Member) Value { return Value{kind: KindObject, members: members} }

// Field builds an object member.
func Field(key string, v Value) Member {
	return Member{Key: key, Value: v}
}

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsValid() bool  { return v.kind != Invalid }
func (v Value) IsNull() bool   { return v.kind == KindNull }
func (v Value) IsObject() bool { return v.kind == KindObject }
func (v Value) IsArray() bool  { return v.kind == KindArray }

// IsScalar reports whether v is neither an array nor an object.
func (v Value) IsScalar() bool {
	return v.kind != KindArray && v.kind != KindObject
}

func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }
func (v Value) AsInt() (int64, bool)     { return v.num, v.kind == KindInt }
func (v Value) AsBool() (bool, bool)     { return v.boolean, v.kind == KindBool }

// AsNumber returns the numeric value of an Int or Number.
func (v Value) AsNumber() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.num), true
	case KindNumber:
		return v.flt, true
	}
	return 0, false
}

// Items returns the elements of an array Value.
func (v Value) Items() []Value {
	return v.items
}

// Members returns the members of an object Value in source order.
func (v Value) Members() []Member {
	return v.members
}

// Get looks up an object member by key.
func (v Value) Get(key string) (Value, bool) {
	for _, m := range v.members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return Value{}, false
}

// Len returns the number of array items or object members.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.items)
	case KindObject:
		return len(v.members)
	}
	return 0
}

// Equal reports deep equality, including member order.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindInt:
		return v.num == o.num
	case KindNumber:
		return v.flt == o.flt
	case KindBool:
		return v.boolean == o.boolean
	case KindArray:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
	case KindObject:
		if len(v.members) != len(o.members) {
			return false
		}
		for i := range v.members {
			if v.members[i].Key != o.members[i].Key || !v.members[i].Value.Equal(o.members[i].Value) {
				return false
			}
		}
	}
	return true
}

// Text renders a scalar the way it appears in a URL or form body.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return strconv.FormatInt(v.num, 10)
	case KindNumber:
		return strconv.FormatFloat(v.flt, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.boolean)
	case KindNull:
		return "null"
	case Invalid:
		return ""
	}
	return v.JSON()
}

// JSON returns the compact JSON encoding of v.
func (v Value) JSON() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(b)
}

// IndentJSON returns the JSON encoding of v indented by two spaces, keeping key order.
func (v Value) IndentJSON() string {
	stream := indented.BorrowStream(nil)
	defer indented.ReturnStream(stream)

	writeValue(stream, v)
	if stream.Error != nil {
		return ""
	}
	return string(stream.Buffer())
}

// ParseJSON decodes a complete JSON document into a Value.
func ParseJSON(data []byte) (Value, error) {
	iter := jsoniter.ParseBytes(json, data)
	v := readValue(iter)
	if iter.Error != nil && !errors.Is(iter.Error, io.EOF) {
		return Value{}, fmt.Errorf("parse json: %w", iter.Error)
	}
	// Only whitespace may follow: peeking past the document must hit EOF.
	iter.WhatIsNext()
	if iter.Error == nil {
		return Value{}, errors.New("parse json: trailing data after document")
	}
	return v, nil
}

func readValue(iter *jsoniter.Iterator) Value {
	switch iter.WhatIsNext() {
	case jsoniter.StringValue:
		return String(iter.ReadString())
	case jsoniter.NumberValue:
		n := iter.ReadNumber()
		if i, err := strconv.ParseInt(string(n), 10, 64); err == nil {
			return Int(i)
		}
		f, err := strconv.ParseFloat(string(n), 64)
		if err != nil {
			iter.ReportError("readValue", "invalid number "+string(n))
			return Value{}
		}
		return Number(f)
	case jsoniter.NilValue:
		iter.ReadNil()
		return Null()
	case jsoniter.BoolValue:
		return Bool(iter.ReadBool())
	case jsoniter.ArrayValue:
		items := make([]Value, 0)
		iter.ReadArrayCB(func(it *jsoniter.Iterator) bool {
			items = append(items, readValue(it))
			return it.Error == nil
		})
		return Value{kind: KindArray, items: items}
	case jsoniter.ObjectValue:
		members := make([]Member, 0)
		iter.ReadObjectCB(func(it *jsoniter.Iterator, key string) bool {
			members = append(members, Member{Key: key, Value: readValue(it)})
			return it.Error == nil
		})
		return Value{kind: KindObject, members: members}
	default:
		iter.ReportError("readValue", "unexpected token")
		return Value{}
	}
}

// MarshalJSON implements json.Marshaler. The zero Value encodes as null.
func (v Value) MarshalJSON() ([]byte, error) {
	stream := json.BorrowStream(nil)
	defer json.ReturnStream(stream)

	writeValue(stream, v)
	if stream.Error != nil {
		return nil, stream.Error
	}
	out := make([]byte, len(stream.Buffer()))
	copy(out, stream.Buffer())
	return out, nil
}

func writeValue(stream *jsoniter.Stream, v Value) {
	switch v.kind {
	case KindString:
		stream.WriteString(v.str)
	case KindInt:
		stream.WriteInt64(v.num)
	case KindNumber:
		stream.WriteFloat64(v.flt)
	case KindBool:
		stream.WriteBool(v.boolean)
	case KindArray:
		if len(v.items) == 0 {
			stream.WriteEmptyArray()
			return
		}
		stream.WriteArrayStart()
		for i, item := range v.items {
			if i > 0 {
				stream.WriteMore()
			}
			writeValue(stream, item)
		}
		stream.WriteArrayEnd()
	case KindObject:
		if len(v.members) == 0 {
			stream.WriteEmptyObject()
			return
		}
		stream.WriteObjectStart()
		for i, m := range v.members {
			if i > 0 {
				stream.WriteMore()
			}
			stream.WriteObjectField(m.Key)
			writeValue(stream, m.Value)
		}
		stream.WriteObjectEnd()
	default:
		stream.WriteNil()
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ParseJSON(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// MarshalYAML renders v as a yaml node so object key order survives encoding.
func (v Value) MarshalYAML() (interface{}, error) {
	return v.yamlNode(), nil
}

func (v Value) yamlNode() *yaml.Node {
	scalar := func(tag, value string) *yaml.Node {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
	}

	switch v.kind {
	case KindString:
		return scalar("!!str", v.str)
	case KindInt:
		return scalar("!!int", strconv.FormatInt(v.num, 10))
	case KindNumber:
		return scalar("!!float", strconv.FormatFloat(v.flt, 'g', -1, 64))
	case KindBool:
		return scalar("!!bool", strconv.FormatBool(v.boolean))
	case KindArray:
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range v.items {
			node.Content = append(node.Content, item.yamlNode())
		}
		return node
	case KindObject:
		node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, m := range v.members {
			node.Content = append(node.Content, scalar("!!str", m.Key), m.Value.yamlNode())
		}
		return node
	default:
		return scalar("!!null", "null")
	}
}
