package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"graphlite/internal/gqlerr"
	"graphlite/internal/value"
)

// Value tags used by the binary record encoding. Node/Edge/Path are
// deliberately not encodable: properties persisted to a tree never
// carry a live entity reference, only the scalar/list/map kinds a
// property value is allowed to hold.
const (
	tagNull byte = iota
	tagBool
	tagInt
	tagFloat
	tagString
	tagDate
	tagTime
	tagDateTime
	tagList
	tagMap
)

func encodeValue(buf *bytes.Buffer, v value.Value) error {
	switch v.Kind {
	case value.KindNull:
		buf.WriteByte(tagNull)
	case value.KindBool:
		buf.WriteByte(tagBool)
		if v.Bool {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case value.KindInt:
		buf.WriteByte(tagInt)
		_ = binary.Write(buf, binary.BigEndian, v.Int)
	case value.KindFloat:
		buf.WriteByte(tagFloat)
		_ = binary.Write(buf, binary.BigEndian, math.Float64bits(v.Float))
	case value.KindString:
		buf.WriteByte(tagString)
		writeBytes(buf, []byte(v.Str))
	case value.KindDate, value.KindTime, value.KindDateTime:
		switch v.Kind {
		case value.KindDate:
			buf.WriteByte(tagDate)
		case value.KindTime:
			buf.WriteByte(tagTime)
		default:
			buf.WriteByte(tagDateTime)
		}
		_ = binary.Write(buf, binary.BigEndian, v.Time.UTC().UnixNano())
	case value.KindList:
		buf.WriteByte(tagList)
		writeUvarint(buf, uint64(len(v.List)))
		for _, e := range v.List {
			if err := encodeValue(buf, e); err != nil {
				return err
			}
		}
	case value.KindMap:
		buf.WriteByte(tagMap)
		keys := make([]string, 0, len(v.Map))
		for k := range v.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		writeUvarint(buf, uint64(len(keys)))
		for _, k := range keys {
			writeBytes(buf, []byte(k))
			if err := encodeValue(buf, v.Map[k]); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("value kind %s is not storable", v.Kind)
	}
	return nil
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUvarint(buf, uint64(len(b)))
	buf.Write(b)
}

func writeUvarint(buf *bytes.Buffer, n uint64) {
	var tmp [binary.MaxVarintLen64]byte
	l := binary.PutUvarint(tmp[:], n)
	buf.Write(tmp[:l])
}

func decodeValue(r *bytes.Reader) (value.Value, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return value.Null, corrupt(err)
	}
	switch tag {
	case tagNull:
		return value.Null, nil
	case tagBool:
		b, err := r.ReadByte()
		if err != nil {
			return value.Null, corrupt(err)
		}
		return value.Bool(b != 0), nil
	case tagInt:
		var i int64
		if err := binary.Read(r, binary.BigEndian, &i); err != nil {
			return value.Null, corrupt(err)
		}
		return value.Int(i), nil
	case tagFloat:
		var bits uint64
		if err := binary.Read(r, binary.BigEndian, &bits); err != nil {
			return value.Null, corrupt(err)
		}
		return value.Float(math.Float64frombits(bits)), nil
	case tagString:
		s, err := readBytes(r)
		if err != nil {
			return value.Null, err
		}
		return value.Str(string(s)), nil
	case tagDate, tagTime, tagDateTime:
		var nanos int64
		if err := binary.Read(r, binary.BigEndian, &nanos); err != nil {
			return value.Null, corrupt(err)
		}
		t := time.Unix(0, nanos).UTC()
		switch tag {
		case tagDate:
			return value.Date(t), nil
		case tagTime:
			return value.TimeOfDay(t), nil
		default:
			return value.DateTime(t), nil
		}
	case tagList:
		n, err := binary.ReadUvarint(r)
		if err != nil {
			return value.Null, corrupt(err)
		}
		out := make([]value.Value, 0, n)
		for i := uint64(0); i < n; i++ {
			ev, err := decodeValue(r)
			if err != nil {
				return value.Null, err
			}
			out = append(out, ev)
		}
		return value.List(out), nil
	case tagMap:
		n, err := binary.ReadUvarint(r)
		if err != nil {
			return value.Null, corrupt(err)
		}
		out := make(map[string]value.Value, n)
		for i := uint64(0); i < n; i++ {
			k, err := readBytes(r)
			if err != nil {
				return value.Null, err
			}
			v, err := decodeValue(r)
			if err != nil {
				return value.Null, err
			}
			out[string(k)] = v
		}
		return value.Map(out), nil
	default:
		return value.Null, gqlerr.Wrap(gqlerr.Corruption, fmt.Errorf("unknown value tag %d", tag), "decode value")
	}
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, corrupt(err)
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, corrupt(err)
	}
	return out, nil
}

func corrupt(err error) error {
	return gqlerr.Wrap(gqlerr.Corruption, err, "decode record")
}

func encodeProps(props map[string]value.Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, value.Map(props)); err != nil {
		return nil, gqlerr.Wrap(gqlerr.Internal, err, "encode properties")
	}
	return buf.Bytes(), nil
}

func decodeProps(b []byte) (map[string]value.Value, error) {
	v, err := decodeValue(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	if v.Kind != value.KindMap {
		return nil, gqlerr.Wrap(gqlerr.Corruption, fmt.Errorf("expected map, got %s", v.Kind), "decode properties")
	}
	return v.Map, nil
}

// nodeRecord / edgeRecord are the on-disk layout of the `nodes` and
// `edges` trees.

func encodeNodeRecord(n *value.Node) ([]byte, error) {
	var buf bytes.Buffer
	writeUvarint(&buf, uint64(len(n.Labels)))
	for _, l := range n.Labels {
		writeBytes(&buf, []byte(l))
	}
	propBytes, err := encodeProps(n.Properties)
	if err != nil {
		return nil, err
	}
	buf.Write(propBytes)
	return buf.Bytes(), nil
}

func decodeNodeRecord(id value.ID, data []byte) (*value.Node, error) {
	r := bytes.NewReader(data)
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, corrupt(err)
	}
	labels := make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		l, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		labels = append(labels, string(l))
	}
	props, err := decodeValue(r)
	if err != nil {
		return nil, err
	}
	if props.Kind != value.KindMap {
		return nil, gqlerr.Wrap(gqlerr.Corruption, fmt.Errorf("node %s: expected property map", id), "decode node")
	}
	return value.NewNode(id, labels, props.Map), nil
}

func encodeEdgeRecord(e *value.Edge) ([]byte, error) {
	var buf bytes.Buffer
	writeBytes(&buf, []byte(e.Type))
	buf.Write(e.Src[:])
	buf.Write(e.Dst[:])
	propBytes, err := encodeProps(e.Properties)
	if err != nil {
		return nil, err
	}
	buf.Write(propBytes)
	return buf.Bytes(), nil
}

func decodeEdgeRecord(id value.ID, data []byte) (*value.Edge, error) {
	r := bytes.NewReader(data)
	typ, err := readBytes(r)
	if err != nil {
		return nil, err
	}
	var src, dst value.ID
	if _, err := io.ReadFull(r, src[:]); err != nil {
		return nil, corrupt(err)
	}
	if _, err := io.ReadFull(r, dst[:]); err != nil {
		return nil, corrupt(err)
	}
	props, err := decodeValue(r)
	if err != nil {
		return nil, err
	}
	if props.Kind != value.KindMap {
		return nil, gqlerr.Wrap(gqlerr.Corruption, fmt.Errorf("edge %s: expected property map", id), "decode edge")
	}
	return value.NewEdge(id, string(typ), src, dst, props.Map), nil
}

// encodeIndexValue produces an order-preserving encoding of a scalar
// Value for use as a key segment in the `idx` tree's
// `label ‖ property ‖ value ‖ node_id` layout, inside the graph's own
// sub-bucket. Only
// scalar kinds are indexable; composite kinds are rejected by the
// caller before reaching here.
func encodeIndexValue(v value.Value) []byte {
	switch v.Kind {
	case value.KindInt:
		var buf [9]byte
		buf[0] = tagInt
		// Flip the sign bit so two's-complement big-endian int64
		// bytes sort the same way the integers themselves do.
		u := uint64(v.Int) ^ (1 << 63)
		binary.BigEndian.PutUint64(buf[1:], u)
		return buf[:]
	case value.KindFloat:
		var buf [9]byte
		buf[0] = tagFloat
		bits := math.Float64bits(v.Float)
		if v.Float >= 0 {
			bits ^= 1 << 63
		} else {
			bits = ^bits
		}
		binary.BigEndian.PutUint64(buf[1:], bits)
		return buf[:]
	case value.KindString:
		out := make([]byte, 1+len(v.Str))
		out[0] = tagString
		copy(out[1:], v.Str)
		return out
	case value.KindBool:
		b := byte(0)
		if v.Bool {
			b = 1
		}
		return []byte{tagBool, b}
	case value.KindDate, value.KindTime, value.KindDateTime:
		var buf [9]byte
		buf[0] = tagDateTime
		u := uint64(v.Time.UTC().UnixNano()) ^ (1 << 63)
		binary.BigEndian.PutUint64(buf[1:], u)
		return buf[:]
	default:
		return nil
	}
}

// Indexable reports whether v can appear in an equality/range index
// stripe.
func Indexable(v value.Value) bool {
	switch v.Kind {
	case value.KindInt, value.KindFloat, value.KindString, value.KindBool,
		value.KindDate, value.KindTime, value.KindDateTime:
		return true
	default:
		return false
	}
}
