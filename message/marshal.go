// This file is part of fabricd, a peer-to-peer object fabric in Golang.
//
// SPDX-License-Identifier: AGPL3.0-or-later

package message

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"
	"strconv"
)

//======================================================================
// Marshal/unmarshal message structs to/from byte arrays.
//
// A reflection-based codec adapted from the approach in
// github.com/bfix/gospel/data, trimmed to the field shapes this wire
// format actually carries: no wire type here nests a struct or holds
// a slice of structs, and every integer is little-endian (spec.md's
// wire fields never opt into big-endian), so only the flat scalar
// cases survive:
//
//    uint8, uint32, uint64  -- little-endian
//    string                 -- NUL-terminated
//    []byte                 -- tagged `size:"<n>"` (fixed) or `size:"*"` (greedy)
//======================================================================

// Marshal creates a byte array from a (reference to a) struct.
func Marshal(obj interface{}) ([]byte, error) {
	v := reflect.ValueOf(obj)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, errors.New("Marshal: object is not a struct{}")
	}
	return marshalStruct(v)
}

func marshalStruct(x reflect.Value) ([]byte, error) {
	data := new(bytes.Buffer)
	for i := 0; i < x.NumField(); i++ {
		f := x.Field(i)
		if !f.CanSet() {
			continue // unexported field
		}
		switch v := f.Interface().(type) {
		case string:
			data.WriteString(v)
			data.WriteByte(0)
		case uint8:
			data.WriteByte(v)
		case uint32:
			binary.Write(data, binary.LittleEndian, v)
		case uint64:
			binary.Write(data, binary.LittleEndian, v)
		case []byte:
			data.Write(v)
		default:
			return nil, fmt.Errorf("Marshal: unsupported field type %v", f.Type())
		}
	}
	return data.Bytes(), nil
}

// Unmarshal reads a byte array to fill a struct pointed to by obj.
func Unmarshal(obj interface{}, data []byte) error {
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("Unmarshal: object is not a *struct{}: %v", v.Type())
	}
	return unmarshalStruct(v.Elem(), bytes.NewBuffer(data))
}

func unmarshalStruct(x reflect.Value, buf *bytes.Buffer) error {
	for i := 0; i < x.NumField(); i++ {
		f := x.Field(i)
		if !f.CanSet() {
			continue // unexported field
		}
		ft := x.Type().Field(i)
		switch f.Interface().(type) {
		case string:
			s, err := buf.ReadString(0)
			if err != nil {
				return fmt.Errorf("Unmarshal: truncated string field: %w", err)
			}
			f.SetString(s[:len(s)-1])
		case uint8:
			b, err := buf.ReadByte()
			if err != nil {
				return fmt.Errorf("Unmarshal: truncated uint8 field: %w", err)
			}
			f.SetUint(uint64(b))
		case uint32:
			var a uint32
			if err := binary.Read(buf, binary.LittleEndian, &a); err != nil {
				return fmt.Errorf("Unmarshal: truncated uint32 field: %w", err)
			}
			f.SetUint(uint64(a))
		case uint64:
			var a uint64
			if err := binary.Read(buf, binary.LittleEndian, &a); err != nil {
				return fmt.Errorf("Unmarshal: truncated uint64 field: %w", err)
			}
			f.SetUint(a)
		case []byte:
			size, err := byteFieldSize(f, ft, buf.Len())
			if err != nil {
				return err
			}
			a := make([]byte, size)
			n, _ := buf.Read(a)
			if n != size {
				return fmt.Errorf("Unmarshal: size mismatch on %s - have %d, got %d", ft.Name, size, n)
			}
			f.SetBytes(a)
		default:
			return fmt.Errorf("Unmarshal: unsupported field type %v", f.Type())
		}
	}
	return nil
}

// byteFieldSize determines how many bytes to read for a []byte field:
// its own length if pre-allocated (NewEmpty fixes the length of UUID
// fields up front), otherwise its "size" tag: "*" for the rest of the
// buffer, or a decimal literal.
func byteFieldSize(f reflect.Value, ft reflect.StructField, remaining int) (int, error) {
	if size := f.Len(); size > 0 {
		return size, nil
	}
	sizeTag := ft.Tag.Get("size")
	if sizeTag == "" {
		return 0, fmt.Errorf("Unmarshal: missing size tag on field %s", ft.Name)
	}
	if sizeTag == "*" {
		return remaining, nil
	}
	n, err := strconv.Atoi(sizeTag)
	if err != nil {
		return 0, fmt.Errorf("Unmarshal: invalid size tag %q on field %s: %w", sizeTag, ft.Name, err)
	}
	return n, nil
}
