// Package report encodes validation results and archives them in a blob
// store.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec turns a value into bytes and back.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Name() string
}

// Compression names a compression applied after encoding.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
)

type jsonCodec struct{}

func (jsonCodec) Encode(v any) ([]byte, error)    { return json.Marshal(v) }
func (jsonCodec) Decode(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                    { return "json" }

// msgpackCodec reuses the json struct tags so both encodings share field names.
type msgpackCodec struct{}

func (msgpackCodec) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (msgpackCodec) Decode(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}

func (msgpackCodec) Name() string { return "msgpack" }

// JSON returns the JSON codec.
func JSON() Codec { return jsonCodec{} }

// MessagePack returns the msgpack codec.
func MessagePack() Codec { return msgpackCodec{} }

// CodecByName resolves "json" or "msgpack". An empty name selects JSON.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON(), nil
	case "msgpack":
		return MessagePack(), nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// Serializer encodes then compresses.
type Serializer struct {
	codec       Codec
	compression Compression
}

// NewSerializer returns a serializer. A nil codec selects JSON and an empty
// compression selects none.
func NewSerializer(codec Codec, compression Compression) (*Serializer, error) {
	if codec == nil {
		codec = JSON()
	}
	switch compression {
	case "":
		compression = CompressionNone
	case CompressionNone, CompressionZstd:
	default:
		return nil, fmt.Errorf("unknown compression %q", compression)
	}
	return &Serializer{codec: codec, compression: compression}, nil
}

// Extension is the file extension for serialized payloads, e.g. "msgpack.zst".
func (s *Serializer) Extension() string {
	if s.compression == CompressionZstd {
		return s.codec.Name() + ".zst"
	}
	return s.codec.Name()
}

// ContentType is the MIME type of serialized payloads.
func (s *Serializer) ContentType() string {
	if s.compression == CompressionZstd {
		return "application/zstd"
	}
	if s.codec.Name() == "json" {
		return "application/json"
	}
	return "application/x-" + s.codec.Name()
}

func (s *Serializer) Serialize(v any) ([]byte, error) {
	data, err := s.codec.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("%s encode: %w", s.codec.Name(), err)
	}
	if s.compression == CompressionNone {
		return data, nil
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func (s *Serializer) Deserialize(data []byte, v any) error {
	if s.compression == CompressionZstd {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return fmt.Errorf("zstd reader: %w", err)
		}
		defer dec.Close()
		if data, err = dec.DecodeAll(data, nil); err != nil {
			return fmt.Errorf("zstd decode: %w", err)
		}
	}
	if err := s.codec.Decode(data, v); err != nil {
		return fmt.Errorf("%s decode: %w", s.codec.Name(), err)
	}
	return nil
}
