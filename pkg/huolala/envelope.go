package huolala

import (
	"bytes"
	"encoding/json"
)

// Envelope field names.
const (
	FieldAppKey      = "app_key"
	FieldTimestamp   = "timestamp"
	FieldNonce       = "nonce_str"
	FieldAPIMethod   = "api_method"
	FieldAPIVersion  = "api_version"
	FieldAPIData     = "api_data"
	FieldAccessToken = "access_token"
	FieldSignature   = "signature"
)

type envelopeField struct {
	name    string
	value   string
	numeric bool
}

// Envelope is the ordered set of request fields sent to the API.
type Envelope struct {
	fields []envelopeField
	index  map[string]int
}

// NewEnvelope creates an empty envelope.
func NewEnvelope() *Envelope {
	return &Envelope{index: make(map[string]int)}
}

// Set adds a field, or replaces its value in place if present.
func (e *Envelope) Set(name, value string) {
	e.set(envelopeField{name: name, value: value})
}

// SetNumber adds a field whose value is encoded as a JSON number.
func (e *Envelope) SetNumber(name, value string) {
	e.set(envelopeField{name: name, value: value, numeric: true})
}

func (e *Envelope) set(f envelopeField) {
	if i, ok := e.index[f.name]; ok {
		e.fields[i] = f
		return
	}
	e.index[f.name] = len(e.fields)
	e.fields = append(e.fields, f)
}

// Get returns a field value.
func (e *Envelope) Get(name string) (string, bool) {
	i, ok := e.index[name]
	if !ok {
		return "", false
	}
	return e.fields[i].value, true
}

// Has reports whether the field is present.
func (e *Envelope) Has(name string) bool {
	_, ok := e.index[name]
	return ok
}

// Keys returns field names in insertion order.
func (e *Envelope) Keys() []string {
	keys := make([]string, len(e.fields))
	for i, f := range e.fields {
		keys[i] = f.name
	}
	return keys
}

// Fields returns every field, signature included, as a map.
func (e *Envelope) Fields() map[string]string {
	m := make(map[string]string, len(e.fields))
	for _, f := range e.fields {
		m[f.name] = f.value
	}
	return m
}

// SigningFields returns the fields covered by the signature.
func (e *Envelope) SigningFields() map[string]string {
	m := e.Fields()
	delete(m, FieldSignature)
	return m
}

// Sign computes the signature over all current fields and appends it last.
func (e *Envelope) Sign(secret string) string {
	sig := Sign(e.SigningFields(), secret)
	if i, ok := e.index[FieldSignature]; ok {
		// keep signature as the final field
		e.fields = append(e.fields[:i], e.fields[i+1:]...)
		delete(e.index, FieldSignature)
		for j := i; j < len(e.fields); j++ {
			e.index[e.fields[j].name] = j
		}
	}
	e.Set(FieldSignature, sig)
	return sig
}

// MarshalJSON encodes the envelope as a JSON object in insertion order.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range e.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if f.numeric && json.Valid([]byte(f.value)) {
			buf.WriteString(f.value)
			continue
		}
		val, err := json.Marshal(f.value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// encodeAPIData JSON-encodes business data without HTML escaping.
func encodeAPIData(data map[string]any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
