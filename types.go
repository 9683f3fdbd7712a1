package formhydrate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Endpoints holds the REST route templates, relative to the base URL.
// IDLookup takes the URL-escaped form key; Metadata and Fields take the
// numeric form id.
type Endpoints struct {
	IDLookup string
	Metadata string
	Fields   string
}

// DefaultEndpoints are the routes the companion WordPress plugin and
// Formidable's REST API register.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		IDLookup: "custom/v1/form-id/%s",
		Metadata: "frm/v2/forms/%d",
		Fields:   "frm/v2/forms/%d/fields",
	}
}

// Route names the logical resource kind behind a request; it selects the
// per-route TTL and labels metrics.
type Route string

const (
	RouteIDLookup Route = "id_lookup"
	RouteMetadata Route = "metadata"
	RouteFields   Route = "fields"
)

// FormMeta is the validated slice of a Formidable form's metadata response.
// Raw preserves the untouched server payload for callers that need fields
// beyond the validated ones.
type FormMeta struct {
	ID       int64
	Key      string
	Name     string
	Settings map[string]interface{}
	Raw      json.RawMessage
}

// Field is the canonical shape a raw field object normalizes into. Raw is
// the unmodified server payload for the field.
type Field struct {
	ID       int64
	Key      string
	Type     string
	Name     string
	Required bool
	Default  interface{}
	Options  interface{}
	Config   interface{}
	Raw      json.RawMessage
}

// HydratedForm is the payload Hydrate returns: the resolved id, validated
// metadata and normalized field definitions. It is transient; the caller
// owns it.
type HydratedForm struct {
	ID       int64
	Metadata *FormMeta
	Fields   []Field
}

// looseInt decodes a JSON number or a numeric string. WordPress and
// Formidable serialize ids either way depending on version.
type looseInt int64

func (n *looseInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return fmt.Errorf("empty numeric value")
	}

	s := string(data)
	if data[0] == '"' {
		var unquoted string
		if err := json.Unmarshal(data, &unquoted); err != nil {
			return err
		}
		s = strings.TrimSpace(unquoted)
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a numeric value: %q", s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("not a finite number: %q", s)
	}

	*n = looseInt(int64(f))
	return nil
}

// looseBool decodes the serialized-PHP truthiness zoo: booleans, 0/1
// numbers and "0"/"1"/"true"/"false"/"" strings.
type looseBool bool

func (b *looseBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "true", "1":
		*b = true
		return nil
	case "false", "0", "null":
		*b = false
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "1", "true", "yes", "on":
			*b = true
		default:
			*b = false
		}
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*b = f != 0
	return nil
}
