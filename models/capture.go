package models

import "time"

// CapturedResponse is one intercepted or probed API exchange. Body holds the
// decoded JSON document; Raw keeps the undecoded text.
type CapturedResponse struct {
	URL        string    `json:"url"`
	Method     string    `json:"method"`
	Status     int       `json:"status"`
	Body       any       `json:"body"`
	Raw        string    `json:"-"`
	CapturedAt time.Time `json:"timestamp"`
	Navigation uint64    `json:"-"`
}

// ProbeConfig is a candidate set of request parameters used to re-query the
// products endpoint directly. Nil fields are left out of the request body.
type ProbeConfig struct {
	Type          *int `json:"type,omitempty" yaml:"type,omitempty"`
	SubcategoryID *int `json:"subcategoryId,omitempty" yaml:"subcategoryId,omitempty"`
}

// Equal reports whether both configs carry the same parameters.
func (c ProbeConfig) Equal(other ProbeConfig) bool {
	return intPtrEqual(c.Type, other.Type) && intPtrEqual(c.SubcategoryID, other.SubcategoryID)
}

// Fields returns the parameters as request body entries.
func (c ProbeConfig) Fields() map[string]any {
	out := make(map[string]any, 2)
	if c.Type != nil {
		out["type"] = *c.Type
	}
	if c.SubcategoryID != nil {
		out["subcategoryId"] = *c.SubcategoryID
	}
	return out
}

// ProbeCache is the persisted best configuration.
type ProbeCache struct {
	BestConfig  ProbeConfig `json:"best_config"`
	LastUpdated float64     `json:"last_updated"`
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
