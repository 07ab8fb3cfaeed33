package model

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// BoosterKind is a consumable gameplay item.
type BoosterKind uint8

const (
	BoosterUnknown BoosterKind = iota
	BoosterShuffle
	BoosterHammer
	BoosterExtraMoves
)

var boosterNames = map[BoosterKind]string{
	BoosterShuffle:    "shuffle",
	BoosterHammer:     "hammer",
	BoosterExtraMoves: "extra_moves",
}

// AllBoosterKinds lists every purchasable kind in code order.
func AllBoosterKinds() []BoosterKind {
	return []BoosterKind{BoosterShuffle, BoosterHammer, BoosterExtraMoves}
}

func (k BoosterKind) String() string {
	if name, ok := boosterNames[k]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether k names a real booster.
func (k BoosterKind) Valid() bool {
	_, ok := boosterNames[k]
	return ok
}

// Code returns the numeric code sent by game clients.
func (k BoosterKind) Code() int {
	return int(k)
}

// ParseBoosterKind accepts a booster name or its numeric code.
func ParseBoosterKind(s string) (BoosterKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if code, err := strconv.Atoi(s); err == nil {
		k := BoosterKind(code)
		if code < 0 || code > 255 || !k.Valid() {
			return BoosterUnknown, errors.Errorf("unknown booster code %d", code)
		}
		return k, nil
	}
	for k, name := range boosterNames {
		if name == s {
			return k, nil
		}
	}
	return BoosterUnknown, errors.Errorf("unknown booster %q", s)
}

// MarshalJSON encodes the kind by name.
func (k BoosterKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON accepts either a name or a numeric code.
func (k *BoosterKind) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var parsed BoosterKind
	var err error
	switch v := raw.(type) {
	case string:
		parsed, err = ParseBoosterKind(v)
	case float64:
		if v != float64(int(v)) {
			return errors.New("booster code must be an integer")
		}
		parsed, err = ParseBoosterKind(strconv.Itoa(int(v)))
	default:
		return errors.New("booster kind must be a string or number")
	}
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
