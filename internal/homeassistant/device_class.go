package homeassistant

import "encoding/json"

type DeviceClass int64

const (
	NoDeviceClass DeviceClass = iota
	Power
	Enum
)

func (s DeviceClass) String() string {
	switch s {
	case NoDeviceClass:
		return ""
	case Power:
		return "power"
	case Enum:
		return "enum"
	}
	return "unknown"
}

func (s DeviceClass) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

type Unit int64

const (
	None Unit = iota
	PerUnit
	MW
)

func (s Unit) String() string {
	switch s {
	case None:
		return ""
	case PerUnit:
		return "p.u."
	case MW:
		return "MW"
	}
	return "unknown"
}

func (s Unit) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
